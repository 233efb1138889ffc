package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONKeyOrderInsensitive(t *testing.T) {
	a := &Document{
		ID:   "Q1",
		Type: TypeItem,
		Labels: map[string]string{
			"en": "Earth",
			"de": "Erde",
		},
		Claims: map[string][]Statement{
			"P31": {{Property: "P31", Value: NewEntityValue("Q2"), Rank: RankNormal, StatementID: "Q1$00000000-0000-0000-0000-000000000001"}},
		},
	}
	b := &Document{
		ID:   "Q1",
		Type: TypeItem,
		Labels: map[string]string{
			"de": "Erde",
			"en": "Earth",
		},
		Claims: map[string][]Statement{
			"P31": {{StatementID: "Q1$00000000-0000-0000-0000-000000000001", Rank: RankNormal, Property: "P31", Value: NewEntityValue("Q2")}},
		},
	}

	ja, err := CanonicalJSON(a)
	require.NoError(t, err)
	jb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestContentHashStableAcrossFieldOrder(t *testing.T) {
	a := &Document{ID: "Q1", Type: TypeItem, Labels: map[string]string{"en": "a", "fr": "b"}}
	b := &Document{ID: "Q1", Type: TypeItem, Labels: map[string]string{"fr": "b", "en": "a"}}

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestContentHashChangesOnContentChange(t *testing.T) {
	a := &Document{ID: "Q1", Type: TypeItem, Labels: map[string]string{"en": "a"}}
	b := &Document{ID: "Q1", Type: TypeItem, Labels: map[string]string{"en": "b"}}

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
