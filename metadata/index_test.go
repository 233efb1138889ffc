package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore.dev/entity"
)

func TestListByStatusRejectsUnknownFilterWithoutTouchingDB(t *testing.T) {
	ix := &Index{}

	_, err := ix.ListByStatus(context.Background(), "bogus", 10, nil)
	require.Error(t, err)
	kind, ok := entity.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, entity.KindBadRequest, kind)
}

func TestStatusColumnsCoversEveryDocumentedFilter(t *testing.T) {
	for _, status := range []string{"locked", "semi_protected", "archived", "dangling"} {
		_, ok := statusColumns[status]
		assert.True(t, ok, "missing column mapping for status %q", status)
	}
}
