package rdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore.dev/entity"
)

func sampleDocument() entity.Document {
	return entity.Document{
		ID:   "Q1",
		Type: entity.TypeItem,
		Labels: map[string]string{
			"en": "test item",
			"fr": "article de test",
		},
		Descriptions: map[string]string{
			"en": "an item used for testing",
		},
		Aliases: map[string][]string{
			"en": {"sample", "example"},
		},
		Sitelinks: map[string]entity.Sitelink{
			"enwiki": {Site: "enwiki", Title: "Test item", URL: "https://en.wikipedia.org/wiki/Test_item"},
		},
		Claims: map[string][]entity.Statement{
			"P31": {
				{
					Property:    "P31",
					Value:       entity.NewEntityValue("Q5"),
					Rank:        entity.RankNormal,
					StatementID: "Q1$11111111-1111-1111-1111-111111111111",
					References: []entity.Reference{
						{
							Hash: "abcd1234",
							Snaks: []entity.Snak{
								{Property: "P854", Value: entity.NewURLValue("https://example.com")},
							},
						},
					},
				},
			},
			"P569": {
				{
					Property: "P569",
					Value: entity.NewTimeValue(entity.TimeValue{
						Value:         "+1990-01-15T00:00:00Z",
						Timezone:      0,
						Precision:     11,
						CalendarModel: "http://www.wikidata.org/entity/Q1985727",
					}),
					Rank:        entity.RankNormal,
					StatementID: "Q1$22222222-2222-2222-2222-222222222222",
					Qualifiers: []entity.Qualifier{
						{Property: "P1480", Value: entity.NewStringValue("circa")},
					},
				},
			},
		},
	}
}

func registryForSample() *Registry {
	reg := NewRegistry()
	reg.Put(NewPropertyShape("P31", "wikibase-item"))
	reg.Put(NewPropertyShape("P569", "time"))
	reg.Put(NewPropertyShape("P854", "url"))
	reg.Put(NewPropertyShape("P1480", "string"))
	return reg
}

func TestSerializeIsDeterministic(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})

	out1, err := s.Serialize(doc)
	require.NoError(t, err)
	out2, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
}

func TestSerializeEmitsHeaderPrefixes(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "@prefix wd: <http://www.wikidata.org/entity/> .\n"))
	assert.Contains(t, out, "@prefix geo: <http://www.opengis.net/ont/geosparql#> .\n")
}

func TestSerializeEntityTypeTriple(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wd:Q1 a wikibase:Item .\n")
}

func TestSerializePropertyEntityTypeTriple(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})
	doc.Type = entity.TypeProperty

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wd:Q1 a wikibase:Property .\n")
}

func TestSerializeTermsBlock(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, `wd:Q1 rdfs:label "test item"@en .`)
	assert.Contains(t, out, `wd:Q1 skos:altLabel "sample"@en .`)
	assert.Contains(t, out, `wd:Q1 schema:description "an item used for testing"@en .`)
	assert.Contains(t, out, "wd:Q1 schema:sameAs <https://en.wikipedia.org/wiki/Test_item> .")
}

func TestSerializeDirectClaimForEntityValue(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wd:Q1 wdt:P31 wd:Q5 .\n")
	assert.Contains(t, out, "wds:Q1-11111111-1111-1111-1111-111111111111 a wikibase:Statement, wikibase:BestRank .")
	assert.Contains(t, out, "wds:Q1-11111111-1111-1111-1111-111111111111 ps:P31 wd:Q5 .")
}

func TestSerializeStructuredValueRoutesThroughValueNode(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	hash, err := valueNodeHash(doc.Claims["P569"][0].Value)
	require.NoError(t, err)

	assert.Contains(t, out, "wds:Q1-22222222-2222-2222-2222-222222222222 psv:P569 wdv:"+hash+" .")
	assert.Contains(t, out, "wdv:"+hash+" a wikibase:TimeValue ;")
	assert.Contains(t, out, `wikibase:timeValue "1990-01-15T00:00:00Z"^^xsd:dateTime ;`)
}

func TestSerializeMissingReferenceHashFails(t *testing.T) {
	doc := sampleDocument()
	stmt := doc.Claims["P31"][0]
	stmt.References = []entity.Reference{{Snaks: []entity.Snak{{Property: "P854", Value: entity.NewStringValue("x")}}}}
	doc.Claims["P31"] = []entity.Statement{stmt}
	s := New(Options{Properties: registryForSample()})

	_, err := s.Serialize(doc)
	require.Error(t, err)
	kind, ok := entity.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, entity.KindInvalidReference, kind)
}

func TestSerializeDedupesRepeatedValueNode(t *testing.T) {
	doc := sampleDocument()
	shared := doc.Claims["P569"][0]
	second := shared
	second.StatementID = "Q1$33333333-3333-3333-3333-333333333333"
	doc.Claims["P569"] = append(doc.Claims["P569"], second)

	s := New(Options{Properties: registryForSample()})
	out, err := s.Serialize(doc)
	require.NoError(t, err)

	hash, err := valueNodeHash(shared.Value)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "wdv:"+hash+" a wikibase:TimeValue"))
	assert.Equal(t, 2, strings.Count(out, "psv:P569 wdv:"+hash))
}

func TestSerializeIncomingRedirects(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample(), IncomingRedirects: []string{"Q2", "Q3"}})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wd:Q2 owl:sameAs wd:Q1 .\n")
	assert.Contains(t, out, "wd:Q3 owl:sameAs wd:Q1 .\n")
}

func TestSerializeReferencedEntityMetadata(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{
		Properties: registryForSample(),
		ReferencedEntities: map[string]ReferencedEntity{
			"Q5": {Type: entity.TypeItem, Labels: map[string]string{"en": "human"}},
		},
	})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wd:Q5 a wikibase:Item .\n")
	assert.Contains(t, out, `wd:Q5 rdfs:label "human"@en .`)
}

func TestSerializePropertyOntologyBlock(t *testing.T) {
	doc := sampleDocument()
	s := New(Options{Properties: registryForSample(), RepositoryName: "testrepo"})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wd:P31 a wikibase:Property ;")
	assert.Contains(t, out, "wdno:P31 a owl:Class ;")
	assert.Contains(t, out, "owl:someValuesFrom owl:Thing .")

	blank := novalueBlankNode("testrepo", "P31")
	assert.Contains(t, out, "owl:complementOf _:"+blank+" .")
}

func TestSerializeUnknownPropertyDefaultsToString(t *testing.T) {
	doc := entity.Document{
		ID:   "Q9",
		Type: entity.TypeItem,
		Claims: map[string][]entity.Statement{
			"P9999": {
				{
					Property:    "P9999",
					Value:       entity.NewStringValue("hello"),
					Rank:        entity.RankNormal,
					StatementID: "Q9$44444444-4444-4444-4444-444444444444",
				},
			},
		},
	}
	s := New(Options{Properties: NewRegistry()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "wikibase:propertyType <http://wikiba.se/ontology#String> ;")
}

func TestSerializeNonNormalRankOmitsDirectClaim(t *testing.T) {
	doc := entity.Document{
		ID:   "Q9",
		Type: entity.TypeItem,
		Claims: map[string][]entity.Statement{
			"P31": {
				{
					Property:    "P31",
					Value:       entity.NewEntityValue("Q5"),
					Rank:        entity.RankDeprecated,
					StatementID: "Q9$55555555-5555-5555-5555-555555555555",
				},
			},
		},
	}
	s := New(Options{Properties: registryForSample()})

	out, err := s.Serialize(doc)
	require.NoError(t, err)

	assert.NotContains(t, out, "wd:Q9 wdt:P31 wd:Q5 .")
	assert.Contains(t, out, "wikibase:rank wikibase:DeprecatedRank .")
}
