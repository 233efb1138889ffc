package rdf

import (
	"fmt"
	"sort"
	"strings"

	"entitystore.dev/entity"
)

// prefixOrder is the Turtle prefix set spec.md §6 "Turtle prefix set"
// names, emitted in this fixed order as the first block of every
// document.
var prefixOrder = [][2]string{
	{"wd", "http://www.wikidata.org/entity/"},
	{"wds", "http://www.wikidata.org/entity/statement/"},
	{"wdv", "http://www.wikidata.org/value/"},
	{"wdref", "http://www.wikidata.org/reference/"},
	{"wdt", "http://www.wikidata.org/prop/direct/"},
	{"wdtn", "http://www.wikidata.org/prop/direct-normalized/"},
	{"wdno", "http://www.wikidata.org/prop/novalue/"},
	{"p", "http://www.wikidata.org/prop/"},
	{"ps", "http://www.wikidata.org/prop/statement/"},
	{"psv", "http://www.wikidata.org/prop/statement/value/"},
	{"psn", "http://www.wikidata.org/prop/statement/value-normalized/"},
	{"pq", "http://www.wikidata.org/prop/qualifier/"},
	{"pqv", "http://www.wikidata.org/prop/qualifier/value/"},
	{"pqn", "http://www.wikidata.org/prop/qualifier/value-normalized/"},
	{"pr", "http://www.wikidata.org/prop/reference/"},
	{"prv", "http://www.wikidata.org/prop/reference/value/"},
	{"prn", "http://www.wikidata.org/prop/reference/value-normalized/"},
	{"wikibase", "http://wikiba.se/ontology#"},
	{"rdfs", "http://www.w3.org/2000/01/rdf-schema#"},
	{"schema", "http://schema.org/"},
	{"skos", "http://www.w3.org/2004/02/skos/core#"},
	{"owl", "http://www.w3.org/2002/07/owl#"},
	{"xsd", "http://www.w3.org/2001/XMLSchema#"},
	{"geo", "http://www.opengis.net/ont/geosparql#"},
	{"prov", "http://www.w3.org/ns/prov#"},
	{"cc", "http://creativecommons.org/ns#"},
	{"data", "https://www.wikidata.org/wiki/Special:EntityData/"},
}

// ReferencedEntity is the cached label/description snapshot the
// serializer uses to emit a metadata block for an entity referenced by
// one of the document's statement values (spec.md §4.G input: "optionally
// a cache of referenced entities' labels/descriptions").
type ReferencedEntity struct {
	Type         entity.EntityType
	Labels       map[string]string
	Descriptions map[string]string
}

// Options configures one Serialize call.
type Options struct {
	// RepositoryName feeds the no-value blank-node hash; defaults to
	// "entitystore" when empty.
	RepositoryName string
	// Properties is consulted for every property referenced by the
	// document's claims. A nil registry or a miss falls back to a
	// string-typed shape, matching the loader's own unknown-datatype
	// default.
	Properties *Registry
	// ReferencedEntities is an optional label/description cache for
	// entity-valued statements, keyed by external id.
	ReferencedEntities map[string]ReferencedEntity
	// IncomingRedirects lists external ids whose head revision redirects
	// to this document (spec.md §4.G "incoming-redirect triples").
	IncomingRedirects []string
	// DedupeCutoff is the DedupeBag prefix length; 0 uses the
	// spec's default of 5.
	DedupeCutoff int
}

// Serializer renders one entity document to Turtle per a fixed Options
// configuration.
type Serializer struct {
	opts Options
}

// New builds a Serializer from opts, applying defaults for
// RepositoryName and DedupeCutoff.
func New(opts Options) *Serializer {
	if opts.RepositoryName == "" {
		opts.RepositoryName = "entitystore"
	}
	if opts.DedupeCutoff <= 0 {
		opts.DedupeCutoff = 5
	}
	if opts.Properties == nil {
		opts.Properties = NewRegistry()
	}
	return &Serializer{opts: opts}
}

// Serialize renders doc to a complete Turtle document. Blocks are
// emitted in the fixed order spec.md §4.G names: header prefixes;
// entity-type triple; dataset metadata; labels/descriptions/aliases/
// sitelinks; per-statement triples; incoming-redirect triples;
// referenced-entity metadata blocks; per-property ontology blocks.
func (s *Serializer) Serialize(doc entity.Document) (string, error) {
	var b strings.Builder
	dedupe := NewDedupeBag(s.opts.DedupeCutoff)

	writeHeader(&b)
	writeEntityType(&b, doc)
	writeDatasetMetadata(&b, doc)
	writeTerms(&b, doc)

	usedProperties := make(map[string]bool)
	referencedEntities := make(map[string]bool)

	for _, pid := range sortedClaimKeys(doc.Claims) {
		usedProperties[pid] = true
		for _, st := range doc.Claims[pid] {
			if err := s.writeStatement(&b, doc.ID, pid, st, dedupe, referencedEntities); err != nil {
				return "", err
			}
		}
	}

	s.writeIncomingRedirects(&b, doc.ID)
	s.writeReferencedEntities(&b, referencedEntities)
	s.writePropertyOntology(&b, usedProperties)

	return b.String(), nil
}

func writeHeader(b *strings.Builder) {
	for _, p := range prefixOrder {
		fmt.Fprintf(b, "@prefix %s: <%s> .\n", p[0], p[1])
	}
	b.WriteByte('\n')
}

func writeEntityType(b *strings.Builder, doc entity.Document) {
	fmt.Fprintf(b, "wd:%s a wikibase:%s .\n", doc.ID, entityKindClass(doc.Type))
}

func entityKindClass(t entity.EntityType) string {
	if t == entity.TypeProperty {
		return "Property"
	}
	return "Item"
}

func writeDatasetMetadata(b *strings.Builder, doc entity.Document) {
	stmtCount := 0
	for _, stmts := range doc.Claims {
		stmtCount += len(stmts)
	}
	fmt.Fprintf(b, "data:%s a schema:Dataset .\n", doc.ID)
	fmt.Fprintf(b, "data:%s schema:about wd:%s .\n", doc.ID, doc.ID)
	fmt.Fprintf(b, "data:%s cc:license <http://creativecommons.org/publicdomain/zero/1.0/> .\n", doc.ID)
	fmt.Fprintf(b, "data:%s wikibase:statements %s^^xsd:integer .\n", doc.ID, quote(fmt.Sprint(stmtCount)))
	fmt.Fprintf(b, "data:%s wikibase:sitelinks %s^^xsd:integer .\n", doc.ID, quote(fmt.Sprint(len(doc.Sitelinks))))
}

func writeTerms(b *strings.Builder, doc entity.Document) {
	for _, lang := range sortedStringKeys(doc.Labels) {
		label := doc.Labels[lang]
		fmt.Fprintf(b, "wd:%s rdfs:label %s@%s .\n", doc.ID, quote(label), lang)
		fmt.Fprintf(b, "wd:%s skos:prefLabel %s@%s .\n", doc.ID, quote(label), lang)
		fmt.Fprintf(b, "wd:%s schema:name %s@%s .\n", doc.ID, quote(label), lang)
	}
	for _, lang := range sortedStringKeys(doc.Descriptions) {
		fmt.Fprintf(b, "wd:%s schema:description %s@%s .\n", doc.ID, quote(doc.Descriptions[lang]), lang)
	}
	for _, lang := range sortedAliasKeys(doc.Aliases) {
		for _, alias := range doc.Aliases[lang] {
			fmt.Fprintf(b, "wd:%s skos:altLabel %s@%s .\n", doc.ID, quote(alias), lang)
		}
	}
	for _, site := range sortedSitelinkKeys(doc.Sitelinks) {
		fmt.Fprintf(b, "wd:%s schema:sameAs <%s> .\n", doc.ID, doc.Sitelinks[site].URL)
	}
}

// writeStatement emits the full per-statement block spec.md §4.G
// "Statement emission" describes: the link triple, statement-type
// triple(s), statement-value triple, rank triple, qualifiers, and
// references.
func (s *Serializer) writeStatement(b *strings.Builder, entityID, pid string, st entity.Statement, dedupe *DedupeBag, referenced map[string]bool) error {
	stmtURI := "wds:" + statementLocalName(st.StatementID)

	fmt.Fprintf(b, "wd:%s p:%s %s .\n", entityID, pid, stmtURI)

	isBestRank := st.Rank == entity.RankNormal
	if isBestRank {
		fmt.Fprintf(b, "%s a wikibase:Statement, wikibase:BestRank .\n", stmtURI)
		lit, err := formatLiteral(st.Value)
		if err != nil {
			return fmt.Errorf("statement %s direct claim: %w", st.StatementID, err)
		}
		fmt.Fprintf(b, "wd:%s wdt:%s %s .\n", entityID, pid, lit)
	} else {
		fmt.Fprintf(b, "%s a wikibase:Statement .\n", stmtURI)
	}

	trackReferencedEntity(referenced, st.Value)

	if st.Value.IsStructured() {
		hash, err := valueNodeHash(st.Value)
		if err != nil {
			return fmt.Errorf("statement %s value: %w", st.StatementID, err)
		}
		fmt.Fprintf(b, "%s psv:%s wdv:%s .\n", stmtURI, pid, hash)
		writeValueNode(b, hash, st.Value, dedupe)
	} else {
		lit, err := formatLiteral(st.Value)
		if err != nil {
			return fmt.Errorf("statement %s value: %w", st.StatementID, err)
		}
		fmt.Fprintf(b, "%s ps:%s %s .\n", stmtURI, pid, lit)
	}

	fmt.Fprintf(b, "%s wikibase:rank wikibase:%s .\n", stmtURI, rankName(st.Rank))

	for _, q := range st.Qualifiers {
		trackReferencedEntity(referenced, q.Value)
		if err := writeSnakValue(b, stmtURI, "pqv:"+q.Property, "pq:"+q.Property, q.Value, dedupe); err != nil {
			return fmt.Errorf("statement %s qualifier %s: %w", st.StatementID, q.Property, err)
		}
	}

	for _, ref := range st.References {
		if ref.Hash == "" {
			return entity.InvalidReference("statement " + st.StatementID + " has a reference without a hash")
		}
		refURI := "wdref:" + ref.Hash
		fmt.Fprintf(b, "%s prov:wasDerivedFrom %s .\n", stmtURI, refURI)
		for _, sn := range ref.Snaks {
			trackReferencedEntity(referenced, sn.Value)
			if err := writeSnakValue(b, refURI, "prv:"+sn.Property, "pr:"+sn.Property, sn.Value, dedupe); err != nil {
				return fmt.Errorf("statement %s reference %s snak %s: %w", st.StatementID, ref.Hash, sn.Property, err)
			}
		}
	}

	return nil
}

// writeSnakValue emits a qualifier or reference snak's value triple,
// routing through a wdv: node for structured values.
func writeSnakValue(b *strings.Builder, subjectURI, valuePredicate, plainPredicate string, v entity.Value, dedupe *DedupeBag) error {
	if v.IsStructured() {
		hash, err := valueNodeHash(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s %s wdv:%s .\n", subjectURI, valuePredicate, hash)
		writeValueNode(b, hash, v, dedupe)
		return nil
	}
	lit, err := formatLiteral(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "%s %s %s .\n", subjectURI, plainPredicate, lit)
	return nil
}

// writeValueNode emits the wdv: block for a structured value, unless the
// dedupe bag reports it as already seen.
func writeValueNode(b *strings.Builder, hash string, v entity.Value, dedupe *DedupeBag) {
	if dedupe.AlreadySeen(hash, "wdv") {
		return
	}
	switch v.Kind {
	case entity.ValueTime:
		tv := v.Time
		fmt.Fprintf(b, "wdv:%s a wikibase:TimeValue ;\n", hash)
		fmt.Fprintf(b, "\twikibase:timeValue %s^^xsd:dateTime ;\n", quote(displayTime(tv)))
		fmt.Fprintf(b, "\twikibase:timePrecision %s^^xsd:integer ;\n", quote(fmt.Sprint(tv.Precision)))
		fmt.Fprintf(b, "\twikibase:timeTimezone %s^^xsd:integer ;\n", quote(fmt.Sprint(tv.Timezone)))
		fmt.Fprintf(b, "\twikibase:timeCalendarModel <%s> .\n", tv.CalendarModel)
	case entity.ValueQuantity:
		qv := v.Quantity
		fmt.Fprintf(b, "wdv:%s a wikibase:QuantityValue ;\n", hash)
		fmt.Fprintf(b, "\twikibase:quantityAmount %s^^xsd:decimal ;\n", qv.Amount)
		fmt.Fprintf(b, "\twikibase:quantityUnit <%s>", qv.Unit)
		if qv.UpperBound != "" {
			fmt.Fprintf(b, " ;\n\twikibase:quantityUpperBound %s^^xsd:decimal", qv.UpperBound)
		}
		if qv.LowerBound != "" {
			fmt.Fprintf(b, " ;\n\twikibase:quantityLowerBound %s^^xsd:decimal", qv.LowerBound)
		}
		b.WriteString(" .\n")
	case entity.ValueGlobeCoordinate:
		gv := v.Globe
		fmt.Fprintf(b, "wdv:%s a wikibase:GlobecoordinateValue ;\n", hash)
		fmt.Fprintf(b, "\twikibase:geoLatitude %s^^xsd:double ;\n", quote(formatFloat(gv.Latitude)))
		fmt.Fprintf(b, "\twikibase:geoLongitude %s^^xsd:double ;\n", quote(formatFloat(gv.Longitude)))
		fmt.Fprintf(b, "\twikibase:geoPrecision %s^^xsd:double ;\n", quote(scientificNotation(gv.Precision)))
		fmt.Fprintf(b, "\twikibase:geoGlobe <%s> .\n", gv.Globe)
	}
}

func trackReferencedEntity(referenced map[string]bool, v entity.Value) {
	if v.Kind == entity.ValueEntity && v.String != "" {
		referenced[v.String] = true
	}
}

func (s *Serializer) writeIncomingRedirects(b *strings.Builder, entityID string) {
	froms := append([]string(nil), s.opts.IncomingRedirects...)
	sort.Strings(froms)
	for _, from := range froms {
		fmt.Fprintf(b, "wd:%s owl:sameAs wd:%s .\n", from, entityID)
	}
}

func (s *Serializer) writeReferencedEntities(b *strings.Builder, referenced map[string]bool) {
	for _, id := range sortedBoolKeys(referenced) {
		re, ok := s.opts.ReferencedEntities[id]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "wd:%s a wikibase:%s .\n", id, entityKindClass(re.Type))
		for _, lang := range sortedStringKeys(re.Labels) {
			label := re.Labels[lang]
			fmt.Fprintf(b, "wd:%s rdfs:label %s@%s .\n", id, quote(label), lang)
			fmt.Fprintf(b, "wd:%s skos:prefLabel %s@%s .\n", id, quote(label), lang)
			fmt.Fprintf(b, "wd:%s schema:name %s@%s .\n", id, quote(label), lang)
		}
		for _, lang := range sortedStringKeys(re.Descriptions) {
			fmt.Fprintf(b, "wd:%s schema:description %s@%s .\n", id, quote(re.Descriptions[lang]), lang)
		}
	}
}

// writePropertyOntology emits, per used property, the metadata block,
// predicate-type declarations, and no-value OWL class (spec.md §4.G).
func (s *Serializer) writePropertyOntology(b *strings.Builder, used map[string]bool) {
	for _, pid := range sortedBoolKeys(used) {
		shape, ok := s.opts.Properties.Shape(pid)
		if !ok {
			shape = NewPropertyShape(pid, "string")
		}
		writePropertyMetadata(b, shape)
		writePropertyObjectProperties(b, shape)
		writeNoValueClass(b, s.opts.RepositoryName, pid)
	}
}

func writePropertyMetadata(b *strings.Builder, shape PropertyShape) {
	fmt.Fprintf(b, "wd:%s a wikibase:Property ;\n", shape.PID)
	for _, lang := range sortedStringKeys(shape.Labels) {
		label := shape.Labels[lang]
		fmt.Fprintf(b, "\trdfs:label %s@%s ;\n", quote(label), lang)
		fmt.Fprintf(b, "\tskos:prefLabel %s@%s ;\n", quote(label), lang)
		fmt.Fprintf(b, "\tschema:name %s@%s ;\n", quote(label), lang)
	}
	for _, lang := range sortedStringKeys(shape.Descriptions) {
		fmt.Fprintf(b, "\tschema:description %s@%s ;\n", quote(shape.Descriptions[lang]), lang)
	}
	fmt.Fprintf(b, "\twikibase:propertyType <%s> ;\n", datatypeURI(shape.Datatype))
	fmt.Fprintf(b, "\twikibase:directClaim wdt:%s ;\n", shape.PID)
	fmt.Fprintf(b, "\twikibase:claim p:%s ;\n", shape.PID)
	fmt.Fprintf(b, "\twikibase:statementProperty ps:%s ;\n", shape.PID)
	if shape.Predicates.ValueNode != "" {
		fmt.Fprintf(b, "\twikibase:statementValue %s ;\n", shape.Predicates.ValueNode)
		fmt.Fprintf(b, "\twikibase:qualifierValue pqv:%s ;\n", shape.PID)
		fmt.Fprintf(b, "\twikibase:referenceValue prv:%s ;\n", shape.PID)
	}
	fmt.Fprintf(b, "\twikibase:qualifier pq:%s ;\n", shape.PID)
	fmt.Fprintf(b, "\twikibase:reference pr:%s ;\n", shape.PID)
	fmt.Fprintf(b, "\twikibase:novalue wdno:%s .\n", shape.PID)
}

func writePropertyObjectProperties(b *strings.Builder, shape PropertyShape) {
	pid := shape.PID
	fmt.Fprintf(b, "p:%s a owl:ObjectProperty .\n", pid)
	if shape.Predicates.ValueNode != "" {
		fmt.Fprintf(b, "psv:%s a owl:ObjectProperty .\n", pid)
		fmt.Fprintf(b, "pqv:%s a owl:ObjectProperty .\n", pid)
		fmt.Fprintf(b, "prv:%s a owl:ObjectProperty .\n", pid)
	}
	fmt.Fprintf(b, "wdt:%s a %s .\n", pid, OWLType(shape.Datatype))
	fmt.Fprintf(b, "ps:%s a owl:ObjectProperty .\n", pid)
	fmt.Fprintf(b, "pq:%s a owl:ObjectProperty .\n", pid)
	fmt.Fprintf(b, "pr:%s a owl:ObjectProperty .\n", pid)
}

func writeNoValueClass(b *strings.Builder, repositoryName, pid string) {
	blank := novalueBlankNode(repositoryName, pid)
	fmt.Fprintf(b, "wdno:%s a owl:Class ;\n", pid)
	fmt.Fprintf(b, "\towl:complementOf _:%s .\n", blank)
	fmt.Fprintf(b, "_:%s a owl:Restriction ;\n", blank)
	fmt.Fprintf(b, "\towl:onProperty wdt:%s ;\n", pid)
	fmt.Fprintf(b, "\towl:someValuesFrom owl:Thing .\n")
}

func sortedStringKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedAliasKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSitelinkKeys(m map[string]entity.Sitelink) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedClaimKeys(m map[string][]entity.Statement) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedBoolKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
