// Package rdf implements the Turtle Serializer (spec.md §4.G): converting
// one snapshot entity document into a Wikibase-compatible Turtle document,
// given a property-shape registry and optional caches for referenced
// entities and incoming redirects.
package rdf

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// PropertyPredicates names the RDF predicates a property's statements are
// emitted under. ValueNode/QualifierValue/ReferenceValue are empty for
// simple (non-structured) datatypes.
type PropertyPredicates struct {
	Direct         string
	Statement      string
	Qualifier      string
	Reference      string
	ValueNode      string
	QualifierValue string
	ReferenceValue string
}

// PropertyShape describes how one property's statements and ontology
// block are rendered (spec.md §4.G property-shape registry).
type PropertyShape struct {
	PID          string
	Datatype     string
	Predicates   PropertyPredicates
	Labels       map[string]string
	Descriptions map[string]string
}

var structuredDatatypes = map[string]bool{
	"time":             true,
	"quantity":         true,
	"globe-coordinate": true,
}

// NewPropertyShape builds the predicate set for pid/datatype, populating
// the value-node predicates only for datatypes the serializer must route
// through a wdv: node.
func NewPropertyShape(pid, datatype string) PropertyShape {
	p := PropertyPredicates{
		Direct:    "wdt:" + pid,
		Statement: "ps:" + pid,
		Qualifier: "pq:" + pid,
		Reference: "pr:" + pid,
	}
	if structuredDatatypes[datatype] {
		p.ValueNode = "psv:" + pid
		p.QualifierValue = "pqv:" + pid
		p.ReferenceValue = "prv:" + pid
	}
	return PropertyShape{PID: pid, Datatype: datatype, Predicates: p}
}

// objectPropertyDatatypes mirrors the original implementation's
// classification of which Wikibase datatypes map to owl:ObjectProperty
// rather than owl:DatatypeProperty for the wdt: declaration.
var objectPropertyDatatypes = map[string]bool{
	"wikibase-item":     true,
	"wikibase-property": true,
	"commonsmedia":      true,
	"string":            true,
	"url":               true,
	"math":              true,
	"geo-shape":         true,
	"monolingualtext":   true,
	"external-id":       true,
	"tabular-data":      true,
	"musical-notation":  true,
	"entity-schema":     true,
}

// OWLType returns the owl:ObjectProperty/owl:DatatypeProperty class for
// a property's wdt: declaration.
func OWLType(datatype string) string {
	if objectPropertyDatatypes[datatype] {
		return "owl:ObjectProperty"
	}
	return "owl:DatatypeProperty"
}

var datatypeURIs = map[string]string{
	"wikibase-item":      "http://wikiba.se/ontology#WikibaseItem",
	"wikibase-property":  "http://wikiba.se/ontology#WikibaseProperty",
	"wikibase-string":    "http://wikiba.se/ontology#String",
	"string":             "http://wikiba.se/ontology#String",
	"external-id":        "http://wikiba.se/ontology#ExternalId",
	"monolingualtext":    "http://wikiba.se/ontology#Monolingualtext",
	"commonsmedia":       "http://wikiba.se/ontology#CommonsMedia",
	"globe-coordinate":   "http://wikiba.se/ontology#Globecoordinate",
	"quantity":           "http://wikiba.se/ontology#Quantity",
	"url":                "http://wikiba.se/ontology#Url",
	"math":               "http://wikiba.se/ontology#Math",
	"time":               "http://wikiba.se/ontology#Time",
	"geo-shape":          "http://wikiba.se/ontology#GeoShape",
	"tabular-data":       "http://wikiba.se/ontology#TabularData",
	"musical-notation":   "http://wikiba.se/ontology#Musicalnotation",
	"entity-schema":      "http://wikiba.se/ontology#EntitySchema",
}

func datatypeURI(datatype string) string {
	if uri, ok := datatypeURIs[datatype]; ok {
		return uri
	}
	return datatypeURIs["string"]
}

// Registry holds the property shapes the serializer consults when it
// emits each referenced property's ontology block.
type Registry struct {
	mu     sync.RWMutex
	shapes map[string]PropertyShape
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[string]PropertyShape)}
}

// Put registers or replaces shape under shape.PID.
func (r *Registry) Put(shape PropertyShape) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes[shape.PID] = shape
}

// Shape returns the registered shape for pid, if any.
func (r *Registry) Shape(pid string) (PropertyShape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shapes[pid]
	return s, ok
}

// propertyRecord is the on-disk shape of one property definition consumed
// by LoadRegistry.
type propertyRecord struct {
	ID           string                       `json:"id"`
	Datatype     string                       `json:"datatype"`
	Labels       map[string]string            `json:"labels"`
	Descriptions map[string]string            `json:"descriptions"`
}

// LoadRegistry reads a JSON array of property definitions (id, datatype,
// labels, descriptions) and builds a Registry from them.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var records []propertyRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode property registry: %w", err)
	}
	reg := NewRegistry()
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		datatype := rec.Datatype
		if datatype == "" {
			datatype = "string"
		}
		shape := NewPropertyShape(rec.ID, datatype)
		shape.Labels = rec.Labels
		shape.Descriptions = rec.Descriptions
		reg.Put(shape)
	}
	return reg, nil
}
