package entity

import "fmt"

// ValueKind discriminates the Value tagged union. Each kind corresponds to
// a Wikibase datatype family (spec.md §3 "Value (tagged union)").
type ValueKind string

const (
	ValueEntity          ValueKind = "entity"
	ValueString          ValueKind = "string"
	ValueTime            ValueKind = "time"
	ValueQuantity        ValueKind = "quantity"
	ValueGlobeCoordinate ValueKind = "globe-coordinate"
	ValueMonolingual     ValueKind = "monolingual"
	ValueExternalID      ValueKind = "external-id"
	ValueCommonsMedia    ValueKind = "commons-media"
	ValueGeoShape        ValueKind = "geo-shape"
	ValueTabularData     ValueKind = "tabular-data"
	ValueMusicalNotation ValueKind = "musical-notation"
	ValueURL             ValueKind = "url"
	ValueMath            ValueKind = "math"
	ValueEntitySchema    ValueKind = "entity-schema"
	ValueNoValue         ValueKind = "novalue"
	ValueSomeValue       ValueKind = "somevalue"
)

// TimeValue carries the fields of a Wikibase time value. Precision ranges
// 0 (billion years) through 14 (seconds); Before/After are uncertainty
// intervals in the same unit as Precision.
type TimeValue struct {
	Value         string `json:"value"` // e.g. "+2024-01-15T00:00:00Z"
	Timezone      int    `json:"timezone"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
	Precision     int    `json:"precision"`
	CalendarModel string `json:"calendarmodel"`
}

// QuantityValue carries a decimal amount with unit and optional bounds.
// Amount/UpperBound/LowerBound are kept as strings to preserve the exact
// decimal representation the caller supplied (no float rounding).
type QuantityValue struct {
	Amount     string `json:"amount"`
	Unit       string `json:"unit"`
	UpperBound string `json:"upperBound,omitempty"`
	LowerBound string `json:"lowerBound,omitempty"`
}

// GlobeCoordinateValue carries a point on a globe with a precision and the
// globe it is defined on (usually Earth's IRI).
type GlobeCoordinateValue struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Precision float64 `json:"precision"`
	Globe     string  `json:"globe"`
}

// MonolingualTextValue carries text tagged with a single language.
type MonolingualTextValue struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Value is the tagged union of every Wikibase datatype this store
// transports. Exactly the fields relevant to Kind are populated; the rest
// are zero. A constructor per variant keeps callers from hand-assembling
// an inconsistent Value.
type Value struct {
	Kind ValueKind `json:"kind"`

	// ValueEntity, ValueString, ValueExternalID, ValueCommonsMedia,
	// ValueGeoShape, ValueTabularData, ValueMusicalNotation, ValueURL,
	// ValueMath, ValueEntitySchema all carry their payload as a single
	// opaque string (entity ID, literal string, file title, URL, ...).
	String string `json:"string,omitempty"`

	Time       *TimeValue            `json:"time,omitempty"`
	Quantity   *QuantityValue        `json:"quantity,omitempty"`
	Globe      *GlobeCoordinateValue `json:"globe,omitempty"`
	Monolingual *MonolingualTextValue `json:"monolingual,omitempty"`
}

func NewEntityValue(id string) Value       { return Value{Kind: ValueEntity, String: id} }
func NewStringValue(s string) Value        { return Value{Kind: ValueString, String: s} }
func NewExternalIDValue(s string) Value    { return Value{Kind: ValueExternalID, String: s} }
func NewCommonsMediaValue(s string) Value  { return Value{Kind: ValueCommonsMedia, String: s} }
func NewGeoShapeValue(s string) Value      { return Value{Kind: ValueGeoShape, String: s} }
func NewTabularDataValue(s string) Value   { return Value{Kind: ValueTabularData, String: s} }
func NewMusicalNotationValue(s string) Value {
	return Value{Kind: ValueMusicalNotation, String: s}
}
func NewURLValue(s string) Value          { return Value{Kind: ValueURL, String: s} }
func NewMathValue(s string) Value         { return Value{Kind: ValueMath, String: s} }
func NewEntitySchemaValue(s string) Value { return Value{Kind: ValueEntitySchema, String: s} }
func NewNoValue() Value                   { return Value{Kind: ValueNoValue} }
func NewSomeValue() Value                 { return Value{Kind: ValueSomeValue} }

func NewTimeValue(tv TimeValue) Value             { return Value{Kind: ValueTime, Time: &tv} }
func NewQuantityValue(qv QuantityValue) Value      { return Value{Kind: ValueQuantity, Quantity: &qv} }
func NewGlobeValue(gv GlobeCoordinateValue) Value  { return Value{Kind: ValueGlobeCoordinate, Globe: &gv} }
func NewMonolingualValue(mv MonolingualTextValue) Value {
	return Value{Kind: ValueMonolingual, Monolingual: &mv}
}

// IsStructured reports whether this value requires a value-node (wdv:...)
// in the Turtle serialization rather than a plain literal/URI.
func (v Value) IsStructured() bool {
	switch v.Kind {
	case ValueTime, ValueQuantity, ValueGlobeCoordinate:
		return true
	default:
		return false
	}
}

// Validate performs the small pure structural checks spec.md §9 calls for
// ("struct + constructor-side validation"): precision ranges, required
// sub-fields, no embedded newlines in monolingual text.
func (v Value) Validate() error {
	switch v.Kind {
	case ValueTime:
		if v.Time == nil {
			return BadRequest("time value missing payload")
		}
		if v.Time.Precision < 0 || v.Time.Precision > 14 {
			return BadRequest(fmt.Sprintf("time precision %d out of range 0..14", v.Time.Precision))
		}
		if v.Time.CalendarModel == "" {
			return BadRequest("time value missing calendarmodel")
		}
	case ValueQuantity:
		if v.Quantity == nil {
			return BadRequest("quantity value missing payload")
		}
		if v.Quantity.Amount == "" {
			return BadRequest("quantity value missing amount")
		}
	case ValueGlobeCoordinate:
		if v.Globe == nil {
			return BadRequest("globe coordinate value missing payload")
		}
		if v.Globe.Globe == "" {
			return BadRequest("globe coordinate value missing globe")
		}
	case ValueMonolingual:
		if v.Monolingual == nil {
			return BadRequest("monolingual value missing payload")
		}
		for _, r := range v.Monolingual.Text {
			if r == '\n' || r == '\r' {
				return BadRequest("monolingual text must not contain newlines")
			}
		}
		if v.Monolingual.Language == "" {
			return BadRequest("monolingual value missing language")
		}
	case ValueNoValue, ValueSomeValue:
		// no payload expected
	default:
		if v.String == "" {
			return BadRequest(fmt.Sprintf("%s value missing payload", v.Kind))
		}
	}
	return nil
}
