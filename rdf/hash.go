package rdf

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"entitystore.dev/entity"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// displayTime returns the time value as it appears in emitted Turtle: the
// leading '+' is dropped when timezone is UTC (0), matching how a
// Wikibase dump renders local time without a redundant sign.
func displayTime(tv *entity.TimeValue) string {
	v := tv.Value
	if tv.Timezone == 0 && strings.HasPrefix(v, "+") {
		return v[1:]
	}
	return v
}

// canonicalTime builds the exact string fed to MD5 for a time value
// (spec.md §4.G "Canonical value serialisation").
func canonicalTime(tv *entity.TimeValue) string {
	var b strings.Builder
	b.WriteString("t:")
	b.WriteString(displayTime(tv))
	b.WriteString(":")
	b.WriteString(strconv.Itoa(tv.Precision))
	b.WriteString(":")
	b.WriteString(strconv.Itoa(tv.Timezone))
	if tv.Before != 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(tv.Before))
	}
	if tv.After != 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(tv.After))
	}
	b.WriteString(":")
	b.WriteString(tv.CalendarModel)
	return b.String()
}

// canonicalQuantity builds the canonical hash input for a quantity value.
func canonicalQuantity(qv *entity.QuantityValue) string {
	s := "q:" + qv.Amount + ":" + qv.Unit
	if qv.UpperBound != "" {
		s += ":" + qv.UpperBound
	}
	if qv.LowerBound != "" {
		s += ":" + qv.LowerBound
	}
	return s
}

// formatFloat renders a float the way a caller-supplied decimal would
// naturally print: no forced precision, no exponent for plain values.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// scientificNotation renders v in scientific notation with one digit after
// the decimal point and no leading zero in the exponent ("1.0E-5", not
// "1.0E-05"), as spec.md §4.G's "Number formatting" rule requires.
func scientificNotation(v float64) string {
	s := strconv.FormatFloat(v, 'E', 1, 64)
	idx := strings.IndexByte(s, 'E')
	if idx < 0 {
		return s
	}
	mantissa, rest := s[:idx+1], s[idx+1:]
	if len(rest) > 2 && (rest[0] == '+' || rest[0] == '-') && rest[1] == '0' {
		rest = string(rest[0]) + rest[2:]
	}
	return mantissa + rest
}

// canonicalGlobe builds the canonical hash input for a globe-coordinate
// value.
func canonicalGlobe(gv *entity.GlobeCoordinateValue) string {
	return fmt.Sprintf("g:%s:%s:%s:%s",
		formatFloat(gv.Latitude), formatFloat(gv.Longitude),
		scientificNotation(gv.Precision), gv.Globe)
}

// valueNodeHash computes the MD5 hash used as a wdv: URI's local name.
// Only structured kinds (time, quantity, globe-coordinate) reach this;
// callers must check Value.IsStructured first.
func valueNodeHash(v entity.Value) (string, error) {
	switch v.Kind {
	case entity.ValueTime:
		return md5Hex(canonicalTime(v.Time)), nil
	case entity.ValueQuantity:
		return md5Hex(canonicalQuantity(v.Quantity)), nil
	case entity.ValueGlobeCoordinate:
		return md5Hex(canonicalGlobe(v.Globe)), nil
	default:
		return "", fmt.Errorf("value kind %q has no value node", v.Kind)
	}
}

// novalueBlankNode generates the stable blank-node local name for a
// property's wdno: OWL restriction (spec.md §4.G "No-value classes"),
// matching Wikibase's md5("owl:complementOf-<repo>-<pid>") algorithm.
func novalueBlankNode(repositoryName, pid string) string {
	return md5Hex("owl:complementOf-" + repositoryName + "-" + pid)
}

// statementLocalName turns a statement GUID into the wds: local name,
// replacing every '$' with '-' (spec.md §4.G "URI construction").
func statementLocalName(statementID string) string {
	return strings.ReplaceAll(statementID, "$", "-")
}
