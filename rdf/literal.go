package rdf

import (
	"fmt"
	"strings"

	"entitystore.dev/entity"
)

var turtleEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeTurtleString(s string) string {
	return turtleEscaper.Replace(s)
}

func quote(s string) string {
	return `"` + escapeTurtleString(s) + `"`
}

// formatLiteral renders a non-structured value as the RDF term it appears
// as on the right-hand side of a ps:/pq:/pr:/wdt: triple. Structured
// kinds (time, quantity, globe-coordinate) also have a literal rendering
// here because the direct-claim and simple-statement-value triples use it
// even when the statement-value triple itself routes through a wdv: node
// (spec.md §4.G "Statement emission").
func formatLiteral(v entity.Value) (string, error) {
	switch v.Kind {
	case entity.ValueEntity:
		return "wd:" + v.String, nil
	case entity.ValueTime:
		if v.Time == nil {
			return "", fmt.Errorf("time value missing payload")
		}
		return quote(displayTime(v.Time)) + "^^xsd:dateTime", nil
	case entity.ValueQuantity:
		if v.Quantity == nil {
			return "", fmt.Errorf("quantity value missing payload")
		}
		return v.Quantity.Amount + "^^xsd:decimal", nil
	case entity.ValueGlobeCoordinate:
		if v.Globe == nil {
			return "", fmt.Errorf("globe coordinate value missing payload")
		}
		point := fmt.Sprintf("Point(%s %s)", formatFloat(v.Globe.Longitude), formatFloat(v.Globe.Latitude))
		return quote(point) + "^^geo:wktLiteral", nil
	case entity.ValueMonolingual:
		if v.Monolingual == nil {
			return "", fmt.Errorf("monolingual value missing payload")
		}
		return quote(v.Monolingual.Text) + "@" + v.Monolingual.Language, nil
	case entity.ValueNoValue:
		return "wikibase:noValue", nil
	case entity.ValueSomeValue:
		return "wikibase:someValue", nil
	default:
		// string, external-id, commons-media, geo-shape, tabular-data,
		// musical-notation, url, math, entity-schema all carry an opaque
		// string payload rendered as a plain quoted literal.
		return quote(v.String), nil
	}
}

func rankName(r entity.Rank) string {
	switch r {
	case entity.RankPreferred:
		return "PreferredRank"
	case entity.RankDeprecated:
		return "DeprecatedRank"
	default:
		return "NormalRank"
	}
}
