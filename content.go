package spreadsheet

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsedContents is the result of classifying and parsing one cell's raw
// contents string (spec §3/§4.1): either a formula AST, or a literal
// value with no AST at all.
type ParsedContents struct {
	IsFormula bool
	AST       Node
	ParseErr  bool
	Literal   Value
}

// ParseContents classifies raw as formula or literal and parses it
// accordingly. A leading "=" makes it a formula; an unparsable formula
// body still returns IsFormula=true with ParseErr=true so the caller can
// install a PARSE-valued cell with no AST (spec §4.1 line 48).
func ParseContents(raw string) ParsedContents {
	if strings.HasPrefix(raw, "=") {
		ast, err := ParseFormula(raw[1:])
		if err != nil {
			return ParsedContents{IsFormula: true, ParseErr: true}
		}
		return ParsedContents{IsFormula: true, AST: ast}
	}
	return ParsedContents{Literal: ParseLiteral(raw)}
}

// ParseLiteral classifies non-formula contents per spec §4.1: a decimal
// number if it matches the numeric lexeme, an error literal if it
// matches, a boolean if it matches TRUE/FALSE, otherwise the raw string
// trimmed of surrounding whitespace.
func ParseLiteral(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StringValue(trimmed)
	}
	if k, ok := ParseErrorLiteral(trimmed); ok {
		return ErrorValue(k)
	}
	switch strings.ToUpper(trimmed) {
	case "TRUE":
		return BoolValue(true)
	case "FALSE":
		return BoolValue(false)
	}
	if d, err := decimal.NewFromString(trimmed); err == nil {
		return NumberValue(d)
	}
	return StringValue(trimmed)
}
