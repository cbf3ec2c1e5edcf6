package spreadsheet

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ParseError reports a formula grammar failure; it always surfaces to
// the caller as a PARSE cell value (spec §4.1), never as a Go panic.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Message)
}

// grammarTable holds the token-to-operator mappings for each precedence
// level. It is built exactly once per process (spec §4.1, §9) and shared
// immutably by every Parser, mirroring the teacher's "grammar table
// constructed once at process initialization" resource rule (spec §5).
type grammarTable struct {
	comparisonOps map[TokenType]BinOp
	additiveOps   map[TokenType]BinOp
	multiplyOps   map[TokenType]BinOp
}

var (
	grammarOnce  sync.Once
	grammarTbl   *grammarTable
	rangeFuncSet map[string]bool
)

func buildGrammar() *grammarTable {
	return &grammarTable{
		comparisonOps: map[TokenType]BinOp{
			TokEq: OpEq, TokEqEq: OpEq, TokNe: OpNe,
			TokLt: OpLt, TokGt: OpGt, TokLe: OpLe, TokGe: OpGe,
		},
		additiveOps: map[TokenType]BinOp{
			TokPlus: OpAdd, TokMinus: OpSub,
		},
		multiplyOps: map[TokenType]BinOp{
			TokStar: OpMul, TokSlash: OpDiv,
		},
	}
}

func grammar() *grammarTable {
	grammarOnce.Do(func() {
		grammarTbl = buildGrammar()
		rangeFuncSet = map[string]bool{
			"SUM": true, "AVERAGE": true, "AVERAGEA": true, "MIN": true, "MAX": true,
			"COUNT": true, "COUNTA": true, "HLOOKUP": true, "VLOOKUP": true,
			"MEDIAN": true, "MODE": true,
		}
	})
	return grammarTbl
}

// FunctionAcceptsRanges reports whether name's argument list may contain
// bare A1:B2 range arguments (spec §4.2).
func FunctionAcceptsRanges(name string) bool {
	grammar()
	return rangeFuncSet[strings.ToUpper(name)]
}

// Parser is a precedence-climbing recursive-descent parser over a
// pre-lexed token stream. Amortized O(n) in the formula length: each
// token is consumed exactly once per precedence level it passes through,
// and the grammar table lookups are O(1) map accesses (spec §4.1).
type Parser struct {
	tokens []Token
	pos    int
	g      *grammarTable
}

func NewParser(tokens []Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokEOF {
		tokens = append(tokens, Token{Type: TokEOF})
	}
	return &Parser{tokens: tokens, g: grammar()}
}

func (p *Parser) cur() Token { return p.tokens[p.pos] }

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	if p.cur().Type != tt {
		return Token{}, &ParseError{Pos: p.cur().Pos, Message: "expected " + what}
	}
	return p.advance(), nil
}

// ParseFormula parses the expression body following a leading "=".
func ParseFormula(body string) (Node, error) {
	tokens, err := Tokenize(body)
	if err != nil {
		le := err.(*LexError)
		return nil, &ParseError{Pos: le.Pos, Message: le.Message}
	}
	p := NewParser(tokens)
	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != TokEOF {
		return nil, &ParseError{Pos: p.cur().Pos, Message: "unexpected trailing input"}
	}
	return node, nil
}

// parseComparison is the lowest-precedence level (spec §4.1).
func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.g.comparisonOps[p.cur().Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

// parseConcatenation handles "&", sitting between comparison and additive.
func (p *Parser) parseConcatenation() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokAmp {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: OpConcat, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.g.additiveOps[p.cur().Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.g.multiplyOps[p.cur().Type]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Node, error) {
	switch p.cur().Type {
	case TokPlus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: UnPlus, Operand: operand}, nil
	case TokMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: UnMinus, Operand: operand}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.cur()
	switch tok.Type {
	case TokLParen:
		p.advance()
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokNumber:
		p.advance()
		d, derr := decimal.NewFromString(normalizeNumericText(tok.Text))
		if derr != nil {
			return nil, &ParseError{Pos: tok.Pos, Message: "invalid number"}
		}
		return &LiteralNode{Value: NumberValue(d)}, nil
	case TokString:
		p.advance()
		return &LiteralNode{Value: StringValue(tok.Text)}, nil
	case TokErrorLiteral:
		p.advance()
		k, ok := ParseErrorLiteral(tok.Text)
		if !ok {
			return nil, &ParseError{Pos: tok.Pos, Message: "unrecognized error literal"}
		}
		return &LiteralNode{Value: ErrorValue(k)}, nil
	case TokQuotedSheet:
		p.advance()
		return p.parseQualifiedRef(tok.Text, true)
	case TokWord:
		return p.parseWord()
	}
	return nil, &ParseError{Pos: tok.Pos, Message: "unexpected token"}
}

// parseWord handles a bare identifier-shaped token: TRUE/FALSE, a
// function call, a sheet qualifier, or a cell/range reference.
func (p *Parser) parseWord() (Node, error) {
	tok := p.advance()
	upper := strings.ToUpper(tok.Text)

	if p.cur().Type == TokBang {
		p.advance()
		return p.parseQualifiedRef(tok.Text, false)
	}

	if p.cur().Type == TokLParen {
		return p.parseCall(tok.Text)
	}

	switch upper {
	case "TRUE":
		return &LiteralNode{Value: BoolValue(true)}, nil
	case "FALSE":
		return &LiteralNode{Value: BoolValue(false)}, nil
	}

	return p.parseCellOrRange("", false, tok)
}

// parseQualifiedRef parses the `!<cell>` or `!<cell>:<cell>` suffix
// following a sheet name (bare or quoted).
func (p *Parser) parseQualifiedRef(sheet string, quoted bool) (Node, error) {
	tok, err := p.expect(TokWord, "cell reference")
	if err != nil {
		return nil, err
	}
	return p.parseCellOrRange(sheet, quoted, tok)
}

// parseCellOrRange parses a single WORD token as a cell address, then
// optionally consumes ":" + another address to form a range.
func (p *Parser) parseCellOrRange(sheet string, quoted bool, tok Token) (Node, error) {
	col, row, colAbs, rowAbs, ok := ParseCellAddress(tok.Text)
	if !ok {
		return nil, &ParseError{Pos: tok.Pos, Message: "invalid cell reference " + tok.Text}
	}
	from := RefNode{
		Sheet: sheet, Quoted: quoted, Col: col, Row: row,
		ColAbs: colAbs, RowAbs: rowAbs, OutOfRange: !InRange(col, row),
	}

	if p.cur().Type != TokColon {
		return &from, nil
	}
	p.advance()
	tok2, err := p.expect(TokWord, "cell reference")
	if err != nil {
		return nil, err
	}
	col2, row2, colAbs2, rowAbs2, ok := ParseCellAddress(tok2.Text)
	if !ok {
		return nil, &ParseError{Pos: tok2.Pos, Message: "invalid cell reference " + tok2.Text}
	}
	to := RefNode{
		Sheet: sheet, Quoted: quoted, Col: col2, Row: row2,
		ColAbs: colAbs2, RowAbs: rowAbs2, OutOfRange: !InRange(col2, row2),
	}
	rn := NormalizeRange(RangeNode{Sheet: sheet, Quoted: quoted, From: from, To: to})
	return &rn, nil
}

// parseCall parses `NAME(args)` where args is a comma-separated list of
// expressions and/or cell ranges (spec §4.1). The parser accepts a range
// anywhere a reference may appear; only a range that is itself an argument
// is expanded by the evaluator, and any other range evaluates to #VALUE!.
func (p *Parser) parseCall(name string) (Node, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []Node
	if p.cur().Type != TokRParen {
		for {
			arg, err := p.parseArgument()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur().Type != TokComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return &CallNode{Name: name, Args: args}, nil
}

// parseArgument parses one function argument: a full expression, which
// may itself be a bare range reference.
func (p *Parser) parseArgument() (Node, error) {
	return p.parseComparison()
}

// normalizeNumericText strips a trailing run of zero fractional digits
// (and a bare trailing decimal point) so the parsed decimal's own scale
// already matches the display-normalized form (spec §4.1).
func normalizeNumericText(s string) string {
	if !strings.Contains(s, ".") || strings.ContainsAny(s, "eE") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		s += "0"
	}
	return s
}
