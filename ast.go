package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrorKind enumerates the spreadsheet error values, ordered so that a
// lower value wins when two error operands collide (spec §3).
type ErrorKind int

const (
	ErrParse ErrorKind = iota
	ErrCircRef
	ErrBadRef
	ErrBadName
	ErrValue
	ErrDivZero
)

var errorCanonical = map[ErrorKind]string{
	ErrParse:   "#ERROR!",
	ErrCircRef: "#CIRCREF!",
	ErrBadRef:  "#REF!",
	ErrBadName: "#NAME?",
	ErrValue:   "#VALUE!",
	ErrDivZero: "#DIV/0!",
}

var canonicalToError map[string]ErrorKind

func init() {
	canonicalToError = make(map[string]ErrorKind, len(errorCanonical))
	for k, v := range errorCanonical {
		canonicalToError[strings.ToUpper(v)] = k
	}
}

func (k ErrorKind) String() string {
	if s, ok := errorCanonical[k]; ok {
		return s
	}
	return "#ERROR!"
}

// ParseErrorLiteral recognizes one of the canonical error tokens
// (case-insensitive) and returns its kind.
func ParseErrorLiteral(s string) (ErrorKind, bool) {
	k, ok := canonicalToError[strings.ToUpper(strings.TrimSpace(s))]
	return k, ok
}

// ValueKind tags the union carried by Value.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindNumber
	KindString
	KindBool
	KindError
)

// Value is the tagged union described in spec §3: empty, number
// (arbitrary-precision decimal), string, boolean, or error.
type Value struct {
	Kind ValueKind
	Num  decimal.Decimal
	Str  string
	Bool bool
	Err  ErrorKind
}

func EmptyValue() Value                    { return Value{Kind: KindEmpty} }
func NumberValue(d decimal.Decimal) Value  { return Value{Kind: KindNumber, Num: d} }
func StringValue(s string) Value           { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value               { return Value{Kind: KindBool, Bool: b} }
func ErrorValue(k ErrorKind) Value         { return Value{Kind: KindError, Err: k} }
func IntValue(i int64) Value               { return NumberValue(decimal.NewFromInt(i)) }
func FloatValue(f float64) Value           { return NumberValue(decimal.NewFromFloat(f)) }

func (v Value) IsError() bool { return v.Kind == KindError }

// Render produces the display string for a value (spec §4.1 trailing-zero
// normalization for numbers, canonical upper-case text for errors).
func (v Value) Render() string {
	switch v.Kind {
	case KindEmpty:
		return ""
	case KindNumber:
		return canonicalDecimalText(v.Num)
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case KindError:
		return v.Err.String()
	default:
		return ""
	}
}

// CellKey identifies a fully-qualified (sheet, column, row) node in the
// dependency graph. Sheet is the case-folded lookup key, not the display
// name (spec §3: sheet names are unique case-insensitively).
type CellKey struct {
	Sheet string
	Col   uint32
	Row   uint32
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s!%s", k.Sheet, formatA1(k.Col, k.Row, false, false))
}

// BinOp enumerates binary operators, grouped by the precedence levels of
// spec §4.1 (comparison, concatenation, additive, multiplicative).
type BinOp int

const (
	OpEq BinOp = iota
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpConcat
	OpAdd
	OpSub
	OpMul
	OpDiv
)

var binOpText = map[BinOp]string{
	OpEq: "=", OpNe: "<>", OpLt: "<", OpGt: ">", OpLe: "<=", OpGe: ">=",
	OpConcat: "&", OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
}

// UnOp enumerates unary sign operators.
type UnOp int

const (
	UnPlus UnOp = iota
	UnMinus
)

// Node is an AST expression node. Eval is implemented in evaluator.go;
// String reconstructs formula text (used verbatim for rename-by-AST and
// for the copy/move/sort rewrites, spec §4.5).
type Node interface {
	Eval(ctx *EvalContext) (Value, error)
	String() string
}

// LiteralNode wraps a constant value with no dependencies.
type LiteralNode struct {
	Value Value
}

func (n *LiteralNode) String() string {
	switch n.Value.Kind {
	case KindString:
		return "\"" + strings.ReplaceAll(n.Value.Str, "\"", "\"\"") + "\""
	case KindBool:
		if n.Value.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return n.Value.Render()
	}
}

// RefNode is a single-cell reference, possibly sheet-qualified, with
// absolute markers on column and/or row (spec §3, §4.5).
type RefNode struct {
	Sheet     string // "" means unqualified: resolve against the owning cell's sheet
	Quoted    bool   // whether Sheet requires quoting on re-serialize
	Col       uint32
	Row       uint32
	ColAbs    bool
	RowAbs    bool
	OutOfRange bool // set by the parser when Col/Row exceed the addressable range
}

func (n *RefNode) String() string {
	body := formatA1(n.Col, n.Row, n.ColAbs, n.RowAbs)
	if n.OutOfRange {
		body = ErrBadRef.String()
	}
	if n.Sheet == "" {
		return body
	}
	return qualifySheet(n.Sheet, n.Quoted) + "!" + body
}

// RangeNode is a rectangular A1:B2 reference. The parser accepts it
// wherever a reference may appear; the evaluator expands it only as a
// function argument (spec §4.2), and Eval elsewhere yields #VALUE!.
type RangeNode struct {
	Sheet  string
	Quoted bool
	From   RefNode
	To     RefNode
}

func (n *RangeNode) Eval(ctx *EvalContext) (Value, error) {
	return ErrorValue(ErrValue), nil
}

func (n *RangeNode) String() string {
	prefix := ""
	if n.Sheet != "" {
		prefix = qualifySheet(n.Sheet, n.Quoted) + "!"
	}
	from := formatA1(n.From.Col, n.From.Row, n.From.ColAbs, n.From.RowAbs)
	to := formatA1(n.To.Col, n.To.Row, n.To.ColAbs, n.To.RowAbs)
	return prefix + from + ":" + to
}

// BinaryNode is a left-associative binary operator application.
type BinaryNode struct {
	Op    BinOp
	Left  Node
	Right Node
}

func (n *BinaryNode) String() string {
	return "(" + n.Left.String() + binOpText[n.Op] + n.Right.String() + ")"
}

// UnaryNode is a unary sign application.
type UnaryNode struct {
	Op      UnOp
	Operand Node
}

func (n *UnaryNode) String() string {
	sign := "+"
	if n.Op == UnMinus {
		sign = "-"
	}
	return sign + n.Operand.String()
}

// CallNode is a function call with a comma-separated argument list that
// may include RangeNode arguments for range-accepting functions.
type CallNode struct {
	Name string
	Args []Node
}

func (n *CallNode) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return n.Name + "(" + strings.Join(parts, ",") + ")"
}
