package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFormulaPrecedence(t *testing.T) {
	node, err := ParseFormula("1+2*3")
	require.NoError(t, err)
	require.Equal(t, "(1+(2*3))", node.String())
}

func TestParseFormulaComparisonIsLowestPrecedence(t *testing.T) {
	node, err := ParseFormula("1+2=3&\"x\"")
	require.NoError(t, err)
	require.Equal(t, "((1+2)=(3&\"x\"))", node.String())
}

func TestParseFormulaUnaryMinus(t *testing.T) {
	node, err := ParseFormula("-2*3")
	require.NoError(t, err)
	require.Equal(t, "(-2*3)", node.String())
}

func TestParseFormulaParenthesizedOverridesPrecedence(t *testing.T) {
	node, err := ParseFormula("(1+2)*3")
	require.NoError(t, err)
	require.Equal(t, "((1+2)*3)", node.String())
}

func TestParseFormulaQualifiedRef(t *testing.T) {
	node, err := ParseFormula("Sheet2!A1")
	require.NoError(t, err)
	ref, ok := node.(*RefNode)
	require.True(t, ok)
	require.Equal(t, "Sheet2", ref.Sheet)
	require.Equal(t, uint32(1), ref.Col)
	require.Equal(t, uint32(1), ref.Row)
}

func TestParseFormulaQuotedSheetRef(t *testing.T) {
	node, err := ParseFormula("'My Sheet'!A1")
	require.NoError(t, err)
	ref, ok := node.(*RefNode)
	require.True(t, ok)
	require.Equal(t, "My Sheet", ref.Sheet)
	require.True(t, ref.Quoted)
}

func TestParseFormulaAbsoluteRef(t *testing.T) {
	node, err := ParseFormula("$A$1")
	require.NoError(t, err)
	ref, ok := node.(*RefNode)
	require.True(t, ok)
	require.True(t, ref.ColAbs)
	require.True(t, ref.RowAbs)
}

func TestParseFormulaRange(t *testing.T) {
	node, err := ParseFormula("SUM(A1:B2)")
	require.NoError(t, err)
	call, ok := node.(*CallNode)
	require.True(t, ok)
	require.Equal(t, "SUM", call.Name)
	require.Len(t, call.Args, 1)
	_, ok = call.Args[0].(*RangeNode)
	require.True(t, ok)
}

func TestParseFormulaFunctionCallMultipleArgs(t *testing.T) {
	node, err := ParseFormula("IF(A1>0,1,-1)")
	require.NoError(t, err)
	call, ok := node.(*CallNode)
	require.True(t, ok)
	require.Equal(t, "IF", call.Name)
	require.Len(t, call.Args, 3)
}

func TestParseFormulaBooleanLiterals(t *testing.T) {
	node, err := ParseFormula("TRUE")
	require.NoError(t, err)
	lit, ok := node.(*LiteralNode)
	require.True(t, ok)
	require.Equal(t, KindBool, lit.Value.Kind)
	require.True(t, lit.Value.Bool)
}

func TestParseFormulaErrorLiteral(t *testing.T) {
	node, err := ParseFormula("#DIV/0!")
	require.NoError(t, err)
	lit, ok := node.(*LiteralNode)
	require.True(t, ok)
	require.Equal(t, KindError, lit.Value.Kind)
	require.Equal(t, ErrDivZero, lit.Value.Err)
}

func TestParseFormulaUnexpectedTrailingInput(t *testing.T) {
	_, err := ParseFormula("1 1")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseFormulaOutOfRangeCellReference(t *testing.T) {
	node, err := ParseFormula("ZZZZZZ99999999")
	require.NoError(t, err)
	ref, ok := node.(*RefNode)
	require.True(t, ok)
	require.True(t, ref.OutOfRange)
	require.Equal(t, "#REF!", ref.String())
}

func TestParseFormulaMalformedCellReference(t *testing.T) {
	_, err := ParseFormula("1A")
	require.Error(t, err)
}

func TestFunctionAcceptsRanges(t *testing.T) {
	require.True(t, FunctionAcceptsRanges("sum"))
	require.True(t, FunctionAcceptsRanges("VLOOKUP"))
	require.False(t, FunctionAcceptsRanges("IF"))
}
