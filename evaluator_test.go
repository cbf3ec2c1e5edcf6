package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustCell(t *testing.T, store *CellStore, sheetKey string, col, row uint32, raw string) {
	t.Helper()
	parsed := ParseContents(raw)
	c := &Cell{Loc: CellKey{Sheet: sheetKey, Col: col, Row: row}, Contents: &raw}
	if parsed.IsFormula {
		c.AST = parsed.AST
		c.ParseErr = parsed.ParseErr
		registry := NewDefaultFunctionRegistry()
		v, deps, volatile, _ := EvalFormula(store, registry, c.Loc, parsed.AST)
		c.Value = v
		c.Deps = deps
		c.Volatile = volatile
	} else {
		c.Value = parsed.Literal
		c.Deps = make(map[CellKey]struct{})
	}
	store.setCell(c.Loc, c)
}

func TestEvalLazyIfExcludesUntakenBranchDeps(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	mustCell(t, store, "sheet1", 2, 1, "99") // B1
	ast, err := ParseFormula(`IF(TRUE,1,B1)`)
	require.NoError(t, err)

	registry := NewDefaultFunctionRegistry()
	v, deps, _, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 1, Row: 1}, ast)
	require.NoError(t, err)
	require.Equal(t, "1", v.Render())
	_, hasB1 := deps[CellKey{Sheet: "sheet1", Col: 2, Row: 1}]
	require.False(t, hasB1, "untaken IF branch must not contribute a dependency")
}

func TestEvalLazyIfFalseBranchDependsOnUnresolvedRef(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	ast, err := ParseFormula(`IF(FALSE,1,B1)`)
	require.NoError(t, err)

	registry := NewDefaultFunctionRegistry()
	v, deps, _, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 1, Row: 1}, ast)
	require.NoError(t, err)
	require.Equal(t, "", v.Render()) // B1 is empty
	_, hasB1 := deps[CellKey{Sheet: "sheet1", Col: 2, Row: 1}]
	require.True(t, hasB1)
}

func TestEvalAndShortCircuitsOnFirstFalse(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	ast, err := ParseFormula(`AND(FALSE,1/0=1)`)
	require.NoError(t, err)
	registry := NewDefaultFunctionRegistry()
	v, _, _, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 1, Row: 1}, ast)
	require.NoError(t, err)
	require.False(t, v.Bool)
}

func TestEvalIndirectIsVolatileAndTracksDynamicDep(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	mustCell(t, store, "sheet1", 3, 1, "77") // C1
	mustCell(t, store, "sheet1", 2, 1, "C1")
	ast, err := ParseFormula(`INDIRECT(B1)`)
	require.NoError(t, err)
	registry := NewDefaultFunctionRegistry()
	v, deps, volatile, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 1, Row: 1}, ast)
	require.NoError(t, err)
	require.Equal(t, "77", v.Render())
	require.True(t, volatile)
	_, hasC1 := deps[CellKey{Sheet: "sheet1", Col: 3, Row: 1}]
	require.True(t, hasC1)
}

func TestFormulaReferencesIndirectDetectsNestedCall(t *testing.T) {
	ast, err := ParseFormula(`SUM(1, INDIRECT("A1"))`)
	require.NoError(t, err)
	require.True(t, formulaReferencesIndirect(ast))

	ast2, err := ParseFormula(`SUM(1,2)`)
	require.NoError(t, err)
	require.False(t, formulaReferencesIndirect(ast2))
}

func TestEvalErrorPropagationThroughArithmetic(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	ast, err := ParseFormula(`1/0 + 1`)
	require.NoError(t, err)
	registry := NewDefaultFunctionRegistry()
	v, _, _, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 1, Row: 1}, ast)
	require.NoError(t, err)
	require.True(t, v.IsError())
	require.Equal(t, ErrDivZero, v.Err)
}

func TestEvalUnknownFunctionIsBadName(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	ast, err := ParseFormula(`NOPE(1)`)
	require.NoError(t, err)
	registry := NewDefaultFunctionRegistry()
	v, _, _, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 1, Row: 1}, ast)
	require.NoError(t, err)
	require.True(t, v.IsError())
	require.Equal(t, ErrBadName, v.Err)
}

func TestEvalRangeSumAddsDeps(t *testing.T) {
	store := NewCellStore()
	store.CreateSheet("Sheet1")
	mustCell(t, store, "sheet1", 1, 1, "1")
	mustCell(t, store, "sheet1", 1, 2, "2")
	mustCell(t, store, "sheet1", 1, 3, "3")
	ast, err := ParseFormula(`SUM(A1:A3)`)
	require.NoError(t, err)
	registry := NewDefaultFunctionRegistry()
	v, deps, _, err := EvalFormula(store, registry, CellKey{Sheet: "sheet1", Col: 2, Row: 1}, ast)
	require.NoError(t, err)
	require.Equal(t, "6", v.Render())
	require.Len(t, deps, 3)
}
