package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setContents(t *testing.T, e *Engine, sheet, addr, contents string) []ChangedCell {
	t.Helper()
	col, row, _, _, ok := ParseCellAddress(addr)
	require.True(t, ok)
	changes, err := e.SetCellContents(sheet, col, row, &contents)
	require.NoError(t, err)
	return changes
}

func getValue(t *testing.T, e *Engine, sheet, addr string) Value {
	t.Helper()
	col, row, _, _, ok := ParseCellAddress(addr)
	require.True(t, ok)
	v, err := e.GetCellValue(sheet, col, row)
	require.NoError(t, err)
	return v
}

func TestSchedulerPropagatesThroughChain(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "1")
	setContents(t, e, "Sheet1", "A2", "=A1+1")
	setContents(t, e, "Sheet1", "A3", "=A2*10")
	require.Equal(t, "20", getValue(t, e, "Sheet1", "A3").Render())

	setContents(t, e, "Sheet1", "A1", "5")
	require.Equal(t, "60", getValue(t, e, "Sheet1", "A3").Render())
}

func TestSchedulerDirectCycleYieldsCircRef(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "=B1")
	setContents(t, e, "Sheet1", "B1", "=A1")

	require.True(t, getValue(t, e, "Sheet1", "A1").IsError())
	require.Equal(t, ErrCircRef, getValue(t, e, "Sheet1", "A1").Err)
	require.Equal(t, ErrCircRef, getValue(t, e, "Sheet1", "B1").Err)
}

func TestSchedulerSelfReferenceYieldsCircRef(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "=A1+1")
	require.True(t, getValue(t, e, "Sheet1", "A1").IsError())
	require.Equal(t, ErrCircRef, getValue(t, e, "Sheet1", "A1").Err)
}

func TestSchedulerIfFalseBranchAvoidsCycleWhenUntaken(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "=IF(TRUE,1,A1)")
	v := getValue(t, e, "Sheet1", "A1")
	require.False(t, v.IsError())
	require.Equal(t, "1", v.Render())
}

func TestSchedulerIfTakenBranchStillCycles(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "=IF(FALSE,1,A1)")
	v := getValue(t, e, "Sheet1", "A1")
	require.True(t, v.IsError())
	require.Equal(t, ErrCircRef, v.Err)
}

func TestSchedulerDivZeroPropagatesAndIsErrorDetects(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "0")
	setContents(t, e, "Sheet1", "B1", "=10/A1")
	setContents(t, e, "Sheet1", "C1", "=B1+1")
	setContents(t, e, "Sheet1", "D1", "=ISERROR(C1)")

	require.Equal(t, ErrDivZero, getValue(t, e, "Sheet1", "B1").Err)
	require.Equal(t, ErrDivZero, getValue(t, e, "Sheet1", "C1").Err)
	require.True(t, getValue(t, e, "Sheet1", "D1").Bool)
}

func TestSchedulerCallbackReceivesDedupedChanges(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "1")
	setContents(t, e, "Sheet1", "B1", "=A1+1")
	setContents(t, e, "Sheet1", "C1", "=A1+2")

	var seen []ChangedCell
	e.RegisterChangeCallback("watcher", func(changes []ChangedCell) {
		seen = append(seen, changes...)
	})
	setContents(t, e, "Sheet1", "A1", "10")

	require.NotEmpty(t, seen)
	locs := make(map[CellKey]bool)
	for _, c := range seen {
		locs[c.Location] = true
	}
	require.True(t, locs[ck("sheet1", 1, 1)])
	require.True(t, locs[ck("sheet1", 2, 1)])
	require.True(t, locs[ck("sheet1", 3, 1)])
}

func TestSchedulerCallbackPanicIsSwallowedAndOthersStillRun(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	var ran bool
	e.RegisterChangeCallback("bad", func(changes []ChangedCell) { panic("boom") })
	e.RegisterChangeCallback("good", func(changes []ChangedCell) { ran = true })

	require.NotPanics(t, func() {
		setContents(t, e, "Sheet1", "A1", "1")
	})
	require.True(t, ran)
}

func TestSchedulerUnregisterCallbackStopsDelivery(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	calls := 0
	e.RegisterChangeCallback("watcher", func(changes []ChangedCell) { calls++ })
	setContents(t, e, "Sheet1", "A1", "1")
	require.Equal(t, 1, calls)
	e.UnregisterChangeCallback("watcher")
	setContents(t, e, "Sheet1", "A1", "2")
	require.Equal(t, 1, calls)
}

func TestSchedulerIndirectCycleDetectedAfterDynamicSettle(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", `=INDIRECT("B1")`)
	setContents(t, e, "Sheet1", "B1", `=INDIRECT("A1")`)

	require.True(t, getValue(t, e, "Sheet1", "A1").IsError())
	require.Equal(t, ErrCircRef, getValue(t, e, "Sheet1", "A1").Err)
}
