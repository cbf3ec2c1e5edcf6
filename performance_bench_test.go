package spreadsheet_test

import (
	"fmt"
	"testing"

	spreadsheet "github.com/vogtb/go-spreadsheet-engine"
)

func setOrPanic(b *testing.B, e *spreadsheet.Engine, sheet, addr, contents string) {
	b.Helper()
	col, row, _, _, ok := spreadsheet.ParseCellAddress(addr)
	if !ok {
		b.Fatalf("bad address %q", addr)
	}
	if _, err := e.SetCellContents(sheet, col, row, &contents); err != nil {
		b.Fatalf("set %s!%s: %v", sheet, addr, err)
	}
}

func BenchmarkLargeCellPopulation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		e := spreadsheet.NewEngine()
		e.CreateSheet("Sheet1")
		for row := 1; row <= 100; row++ {
			for col := 1; col <= 26; col++ {
				addr := fmt.Sprintf("%c%d", 'A'+col-1, row)
				setOrPanic(b, e, "Sheet1", addr, fmt.Sprintf("%d", row*col))
			}
		}
	}
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	e := spreadsheet.NewEngine()
	e.CreateSheet("Sheet1")
	setOrPanic(b, e, "Sheet1", "A1", "1")
	for i := 2; i <= 100; i++ {
		setOrPanic(b, e, "Sheet1", fmt.Sprintf("A%d", i), fmt.Sprintf("=A%d+1", i-1))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		setOrPanic(b, e, "Sheet1", "A1", fmt.Sprintf("%d", i))
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	e := spreadsheet.NewEngine()
	e.CreateSheet("Sheet1")
	setOrPanic(b, e, "Sheet1", "A1", "100")
	for i := 2; i <= 500; i++ {
		setOrPanic(b, e, "Sheet1", fmt.Sprintf("B%d", i), "=A1*2")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		setOrPanic(b, e, "Sheet1", "A1", fmt.Sprintf("%d", i))
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	e := spreadsheet.NewEngine()
	e.CreateSheet("Sheet1")
	for i := 1; i <= 1000; i++ {
		setOrPanic(b, e, "Sheet1", fmt.Sprintf("A%d", i), fmt.Sprintf("%d", i))
	}
	setOrPanic(b, e, "Sheet1", "B1", "=SUM(A1:A1000)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		setOrPanic(b, e, "Sheet1", "A1000", fmt.Sprintf("%d", i))
	}
}

func BenchmarkMultiSheetReferences(b *testing.B) {
	e := spreadsheet.NewEngine()
	e.CreateSheet("Data")
	e.CreateSheet("Summary")
	for i := 1; i <= 100; i++ {
		setOrPanic(b, e, "Data", fmt.Sprintf("A%d", i), fmt.Sprintf("%d", i))
	}
	setOrPanic(b, e, "Summary", "A1", "=SUM(Data!A1:A100)")
	setOrPanic(b, e, "Summary", "B1", "=AVERAGE(Data!A1:A100)")
	setOrPanic(b, e, "Summary", "C1", "=MAX(Data!A1:A100)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		setOrPanic(b, e, "Data", "A1", fmt.Sprintf("%d", i))
	}
}

func BenchmarkCascadingUpdates(b *testing.B) {
	e := spreadsheet.NewEngine()
	e.CreateSheet("Sheet1")
	for row := 1; row <= 50; row++ {
		for col := 0; col < 10; col++ {
			addr := fmt.Sprintf("%c%d", 'A'+col, row)
			if col == 0 {
				setOrPanic(b, e, "Sheet1", addr, fmt.Sprintf("%d", row))
			} else {
				prevCol := fmt.Sprintf("%c%d", 'A'+col-1, row)
				setOrPanic(b, e, "Sheet1", addr, fmt.Sprintf("=%s*2", prevCol))
			}
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		setOrPanic(b, e, "Sheet1", "A1", fmt.Sprintf("%d", i%100))
	}
}

func BenchmarkCircularReferenceDetection(b *testing.B) {
	for i := 0; i < b.N; i++ {
		e := spreadsheet.NewEngine()
		e.CreateSheet("Sheet1")
		setOrPanic(b, e, "Sheet1", "A1", "=B1+C1")
		setOrPanic(b, e, "Sheet1", "B1", "=C1+D1")
		setOrPanic(b, e, "Sheet1", "C1", "=D1+E1")
		setOrPanic(b, e, "Sheet1", "D1", "=E1+F1")
		setOrPanic(b, e, "Sheet1", "E1", "=F1+G1")
		setOrPanic(b, e, "Sheet1", "F1", "=G1+H1")
		setOrPanic(b, e, "Sheet1", "G1", "=H1+A1")
		setOrPanic(b, e, "Sheet1", "H1", "=A1")
	}
}

func BenchmarkManySmallFormulas(b *testing.B) {
	e := spreadsheet.NewEngine()
	e.CreateSheet("Sheet1")
	for row := 1; row <= 100; row++ {
		setOrPanic(b, e, "Sheet1", fmt.Sprintf("A%d", row), fmt.Sprintf("%d", row))
		setOrPanic(b, e, "Sheet1", fmt.Sprintf("B%d", row), fmt.Sprintf("=A%d*2", row))
		setOrPanic(b, e, "Sheet1", fmt.Sprintf("C%d", row), fmt.Sprintf("=B%d+A%d", row, row))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		setOrPanic(b, e, "Sheet1", "A1", fmt.Sprintf("%d", i))
	}
}
