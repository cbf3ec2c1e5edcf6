package spreadsheet

import "sort"

// SortKey is one (column, direction) entry of a sort-region request
// (spec §4.5): ColOffset is 0-based, relative to the region's leftmost
// column.
type SortKey struct {
	ColOffset  int
	Descending bool
}

// renameSheet implements spec §4.5's rename-sheet operation: every cell
// anywhere in the workbook whose formula contains a reference qualified
// by oldName is re-serialized with the qualifier replaced, by rewriting
// the parsed AST rather than the formula text (so an occurrence of
// oldName inside a quoted string literal is left untouched).
func (e *Engine) renameSheet(oldName, newName string) ([]ChangedCell, error) {
	oldKey, ok := e.store.resolveSheetName(oldName)
	if !ok {
		return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+oldName)
	}
	newKey := sheetKey(newName)
	if newKey != oldKey && e.store.hasSheetKey(newKey) {
		return nil, NewEngineError(ErrCodeDuplicateSheet, "sheet already exists: "+newName)
	}

	var pending []ChangeRequest
	for _, skey := range e.store.SortedSheetKeys() {
		sheet := e.store.sheets[skey]
		for _, cr := range sheet.CellKeys() {
			cell, _ := sheet.getCell(cr.Col, cr.Row)
			if cell == nil || cell.AST == nil {
				continue
			}
			if !referencesSheetQualifier(cell.AST, oldName) {
				continue
			}
			rewritten := RenameSheetInFormula(cell.AST, oldName, newName)
			text := "=" + rewritten.String()
			pending = append(pending, ChangeRequest{Location: cell.Loc, Contents: &text})
		}
	}

	if newKey != oldKey {
		e.remapSheetKey(oldKey, newKey, newName)
		for i := range pending {
			if pending[i].Location.Sheet == oldKey {
				pending[i].Location.Sheet = newKey
			}
		}
	} else if err := e.store.RenameSheet(oldName, newName); err != nil {
		return nil, err
	}

	return e.scheduler.ApplyChanges(pending), nil
}

// remapSheetKey migrates every stored CellKey (cell locations and
// dependency edges, in both the store and the graph) from oldKey to
// newKey when a rename changes the case-folded lookup key, not just the
// display name.
func (e *Engine) remapSheetKey(oldKey, newKey, newDisplayName string) {
	sheet := e.store.sheets[oldKey]
	delete(e.store.sheets, oldKey)
	sheet.Name = newDisplayName
	e.store.sheets[newKey] = sheet
	for i, k := range e.store.displayOrder {
		if k == oldKey {
			e.store.displayOrder[i] = newKey
			break
		}
	}

	for _, cell := range sheet.cells {
		cell.Loc.Sheet = newKey
		if len(cell.Deps) == 0 {
			continue
		}
		newDeps := make(map[CellKey]struct{}, len(cell.Deps))
		for d := range cell.Deps {
			if d.Sheet == oldKey {
				d.Sheet = newKey
			}
			newDeps[d] = struct{}{}
		}
		cell.Deps = newDeps
	}

	e.graph.RenameSheetKey(oldKey, newKey)
}

// referencesSheetQualifier reports whether ast contains any RefNode or
// RangeNode explicitly qualified by name (case-insensitive).
func referencesSheetQualifier(ast Node, name string) bool {
	found := false
	walkRefs(ast, func(sheet string) {
		if sheet != "" && equalFoldSheet(sheet, name) {
			found = true
		}
	})
	return found
}

func equalFoldSheet(a, b string) bool {
	return sheetKey(a) == sheetKey(b)
}

// walkRefs calls fn with the Sheet qualifier of every RefNode/RangeNode
// reachable from ast (possibly "").
func walkRefs(n Node, fn func(sheet string)) {
	switch t := n.(type) {
	case *RefNode:
		fn(t.Sheet)
	case *RangeNode:
		fn(t.Sheet)
	case *BinaryNode:
		walkRefs(t.Left, fn)
		walkRefs(t.Right, fn)
	case *UnaryNode:
		walkRefs(t.Operand, fn)
	case *CallNode:
		for _, a := range t.Args {
			walkRefs(a, fn)
		}
	}
}

// stageRegionCopy builds the (target-location, rewritten-contents) pairs
// for copying the rectangle [fromCol,toCol]x[fromRow,toRow] to a new
// top-left at (dstCol,dstRow), shifting every relative reference inside
// each formula by the same (dCol, dRow) delta (spec §4.5). Cells whose
// shifted target falls outside the addressable range are dropped from
// the write set (nothing legal to write there).
func (e *Engine) stageRegionCopy(sheetName string, fromCol, fromRow, toCol, toRow, dstCol, dstRow uint32) ([]ChangeRequest, error) {
	key, ok := e.store.resolveSheetName(sheetName)
	if !ok {
		return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+sheetName)
	}
	dCol := int64(dstCol) - int64(fromCol)
	dRow := int64(dstRow) - int64(fromRow)

	var out []ChangeRequest
	for row := fromRow; row <= toRow; row++ {
		for col := fromCol; col <= toCol; col++ {
			targetCol := uint32(int64(col) + dCol)
			targetRow := uint32(int64(row) + dRow)
			if !InRange(targetCol, targetRow) {
				continue
			}
			targetLoc := CellKey{Sheet: key, Col: targetCol, Row: targetRow}
			srcLoc := CellKey{Sheet: key, Col: col, Row: row}
			cell, exists := e.store.getCell(srcLoc)
			if !exists || cell.Contents == nil {
				out = append(out, ChangeRequest{Location: targetLoc, Contents: nil})
				continue
			}
			if cell.AST == nil {
				text := *cell.Contents
				out = append(out, ChangeRequest{Location: targetLoc, Contents: &text})
				continue
			}
			shifted := ShiftFormula(cell.AST, dCol, dRow)
			text := "=" + shifted.String()
			out = append(out, ChangeRequest{Location: targetLoc, Contents: &text})
		}
	}
	return out, nil
}

// CopyCells copies a rectangular region to a new top-left location,
// shifting relative references (spec §4.5).
func (e *Engine) CopyCells(sheetName string, fromCol, fromRow, toCol, toRow, dstCol, dstRow uint32) ([]ChangedCell, error) {
	pairs, err := e.stageRegionCopy(sheetName, fromCol, fromRow, toCol, toRow, dstCol, dstRow)
	if err != nil {
		return nil, err
	}
	return e.scheduler.ApplyChanges(pairs), nil
}

// MoveCells copies then clears every source cell not contained in the
// target rectangle, with the full pair set materialized before any
// write so overlapping source/target rectangles apply correctly as one
// batch (spec §4.5).
func (e *Engine) MoveCells(sheetName string, fromCol, fromRow, toCol, toRow, dstCol, dstRow uint32) ([]ChangedCell, error) {
	pairs, err := e.stageRegionCopy(sheetName, fromCol, fromRow, toCol, toRow, dstCol, dstRow)
	if err != nil {
		return nil, err
	}
	key, _ := e.store.resolveSheetName(sheetName)
	written := make(map[CellKey]struct{}, len(pairs))
	for _, p := range pairs {
		written[p.Location] = struct{}{}
	}
	for row := fromRow; row <= toRow; row++ {
		for col := fromCol; col <= toCol; col++ {
			loc := CellKey{Sheet: key, Col: col, Row: row}
			if _, inTarget := written[loc]; inTarget {
				continue
			}
			pairs = append(pairs, ChangeRequest{Location: loc, Contents: nil})
		}
	}
	return e.scheduler.ApplyChanges(pairs), nil
}

// CopySheet duplicates every non-empty cell of srcName into a freshly
// created sheet dstName at identical (column, row) locations, with no
// reference rewriting at all: relative references keep their meaning
// (shift of zero) and references qualified by srcName still mean
// srcName, since this creates a disjoint cell space rather than moving
// one (SPEC_FULL.md supplemented feature).
func (e *Engine) CopySheet(srcName, dstName string) ([]ChangedCell, error) {
	srcSheet, ok := e.store.Sheet(srcName)
	if !ok {
		return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+srcName)
	}
	if err := e.CreateSheet(dstName); err != nil {
		return nil, err
	}
	dstKey, _ := e.store.resolveSheetName(dstName)

	var pairs []ChangeRequest
	for _, cr := range srcSheet.CellKeys() {
		cell, _ := srcSheet.getCell(cr.Col, cr.Row)
		if cell == nil || cell.Contents == nil {
			continue
		}
		text := *cell.Contents
		pairs = append(pairs, ChangeRequest{Location: CellKey{Sheet: dstKey, Col: cr.Col, Row: cr.Row}, Contents: &text})
	}
	return e.scheduler.ApplyChanges(pairs), nil
}

// SortRegion permutes the rows of a rectangular region by the given key
// columns, stably (spec §4.5): references within the block follow their
// target row to its new position; references elsewhere in the formula
// (or into columns outside the block) shift as an ordinary per-row copy
// would.
func (e *Engine) SortRegion(sheetName string, fromCol, fromRow, toCol, toRow uint32, keys []SortKey) ([]ChangedCell, error) {
	key, ok := e.store.resolveSheetName(sheetName)
	if !ok {
		return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+sheetName)
	}
	sheet := e.store.sheets[key]

	numRows := int(toRow-fromRow) + 1
	order := make([]int, numRows)
	for i := range order {
		order[i] = i
	}
	valueAt := func(rowOffset, colOffset int) Value {
		c, ok := sheet.getCell(fromCol+uint32(colOffset), fromRow+uint32(rowOffset))
		if !ok {
			return EmptyValue()
		}
		return c.Value
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		for _, k := range keys {
			cmp := CompareValues(valueAt(a, k.ColOffset), valueAt(b, k.ColOffset))
			if cmp == 0 {
				continue
			}
			if k.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	oldRowToNewRow := make(map[uint32]uint32, numRows)
	for newIdx, oldIdx := range order {
		oldRowToNewRow[fromRow+uint32(oldIdx)] = fromRow + uint32(newIdx)
	}

	var pairs []ChangeRequest
	for newIdx, oldIdx := range order {
		oldRow := fromRow + uint32(oldIdx)
		newRow := fromRow + uint32(newIdx)
		for col := fromCol; col <= toCol; col++ {
			srcLoc := CellKey{Sheet: key, Col: col, Row: oldRow}
			targetLoc := CellKey{Sheet: key, Col: col, Row: newRow}
			cell, exists := e.store.getCell(srcLoc)
			if !exists || cell.Contents == nil {
				pairs = append(pairs, ChangeRequest{Location: targetLoc, Contents: nil})
				continue
			}
			if cell.AST == nil {
				text := *cell.Contents
				pairs = append(pairs, ChangeRequest{Location: targetLoc, Contents: &text})
				continue
			}
			dRow := int64(newRow) - int64(oldRow)
			rewritten := rewriteReferences(cell.AST, func(r RefNode) RefNode {
				inBlock := r.Sheet == "" && !r.RowAbs && r.Col >= fromCol && r.Col <= toCol && r.Row >= fromRow && r.Row <= toRow
				if inBlock {
					if nr, ok := oldRowToNewRow[r.Row]; ok {
						out := r
						out.Row = nr
						if !InRange(out.Col, out.Row) {
							out.OutOfRange = true
						}
						return out
					}
				}
				return ShiftRef(r, 0, dRow)
			})
			text := "=" + rewritten.String()
			pairs = append(pairs, ChangeRequest{Location: targetLoc, Contents: &text})
		}
	}
	return e.scheduler.ApplyChanges(pairs), nil
}
