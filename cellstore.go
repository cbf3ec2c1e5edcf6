package spreadsheet

import (
	"sort"
	"strings"
)

// Cell holds a located cell's raw contents, parsed AST, current value,
// and outgoing dependency set (spec §3). A cell with nil Contents is
// never stored (spec §3 invariant (i)); removeCell deletes it from the
// store entirely.
type Cell struct {
	Loc       CellKey
	Contents  *string
	AST       Node
	Value     Value
	Deps      map[CellKey]struct{}
	Volatile  bool
	ParseErr  bool
}

func newEmptyCellState() Cell {
	return Cell{Deps: make(map[CellKey]struct{})}
}

// colRow is the in-sheet lookup key (sheet identity lives one level up,
// in the CellStore's sheets map).
type colRow struct {
	Col uint32
	Row uint32
}

// Sheet is a named collection of cells plus its tracked extent (spec §3).
type Sheet struct {
	Name   string // display name, case-preserved
	cells  map[colRow]*Cell
	maxCol uint32
	maxRow uint32
}

func newSheet(name string) *Sheet {
	return &Sheet{Name: name, cells: make(map[colRow]*Cell)}
}

// Extent returns the smallest rectangle (1,1)-(maxCol,maxRow) containing
// every non-empty cell, or (0,0) when the sheet is empty (spec GLOSSARY).
func (s *Sheet) Extent() (uint32, uint32) {
	return s.maxCol, s.maxRow
}

func (s *Sheet) recomputeExtent() {
	var maxCol, maxRow uint32
	for cr := range s.cells {
		if cr.Col > maxCol {
			maxCol = cr.Col
		}
		if cr.Row > maxRow {
			maxRow = cr.Row
		}
	}
	s.maxCol, s.maxRow = maxCol, maxRow
}

func (s *Sheet) getCell(col, row uint32) (*Cell, bool) {
	c, ok := s.cells[colRow{col, row}]
	return c, ok
}

func (s *Sheet) setCell(col, row uint32, c *Cell) {
	s.cells[colRow{col, row}] = c
	if col > s.maxCol {
		s.maxCol = col
	}
	if row > s.maxRow {
		s.maxRow = row
	}
}

func (s *Sheet) removeCell(col, row uint32) {
	delete(s.cells, colRow{col, row})
	if col == s.maxCol || row == s.maxRow {
		s.recomputeExtent()
	}
}

// CellKeys returns every populated (col,row) location in the sheet, in
// an unspecified but stable-for-iteration order.
func (s *Sheet) CellKeys() []colRow {
	out := make([]colRow, 0, len(s.cells))
	for cr := range s.cells {
		out = append(out, cr)
	}
	return out
}

// CellStore owns every sheet in a workbook (spec §3). Sheet names are
// unique case-insensitively; lookups are keyed by the lower-cased name.
type CellStore struct {
	sheets       map[string]*Sheet
	displayOrder []string // lower-cased names, creation order
}

func NewCellStore() *CellStore {
	return &CellStore{sheets: make(map[string]*Sheet)}
}

func sheetKey(name string) string { return strings.ToLower(name) }

func (cs *CellStore) hasSheetKey(key string) bool {
	_, ok := cs.sheets[key]
	return ok
}

// resolveSheetName maps a display or case-insensitive name to its
// canonical key, reporting whether it exists.
func (cs *CellStore) resolveSheetName(name string) (string, bool) {
	key := sheetKey(name)
	_, ok := cs.sheets[key]
	return key, ok
}

func (cs *CellStore) CreateSheet(name string) (*Sheet, error) {
	key := sheetKey(name)
	if _, exists := cs.sheets[key]; exists {
		return nil, NewEngineError(ErrCodeDuplicateSheet, "sheet already exists: "+name)
	}
	s := newSheet(name)
	cs.sheets[key] = s
	cs.displayOrder = append(cs.displayOrder, key)
	return s, nil
}

func (cs *CellStore) DeleteSheet(name string) error {
	key := sheetKey(name)
	if _, exists := cs.sheets[key]; !exists {
		return NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+name)
	}
	delete(cs.sheets, key)
	for i, k := range cs.displayOrder {
		if k == key {
			cs.displayOrder = append(cs.displayOrder[:i], cs.displayOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (cs *CellStore) RenameSheet(oldName, newName string) error {
	oldKey := sheetKey(oldName)
	s, exists := cs.sheets[oldKey]
	if !exists {
		return NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+oldName)
	}
	newKey := sheetKey(newName)
	if newKey != oldKey {
		if _, exists := cs.sheets[newKey]; exists {
			return NewEngineError(ErrCodeDuplicateSheet, "sheet already exists: "+newName)
		}
	}
	delete(cs.sheets, oldKey)
	s.Name = newName
	cs.sheets[newKey] = s
	for i, k := range cs.displayOrder {
		if k == oldKey {
			cs.displayOrder[i] = newKey
			break
		}
	}
	return nil
}

func (cs *CellStore) Sheet(name string) (*Sheet, bool) {
	s, ok := cs.sheets[sheetKey(name)]
	return s, ok
}

// ListSheets returns display names in creation order.
func (cs *CellStore) ListSheets() []string {
	out := make([]string, 0, len(cs.displayOrder))
	for _, k := range cs.displayOrder {
		out = append(out, cs.sheets[k].Name)
	}
	return out
}

// SortedSheetKeys returns canonical sheet keys sorted lexicographically,
// for callers that visit every sheet in a fixed order (e.g. rename-sheet
// collecting the formulas to rewrite).
func (cs *CellStore) SortedSheetKeys() []string {
	out := make([]string, 0, len(cs.sheets))
	for k := range cs.sheets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (cs *CellStore) getCell(k CellKey) (*Cell, bool) {
	s, ok := cs.sheets[k.Sheet]
	if !ok {
		return nil, false
	}
	return s.getCell(k.Col, k.Row)
}

func (cs *CellStore) setCell(k CellKey, c *Cell) {
	s, ok := cs.sheets[k.Sheet]
	if !ok {
		return
	}
	s.setCell(k.Col, k.Row, c)
}

func (cs *CellStore) removeCell(k CellKey) {
	s, ok := cs.sheets[k.Sheet]
	if !ok {
		return
	}
	s.removeCell(k.Col, k.Row)
}
