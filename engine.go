package spreadsheet

import (
	"sort"

	"go.uber.org/zap"
)

// Engine is the facade surrounding the dependency-tracking core (spec
// §1, §6): it owns the cell store, dependency graph, function registry,
// and scheduler, and is the only type application code touches.
//
// Grounded on the teacher's Spreadsheet struct and its
// RunnableSpreadsheet fluent wrapper, collapsed into a single type —
// the fluent builder was sugar over the exact operations this facade
// already exposes directly.
type Engine struct {
	store     *CellStore
	graph     *Graph
	registry  *FunctionRegistry
	scheduler *Scheduler
	log       *zap.Logger
}

func NewEngine(opts ...Option) *Engine {
	cfg := newEngineConfig(opts...)
	store := NewCellStore()
	graph := NewGraph()
	sched := NewScheduler(store, graph, cfg.registry, cfg.logger)
	return &Engine{store: store, graph: graph, registry: cfg.registry, scheduler: sched, log: cfg.logger}
}

// --- sheet management ---------------------------------------------------

func (e *Engine) CreateSheet(name string) error {
	_, err := e.store.CreateSheet(name)
	return err
}

func (e *Engine) DeleteSheet(name string) ([]ChangedCell, error) {
	key, ok := e.store.resolveSheetName(name)
	if !ok {
		return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+name)
	}
	sheet, _ := e.store.Sheet(name)

	var dependents []CellKey
	seen := make(map[CellKey]struct{})
	for _, cr := range sheet.CellKeys() {
		loc := CellKey{Sheet: key, Col: cr.Col, Row: cr.Row}
		for d := range e.graph.Dependents(loc) {
			if _, ok := seen[d]; !ok && d.Sheet != key {
				seen[d] = struct{}{}
				dependents = append(dependents, d)
			}
		}
		e.graph.RemoveNode(loc)
	}
	if err := e.store.DeleteSheet(name); err != nil {
		return nil, err
	}
	return e.scheduler.Refresh(dependents), nil
}

func (e *Engine) RenameSheet(oldName, newName string) ([]ChangedCell, error) {
	return e.renameSheet(oldName, newName)
}

func (e *Engine) ListSheets() []string {
	return e.store.ListSheets()
}

// --- cell access ----------------------------------------------------------

// CellContentChange is one (sheet, location, contents) entry of a batch
// passed to SetCellContentsBatch.
type CellContentChange struct {
	Sheet    string
	Col, Row uint32
	Contents *string
}

func (e *Engine) SetCellContents(sheet string, col, row uint32, contents *string) ([]ChangedCell, error) {
	return e.SetCellContentsBatch([]CellContentChange{{Sheet: sheet, Col: col, Row: row, Contents: contents}})
}

func (e *Engine) SetCellContentsBatch(changes []CellContentChange) ([]ChangedCell, error) {
	batch := make([]ChangeRequest, 0, len(changes))
	for _, c := range changes {
		key, ok := e.store.resolveSheetName(c.Sheet)
		if !ok {
			return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+c.Sheet)
		}
		if !InRange(c.Col, c.Row) {
			return nil, NewEngineError(ErrCodeInvalidLocation, "location out of range")
		}
		batch = append(batch, ChangeRequest{Location: CellKey{Sheet: key, Col: c.Col, Row: c.Row}, Contents: c.Contents})
	}
	return e.scheduler.ApplyChanges(batch), nil
}

func (e *Engine) GetCellContents(sheet string, col, row uint32) (string, error) {
	key, ok := e.store.resolveSheetName(sheet)
	if !ok {
		return "", NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+sheet)
	}
	cell, ok := e.store.getCell(CellKey{Sheet: key, Col: col, Row: row})
	if !ok || cell.Contents == nil {
		return "", nil
	}
	return *cell.Contents, nil
}

// PopulatedLocations returns every non-empty cell's A1 address in sheet,
// sorted, for callers that need to enumerate a sheet without reaching
// into store internals (e.g. the CLI's dump command).
func (e *Engine) PopulatedLocations(sheet string) ([]string, error) {
	s, ok := e.store.Sheet(sheet)
	if !ok {
		return nil, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+sheet)
	}
	locs := make([]string, 0, len(s.cells))
	for _, cr := range s.CellKeys() {
		locs = append(locs, formatA1(cr.Col, cr.Row, false, false))
	}
	sort.Strings(locs)
	return locs, nil
}

func (e *Engine) GetCellValue(sheet string, col, row uint32) (Value, error) {
	key, ok := e.store.resolveSheetName(sheet)
	if !ok {
		return Value{}, NewEngineError(ErrCodeUnknownSheet, "unknown sheet: "+sheet)
	}
	cell, ok := e.store.getCell(CellKey{Sheet: key, Col: col, Row: row})
	if !ok {
		return EmptyValue(), nil
	}
	return cell.Value, nil
}

// --- callbacks --------------------------------------------------------------

func (e *Engine) RegisterChangeCallback(name string, cb ChangeCallback) {
	e.scheduler.RegisterCallback(name, cb)
}

func (e *Engine) UnregisterChangeCallback(name string) {
	e.scheduler.UnregisterCallback(name)
}
