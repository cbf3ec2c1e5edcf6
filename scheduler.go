package spreadsheet

import (
	"sort"

	"go.uber.org/zap"
)

// ChangeRequest is one (location, new-contents) pair in a batch (spec
// §4.4, §6). Contents == nil clears the cell.
type ChangeRequest struct {
	Location CellKey
	Contents *string
}

// ChangedCell is one entry of a batch's emitted change set (spec §4.4
// step 7): the location whose value differs from its pre-batch value,
// carrying both values for observers that want the delta.
type ChangedCell struct {
	Location CellKey
	Before   Value
	After    Value
}

// ChangeCallback receives a batch's deduplicated change set. A panic
// from a callback is caught and discarded; remaining callbacks still
// fire (spec §4.4 step 8, §7).
type ChangeCallback func([]ChangedCell)

// Scheduler orchestrates batched cell-content changes: it is the only
// path by which a cell's AST or value is changed (spec §4.4, §9
// "topological order owned by the scheduler is the only legal
// re-evaluation driver"). Dependency edges are also edited outside it
// when a sheet is deleted (Engine.DeleteSheet) or its key is renamed
// (Engine.remapSheetKey).
//
// Grounded on the teacher's Calculate/calculateCell dirty-propagation
// loop, restructured around an explicit SCC pass so every member of a
// cyclic component is marked, not just the cell that happened to
// re-enter first (see DESIGN.md).
type Scheduler struct {
	store     *CellStore
	graph     *Graph
	registry  *FunctionRegistry
	callbacks map[string]ChangeCallback
	log       *zap.Logger
}

func NewScheduler(store *CellStore, graph *Graph, registry *FunctionRegistry, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{store: store, graph: graph, registry: registry, callbacks: make(map[string]ChangeCallback), log: log}
}

func (sch *Scheduler) RegisterCallback(name string, cb ChangeCallback) {
	sch.callbacks[name] = cb
}

func (sch *Scheduler) UnregisterCallback(name string) {
	delete(sch.callbacks, name)
}

// maxVolatileIterations bounds the post-evaluation re-check pass used to
// settle dynamically-discovered dependencies from INDIRECT (spec §4.2
// "must still be detected by the scheduler's post-evaluation cycle
// check"). A handful of iterations is generous: each iteration only
// repeats for cells whose observed dependency set just changed.
const maxVolatileIterations = 8

// ApplyChanges performs a batch of content changes as a single
// transaction per spec §4.4's eight steps, returning the deduplicated
// change set in first-changed order.
func (sch *Scheduler) ApplyChanges(batch []ChangeRequest) []ChangedCell {
	before := make(map[CellKey]Value)
	var firstSeenOrder []CellKey
	recordBefore := func(k CellKey) {
		if _, ok := before[k]; ok {
			return
		}
		before[k] = sch.currentValue(k)
		firstSeenOrder = append(firstSeenOrder, k)
	}

	// Step 1 & 2: parse each change, install contents/AST, do an initial
	// evaluation to seed the dependency graph before computing `affected`.
	directlyChanged := make(map[CellKey]struct{})
	for _, ch := range batch {
		recordBefore(ch.Location)
		sch.installContents(ch.Location, ch.Contents)
		directlyChanged[ch.Location] = struct{}{}
	}
	for k := range directlyChanged {
		sch.reevaluateAndLinkEdges(k)
	}

	sch.recomputeTransitive(directlyChanged, recordBefore)
	return sch.buildChangeSet(before, firstSeenOrder)
}

// Refresh re-evaluates the transitive dependents of seed without
// altering any cell's stored contents/AST. Used where a structural
// operation (e.g. deleting a sheet) invalidates values without going
// through ApplyChanges's parse-and-install path.
func (sch *Scheduler) Refresh(seed []CellKey) []ChangedCell {
	before := make(map[CellKey]Value)
	var order []CellKey
	recordBefore := func(k CellKey) {
		if _, ok := before[k]; ok {
			return
		}
		before[k] = sch.currentValue(k)
		order = append(order, k)
	}
	seedSet := make(map[CellKey]struct{}, len(seed))
	for _, k := range seed {
		seedSet[k] = struct{}{}
		recordBefore(k)
	}
	sch.recomputeTransitive(seedSet, recordBefore)
	return sch.buildChangeSet(before, order)
}

// recomputeTransitive runs steps 3-6 of §4.4's batch algorithm over the
// transitive dependents of seed, looping to settle dynamically
// discovered INDIRECT edges (spec §4.2/§9).
func (sch *Scheduler) recomputeTransitive(seed map[CellKey]struct{}, recordBefore func(CellKey)) {
	affected := make(map[CellKey]struct{})
	for k := range seed {
		affected[k] = struct{}{}
		for r := range sch.graph.ReachableFrom(k) {
			affected[r] = struct{}{}
		}
	}
	// Always-dirty volatile cells participate in every batch even with no
	// changed precedent (spec's volatile-function supplement).
	for k := range sch.allVolatileCells() {
		affected[k] = struct{}{}
	}

	for iteration := 0; iteration < maxVolatileIterations; iteration++ {
		changedEdges := sch.settleOnce(affected, recordBefore)
		if !changedEdges {
			break
		}
		if iteration == maxVolatileIterations-1 {
			sch.log.Warn("dynamic dependency set did not settle within iteration budget")
		}
	}
}

// settleOnce runs steps 4-6 once over the current affected set, and
// reports whether any cell's observed dependency edges changed as a
// result of evaluation (which can happen with INDIRECT) — if so, the
// caller re-runs to pick up newly-relevant affected cells and re-check
// for cycles introduced by those dynamic edges.
func (sch *Scheduler) settleOnce(affected map[CellKey]struct{}, recordBefore func(CellKey)) bool {
	sub := sch.graph.SubgraphInducedBy(affected)
	sccs := sub.StronglyConnectedComponents()

	cyclic := make(map[CellKey]struct{})
	var singleton []CellKey
	for _, comp := range sccs {
		if len(comp) > 1 {
			for _, k := range comp {
				cyclic[k] = struct{}{}
			}
			continue
		}
		k := comp[0]
		if sub.HasSelfEdge(k) {
			cyclic[k] = struct{}{}
			continue
		}
		singleton = append(singleton, k)
	}

	for k := range cyclic {
		recordBefore(k)
		sch.setValue(k, ErrorValue(ErrCircRef))
	}

	remaining := make(map[CellKey]struct{}, len(singleton))
	for _, k := range singleton {
		remaining[k] = struct{}{}
	}
	order := sub.TopologicalOrder(remaining)

	changedEdges := false
	for _, k := range order {
		recordBefore(k)
		oldDeps := snapshotDeps(sch.graph.Dependencies(k))
		sch.recomputeCell(k)
		newDeps := sch.graph.Dependencies(k)
		if !sameDepSet(oldDeps, newDeps) {
			changedEdges = true
			for d := range newDeps {
				if sch.store.hasSheetKey(d.Sheet) {
					affected[d] = struct{}{}
				}
			}
			affected[k] = struct{}{}
		}
	}
	return changedEdges
}

func snapshotDeps(m map[CellKey]struct{}) map[CellKey]struct{} {
	out := make(map[CellKey]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sameDepSet(a, b map[CellKey]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (sch *Scheduler) currentValue(k CellKey) Value {
	if c, ok := sch.store.getCell(k); ok {
		return c.Value
	}
	return EmptyValue()
}

// installContents parses raw contents (or clears the cell when nil) and
// stores the resulting AST/literal, without evaluating formula cells yet.
func (sch *Scheduler) installContents(loc CellKey, contents *string) {
	if contents == nil {
		sch.store.removeCell(loc)
		sch.graph.ReplaceOutgoing(loc, nil)
		return
	}
	parsed := ParseContents(*contents)
	cell := &Cell{Loc: loc, Contents: contents, Deps: make(map[CellKey]struct{})}
	if parsed.IsFormula {
		cell.AST = parsed.AST
		cell.ParseErr = parsed.ParseErr
		if parsed.ParseErr {
			cell.Value = ErrorValue(ErrParse)
		}
	} else {
		cell.Value = parsed.Literal
	}
	sch.store.setCell(loc, cell)
	sch.graph.AddNode(loc)
}

// reevaluateAndLinkEdges evaluates a freshly-installed cell once so its
// dependency edges are current before `affected` is computed (spec §4.4
// step 2). Literal cells and cells with a PARSE error have no formula to
// evaluate and simply get an empty outgoing edge set.
func (sch *Scheduler) reevaluateAndLinkEdges(loc CellKey) {
	cell, ok := sch.store.getCell(loc)
	if !ok {
		sch.graph.ReplaceOutgoing(loc, nil)
		return
	}
	if cell.AST == nil || cell.ParseErr {
		sch.graph.ReplaceOutgoing(loc, nil)
		return
	}
	v, deps, volatile, _ := EvalFormula(sch.store, sch.registry, loc, cell.AST)
	cell.Value = v
	cell.Volatile = volatile || formulaReferencesIndirect(cell.AST)
	cell.Deps = deps
	sch.graph.ReplaceOutgoing(loc, deps)
}

// recomputeCell re-evaluates a cell already known to be outside any
// cycle, using the current stored values of its dependencies (spec §4.4
// step 6).
func (sch *Scheduler) recomputeCell(loc CellKey) {
	cell, ok := sch.store.getCell(loc)
	if !ok {
		return
	}
	if cell.AST == nil {
		return // literal/empty cells never change during recompute
	}
	if cell.ParseErr {
		sch.setValue(loc, ErrorValue(ErrParse))
		return
	}
	v, deps, volatile, err := EvalFormula(sch.store, sch.registry, loc, cell.AST)
	if err != nil {
		sch.log.Warn("evaluator fault, degrading to VALUE error", zap.String("cell", loc.String()), zap.Error(err))
		v = ErrorValue(ErrValue)
	}
	cell.Value = v
	cell.Volatile = volatile || formulaReferencesIndirect(cell.AST)
	cell.Deps = deps
	sch.graph.ReplaceOutgoing(loc, deps)
}

func (sch *Scheduler) setValue(loc CellKey, v Value) {
	if cell, ok := sch.store.getCell(loc); ok {
		cell.Value = v
	}
}

func (sch *Scheduler) allVolatileCells() map[CellKey]struct{} {
	out := make(map[CellKey]struct{})
	for _, skey := range sch.store.SortedSheetKeys() {
		sheet, _ := sch.store.Sheet(skey)
		_ = sheet
	}
	// Volatile cells are tracked directly on their Cell record; walk the
	// graph's node set (every cell that has ever participated) instead of
	// re-deriving sheet iteration order, since volatility only matters for
	// populated formula cells.
	for k := range sch.graph.forward {
		if c, ok := sch.store.getCell(k); ok && c.Volatile {
			out[k] = struct{}{}
		}
	}
	return out
}

func (sch *Scheduler) buildChangeSet(before map[CellKey]Value, order []CellKey) []ChangedCell {
	var out []ChangedCell
	for _, k := range order {
		after := sch.currentValue(k)
		b := before[k]
		if !valuesEqual(b, after) {
			out = append(out, ChangedCell{Location: k, Before: b, After: after})
		}
	}
	sch.dispatch(out)
	return out
}

func (sch *Scheduler) dispatch(changes []ChangedCell) {
	if len(changes) == 0 && len(sch.callbacks) == 0 {
		return
	}
	names := make([]string, 0, len(sch.callbacks))
	for name := range sch.callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sch.invokeCallback(name, changes)
	}
}

// invokeCallback calls one observer, catching both panics and (if the
// callback type ever grows an error return) failures so a misbehaving
// observer cannot corrupt engine state or block the remaining observers
// (spec §4.4 step 8, §7).
func (sch *Scheduler) invokeCallback(name string, changes []ChangedCell) {
	defer func() {
		if r := recover(); r != nil {
			sch.log.Warn("change callback panicked, discarding", zap.String("callback", name), zap.Any("recover", r))
		}
	}()
	sch.callbacks[name](changes)
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return a.Num.Equal(b.Num)
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindError:
		return a.Err == b.Err
	default:
		return true
	}
}
