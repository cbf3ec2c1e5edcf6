package spreadsheet

import (
	"fmt"
	"strings"
)

// EvalContext is threaded through a single Node.Eval call tree. It gives
// read-only access to the cell store and accumulates the dependency set
// observed along the branches actually evaluated (spec §4.2: branches not
// taken by a lazy function contribute no dependencies).
type EvalContext struct {
	store    *CellStore
	registry *FunctionRegistry
	sheet    string // canonical sheet key of the owning cell, for unqualified refs
	deps     map[CellKey]struct{}
	volatile bool
	depth    int
}

const maxEvalDepth = 512

func newEvalContext(store *CellStore, registry *FunctionRegistry, sheet string) *EvalContext {
	return &EvalContext{store: store, registry: registry, sheet: sheet, deps: make(map[CellKey]struct{})}
}

func (ctx *EvalContext) addDep(k CellKey) {
	ctx.deps[k] = struct{}{}
}

// resolveSheet turns a RefNode/RangeNode's Sheet field (possibly empty)
// into a canonical sheet key, reporting whether that sheet exists.
func (ctx *EvalContext) resolveSheet(name string) (string, bool) {
	if name == "" {
		return ctx.sheet, ctx.store.hasSheetKey(ctx.sheet)
	}
	return ctx.store.resolveSheetName(name)
}

func (n *LiteralNode) Eval(ctx *EvalContext) (Value, error) {
	return n.Value, nil
}

func (n *RefNode) Eval(ctx *EvalContext) (Value, error) {
	if n.OutOfRange {
		return ErrorValue(ErrBadRef), nil
	}
	sheetKey, ok := ctx.resolveSheet(n.Sheet)
	if !ok {
		return ErrorValue(ErrBadRef), nil
	}
	key := CellKey{Sheet: sheetKey, Col: n.Col, Row: n.Row}
	ctx.addDep(key)
	cell, ok := ctx.store.getCell(key)
	if !ok {
		return EmptyValue(), nil
	}
	return cell.Value, nil
}

// evalRange flattens a range reference into its member values, in
// row-major order, adding every member cell as a dependency, along with
// the rectangle's row/column counts (needed by VLOOKUP/HLOOKUP to
// recover shape after flattening).
func (ctx *EvalContext) evalRange(n *RangeNode) ([]Value, int, int, error) {
	sheetKey, ok := ctx.resolveSheet(n.Sheet)
	if !ok || n.From.OutOfRange || n.To.OutOfRange {
		return []Value{ErrorValue(ErrBadRef)}, 1, 1, nil
	}
	rows := int(n.To.Row-n.From.Row) + 1
	cols := int(n.To.Col-n.From.Col) + 1
	var out []Value
	for row := n.From.Row; row <= n.To.Row; row++ {
		for col := n.From.Col; col <= n.To.Col; col++ {
			key := CellKey{Sheet: sheetKey, Col: col, Row: row}
			ctx.addDep(key)
			if cell, ok := ctx.store.getCell(key); ok {
				out = append(out, cell.Value)
			} else {
				out = append(out, EmptyValue())
			}
		}
	}
	return out, rows, cols, nil
}

func (n *BinaryNode) Eval(ctx *EvalContext) (Value, error) {
	left, err := n.Left.Eval(ctx)
	if err != nil {
		return Value{}, err
	}
	right, err := n.Right.Eval(ctx)
	if err != nil {
		return Value{}, err
	}
	switch n.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return Arithmetic(n.Op, left, right), nil
	case OpConcat:
		return Concat(left, right), nil
	default:
		return Compare(n.Op, left, right), nil
	}
}

func (n *UnaryNode) Eval(ctx *EvalContext) (Value, error) {
	v, err := n.Operand.Eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return UnarySign(n.Op, v), nil
}

// LazyArg is a deferred argument evaluation; each call evaluates the
// underlying node against ctx (the result is not cached), contributing
// dependencies only at that moment (spec §4.2).
type LazyArg func() (Value, error)

// ArgValue is an evaluated eager argument: Values has exactly one member
// for a scalar argument, or the flattened row-major members of a range
// argument (spec §4.2).
type ArgValue struct {
	IsRange bool
	Values  []Value
	Rows    int
	Cols    int
}

func (a ArgValue) Scalar() Value {
	if len(a.Values) == 0 {
		return EmptyValue()
	}
	return a.Values[0]
}

func (n *CallNode) Eval(ctx *EvalContext) (Value, error) {
	ctx.depth++
	defer func() { ctx.depth-- }()
	if ctx.depth > maxEvalDepth {
		return Value{}, fmt.Errorf("expression nesting too deep")
	}

	spec, ok := ctx.registry.Lookup(n.Name)
	if !ok {
		return ErrorValue(ErrBadName), nil
	}
	if len(n.Args) < spec.MinArgs || (spec.MaxArgs >= 0 && len(n.Args) > spec.MaxArgs) {
		return ErrorValue(ErrValue), nil
	}
	if spec.Volatile {
		ctx.volatile = true
	}

	if spec.Mode == ArgLazy {
		lazies := make([]LazyArg, len(n.Args))
		for i := range n.Args {
			node := n.Args[i]
			lazies[i] = func() (Value, error) { return node.Eval(ctx) }
		}
		return spec.LazyFn(ctx, lazies)
	}

	argVals := make([]ArgValue, len(n.Args))
	for i, a := range n.Args {
		if rn, isRange := a.(*RangeNode); isRange {
			if !spec.AcceptsRange {
				return ErrorValue(ErrValue), nil
			}
			vals, rows, cols, err := ctx.evalRange(rn)
			if err != nil {
				return Value{}, err
			}
			argVals[i] = ArgValue{IsRange: true, Values: vals, Rows: rows, Cols: cols}
		} else {
			v, err := a.Eval(ctx)
			if err != nil {
				return Value{}, err
			}
			argVals[i] = ArgValue{Values: []Value{v}}
		}
	}

	if !spec.CatchesErrors {
		var all []Value
		for _, av := range argVals {
			all = append(all, av.Values...)
		}
		if k, has := worstError(all...); has {
			return ErrorValue(k), nil
		}
	}
	return spec.EagerFn(ctx, argVals)
}

// EvalFormula evaluates a parsed AST for the cell at loc, returning the
// resulting value and the set of cells/ranges it read. Used both by the
// scheduler's recompute pass and by anything probing a formula without
// committing it to the store.
func EvalFormula(store *CellStore, registry *FunctionRegistry, loc CellKey, ast Node) (Value, map[CellKey]struct{}, bool, error) {
	ctx := newEvalContext(store, registry, loc.Sheet)
	v, err := safeEval(ast, ctx)
	if err != nil {
		return ErrorValue(ErrValue), ctx.deps, ctx.volatile, err
	}
	return v, ctx.deps, ctx.volatile, nil
}

// safeEval recovers from an unexpected panic inside a built-in function,
// converting it into the VALUE error spec §7 requires ("scheduler
// recovery": a runtime fault degrades to a cell error, not an engine
// crash).
func safeEval(ast Node, ctx *EvalContext) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = ErrorValue(ErrValue)
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	return ast.Eval(ctx)
}

// formulaReferencesIndirect reports whether ast contains a call to
// INDIRECT anywhere in its tree. INDIRECT's target cannot be known
// statically, so formulas using it are treated as volatile for
// scheduling purposes (spec §4.2, §9).
func formulaReferencesIndirect(ast Node) bool {
	found := false
	var walk func(Node)
	walk = func(n Node) {
		if found || n == nil {
			return
		}
		switch t := n.(type) {
		case *CallNode:
			if strings.EqualFold(t.Name, "INDIRECT") {
				found = true
				return
			}
			for _, a := range t.Args {
				walk(a)
			}
		case *BinaryNode:
			walk(t.Left)
			walk(t.Right)
		case *UnaryNode:
			walk(t.Operand)
		}
	}
	walk(ast)
	return found
}
