package spreadsheet

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ArgMode tells the evaluator whether a function's arguments should be
// evaluated eagerly (normal functions) or handed over as thunks so the
// function body controls which branches run (spec §4.2: IF/IFERROR/
// CHOOSE/AND/OR only contribute dependencies for the branches they take).
type ArgMode int

const (
	ArgEager ArgMode = iota
	ArgLazy
)

// EagerFunc is a built-in whose arguments have already been evaluated
// (and, unless CatchesErrors, already checked for a propagating error).
type EagerFunc func(ctx *EvalContext, args []ArgValue) (Value, error)

// LazyFunc is a built-in that controls its own argument evaluation order
// and which arguments get evaluated at all.
type LazyFunc func(ctx *EvalContext, args []LazyArg) (Value, error)

// FunctionSpec describes one built-in's calling convention (spec §4.2):
// arity bounds (MaxArgs -1 means unbounded), laziness, volatility, range
// acceptance, and whether it wants to see error-valued arguments itself
// rather than short-circuit automatically.
type FunctionSpec struct {
	Name          string
	MinArgs       int
	MaxArgs       int
	Mode          ArgMode
	Volatile      bool
	CatchesErrors bool
	AcceptsRange  bool
	EagerFn       EagerFunc
	LazyFn        LazyFunc
}

// FunctionRegistry is the lookup table handed to the evaluator. Built
// once and shared by every EvalContext, mirroring the grammar table's
// "constructed once, shared immutably" resource discipline (spec §9).
type FunctionRegistry struct {
	funcs map[string]*FunctionSpec
	clock Clock
	rng   RandomSource
}

func (r *FunctionRegistry) Lookup(name string) (*FunctionSpec, bool) {
	spec, ok := r.funcs[strings.ToUpper(name)]
	return spec, ok
}

// Clock and RandomSource are seams for deterministic testing of NOW/
// TODAY/RAND/RANDBETWEEN, grounded on the teacher's own Clock/
// RandomGenerator interfaces for its volatile built-ins.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

// NewDefaultFunctionRegistry builds the registry with the production
// Clock/RandomSource. Tests that need determinism should use
// NewFunctionRegistry directly with fakes.
func NewDefaultFunctionRegistry() *FunctionRegistry {
	return NewFunctionRegistry(systemClock{}, newMathRandSource())
}

func NewFunctionRegistry(clock Clock, rng RandomSource) *FunctionRegistry {
	r := &FunctionRegistry{funcs: make(map[string]*FunctionSpec), clock: clock, rng: rng}
	r.registerAll()
	return r
}

func (r *FunctionRegistry) reg(spec *FunctionSpec) {
	r.funcs[spec.Name] = spec
}

func (r *FunctionRegistry) registerAll() {
	r.registerAggregates()
	r.registerLogical()
	r.registerText()
	r.registerMath()
	r.registerVolatile()
	r.registerLookup()
}

// --- aggregates -------------------------------------------------------

func flatten(args []ArgValue) []Value {
	var out []Value
	for _, a := range args {
		out = append(out, a.Values...)
	}
	return out
}

func numericMembers(vals []Value) ([]decimal.Decimal, *ErrorKind) {
	var out []decimal.Decimal
	for _, v := range vals {
		if v.Kind == KindEmpty || v.Kind == KindString || v.Kind == KindBool {
			continue // SUM/AVERAGE/etc. ignore non-numeric members silently (range semantics)
		}
		n, err := ToNumber(v)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *FunctionRegistry) registerAggregates() {
	r.reg(&FunctionSpec{Name: "SUM", MinArgs: 0, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		nums, err := numericMembers(flatten(args))
		if err != nil {
			return ErrorValue(*err), nil
		}
		total := decimal.Zero
		for _, n := range nums {
			total = total.Add(n)
		}
		return NumberValue(total), nil
	}})

	r.reg(&FunctionSpec{Name: "AVERAGE", MinArgs: 1, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		nums, err := numericMembers(flatten(args))
		if err != nil {
			return ErrorValue(*err), nil
		}
		if len(nums) == 0 {
			return ErrorValue(ErrDivZero), nil
		}
		total := decimal.Zero
		for _, n := range nums {
			total = total.Add(n)
		}
		return NumberValue(total.Div(decimal.NewFromInt(int64(len(nums))))), nil
	}})

	r.reg(&FunctionSpec{Name: "AVERAGEA", MinArgs: 1, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		vals := flatten(args)
		if len(vals) == 0 {
			return ErrorValue(ErrDivZero), nil
		}
		total := decimal.Zero
		for _, v := range vals {
			n, err := ToNumber(v)
			if err != nil {
				return ErrorValue(*err), nil
			}
			total = total.Add(n)
		}
		return NumberValue(total.Div(decimal.NewFromInt(int64(len(vals))))), nil
	}})

	r.reg(&FunctionSpec{Name: "COUNT", MinArgs: 0, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		count := 0
		for _, v := range flatten(args) {
			if v.Kind == KindNumber {
				count++
			}
		}
		return IntValue(int64(count)), nil
	}})

	r.reg(&FunctionSpec{Name: "COUNTA", MinArgs: 0, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		count := 0
		for _, v := range flatten(args) {
			if v.Kind != KindEmpty {
				count++
			}
		}
		return IntValue(int64(count)), nil
	}})

	r.reg(&FunctionSpec{Name: "MAX", MinArgs: 0, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		nums, err := numericMembers(flatten(args))
		if err != nil {
			return ErrorValue(*err), nil
		}
		if len(nums) == 0 {
			return NumberValue(decimal.Zero), nil
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if n.GreaterThan(best) {
				best = n
			}
		}
		return NumberValue(best), nil
	}})

	r.reg(&FunctionSpec{Name: "MIN", MinArgs: 0, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		nums, err := numericMembers(flatten(args))
		if err != nil {
			return ErrorValue(*err), nil
		}
		if len(nums) == 0 {
			return NumberValue(decimal.Zero), nil
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if n.LessThan(best) {
				best = n
			}
		}
		return NumberValue(best), nil
	}})

	r.reg(&FunctionSpec{Name: "MEDIAN", MinArgs: 1, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		nums, err := numericMembers(flatten(args))
		if err != nil {
			return ErrorValue(*err), nil
		}
		if len(nums) == 0 {
			return ErrorValue(ErrDivZero), nil
		}
		sort.Slice(nums, func(i, j int) bool { return nums[i].LessThan(nums[j]) })
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return NumberValue(nums[mid]), nil
		}
		return NumberValue(nums[mid-1].Add(nums[mid]).Div(decimal.NewFromInt(2))), nil
	}})

	r.reg(&FunctionSpec{Name: "MODE", MinArgs: 1, MaxArgs: -1, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		nums, err := numericMembers(flatten(args))
		if err != nil {
			return ErrorValue(*err), nil
		}
		counts := make(map[string]int)
		order := make(map[string]decimal.Decimal)
		for _, n := range nums {
			key := n.String()
			counts[key]++
			order[key] = n
		}
		bestCount := 0
		var best decimal.Decimal
		found := false
		for _, n := range nums {
			key := n.String()
			if counts[key] > bestCount {
				bestCount = counts[key]
				best = n
				found = true
			}
		}
		if !found || bestCount < 2 {
			return ErrorValue(ErrValue), nil
		}
		return NumberValue(best), nil
	}})
}

// --- logical (lazy) ----------------------------------------------------

func (r *FunctionRegistry) registerLogical() {
	r.reg(&FunctionSpec{Name: "IF", MinArgs: 2, MaxArgs: 3, Mode: ArgLazy, LazyFn: func(ctx *EvalContext, args []LazyArg) (Value, error) {
		cond, err := args[0]()
		if err != nil {
			return Value{}, err
		}
		if cond.IsError() {
			return cond, nil
		}
		b, berr := ToBool(cond)
		if berr != nil {
			return ErrorValue(*berr), nil
		}
		if b {
			return args[1]()
		}
		if len(args) == 3 {
			return args[2]()
		}
		return BoolValue(false), nil
	}})

	r.reg(&FunctionSpec{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, Mode: ArgLazy, LazyFn: func(ctx *EvalContext, args []LazyArg) (Value, error) {
		v, err := args[0]()
		if err != nil {
			return Value{}, err
		}
		if v.IsError() {
			return args[1]()
		}
		return v, nil
	}})

	r.reg(&FunctionSpec{Name: "AND", MinArgs: 1, MaxArgs: -1, Mode: ArgLazy, LazyFn: func(ctx *EvalContext, args []LazyArg) (Value, error) {
		for _, a := range args {
			v, err := a()
			if err != nil {
				return Value{}, err
			}
			if v.IsError() {
				return v, nil
			}
			b, berr := ToBool(v)
			if berr != nil {
				return ErrorValue(*berr), nil
			}
			if !b {
				return BoolValue(false), nil
			}
		}
		return BoolValue(true), nil
	}})

	r.reg(&FunctionSpec{Name: "OR", MinArgs: 1, MaxArgs: -1, Mode: ArgLazy, LazyFn: func(ctx *EvalContext, args []LazyArg) (Value, error) {
		for _, a := range args {
			v, err := a()
			if err != nil {
				return Value{}, err
			}
			if v.IsError() {
				return v, nil
			}
			b, berr := ToBool(v)
			if berr != nil {
				return ErrorValue(*berr), nil
			}
			if b {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	}})

	r.reg(&FunctionSpec{Name: "NOT", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		b, err := ToBool(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		return BoolValue(!b), nil
	}})

	r.reg(&FunctionSpec{Name: "CHOOSE", MinArgs: 2, MaxArgs: -1, Mode: ArgLazy, LazyFn: func(ctx *EvalContext, args []LazyArg) (Value, error) {
		idxVal, err := args[0]()
		if err != nil {
			return Value{}, err
		}
		if idxVal.IsError() {
			return idxVal, nil
		}
		n, nerr := ToNumber(idxVal)
		if nerr != nil {
			return ErrorValue(*nerr), nil
		}
		i := int(n.IntPart())
		if i < 1 || i > len(args)-1 {
			return ErrorValue(ErrValue), nil
		}
		return args[i]()
	}})

	r.reg(&FunctionSpec{Name: "ISERROR", MinArgs: 1, MaxArgs: 1, CatchesErrors: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return BoolValue(args[0].Scalar().IsError()), nil
	}})
}

// --- text ---------------------------------------------------------------

func (r *FunctionRegistry) registerText() {
	r.reg(&FunctionSpec{Name: "CONCATENATE", MinArgs: 1, MaxArgs: -1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		var sb strings.Builder
		for _, v := range flatten(args) {
			sb.WriteString(ToText(v))
		}
		return StringValue(sb.String()), nil
	}})

	r.reg(&FunctionSpec{Name: "LEN", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return IntValue(int64(len([]rune(ToText(args[0].Scalar()))))), nil
	}})

	r.reg(&FunctionSpec{Name: "UPPER", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return StringValue(strings.ToUpper(ToText(args[0].Scalar()))), nil
	}})

	r.reg(&FunctionSpec{Name: "LOWER", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return StringValue(strings.ToLower(ToText(args[0].Scalar()))), nil
	}})

	r.reg(&FunctionSpec{Name: "TRIM", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return StringValue(strings.TrimSpace(ToText(args[0].Scalar()))), nil
	}})
}

// --- math -----------------------------------------------------------------

func decimalArg(v Value) (decimal.Decimal, *ErrorKind) {
	return ToNumber(v)
}

func (r *FunctionRegistry) registerMath() {
	r.reg(&FunctionSpec{Name: "ABS", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		n, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		return NumberValue(n.Abs()), nil
	}})

	r.reg(&FunctionSpec{Name: "ROUND", MinArgs: 2, MaxArgs: 2, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		n, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		places, perr := decimalArg(args[1].Scalar())
		if perr != nil {
			return ErrorValue(*perr), nil
		}
		return NumberValue(n.Round(int32(places.IntPart()))), nil
	}})

	r.reg(&FunctionSpec{Name: "FLOOR", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		n, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		return NumberValue(n.Floor()), nil
	}})

	r.reg(&FunctionSpec{Name: "CEILING", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		n, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		return NumberValue(n.Ceil()), nil
	}})

	r.reg(&FunctionSpec{Name: "SQRT", MinArgs: 1, MaxArgs: 1, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		n, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		if n.IsNegative() {
			return ErrorValue(ErrValue), nil
		}
		f, _ := n.Float64()
		return NumberValue(decimal.NewFromFloat(math.Sqrt(f))), nil
	}})

	r.reg(&FunctionSpec{Name: "POWER", MinArgs: 2, MaxArgs: 2, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		base, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		exp, eerr := decimalArg(args[1].Scalar())
		if eerr != nil {
			return ErrorValue(*eerr), nil
		}
		bf, _ := base.Float64()
		ef, _ := exp.Float64()
		return NumberValue(decimal.NewFromFloat(math.Pow(bf, ef))), nil
	}})

	r.reg(&FunctionSpec{Name: "MOD", MinArgs: 2, MaxArgs: 2, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		a, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		b, berr := decimalArg(args[1].Scalar())
		if berr != nil {
			return ErrorValue(*berr), nil
		}
		if b.IsZero() {
			return ErrorValue(ErrDivZero), nil
		}
		return NumberValue(a.Mod(b)), nil
	}})

	r.reg(&FunctionSpec{Name: "PI", MinArgs: 0, MaxArgs: 0, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return NumberValue(decimal.NewFromFloat(math.Pi)), nil
	}})
}

// --- volatile -------------------------------------------------------------

func (r *FunctionRegistry) registerVolatile() {
	r.reg(&FunctionSpec{Name: "NOW", MinArgs: 0, MaxArgs: 0, Volatile: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return StringValue(r.clock.Now().Format(time.RFC3339)), nil
	}})

	r.reg(&FunctionSpec{Name: "TODAY", MinArgs: 0, MaxArgs: 0, Volatile: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return StringValue(r.clock.Now().Format("2006-01-02")), nil
	}})

	r.reg(&FunctionSpec{Name: "RAND", MinArgs: 0, MaxArgs: 0, Volatile: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return NumberValue(decimal.NewFromFloat(r.rng.Float64())), nil
	}})

	r.reg(&FunctionSpec{Name: "RANDBETWEEN", MinArgs: 2, MaxArgs: 2, Volatile: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		lo, err := decimalArg(args[0].Scalar())
		if err != nil {
			return ErrorValue(*err), nil
		}
		hi, herr := decimalArg(args[1].Scalar())
		if herr != nil {
			return ErrorValue(*herr), nil
		}
		lo64, hi64 := lo.IntPart(), hi.IntPart()
		if hi64 < lo64 {
			return ErrorValue(ErrValue), nil
		}
		span := int(hi64-lo64) + 1
		return IntValue(lo64 + int64(r.rng.Intn(span))), nil
	}})
}

// --- lookup / indirect ------------------------------------------------------

func (r *FunctionRegistry) registerLookup() {
	r.reg(&FunctionSpec{Name: "VLOOKUP", MinArgs: 3, MaxArgs: 4, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return lookup(args, true)
	}})
	r.reg(&FunctionSpec{Name: "HLOOKUP", MinArgs: 3, MaxArgs: 4, AcceptsRange: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		return lookup(args, false)
	}})

	// INDIRECT's target cell cannot be known until its text argument is
	// evaluated, so its dependency is added by hand rather than by the
	// normal RefNode path; formulas containing it are additionally
	// flagged volatile by formulaReferencesIndirect (evaluator.go).
	r.reg(&FunctionSpec{Name: "INDIRECT", MinArgs: 1, MaxArgs: 1, Volatile: true, EagerFn: func(ctx *EvalContext, args []ArgValue) (Value, error) {
		ref := ToText(args[0].Scalar())
		col, row, _, _, ok := ParseCellAddress(ref)
		if !ok || !InRange(col, row) {
			return ErrorValue(ErrBadRef), nil
		}
		key := CellKey{Sheet: ctx.sheet, Col: col, Row: row}
		ctx.addDep(key)
		if cell, ok := ctx.store.getCell(key); ok {
			return cell.Value, nil
		}
		return EmptyValue(), nil
	}})
}

// lookup implements VLOOKUP (vertical) / HLOOKUP (horizontal): args[0]
// is the key to find, args[1] the range (flattened row-major, with its
// shape in Rows/Cols), args[2] the 1-based column (VLOOKUP) or row
// (HLOOKUP) to return. Only exact matches are found; a fourth argument
// is accepted but not used.
func lookup(args []ArgValue, vertical bool) (Value, error) {
	key := args[0].Scalar()
	table := args[1]
	if !table.IsRange {
		return ErrorValue(ErrValue), nil
	}
	idxVal, err := decimalArg(args[2].Scalar())
	if err != nil {
		return ErrorValue(*err), nil
	}
	idx := int(idxVal.IntPart())
	if idx < 1 {
		return ErrorValue(ErrValue), nil
	}

	rows := table.Rows
	cols := table.Cols
	if rows == 0 || cols == 0 {
		return ErrorValue(ErrBadRef), nil
	}

	if vertical {
		if idx > cols {
			return ErrorValue(ErrBadRef), nil
		}
		for row := 0; row < rows; row++ {
			cell := table.Values[row*cols]
			if valuesMatch(cell, key) {
				return table.Values[row*cols+(idx-1)], nil
			}
		}
	} else {
		if idx > rows {
			return ErrorValue(ErrBadRef), nil
		}
		for col := 0; col < cols; col++ {
			cell := table.Values[col]
			if valuesMatch(cell, key) {
				return table.Values[(idx-1)*cols+col], nil
			}
		}
	}
	return ErrorValue(ErrValue), nil
}

func valuesMatch(a, b Value) bool {
	return Compare(OpEq, a, b).Bool
}

// mathRandSource is the production RandomSource: a *rand.Rand seeded
// once from the wall clock, guarded by a mutex since a FunctionRegistry
// is shared across concurrent evaluations.
type mathRandSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newMathRandSource() RandomSource {
	return &mathRandSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *mathRandSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *mathRandSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}
