package spreadsheet

import (
	"strings"

	"github.com/shopspring/decimal"
)

// canonicalDecimalText renders a decimal with no trailing fractional
// zeros and no trailing decimal point (spec §4.1's display normalization,
// applied uniformly to literals and computed results per §4.2's
// "canonical decimal text" concatenation rule).
func canonicalDecimalText(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// worstError returns the highest-priority (lowest enum value) error among
// the given values, per spec §3's ordered error set.
func worstError(vals ...Value) (ErrorKind, bool) {
	best := -1
	var out ErrorKind
	for _, v := range vals {
		if v.Kind != KindError {
			continue
		}
		if best == -1 || int(v.Err) < best {
			best = int(v.Err)
			out = v.Err
		}
	}
	return out, best != -1
}

// ToNumber coerces a value to a number per spec §4.2: boolean -> 1/0,
// string -> parsed decimal (else VALUE), empty -> 0, error propagates.
func ToNumber(v Value) (decimal.Decimal, *ErrorKind) {
	switch v.Kind {
	case KindNumber:
		return v.Num, nil
	case KindBool:
		if v.Bool {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case KindEmpty:
		return decimal.Zero, nil
	case KindString:
		d, err := decimal.NewFromString(strings.TrimSpace(v.Str))
		if err != nil {
			k := ErrValue
			return decimal.Zero, &k
		}
		return d, nil
	case KindError:
		k := v.Err
		return decimal.Zero, &k
	default:
		k := ErrValue
		return decimal.Zero, &k
	}
}

// ToText coerces a value to its string/concatenation form (spec §4.2).
func ToText(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return canonicalDecimalText(v.Num)
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case KindEmpty:
		return ""
	case KindError:
		return v.Err.String()
	default:
		return ""
	}
}

// ToBool coerces a value to a boolean (spec §4.2: empty cells read as
// false in boolean contexts).
func ToBool(v Value) (bool, *ErrorKind) {
	switch v.Kind {
	case KindBool:
		return v.Bool, nil
	case KindEmpty:
		return false, nil
	case KindNumber:
		return !v.Num.IsZero(), nil
	case KindString:
		s := strings.ToUpper(strings.TrimSpace(v.Str))
		switch s {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		default:
			k := ErrValue
			return false, &k
		}
	case KindError:
		k := v.Err
		return false, &k
	default:
		k := ErrValue
		return false, &k
	}
}

// Arithmetic applies a binary arithmetic operator under spec §4.2's
// numeric coercion, with error propagation and a DIV_ZERO result for
// division by zero.
func Arithmetic(op BinOp, left, right Value) Value {
	if k, has := worstError(left, right); has {
		return ErrorValue(k)
	}
	l, lerr := ToNumber(left)
	if lerr != nil {
		return ErrorValue(*lerr)
	}
	r, rerr := ToNumber(right)
	if rerr != nil {
		return ErrorValue(*rerr)
	}
	switch op {
	case OpAdd:
		return NumberValue(l.Add(r))
	case OpSub:
		return NumberValue(l.Sub(r))
	case OpMul:
		return NumberValue(l.Mul(r))
	case OpDiv:
		if r.IsZero() {
			return ErrorValue(ErrDivZero)
		}
		return NumberValue(l.Div(r))
	default:
		return ErrorValue(ErrValue)
	}
}

// UnarySign applies unary +/- under numeric coercion.
func UnarySign(op UnOp, v Value) Value {
	if v.Kind == KindError {
		return v
	}
	n, err := ToNumber(v)
	if err != nil {
		return ErrorValue(*err)
	}
	if op == UnMinus {
		return NumberValue(n.Neg())
	}
	return NumberValue(n)
}

// Concat applies string concatenation under spec §4.2's text coercion.
func Concat(left, right Value) Value {
	if k, has := worstError(left, right); has {
		return ErrorValue(k)
	}
	return StringValue(ToText(left) + ToText(right))
}

// Compare implements spec §4.2's comparison semantics: if both operands
// coerce to the same primitive category, compare by that category's
// order (case-insensitive strings); otherwise compare by category rank
// boolean > string > number, treating a lone empty operand as the
// default of the other side's category (0, "", or false) rather than its
// own rank.
func Compare(op BinOp, left, right Value) Value {
	if k, has := worstError(left, right); has {
		return ErrorValue(k)
	}

	cmp := CompareValues(left, right)

	var result bool
	switch op {
	case OpEq:
		result = cmp == 0
	case OpNe:
		result = cmp != 0
	case OpLt:
		result = cmp < 0
	case OpGt:
		result = cmp > 0
	case OpLe:
		result = cmp <= 0
	case OpGe:
		result = cmp >= 0
	}
	return BoolValue(result)
}

// CompareValues computes the three-way comparison spec §4.2 describes
// (same-category order, or category rank with empty defaulting to the
// other side's category), independent of error propagation — used both
// by Compare's boolean-result operators and by sort's key ordering.
// Error-valued operands sort after everything else, ordered by error
// code between themselves; callers needing §4.2's error-wins-as-result
// semantics should check worstError first.
func CompareValues(left, right Value) int {
	if left.Kind == KindError && right.Kind == KindError {
		return int(left.Err) - int(right.Err)
	}
	if left.Kind == KindError {
		return 1
	}
	if right.Kind == KindError {
		return -1
	}

	lk, rk := categoryOf(left), categoryOf(right)
	switch {
	case left.Kind == KindEmpty && right.Kind == KindEmpty:
		return 0
	case left.Kind == KindEmpty:
		return compareSameCategory(rk, defaultOf(rk), right)
	case right.Kind == KindEmpty:
		return compareSameCategory(lk, left, defaultOf(lk))
	case lk == rk:
		return compareSameCategory(lk, left, right)
	default:
		switch {
		case categoryRankFor(lk) < categoryRankFor(rk):
			return -1
		case categoryRankFor(lk) > categoryRankFor(rk):
			return 1
		default:
			return 0
		}
	}
}

// categoryOf maps a non-empty value's kind to its comparison category
// (number values default everything that isn't bool/string).
func categoryOf(v Value) ValueKind {
	switch v.Kind {
	case KindBool:
		return KindBool
	case KindString:
		return KindString
	default:
		return KindNumber
	}
}

func defaultOf(k ValueKind) Value {
	switch k {
	case KindBool:
		return BoolValue(false)
	case KindString:
		return StringValue("")
	default:
		return NumberValue(decimal.Zero)
	}
}

func categoryRankFor(k ValueKind) int {
	switch k {
	case KindBool:
		return 2
	case KindString:
		return 1
	default:
		return 0
	}
}

func compareSameCategory(k ValueKind, left, right Value) int {
	switch k {
	case KindBool:
		lb, _ := ToBool(left)
		rb, _ := ToBool(right)
		if lb == rb {
			return 0
		}
		if !lb && rb {
			return -1
		}
		return 1
	case KindString:
		ls := strings.ToUpper(ToText(left))
		rs := strings.ToUpper(ToText(right))
		return strings.Compare(ls, rs)
	default:
		ln, _ := ToNumber(left)
		rn, _ := ToNumber(right)
		return ln.Cmp(rn)
	}
}
