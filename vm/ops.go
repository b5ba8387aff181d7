package vm

import (
	"math"

	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/op"
	"github.com/deepnoodle-ai/regvm/value"
)

// binaryOp evaluates one of the eleven dst/a/b operations.
func binaryOp(opcode op.Code, a, b value.Value) (value.Value, *errz.RuntimeError) {
	if a.IsEmpty() || b.IsEmpty() {
		return value.Empty, emptyError("%s operand is empty", opcode)
	}
	switch opcode {
	case op.Eq:
		return value.Bool(equal(a, b)), nil
	case op.NotEq:
		return value.Bool(!equal(a, b)), nil
	case op.And, op.Or:
		x, okA := a.AsBool()
		y, okB := b.AsBool()
		if !okA || !okB {
			return value.Empty, mismatch(opcode, a, b)
		}
		if opcode == op.And {
			return value.Bool(x && y), nil
		}
		return value.Bool(x || y), nil
	case op.Less, op.LessEq:
		return compare(opcode, a, b)
	default:
		return arithmetic(opcode, a, b)
	}
}

func mismatch(opcode op.Code, a, b value.Value) *errz.RuntimeError {
	return typeError("unsupported operand kinds for %s: %s and %s", opcode, a.Kind(), b.Kind())
}

// equal is language-level equality: values of different kinds are never
// equal and floats compare numerically.
func equal(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	if x, ok := a.AsFloat(); ok {
		y, _ := b.AsFloat()
		return x == y
	}
	return value.Equal(a, b)
}

func compare(opcode op.Code, a, b value.Value) (value.Value, *errz.RuntimeError) {
	if a.Kind() != b.Kind() {
		return value.Empty, mismatch(opcode, a, b)
	}
	var less, eq bool
	switch a.Kind() {
	case value.KindInt:
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		less, eq = x < y, x == y
	case value.KindFloat:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		less, eq = x < y, x == y
	case value.KindChar:
		x, _ := a.AsChar()
		y, _ := b.AsChar()
		less, eq = x < y, x == y
	default:
		return value.Empty, mismatch(opcode, a, b)
	}
	if opcode == op.LessEq {
		return value.Bool(less || eq), nil
	}
	return value.Bool(less), nil
}

func arithmetic(opcode op.Code, a, b value.Value) (value.Value, *errz.RuntimeError) {
	if a.Kind() != b.Kind() {
		return value.Empty, mismatch(opcode, a, b)
	}
	switch a.Kind() {
	case value.KindInt:
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		switch opcode {
		case op.Add:
			return value.Int(x + y), nil
		case op.Sub:
			return value.Int(x - y), nil
		case op.Mul:
			return value.Int(x * y), nil
		case op.Div, op.Mod:
			if y == 0 {
				return value.Empty, errz.NewRuntimeError(errz.E3002, errz.ErrValue,
					"integer %s by zero", opcode).WithCause(ErrDivisionByZero)
			}
			if opcode == op.Div {
				return value.Int(x / y), nil
			}
			return value.Int(x % y), nil
		}
	case value.KindFloat:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		switch opcode {
		case op.Add:
			return value.Float(x + y), nil
		case op.Sub:
			return value.Float(x - y), nil
		case op.Mul:
			return value.Float(x * y), nil
		case op.Div:
			return value.Float(x / y), nil
		case op.Mod:
			return value.Float(math.Mod(x, y)), nil
		}
	}
	return value.Empty, mismatch(opcode, a, b)
}
