package jinja

import (
	"fmt"
	"math"
)

// binaryOp applies a non short-circuit binary operator to two resolved
// values. Arithmetic stays in integers while both sides are ints, except for
// "/" which always yields a float.
func binaryOp(op string, left, right Value) (Value, error) {
	switch op {
	case "==":
		return Bool(left.Equal(right)), nil
	case "!=":
		return Bool(!left.Equal(right)), nil
	case "<", ">", "<=", ">=":
		return compare(op, left, right)
	case "+":
		if left.kind == KindString && right.kind == KindString {
			return String(left.str + right.str), nil
		}
		if left.kind == KindSequence && right.kind == KindSequence {
			items := make([]Value, 0, len(left.seq)+len(right.seq))
			items = append(items, left.seq...)
			items = append(items, right.seq...)
			return Value{kind: KindSequence, seq: items}, nil
		}
		return arithmetic(op, left, right)
	case "-", "*", "/":
		return arithmetic(op, left, right)
	}
	return Value{}, fmt.Errorf("unknown operator %q", op)
}

func arithmetic(op string, left, right Value) (Value, error) {
	if !left.isNumber() || !right.isNumber() {
		return Value{}, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, left.kind, op, right.kind)
	}
	if op == "/" {
		a, _ := left.AsFloat()
		b, _ := right.AsFloat()
		if b == 0 {
			return Value{}, ErrDivisionByZero
		}
		return Float(a / b), nil
	}
	if left.kind == KindInt && right.kind == KindInt {
		a, b := left.num, right.num
		switch op {
		case "+":
			if r := a + b; (r > a) == (b > 0) {
				return Int(r), nil
			}
		case "-":
			if r := a - b; (r < a) == (b > 0) {
				return Int(r), nil
			}
		case "*":
			if a == 0 || b == 0 {
				return Int(0), nil
			}
			if r := a * b; r/b == a && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64) {
				return Int(r), nil
			}
		}
		// Overflowed, fall back to floating point.
	}
	a, _ := left.AsFloat()
	b, _ := right.AsFloat()
	switch op {
	case "+":
		return Float(a + b), nil
	case "-":
		return Float(a - b), nil
	default:
		return Float(a * b), nil
	}
}

func compare(op string, left, right Value) (Value, error) {
	var c int
	switch {
	case left.isNumber() && right.isNumber():
		if left.kind == KindInt && right.kind == KindInt {
			c = cmpOrdered(left.num, right.num)
		} else {
			a, _ := left.AsFloat()
			b, _ := right.AsFloat()
			c = cmpOrdered(a, b)
		}
	case left.kind == KindString && right.kind == KindString:
		c = cmpOrdered(left.str, right.str)
	default:
		return Value{}, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, left.kind, op, right.kind)
	}
	switch op {
	case "<":
		return Bool(c < 0), nil
	case ">":
		return Bool(c > 0), nil
	case "<=":
		return Bool(c <= 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

func cmpOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func negate(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		if v.num == math.MinInt64 {
			return Float(-float64(v.num)), nil
		}
		return Int(-v.num), nil
	case KindFloat:
		return Float(-v.flt), nil
	}
	return Value{}, fmt.Errorf("%w: cannot negate %s", ErrTypeMismatch, v.kind)
}
