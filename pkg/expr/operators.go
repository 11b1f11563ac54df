package expr

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xplshn/z80asm/pkg/token"
)

var errDivByZero = errors.New("divide by zero")

func stringOperandError(side string, op token.Type) error {
	return fmt.Errorf("the %s operand of %s cannot be a string", side, token.TypeStrings[op])
}

func integralOperandError(side string, op token.Type) error {
	return fmt.Errorf("the %s operand of %s must be an integral type", side, token.TypeStrings[op])
}

// Binary applies op to two valid operands.
func Binary(op token.Type, left, right Value) (Value, error) {
	switch op {
	case token.Plus:
		if left.Kind() == KindString || right.Kind() == KindString {
			if left.Kind() != KindString || right.Kind() != KindString {
				return Error, errors.New("only a string can be added to a string")
			}
			return String(string(left.(String)) + string(right.(String))), nil
		}
		return arithmetic(op, left, right)
	case token.Minus, token.Mul, token.Div, token.MinOp, token.MaxOp:
		if left.Kind() == KindString {
			return Error, stringOperandError("left", op)
		}
		if right.Kind() == KindString {
			return Error, stringOperandError("right", op)
		}
		return arithmetic(op, left, right)
	case token.Mod:
		if !isIntegral(left) {
			return Error, integralOperandError("left", op)
		}
		if !isIntegral(right) {
			return Error, integralOperandError("right", op)
		}
		l, _ := AsLong(left)
		r, _ := AsLong(right)
		if r == 0 {
			return Error, errDivByZero
		}
		return Integer(l % r), nil
	case token.Shl, token.Shr:
		if !isIntegral(left) {
			return Error, integralOperandError("left", op)
		}
		if !isIntegral(right) {
			return Error, integralOperandError("right", op)
		}
		l, _ := AsLong(left)
		r, _ := AsLong(right)
		shift := uint64(r & 0xffff)
		if op == token.Shl {
			return Integer(l << shift), nil
		}
		return Integer(l >> shift), nil
	case token.Lt, token.Le, token.Gt, token.Ge, token.Equal, token.NotEqual, token.CiEqual, token.CiNotEqual:
		return compare(op, left, right)
	case token.And:
		if left.Kind() == KindString {
			if right.Kind() != KindString {
				return Error, fmt.Errorf("the right side of & must be a string")
			}
			return String(string(left.(String)) + "\r\n" + string(right.(String))), nil
		}
		fallthrough
	case token.Or, token.Xor:
		if !isIntegral(left) {
			return Error, integralOperandError("left", op)
		}
		if !isIntegral(right) {
			return Error, integralOperandError("right", op)
		}
		l, _ := AsLong(left)
		r, _ := AsLong(right)
		switch op {
		case token.And:
			return Integer(l & r), nil
		case token.Or:
			return Integer(l | r), nil
		}
		return Integer(l ^ r), nil
	}
	return Error, fmt.Errorf("unknown operator %s", token.TypeStrings[op])
}

// arithmetic handles operators whose operands are integral or real. A real
// operand makes the result real, whatever its value.
func arithmetic(op token.Type, left, right Value) (Value, error) {
	if isIntegral(left) && isIntegral(right) {
		l, _ := AsLong(left)
		r, _ := AsLong(right)
		switch op {
		case token.Plus:
			return Integer(l + r), nil
		case token.Minus:
			return Integer(l - r), nil
		case token.Mul:
			return Integer(l * r), nil
		case token.Div:
			if r == 0 {
				return Error, errDivByZero
			}
			return Integer(l / r), nil
		case token.MinOp:
			return Integer(min(l, r)), nil
		case token.MaxOp:
			return Integer(max(l, r)), nil
		}
	}

	l, _ := AsReal(left)
	r, _ := AsReal(right)
	switch op {
	case token.Plus:
		return Real(l + r), nil
	case token.Minus:
		return Real(l - r), nil
	case token.Mul:
		return Real(l * r), nil
	case token.Div:
		if math.Abs(r) < math.SmallestNonzeroFloat64 {
			return Error, errDivByZero
		}
		return Real(l / r), nil
	case token.MinOp:
		return Real(math.Min(l, r)), nil
	case token.MaxOp:
		return Real(math.Max(l, r)), nil
	}
	return Error, fmt.Errorf("unknown operator %s", token.TypeStrings[op])
}

func compare(op token.Type, left, right Value) (Value, error) {
	var cmp int
	switch {
	case left.Kind() == KindString && right.Kind() == KindString:
		l, r := string(left.(String)), string(right.(String))
		if op == token.CiEqual || op == token.CiNotEqual {
			l, r = strings.ToLower(l), strings.ToLower(r)
		}
		cmp = strings.Compare(l, r)
	case left.Kind() == KindString || right.Kind() == KindString:
		return Error, errors.New("cannot compare a string with a number")
	case isIntegral(left) && isIntegral(right):
		l, _ := AsLong(left)
		r, _ := AsLong(right)
		cmp = compareOrdered(l, r)
	default:
		l, _ := AsReal(left)
		r, _ := AsReal(right)
		cmp = compareOrdered(l, r)
	}

	switch op {
	case token.Lt:
		return Bool(cmp < 0), nil
	case token.Le:
		return Bool(cmp <= 0), nil
	case token.Gt:
		return Bool(cmp > 0), nil
	case token.Ge:
		return Bool(cmp >= 0), nil
	case token.Equal, token.CiEqual:
		return Bool(cmp == 0), nil
	}
	return Bool(cmp != 0), nil
}

func compareOrdered[T int64 | float64](l, r T) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

// Unary applies op to a valid operand.
func Unary(op token.Type, operand Value) (Value, error) {
	switch op {
	case token.Plus:
		return operand, nil
	case token.Minus:
		switch x := operand.(type) {
		case Bool, Integer:
			n, _ := AsLong(x)
			return Integer(-n), nil
		case Real:
			return Real(-x), nil
		case String:
			if f, err := AsReal(x); err == nil {
				return number(-f), nil
			}
			if n, ok := parseIntPrefix(string(x)); ok {
				return Integer(-n), nil
			}
			return Error, errors.New("cannot convert string to a number")
		}
	case token.Not:
		if !isIntegral(operand) {
			return Error, errors.New("unary logical not can be applied only on integral types")
		}
		n, _ := AsLong(operand)
		return Bool(n == 0), nil
	case token.Complement:
		if !isIntegral(operand) {
			return Error, errors.New("unary bitwise not can be applied only on integral types")
		}
		n, _ := AsLong(operand)
		return Integer(^n), nil
	}
	return Error, fmt.Errorf("unknown operator %s", token.TypeStrings[op])
}
