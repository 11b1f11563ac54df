// Package expr implements the value model and the expression evaluator of
// the assembler.
package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant of a Value
type Kind int

const (
	KindError Kind = iota
	KindNonEvaluated
	KindBool
	KindInteger
	KindReal
	KindString
)

var kindNames = map[Kind]string{
	KindError: "error", KindNonEvaluated: "non-evaluated", KindBool: "bool",
	KindInteger: "integer", KindReal: "real", KindString: "string",
}

func (k Kind) String() string { return kindNames[k] }

// Value is the result of evaluating an expression. The set of variants is
// closed: ErrorValue, NonEvaluated, Bool, Integer, Real and String.
type Value interface {
	Kind() Kind
	sealed()
}

type (
	ErrorValue   struct{}
	NonEvaluated struct{}
	Bool         bool
	Integer      int64
	Real         float64
	String       string
)

func (ErrorValue) Kind() Kind   { return KindError }
func (NonEvaluated) Kind() Kind { return KindNonEvaluated }
func (Bool) Kind() Kind         { return KindBool }
func (Integer) Kind() Kind      { return KindInteger }
func (Real) Kind() Kind         { return KindReal }
func (String) Kind() Kind       { return KindString }

func (ErrorValue) sealed()   {}
func (NonEvaluated) sealed() {}
func (Bool) sealed()         {}
func (Integer) sealed()      {}
func (Real) sealed()         {}
func (String) sealed()       {}

// Shared instances of the valueless variants
var (
	Error       Value = ErrorValue{}
	Unevaluated Value = NonEvaluated{}
)

var errUnexpected = errors.New("unexpected expression value")

// IsValid reports whether v carries an actual value.
func IsValid(v Value) bool {
	k := v.Kind()
	return k != KindError && k != KindNonEvaluated
}

func IsNonEvaluated(v Value) bool { return v.Kind() == KindNonEvaluated }

// isIntegral reports whether v takes part in integer arithmetic.
func isIntegral(v Value) bool {
	k := v.Kind()
	return k == KindBool || k == KindInteger
}

// number returns an Integer for integral finite results and a Real
// otherwise.
func number(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<62 {
		return Integer(int64(f))
	}
	return Real(f)
}

func AsLong(v Value) (int64, error) {
	switch x := v.(type) {
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case Integer:
		return int64(x), nil
	case Real:
		return int64(math.Floor(float64(x))), nil
	case String:
		if n, ok := parseIntPrefix(string(x)); ok {
			return n, nil
		}
		return 0, errors.New("cannot convert string to an integer value")
	}
	return 0, errUnexpected
}

func AsReal(v Value) (float64, error) {
	switch x := v.(type) {
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case Integer:
		return float64(x), nil
	case Real:
		return float64(x), nil
	case String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64); err == nil {
			return f, nil
		}
		return 0, errors.New("cannot convert string to a real value")
	}
	return 0, errUnexpected
}

func AsString(v Value) (string, error) {
	switch x := v.(type) {
	case Bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case Integer:
		return strconv.FormatInt(int64(x), 10), nil
	case Real:
		return strconv.FormatFloat(float64(x), 'f', -1, 64), nil
	case String:
		return string(x), nil
	}
	return "", errUnexpected
}

func AsBool(v Value) (bool, error) {
	switch x := v.(type) {
	case Bool:
		return bool(x), nil
	case Integer:
		return x != 0, nil
	case Real:
		return x != 0, nil
	case String:
		return strings.TrimSpace(string(x)) != "", nil
	}
	return false, errUnexpected
}

func AsWord(v Value) (uint16, error) {
	n, err := AsLong(v)
	return uint16(n & 0xffff), err
}

func AsByte(v Value) (byte, error) {
	n, err := AsLong(v)
	return byte(n & 0xff), err
}

// Format renders v for diagnostics and listings.
func Format(v Value) string {
	if s, err := AsString(v); err == nil {
		return s
	}
	return fmt.Sprintf("<%s>", v.Kind())
}

// parseIntPrefix parses the leading integer of s, the way loosely typed
// string conversions do ("12abc" is 12, "0x1F" is 31).
func parseIntPrefix(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	base, digits := 10, "0123456789"
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		base, digits, s = 16, "0123456789abcdefABCDEF", s[2:]
	}
	end := 0
	for end < len(s) && strings.IndexByte(digits, s[end]) >= 0 {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
