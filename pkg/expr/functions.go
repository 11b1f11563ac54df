package expr

import (
	"fmt"
	"math"
	"strings"
)

type signature struct {
	args []Kind
	fn   func(r *Random, args []Value) (Value, error)
}

func asInt(v Value) int64 {
	n, _ := AsLong(v)
	return n
}

func asFloat(v Value) float64 {
	f, _ := AsReal(v)
	return f
}

func asText(v Value) string {
	s, _ := AsString(v)
	return s
}

func realFunc(f func(float64) float64) []signature {
	return []signature{{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) {
		return number(f(asFloat(a[0]))), nil
	}}}
}

func checkScreenPos(name string, line, col int64) error {
	if line < 0 || line > 191 {
		return fmt.Errorf("the 'line' argument of %s must be between 0 and 191, it cannot be %d", name, line)
	}
	if col < 0 || col > 255 {
		return fmt.Errorf("the 'col' argument of %s must be between 0 and 255, it cannot be %d", name, col)
	}
	return nil
}

func attribute(ink, paper, bright, flash int64) Value {
	attr := ink&0x07 | (paper&0x07)<<3
	if bright != 0 {
		attr |= 0x40
	}
	if flash != 0 {
		attr |= 0x80
	}
	return Integer(attr & 0xff)
}

var functions map[string][]signature

func init() {
	ii := []Kind{KindInteger, KindInteger}
	rr := []Kind{KindReal, KindReal}
	si := []Kind{KindString, KindInteger}

	functions = map[string][]signature{
		"abs": {
			{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) {
				n := asInt(a[0])
				if n < 0 {
					n = -n
				}
				return Integer(n), nil
			}},
			{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) { return number(math.Abs(asFloat(a[0]))), nil }},
		},
		"acos":     realFunc(math.Acos),
		"asin":     realFunc(math.Asin),
		"atan":     realFunc(math.Atan),
		"ceiling":  realFunc(math.Ceil),
		"cos":      realFunc(math.Cos),
		"cosh":     realFunc(math.Cosh),
		"exp":      realFunc(math.Exp),
		"floor":    realFunc(math.Floor),
		"log10":    realFunc(math.Log10),
		"sin":      realFunc(math.Sin),
		"sinh":     realFunc(math.Sinh),
		"sqrt":     realFunc(math.Sqrt),
		"tan":      realFunc(math.Tan),
		"tanh":     realFunc(math.Tanh),
		"truncate": realFunc(math.Trunc),
		"round":    realFunc(func(f float64) float64 { return math.Floor(f + 0.5) }),
		"atan2": {{rr, func(_ *Random, a []Value) (Value, error) {
			return number(math.Atan2(asFloat(a[0]), asFloat(a[1]))), nil
		}}},
		"log": {
			{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) { return number(math.Log(asFloat(a[0]))), nil }},
			{rr, func(_ *Random, a []Value) (Value, error) {
				base := 1.0
				if asFloat(a[1]) != 0 {
					base = math.Log(asFloat(a[1]))
				}
				return number(math.Log(asFloat(a[0])) / base), nil
			}},
		},
		"max": {
			{ii, func(_ *Random, a []Value) (Value, error) { return Integer(max(asInt(a[0]), asInt(a[1]))), nil }},
			{rr, func(_ *Random, a []Value) (Value, error) { return number(math.Max(asFloat(a[0]), asFloat(a[1]))), nil }},
		},
		"min": {
			{ii, func(_ *Random, a []Value) (Value, error) { return Integer(min(asInt(a[0]), asInt(a[1]))), nil }},
			{rr, func(_ *Random, a []Value) (Value, error) { return number(math.Min(asFloat(a[0]), asFloat(a[1]))), nil }},
		},
		"pow": {{rr, func(_ *Random, a []Value) (Value, error) {
			return number(math.Pow(asFloat(a[0]), asFloat(a[1]))), nil
		}}},
		"sign": {
			{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) {
				return Integer(compareOrdered(asInt(a[0]), 0)), nil
			}},
			{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) {
				return Integer(compareOrdered(asFloat(a[0]), 0)), nil
			}},
		},
		"pi":  {{nil, func(*Random, []Value) (Value, error) { return Real(math.Pi), nil }}},
		"nat": {{nil, func(*Random, []Value) (Value, error) { return Real(math.E), nil }}},
		"lowbyte": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) {
			return Integer(asInt(a[0]) & 0xff), nil
		}}},
		"highbyte": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) {
			return Integer(asInt(a[0]) >> 8 & 0xff), nil
		}}},
		"word": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) {
			return Integer(asInt(a[0]) & 0xffff), nil
		}}},
		"rnd": {
			{nil, func(r *Random, _ []Value) (Value, error) { return Integer(r.Integer(0, 65536)), nil }},
			{ii, func(r *Random, a []Value) (Value, error) { return Integer(r.Integer(asInt(a[0]), asInt(a[1]))), nil }},
		},
		"length": {{[]Kind{KindString}, func(_ *Random, a []Value) (Value, error) {
			return Integer(len(asText(a[0]))), nil
		}}},
		"left": {{si, func(_ *Random, a []Value) (Value, error) {
			s := asText(a[0])
			n := clamp(asInt(a[1]), 0, int64(len(s)))
			return String(s[:n]), nil
		}}},
		"right": {{si, func(_ *Random, a []Value) (Value, error) {
			s := asText(a[0])
			n := clamp(asInt(a[1]), 0, int64(len(s)))
			return String(s[int64(len(s))-n:]), nil
		}}},
		"mid": {{[]Kind{KindString, KindInteger, KindInteger}, func(_ *Random, a []Value) (Value, error) {
			s := asText(a[0])
			start := clamp(asInt(a[1]), 0, int64(len(s)))
			n := clamp(asInt(a[2]), 0, int64(len(s))-start)
			return String(s[start : start+n]), nil
		}}},
		"fill": {{si, func(_ *Random, a []Value) (Value, error) {
			s, count := asText(a[0]), asInt(a[1])
			if count < 0 {
				count = 0
			}
			if int64(len(s))*count > 0x4000 {
				return Error, fmt.Errorf("the result of fill() would be longer than #4000 bytes")
			}
			return String(strings.Repeat(s, int(count))), nil
		}}},
		"int": {{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) { return Integer(asInt(a[0])), nil }}},
		"frac": {{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) {
			f := asFloat(a[0])
			return number(f - math.Floor(f)), nil
		}}},
		"lowercase": {{[]Kind{KindString}, func(_ *Random, a []Value) (Value, error) {
			return String(strings.ToLower(asText(a[0]))), nil
		}}},
		"uppercase": {{[]Kind{KindString}, func(_ *Random, a []Value) (Value, error) {
			return String(strings.ToUpper(asText(a[0]))), nil
		}}},
		"str": {
			{[]Kind{KindReal}, func(_ *Random, a []Value) (Value, error) { return String(asText(a[0])), nil }},
			{[]Kind{KindString}, func(_ *Random, a []Value) (Value, error) { return a[0], nil }},
		},
		"scraddr": {{ii, func(_ *Random, a []Value) (Value, error) {
			line, col := asInt(a[0]), asInt(a[1])
			if err := checkScreenPos("scraddr", line, col); err != nil {
				return Error, err
			}
			da := 0x4000 | col>>3 | line<<5
			return Integer((da&0xf81f | (da&0x0700)>>3 | (da&0x00e0)<<3) & 0xffff), nil
		}}},
		"attraddr": {{ii, func(_ *Random, a []Value) (Value, error) {
			line, col := asInt(a[0]), asInt(a[1])
			if err := checkScreenPos("attraddr", line, col); err != nil {
				return Error, err
			}
			return Integer(0x5800 + line>>3*32 + col>>3), nil
		}}},
		"ink": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) { return Integer(asInt(a[0]) & 0x07), nil }}},
		"paper": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) {
			return Integer((asInt(a[0]) & 0x07) << 3), nil
		}}},
		"bright": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) { return attribute(0, 0, asInt(a[0]), 0), nil }}},
		"flash": {{[]Kind{KindInteger}, func(_ *Random, a []Value) (Value, error) { return attribute(0, 0, 0, asInt(a[0])), nil }}},
		"attr": {
			{[]Kind{KindInteger, KindInteger, KindInteger, KindInteger}, func(_ *Random, a []Value) (Value, error) {
				return attribute(asInt(a[0]), asInt(a[1]), asInt(a[2]), asInt(a[3])), nil
			}},
			{[]Kind{KindInteger, KindInteger, KindInteger}, func(_ *Random, a []Value) (Value, error) {
				return attribute(asInt(a[0]), asInt(a[1]), asInt(a[2]), 0), nil
			}},
			{ii, func(_ *Random, a []Value) (Value, error) { return attribute(asInt(a[0]), asInt(a[1]), 0, 0), nil }},
		},
	}

	aliases := map[string]string{
		"len": "length", "lcase": "lowercase", "ucase": "uppercase", "substr": "mid",
		"low": "lowbyte", "high": "highbyte",
	}
	for alias, name := range aliases {
		functions[alias] = functions[name]
	}
}

func clamp(v, lo, hi int64) int64 { return max(lo, min(v, hi)) }

// accepts reports whether an argument of kind got matches a parameter of
// kind want. Integers accept booleans; reals accept any number.
func accepts(want, got Kind) bool {
	switch want {
	case KindBool:
		return got == KindBool
	case KindInteger:
		return got == KindBool || got == KindInteger
	case KindReal:
		return got == KindBool || got == KindInteger || got == KindReal
	case KindString:
		return got == KindString
	}
	return false
}

// Call evaluates the built-in function name over valid arguments.
func Call(r *Random, name string, args []Value) (Value, error) {
	overloads, ok := functions[name]
	if !ok {
		return Error, fmt.Errorf("unknown function '%s'", name)
	}
	for _, sig := range overloads {
		if len(sig.args) != len(args) {
			continue
		}
		match := true
		for i, want := range sig.args {
			if !accepts(want, args[i].Kind()) {
				match = false
				break
			}
		}
		if match {
			v, err := sig.fn(r, args)
			if err != nil {
				return Error, fmt.Errorf("function value cannot be evaluated: '%s': %w", name, err)
			}
			return v, nil
		}
	}
	return Error, fmt.Errorf("the arguments of '%s' do not match any acceptable signatures", name)
}

// IsFunction reports whether name is a built-in function.
func IsFunction(name string) bool {
	_, ok := functions[name]
	return ok
}
