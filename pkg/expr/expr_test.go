package expr

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/parser"
)

type report struct {
	Code string
	Args []any
}

type fakeContext struct {
	addr    uint16
	counter Value
	symbols map[string]Value
	used    map[string]bool
	args    map[string]string
	macro   bool
	reports []report
}

func newContext() *fakeContext {
	return &fakeContext{
		addr:    0x8000,
		symbols: map[string]Value{"ten": Integer(10), "name": String("Z80"), "half": Real(0.5)},
		used:    map[string]bool{},
	}
}

func (c *fakeContext) CurrentAddress() uint16 { return c.addr }

func (c *fakeContext) LoopCounter() (Value, bool) {
	if c.counter == nil {
		return nil, false
	}
	return c.counter, true
}

func (c *fakeContext) SymbolValue(name string, fromGlobal bool) (Value, bool) {
	v, ok := c.symbols[name]
	if ok {
		c.used[name] = true
	}
	return v, ok
}

func (c *fakeContext) MacroArgument(name string) (string, bool) {
	v, ok := c.args[name]
	return v, ok
}

func (c *fakeContext) InMacro() bool { return c.macro }

func (c *fakeContext) Report(code string, node *ast.Node, args ...any) {
	c.reports = append(c.reports, report{code, args})
}

// exprOf parses ".defb <text>" and returns the expression.
func exprOf(t *testing.T, text string) *ast.Node {
	t.Helper()
	lines, errs := parser.Parse([]rune(".defb "+text), 0)
	if len(errs) > 0 {
		t.Fatalf("parse %q: %v", text, errs)
	}
	return lines[0].Data.(*ast.Pragma).Args[0]
}

func eval(t *testing.T, ctx *fakeContext, text string) Value {
	t.Helper()
	return NewEvaluator(1).Eval(ctx, exprOf(t, text))
}

func TestOperators(t *testing.T) {
	cases := []struct {
		text string
		want Value
	}{
		{"ten + 5", Integer(15)},
		{"ten / 3", Integer(3)},
		{"ten / 4.0", Real(2.5)},
		{"ten % 3", Integer(1)},
		{"half * 4", Real(2)},
		{"-half", Real(-0.5)},
		{"name + \"!\"", String("Z80!")},
		{"name == \"Z80\"", Bool(true)},
		{"name === \"z80\"", Bool(true)},
		{"name !== \"z80\"", Bool(false)},
		{"ten > 3", Bool(true)},
		{"ten <= half", Bool(false)},
		{"ten <? 3", Integer(3)},
		{"ten >? half", Real(10)},
		{"ten << 2", Integer(40)},
		{"~ten & #ff", Integer(0xf5)},
		{"!ten", Bool(false)},
		{"ten ^ 3", Integer(9)},
		{"ten == 10 ? \"yes\" : \"no\"", String("yes")},
		{"\"ab\" & \"cd\"", String("ab\r\ncd")},
		{"$ + 1", Integer(0x8001)},
		{".true", Bool(true)},
	}
	for _, c := range cases {
		ctx := newContext()
		got := eval(t, ctx, c.text)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", c.text, diff)
		}
		if len(ctx.reports) > 0 {
			t.Errorf("%q: unexpected reports %v", c.text, ctx.reports)
		}
	}
}

func TestEvaluationErrors(t *testing.T) {
	cases := []string{"ten / 0", "name - 1", "half % 2", "name | 1", "ten == name", "nosuch(1)", "left(1, 2)"}
	for _, text := range cases {
		ctx := newContext()
		got := eval(t, ctx, text)
		if got.Kind() != KindError {
			t.Errorf("%q: got %v, want error", text, got)
		}
		if len(ctx.reports) != 1 || ctx.reports[0].Code != "Z3001" {
			t.Errorf("%q: reports = %v, want one Z3001", text, ctx.reports)
		}
	}
}

func TestUnresolvedSymbols(t *testing.T) {
	ctx := newContext()
	node := exprOf(t, "ten + later")
	if got := NewEvaluator(1).Eval(ctx, node); got.Kind() != KindNonEvaluated {
		t.Errorf("got %v, want non-evaluated", got)
	}
	if !ctx.used["ten"] {
		t.Errorf("both operands must be evaluated so that usage is recorded")
	}
	missing := Unresolved(ctx, node)
	if missing == nil || missing.Data.(ast.SymbolNode).Name != "later" {
		t.Errorf("Unresolved = %+v", missing)
	}
	if len(ctx.reports) != 0 {
		t.Errorf("unexpected reports %v", ctx.reports)
	}
}

func TestLoopCounter(t *testing.T) {
	ctx := newContext()
	if got := eval(t, ctx, "$cnt"); got.Kind() != KindError {
		t.Errorf("got %v outside a loop", got)
	}
	if len(ctx.reports) != 1 || ctx.reports[0].Code != "Z2056" {
		t.Errorf("reports = %v", ctx.reports)
	}
	ctx = newContext()
	ctx.counter = Integer(3)
	if got := eval(t, ctx, "$cnt * 2"); got != Integer(6) {
		t.Errorf("got %v, want 6", got)
	}
}

func TestFunctions(t *testing.T) {
	cases := []struct {
		text string
		want Value
	}{
		{"abs(-5)", Integer(5)},
		{"sqrt(16)", Integer(4)},
		{"floor(2.7)", Integer(2)},
		{"round(2.5)", Integer(3)},
		{"max(3, 9)", Integer(9)},
		{"min(1.5, 2)", Real(1.5)},
		{"len(\"hello\")", Integer(5)},
		{"left(\"hello\", 2)", String("he")},
		{"right(\"hello\", 3)", String("llo")},
		{"mid(\"hello\", 1, 3)", String("ell")},
		{"ucase(\"abc\")", String("ABC")},
		{"str(12)", String("12")},
		{"fill(\"ab\", 3)", String("ababab")},
		{"high(#1234)", Integer(0x12)},
		{"low(#1234)", Integer(0x34)},
		{"word(74565)", Integer(0x2345)},
		{"int(3.9)", Integer(3)},
		{"scraddr(8, 0)", Integer(0x4020)},
		{"attraddr(8, 8)", Integer(0x5821)},
		{"attr(2, 7, 1)", Integer(0x7a)},
		{"sign(-3)", Integer(-1)},
	}
	for _, c := range cases {
		ctx := newContext()
		got := eval(t, ctx, c.text)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s (reports %v)", c.text, diff, ctx.reports)
		}
	}
	if got := eval(t, newContext(), "pi()"); math.Abs(float64(got.(Real))-math.Pi) > 1e-12 {
		t.Errorf("pi() = %v", got)
	}
}

func TestRandomIsSeeded(t *testing.T) {
	a, b := NewRandom(42), NewRandom(42)
	for i := 0; i < 5; i++ {
		x, y := a.Integer(0, 100), b.Integer(0, 100)
		if x != y {
			t.Fatalf("same seed produced %d and %d", x, y)
		}
		if x < 0 || x >= 100 {
			t.Fatalf("value %d out of range", x)
		}
	}
}

func TestMacroFunctions(t *testing.T) {
	outside := newContext()
	if got := eval(t, outside, "isreg8(a)"); got.Kind() != KindError {
		t.Errorf("macro function outside a macro: %v", got)
	}
	if len(outside.reports) != 1 || outside.reports[0].Code != "Z2089" {
		t.Errorf("reports = %v", outside.reports)
	}

	cases := []struct {
		text string
		want Value
	}{
		{"isreg8(a)", Bool(true)},
		{"isreg8(hl)", Bool(false)},
		{"isreg16idx(ix)", Bool(true)},
		{"isregindirect((hl))", Bool(true)},
		{"isindexedaddr((ix+2))", Bool(true)},
		{"iscport((c))", Bool(true)},
		{"iscondition(nz)", Bool(true)},
		{"iscondition(c)", Bool(true)},
		{"isexpr(12+3)", Bool(true)},
		{"isrega(a)", Bool(true)},
		{"isregbc(de)", Bool(false)},
		{"def($<none>$)", Bool(false)},
		{"def(b)", Bool(true)},
		{"textof(ld)", String("LD")},
		{"ltextof(HL)", String("hl")},
		{"hreg(bc)", String("b")},
		{"lreg(ix)", String("xl")},
	}
	for _, c := range cases {
		ctx := newContext()
		ctx.macro = true
		got := eval(t, ctx, c.text)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", c.text, diff)
		}
	}
}

func TestCoercions(t *testing.T) {
	if n, err := AsLong(Real(-1.5)); err != nil || n != -2 {
		t.Errorf("AsLong(-1.5) = %d, %v", n, err)
	}
	if n, err := AsLong(String("12abc")); err != nil || n != 12 {
		t.Errorf("AsLong(\"12abc\") = %d, %v", n, err)
	}
	if _, err := AsLong(String("abc")); err == nil {
		t.Errorf("AsLong(\"abc\") should fail")
	}
	if _, err := AsLong(Unevaluated); err == nil {
		t.Errorf("AsLong(NonEvaluated) should fail")
	}
	if w, _ := AsWord(Integer(0x12345)); w != 0x2345 {
		t.Errorf("AsWord = %#x", w)
	}
	if b, _ := AsByte(Integer(-1)); b != 0xff {
		t.Errorf("AsByte = %#x", b)
	}
	if ok, _ := AsBool(String("  ")); ok {
		t.Errorf("blank string must be false")
	}
}
