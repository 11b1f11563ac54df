package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/diag"
)

func parse(t *testing.T, src string) []*ast.Line {
	t.Helper()
	lines, errs := Parse([]rune(src), 0)
	if len(errs) > 0 {
		t.Errorf("unexpected errors parsing %q: %v", src, errs)
		return nil
	}
	return lines
}

func codes(errs []diag.Error) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestLineKinds(t *testing.T) {
	src := "; header\nstart:\n  ld a,b\nvalue .equ 3\n.loop 2\n  .endl\n#ifdef DEBUG\nCopy(hl, 2)\n{{body}}\n  -> .defb 1\ncnt = 4\n"
	want := []ast.LineType{
		ast.CommentOnlyLine, ast.LabelOnlyLine, ast.InstructionLine, ast.PragmaLine,
		ast.StatementLine, ast.StatementLine, ast.DirectiveLine, ast.InvocationLine,
		ast.MacroParamLine, ast.FieldAssignmentLine, ast.PragmaLine,
	}
	var got []ast.LineType
	for _, l := range parse(t, src) {
		got = append(got, l.Type)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("line types mismatch (-want +got):\n%s", diff)
	}
}

func TestLabels(t *testing.T) {
	cases := []struct {
		src   string
		label string
	}{
		{"main: nop", "main"},
		{"main nop", "main"},
		{"loop: nop", "loop"},
		{"loop 3", ""},
		{"Copy(a)", ""},
		{"`tmp ld a,1", "`tmp"},
	}
	for _, c := range cases {
		lines := parse(t, c.src)
		if lines == nil {
			continue
		}
		if got := lines[0].Label; got != c.label {
			t.Errorf("%q: label = %q, want %q", c.src, got, c.label)
		}
	}
}

func TestOperands(t *testing.T) {
	type opView struct {
		Type     ast.OperandType
		Register string
		Sign     string
	}
	cases := []struct {
		src  string
		want []opView
	}{
		{"ld a,(hl)", []opView{{ast.OpReg8, "a", ""}, {ast.OpRegIndirect, "hl", ""}}},
		{"ld (ix-3),b", []opView{{ast.OpIndexedIndirect, "ix", "-"}, {ast.OpReg8, "b", ""}}},
		{"ld a,(ix)", []opView{{ast.OpReg8, "a", ""}, {ast.OpIndexedIndirect, "ix", ""}}},
		{"ld hl,(#4000)", []opView{{ast.OpReg16, "hl", ""}, {ast.OpMemIndirect, "", ""}}},
		{"ld hl,(2)+3", []opView{{ast.OpReg16, "hl", ""}, {ast.OpExpression, "", ""}}},
		{"in a,(c)", []opView{{ast.OpReg8, "a", ""}, {ast.OpCPort, "c", ""}}},
		{"jp c,target", []opView{{ast.OpCondition, "c", ""}, {ast.OpExpression, "", ""}}},
		{"ret c", []opView{{ast.OpCondition, "c", ""}}},
		{"ex af,af'", []opView{{ast.OpReg16Spec, "af", ""}, {ast.OpReg16Spec, "af'", ""}}},
		{"ld a,ixh", []opView{{ast.OpReg8, "a", ""}, {ast.OpReg8Idx, "xh", ""}}},
		{"ld a,hreg(bc)", []opView{{ast.OpReg8, "a", ""}, {ast.OpRegOperation, "bc", ""}}},
		{"ld i,a", []opView{{ast.OpReg8Spec, "i", ""}, {ast.OpReg8, "a", ""}}},
	}
	for _, c := range cases {
		lines := parse(t, c.src)
		if lines == nil {
			continue
		}
		instr := lines[0].Data.(*ast.Instruction)
		var got []opView
		for _, op := range instr.Operands {
			got = append(got, opView{op.Type, op.Register, op.Sign})
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%q operands mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestOperandText(t *testing.T) {
	lines := parse(t, "ld a,( Label + 2 )")
	if lines == nil {
		return
	}
	instr := lines[0].Data.(*ast.Instruction)
	if got := instr.Operands[1].Text; got != "( Label + 2 )" {
		t.Errorf("operand text = %q", got)
	}
}

func TestExpressionPrecedence(t *testing.T) {
	cases := []struct {
		src  string
		want int64
	}{
		{".defb 2+3*4", 14},
		{".defb (2+3)*4", 20},
		{".defb [2+3]*4", 20},
		{".defb 1<<2+1", 8},
		{".defb 6&3|8", 10},
		{".defb -2+5", 3},
		{".defb 3<?7", 3},
		{".defb 3>?7", 7},
		{".defb 1+2<?3", 3},
	}
	for _, c := range cases {
		lines := parse(t, c.src)
		if lines == nil {
			continue
		}
		arg := lines[0].Data.(*ast.Pragma).Args[0]
		if arg.Type != ast.Number {
			t.Errorf("%q did not fold to a number: %+v", c.src, arg)
			continue
		}
		if got := arg.Data.(ast.NumberNode).Value; got != c.want {
			t.Errorf("%q = %d, want %d", c.src, got, c.want)
		}
	}
}

func TestExpressionNodes(t *testing.T) {
	lines := parse(t, ".defw ::Top + $ + Outer.inner + len(\"ab\") + (flag ? 1 : 2) + {{prm}}")
	if lines == nil {
		return
	}
	pragma := lines[0].Data.(*ast.Pragma)
	var kinds []ast.NodeType
	ast.Walk(pragma.Args[0], func(n *ast.Node) {
		if n.Type != ast.BinaryOp && n.Type != ast.Number {
			kinds = append(kinds, n.Type)
		}
	})
	want := []ast.NodeType{ast.Symbol, ast.CurAddress, ast.Symbol, ast.FuncCall, ast.String, ast.Ternary, ast.Symbol, ast.MacroParam}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("node kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestPragmaArguments(t *testing.T) {
	lines := parse(t, ".defb 1,2,3\n.model Next\n.align\n.defg ..XX ; gfx\n.fillw 2,#1234\n")
	if lines == nil {
		return
	}
	if n := len(lines[0].Data.(*ast.Pragma).Args); n != 3 {
		t.Errorf("defb args = %d, want 3", n)
	}
	if id := lines[1].Data.(*ast.Pragma).Ident; id != "Next" {
		t.Errorf("model ident = %q", id)
	}
	if n := len(lines[2].Data.(*ast.Pragma).Args); n != 0 {
		t.Errorf("align args = %d, want 0", n)
	}
	if pat := lines[3].Data.(*ast.Pragma).Pattern; pat != "..XX ; gfx" {
		t.Errorf("defg pattern = %q", pat)
	}
	if n := len(lines[4].Data.(*ast.Pragma).Args); n != 2 {
		t.Errorf("fillw args = %d, want 2", n)
	}
}

func TestStatements(t *testing.T) {
	lines := parse(t, "Copy: .macro(src, dst)\n.for idx = 1 .to 10 .step 2\n.local a1, a2\n.module Game\nwhile 1\n")
	if lines == nil {
		return
	}
	if diff := cmp.Diff([]string{"src", "dst"}, lines[0].Data.(*ast.Statement).Idents); diff != "" {
		t.Errorf("macro params mismatch (-want +got):\n%s", diff)
	}
	forClause := lines[1].Data.(*ast.Statement).For
	if forClause == nil || forClause.Var != "idx" || forClause.Step == nil {
		t.Errorf("unexpected for clause: %+v", forClause)
	}
	if diff := cmp.Diff([]string{"a1", "a2"}, lines[2].Data.(*ast.Statement).Idents); diff != "" {
		t.Errorf("local idents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Game"}, lines[3].Data.(*ast.Statement).Idents); diff != "" {
		t.Errorf("module name mismatch (-want +got):\n%s", diff)
	}
	if name := lines[4].Data.(*ast.Statement).Name; name != "while" {
		t.Errorf("statement = %q, want while", name)
	}
}

func TestDirectives(t *testing.T) {
	lines := parse(t, "#include \"lib.asm\"\n#define DEBUG\n#if 1+1\n#endif\n")
	if lines == nil {
		return
	}
	if path := lines[0].Data.(*ast.Directive).Path; path != "lib.asm" {
		t.Errorf("include path = %q", path)
	}
	if id := lines[1].Data.(*ast.Directive).Ident; id != "DEBUG" {
		t.Errorf("define ident = %q", id)
	}
	if lines[2].Data.(*ast.Directive).Expr == nil {
		t.Errorf("#if without expression")
	}
}

func TestMacroParamRefs(t *testing.T) {
	lines := parse(t, "ld {{reg}},{{value}}")
	if lines == nil {
		return
	}
	var names []string
	for _, ref := range lines[0].MacroParams {
		names = append(names, ref.Name)
	}
	if diff := cmp.Diff([]string{"reg", "value"}, names); diff != "" {
		t.Errorf("macro params mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceTextAndComment(t *testing.T) {
	lines := parse(t, "nop\r\n  halt ; stop\r\n")
	if lines == nil {
		return
	}
	if got := lines[1].SourceText; got != "  halt ; stop" {
		t.Errorf("source text = %q", got)
	}
	if got := lines[1].Comment; got != "; stop" {
		t.Errorf("comment = %q", got)
	}
	if lines[1].Line != 2 {
		t.Errorf("line = %d, want 2", lines[1].Line)
	}
}

func TestSyntaxErrors(t *testing.T) {
	cases := []struct {
		src  string
		want []string
	}{
		{"ld a,", []string{"Z1003"}},
		{".defb 12xyz", []string{"Z1005"}},
		{"-> nop", []string{"Z1021"}},
		{"ld a,(ix+2", []string{"Z1014"}},
		{"mul d,a", []string{"Z1012"}},
		{"bsla hl,b", []string{"Z1008"}},
		{".for idx 1 .to 3", []string{"Z1019"}},
		{".for idx = 1, 3", []string{"Z1020"}},
		{"#include lib", []string{"Z1006"}},
		{"ld a,b c", []string{"Z1001"}},
		{"+ 1", []string{"Z1002"}},
		{"ld a,\"open", []string{"Z1018"}},
		{"ld a,hreg(b)", []string{"Z1022"}},
		{"nop\nld a,\nhalt", []string{"Z1003"}},
	}
	for _, c := range cases {
		_, errs := Parse([]rune(c.src), 0)
		if diff := cmp.Diff(c.want, codes(errs)); diff != "" {
			t.Errorf("%q error codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestErrorRecovery(t *testing.T) {
	lines, errs := Parse([]rune("nop\nld a,\nhalt\n"), 0)
	if len(errs) != 1 || errs[0].Line != 2 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(lines) != 2 {
		t.Errorf("got %d lines, want 2", len(lines))
	}
}
