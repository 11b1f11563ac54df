package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/z80asm/pkg/token"
)

type tok struct {
	Type  token.Type
	Value string
}

func lex(src string) []tok {
	var out []tok
	for _, t := range Tokenize([]rune(src), 0) {
		if t.Type == token.EOF {
			break
		}
		out = append(out, tok{t.Type, t.Value})
	}
	return out
}

func TestNumericLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"#FF", "255"},
		{"$1234", "4660"},
		{"0x3fff", "16383"},
		{"0FFh", "255"},
		{"12H", "18"},
		{"%0101", "5"},
		{"%1010_0101", "165"},
		{"0b0110", "6"},
		{"0110b", "6"},
		{"17q", "15"},
		{"17o", "15"},
		{"1234", "1234"},
		{"'A'", "65"},
		{"'\\i'", "16"},
	}
	for _, c := range cases {
		got := lex(c.src)
		if len(got) != 1 {
			t.Errorf("%q: expected one token, got %v", c.src, got)
			continue
		}
		if got[0].Value != c.want {
			t.Errorf("%q: got value %q, want %q", c.src, got[0].Value, c.want)
		}
	}
}

func TestRealLiterals(t *testing.T) {
	for _, src := range []string{"1.5", ".25", "1e3", "2.5e-3", "3E+2"} {
		got := lex(src)
		if diff := cmp.Diff([]tok{{token.Real, src}}, got); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", src, diff)
		}
	}
}

func TestMalformedNumber(t *testing.T) {
	got := lex("12xyz")
	if diff := cmp.Diff([]tok{{token.Number, ""}}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestKeywordCase(t *testing.T) {
	cases := []struct {
		src  string
		want tok
	}{
		{"ld", tok{token.Mnemonic, "ld"}},
		{"LD", tok{token.Mnemonic, "ld"}},
		{"Ld", tok{token.Ident, "Ld"}},
		{"IXh", tok{token.Register, "xh"}},
		{"ixl", tok{token.Register, "xl"}},
		{"af'", tok{token.Register, "af'"}},
		{"nz", tok{token.Condition, "nz"}},
		{".DB", tok{token.Pragma, "defb"}},
		{"defw", tok{token.Pragma, "defw"}},
		{".endm", tok{token.Statement, "endm"}},
		{"mend", tok{token.Statement, "endm"}},
		{".lend", tok{token.Statement, "endl"}},
		{"loop", tok{token.Ident, "loop"}},
		{"#ifdef", tok{token.Directive, "ifdef"}},
		{"$cnt", tok{token.CurCnt, ""}},
		{".cnt", tok{token.CurCnt, ""}},
		{"$", tok{token.CurAddress, ""}},
		{"$<none>$", tok{token.NoneArg, ""}},
		{".true", tok{token.True, ""}},
		{"isreg8", tok{token.Function, "isreg8"}},
		{"Outer.Inner.sym", tok{token.Ident, "Outer.Inner.sym"}},
		{"`temp", tok{token.Ident, "`temp"}},
		{"@local", tok{token.Ident, "@local"}},
	}
	for _, c := range cases {
		got := lex(c.src)
		if diff := cmp.Diff([]tok{c.want}, got); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestOperators(t *testing.T) {
	got := lex("-> :: := == === != !== <= << <? >= >> >? {{ }} % ~ !")
	want := []tok{
		{token.GoesTo, ""}, {token.DoubleColon, ""}, {token.VarAssign, ""}, {token.Equal, ""},
		{token.CiEqual, ""}, {token.NotEqual, ""}, {token.CiNotEqual, ""}, {token.Le, ""},
		{token.Shl, ""}, {token.MinOp, ""}, {token.Ge, ""}, {token.Shr, ""}, {token.MaxOp, ""},
		{token.LDBrac, ""}, {token.RDBrac, ""}, {token.Mod, ""}, {token.Complement, ""}, {token.Not, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStringEscapes(t *testing.T) {
	got := lex(`"a\ib\P\x41\"\\"`)
	want := []tok{{token.String, "a\x10b\x60A\"\\"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := lex(`"open`); len(got) != 1 || got[0].Type != token.Illegal {
		t.Errorf("unterminated string: got %v", got)
	}
}

func TestCommentsAndLines(t *testing.T) {
	got := lex("nop ; first\n/* inline */ halt // second\n")
	want := []tok{
		{token.Mnemonic, "nop"}, {token.Comment, "; first"}, {token.NewLine, ""},
		{token.Mnemonic, "halt"}, {token.Comment, "// second"}, {token.NewLine, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDefgPattern(t *testing.T) {
	got := lex(".defg ..XX XX.. ; comment\nnop")
	want := []tok{{token.DefgPattern, " ..XX XX.. ; comment"}, {token.NewLine, ""}, {token.Mnemonic, "nop"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPositions(t *testing.T) {
	toks := Tokenize([]rune("nop\n  ld a,b"), 3)
	ld := toks[2]
	if ld.Line != 2 || ld.Column != 3 || ld.Pos != 6 || ld.Len != 2 || ld.FileIndex != 3 {
		t.Errorf("unexpected position for %q: %+v", ld.Text, ld)
	}
}
