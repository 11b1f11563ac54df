package assembler

import (
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/expr"
)

func codes(out *Output) []string {
	var got []string
	for _, e := range out.Errors {
		got = append(got, e.Code)
	}
	return got
}

func code(out *Output) []byte {
	var got []byte
	for _, s := range out.Segments {
		got = append(got, s.EmittedCode...)
	}
	return got
}

// assemble compiles src and reports any diagnostic as a test error.
func assemble(t *testing.T, src string, opts *config.Options) []byte {
	t.Helper()
	out := Compile(src, opts)
	if len(out.Errors) > 0 {
		t.Errorf("unexpected diagnostics for %q: %v", src, codes(out))
	}
	return code(out)
}

func TestConditionalCompilation(t *testing.T) {
	src := "nop ; 1\n#ifdef MySymbol\nnop ; 2\nnop ; 3\nnop ; 4\n#endif\nnop ; 5"

	defined := config.NewOptions()
	defined.PredefinedSymbols["MySymbol"] = expr.Bool(true)
	cases := []struct {
		name string
		opts *config.Options
		want int
	}{
		{"defined", defined, 5},
		{"undefined", nil, 2},
	}
	for _, c := range cases {
		out := Compile(src, c.opts)
		if len(out.Errors) > 0 {
			t.Errorf("%s: unexpected diagnostics %v", c.name, codes(out))
			continue
		}
		if got := len(code(out)); got != c.want {
			t.Errorf("%s: %d bytes emitted, want %d", c.name, got, c.want)
		}
		if got := len(out.ListFileItems); got != c.want {
			t.Errorf("%s: %d listed lines, want %d", c.name, got, c.want)
		}
	}

	alt := "#ifdef DEBUG\nnop\n#else\nhalt\nhalt\n#endif\n"
	if diff := cmp.Diff([]byte{0x76, 0x76}, assemble(t, alt, nil)); diff != "" {
		t.Errorf("else branch: code mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectiveErrors(t *testing.T) {
	cases := []struct {
		src  string
		want []string
	}{
		{"#else\nnop\n#endif\n", []string{"Z2009", "Z2010"}},
		{"#endif\n#endif\n", []string{"Z2010", "Z2010"}},
		{"#ifdef X\nnop\n", []string{"Z2003"}},
		{"#ifmod SPECTRUM99\n#endif\n", []string{"Z2008"}},
		{".model next\n.model next\n", []string{"Z2011"}},
		{".model pc\n", []string{"Z2012"}},
		{"nop\n.zxbasic\n", []string{"Z2002"}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestIncludes(t *testing.T) {
	files := fstest.MapFS{
		"dup.asm":    {Data: []byte("#include \"part.asm\"\n#include \"part.asm\"\n")},
		"part.asm":   {Data: []byte("nop\n")},
		"cycle.asm":  {Data: []byte("#include \"inner.asm\"\n")},
		"inner.asm":  {Data: []byte("#include \"cycle.asm\"\n")},
		"lib/a.asm":  {Data: []byte("#include \"b.asm\"\n")},
		"lib/b.asm":  {Data: []byte("halt\n")},
		"main.asm":   {Data: []byte("nop\n#include \"lib/a.asm\"\n")},
		"data.bin":   {Data: []byte{1, 2, 3, 4}},
		"incbin.asm": {Data: []byte(".incbin \"data.bin\", 1, 2\n")},
	}
	cases := []struct {
		file  string
		codes []string
		code  []byte
	}{
		{"dup.asm", []string{"Z2005"}, []byte{0x00}},
		{"cycle.asm", []string{"Z2006"}, nil},
		{"main.asm", nil, []byte{0x00, 0x76}},
		{"incbin.asm", nil, []byte{2, 3}},
		{"missing.asm", []string{"Z2007"}, nil},
	}
	for _, c := range cases {
		a := New(nil)
		a.Loader = FSLoader{FS: files}
		out := a.CompileFile(c.file)
		if diff := cmp.Diff(c.codes, codes(out)); diff != "" {
			t.Errorf("%s: codes mismatch (-want +got):\n%s", c.file, diff)
		}
		if diff := cmp.Diff(c.code, code(out)); diff != "" {
			t.Errorf("%s: code mismatch (-want +got):\n%s", c.file, diff)
		}
	}
}

func TestInstructionEncoding(t *testing.T) {
	cases := []struct {
		src  string
		want []byte
	}{
		{"add a,b", []byte{0x80}},
		{"add a,(ix+10)", []byte{0xdd, 0x86, 0x0a}},
		{"ld a,(ix-3)", []byte{0xdd, 0x7e, 0xfd}},
		{"ld (iy+2),#12", []byte{0xfd, 0x36, 0x02, 0x12}},
		{"ld bc,#1234", []byte{0x01, 0x34, 0x12}},
		{"ld (#4000),hl", []byte{0x22, 0x00, 0x40}},
		{"ld de,(#4000)", []byte{0xed, 0x5b, 0x00, 0x40}},
		{"ld a,i", []byte{0xed, 0x57}},
		{"ld sp,ix", []byte{0xdd, 0xf9}},
		{"ld xh,b", []byte{0xdd, 0x60}},
		{"sub c", []byte{0x91}},
		{"cp a,#10", []byte{0xfe, 0x10}},
		{"adc hl,de", []byte{0xed, 0x5a}},
		{"add iy,iy", []byte{0xfd, 0x29}},
		{"inc (hl)", []byte{0x34}},
		{"dec ix", []byte{0xdd, 0x2b}},
		{"jr $", []byte{0x18, 0xfe}},
		{"jr nz,$+4", []byte{0x20, 0x02}},
		{"djnz $", []byte{0x10, 0xfe}},
		{"jp (hl)", []byte{0xe9}},
		{"jp (ix)", []byte{0xdd, 0xe9}},
		{"jp c,#1234", []byte{0xda, 0x34, 0x12}},
		{"call pe,#1234", []byte{0xec, 0x34, 0x12}},
		{"ret", []byte{0xc9}},
		{"ret m", []byte{0xf8}},
		{"rst #38", []byte{0xff}},
		{"im 2", []byte{0xed, 0x5e}},
		{"ex af,af'", []byte{0x08}},
		{"ex (sp),iy", []byte{0xfd, 0xe3}},
		{"in a,(#fe)", []byte{0xdb, 0xfe}},
		{"in e,(c)", []byte{0xed, 0x58}},
		{"out (c),0", []byte{0xed, 0x71}},
		{"push ix", []byte{0xdd, 0xe5}},
		{"pop af", []byte{0xf1}},
		{"bit 7,(iy+2)", []byte{0xfd, 0xcb, 0x02, 0x7e}},
		{"set 3,(ix+4),a", []byte{0xdd, 0xcb, 0x04, 0xdf}},
		{"res 0,b", []byte{0xcb, 0x80}},
		{"srl (hl)", []byte{0xcb, 0x3e}},
		{"sll a", []byte{0xcb, 0x37}},
		{"rl (ix+1),c", []byte{0xdd, 0xcb, 0x01, 0x11}},
		{"ldir", []byte{0xed, 0xb0}},
		{"halt", []byte{0x76}},
	}
	for _, c := range cases {
		out := Compile(c.src, nil)
		if len(out.Errors) > 0 {
			t.Errorf("%q: unexpected diagnostics %v", c.src, codes(out))
			continue
		}
		if diff := cmp.Diff(c.want, code(out)); diff != "" {
			t.Errorf("%q: code mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestInstructionErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"ld (hl),(hl)", "Z2043"},
		{"jr pe,$", "Z2044"},
		{"jr $+200", "Z2045"},
		{"rst 3", "Z2046"},
		{"im 3", "Z2047"},
		{"out (c),1", "Z2048"},
		{"bit 8,a", "Z2049"},
		{"sub b,c", "Z2050"},
		{"add b,c", "Z2051"},
		{"pop #1234", "Z5000"},
		{"push i", "Z5002"},
		{"nextreg 7,2", "Z5001"},
		{"push #1234", "Z5001"},
		{"jp missing", "Z3000"},
		{"ld a,hreg(bc)", "Z2089"},
		{"ld a,lreg(de)", "Z2089"},
	}
	for _, c := range cases {
		if diff := cmp.Diff([]string{c.want}, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestNextInstructions(t *testing.T) {
	got := assemble(t, ".model next\nnextreg 7,2\nmul d,e\npush #1234\nadd hl,a\n", nil)
	want := []byte{0xed, 0x91, 0x07, 0x02, 0xed, 0x30, 0xed, 0x8a, 0x12, 0x34, 0xed, 0x31}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}

	opts := config.NewOptions()
	opts.WarnNextOnly = true
	out := Compile(".model next\nswapnib\n", opts)
	if diff := cmp.Diff([]string{"W0002"}, codes(out)); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
	if out.ErrorCount() != 0 || out.WarningCount() != 1 {
		t.Errorf("got %d errors and %d warnings, want 0 and 1", out.ErrorCount(), out.WarningCount())
	}
}

func TestLateModel(t *testing.T) {
	opts := config.NewOptions()
	opts.WarnLateModel = true
	cases := []struct {
		src  string
		want []string
	}{
		{".model next\nnop\n", nil},
		{"; header\n.model next\nnop\n", nil},
		{"nop\n.model next\n", []string{"W0004"}},
	}
	for _, c := range cases {
		out := Compile(c.src, opts)
		if diff := cmp.Diff(c.want, codes(out)); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
		if out.ModelType != config.Next {
			t.Errorf("%q: model = %v, want Next", c.src, out.ModelType)
		}
	}
	if got := codes(Compile("nop\n.model next\n", nil)); len(got) != 0 {
		t.Errorf("warning reported while disabled: %v", got)
	}
}

func TestForwardReferences(t *testing.T) {
	src := "jp target\nld a,value\nnop\ntarget: halt\nvalue .equ later+1\nlater .equ 4\n"
	want := []byte{0xc3, 0x06, 0x80, 0x3e, 0x05, 0x00, 0x76}

	a := New(nil)
	first := a.Compile(src)
	second := a.Compile(src)
	for _, out := range []*Output{first, second} {
		if len(out.Errors) > 0 {
			t.Fatalf("unexpected diagnostics: %v", out.Errors)
		}
		if diff := cmp.Diff(want, code(out)); diff != "" {
			t.Errorf("code mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestTemporaryLabels(t *testing.T) {
	src := "first: jr `skip\n`skip: nop\nsecond: jr `skip\n`skip: nop\n"
	want := []byte{0x18, 0x00, 0x00, 0x18, 0x00, 0x00}
	if diff := cmp.Diff(want, assemble(t, src, nil)); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestSegments(t *testing.T) {
	out := Compile(".org #fffe\n.defb 1,2,3,4\n", nil)
	if diff := cmp.Diff([]string{"Z2000"}, codes(out)); diff != "" {
		t.Errorf("overflow codes mismatch (-want +got):\n%s", diff)
	}

	out = Compile("nop\n.org #9000\nstart: halt\n.ent start\n", nil)
	if len(out.Errors) > 0 {
		t.Errorf("unexpected diagnostics: %v", codes(out))
	}
	if len(out.Segments) != 2 || out.Segments[1].StartAddress != 0x9000 {
		t.Errorf("expected a second segment at #9000, got %d segments", len(out.Segments))
	}
	if out.EntryAddress == nil || *out.EntryAddress != 0x9000 {
		t.Errorf("entry address = %v, want #9000", out.EntryAddress)
	}

	out = Compile(".model Spectrum128\n.bank 3\nnop\n", nil)
	if len(out.Errors) > 0 || len(out.Segments) == 0 {
		t.Fatalf("unexpected diagnostics: %v", codes(out))
	}
	if seg := out.Segments[len(out.Segments)-1]; seg.Bank == nil || *seg.Bank != 3 || seg.StartAddress != 0xc000 {
		t.Errorf("bank segment = %+v, want bank 3 at #C000", seg)
	}

	if diff := cmp.Diff([]string{"Z2021"}, codes(Compile(".bank 1\n", nil))); diff != "" {
		t.Errorf("bank model codes mismatch (-want +got):\n%s", diff)
	}
}

func TestDataPragmas(t *testing.T) {
	cases := []struct {
		src  string
		want []byte
	}{
		{".defb 1,#ff,'A'", []byte{0x01, 0xff, 0x41}},
		{".defw #1234,2", []byte{0x34, 0x12, 0x02, 0x00}},
		{".defm \"AB\"", []byte{0x41, 0x42}},
		{".defn \"AB\"", []byte{0x41, 0x42, 0x00}},
		{".defc \"AB\"", []byte{0x41, 0xc2}},
		{".defh \"0a0B\"", []byte{0x0a, 0x0b}},
		{".defs 3,7", []byte{0x07, 0x07, 0x07}},
		{".fillw 2,#0102", []byte{0x02, 0x01, 0x02, 0x01}},
		{"nop\n.align 4", []byte{0x00, 0x00, 0x00, 0x00}},
		{"nop\n.skip #8004", []byte{0x00, 0xff, 0xff, 0xff}},
		{".defg ..XX..XX", []byte{0x33}},
		{".defgx \">XX\"", []byte{0x03}},
		{"v = 2\nv = v*3\n.defb v", []byte{0x06}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, assemble(t, c.src, nil)); diff != "" {
			t.Errorf("%q: code mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestPragmaErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{".defb \"A\"", "Z2029"},
		{".defm 12", "Z2030"},
		{".defh 12", "Z2031"},
		{".defh \"abc\"", "Z2032"},
		{".align 0", "Z2033"},
		{"nop\n.skip #7000", "Z2028"},
		{".equ 3", "Z2016"},
		{"a1: nop\na1: nop", "Z2017"},
		{"lbl: nop\nlbl = 3", "Z2027"},
		{".error \"stop\"", "Z4000"},
		{"nop\n.xorg #100\n.xorg #200", "Z2024"},
	}
	for _, c := range cases {
		if diff := cmp.Diff([]string{c.want}, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestTrace(t *testing.T) {
	var traced []string
	opts := config.NewOptions()
	opts.TraceHandler = func(message string) { traced = append(traced, message) }
	out := Compile(".trace \"x=\", 3\n.tracehex 255, \"A\"\n", opts)
	want := []string{"x=3", "00ff41"}
	if diff := cmp.Diff(want, out.TraceOutput); diff != "" {
		t.Errorf("trace output mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, traced); diff != "" {
		t.Errorf("trace handler mismatch (-want +got):\n%s", diff)
	}
}

func TestStructs(t *testing.T) {
	def := "Point: .struct\nx: .defb 1\ny: .defw #1234\n.ends\n"
	cases := []struct {
		name string
		src  string
		want []byte
	}{
		{"defaults", "  Point()\n", []byte{0x01, 0x34, 0x12}},
		{"size", "  .defb Point\n", []byte{0x03}},
		{"field override", "  Point()\ny -> .defw #5678\n", []byte{0x01, 0x78, 0x56}},
		{"continued fields", "  Point()\n  -> .defb 9\n  -> .defb 8\n", []byte{0x09, 0x08, 0x12}},
		{"forward field", "  Point()\nx -> .defb later\nlater .equ 7\n", []byte{0x07, 0x34, 0x12}},
		{"two invocations", "  Point()\n  Point()\nx -> .defb 2\n", []byte{0x01, 0x34, 0x12, 0x02, 0x34, 0x12}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, assemble(t, def+c.src, nil)); diff != "" {
			t.Errorf("%s: code mismatch (-want +got):\n%s", c.name, diff)
		}
	}
}

func TestStructErrors(t *testing.T) {
	def := "Point: .struct\nx: .defb 1\ny: .defw #1234\n.ends\n"
	cases := []struct {
		src  string
		want []string
	}{
		{def + "  Point()\nx -> .defb 1,2,3,4\n", []string{"Z0801"}},
		{def + "  Point()\nw -> .defb 1\n", []string{"Z0802"}},
		{"  -> .defb 1\n", []string{"Z0803"}},
		{".struct\n.defb 1\n.ends\n", []string{"Z0804"}},
		{"`tmp .struct\n.defb 1\n.ends\n", []string{"Z0805"}},
		{"S: .struct\n.defb 1\nfin .ends\n", []string{"Z0807"}},
		{"S: .struct\n  nop\n.ends\n", []string{"Z0808"}},
		{"S: .struct\nf: .defb 1\nf: .defb 2\n.ends\n", []string{"Z0810"}},
		{def + "  Point(1)\n", []string{"Z0809"}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestMacros(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []byte
	}{
		{"label in body", "Wait: .macro()\nAgain: jp Again\n.endm\n  Wait()\n", []byte{0xc3, 0x00, 0x80}},
		{"independent scopes", "Wait: .macro()\nAgain: jp Again\n.endm\n  Wait()\n  Wait()\n", []byte{0xc3, 0x00, 0x80, 0xc3, 0x03, 0x80}},
		{"arguments", "Load: .macro(reg, value)\n  ld {{reg}},{{value}}\n.endm\n  Load(b, 3)\n  Load(hl, #4000)\n", []byte{0x06, 0x03, 0x21, 0x00, 0x40}},
		{"missing argument", "Opt: .macro(p1, p2)\n  .if isexpr({{p2}})\n  .defb 2\n  .endif\n  nop\n.endm\n  Opt(1)\n", []byte{0x00}},
		{"nested invocation", "Inner: .macro()\n  halt\n.endm\nOuter: .macro()\n  Inner()\n  nop\n.endm\n  Outer()\n", []byte{0x76, 0x00}},
		{"string argument as line", "MyMacro: .macro(arg)\n{{arg}}\n.endm\nMyMacro(\"MyLabel: jp MyLabel\")\n", []byte{0xc3, 0x00, 0x80}},
		{"string argument twice", "MyMacro: .macro(arg)\n{{arg}}\n.endm\nMyMacro(\"MyLabel: jp MyLabel\")\nMyMacro(\"MyLabel: jp MyLabel\")\n", []byte{0xc3, 0x00, 0x80, 0xc3, 0x03, 0x80}},
		{"string argument as instruction", "MyMacro: .macro(arg)\n  {{arg}}\n.endm\n  MyMacro(\"ld a,b\")\n", []byte{0x78}},
		{"register halves", "Hr: .macro(rp)\n  ld a,hreg({{rp}})\n  ld a,lreg({{rp}})\n.endm\n  Hr(bc)\n", []byte{0x78, 0x79}},
		{"end label inside body", "Mac1: .macro()\n  jr fin\n  nop\nfin .endm\n  Mac1()\n", []byte{0x18, 0x01, 0x00}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, assemble(t, c.src, nil)); diff != "" {
			t.Errorf("%s: code mismatch (-want +got):\n%s", c.name, diff)
		}
	}
}

func TestMacroErrors(t *testing.T) {
	cases := []struct {
		src  string
		want []string
	}{
		{".macro()\nnop\n.endm\n", []string{"Z2076"}},
		{"`m: .macro()\nnop\n.endm\n", []string{"Z2077"}},
		{"Mac: nop\nMac: .macro()\nnop\n.endm\n", []string{"Z2078"}},
		{"Mac: .macro(p1, p1)\nnop\n.endm\n", []string{"Z2075"}},
		{"Mac: .macro(p1)\n  ld a,{{p2}}\n.endm\n", []string{"Z2080"}},
		{"Mac: .macro()\nnop\n", []string{"Z2052"}},
		{"  Nope()\n", []string{"Z2087"}},
		{"Mac: .macro(p1)\nnop\n.endm\n  Mac(1, 2)\n", []string{"Z2088"}},
		{"  ld a,{{v}}\n", []string{"Z2069"}},
		{"Mac: .macro()\nnop\n.endm\nMac\n", []string{"Z2070"}},
		{"Mac1: .macro()\nnop\nfin .endm\n  Mac1()\n  .defw fin\n", []string{"Z3000"}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestLoops(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []byte
	}{
		{"loop", ".loop 3\n.defb $cnt\n.endl\n", []byte{0x01, 0x02, 0x03}},
		{"loop zero", ".loop 0\nnop\n.endl\n", nil},
		{"for", ".for idx = 1 .to 3\n.defb idx*2\n.next\n", []byte{0x02, 0x04, 0x06}},
		{"for step", ".for idx = 6 .to 1 .step -2\n.defb idx\n.next\n", []byte{0x06, 0x04, 0x02}},
		{"while", "counter = 0\n.while counter < 3\n.defb counter\ncounter = counter + 1\n.endw\n", []byte{0x00, 0x01, 0x02}},
		{"repeat", "v = 0\n.repeat\n.defb v\nv = v + 1\n.until v == 2\n", []byte{0x00, 0x01}},
		{"break", ".loop 5\n.if $cnt == 3\n.break\n.endif\n.defb $cnt\n.endl\n", []byte{0x01, 0x02}},
		{"continue", ".loop 3\n.if $cnt == 2\n.continue\n.endif\n.defb $cnt\n.endl\n", []byte{0x01, 0x03}},
		{"labels per iteration", ".loop 2\nhere: jr here\n.endl\n", []byte{0x18, 0xfe, 0x18, 0xfe}},
		{"end label", ".loop 2\nnop\nafter .endl\n.defw after\n", []byte{0x00, 0x00, 0x02, 0x80}},
		{"end label after wide body", ".loop 2\nld a,1\nafter .endl\n.defw after\n", []byte{0x3e, 0x01, 0x3e, 0x01, 0x04, 0x80}},
		{"for end label", ".for idx = 1 .to 2\nld a,idx\nafter .next\n.defw after\n", []byte{0x3e, 0x01, 0x3e, 0x02, 0x04, 0x80}},
		{"while end label", "counter = 0\n.while counter < 2\nld a,1\ncounter = counter + 1\nafter .endw\n.defw after\n", []byte{0x3e, 0x01, 0x3e, 0x01, 0x04, 0x80}},
		{"repeat end label", "counter = 0\n.repeat\nld a,1\ncounter = counter + 1\nafter .until counter == 2\n.defw after\n", []byte{0x3e, 0x01, 0x3e, 0x01, 0x04, 0x80}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, assemble(t, c.src, nil)); diff != "" {
			t.Errorf("%s: code mismatch (-want +got):\n%s", c.name, diff)
		}
	}
}

func TestLoopErrors(t *testing.T) {
	out := Compile(".loop 20\n.error \"x\"\n.endl\n", nil)
	got := codes(out)
	if len(got) != 17 || got[15] != "Z4000" || got[16] != "Z2054" {
		t.Errorf("got %v, want 16 x Z4000 followed by Z2054", got)
	}

	cases := []struct {
		src  string
		want []string
	}{
		{".loop 2\nnop\n", []string{"Z2052"}},
		{".endl\n", []string{"Z2055"}},
		{".loop 65536\nnop\n.endl\n", []string{"Z2053"}},
		{".defb $cnt\n", []string{"Z2056"}},
		{".for idx = 1 .to 3 .step 0\n.next\n", []string{"Z2057"}},
		{"idx = 1\n.for idx = 1 .to 3\n.next\n", []string{"Z2058"}},
		{".loop 3\n.defb missing\n.endl\n", []string{"Z3000"}},
		{".break\n", []string{"Z2059"}},
		{".continue\n", []string{"Z2060"}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestIfStatements(t *testing.T) {
	src := ".if v == 1\n.defb 1\n.elif v == 2\n.defb 2\n.else\n.defb 3\n.endif\n"
	for v, want := range map[int64][]byte{1: {1}, 2: {2}, 5: {3}} {
		opts := config.NewOptions()
		opts.PredefinedSymbols["v"] = expr.Integer(v)
		if diff := cmp.Diff(want, assemble(t, src, opts)); diff != "" {
			t.Errorf("v=%d: code mismatch (-want +got):\n%s", v, diff)
		}
	}

	used := "target: nop\n  jp target\n.ifused target\n.defb 1\n.endif\n.ifnused target\n.defb 2\n.endif\n"
	if diff := cmp.Diff([]byte{0x00, 0xc3, 0x00, 0x80, 0x01}, assemble(t, used, nil)); diff != "" {
		t.Errorf("ifused: code mismatch (-want +got):\n%s", diff)
	}

	endLabel := ".if 1\nld a,1\nfin .endif\n.defw fin\n"
	if diff := cmp.Diff([]byte{0x3e, 0x01, 0x02, 0x80}, assemble(t, endLabel, nil)); diff != "" {
		t.Errorf("end label: code mismatch (-want +got):\n%s", diff)
	}

	bad := ".if 1\nnop\n.else\nnop\nlbl .else\nnop\n.endif\n"
	if diff := cmp.Diff([]string{"Z2061", "Z2062"}, codes(Compile(bad, nil))); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
}

func TestModulesAndProcs(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []byte
	}{
		{"dotted path", ".module Inner\nvalue .equ 5\n.endmodule\n  .defb Inner.value\n", []byte{0x05}},
		{"global reference", "value .equ 1\n.module Inner\nvalue .equ 5\n  .defb value, ::value\n.endmodule\n", []byte{0x05, 0x01}},
		{"proc locals", "p1: .proc\ninner: nop\n.endp\np2: .proc\ninner: nop\n.endp\n", []byte{0x00, 0x00}},
		{"proc end label", "p1: .proc\nnop\ndone .endp\n  .defw done\n", []byte{0x00, 0x01, 0x80}},
		{"module end label", ".module Mod1\nld a,1\nfin .endmodule\n  .defw Mod1.fin\n", []byte{0x3e, 0x01, 0x02, 0x80}},
		{"module-local name inside", ".module Inner\n@secret .equ 5\n  .defb @secret\n.endmodule\n", []byte{0x05}},
	}
	for _, c := range cases {
		if diff := cmp.Diff(c.want, assemble(t, c.src, nil)); diff != "" {
			t.Errorf("%s: code mismatch (-want +got):\n%s", c.name, diff)
		}
	}

	errs := []struct {
		src  string
		want []string
	}{
		{".module\n.endmodule\n", []string{"Z2066"}},
		{".module `m\n.endmodule\n", []string{"Z2067"}},
		{".module Mod\n.endmodule\n.module Mod\n.endmodule\n", []string{"Z2068"}},
		{".local a1\n", []string{"Z2065"}},
		{"pr: .proc\n.local `t\n.endp\n", []string{"Z2063"}},
		{"pr: .proc\n.local a1, a1\n.endp\n", []string{"Z2064"}},
		{".module Inner\n@secret .equ 5\n.endmodule\n  .defb Inner.@secret\n", []string{"Z3000"}},
	}
	for _, c := range errs {
		if diff := cmp.Diff(c.want, codes(Compile(c.src, nil))); diff != "" {
			t.Errorf("%q: codes mismatch (-want +got):\n%s", c.src, diff)
		}
	}
}

func TestUnusedSymbols(t *testing.T) {
	opts := config.NewOptions()
	opts.WarnUnusedSymbols = true
	out := Compile("used: nop\nunused: nop\n  jp used\n", opts)
	if diff := cmp.Diff([]string{"W0001"}, codes(out)); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceMaps(t *testing.T) {
	out := Compile("nop\n; comment\n  ld a,1\n", nil)
	if len(out.Errors) > 0 {
		t.Errorf("unexpected diagnostics: %v", codes(out))
	}
	want := map[uint16]FileLine{0x8000: {0, 1}, 0x8001: {0, 3}}
	if diff := cmp.Diff(want, out.SourceMap); diff != "" {
		t.Errorf("source map mismatch (-want +got):\n%s", diff)
	}
	if n := len(out.ListFileItems); n != 2 {
		t.Errorf("%d list items, want 2", n)
	}
}

func TestCaseSensitivity(t *testing.T) {
	src := "Main: nop\n  jp main\n"
	if got := codes(Compile(src, nil)); len(got) != 0 {
		t.Errorf("case-insensitive compile reported %v", got)
	}
	opts := config.NewOptions()
	opts.UseCaseSensitiveSymbols = true
	if diff := cmp.Diff([]string{"Z3000"}, codes(Compile(src, opts))); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
}
