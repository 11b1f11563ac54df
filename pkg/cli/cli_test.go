package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type parsed struct {
	Output  string
	Verbose bool
	Start   int64
	Defines []string
	Include []string
	Args    []string
}

func parse(t *testing.T, args ...string) (parsed, error) {
	t.Helper()
	var p parsed
	fs := NewFlagSet("z80asm")
	fs.String(&p.Output, "output", "o", "out.bin", "Output file", "file")
	fs.Bool(&p.Verbose, "verbose", "v", false, "Verbose logging")
	fs.Int(&p.Start, "start", "", 0x8000, "Start address", "addr")
	fs.List(&p.Include, "include", "I", nil, "Include path", "dir")
	fs.Special(&p.Defines, "D", "Define a symbol", "name[=value]")
	err := fs.Parse(args)
	p.Args = fs.Args()
	return p, err
}

func TestParse(t *testing.T) {
	cases := []struct {
		args []string
		want parsed
	}{
		{nil, parsed{Output: "out.bin", Start: 0x8000, Defines: []string{}, Args: []string{}}},
		{
			[]string{"-o", "a.hex", "-v", "main.asm"},
			parsed{Output: "a.hex", Verbose: true, Start: 0x8000, Defines: []string{}, Args: []string{"main.asm"}},
		},
		{
			[]string{"--output=x.bin", "--start", "#6000", "-DDEBUG", "-DLEVEL=2", "-Ilib", "-I", "inc"},
			parsed{Output: "x.bin", Start: 0x6000, Defines: []string{"DEBUG", "LEVEL=2"}, Include: []string{"lib", "inc"}, Args: []string{}},
		},
		{
			[]string{"-start=0x100", "--", "-v"},
			parsed{Output: "out.bin", Start: 0x100, Defines: []string{}, Args: []string{"-v"}},
		},
	}
	for _, c := range cases {
		got, err := parse(t, c.args...)
		if err != nil {
			t.Errorf("%v: %v", c.args, err)
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("%v: mismatch (-want +got):\n%s", c.args, diff)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--unknown"},
		{"-x"},
		{"-o"},
		{"--start", "zz"},
		{"--verbose=maybe"},
	} {
		if _, err := parse(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestParseInt(t *testing.T) {
	cases := map[string]int64{"42": 42, "#ff": 255, "$10": 16, "0x8000": 0x8000, "%101": 5, "0o17": 15}
	for text, want := range cases {
		got, err := ParseInt(text)
		if err != nil || got != want {
			t.Errorf("ParseInt(%q) = %d, %v; want %d", text, got, err, want)
		}
	}
}

func TestHelpPage(t *testing.T) {
	var out bytes.Buffer
	app := NewApp("z80asm")
	app.Synopsis = "[options] <source.asm>"
	app.Authors = []string{"z80asm authors"}
	app.Stdout, app.Width = &out, 80
	var verbose, unused, next bool
	app.FlagSet.Bool(&verbose, "verbose", "v", false, "Verbose logging")
	app.FlagSet.AddFlagGroup("Warning Flags", "", "warning flag", "Available Warning Flags:", []FlagGroupEntry{
		{Name: "unused-symbol", Prefix: "W", Usage: "Unused symbols", Enabled: &unused, Disabled: new(bool)},
		{Name: "next-only", Prefix: "W", Usage: "Next instructions", Enabled: &next, Disabled: new(bool)},
	})
	called := false
	app.Action = func([]string) error { called = true; return nil }

	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Error("action ran for --help")
	}
	page := out.String()
	for _, want := range []string{"z80asm <options> <source.asm>", "-v, --verbose", "-W<warning flag>", "unused-symbol", "|-|"} {
		if !strings.Contains(page, want) {
			t.Errorf("help page lacks %q:\n%s", want, page)
		}
	}
	if strings.Contains(page, "--Wunused-symbol") {
		t.Errorf("group flag listed as an option:\n%s", page)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if diff := cmp.Diff([]string{"one two", "three", "four"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
