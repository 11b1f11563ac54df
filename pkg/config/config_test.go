package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/z80asm/pkg/cli"
	"github.com/xplshn/z80asm/pkg/expr"
)

func TestParseModel(t *testing.T) {
	cases := []struct {
		name string
		want SpectrumModel
		ok   bool
	}{
		{"spectrum48", Spectrum48, true},
		{"Spectrum128", Spectrum128, true},
		{"SPECTRUMP3", SpectrumP3, true},
		{"next", Next, true},
		{"zx81", ModelNone, false},
	}
	for _, c := range cases {
		got, ok := ParseModel(c.name)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseModel(%q) = %v, %v; want %v, %v", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	opts := NewOptions()
	addr := uint16(0x6000)
	opts.DefaultStartAddress = &addr
	opts.PredefinedSymbols["A"] = expr.Integer(1)

	c := opts.Clone()
	c.PredefinedSymbols["B"] = expr.Integer(2)
	*c.DefaultStartAddress = 0x7000

	if _, ok := opts.PredefinedSymbols["B"]; ok {
		t.Error("clone shares the predefined symbol map")
	}
	if *opts.DefaultStartAddress != 0x6000 {
		t.Error("clone shares the start address")
	}
	if (&Options{}).Clone().MaxLoopErrorsToReport != 16 {
		t.Error("zero loop error limit not defaulted")
	}
}

func TestProcessFlags(t *testing.T) {
	cases := []struct {
		flags    []string
		features []bool
		warnings []bool
		err      bool
	}{
		{nil, []bool{false, false, false}, []bool{false, false, true, true}, false},
		{[]string{"-Fcase-sensitive", "-Wunused-symbol"}, []bool{true, false, false}, []bool{true, false, true, true}, false},
		{[]string{"-Wall", "-Wno-overflow"}, []bool{false, false, false}, []bool{true, true, false, true}, false},
		{[]string{"-Fflexible-def", "-Fno-flexible-def"}, []bool{false, false, false}, []bool{false, false, true, true}, false},
		{[]string{"-Wno-late-model"}, []bool{false, false, false}, []bool{false, false, true, false}, false},
		{[]string{"-Wbogus"}, nil, nil, true},
		{[]string{"-Xcase-sensitive"}, nil, nil, true},
	}
	for _, c := range cases {
		cfg := NewConfig()
		err := cfg.ProcessFlags(c.flags)
		if (err != nil) != c.err {
			t.Errorf("%v: error = %v, want error %v", c.flags, err, c.err)
			continue
		}
		if c.err {
			continue
		}
		var features, warnings []bool
		for f := Feature(0); f < FeatCount; f++ {
			features = append(features, cfg.IsFeatureEnabled(f))
		}
		for w := Warning(0); w < WarnCount; w++ {
			warnings = append(warnings, cfg.IsWarningEnabled(w))
		}
		if diff := cmp.Diff(c.features, features); diff != "" {
			t.Errorf("%v: features mismatch (-want +got):\n%s", c.flags, diff)
		}
		if diff := cmp.Diff(c.warnings, warnings); diff != "" {
			t.Errorf("%v: warnings mismatch (-want +got):\n%s", c.flags, diff)
		}
	}
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("z80asm")
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)
	if err := fs.Parse([]string{"-Wnext-only", "-Wno-overflow", "-Fexplicit-locals", "main.asm"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.ApplyFlagGroups(warningFlags, featureFlags)

	opts := NewOptions()
	cfg.Apply(opts)
	want := Options{
		PredefinedSymbols:      opts.PredefinedSymbols,
		MaxLoopErrorsToReport:  16,
		ProcExplicitLocalsOnly: true,
		WarnNextOnly:           true,
		WarnLateModel:          true,
	}
	if diff := cmp.Diff(want, *opts, cmp.Comparer(func(a, b TraceHandler) bool { return a == nil && b == nil })); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"main.asm"}, fs.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}
