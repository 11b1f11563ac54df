package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/z80asm/pkg/cli"
	"github.com/xplshn/z80asm/pkg/expr"
)

// SpectrumModel selects the target machine of a compilation
type SpectrumModel int

const (
	ModelNone SpectrumModel = iota
	Spectrum48
	Spectrum128
	SpectrumP3
	Next
)

var modelNames = map[SpectrumModel]string{
	Spectrum48: "SPECTRUM48", Spectrum128: "SPECTRUM128", SpectrumP3: "SPECTRUMP3", Next: "NEXT",
}

func (m SpectrumModel) String() string { return modelNames[m] }

// ParseModel maps a case-insensitive model name to its SpectrumModel.
func ParseModel(name string) (SpectrumModel, bool) {
	upper := strings.ToUpper(name)
	for m, n := range modelNames {
		if n == upper {
			return m, true
		}
	}
	return ModelNone, false
}

// TraceHandler receives the text of .trace and .tracehex pragmas.
type TraceHandler func(message string)

// Options drives one assembler session.
type Options struct {
	PredefinedSymbols       map[string]expr.Value
	DefaultStartAddress     *uint16
	CurrentModel            SpectrumModel
	MaxLoopErrorsToReport   int
	ProcExplicitLocalsOnly  bool
	UseCaseSensitiveSymbols bool
	FlexibleDefPragmas      bool
	TraceHandler            TraceHandler

	// Optional warnings (W0001 to W0004)
	WarnUnusedSymbols bool
	WarnNextOnly      bool
	WarnTruncation    bool
	WarnLateModel     bool
}

func NewOptions() *Options {
	return &Options{
		PredefinedSymbols:     make(map[string]expr.Value),
		MaxLoopErrorsToReport: 16,
	}
}

// Clone returns a copy the session can mutate (.zxbasic switches modes).
func (o *Options) Clone() *Options {
	c := *o
	c.PredefinedSymbols = make(map[string]expr.Value, len(o.PredefinedSymbols))
	for k, v := range o.PredefinedSymbols {
		c.PredefinedSymbols[k] = v
	}
	if o.DefaultStartAddress != nil {
		addr := *o.DefaultStartAddress
		c.DefaultStartAddress = &addr
	}
	if c.MaxLoopErrorsToReport <= 0 {
		c.MaxLoopErrorsToReport = 16
	}
	return &c
}

type Feature int

const (
	FeatCaseSensitive Feature = iota
	FeatExplicitLocals
	FeatFlexibleDef
	FeatCount
)

type Warning int

const (
	WarnUnusedSymbol Warning = iota
	WarnNextOnly
	WarnOverflow
	WarnLateModel
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
	}

	features := map[Feature]Info{
		FeatCaseSensitive:  {"case-sensitive", false, "Treat symbol names as case-sensitive."},
		FeatExplicitLocals: {"explicit-locals", false, "Only symbols booked with '.local' are local to a '.proc'."},
		FeatFlexibleDef:    {"flexible-def", false, "Accept strings in .defb/.defw and numbers in .defm/.defn/.defc."},
	}

	warnings := map[Warning]Info{
		WarnUnusedSymbol: {"unused-symbol", false, "Warn about symbols that are declared but never used."},
		WarnNextOnly:     {"next-only", false, "Warn when a ZX Spectrum Next instruction is assembled for the Next model."},
		WarnOverflow:     {"overflow", true, "Warn when an 8-bit or 16-bit value is truncated."},
		WarnLateModel:    {"late-model", true, "Warn when '.model' follows code it also applies to."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	var isWarning bool
	switch {
	case strings.HasPrefix(trimmed, "W"):
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
	default:
		return fmt.Errorf("unknown flag '%s'", flag)
	}
	name := trimmed[1:]
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if isWarning {
		if name == "all" {
			for i := Warning(0); i < WarnCount; i++ {
				c.SetWarning(i, enable)
			}
			return nil
		}
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// ProcessFlags applies -W/-F style flags in order.
func (c *Config) ProcessFlags(flags []string) error {
	for _, flag := range flags {
		if err := c.applyFlag(flag); err != nil {
			return err
		}
	}
	return nil
}

// SetupFlagGroups registers a -W and -F flag pair for every warning and
// feature. The returned slices are indexed by Warning and Feature.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) ([]cli.FlagGroupEntry, []cli.FlagGroupEntry) {
	warningFlags := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warningFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warningFlags)

	featureFlags := make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		featureFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available Feature Flags:", featureFlags)

	return warningFlags, featureFlags
}

// ApplyFlagGroups copies the parsed flag group values back into c.
func (c *Config) ApplyFlagGroups(warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i, entry := range warningFlags {
		if entry.Enabled != nil {
			c.SetWarning(Warning(i), *entry.Enabled)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range featureFlags {
		if entry.Enabled != nil {
			c.SetFeature(Feature(i), *entry.Enabled)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}

// Apply copies the enabled features into opts.
func (c *Config) Apply(opts *Options) {
	opts.UseCaseSensitiveSymbols = c.IsFeatureEnabled(FeatCaseSensitive)
	opts.ProcExplicitLocalsOnly = c.IsFeatureEnabled(FeatExplicitLocals)
	opts.FlexibleDefPragmas = c.IsFeatureEnabled(FeatFlexibleDef)
	opts.WarnUnusedSymbols = c.IsWarningEnabled(WarnUnusedSymbol)
	opts.WarnNextOnly = c.IsWarningEnabled(WarnNextOnly)
	opts.WarnTruncation = c.IsWarningEnabled(WarnOverflow)
	opts.WarnLateModel = c.IsWarningEnabled(WarnLateModel)
}
