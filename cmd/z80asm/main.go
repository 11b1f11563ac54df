package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/xplshn/z80asm/pkg/assembler"
	"github.com/xplshn/z80asm/pkg/cli"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/diag"
	"github.com/xplshn/z80asm/pkg/export"
	"github.com/xplshn/z80asm/pkg/expr"
	"golang.org/x/term"
)

var errAssembly = errors.New("assembly failed")

func main() {
	app := cli.NewApp("z80asm")
	app.Synopsis = "[options] <source.asm>"
	app.Description = "A two-pass Z80 assembler for the ZX Spectrum family, with macros, structs, modules and loops."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/z80asm>"

	var (
		outFile     string
		format      string
		listFile    string
		symbolFile  string
		model       string
		start       int64
		defines     []string
		dumpSymbols bool
		verbose     bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>. Defaults to the source name with the format's extension.", "file")
	fs.String(&format, "format", "f", "bin", "Output format (bin, hex).", "format")
	fs.String(&listFile, "listing", "l", "", "Write a listing to <file>.", "file")
	fs.String(&symbolFile, "symbols", "s", "", "Write the symbol table to <file>.", "file")
	fs.String(&model, "model", "m", "", "Target model (Spectrum48, Spectrum128, SpectrumP3, Next).", "model")
	fs.Int(&start, "start", "", 0x8000, "Default start address of the code.", "addr")
	fs.Special(&defines, "D", "Predefine a symbol (e.g., -DDEBUG or -DLEVEL=2)", "name[=value]")
	fs.Bool(&dumpSymbols, "dump-symbols", "", false, "Pretty-print the symbols and segments to stderr.")
	fs.Bool(&verbose, "verbose", "v", false, "Log each compilation step.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "z80asm"})

	app.Action = func(inputFiles []string) error {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
		if len(inputFiles) != 1 {
			logger.Error("expected exactly one source file", "got", len(inputFiles))
			return errAssembly
		}
		source := inputFiles[0]

		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		opts := config.NewOptions()
		cfg.Apply(opts)
		if start < 0 || start > 0xffff {
			logger.Error("start address out of range", "start", start)
			return errAssembly
		}
		addr := uint16(start)
		opts.DefaultStartAddress = &addr
		if model != "" {
			m, ok := config.ParseModel(model)
			if !ok {
				logger.Error("unknown model", "model", model)
				return errAssembly
			}
			opts.CurrentModel = m
		}
		for _, d := range defines {
			name, value := parseDefine(d)
			opts.PredefinedSymbols[name] = value
		}
		opts.TraceHandler = func(message string) { logger.Info(message, "trace", true) }

		logger.Debug("assembling", "file", source, "model", opts.CurrentModel, "start", fmt.Sprintf("#%04X", addr))
		asm := assembler.New(opts)
		out := asm.CompileFile(source)

		printer := diag.NewPrinter(os.Stderr, out.SourceRecords(asm.Loader, ""))
		printer.PrintAll(out.Errors)
		if dumpSymbols {
			dump(out)
		}
		if n := out.ErrorCount(); n > 0 {
			logger.Error("assembly failed", "errors", n, "warnings", out.WarningCount())
			return errAssembly
		}

		if outFile == "" {
			outFile = strings.TrimSuffix(source, filepath.Ext(source)) + "." + format
		}
		var write func(io.Writer, *assembler.Output) error
		switch format {
		case "bin":
			write = export.WriteBinary
		case "hex":
			write = export.WriteHex
		default:
			logger.Error("unknown output format", "format", format)
			return errAssembly
		}
		if err := writeFile(outFile, out, write); err != nil {
			logger.Error("cannot write output", "err", err)
			return err
		}
		if listFile != "" {
			if err := writeFile(listFile, out, export.WriteListing); err != nil {
				logger.Error("cannot write listing", "err", err)
				return err
			}
		}
		if symbolFile != "" {
			if err := writeFile(symbolFile, out, export.WriteSymbols); err != nil {
				logger.Error("cannot write symbols", "err", err)
				return err
			}
		}

		size := 0
		for _, s := range out.Segments {
			size += len(s.EmittedCode)
		}
		logger.Info("assembled", "file", outFile, "segments", len(out.Segments), "bytes", size, "warnings", out.WarningCount())
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// parseDefine turns NAME or NAME=value into a predefined symbol. Numeric
// values become integers, anything else a string; a bare name is true.
func parseDefine(d string) (string, expr.Value) {
	name, value, ok := strings.Cut(d, "=")
	if !ok {
		return name, expr.Bool(true)
	}
	if n, err := cli.ParseInt(value); err == nil {
		return name, expr.Integer(n)
	}
	return name, expr.String(value)
}

func writeFile(path string, out *assembler.Output, write func(io.Writer, *assembler.Output) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, out); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

type segmentSummary struct {
	Start  string
	Bank   *int
	Length int
}

func dump(out *assembler.Output) {
	printer := pp.New()
	printer.SetOutput(os.Stderr)
	printer.SetColoringEnabled(term.IsTerminal(int(os.Stderr.Fd())))

	segments := make([]segmentSummary, len(out.Segments))
	for i, s := range out.Segments {
		segments[i] = segmentSummary{Start: fmt.Sprintf("#%04X", s.StartAddress), Bank: s.Bank, Length: len(s.EmittedCode)}
	}
	printer.Println(segments)
	printer.Println(export.Symbols(out))
}
