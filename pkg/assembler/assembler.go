// Package assembler implements the two-pass Z80 assembler: preprocessing,
// scoped symbol resolution, macro expansion, structured statements, code
// emission into segments and the final fixup pass.
package assembler

import (
	"fmt"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/diag"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/token"
)

// Assembler is one compilation session. It is not safe for concurrent
// use; independent sessions share nothing.
type Assembler struct {
	Loader SourceLoader

	opts   *config.Options
	output *Output
	root   *Module
	module *Module
	eval   *expr.Evaluator

	conditionSymbols map[string]expr.Value
	processedLines   int
	modelSeen        bool

	segment     *Segment
	instrOffset int
	usedBanks   map[int]bool
	compareBins []compareBin

	currentLine  *ast.Line
	hangingLabel *ast.Line
	macroLines   []*ast.Line
	unresolved   map[unresolvedKey]bool

	structCloning     bool
	structInvocation  *structInvocation
	inFieldAssignment bool
	measuring         bool
	measured          int
}

// New creates a session. A nil opts selects the defaults.
func New(opts *config.Options) *Assembler {
	if opts == nil {
		opts = config.NewOptions()
	}
	return &Assembler{Loader: OSLoader{}, opts: opts.Clone()}
}

// Compile assembles source held in memory.
func Compile(source string, opts *config.Options) *Output {
	return New(opts).Compile(source)
}

// CompileFile assembles the file at path.
func CompileFile(path string, opts *config.Options) *Output {
	return New(opts).CompileFile(path)
}

func (a *Assembler) reset() {
	a.output = newOutput()
	a.output.ModelType = a.opts.CurrentModel
	a.root = NewModule("", nil)
	a.module = a.root
	a.output.Root = a.root
	a.eval = expr.NewEvaluator(int64(len(a.opts.PredefinedSymbols)) + 1)
	a.conditionSymbols = make(map[string]expr.Value)
	for name, value := range a.opts.PredefinedSymbols {
		a.conditionSymbols[name] = value
		a.root.Symbols[a.normalize(name)] = &Symbol{Name: a.normalize(name), Kind: VarSymbol, Value: value}
	}
	a.processedLines = 0
	a.modelSeen = false
	a.segment = nil
	a.instrOffset = 0
	a.usedBanks = make(map[int]bool)
	a.compareBins = nil
	a.currentLine = nil
	a.hangingLabel = nil
	a.macroLines = nil
	a.unresolved = make(map[unresolvedKey]bool)
	a.structCloning = false
	a.structInvocation = nil
	a.inFieldAssignment = false
	a.measuring = false
}

func (a *Assembler) Compile(source string) *Output {
	a.reset()
	file := NewSourceFile(SourceName, []byte(source))
	a.output.SourceFiles = append(a.output.SourceFiles, file)
	if lines, ok := a.executeParse(0, []rune(source), file); ok {
		a.emitCode(lines)
	}
	return a.output
}

func (a *Assembler) CompileFile(path string) *Output {
	a.reset()
	content, err := a.Loader.ReadFile(path)
	file := NewSourceFile(path, content)
	a.output.SourceFiles = append(a.output.SourceFiles, file)
	if err != nil {
		a.addError(diag.New("Z2007", path, err), 0, 0, 0, 0, 0)
		return a.output
	}
	if lines, ok := a.executeParse(0, []rune(string(content)), file); ok {
		a.emitCode(lines)
	}
	return a.output
}

// Options returns the effective options of the session.
func (a *Assembler) Options() *config.Options { return a.opts }

// --- Diagnostics

// addError positions e and appends it. Errors inside a loop that already
// reached its error limit are counted but not recorded.
func (a *Assembler) addError(e diag.Error, fileIndex, line, column, start, end int) {
	if a.measuring {
		return
	}
	e.FileIndex, e.Line, e.Column, e.StartPos, e.EndPos = fileIndex, line, column, start, end
	if fileIndex >= 0 && fileIndex < len(a.output.SourceFiles) {
		e.File = a.output.SourceFiles[fileIndex].Filename
	}
	if n := len(a.macroLines); n > 0 {
		inv := a.macroLines[n-1]
		e.Message = fmt.Sprintf("(from macro invocation through line %d) %s", inv.Line, e.Message)
	}
	if !e.Warning && a.module != nil {
		for _, s := range a.module.LocalScopes {
			if !s.IsTemporary {
				s.ErrorCount++
			}
		}
		loop := a.loopScope()
		if e.Code != "Z2054" && loop != nil && loop.Owner != nil && loop.Owner.ErrorCount > a.opts.MaxLoopErrorsToReport {
			return
		}
	}
	a.output.Errors = append(a.output.Errors, e)
}

// report positions code at line.
func (a *Assembler) report(code string, line *ast.Line, args ...any) {
	if line == nil {
		line = a.currentLine
	}
	e := diag.New(code, args...)
	if line == nil {
		a.addError(e, 0, 0, 0, 0, 0)
		return
	}
	a.addError(e, line.FileIndex, line.Line, line.Column, line.StartPos, line.EndPos)
}

// reportToken positions code at tok. Lines produced by macro expansion
// carry positions of the expanded text, so those are reported at the line.
func (a *Assembler) reportToken(code string, line *ast.Line, tok token.Token, args ...any) {
	if line == nil || len(a.macroLines) > 0 || tok.Line == 0 {
		a.report(code, line, args...)
		return
	}
	a.addError(diag.New(code, args...), tok.FileIndex, tok.Line, tok.Column, tok.Pos, tok.End())
}

func (a *Assembler) reportNode(code string, line *ast.Line, node *ast.Node, args ...any) {
	if node == nil {
		a.report(code, line, args...)
		return
	}
	a.reportToken(code, line, node.Tok, args...)
}

// --- Expression evaluation

// evalContext adapts the session to expr.Context. Fixups evaluate with
// the address and loop counter captured when they were recorded.
type evalContext struct {
	a       *Assembler
	line    *ast.Line
	addr    uint16
	counter expr.Value
	fixed   bool
}

func (c *evalContext) CurrentAddress() uint16 { return c.addr }

func (c *evalContext) LoopCounter() (expr.Value, bool) {
	if c.fixed {
		return c.counter, c.counter != nil
	}
	if s := c.a.loopScope(); s != nil {
		return s.LoopCounter, true
	}
	return nil, false
}

func (c *evalContext) SymbolValue(name string, fromGlobal bool) (expr.Value, bool) {
	sym := c.a.lookupSymbol(name, fromGlobal)
	if sym == nil {
		return nil, false
	}
	sym.Used = true
	return sym.Value, true
}

func (c *evalContext) MacroArgument(name string) (string, bool) {
	s := c.a.macroScope()
	if s == nil {
		return "", false
	}
	text, ok := s.MacroArguments[c.a.normalize(name)]
	return text, ok
}

func (c *evalContext) InMacro() bool { return c.a.macroScope() != nil }

func (c *evalContext) Report(code string, node *ast.Node, args ...any) {
	c.a.reportNode(code, c.line, node, args...)
}

func (a *Assembler) context(line *ast.Line) *evalContext {
	return &evalContext{a: a, line: line, addr: a.currentAddress()}
}

// evaluate returns NonEvaluated for forward references.
func (a *Assembler) evaluate(line *ast.Line, node *ast.Node) expr.Value {
	return a.eval.Eval(a.context(line), node)
}

// evalImmediate requires every symbol of node to be known; an unknown one
// is reported as Z3000.
func (a *Assembler) evalImmediate(line *ast.Line, node *ast.Node) expr.Value {
	ctx := a.context(line)
	v := a.eval.Eval(ctx, node)
	if expr.IsNonEvaluated(v) {
		if missing := expr.Unresolved(ctx, node); missing != nil {
			a.reportNode("Z3000", line, missing, missing.Data.(ast.SymbolNode).Name)
		}
		return expr.Error
	}
	return v
}

// --- Segments and emission

func (a *Assembler) ensureSegment() {
	if a.segment != nil {
		return
	}
	start := uint16(0x8000)
	if a.opts.DefaultStartAddress != nil {
		start = *a.opts.DefaultStartAddress
	}
	a.segment = NewSegment(start, 0xffff)
	a.output.Segments = append(a.output.Segments, a.segment)
	a.instrOffset = 0
}

// currentAddress is the address of the current line.
func (a *Assembler) currentAddress() uint16 {
	a.ensureSegment()
	addr := int(a.segment.StartAddress) + a.instrOffset
	if a.segment.Displacement != nil {
		addr += *a.segment.Displacement
	}
	return uint16(addr & 0xffff)
}

// markLineStart makes $ refer to the next byte to be emitted.
func (a *Assembler) markLineStart() {
	if a.segment != nil {
		a.instrOffset = a.segment.CurrentOffset()
	}
}

func (a *Assembler) currentOffset() int {
	a.ensureSegment()
	return a.segment.CurrentOffset()
}

func (a *Assembler) emitByte(b byte) {
	if a.measuring {
		a.measured++
		return
	}
	if inv := a.structInvocation; inv != nil && a.inFieldAssignment {
		inv.bytes[inv.offset] = b
		inv.offset++
		inv.maxOffset = max(inv.maxOffset, inv.offset)
		return
	}
	a.ensureSegment()
	if a.segment.EmitByte(b) {
		a.report("Z2000", a.currentLine)
	}
}

func (a *Assembler) emitWord(w uint16) {
	a.emitByte(byte(w))
	a.emitByte(byte(w >> 8))
}

// emitOpCode emits one or two opcode bytes, high byte first.
func (a *Assembler) emitOpCode(code int) {
	if code > 0xff {
		a.emitByte(byte(code >> 8))
	}
	a.emitByte(byte(code))
}

func (a *Assembler) emitBytes(data []byte) {
	for _, b := range data {
		a.emitByte(b)
	}
}

// emitNumericExpr emits node as an 8 or 16-bit value. A forward reference
// emits zeros and records a fixup.
func (a *Assembler) emitNumericExpr(line *ast.Line, node *ast.Node, kind FixupType) {
	v := a.evaluate(line, node)
	var n int64
	switch v.Kind() {
	case expr.KindNonEvaluated:
		a.recordFixup(line, kind, node)
	case expr.KindError:
	case expr.KindString:
		a.reportNode("Z2042", line, node)
	default:
		n, _ = expr.AsLong(v)
		a.checkTruncation(line, node, n, kind)
	}
	switch kind {
	case FixupBit8:
		a.emitByte(byte(n))
	case FixupBit16Be:
		a.emitByte(byte(n >> 8))
		a.emitByte(byte(n))
	default:
		a.emitWord(uint16(n))
	}
}

func (a *Assembler) checkTruncation(line *ast.Line, node *ast.Node, n int64, kind FixupType) {
	if !a.opts.WarnTruncation {
		return
	}
	switch kind {
	case FixupBit8:
		if n < -128 || n > 0xff {
			a.reportNode("W0003", line, node, n, 8)
		}
	case FixupBit16, FixupBit16Be:
		if n < -0x8000 || n > 0xffff {
			a.reportNode("W0003", line, node, n, 16)
		}
	}
}
