package assembler

import (
	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/expr"
)

// FixupType tells how the value of a resolved fixup is applied.
type FixupType int

const (
	FixupBit8 FixupType = iota
	FixupBit16
	FixupBit16Be
	FixupJr
	FixupEnt
	FixupXent
	FixupEqu
	FixupStruct
	FixupFieldBit8
	FixupFieldBit16
)

var fixupNames = [...]string{"Bit8", "Bit16", "Bit16Be", "Jr", "Ent", "Xent", "Equ", "Struct", "FieldBit8", "FieldBit16"}

func (t FixupType) String() string { return fixupNames[t] }

// Fixup is an expression that could not be evaluated when its line was
// emitted. It captures everything needed to evaluate it later.
type Fixup struct {
	Type    FixupType
	Line    *ast.Line
	Expr    *ast.Node
	Segment *Segment
	// Offset is the position of the patched bytes within Segment, or within
	// the struct bytes for field fixups.
	Offset  int
	Address uint16
	Counter expr.Value
	Module  *Module
	InMacro bool

	// Equ fixups define Label in Table once resolved.
	Label string
	Table map[string]*Symbol

	Invocation *structInvocation
	Resolved   bool
}

// recordFixup registers node for later evaluation. The fixup is attached
// to every open local scope and to each module up to the root, so that
// the first scope able to resolve it does so.
func (a *Assembler) recordFixup(line *ast.Line, kind FixupType, node *ast.Node) *Fixup {
	if a.measuring {
		return nil
	}
	a.ensureSegment()
	f := &Fixup{
		Type:    kind,
		Line:    line,
		Expr:    node,
		Segment: a.segment,
		Offset:  a.segment.CurrentOffset(),
		Address: a.currentAddress(),
		Module:  a.module,
		InMacro: len(a.macroLines) > 0,
	}
	if s := a.loopScope(); s != nil {
		f.Counter = s.LoopCounter
	}
	if inv := a.structInvocation; inv != nil && a.inFieldAssignment {
		switch kind {
		case FixupBit8:
			f.Type = FixupFieldBit8
		case FixupBit16:
			f.Type = FixupFieldBit16
		}
		f.Invocation = inv
		f.Offset = inv.offset
	}
	if referencesTemporary(node) {
		// A temporary label defined later belongs to the open temporary
		// scope, which has to resolve this fixup before it closes.
		a.symbolTable("`")
	}
	for _, s := range a.module.LocalScopes {
		s.Fixups = append(s.Fixups, f)
	}
	for m := a.module; m != nil; m = m.Parent {
		m.Fixups = append(m.Fixups, f)
	}
	return f
}

func referencesTemporary(node *ast.Node) bool {
	found := false
	ast.Walk(node, func(n *ast.Node) {
		if n.Type == ast.Symbol && isTemporary(n.Data.(ast.SymbolNode).Name) {
			found = true
		}
	})
	return found
}

var fixupPhases = [][]FixupType{
	{FixupBit8, FixupBit16, FixupBit16Be, FixupJr, FixupEnt, FixupXent},
	{FixupStruct},
	{FixupFieldBit8, FixupFieldBit16},
}

// fixupSymbols resolves what it can of fixups. Equ fixups go first and
// are retried while any of them makes progress, since one may depend on
// another. With final set every fixup left open is reported as Z3000.
func (a *Assembler) fixupSymbols(fixups []*Fixup, final bool) {
	for progress := true; progress; {
		progress = false
		for _, f := range fixups {
			if !f.Resolved && f.Type == FixupEqu && a.resolveFixup(f) {
				progress = true
			}
		}
	}
	for _, phase := range fixupPhases {
		for _, f := range fixups {
			if f.Resolved || !containsType(phase, f.Type) {
				continue
			}
			a.resolveFixup(f)
		}
	}
	if !final {
		return
	}
	for _, f := range fixups {
		if !f.Resolved {
			a.reportUnresolved(f)
		}
	}
}

func containsType(types []FixupType, t FixupType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (a *Assembler) fixupContext(f *Fixup) *evalContext {
	return &evalContext{a: a, line: f.Line, addr: f.Address, counter: f.Counter, fixed: true}
}

// withModule runs fn with f's module as the current one.
func (a *Assembler) withModule(m *Module, fn func()) {
	saved := a.module
	a.module = m
	defer func() { a.module = saved }()
	fn()
}

// resolveFixup evaluates f and applies its value. It returns false while
// the expression still depends on unknown symbols.
func (a *Assembler) resolveFixup(f *Fixup) bool {
	if f.Type == FixupStruct {
		a.applyStructBytes(f)
		f.Resolved = true
		return true
	}
	var v expr.Value
	a.withModule(f.Module, func() { v = a.eval.Eval(a.fixupContext(f), f.Expr) })
	if expr.IsNonEvaluated(v) {
		return false
	}
	f.Resolved = true
	if !expr.IsValid(v) {
		return true
	}
	if v.Kind() == expr.KindString && f.Type != FixupEqu {
		a.reportFixup(f, "Z2042")
		return true
	}
	n, err := expr.AsLong(v)
	if err != nil && f.Type != FixupEqu {
		a.reportFixup(f, "Z3001", err.Error())
		return true
	}

	code := f.Segment.EmittedCode
	switch f.Type {
	case FixupBit8:
		a.checkTruncation(f.Line, f.Expr, n, FixupBit8)
		if f.Offset < len(code) {
			code[f.Offset] = byte(n)
		}
	case FixupBit16:
		a.checkTruncation(f.Line, f.Expr, n, FixupBit16)
		if f.Offset+1 < len(code) {
			code[f.Offset] = byte(n)
			code[f.Offset+1] = byte(n >> 8)
		}
	case FixupBit16Be:
		a.checkTruncation(f.Line, f.Expr, n, FixupBit16)
		if f.Offset+1 < len(code) {
			code[f.Offset] = byte(n >> 8)
			code[f.Offset+1] = byte(n)
		}
	case FixupJr:
		dist := int64(uint16(n)) - (int64(f.Address) + 2)
		if dist < -128 || dist > 127 {
			a.reportFixup(f, "Z2045", dist)
			return true
		}
		if f.Offset < len(code) {
			code[f.Offset] = byte(dist)
		}
	case FixupEnt:
		addr := uint16(n)
		a.output.EntryAddress = &addr
	case FixupXent:
		addr := uint16(n)
		a.output.ExportEntryAddress = &addr
	case FixupEqu:
		name := a.normalize(f.Label)
		if _, exists := f.Table[name]; exists {
			a.reportFixup(f, "Z2017", name)
			return true
		}
		f.Table[name] = &Symbol{Name: name, Kind: LabelSymbol, Value: v}
	case FixupFieldBit8:
		a.checkTruncation(f.Line, f.Expr, n, FixupBit8)
		a.patchStructByte(f, f.Offset, byte(n))
	case FixupFieldBit16:
		a.checkTruncation(f.Line, f.Expr, n, FixupBit16)
		a.patchStructByte(f, f.Offset, byte(n))
		a.patchStructByte(f, f.Offset+1, byte(n>>8))
	}
	return true
}

// applyStructBytes copies the field overrides of a struct invocation over
// its default bytes.
func (a *Assembler) applyStructBytes(f *Fixup) {
	inv := f.Invocation
	code := f.Segment.EmittedCode
	for offset, b := range inv.bytes {
		if pos := inv.startOffset + offset; pos < len(code) {
			code[pos] = b
		}
	}
	inv.applied = true
}

func (a *Assembler) patchStructByte(f *Fixup, offset int, b byte) {
	inv := f.Invocation
	inv.bytes[offset] = b
	if !inv.applied {
		return
	}
	if pos := inv.startOffset + offset; pos < len(f.Segment.EmittedCode) {
		f.Segment.EmittedCode[pos] = b
	}
}

func (a *Assembler) reportFixup(f *Fixup, code string, args ...any) {
	a.report(code, f.Line, args...)
}

// unresolvedKey identifies a Z3000 report, so a line re-emitted by a loop
// reports each missing symbol once.
type unresolvedKey struct {
	line *ast.Line
	name string
}

// reportUnresolved names the first unknown symbol of f.
func (a *Assembler) reportUnresolved(f *Fixup) {
	var missing *ast.Node
	a.withModule(f.Module, func() { missing = expr.Unresolved(a.fixupContext(f), f.Expr) })
	if missing == nil {
		return
	}
	name := missing.Data.(ast.SymbolNode).Name
	key := unresolvedKey{f.Line, name}
	if a.unresolved[key] {
		return
	}
	a.unresolved[key] = true
	if f.InMacro {
		a.report("Z3000", f.Line, name)
		return
	}
	a.reportNode("Z3000", f.Line, missing, name)
}
