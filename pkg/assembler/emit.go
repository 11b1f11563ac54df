package assembler

import (
	"maps"
	"slices"

	"github.com/xplshn/z80asm/pkg/ast"
)

// emitCode runs the emission pass over the preprocessed lines and then the
// final fixup pass.
func (a *Assembler) emitCode(lines []*ast.Line) {
	a.ensureSegment()
	a.emitRange(lines, 0, len(lines))
	a.flushHangingLabel()
	a.closeStructInvocation()
	a.fixupTemporaryScope()

	a.fixupSymbols(a.root.Fixups, true)
	a.compareBinaries()
	if a.opts.WarnUnusedSymbols {
		a.reportUnusedSymbols(a.root)
	}
}

// emitRange emits lines[first:last]. It stops early once .break or
// .continue ends the current loop iteration.
func (a *Assembler) emitRange(lines []*ast.Line, first, last int) {
	for i := first; i < last; i++ {
		i = a.emitLine(lines, i, last)
		if a.exitPending() {
			return
		}
	}
}

// isLabelSetter reports whether the line gives its label a value of its
// own instead of the current address.
func isLabelSetter(line *ast.Line) bool {
	switch d := line.Data.(type) {
	case *ast.Pragma:
		switch d.Name {
		case "equ", "var", "org", "bank":
			return true
		}
	case *ast.Statement:
		switch d.Name {
		case "macro", "struct":
			return true
		}
	}
	return false
}

// emitLine processes lines[idx] and returns the index of the last line it
// consumed; block statements consume everything up to their end line.
func (a *Assembler) emitLine(lines []*ast.Line, idx, last int) int {
	line := lines[idx]
	a.currentLine = line
	a.markLineStart()

	if line.Type == ast.LabelOnlyLine || line.Type == ast.CommentOnlyLine {
		if line.Label == "" {
			return idx
		}
		if a.lookupStruct(line.Label) != nil || a.lookupMacro(line.Label) != nil {
			a.reportToken("Z2070", line, line.LabelTok, line.Label)
			return idx
		}
		a.flushHangingLabel()
		a.hangingLabel = line
		return idx
	}

	isField := line.Type == ast.FieldAssignmentLine
	label, labelTok := line.Label, line.LabelTok
	if h := a.hangingLabel; h != nil {
		a.hangingLabel = nil
		if label == "" {
			label, labelTok = h.Label, h.LabelTok
		} else if !a.structCloning && !(isField && a.structInvocation != nil) {
			a.addLabel(h.Label, h, h.LabelTok)
		}
	}
	if label != "" && !isField && !isLabelSetter(line) && !a.structCloning {
		a.addLabel(label, line, labelTok)
	}

	if len(line.MacroParams) > 0 {
		ref := line.MacroParams[0]
		a.reportToken("Z2069", line, ref.Tok, ref.Name)
		return idx
	}

	if inv := a.structInvocation; inv != nil {
		if !isField {
			a.closeStructInvocation()
		} else if label != "" {
			offset, ok := inv.def.Fields[a.normalize(label)]
			if !ok {
				a.reportToken("Z0802", line, labelTok, label)
				return idx
			}
			inv.offset = offset
		}
	} else if isField {
		a.report("Z0803", line)
		return idx
	}

	a.ensureSegment()
	segment, startOffset, addr := a.segment, a.segment.CurrentOffset(), a.currentAddress()
	switch line.Type {
	case ast.InstructionLine:
		a.emitInstruction(line, line.Data.(*ast.Instruction))
		a.recordListItem(line, addr, segment, startOffset, true)
	case ast.PragmaLine:
		p := line.Data.(*ast.Pragma)
		a.applyPragma(line, p, label, labelTok)
		a.recordListItem(line, addr, segment, startOffset, false)
	case ast.FieldAssignmentLine:
		a.inFieldAssignment = true
		a.applyPragma(line, line.Data.(*ast.FieldAssignment).Pragma, "", labelTok)
		a.inFieldAssignment = false
	case ast.StatementLine:
		return a.processStatement(lines, idx, last, label, labelTok)
	case ast.InvocationLine:
		a.processInvocation(line, line.Data.(*ast.Invocation))
	}
	return idx
}

// flushHangingLabel binds a pending label-only line to the current address.
func (a *Assembler) flushHangingLabel() {
	h := a.hangingLabel
	if h == nil {
		return
	}
	a.hangingLabel = nil
	if !a.structCloning {
		a.addLabel(h.Label, h, h.LabelTok)
	}
}

// recordListItem adds the listing row and the source map entries of a
// line. Pragmas are listed only when they emitted code.
func (a *Assembler) recordListItem(line *ast.Line, addr uint16, segment *Segment, startOffset int, always bool) {
	if a.measuring || a.structCloning {
		return
	}
	length := 0
	if a.segment == segment {
		length = segment.CurrentOffset() - startOffset
	}
	if length == 0 && !always {
		return
	}
	a.output.ListFileItems = append(a.output.ListFileItems, &ListFileItem{
		FileIndex:      line.FileIndex,
		Line:           line.Line,
		Address:        addr,
		SegmentIndex:   slices.Index(a.output.Segments, segment),
		CodeStartIndex: startOffset,
		CodeLength:     length,
		SourceText:     line.SourceText,
	})
	key := FileLine{FileIndex: line.FileIndex, Line: line.Line}
	a.output.SourceMap[addr] = key
	a.output.AddressMap[key] = append(a.output.AddressMap[key], addr)
}

// reportUnusedSymbols warns about labels of m and its children that no
// expression referenced.
func (a *Assembler) reportUnusedSymbols(m *Module) {
	for _, name := range slices.Sorted(maps.Keys(m.Symbols)) {
		sym := m.Symbols[name]
		if sym.Used || sym.Kind != LabelSymbol || sym.Line == nil {
			continue
		}
		a.reportToken("W0001", sym.Line, sym.Line.LabelTok, sym.Name)
	}
	for _, name := range slices.Sorted(maps.Keys(m.Children)) {
		a.reportUnusedSymbols(m.Children[name])
	}
}
