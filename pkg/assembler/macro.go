package assembler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/parser"
)

// structInvocation tracks the field assignments following a struct
// invocation. Assigned bytes are collected in bytes, keyed by offset, and
// copied over the default bytes by a Struct fixup.
type structInvocation struct {
	def         *StructDefinition
	line        *ast.Line
	segment     *Segment
	startOffset int
	bytes       map[int]byte
	offset      int
	maxOffset   int
	applied     bool
}

const noneArg = "$<none>$"

var macroParamPattern = regexp.MustCompile(`\{\{\s*([_a-zA-Z@` + "`" + `][_a-zA-Z0-9@!?.]*)\s*\}\}`)

func (a *Assembler) processInvocation(line *ast.Line, inv *ast.Invocation) {
	if def := a.lookupStruct(inv.Name); def != nil {
		a.invokeStruct(line, inv, def)
		return
	}
	def := a.lookupMacro(inv.Name)
	if def == nil {
		a.report("Z2087", line, inv.Name)
		return
	}
	if len(inv.Operands) > len(def.Args) {
		a.report("Z2088", line, def.Name, len(def.Args), len(inv.Operands))
		return
	}

	args := make(map[string]string, len(def.Args))
	for i, name := range def.Args {
		text := noneArg
		if i < len(inv.Operands) {
			text = a.argumentText(line, inv.Operands[i])
		}
		args[a.normalize(name)] = text
	}

	var sb strings.Builder
	for i, l := range def.Body {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(macroParamPattern.ReplaceAllStringFunc(l.SourceText, func(m string) string {
			name := macroParamPattern.FindStringSubmatch(m)[1]
			if text, ok := args[a.normalize(name)]; ok {
				return text
			}
			return m
		}))
	}
	expanded, errs := parser.Parse([]rune(sb.String()), line.FileIndex)
	if len(errs) > 0 {
		for _, e := range errs {
			bodyLine := line
			if e.Line >= 1 && e.Line <= len(def.Body) {
				bodyLine = def.Body[e.Line-1]
			}
			a.report("Z2001", bodyLine, def.Name, e.Message)
		}
		return
	}
	for _, l := range expanded {
		if l.Line >= 1 && l.Line <= len(def.Body) {
			body := def.Body[l.Line-1]
			l.FileIndex, l.Line = body.FileIndex, body.Line
		}
	}

	s := newScope()
	s.IsMacro = true
	s.MacroArguments = args
	a.pushScope(s)
	s.Symbols[def.Name] = &Symbol{Name: def.Name, Kind: LabelSymbol, Value: expr.Integer(a.currentAddress()), Used: true}
	a.recordInvocation(line)

	a.macroLines = append(a.macroLines, line)
	a.emitRange(expanded, 0, len(expanded))
	a.flushHangingLabel()
	if def.EndLabel != nil {
		a.markLineStart()
		a.addLabel(def.EndLabel.Label, def.EndLabel, def.EndLabel.LabelTok)
	}
	a.hangingLabel = nil
	a.fixupTemporaryScope()
	a.closeScope(s)
	a.macroLines = a.macroLines[:len(a.macroLines)-1]
}

// argumentText renders an invocation operand as the source text that
// replaces the parameter in the macro body.
func (a *Assembler) argumentText(line *ast.Line, op *ast.Operand) string {
	switch op.Type {
	case ast.OpReg8, ast.OpReg8Spec, ast.OpReg8Idx, ast.OpReg16, ast.OpReg16Idx, ast.OpReg16Spec, ast.OpCondition:
		return op.Register
	case ast.OpRegIndirect:
		return "(" + op.Register + ")"
	case ast.OpCPort:
		return "(c)"
	case ast.OpIndexedIndirect:
		if op.Expr == nil {
			return "(" + op.Register + ")"
		}
		v := a.evalImmediate(line, op.Expr)
		if !expr.IsValid(v) {
			return "(" + op.Register + ")"
		}
		return fmt.Sprintf("(%s%s%s)", op.Register, op.Sign, expr.Format(v))
	case ast.OpMemIndirect:
		v := a.evalImmediate(line, op.Expr)
		if !expr.IsValid(v) {
			return op.Text
		}
		return "(" + expr.Format(v) + ")"
	case ast.OpExpression:
		v := a.evaluate(line, op.Expr)
		if !expr.IsValid(v) {
			return op.Text
		}
		// Strings are substituted without their quotes.
		return expr.Format(v)
	case ast.OpNoneArg:
		return noneArg
	}
	return op.Text
}

// recordInvocation lists the invocation line itself; the expanded lines
// are listed after it.
func (a *Assembler) recordInvocation(line *ast.Line) {
	if a.measuring || a.structCloning {
		return
	}
	addr := a.currentAddress()
	a.output.ListFileItems = append(a.output.ListFileItems, &ListFileItem{
		FileIndex:         line.FileIndex,
		Line:              line.Line,
		Address:           addr,
		SegmentIndex:      len(a.output.Segments) - 1,
		CodeStartIndex:    a.segment.CurrentOffset(),
		SourceText:        line.SourceText,
		IsMacroInvocation: true,
	})
	key := FileLine{FileIndex: line.FileIndex, Line: line.Line}
	a.output.AddressMap[key] = append(a.output.AddressMap[key], addr)
}

// invokeStruct emits the default bytes of def. Field assignment lines that
// follow override them.
func (a *Assembler) invokeStruct(line *ast.Line, inv *ast.Invocation, def *StructDefinition) {
	if len(inv.Operands) > 0 {
		a.report("Z0809", line)
		return
	}
	a.ensureSegment()
	segment, startOffset, addr := a.segment, a.segment.CurrentOffset(), a.currentAddress()

	hanging := a.hangingLabel
	a.hangingLabel = nil
	a.structCloning = true
	a.emitRange(def.Body, 0, len(def.Body))
	a.structCloning = false
	a.hangingLabel = hanging
	a.currentLine = line

	a.recordListItem(line, addr, segment, startOffset, true)
	a.structInvocation = &structInvocation{
		def:         def,
		line:        line,
		segment:     segment,
		startOffset: startOffset,
		bytes:       make(map[int]byte),
	}
}

// closeStructInvocation ends the field assignments of the open struct
// invocation and schedules its bytes to be written.
func (a *Assembler) closeStructInvocation() {
	inv := a.structInvocation
	if inv == nil {
		return
	}
	a.structInvocation = nil
	if inv.maxOffset > inv.def.Size {
		a.report("Z0801", inv.line, inv.maxOffset, inv.def.Size)
		return
	}
	if f := a.recordFixup(inv.line, FixupStruct, nil); f != nil {
		f.Segment = inv.segment
		f.Invocation = inv
	}
}
