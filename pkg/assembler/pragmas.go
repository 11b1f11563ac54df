package assembler

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/token"
)

// compareBin is a .comparebin request checked once emission has finished.
type compareBin struct {
	line    *ast.Line
	file    string
	offset  int64
	length  int64
	segment *Segment
	// emitted is the length of the segment at the pragma
	emitted int
}

func (a *Assembler) applyPragma(line *ast.Line, p *ast.Pragma, label string, labelTok token.Token) {
	switch p.Name {
	case "org":
		a.processOrg(line, p, label, labelTok)
	case "bank":
		a.processBank(line, p, label)
	case "xorg":
		v := a.evalImmediate(line, p.Args[0])
		if !expr.IsValid(v) {
			return
		}
		n, _ := expr.AsLong(v)
		a.ensureSegment()
		if a.segment.CurrentOffset() > 0 && a.segment.XorgValue != nil {
			a.report("Z2024", line)
			return
		}
		xorg := int(uint16(n))
		a.segment.XorgValue = &xorg
	case "ent", "xent":
		a.processEntry(line, p)
	case "disp":
		v := a.evalImmediate(line, p.Args[0])
		if !expr.IsValid(v) {
			return
		}
		n, _ := expr.AsLong(v)
		a.ensureSegment()
		disp := int(n)
		a.segment.Displacement = &disp
	case "equ":
		a.processEqu(line, p, label, labelTok)
	case "var":
		a.processVar(line, p, label)
	case "skip":
		a.processSkip(line, p)
	case "defb", "defw":
		a.processDefData(line, p)
	case "defm", "defn", "defc":
		a.processDefString(line, p)
	case "defh":
		a.processDefHex(line, p)
	case "defs":
		count, ok := a.intArg(line, p.Args[0])
		if !ok {
			return
		}
		var fill int64
		if len(p.Args) > 1 {
			if fill, ok = a.intArg(line, p.Args[1]); !ok {
				return
			}
		}
		for i := int64(0); i < count; i++ {
			a.emitByte(byte(fill))
		}
	case "fillb", "fillw":
		count, ok := a.intArg(line, p.Args[0])
		if !ok {
			return
		}
		fill, ok := a.intArg(line, p.Args[1])
		if !ok {
			return
		}
		for i := int64(0); i < count; i++ {
			if p.Name == "fillb" {
				a.emitByte(byte(fill))
			} else {
				a.emitWord(uint16(fill))
			}
		}
	case "align":
		a.processAlign(line, p)
	case "trace", "tracehex":
		a.processTrace(line, p)
	case "rndseed":
		seed := time.Now().UnixNano()
		if len(p.Args) > 0 {
			n, ok := a.intArg(line, p.Args[0])
			if !ok {
				return
			}
			seed = n
		}
		a.eval.Random.Seed(seed)
	case "error":
		v := a.evalImmediate(line, p.Args[0])
		if !expr.IsValid(v) {
			return
		}
		a.report("Z4000", line, expr.Format(v))
	case "incbin":
		a.processIncBin(line, p)
	case "comparebin":
		a.processCompareBin(line, p)
	case "injectopt":
		a.output.InjectedOptions[strings.ToLower(p.Ident)] = true
	case "defg":
		a.emitDefgBytes(line, p.Pattern, false)
	case "defgx":
		v := a.evalImmediate(line, p.Args[0])
		if !expr.IsValid(v) {
			return
		}
		if v.Kind() != expr.KindString {
			a.report("Z2040", line)
			return
		}
		s, _ := expr.AsString(v)
		a.emitDefgBytes(line, strings.TrimSpace(s), true)
	}
}

// intArg evaluates node immediately as an integer.
func (a *Assembler) intArg(line *ast.Line, node *ast.Node) (int64, bool) {
	v := a.evalImmediate(line, node)
	if !expr.IsValid(v) {
		return 0, false
	}
	if v.Kind() == expr.KindString {
		a.reportNode("Z2042", line, node)
		return 0, false
	}
	n, err := expr.AsLong(v)
	if err != nil {
		a.reportNode("Z3001", line, node, err.Error())
		return 0, false
	}
	return n, true
}

func (a *Assembler) processOrg(line *ast.Line, p *ast.Pragma, label string, labelTok token.Token) {
	n, ok := a.intArg(line, p.Args[0])
	if !ok {
		return
	}
	addr := uint16(n)
	a.ensureSegment()
	if a.segment.CurrentOffset() > 0 {
		a.segment = NewSegment(addr, 0x10000-int(addr))
		a.output.Segments = append(a.output.Segments, a.segment)
		a.instrOffset = 0
	} else {
		a.segment.StartAddress = addr
		a.segment.MaxCodeLength = 0x10000 - int(addr)
	}
	if label == "" {
		return
	}
	a.fixupTemporaryScope()
	a.addSymbol(label, line, labelTok, expr.Integer(addr))
}

func (a *Assembler) processBank(line *ast.Line, p *ast.Pragma, label string) {
	if label != "" {
		a.report("Z2018", line)
		return
	}
	bank, ok := a.intArg(line, p.Args[0])
	if !ok {
		return
	}
	model := a.output.ModelType
	if model != config.Spectrum128 && model != config.SpectrumP3 && model != config.Next {
		a.report("Z2021", line)
		return
	}
	maxBank := int64(7)
	if model == config.Next {
		maxBank = 111
	}
	if bank < 0 || bank > maxBank {
		a.report("Z2019", line, bank)
		return
	}
	var offset int64
	if len(p.Args) > 1 {
		if offset, ok = a.intArg(line, p.Args[1]); !ok {
			return
		}
		if offset < 0 || offset > 0x3fff {
			a.report("Z2020", line)
			return
		}
	}
	if model != config.Next && a.usedBanks[int(bank)] {
		a.report("Z2022", line, bank)
		return
	}

	a.ensureSegment()
	if a.segment.CurrentOffset() > 0 || a.segment.Bank != nil {
		a.segment = NewSegment(0, 0)
		a.output.Segments = append(a.output.Segments, a.segment)
		a.instrOffset = 0
	}
	b := int(bank)
	a.segment.StartAddress = uint16(0xc000 + offset)
	a.segment.Bank = &b
	a.segment.BankOffset = int(offset)
	a.segment.MaxCodeLength = 0x4000 - int(offset)
	a.usedBanks[b] = true
}

func (a *Assembler) processEntry(line *ast.Line, p *ast.Pragma) {
	if !a.inGlobalScope() {
		a.report("Z2025", line, "."+p.Name)
	}
	kind := FixupEnt
	if p.Name == "xent" {
		kind = FixupXent
	}
	v := a.evaluate(line, p.Args[0])
	if expr.IsNonEvaluated(v) {
		a.recordFixup(line, kind, p.Args[0])
		return
	}
	if !expr.IsValid(v) {
		return
	}
	addr, err := expr.AsWord(v)
	if err != nil {
		a.reportNode("Z3001", line, p.Args[0], err.Error())
		return
	}
	if kind == FixupEnt {
		a.output.EntryAddress = &addr
	} else {
		a.output.ExportEntryAddress = &addr
	}
}

func (a *Assembler) processEqu(line *ast.Line, p *ast.Pragma, label string, labelTok token.Token) {
	if label == "" {
		a.report("Z2016", line)
		return
	}
	a.fixupTemporaryScope()
	name := a.normalize(label)
	table := a.symbolTable(name)
	if _, exists := table[name]; exists {
		a.reportToken("Z2017", line, labelTok, name)
		return
	}
	v := a.evaluate(line, p.Args[0])
	switch {
	case expr.IsNonEvaluated(v):
		if f := a.recordFixup(line, FixupEqu, p.Args[0]); f != nil {
			f.Label, f.Table = label, table
		}
	case expr.IsValid(v):
		a.addSymbol(label, line, labelTok, v)
	}
}

func (a *Assembler) processVar(line *ast.Line, p *ast.Pragma, label string) {
	if label == "" {
		a.report("Z2026", line)
		return
	}
	a.fixupTemporaryScope()
	v := a.evalImmediate(line, p.Args[0])
	if !expr.IsValid(v) {
		return
	}
	name := a.normalize(label)
	if sym, ok := a.symbolTable(name)[name]; ok && sym.Kind != VarSymbol {
		a.report("Z2027", line, name)
		return
	}
	a.setVariable(name, v)
}

func (a *Assembler) processSkip(line *ast.Line, p *ast.Pragma) {
	target, ok := a.intArg(line, p.Args[0])
	if !ok {
		return
	}
	current := int64(a.currentAddress())
	if target < current {
		a.report("Z2028", line, fmt.Sprintf("#%04X", target), fmt.Sprintf("#%04X", current))
		return
	}
	fill := int64(0xff)
	if len(p.Args) > 1 {
		if fill, ok = a.intArg(line, p.Args[1]); !ok {
			return
		}
	}
	for ; current < target; current++ {
		a.emitByte(byte(fill))
	}
}

// processDefData handles .defb and .defw. Strings are accepted only with
// flexible data pragmas.
func (a *Assembler) processDefData(line *ast.Line, p *ast.Pragma) {
	kind := FixupBit8
	if p.Name == "defw" {
		kind = FixupBit16
	}
	for _, arg := range p.Args {
		v := a.evaluate(line, arg)
		if v.Kind() == expr.KindString {
			if !a.opts.FlexibleDefPragmas {
				a.reportNode("Z2029", line, arg)
				continue
			}
			s, _ := expr.AsString(v)
			a.emitString(s, false, false)
			continue
		}
		if v.Kind() == expr.KindError {
			continue
		}
		a.emitNumericExpr(line, arg, kind)
	}
}

func (a *Assembler) processDefString(line *ast.Line, p *ast.Pragma) {
	v := a.evalImmediate(line, p.Args[0])
	if !expr.IsValid(v) {
		return
	}
	if v.Kind() != expr.KindString {
		if !a.opts.FlexibleDefPragmas {
			a.report("Z2030", line)
			return
		}
		b, _ := expr.AsByte(v)
		if p.Name == "defc" {
			b |= 0x80
		}
		a.emitByte(b)
		if p.Name == "defn" {
			a.emitByte(0)
		}
		return
	}
	s, _ := expr.AsString(v)
	a.emitString(s, p.Name == "defc", p.Name == "defn")
}

// emitString emits the low byte of every character. With bit7 set the
// last character gets bit 7 on; with terminate a zero byte follows.
func (a *Assembler) emitString(s string, bit7, terminate bool) {
	runes := []rune(s)
	for i, r := range runes {
		b := byte(r)
		if bit7 && i == len(runes)-1 {
			b |= 0x80
		}
		a.emitByte(b)
	}
	if terminate {
		a.emitByte(0)
	}
}

func (a *Assembler) processDefHex(line *ast.Line, p *ast.Pragma) {
	v := a.evalImmediate(line, p.Args[0])
	if !expr.IsValid(v) {
		return
	}
	if v.Kind() != expr.KindString {
		a.report("Z2031", line)
		return
	}
	s, _ := expr.AsString(v)
	data, err := hex.DecodeString(s)
	if err != nil {
		a.report("Z2032", line)
		return
	}
	a.emitBytes(data)
}

func (a *Assembler) processAlign(line *ast.Line, p *ast.Pragma) {
	alignment := int64(0x100)
	if len(p.Args) > 0 {
		n, ok := a.intArg(line, p.Args[0])
		if !ok {
			return
		}
		if n < 1 || n > 0x4000 {
			a.report("Z2033", line, n)
			return
		}
		alignment = n
	}
	current := int64(a.currentAddress())
	for target := (current + alignment - 1) / alignment * alignment; current < target; current++ {
		a.emitByte(0)
	}
}

func (a *Assembler) processTrace(line *ast.Line, p *ast.Pragma) {
	isHex := p.Name == "tracehex"
	var sb strings.Builder
	for _, arg := range p.Args {
		v := a.evalImmediate(line, arg)
		switch v := v.(type) {
		case expr.Bool:
			fmt.Fprint(&sb, bool(v))
		case expr.Integer:
			switch {
			case !isHex:
				fmt.Fprint(&sb, int64(v))
			case v > 0x10000:
				fmt.Fprintf(&sb, "%08x", int64(v))
			default:
				fmt.Fprintf(&sb, "%04x", int64(v))
			}
		case expr.Real:
			fmt.Fprint(&sb, float64(v))
		case expr.String:
			if !isHex {
				sb.WriteString(string(v))
				continue
			}
			for _, r := range string(v) {
				fmt.Fprintf(&sb, "%02x", byte(r))
			}
		}
	}
	message := sb.String()
	a.output.TraceOutput = append(a.output.TraceOutput, message)
	if a.opts.TraceHandler != nil {
		a.opts.TraceHandler(message)
	}
}

// binaryArgs evaluates the file name, offset and length arguments shared
// by .incbin and .comparebin.
func (a *Assembler) binaryArgs(line *ast.Line, p *ast.Pragma, nameCode, offsetCode, lengthCode string) (name string, offset, length int64, ok bool) {
	v := a.evalImmediate(line, p.Args[0])
	if !expr.IsValid(v) {
		return "", 0, 0, false
	}
	if v.Kind() != expr.KindString {
		a.report(nameCode, line)
		return "", 0, 0, false
	}
	name, _ = expr.AsString(v)
	length = -1
	for i, arg := range p.Args[1:] {
		v := a.evalImmediate(line, arg)
		if !expr.IsValid(v) {
			return "", 0, 0, false
		}
		if v.Kind() != expr.KindInteger {
			a.report("Z2035", line)
			return "", 0, 0, false
		}
		n, _ := expr.AsLong(v)
		if n < 0 {
			if i == 0 {
				a.report(offsetCode, line)
			} else {
				a.report(lengthCode, line)
			}
			return "", 0, 0, false
		}
		if i == 0 {
			offset = n
		} else {
			length = n
		}
	}
	return name, offset, length, true
}

func (a *Assembler) sourcePath(line *ast.Line, name string) string {
	parent := SourceName
	if line.FileIndex >= 0 && line.FileIndex < len(a.output.SourceFiles) {
		parent = a.output.SourceFiles[line.FileIndex].Filename
	}
	return a.Loader.Join(parent, name)
}

func (a *Assembler) processIncBin(line *ast.Line, p *ast.Pragma) {
	name, offset, length, ok := a.binaryArgs(line, p, "Z2034", "Z2036", "Z2037")
	if !ok {
		return
	}
	content, err := a.Loader.ReadFile(a.sourcePath(line, name))
	if err != nil {
		a.report("Z2038", line, err)
		return
	}
	if offset >= int64(len(content)) {
		a.report("Z2036", line)
		return
	}
	if length < 0 {
		length = int64(len(content)) - offset
	}
	if offset+length > int64(len(content)) {
		a.report("Z2037", line)
		return
	}
	a.emitBytes(content[offset : offset+length])
}

func (a *Assembler) processCompareBin(line *ast.Line, p *ast.Pragma) {
	name, offset, length, ok := a.binaryArgs(line, p, "Z2081", "Z2082", "Z2083")
	if !ok {
		return
	}
	a.ensureSegment()
	a.compareBins = append(a.compareBins, compareBin{
		line:    line,
		file:    a.sourcePath(line, name),
		offset:  offset,
		length:  length,
		segment: a.segment,
		emitted: a.segment.CurrentOffset(),
	})
}

// compareBinaries checks the recorded .comparebin requests against the
// final segment contents.
func (a *Assembler) compareBinaries() {
	for _, cb := range a.compareBins {
		content, err := a.Loader.ReadFile(cb.file)
		if err != nil {
			a.report("Z2084", cb.line, cb.file, err)
			continue
		}
		if cb.offset >= int64(len(content)) {
			a.report("Z2082", cb.line)
			continue
		}
		length := cb.length
		if length <= 0 {
			length = int64(len(content)) - cb.offset
		}
		if cb.offset+length > int64(len(content)) {
			a.report("Z2083", cb.line)
			continue
		}
		if int64(cb.emitted) > length {
			a.report("Z2085", cb.line, fmt.Sprintf("the binary has only %d bytes, but the segment has %d", length, cb.emitted))
			continue
		}
		for i := 0; i < cb.emitted; i++ {
			got, want := cb.segment.EmittedCode[i], content[cb.offset+int64(i)]
			if got != want {
				a.report("Z2085", cb.line, fmt.Sprintf("segment offset %d is #%02X, the binary has #%02X", i, got, want))
				break
			}
		}
	}
}

// emitDefgBytes turns a graphics pattern into bytes: '.', '-' and '_' are
// 0 bits, any other character is a 1 bit. A leading '<' or '>' selects
// which side a partial byte is padded on when align is allowed.
func (a *Assembler) emitDefgBytes(line *ast.Line, pattern string, allowAlign bool) {
	if i := strings.Index(pattern, ";"); i >= 0 {
		pattern = pattern[:i]
	} else if i := strings.Index(pattern, "//"); i >= 0 {
		pattern = pattern[:i]
	}
	if pattern == "" {
		a.report("Z2041", line)
		return
	}
	alignLeft := true
	if allowAlign && (pattern[0] == '<' || pattern[0] == '>') {
		alignLeft = pattern[0] == '<'
		pattern = pattern[1:]
	}
	pattern = strings.ReplaceAll(pattern, " ", "")
	if pattern == "" {
		return
	}
	if rem := len(pattern) % 8; rem > 0 {
		pad := strings.Repeat("_", 8-rem)
		if alignLeft {
			pattern += pad
		} else {
			pattern = pad + pattern
		}
	}
	var bits byte
	for i, c := range []byte(pattern) {
		bits <<= 1
		switch c {
		case '-', '.', '_':
		default:
			bits |= 1
		}
		if (i+1)%8 == 0 {
			a.emitByte(bits)
			bits = 0
		}
	}
}
