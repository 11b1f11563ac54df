package assembler

import (
	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/token"
)

// blockEnds maps each block statement to the statement closing it.
var blockEnds = map[string]string{
	"macro":   "endm",
	"struct":  "ends",
	"loop":    "endl",
	"while":   "endw",
	"repeat":  "until",
	"for":     "next",
	"if":      "endif",
	"ifused":  "endif",
	"ifnused": "endif",
	"proc":    "endp",
	"module":  "endmodule",
}

// blockOpeners maps closing statements (and the inner if sections) back
// to the statement they belong to.
var blockOpeners = map[string]string{
	"endm":      "macro",
	"ends":      "struct",
	"endl":      "loop",
	"endw":      "while",
	"until":     "repeat",
	"next":      "for",
	"endif":     "if",
	"elif":      "if",
	"else":      "if",
	"endp":      "proc",
	"endmodule": "module",
}

func displayName(stmt string) string { return "." + stmt }

// block is a statement block found in a line list. The body runs from the
// opening line up to bodyEnd; label-only lines right before the closing
// line are excluded from the body when they name the end label.
type block struct {
	end      int
	bodyEnd  int
	endLabel *ast.Line
	// sections holds the elif and else lines of an if block
	sections []int
}

func statementOf(line *ast.Line) (*ast.Statement, bool) {
	if line.Type != ast.StatementLine {
		return nil, false
	}
	stmt, ok := line.Data.(*ast.Statement)
	return stmt, ok
}

func isLabelLine(line *ast.Line) bool {
	return line.Type == ast.LabelOnlyLine || line.Type == ast.CommentOnlyLine
}

// findBlock locates the line closing the block opened at lines[idx].
// Nested blocks are skipped as a whole.
func findBlock(lines []*ast.Line, idx, last int) (block, bool) {
	opener, _ := statementOf(lines[idx])
	want := blockEnds[opener.Name]
	var b block
	for j := idx + 1; j < last; j++ {
		stmt, ok := statementOf(lines[j])
		if !ok {
			continue
		}
		if _, nested := blockEnds[stmt.Name]; nested {
			inner, ok := findBlock(lines, j, last)
			if !ok {
				return block{}, false
			}
			j = inner.end
			continue
		}
		if want == "endif" && (stmt.Name == "elif" || stmt.Name == "else") {
			b.sections = append(b.sections, j)
			continue
		}
		if stmt.Name != want {
			continue
		}
		b.end, b.bodyEnd = j, j
		if lines[j].Label != "" {
			b.endLabel = lines[j]
			return b, true
		}
		floor := idx + 1
		if n := len(b.sections); n > 0 {
			floor = b.sections[n-1] + 1
		}
		for k := j - 1; k >= floor && isLabelLine(lines[k]); k-- {
			if lines[k].Label != "" {
				b.endLabel, b.bodyEnd = lines[k], k
				break
			}
		}
		return b, true
	}
	return block{}, false
}

// processStatement runs the statement at lines[idx] and returns the index
// of the last line it consumed.
func (a *Assembler) processStatement(lines []*ast.Line, idx, last int, label string, labelTok token.Token) int {
	line := lines[idx]
	stmt := line.Data.(*ast.Statement)

	if want, ok := blockEnds[stmt.Name]; ok {
		b, found := findBlock(lines, idx, last)
		if !found {
			a.report("Z2052", line, displayName(want))
			return last - 1
		}
		switch stmt.Name {
		case "macro":
			a.defineMacro(lines, idx, b, label, labelTok)
		case "struct":
			a.defineStruct(lines, idx, b, label, labelTok)
		case "loop", "while", "repeat", "for":
			a.processLoop(lines, idx, b)
		case "if", "ifused", "ifnused":
			a.processIf(lines, idx, b)
		case "proc":
			a.processProc(lines, idx, b)
		case "module":
			a.processModule(lines, idx, b, label)
		}
		return b.end
	}

	switch stmt.Name {
	case "local":
		a.processLocal(line, stmt)
	case "break", "continue":
		s := a.loopScope()
		if s == nil {
			code := "Z2059"
			if stmt.Name == "continue" {
				code = "Z2060"
			}
			a.report(code, line)
			break
		}
		if stmt.Name == "break" {
			s.BreakReached = true
		} else {
			s.ContinueReached = true
		}
	default:
		if opener, ok := blockOpeners[stmt.Name]; ok {
			a.report("Z2055", line, displayName(stmt.Name), displayName(opener))
		}
	}
	return idx
}

// addEndLabel binds the end label of a block to the address following it.
func (a *Assembler) addEndLabel(b block) {
	if b.endLabel != nil {
		a.markLineStart()
		a.addLabel(b.endLabel.Label, b.endLabel, b.endLabel.LabelTok)
	}
}

// emitBody emits the body of a block and binds a label left hanging at
// its end.
func (a *Assembler) emitBody(lines []*ast.Line, first, last int) {
	a.emitRange(lines, first, last)
	a.flushHangingLabel()
}

// --- Macro and struct definitions

// MacroDefinition is a named, parameterized block of source lines.
type MacroDefinition struct {
	Name     string
	Args     []string
	Body     []*ast.Line
	EndLabel *ast.Line
}

// StructDefinition is a named data layout. Fields maps field names to
// byte offsets.
type StructDefinition struct {
	Name   string
	Fields map[string]int
	Body   []*ast.Line
	Size   int
}

func (a *Assembler) defineMacro(lines []*ast.Line, idx int, b block, label string, labelTok token.Token) {
	line := lines[idx]
	stmt := line.Data.(*ast.Statement)
	failed := false

	args := make(map[string]bool, len(stmt.Idents))
	for _, arg := range stmt.Idents {
		name := a.normalize(arg)
		if args[name] {
			a.report("Z2075", line, arg)
			failed = true
		}
		args[name] = true
	}
	switch {
	case label == "":
		a.report("Z2076", line)
		failed = true
	case isTemporary(label):
		a.reportToken("Z2077", line, labelTok, label)
		failed = true
	case a.nameInUse(label):
		a.reportToken("Z2078", line, labelTok, label)
		failed = true
	}

	body := lines[idx+1 : b.bodyEnd]
	for _, l := range body {
		if stmt, ok := statementOf(l); ok && stmt.Name == "macro" {
			a.report("Z2079", l)
			failed = true
		}
		for _, ref := range l.MacroParams {
			if !args[a.normalize(ref.Name)] {
				a.reportToken("Z2080", l, ref.Tok, ref.Name)
				failed = true
			}
		}
	}
	if failed {
		return
	}
	name := a.normalize(label)
	a.module.Macros[name] = &MacroDefinition{
		Name:     name,
		Args:     stmt.Idents,
		Body:     body,
		EndLabel: b.endLabel,
	}
}

const maxStructBodyErrors = 16

func (a *Assembler) defineStruct(lines []*ast.Line, idx int, b block, label string, labelTok token.Token) {
	line := lines[idx]
	failed := false
	switch {
	case label == "":
		a.report("Z0804", line)
		failed = true
	case isTemporary(label) || isModuleLocal(label):
		a.reportToken("Z0805", line, labelTok, label)
		failed = true
	case a.nameInUse(label):
		a.reportToken("Z0806", line, labelTok, label)
		failed = true
	}
	if end := lines[b.end]; end.Label != "" {
		a.reportToken("Z0807", end, end.LabelTok)
		failed = true
	}

	def := &StructDefinition{Fields: make(map[string]int)}
	errs := 0
	for _, l := range lines[idx+1 : b.end] {
		if l.Label != "" {
			field := a.normalize(l.Label)
			if _, dup := def.Fields[field]; dup {
				a.reportToken("Z0810", l, l.LabelTok, l.Label)
				failed = true
			}
			def.Fields[field] = def.Size
		}
		if isLabelLine(l) {
			continue
		}
		p, ok := l.Data.(*ast.Pragma)
		if l.Type != ast.PragmaLine || !ok || !ast.IsByteEmitting(p.Name) {
			a.report("Z0808", l)
			failed = true
			if errs++; errs >= maxStructBodyErrors {
				break
			}
			continue
		}
		def.Body = append(def.Body, l)
		def.Size += a.measurePragma(l, p)
	}
	if failed {
		return
	}
	def.Name = a.normalize(label)
	a.module.Structs[def.Name] = def
	a.module.Symbols[def.Name] = &Symbol{Name: def.Name, Kind: LabelSymbol, Value: expr.Integer(def.Size), Line: line}
}

// measurePragma returns the number of bytes a data pragma emits, without
// emitting them.
func (a *Assembler) measurePragma(line *ast.Line, p *ast.Pragma) int {
	a.measuring, a.measured = true, 0
	defer func() { a.measuring = false }()
	a.applyPragma(line, p, "", token.Token{})
	return a.measured
}

// --- Loops

func (a *Assembler) processLoop(lines []*ast.Line, idx int, b block) {
	line := lines[idx]
	stmt := line.Data.(*ast.Statement)

	var count int64
	switch stmt.Name {
	case "loop":
		n, ok := a.intArg(line, stmt.Args[0])
		if !ok {
			return
		}
		if n >= 0x10000 {
			a.report("Z2053", line)
			return
		}
		count = n
	case "for":
		a.processFor(lines, idx, b)
		return
	}

	loop := newScope()
	a.pushScope(loop)
	for i := int64(1); ; i++ {
		if stmt.Name == "loop" && i > count {
			break
		}
		if i > 0xffff {
			a.report("Z2053", line)
			break
		}
		iter := a.openIteration(loop, expr.Integer(i))
		if stmt.Name == "while" && !a.loopCondition(line, stmt.Args[0]) {
			a.closeScope(iter)
			break
		}
		a.emitBody(lines, idx+1, b.bodyEnd)
		stop := iter.BreakReached
		if stmt.Name == "repeat" && !stop {
			until := lines[b.end]
			a.currentLine = until
			a.markLineStart()
			stop = a.loopCondition(until, until.Data.(*ast.Statement).Args[0])
		}
		a.closeScope(iter)
		if a.loopErrorLimit(line, loop) {
			break
		}
		if stop {
			break
		}
	}
	a.closeScope(loop)
	a.addEndLabel(b)
}

func (a *Assembler) openIteration(loop *Scope, counter expr.Value) *Scope {
	iter := newScope()
	iter.IsLoop = true
	iter.Owner = loop
	iter.LoopCounter = counter
	a.pushScope(iter)
	return iter
}

// loopErrorLimit reports Z2054 once the loop body produced too many errors.
func (a *Assembler) loopErrorLimit(line *ast.Line, loop *Scope) bool {
	if loop.ErrorCount < a.opts.MaxLoopErrorsToReport {
		return false
	}
	a.report("Z2054", line)
	return true
}

// loopCondition evaluates a .while or .until condition. Anything that is
// not a valid boolean ends the loop.
func (a *Assembler) loopCondition(line *ast.Line, node *ast.Node) bool {
	v := a.evalImmediate(line, node)
	if !expr.IsValid(v) {
		return false
	}
	if v.Kind() == expr.KindString {
		a.reportNode("Z2042", line, node)
		return false
	}
	ok, _ := expr.AsBool(v)
	return ok
}

func (a *Assembler) processFor(lines []*ast.Line, idx int, b block) {
	line := lines[idx]
	clause := line.Data.(*ast.Statement).For

	bounds := make([]expr.Value, 3)
	for i, node := range []*ast.Node{clause.From, clause.To, clause.Step} {
		if node == nil {
			bounds[i] = expr.Integer(1)
			continue
		}
		v := a.evalImmediate(line, node)
		if !expr.IsValid(v) {
			return
		}
		if v.Kind() == expr.KindString {
			a.reportNode("Z2042", line, node)
			return
		}
		bounds[i] = v
	}
	from, to, step := bounds[0], bounds[1], bounds[2]
	stepValue, _ := expr.AsReal(step)
	if stepValue == 0 {
		a.report("Z2057", line)
		return
	}
	if a.lookupSymbol(clause.Var, false) != nil {
		a.report("Z2058", line, clause.Var)
		return
	}

	loop := newScope()
	a.pushScope(loop)
	variable := &Symbol{Name: a.normalize(clause.Var), Kind: VarSymbol}
	loop.Symbols[variable.Name] = variable

	integral := from.Kind() != expr.KindReal && to.Kind() != expr.KindReal && step.Kind() != expr.KindReal
	next := func(i int64) (expr.Value, bool) {
		if integral {
			f, _ := expr.AsLong(from)
			t, _ := expr.AsLong(to)
			s, _ := expr.AsLong(step)
			v := f + i*s
			return expr.Integer(v), (s > 0 && v <= t) || (s < 0 && v >= t)
		}
		f, _ := expr.AsReal(from)
		t, _ := expr.AsReal(to)
		v := f + float64(i)*stepValue
		return expr.Real(v), (stepValue > 0 && v <= t) || (stepValue < 0 && v >= t)
	}

	for i := int64(0); ; i++ {
		value, ok := next(i)
		if !ok {
			break
		}
		if i >= 0xffff {
			a.report("Z2053", line)
			break
		}
		variable.Value = value
		iter := a.openIteration(loop, expr.Integer(i+1))
		a.emitBody(lines, idx+1, b.bodyEnd)
		stop := iter.BreakReached
		a.closeScope(iter)
		if a.loopErrorLimit(line, loop) || stop {
			break
		}
	}
	a.closeScope(loop)
	a.addEndLabel(b)
}

// --- Conditional blocks

func (a *Assembler) processIf(lines []*ast.Line, idx int, b block) {
	// Section boundaries: the opening line, each elif/else, and the end.
	starts := append([]int{idx}, b.sections...)
	elseSeen := false
	for _, s := range b.sections {
		stmt, _ := statementOf(lines[s])
		if lines[s].Label != "" {
			a.reportToken("Z2061", lines[s], lines[s].LabelTok, displayName(stmt.Name))
		}
		if elseSeen {
			a.report("Z2062", lines[s], displayName(stmt.Name))
		}
		if stmt.Name == "else" {
			elseSeen = true
		}
	}

	for i, start := range starts {
		line := lines[start]
		stmt, _ := statementOf(line)
		if !a.sectionTaken(line, stmt) {
			continue
		}
		end := b.bodyEnd
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		a.emitBody(lines, start+1, end)
		break
	}
	if !a.exitPending() {
		a.addEndLabel(b)
	}
}

func (a *Assembler) sectionTaken(line *ast.Line, stmt *ast.Statement) bool {
	a.currentLine = line
	switch stmt.Name {
	case "else":
		return true
	case "ifused", "ifnused":
		name := stmt.Args[0].Data.(ast.SymbolNode)
		sym := a.lookupSymbol(name.Name, name.FromGlobal)
		used := sym != nil && sym.Used
		return used == (stmt.Name == "ifused")
	}
	v := a.evalImmediate(line, stmt.Args[0])
	if !expr.IsValid(v) {
		return false
	}
	if v.Kind() == expr.KindString {
		a.reportNode("Z2042", line, stmt.Args[0])
		return false
	}
	ok, _ := expr.AsBool(v)
	return ok
}

// --- Procs, modules and locals

func (a *Assembler) processProc(lines []*ast.Line, idx int, b block) {
	s := newScope()
	s.IsProc = true
	a.pushScope(s)
	a.emitBody(lines, idx+1, b.bodyEnd)
	a.closeScope(s)
	a.addEndLabel(b)
}

func (a *Assembler) processLocal(line *ast.Line, stmt *ast.Statement) {
	var proc *Scope
	for i := len(a.module.LocalScopes) - 1; i >= 0; i-- {
		if s := a.module.LocalScopes[i]; s.IsProc {
			proc = s
			break
		}
	}
	if proc == nil {
		a.report("Z2065", line)
		return
	}
	for _, ident := range stmt.Idents {
		if isTemporary(ident) {
			a.report("Z2063", line, ident)
			continue
		}
		name := a.normalize(ident)
		if proc.Bookings[name] {
			a.report("Z2064", line, ident)
			continue
		}
		proc.Bookings[name] = true
	}
}

func (a *Assembler) processModule(lines []*ast.Line, idx int, b block, label string) {
	line := lines[idx]
	stmt := line.Data.(*ast.Statement)
	name := label
	if len(stmt.Idents) > 0 {
		name = stmt.Idents[0]
	}
	switch {
	case name == "":
		a.report("Z2066", line)
		return
	case isTemporary(name):
		a.report("Z2067", line, name)
		return
	}
	name = a.normalize(name)
	parent := a.module
	if _, exists := parent.Children[name]; exists {
		a.report("Z2068", line, name)
		return
	}

	a.fixupTemporaryScope()
	child := NewModule(name, parent)
	parent.Children[name] = child
	a.module = child
	a.emitBody(lines, idx+1, b.bodyEnd)
	a.addEndLabel(b)
	a.fixupTemporaryScope()
	a.fixupSymbols(child.Fixups, false)
	a.module = parent
}
