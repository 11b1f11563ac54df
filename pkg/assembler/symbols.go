package assembler

import (
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/token"
)

type SymbolKind int

const (
	LabelSymbol SymbolKind = iota
	VarSymbol
)

// Symbol is a named value in a module or a local scope.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Value expr.Value
	Used  bool
	// Line is the defining line of a label
	Line *ast.Line
}

// Scope is a local scope inside a module: a temporary-label scope, a
// macro invocation, a loop (and each of its iterations) or a proc.
type Scope struct {
	// Owner is the loop scope of an iteration scope
	Owner           *Scope
	Symbols         map[string]*Symbol
	Fixups          []*Fixup
	IsTemporary     bool
	IsMacro         bool
	IsProc          bool
	IsLoop          bool
	LoopCounter     expr.Value
	MacroArguments  map[string]string
	Bookings        map[string]bool
	ErrorCount      int
	BreakReached    bool
	ContinueReached bool
}

func newScope() *Scope {
	return &Scope{Symbols: make(map[string]*Symbol), Bookings: make(map[string]bool)}
}

// Module is a lexical naming scope. The root module holds the global
// symbols.
type Module struct {
	Name        string
	Parent      *Module
	Children    map[string]*Module
	Symbols     map[string]*Symbol
	LocalScopes []*Scope
	Fixups      []*Fixup
	Macros      map[string]*MacroDefinition
	Structs     map[string]*StructDefinition
}

func NewModule(name string, parent *Module) *Module {
	return &Module{
		Name:     name,
		Parent:   parent,
		Children: make(map[string]*Module),
		Symbols:  make(map[string]*Symbol),
		Macros:   make(map[string]*MacroDefinition),
		Structs:  make(map[string]*StructDefinition),
	}
}

func (m *Module) topScope() *Scope {
	if len(m.LocalScopes) == 0 {
		return nil
	}
	return m.LocalScopes[len(m.LocalScopes)-1]
}

// nonTemporaryScope returns the innermost local scope that is not a
// temporary-label scope.
func (m *Module) nonTemporaryScope() *Scope {
	for i := len(m.LocalScopes) - 1; i >= 0; i-- {
		if !m.LocalScopes[i].IsTemporary {
			return m.LocalScopes[i]
		}
	}
	return nil
}

func isTemporary(name string) bool { return strings.HasPrefix(name, "`") }

func isModuleLocal(name string) bool { return strings.HasPrefix(name, "@") }

func (a *Assembler) normalize(name string) string {
	if a.opts.UseCaseSensitiveSymbols {
		return name
	}
	return strings.ToLower(name)
}

// lookupSymbol resolves name from the current module. A plain name is
// searched in the local scopes and the symbols of each module from the
// innermost outwards; "@" names are found only in their own module.
// Dotted names walk named child modules from the current module outward,
// or from the root when fromGlobal is set.
func (a *Assembler) lookupSymbol(name string, fromGlobal bool) *Symbol {
	name = a.normalize(name)
	if strings.Contains(name, ".") {
		segments := strings.Split(name, ".")
		if fromGlobal {
			return resolvePath(a.root, segments)
		}
		for m := a.module; m != nil; m = m.Parent {
			if sym := resolvePath(m, segments); sym != nil {
				return sym
			}
		}
		return nil
	}
	if fromGlobal {
		return a.root.Symbols[name]
	}
	for m := a.module; m != nil; m = m.Parent {
		if isModuleLocal(name) && m != a.module {
			break
		}
		for i := len(m.LocalScopes) - 1; i >= 0; i-- {
			if sym, ok := m.LocalScopes[i].Symbols[name]; ok {
				return sym
			}
		}
		if sym, ok := m.Symbols[name]; ok {
			return sym
		}
	}
	return nil
}

func resolvePath(m *Module, segments []string) *Symbol {
	for _, seg := range segments[:len(segments)-1] {
		child, ok := m.Children[seg]
		if !ok {
			return nil
		}
		m = child
	}
	last := segments[len(segments)-1]
	if isModuleLocal(last) {
		return nil
	}
	return m.Symbols[last]
}

// symbolTable returns the table a new symbol called name belongs to. A
// non-temporary name closes the open temporary scope first.
func (a *Assembler) symbolTable(name string) map[string]*Symbol {
	m := a.module
	if top := m.topScope(); top != nil && top.IsTemporary && !isTemporary(name) {
		a.fixupTemporaryScope()
	}
	if isTemporary(name) {
		top := m.topScope()
		if top == nil || !top.IsTemporary {
			top = newScope()
			top.IsTemporary = true
			m.LocalScopes = append(m.LocalScopes, top)
		}
		return top.Symbols
	}
	scope := m.nonTemporaryScope()
	if scope == nil {
		return m.Symbols
	}
	if scope.IsProc && (len(scope.Bookings) > 0 || a.opts.ProcExplicitLocalsOnly) && !scope.Bookings[name] {
		return m.Symbols
	}
	return scope.Symbols
}

// addSymbol defines a label. It reports Z2017 when the name is taken in
// the target table.
func (a *Assembler) addSymbol(name string, line *ast.Line, tok token.Token, value expr.Value) bool {
	name = a.normalize(name)
	table := a.symbolTable(name)
	if _, exists := table[name]; exists {
		a.reportToken("Z2017", line, tok, name)
		return false
	}
	table[name] = &Symbol{Name: name, Kind: LabelSymbol, Value: value, Line: line}
	return true
}

// addLabel binds name to the current address.
func (a *Assembler) addLabel(name string, line *ast.Line, tok token.Token) {
	a.addSymbol(name, line, tok, expr.Integer(a.currentAddress()))
}

// setVariable updates the nearest variable called name or creates one.
func (a *Assembler) setVariable(name string, value expr.Value) {
	name = a.normalize(name)
	m := a.module
	for i := len(m.LocalScopes) - 1; i >= 0; i-- {
		if sym, ok := m.LocalScopes[i].Symbols[name]; ok && sym.Kind == VarSymbol {
			sym.Value = value
			return
		}
	}
	if sym, ok := m.Symbols[name]; ok && sym.Kind == VarSymbol {
		sym.Value = value
		return
	}
	a.symbolTable(name)[name] = &Symbol{Name: name, Kind: VarSymbol, Value: value}
}

// fixupTemporaryScope resolves and closes the open temporary scope.
func (a *Assembler) fixupTemporaryScope() {
	m := a.module
	top := m.topScope()
	if top == nil || !top.IsTemporary {
		return
	}
	a.fixupSymbols(top.Fixups, false)
	m.LocalScopes = m.LocalScopes[:len(m.LocalScopes)-1]
}

func (a *Assembler) pushScope(s *Scope) {
	a.module.LocalScopes = append(a.module.LocalScopes, s)
}

// closeScope resolves the fixups of s and removes it, along with any
// temporary scope opened on top of it.
func (a *Assembler) closeScope(s *Scope) {
	a.fixupTemporaryScope()
	a.fixupSymbols(s.Fixups, false)
	m := a.module
	if top := m.topScope(); top == s {
		m.LocalScopes = m.LocalScopes[:len(m.LocalScopes)-1]
	}
}

// loopScope returns the innermost loop iteration scope.
func (a *Assembler) loopScope() *Scope {
	for m := a.module; m != nil; m = m.Parent {
		for i := len(m.LocalScopes) - 1; i >= 0; i-- {
			if m.LocalScopes[i].IsLoop {
				return m.LocalScopes[i]
			}
		}
	}
	return nil
}

// macroScope returns the innermost macro invocation scope.
func (a *Assembler) macroScope() *Scope {
	for m := a.module; m != nil; m = m.Parent {
		for i := len(m.LocalScopes) - 1; i >= 0; i-- {
			if m.LocalScopes[i].IsMacro {
				return m.LocalScopes[i]
			}
		}
	}
	return nil
}

// exitPending reports whether .break or .continue stopped the innermost
// loop iteration.
func (a *Assembler) exitPending() bool {
	s := a.loopScope()
	return s != nil && (s.BreakReached || s.ContinueReached)
}

func (a *Assembler) inGlobalScope() bool {
	return a.module == a.root && a.module.nonTemporaryScope() == nil
}

// lookupMacro and lookupStruct search the module chain innermost first.
func (a *Assembler) lookupMacro(name string) *MacroDefinition {
	name = a.normalize(name)
	for m := a.module; m != nil; m = m.Parent {
		if def, ok := m.Macros[name]; ok {
			return def
		}
	}
	return nil
}

func (a *Assembler) lookupStruct(name string) *StructDefinition {
	name = a.normalize(name)
	for m := a.module; m != nil; m = m.Parent {
		if def, ok := m.Structs[name]; ok {
			return def
		}
	}
	return nil
}

// nameInUse reports whether name is bound to a symbol, macro, struct or
// child module in the current module.
func (a *Assembler) nameInUse(name string) bool {
	name = a.normalize(name)
	m := a.module
	if _, ok := m.Symbols[name]; ok {
		return true
	}
	if _, ok := m.Macros[name]; ok {
		return true
	}
	if _, ok := m.Structs[name]; ok {
		return true
	}
	_, ok := m.Children[name]
	return ok
}
