package assembler

import (
	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/parser"
)

// executeParse parses source and runs the preprocessor over the result.
// It returns the lines to emit, or false when parsing failed anywhere in
// the include tree.
func (a *Assembler) executeParse(fileIndex int, source []rune, file *SourceFile) ([]*ast.Line, bool) {
	parsed, errs := parser.Parse(source, fileIndex)
	if len(errs) > 0 {
		for _, e := range errs {
			e.File = file.Filename
			a.output.Errors = append(a.output.Errors, e)
		}
		return nil, false
	}

	// Each entry is true or false for an active #if branch, or nil when an
	// enclosing branch is already disabled.
	var stack []*bool
	enabled := func() bool {
		return len(stack) == 0 || (stack[len(stack)-1] != nil && *stack[len(stack)-1])
	}
	push := func(cond bool) {
		if !enabled() {
			stack = append(stack, nil)
			return
		}
		stack = append(stack, &cond)
	}

	var lines []*ast.Line
	for _, line := range parsed {
		a.currentLine = line
		if line.Type == ast.DirectiveLine {
			dir := line.Data.(*ast.Directive)
			switch dir.Name {
			case "if":
				if !enabled() {
					push(false)
					continue
				}
				push(a.conditionValue(line, dir.Expr))
			case "ifdef", "ifndef":
				_, defined := a.conditionSymbols[dir.Ident]
				push(defined == (dir.Name == "ifdef"))
			case "ifmod", "ifnmod":
				model, ok := config.ParseModel(dir.Ident)
				if !ok {
					a.report("Z2008", line, dir.Ident)
				}
				matches := ok && model == a.output.ModelType
				push(matches == (dir.Name == "ifmod"))
			case "else":
				if len(stack) == 0 {
					a.report("Z2009", line)
					continue
				}
				if top := stack[len(stack)-1]; top != nil {
					flipped := !*top
					stack[len(stack)-1] = &flipped
				}
			case "endif":
				if len(stack) == 0 {
					a.report("Z2010", line)
					continue
				}
				stack = stack[:len(stack)-1]
			case "define":
				if enabled() {
					a.conditionSymbols[dir.Ident] = expr.Bool(true)
				}
			case "undef":
				if enabled() {
					delete(a.conditionSymbols, dir.Ident)
				}
			case "include":
				if !enabled() {
					continue
				}
				included, ok := a.includeFile(line, dir.Path, file)
				if !ok {
					return nil, false
				}
				lines = append(lines, included...)
			}
			continue
		}
		if !enabled() {
			continue
		}

		if line.Type == ast.PragmaLine {
			switch p := line.Data.(*ast.Pragma); p.Name {
			case "model":
				a.applyModel(line, p)
				continue
			case "zxbasic":
				a.applyZxBasic(line)
				continue
			}
		}
		if line.Type != ast.CommentOnlyLine {
			a.processedLines++
		}
		lines = append(lines, line)
	}

	if len(stack) > 0 && len(parsed) > 0 {
		a.report("Z2003", parsed[len(parsed)-1])
	}
	return lines, true
}

// conditionValue evaluates an #if expression. Defined condition symbols
// are visible as variables.
func (a *Assembler) conditionValue(line *ast.Line, node *ast.Node) bool {
	v := a.evalImmediate(line, node)
	if !expr.IsValid(v) {
		return false
	}
	b, err := expr.AsBool(v)
	if err != nil {
		a.reportNode("Z3001", line, node, err.Error())
		return false
	}
	return b
}

// includeFile parses name, resolved against the directory of parent, and
// returns its preprocessed lines.
func (a *Assembler) includeFile(line *ast.Line, name string, parent *SourceFile) ([]*ast.Line, bool) {
	path := a.Loader.Join(parent.Filename, name)
	if !a.Loader.Exists(path) {
		a.report("Z2004", line, name)
		return nil, true
	}
	if parent.ContainsInIncludeList(&SourceFile{Filename: path}) {
		a.report("Z2005", line, name)
		return nil, true
	}
	content, err := a.Loader.ReadFile(path)
	if err != nil {
		a.report("Z2007", line, name, err)
		return nil, true
	}
	child := NewSourceFile(path, content)
	if !parent.Include(child) {
		a.report("Z2006", line, name)
		return nil, true
	}
	index := len(a.output.SourceFiles)
	a.output.SourceFiles = append(a.output.SourceFiles, child)
	return a.executeParse(index, []rune(string(content)), child)
}

func (a *Assembler) applyModel(line *ast.Line, p *ast.Pragma) {
	if a.modelSeen {
		a.report("Z2011", line)
		return
	}
	model, ok := config.ParseModel(p.Ident)
	if !ok {
		a.report("Z2012", line, p.Ident)
		return
	}
	a.modelSeen = true
	a.output.ModelType = model
	if a.opts.WarnLateModel && a.processedLines > 0 {
		a.report("W0004", line)
	}
}

func (a *Assembler) applyZxBasic(line *ast.Line) {
	if a.processedLines > 0 {
		a.report("Z2002", line)
		return
	}
	a.opts.UseCaseSensitiveSymbols = true
	a.opts.FlexibleDefPragmas = true
	a.opts.ProcExplicitLocalsOnly = true
}
