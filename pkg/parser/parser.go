package parser

import (
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/diag"
	"github.com/xplshn/z80asm/pkg/lexer"
	"github.com/xplshn/z80asm/pkg/token"
)

// Parser holds the state for parsing a single source line
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	source   []rune
	errors   []diag.Error
}

// bailout aborts the current line after an error has been recorded.
type bailout struct{}

// Parse splits source into lines and parses each of them. Lines with
// errors are dropped; the diagnostics are returned alongside.
func Parse(source []rune, fileIndex int) ([]*ast.Line, []diag.Error) {
	p := &Parser{source: source}
	var lines []*ast.Line
	var group []token.Token
	for _, tok := range lexer.Tokenize(source, fileIndex) {
		group = append(group, tok)
		if tok.Type != token.NewLine && tok.Type != token.EOF {
			continue
		}
		if len(group) > 1 {
			if line := p.parseGroup(group); line != nil {
				lines = append(lines, line)
			}
		}
		group = nil
	}
	return lines, p.errors
}

func (p *Parser) reset(tokens []token.Token) {
	p.tokens = tokens
	p.pos = 0
	p.current = tokens[0]
	p.previous = token.Token{}
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, code string) token.Token {
	if !p.check(tokType) {
		p.fail(code, p.current, p.current.String())
	}
	p.advance()
	return p.previous
}

func (p *Parser) isLineEnd() bool {
	switch p.current.Type {
	case token.Comment, token.NewLine, token.EOF:
		return true
	}
	return false
}

func (p *Parser) fail(code string, tok token.Token, args ...any) {
	p.errors = append(p.errors, diag.Error{
		Code: code, FileIndex: tok.FileIndex, Line: tok.Line, Column: tok.Column,
		StartPos: tok.Pos, EndPos: tok.End(), Message: diag.Message(code, args...),
	})
	panic(bailout{})
}

func (p *Parser) sourceLine(tok token.Token) string {
	start := tok.Pos
	for start > 0 && p.source[start-1] != '\n' {
		start--
	}
	end := tok.Pos
	for end < len(p.source) && p.source[end] != '\n' {
		end++
	}
	return strings.TrimRight(string(p.source[start:end]), "\r")
}

func (p *Parser) parseGroup(group []token.Token) (line *ast.Line) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			line = nil
		}
	}()

	p.reset(group)
	first := p.current
	for _, tok := range group {
		if tok.Type == token.Illegal {
			p.fail("Z1018", tok, tok.Text)
		}
	}

	line = &ast.Line{
		FileIndex: first.FileIndex, Line: first.Line, Column: first.Column,
		StartPos: first.Pos, SourceText: p.sourceLine(first),
		MacroParams: collectMacroParams(group),
	}
	p.parseLine(line)

	if p.check(token.Comment) {
		line.Comment = p.current.Value
		p.advance()
	}
	if !p.check(token.NewLine) && !p.check(token.EOF) {
		p.fail("Z1001", p.current, p.current.String())
	}
	last := first
	for _, tok := range group {
		if tok.Type != token.NewLine && tok.Type != token.EOF && tok.Type != token.Comment {
			last = tok
		}
	}
	line.EndPos = last.End()
	return line
}

func collectMacroParams(group []token.Token) []ast.MacroParamRef {
	var refs []ast.MacroParamRef
	for i := 0; i+2 < len(group); i++ {
		if group[i].Type == token.LDBrac && group[i+1].Type == token.Ident && group[i+2].Type == token.RDBrac {
			refs = append(refs, ast.MacroParamRef{Name: group[i+1].Value, Tok: group[i+1]})
		}
	}
	return refs
}

func (p *Parser) parseLine(line *ast.Line) {
	if p.check(token.Comment) {
		line.Type = ast.CommentOnlyLine
		return
	}

	if p.check(token.Ident) {
		next := p.peek()
		_, dotted := token.IsDottedOnlyStatement(p.current.Value)
		if next.Type == token.Colon || (next.Type != token.LParen && !dotted) {
			line.Label, line.LabelTok = p.current.Value, p.current
			p.advance()
			p.match(token.Colon)
		}
	}

	if p.isLineEnd() {
		line.Type = ast.LabelOnlyLine
		return
	}

	tok := p.current
	switch tok.Type {
	case token.Pragma, token.DefgPattern:
		line.Type, line.Data = ast.PragmaLine, p.parsePragma()
	case token.Mnemonic:
		line.Type, line.Data = ast.InstructionLine, p.parseInstruction()
	case token.LDBrac:
		line.Type, line.Data = ast.MacroParamLine, p.parseMacroParamLine()
	case token.Statement:
		p.advance()
		line.Type, line.Data = ast.StatementLine, p.parseStatement(tok.Value, tok)
	case token.Directive:
		p.advance()
		line.Type, line.Data = ast.DirectiveLine, p.parseDirective(tok.Value)
	case token.GoesTo:
		p.advance()
		line.Type, line.Data = ast.FieldAssignmentLine, p.parseFieldAssignment()
	case token.Assign, token.VarAssign:
		p.advance()
		line.Type = ast.PragmaLine
		line.Data = &ast.Pragma{Name: "var", Args: []*ast.Node{p.expression()}}
	case token.Ident:
		if name, ok := token.IsDottedOnlyStatement(tok.Value); ok {
			p.advance()
			line.Type, line.Data = ast.StatementLine, p.parseStatement(name, tok)
			return
		}
		if p.peek().Type == token.LParen {
			line.Type, line.Data = ast.InvocationLine, p.parseInvocation()
			return
		}
		p.fail("Z1002", tok, tok.String())
	default:
		p.fail("Z1002", tok, tok.String())
	}
}

func (p *Parser) parseMacroParamLine() *ast.MacroParamOnly {
	p.advance()
	name := p.expect(token.Ident, "Z1004").Value
	p.expect(token.RDBrac, "Z1015")
	for !p.isLineEnd() {
		p.advance()
	}
	return &ast.MacroParamOnly{Name: name}
}

func (p *Parser) parseFieldAssignment() *ast.FieldAssignment {
	tok := p.current
	name := tok.Value
	if tok.Type == token.DefgPattern {
		name = "defg"
	}
	if (tok.Type != token.Pragma && tok.Type != token.DefgPattern) || !ast.IsByteEmitting(name) {
		p.fail("Z1021", tok)
	}
	return &ast.FieldAssignment{Pragma: p.parsePragma()}
}

func (p *Parser) parseInvocation() *ast.Invocation {
	inv := &ast.Invocation{Name: p.current.Value}
	p.advance()
	p.expect(token.LParen, "Z1013")
	if !p.check(token.RParen) {
		for {
			inv.Operands = append(inv.Operands, p.parseOperand())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Z1014")
	return inv
}
