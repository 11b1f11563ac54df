package parser

import (
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/token"
)

func registerClass(name string) ast.OperandType {
	switch name {
	case "i", "r":
		return ast.OpReg8Spec
	case "xh", "xl", "yh", "yl":
		return ast.OpReg8Idx
	case "bc", "de", "hl", "sp":
		return ast.OpReg16
	case "ix", "iy":
		return ast.OpReg16Idx
	case "af", "af'":
		return ast.OpReg16Spec
	}
	return ast.OpReg8
}

func is16Bit(name string) bool {
	switch registerClass(name) {
	case ast.OpReg16, ast.OpReg16Idx, ast.OpReg16Spec:
		return true
	}
	return false
}

func (p *Parser) isOperandEnd(tok token.Token) bool {
	switch tok.Type {
	case token.Comma, token.RParen, token.Comment, token.NewLine, token.EOF:
		return true
	}
	return false
}

// matchingParen returns the index of the ')' closing the '(' at start, or -1.
func (p *Parser) matchingParen(start int) int {
	depth := 0
	for i := start; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				return i
			}
		case token.NewLine, token.EOF:
			return -1
		}
	}
	return -1
}

func (p *Parser) parseOperand() *ast.Operand {
	start := p.current
	op := p.parseOperandBody()
	op.Tok = start
	op.Text = string(p.source[start.Pos:p.previous.End()])
	return op
}

func (p *Parser) parseOperandBody() *ast.Operand {
	tok := p.current
	switch tok.Type {
	case token.Register:
		p.advance()
		return &ast.Operand{Type: registerClass(tok.Value), Register: tok.Value}
	case token.Condition:
		p.advance()
		return &ast.Operand{Type: ast.OpCondition, Register: tok.Value}
	case token.NoneArg:
		p.advance()
		return &ast.Operand{Type: ast.OpNoneArg}
	case token.Function:
		if tok.Value == "hreg" || tok.Value == "lreg" {
			return p.parseRegOperation()
		}
	case token.LParen:
		if op := p.parseParenOperand(); op != nil {
			return op
		}
	}
	return &ast.Operand{Type: ast.OpExpression, Expr: p.expression()}
}

// parseParenOperand handles the operand forms that start with '('. It
// returns nil when the parenthesis only groups part of an expression.
func (p *Parser) parseParenOperand() *ast.Operand {
	next := p.peek()
	if next.Type == token.Register {
		p.advance()
		p.advance()
		switch next.Value {
		case "c":
			p.expect(token.RParen, "Z1014")
			return &ast.Operand{Type: ast.OpCPort, Register: "c"}
		case "bc", "de", "hl", "sp":
			p.expect(token.RParen, "Z1014")
			return &ast.Operand{Type: ast.OpRegIndirect, Register: next.Value}
		case "ix", "iy":
			op := &ast.Operand{Type: ast.OpIndexedIndirect, Register: next.Value}
			if p.check(token.Plus) || p.check(token.Minus) {
				op.Sign = p.current.String()
				p.advance()
				op.Expr = p.expression()
			}
			p.expect(token.RParen, "Z1014")
			return op
		}
		p.fail("Z1003", next)
	}

	closing := p.matchingParen(p.pos)
	if closing < 0 || closing+1 >= len(p.tokens) || !p.isOperandEnd(p.tokens[closing+1]) {
		return nil
	}
	p.advance()
	op := &ast.Operand{Type: ast.OpMemIndirect, Expr: p.expression()}
	p.expect(token.RParen, "Z1014")
	return op
}

func (p *Parser) parseRegOperation() *ast.Operand {
	op := &ast.Operand{Type: ast.OpRegOperation, RegOp: p.current.Value}
	p.advance()
	p.expect(token.LParen, "Z1013")
	switch {
	case p.check(token.Register) && is16Bit(p.current.Value):
		op.Register = p.current.Value
		p.advance()
	case p.check(token.LDBrac):
		p.advance()
		op.MacroParam = p.expect(token.Ident, "Z1004").Value
		p.expect(token.RDBrac, "Z1015")
	default:
		p.fail("Z1022", p.current)
	}
	p.expect(token.RParen, "Z1014")
	return op
}

// Next instructions with a fixed operand syntax; the operands carry no
// information and are dropped after validation.
var fixedOperands = map[string][]struct {
	reg  string
	code string
}{
	"mul":     {{"d", "Z1011"}, {"e", "Z1012"}},
	"bsla":    {{"de", "Z1008"}, {"b", "Z1009"}},
	"bsra":    {{"de", "Z1008"}, {"b", "Z1009"}},
	"bsrl":    {{"de", "Z1008"}, {"b", "Z1009"}},
	"bsrf":    {{"de", "Z1008"}, {"b", "Z1009"}},
	"brlc":    {{"de", "Z1008"}, {"b", "Z1009"}},
	"mirror":  {{"a", "Z1010"}},
	"swapnib": {{"a", "Z1010"}},
}

func (p *Parser) parseInstruction() *ast.Instruction {
	instr := &ast.Instruction{Mnemonic: p.current.Value}
	p.advance()

	if fixed, ok := fixedOperands[instr.Mnemonic]; ok {
		if p.isLineEnd() {
			return instr
		}
		for i, f := range fixed {
			if i > 0 {
				p.expect(token.Comma, "Z1007")
			}
			if !p.check(token.Register) || p.current.Value != f.reg {
				p.fail(f.code, p.current)
			}
			p.advance()
		}
		return instr
	}

	if p.isLineEnd() {
		return instr
	}
	for {
		instr.Operands = append(instr.Operands, p.parseOperand())
		if !p.match(token.Comma) {
			break
		}
	}

	// "c" names the carry condition in flow control instructions
	switch instr.Mnemonic {
	case "jp", "jr", "call", "ret":
		first := instr.Operands[0]
		if first.Type == ast.OpReg8 && first.Register == "c" && (len(instr.Operands) > 1 || instr.Mnemonic == "ret") {
			first.Type = ast.OpCondition
		}
	}
	return instr
}

// pragmaArity holds the minimum and maximum expression count of pragmas
// taking an expression list; -1 means unlimited.
var pragmaArity = map[string][2]int{
	"org": {1, 1}, "xorg": {1, 1}, "ent": {1, 1}, "xent": {1, 1}, "equ": {1, 1},
	"var": {1, 1}, "disp": {1, 1}, "defm": {1, 1}, "defn": {1, 1}, "defc": {1, 1},
	"defh": {1, 1}, "defgx": {1, 1}, "error": {1, 1},
	"bank": {1, 2}, "skip": {1, 2}, "defs": {1, 2},
	"defb": {1, -1}, "defw": {1, -1}, "trace": {0, -1}, "tracehex": {0, -1},
	"fillb": {2, 2}, "fillw": {2, 2},
	"align": {0, 1}, "rndseed": {0, 1},
	"incbin": {1, 3}, "comparebin": {1, 3},
	"extern": {0, 0}, "zxbasic": {0, 0},
}

func (p *Parser) parsePragma() *ast.Pragma {
	tok := p.current
	p.advance()
	if tok.Type == token.DefgPattern {
		return &ast.Pragma{Name: "defg", Pattern: strings.TrimSpace(tok.Value)}
	}

	pragma := &ast.Pragma{Name: tok.Value}
	switch pragma.Name {
	case "model", "injectopt":
		pragma.Ident = p.expect(token.Ident, "Z1004").Value
		return pragma
	}

	arity := pragmaArity[pragma.Name]
	for !p.isLineEnd() && (arity[1] < 0 || len(pragma.Args) < arity[1]) {
		if len(pragma.Args) > 0 {
			p.expect(token.Comma, "Z1007")
		}
		pragma.Args = append(pragma.Args, p.expression())
	}
	if len(pragma.Args) < arity[0] {
		p.fail("Z1003", p.current)
	}
	return pragma
}

func (p *Parser) parseStatement(name string, tok token.Token) *ast.Statement {
	stmt := &ast.Statement{Name: name}
	switch name {
	case "macro":
		if p.match(token.LParen) {
			if !p.check(token.RParen) {
				for {
					stmt.Idents = append(stmt.Idents, p.expect(token.Ident, "Z1004").Value)
					if !p.match(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "Z1014")
		}
	case "loop", "while", "until", "if", "elif":
		stmt.Args = []*ast.Node{p.expression()}
	case "ifused", "ifnused":
		symTok := p.current
		sym := p.parsePrimaryExpr()
		if sym.Type != ast.Symbol {
			p.fail("Z1004", symTok)
		}
		stmt.Args = []*ast.Node{sym}
	case "for":
		stmt.For = p.parseForClause()
	case "local":
		for {
			stmt.Idents = append(stmt.Idents, p.expect(token.Ident, "Z1004").Value)
			if !p.match(token.Comma) {
				break
			}
		}
	case "module":
		if p.check(token.Ident) {
			stmt.Idents = []string{p.current.Value}
			p.advance()
		}
	case "to", "step":
		p.fail("Z1002", tok, tok.String())
	}
	return stmt
}

func (p *Parser) parseForClause() *ast.ForClause {
	clause := &ast.ForClause{Var: p.expect(token.Ident, "Z1004").Value}
	p.expect(token.Assign, "Z1019")
	clause.From = p.expression()
	if !p.check(token.Statement) || p.current.Value != "to" {
		p.fail("Z1020", p.current)
	}
	p.advance()
	clause.To = p.expression()
	if p.check(token.Statement) && p.current.Value == "step" {
		p.advance()
		clause.Step = p.expression()
	}
	return clause
}

func (p *Parser) parseDirective(name string) *ast.Directive {
	dir := &ast.Directive{Name: name}
	switch name {
	case "define", "undef", "ifdef", "ifndef", "ifmod", "ifnmod":
		dir.Ident = p.expect(token.Ident, "Z1004").Value
	case "if":
		dir.Expr = p.expression()
	case "include":
		dir.Path = p.expect(token.String, "Z1006").Value
	case "line":
		dir.Expr = p.expression()
		if p.match(token.Comma) || p.check(token.String) {
			dir.Path = p.expect(token.String, "Z1006").Value
		}
	}
	return dir
}
