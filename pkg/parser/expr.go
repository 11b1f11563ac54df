package parser

import (
	"strconv"
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/token"
)

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Mul, token.Div, token.Mod:
		return 9
	case token.Plus, token.Minus:
		return 8
	case token.Shl, token.Shr:
		return 7
	case token.MinOp, token.MaxOp:
		return 6
	case token.Lt, token.Le, token.Gt, token.Ge:
		return 5
	case token.Equal, token.NotEqual, token.CiEqual, token.CiNotEqual:
		return 4
	case token.And:
		return 3
	case token.Xor:
		return 2
	case token.Or:
		return 1
	default:
		return -1
	}
}

// expression parses a full expression and folds its constant parts.
func (p *Parser) expression() *ast.Node {
	return ast.FoldConstants(p.parseTernaryExpr())
}

func (p *Parser) parseTernaryExpr() *ast.Node {
	cond := p.parseBinaryExpr(0)
	if !p.check(token.Question) {
		return cond
	}
	tok := p.current
	p.advance()
	thenExpr := p.parseTernaryExpr()
	p.expect(token.Colon, "Z1001")
	elseExpr := p.parseTernaryExpr()
	return ast.NewTernary(tok, cond, thenExpr, elseExpr)
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current
		prec := getBinaryOpPrecedence(op.Type)
		if prec <= minPrec {
			return left
		}
		p.advance()
		right := p.parseBinaryExpr(prec)
		left = ast.NewBinaryOp(op, op.Type, left, right)
	}
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Plus, token.Minus, token.Complement, token.Not:
		p.advance()
		return ast.NewUnaryOp(tok, tok.Type, p.parseUnaryExpr())
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Number, token.Char:
		p.advance()
		val, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			p.fail("Z1005", tok)
		}
		return ast.NewNumber(tok, val)
	case token.Real:
		p.advance()
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.fail("Z1005", tok)
		}
		return ast.NewReal(tok, val)
	case token.String:
		p.advance()
		return ast.NewString(tok, tok.Value)
	case token.True, token.False:
		p.advance()
		return ast.NewBool(tok, tok.Type == token.True)
	case token.CurAddress, token.Dot, token.Mul:
		p.advance()
		return ast.NewCurAddress(tok)
	case token.CurCnt:
		p.advance()
		return ast.NewCurCnt(tok)
	case token.LParen:
		p.advance()
		expr := p.parseTernaryExpr()
		p.expect(token.RParen, "Z1014")
		return expr
	case token.LBracket:
		p.advance()
		expr := p.parseTernaryExpr()
		p.expect(token.RBracket, "Z1001")
		return expr
	case token.DoubleColon:
		p.advance()
		name := p.expect(token.Ident, "Z1004")
		return ast.NewSymbol(tok, name.Value, true)
	case token.LDBrac:
		p.advance()
		name := p.expect(token.Ident, "Z1004")
		p.expect(token.RDBrac, "Z1015")
		return ast.NewMacroParam(tok, name.Value)
	case token.Ident:
		p.advance()
		if !p.check(token.LParen) {
			return ast.NewSymbol(tok, tok.Value, false)
		}
		p.advance()
		var args []*ast.Node
		if !p.check(token.RParen) {
			for {
				args = append(args, p.parseTernaryExpr())
				if !p.match(token.Comma) {
					break
				}
			}
		}
		p.expect(token.RParen, "Z1014")
		return ast.NewFuncCall(tok, strings.ToLower(tok.Value), args)
	case token.Function:
		return p.parseMacroFunc()
	}
	p.fail("Z1003", tok)
	return nil
}

// parseMacroFunc parses name(operand). textof and ltextof also accept a
// mnemonic as their argument.
func (p *Parser) parseMacroFunc() *ast.Node {
	tok := p.current
	p.advance()
	p.expect(token.LParen, "Z1013")
	var node *ast.Node
	if p.check(token.Mnemonic) {
		node = ast.NewMacroFunc(tok, tok.Value, nil, p.current.Value)
		p.advance()
	} else {
		op := p.parseOperand()
		node = ast.NewMacroFunc(tok, tok.Value, op, op.Text)
	}
	p.expect(token.RParen, "Z1014")
	return node
}
