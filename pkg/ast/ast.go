// Package ast defines the types used to represent parsed assembly lines
// and the expressions inside them.
package ast

import (
	"github.com/xplshn/z80asm/pkg/token"
)

// NodeType defines the kind of an expression node
type NodeType int

// Node types enum
const (
	Number NodeType = iota
	Real
	String
	Bool
	Symbol
	BinaryOp
	UnaryOp
	Ternary
	FuncCall
	MacroFunc
	MacroParam
	CurAddress
	CurCnt
)

// Node represents an expression node
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type RealNode struct{ Value float64 }
type StringNode struct{ Value string }
type BoolNode struct{ Value bool }
type SymbolNode struct {
	Name       string
	FromGlobal bool
}
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}
type TernaryNode struct{ Cond, ThenExpr, ElseExpr *Node }
type FuncCallNode struct {
	Name string
	Args []*Node
}

// MacroFuncNode is a macro-time function applied to an operand, or for
// textof/ltextof to the text of a mnemonic, register or condition.
type MacroFuncNode struct {
	Name    string
	Operand *Operand
	Text    string
}
type MacroParamNode struct{ Name string }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewReal(tok token.Token, value float64) *Node {
	return newNode(tok, Real, RealNode{Value: value})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewBool(tok token.Token, value bool) *Node {
	return newNode(tok, Bool, BoolNode{Value: value})
}
func NewSymbol(tok token.Token, name string, fromGlobal bool) *Node {
	return newNode(tok, Symbol, SymbolNode{Name: name, FromGlobal: fromGlobal})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewTernary(tok token.Token, cond, thenExpr, elseExpr *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, ThenExpr: thenExpr, ElseExpr: elseExpr}, cond, thenExpr, elseExpr)
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	node := newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args})
	for _, arg := range args {
		if arg != nil {
			arg.Parent = node
		}
	}
	return node
}
func NewMacroFunc(tok token.Token, name string, operand *Operand, text string) *Node {
	return newNode(tok, MacroFunc, MacroFuncNode{Name: name, Operand: operand, Text: text})
}
func NewMacroParam(tok token.Token, name string) *Node {
	return newNode(tok, MacroParam, MacroParamNode{Name: name})
}
func NewCurAddress(tok token.Token) *Node {
	return newNode(tok, CurAddress, nil)
}
func NewCurCnt(tok token.Token) *Node {
	return newNode(tok, CurCnt, nil)
}

// Walk calls fn for node and every sub-expression, depth first.
func Walk(node *Node, fn func(*Node)) {
	if node == nil {
		return
	}
	fn(node)
	switch d := node.Data.(type) {
	case BinaryOpNode:
		Walk(d.Left, fn)
		Walk(d.Right, fn)
	case UnaryOpNode:
		Walk(d.Expr, fn)
	case TernaryNode:
		Walk(d.Cond, fn)
		Walk(d.ThenExpr, fn)
		Walk(d.ElseExpr, fn)
	case FuncCallNode:
		for _, arg := range d.Args {
			Walk(arg, fn)
		}
	case MacroFuncNode:
		if d.Operand != nil {
			Walk(d.Operand.Expr, fn)
		}
	}
}

// FoldConstants folds integer arithmetic on literal operands. Operators
// whose result type or error reporting depends on evaluation (comparisons,
// division by zero, logical not) are left alone.
func FoldConstants(node *Node) *Node {
	if node == nil {
		return nil
	}

	switch d := node.Data.(type) {
	case BinaryOpNode:
		d.Left = FoldConstants(d.Left)
		d.Right = FoldConstants(d.Right)
		node.Data = d
	case UnaryOpNode:
		d.Expr = FoldConstants(d.Expr)
		node.Data = d
	case TernaryNode:
		d.Cond = FoldConstants(d.Cond)
		d.ThenExpr = FoldConstants(d.ThenExpr)
		d.ElseExpr = FoldConstants(d.ElseExpr)
		node.Data = d
	}

	switch node.Type {
	case BinaryOp:
		d := node.Data.(BinaryOpNode)
		if d.Left.Type == Number && d.Right.Type == Number {
			l, r := d.Left.Data.(NumberNode).Value, d.Right.Data.(NumberNode).Value
			var res int64
			folded := true
			switch d.Op {
			case token.Plus:
				res = l + r
			case token.Minus:
				res = l - r
			case token.Mul:
				res = l * r
			case token.And:
				res = l & r
			case token.Or:
				res = l | r
			case token.Xor:
				res = l ^ r
			case token.Shl:
				res = l << uint64(r)
			case token.Shr:
				res = l >> uint64(r)
			case token.MinOp:
				res = min(l, r)
			case token.MaxOp:
				res = max(l, r)
			case token.Div:
				if r == 0 {
					folded = false
				} else {
					res = l / r
				}
			case token.Mod:
				if r == 0 {
					folded = false
				} else {
					res = l % r
				}
			default:
				folded = false
			}
			if folded {
				return NewNumber(node.Tok, res)
			}
		}
	case UnaryOp:
		d := node.Data.(UnaryOpNode)
		if d.Expr.Type == Number {
			val := d.Expr.Data.(NumberNode).Value
			switch d.Op {
			case token.Minus:
				return NewNumber(node.Tok, -val)
			case token.Plus:
				return NewNumber(node.Tok, val)
			case token.Complement:
				return NewNumber(node.Tok, ^val)
			}
		}
	}

	return node
}

// OperandType classifies an instruction or macro operand
type OperandType int

const (
	OpReg8 OperandType = iota
	OpReg8Spec
	OpReg8Idx
	OpReg16
	OpReg16Idx
	OpReg16Spec
	OpRegIndirect
	OpCPort
	OpIndexedIndirect
	OpMemIndirect
	OpCondition
	OpExpression
	OpNoneArg
	OpRegOperation
)

// Operand is one comma-separated instruction operand.
type Operand struct {
	Type     OperandType
	Register string
	Expr     *Node
	// Sign is "+" or "-" for (ix+d) style operands, empty otherwise
	Sign  string
	Tok   token.Token
	Text  string
	RegOp string
	// MacroParam names the {{param}} inside hreg/lreg, when present
	MacroParam string
}

// LineType discriminates assembly lines
type LineType int

const (
	LabelOnlyLine LineType = iota
	CommentOnlyLine
	InstructionLine
	PragmaLine
	DirectiveLine
	StatementLine
	InvocationLine
	FieldAssignmentLine
	MacroParamLine
)

// Line is one parsed source line.
type Line struct {
	Type       LineType
	FileIndex  int
	Line       int
	StartPos   int
	EndPos     int
	Column     int
	Label      string
	LabelTok   token.Token
	Comment    string
	SourceText string
	// MacroParams lists the {{name}} placeholders referenced on the line
	MacroParams []MacroParamRef
	Data        interface{}
}

// MacroParamRef is one {{name}} occurrence in a line.
type MacroParamRef struct {
	Name string
	Tok  token.Token
}

type Instruction struct {
	Mnemonic string
	Operands []*Operand
}

type Pragma struct {
	Name    string
	Args    []*Node
	Ident   string
	Pattern string
}

type Directive struct {
	Name  string
	Ident string
	Expr  *Node
	Path  string
}

type Statement struct {
	Name   string
	Args   []*Node
	Idents []string
	// For holds the loop variable of .for
	For *ForClause
}

type ForClause struct {
	Var            string
	From, To, Step *Node
}

type Invocation struct {
	Name     string
	Operands []*Operand
}

// FieldAssignment is a "-> .pragma" line inside a struct invocation.
type FieldAssignment struct {
	Pragma *Pragma
}

type MacroParamOnly struct{ Name string }

// IsByteEmitting reports whether a pragma name defines data bytes.
func IsByteEmitting(name string) bool {
	switch name {
	case "defb", "defw", "defm", "defn", "defc", "defh", "defs", "fillb", "fillw", "defg", "defgx":
		return true
	}
	return false
}
