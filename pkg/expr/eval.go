package expr

import (
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
)

// Context is the environment an expression is evaluated in.
type Context interface {
	CurrentAddress() uint16
	// LoopCounter returns the counter of the innermost loop, or false when
	// no loop is active.
	LoopCounter() (Value, bool)
	// SymbolValue resolves name and marks the symbol as used.
	SymbolValue(name string, fromGlobal bool) (Value, bool)
	// MacroArgument returns the text bound to a macro parameter while a
	// macro invocation is being expanded.
	MacroArgument(name string) (string, bool)
	InMacro() bool
	Report(code string, node *ast.Node, args ...any)
}

// Evaluator evaluates expression trees. It owns the random generator used
// by rnd().
type Evaluator struct {
	Random *Random
}

func NewEvaluator(seed int64) *Evaluator {
	return &Evaluator{Random: NewRandom(seed)}
}

// Eval evaluates node in ctx. Unknown symbols yield NonEvaluated; type and
// conversion failures are reported as Z3001 and yield Error.
func (e *Evaluator) Eval(ctx Context, node *ast.Node) Value {
	if node == nil {
		return Error
	}
	switch node.Type {
	case ast.Number:
		return Integer(node.Data.(ast.NumberNode).Value)
	case ast.Real:
		return Real(node.Data.(ast.RealNode).Value)
	case ast.String:
		return String(node.Data.(ast.StringNode).Value)
	case ast.Bool:
		return Bool(node.Data.(ast.BoolNode).Value)
	case ast.CurAddress:
		return Integer(ctx.CurrentAddress())
	case ast.CurCnt:
		v, ok := ctx.LoopCounter()
		if !ok {
			ctx.Report("Z2056", node)
			return Error
		}
		return v
	case ast.Symbol:
		d := node.Data.(ast.SymbolNode)
		if v, ok := ctx.SymbolValue(d.Name, d.FromGlobal); ok {
			return v
		}
		return Unevaluated
	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		operand := e.Eval(ctx, d.Expr)
		if !IsValid(operand) {
			return operand
		}
		return e.check(ctx, node)(Unary(d.Op, operand))
	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		left := e.Eval(ctx, d.Left)
		right := e.Eval(ctx, d.Right)
		if invalid := firstInvalid(left, right); invalid != nil {
			return invalid
		}
		return e.check(ctx, node)(Binary(d.Op, left, right))
	case ast.Ternary:
		d := node.Data.(ast.TernaryNode)
		cond := e.Eval(ctx, d.Cond)
		if !IsValid(cond) {
			return cond
		}
		b, err := AsBool(cond)
		if err != nil {
			ctx.Report("Z3001", node, err.Error())
			return Error
		}
		if b {
			return e.Eval(ctx, d.ThenExpr)
		}
		return e.Eval(ctx, d.ElseExpr)
	case ast.FuncCall:
		d := node.Data.(ast.FuncCallNode)
		args := make([]Value, len(d.Args))
		for i, arg := range d.Args {
			args[i] = e.Eval(ctx, arg)
		}
		if invalid := firstInvalid(args...); invalid != nil {
			return invalid
		}
		return e.check(ctx, node)(Call(e.Random, d.Name, args))
	case ast.MacroFunc:
		if !ctx.InMacro() {
			ctx.Report("Z2089", node)
			return Error
		}
		return e.macroFunction(ctx, node)
	case ast.MacroParam:
		name := node.Data.(ast.MacroParamNode).Name
		if text, ok := ctx.MacroArgument(name); ok {
			return String(text)
		}
		ctx.Report("Z2089", node)
		return Error
	}
	return Error
}

func (e *Evaluator) check(ctx Context, node *ast.Node) func(Value, error) Value {
	return func(v Value, err error) Value {
		if err != nil {
			ctx.Report("Z3001", node, err.Error())
			return Error
		}
		return v
	}
}

// firstInvalid returns Error if any value is an error, NonEvaluated if any
// is unevaluated, and nil when all are valid.
func firstInvalid(values ...Value) Value {
	var result Value
	for _, v := range values {
		switch v.Kind() {
		case KindError:
			return Error
		case KindNonEvaluated:
			result = Unevaluated
		}
	}
	return result
}

// Unresolved returns the first symbol in node that ctx cannot resolve.
func Unresolved(ctx Context, node *ast.Node) *ast.Node {
	var missing *ast.Node
	ast.Walk(node, func(n *ast.Node) {
		if missing != nil || n.Type != ast.Symbol {
			return
		}
		d := n.Data.(ast.SymbolNode)
		if _, ok := ctx.SymbolValue(d.Name, d.FromGlobal); !ok {
			missing = n
		}
	})
	return missing
}

var registerHigh = map[string]string{"af": "a", "bc": "b", "de": "d", "hl": "h", "ix": "xh", "iy": "yh"}
var registerLow = map[string]string{"bc": "c", "de": "e", "hl": "l", "ix": "xl", "iy": "yl"}

// HighRegister and LowRegister map a 16-bit register to its 8-bit halves.
func HighRegister(reg string) (string, bool) {
	r, ok := registerHigh[reg]
	return r, ok
}

func LowRegister(reg string) (string, bool) {
	r, ok := registerLow[reg]
	return r, ok
}

var registerTests = map[string]string{
	"isrega": "a", "isregb": "b", "isregc": "c", "isregd": "d", "isrege": "e",
	"isregh": "h", "isregl": "l", "isregi": "i", "isregr": "r", "isregbc": "bc",
	"isregde": "de", "isreghl": "hl", "isregsp": "sp", "isregix": "ix", "isregiy": "iy",
	"isregaf": "af", "isregxh": "xh", "isregxl": "xl", "isregyh": "yh", "isregyl": "yl",
}

func (e *Evaluator) macroFunction(ctx Context, node *ast.Node) Value {
	d := node.Data.(ast.MacroFuncNode)
	op := d.Operand
	is := func(types ...ast.OperandType) Value {
		if op == nil {
			return Bool(false)
		}
		for _, t := range types {
			if op.Type == t {
				return Bool(true)
			}
		}
		return Bool(false)
	}

	switch d.Name {
	case "textof":
		return String(strings.ToUpper(operandText(d)))
	case "ltextof":
		return String(strings.ToLower(operandText(d)))
	case "def":
		return Bool(op != nil && op.Type != ast.OpNoneArg)
	case "isreg8":
		return is(ast.OpReg8, ast.OpReg8Spec, ast.OpReg8Idx)
	case "isreg8std":
		return is(ast.OpReg8)
	case "isreg8spec":
		return is(ast.OpReg8Spec)
	case "isreg8idx":
		return is(ast.OpReg8Idx)
	case "isreg16":
		return is(ast.OpReg16, ast.OpReg16Spec, ast.OpReg16Idx)
	case "isreg16std":
		return is(ast.OpReg16)
	case "isreg16idx":
		return is(ast.OpReg16Idx)
	case "isregindirect":
		return is(ast.OpRegIndirect)
	case "iscport":
		return is(ast.OpCPort)
	case "isindexedaddr":
		return is(ast.OpIndexedIndirect)
	case "isexpr":
		return is(ast.OpExpression)
	case "iscondition":
		return Bool(op != nil && (op.Type == ast.OpCondition || (op.Type == ast.OpReg8 && op.Register == "c")))
	case "hreg", "lreg":
		if op != nil {
			lookup := HighRegister
			if d.Name == "lreg" {
				lookup = LowRegister
			}
			if reg, ok := lookup(op.Register); ok {
				return String(reg)
			}
		}
	default:
		if reg, ok := registerTests[d.Name]; ok {
			return Bool(op != nil && op.Register == reg && isRegister(op))
		}
	}
	ctx.Report("Z3001", node, "cannot evaluate "+d.Name+"("+d.Text+")")
	return Error
}

func isRegister(op *ast.Operand) bool {
	switch op.Type {
	case ast.OpReg8, ast.OpReg8Spec, ast.OpReg8Idx, ast.OpReg16, ast.OpReg16Idx, ast.OpReg16Spec:
		return true
	}
	return false
}

func operandText(d ast.MacroFuncNode) string {
	if d.Operand == nil {
		return d.Text
	}
	if isRegister(d.Operand) || d.Operand.Type == ast.OpCondition {
		return d.Operand.Register
	}
	return strings.TrimSpace(d.Text)
}
