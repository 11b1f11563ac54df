package assembler

import (
	"strings"

	"github.com/xplshn/z80asm/pkg/ast"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/expr"
	"github.com/xplshn/z80asm/pkg/token"
)

// Opcodes of instructions without operands. Two-byte codes are emitted
// high byte first.
var simpleOpCodes = map[string]int{
	"bsla": 0xed28, "bsra": 0xed29, "bsrl": 0xed2a, "bsrf": 0xed2b, "brlc": 0xed2c,
	"ccf": 0x3f, "cpd": 0xeda9, "cpdr": 0xedb9, "cpi": 0xeda1, "cpir": 0xedb1,
	"cpl": 0x2f, "daa": 0x27, "di": 0xf3, "ei": 0xfb, "exx": 0xd9, "halt": 0x76,
	"ind": 0xedaa, "indr": 0xedba, "ini": 0xeda2, "inir": 0xedb2,
	"ldd": 0xeda8, "lddr": 0xedb8, "lddrx": 0xedbc, "lddx": 0xedac,
	"ldi": 0xeda0, "ldir": 0xedb0, "ldirx": 0xedb4, "ldix": 0xeda4,
	"ldpirx": 0xedb7, "ldws": 0xeda5, "mirror": 0xed24, "mul": 0xed30,
	"neg": 0xed44, "nop": 0x00, "otdr": 0xedbb, "otir": 0xedb3, "outinb": 0xed90,
	"outd": 0xedab, "outi": 0xeda3, "pixelad": 0xed94, "pixeldn": 0xed93,
	"reti": 0xed4d, "retn": 0xed45, "rla": 0x17, "rlca": 0x07, "rld": 0xed6f,
	"rra": 0x1f, "rrca": 0x0f, "rrd": 0xed67, "scf": 0x37, "setae": 0xed95,
	"swapnib": 0xed23,
}

var reg8Order = map[string]int{"b": 0, "c": 1, "d": 2, "e": 3, "h": 4, "l": 5, "a": 7}

var reg16Order = map[string]int{"bc": 0, "de": 1, "hl": 2, "sp": 3}

var conditionOrder = map[string]int{"nz": 0, "z": 1, "nc": 2, "c": 3, "po": 4, "pe": 5, "p": 6, "m": 7}

var aluOrder = map[string]int{"add": 0, "adc": 1, "sub": 2, "sbc": 3, "and": 4, "xor": 5, "or": 6, "cp": 7}

var shiftOrder = map[string]int{"rlc": 0, "rrc": 1, "rl": 2, "rr": 3, "sla": 4, "sra": 5, "sll": 6, "srl": 7}

var popOpCodes = map[string]int{"af": 0xf1, "bc": 0xc1, "de": 0xd1, "hl": 0xe1, "ix": 0xdde1, "iy": 0xfde1}

var incOpCodes = map[string]int{
	"xl": 0xdd2c, "xh": 0xdd24, "yl": 0xfd2c, "yh": 0xfd24,
	"bc": 0x03, "de": 0x13, "hl": 0x23, "sp": 0x33, "ix": 0xdd23, "iy": 0xfd23,
}

var decOpCodes = map[string]int{
	"xl": 0xdd2d, "xh": 0xdd25, "yl": 0xfd2d, "yh": 0xfd25,
	"bc": 0x0b, "de": 0x1b, "hl": 0x2b, "sp": 0x3b, "ix": 0xdd2b, "iy": 0xfd2b,
}

// indexPrefix returns the DD or FD prefix of an index register or one of
// its halves.
func indexPrefix(reg string) int {
	if strings.Contains(reg, "x") {
		return 0xdd
	}
	return 0xfd
}

func isHighHalf(reg string) bool { return strings.HasSuffix(reg, "h") }

// resolveOperand turns hreg()/lreg() into the register they name.
func resolveOperand(op *ast.Operand) *ast.Operand {
	if op.Type != ast.OpRegOperation {
		return op
	}
	half := expr.LowRegister
	if op.RegOp == "hreg" {
		half = expr.HighRegister
	}
	reg, ok := half(op.Register)
	if !ok {
		return op
	}
	resolved := *op
	resolved.Register = reg
	resolved.Type = ast.OpReg8
	if reg == "xh" || reg == "xl" || reg == "yh" || reg == "yl" {
		resolved.Type = ast.OpReg8Idx
	}
	return &resolved
}

// emitInstruction encodes one Z80 instruction.
func (a *Assembler) emitInstruction(line *ast.Line, instr *ast.Instruction) {
	m := instr.Mnemonic
	ops := make([]*ast.Operand, len(instr.Operands))
	for i, op := range instr.Operands {
		if op.Type == ast.OpRegOperation && len(a.macroLines) == 0 {
			a.report("Z2089", line)
			return
		}
		ops[i] = resolveOperand(op)
	}
	if token.NextOnly[m] && !a.requireNext(line, m) {
		return
	}
	if code, ok := simpleOpCodes[m]; ok {
		if len(ops) > 0 {
			a.report("Z2043", line)
			return
		}
		a.emitOpCode(code)
		return
	}

	e := &encoder{a: a, line: line, mnemonic: m, ops: ops}
	switch m {
	case "ld":
		e.ld()
	case "add", "adc", "sbc":
		e.alu1()
	case "sub", "and", "xor", "or", "cp":
		e.alu2()
	case "inc", "dec":
		e.incDec()
	case "push", "pop":
		e.stack()
	case "jp":
		e.jp()
	case "jr":
		e.jr()
	case "djnz":
		if e.arity(1) {
			e.relativeJump(ops[0], 0x10)
		}
	case "call":
		e.call()
	case "ret":
		e.ret()
	case "rst":
		e.rst()
	case "im":
		e.im()
	case "ex":
		e.ex()
	case "in":
		e.in()
	case "out":
		e.out()
	case "bit", "res", "set":
		e.bit()
	case "rlc", "rrc", "rl", "rr", "sla", "sra", "sll", "srl":
		e.shift()
	case "nextreg":
		e.nextReg()
	case "test":
		if e.arity(1) && e.expression(ops[0]) {
			a.emitOpCode(0xed27)
			a.emitNumericExpr(line, ops[0].Expr, FixupBit8)
		}
	default:
		a.report("Z2023", line, m)
	}
}

// requireNext reports Z5001 unless the target is the ZX Spectrum Next.
func (a *Assembler) requireNext(line *ast.Line, mnemonic string) bool {
	if a.output.ModelType != config.Next {
		a.report("Z5001", line)
		return false
	}
	if a.opts.WarnNextOnly {
		a.report("W0002", line, mnemonic)
	}
	return true
}

// encoder holds the instruction being encoded.
type encoder struct {
	a        *Assembler
	line     *ast.Line
	mnemonic string
	ops      []*ast.Operand
}

func (e *encoder) invalid() { e.a.report("Z2043", e.line) }

// arity checks the operand count; extra or missing operands are Z2043.
func (e *encoder) arity(counts ...int) bool {
	for _, n := range counts {
		if len(e.ops) == n {
			return true
		}
	}
	e.invalid()
	return false
}

func (e *encoder) expression(op *ast.Operand) bool {
	if op.Type != ast.OpExpression {
		e.invalid()
		return false
	}
	return true
}

// immediate evaluates an operand that must be known right away.
func (e *encoder) immediate(op *ast.Operand) (int64, bool) {
	if !e.expression(op) {
		return 0, false
	}
	return e.a.intArg(e.line, op.Expr)
}

func (e *encoder) emit(code int) { e.a.emitOpCode(code) }

func (e *encoder) emitByte(b int) { e.a.emitByte(byte(b)) }

func (e *encoder) value(op *ast.Operand, kind FixupType) {
	e.a.emitNumericExpr(e.line, op.Expr, kind)
}

// displacement emits the d byte of an (ix+d) operand.
func (e *encoder) displacement(op *ast.Operand) {
	if op.Sign == "" || op.Expr == nil {
		e.emitByte(0)
		return
	}
	node := op.Expr
	if op.Sign == "-" {
		node = ast.NewUnaryOp(op.Expr.Tok, token.Minus, op.Expr)
	}
	e.a.emitNumericExpr(e.line, node, FixupBit8)
}

func (e *encoder) indexed(op *ast.Operand, code int) {
	e.emitByte(indexPrefix(op.Register))
	e.emitByte(code)
	e.displacement(op)
}

func (e *encoder) indexedBit(op *ast.Operand, code int) {
	e.emitByte(indexPrefix(op.Register))
	e.emitByte(0xcb)
	e.displacement(op)
	e.emitByte(code)
}

// relativeJump emits a JR or DJNZ with its distance byte.
func (e *encoder) relativeJump(target *ast.Operand, code int) {
	if !e.expression(target) {
		return
	}
	v := e.a.evaluate(e.line, target.Expr)
	switch v.Kind() {
	case expr.KindNonEvaluated:
		e.emitByte(code)
		e.a.recordFixup(e.line, FixupJr, target.Expr)
		e.emitByte(0)
		return
	case expr.KindError:
		return
	case expr.KindString:
		e.a.reportNode("Z2042", e.line, target.Expr)
		return
	}
	n, _ := expr.AsLong(v)
	dist := int64(uint16(n)) - (int64(e.a.currentAddress()) + 2)
	if dist < -128 || dist > 127 {
		e.a.report("Z2045", e.line, dist)
		return
	}
	e.emitByte(code)
	e.emitByte(int(dist))
}

// condition returns the order of a condition operand.
func (e *encoder) condition(op *ast.Operand) (int, bool) {
	if op.Type == ast.OpCondition {
		if order, ok := conditionOrder[op.Register]; ok {
			return order, true
		}
	}
	if op.Type == ast.OpReg8 && op.Register == "c" {
		return conditionOrder["c"], true
	}
	e.invalid()
	return 0, false
}

func (e *encoder) ld() {
	if !e.arity(2) {
		return
	}
	dst, src := e.ops[0], e.ops[1]
	switch dst.Type {
	case ast.OpReg8:
		d := reg8Order[dst.Register]
		switch src.Type {
		case ast.OpReg8:
			e.emit(0x40 + d*8 + reg8Order[src.Register])
			return
		case ast.OpRegIndirect:
			switch {
			case src.Register == "bc" && dst.Register == "a":
				e.emit(0x0a)
				return
			case src.Register == "de" && dst.Register == "a":
				e.emit(0x1a)
				return
			case src.Register == "hl":
				e.emit(0x46 + d*8)
				return
			}
		case ast.OpReg8Spec:
			if dst.Register == "a" {
				if src.Register == "r" {
					e.emit(0xed5f)
				} else {
					e.emit(0xed57)
				}
				return
			}
		case ast.OpReg8Idx:
			if d == 4 || d == 5 {
				break
			}
			low := 1
			if isHighHalf(src.Register) {
				low = 0
			}
			e.emit((indexPrefix(src.Register)<<8 | 0x44) + d*8 + low)
			return
		case ast.OpExpression:
			e.emit(0x06 + d*8)
			e.value(src, FixupBit8)
			return
		case ast.OpMemIndirect:
			if dst.Register == "a" {
				e.emit(0x3a)
				e.value(src, FixupBit16)
				return
			}
		case ast.OpIndexedIndirect:
			e.indexed(src, 0x46+d*8)
			return
		}

	case ast.OpReg8Idx:
		half := 8
		if isHighHalf(dst.Register) {
			half = 0
		}
		prefix := indexPrefix(dst.Register) << 8
		switch src.Type {
		case ast.OpReg8:
			s := reg8Order[src.Register]
			if s == 4 || s == 5 {
				break
			}
			e.emit(prefix | 0x60 + half + s)
			return
		case ast.OpReg8Idx:
			if indexPrefix(src.Register) != indexPrefix(dst.Register) {
				break
			}
			low := 1
			if isHighHalf(src.Register) {
				low = 0
			}
			e.emit(prefix | 0x64 + half + low)
			return
		case ast.OpExpression:
			e.emit(prefix | 0x26 + half)
			e.value(src, FixupBit8)
			return
		}

	case ast.OpReg8Spec:
		if src.Type == ast.OpReg8 && src.Register == "a" {
			if dst.Register == "r" {
				e.emit(0xed4f)
			} else {
				e.emit(0xed47)
			}
			return
		}

	case ast.OpRegIndirect:
		switch src.Type {
		case ast.OpReg8:
			switch {
			case dst.Register == "bc" && src.Register == "a":
				e.emit(0x02)
				return
			case dst.Register == "de" && src.Register == "a":
				e.emit(0x12)
				return
			case dst.Register == "hl":
				e.emit(0x70 + reg8Order[src.Register])
				return
			}
		case ast.OpExpression:
			if dst.Register == "hl" {
				e.emit(0x36)
				e.value(src, FixupBit8)
				return
			}
		}

	case ast.OpMemIndirect:
		code := 0
		switch src.Type {
		case ast.OpReg8:
			if src.Register == "a" {
				code = 0x32
			}
		case ast.OpReg16:
			code = map[string]int{"bc": 0xed43, "de": 0xed53, "hl": 0x22, "sp": 0xed73}[src.Register]
		case ast.OpReg16Idx:
			code = indexPrefix(src.Register)<<8 | 0x22
		}
		if code != 0 {
			e.emit(code)
			e.value(dst, FixupBit16)
			return
		}

	case ast.OpReg16:
		switch src.Type {
		case ast.OpMemIndirect:
			e.emit(map[string]int{"bc": 0xed4b, "de": 0xed5b, "hl": 0x2a, "sp": 0xed7b}[dst.Register])
			e.value(src, FixupBit16)
			return
		case ast.OpExpression:
			e.emit(0x01 + reg16Order[dst.Register]*16)
			e.value(src, FixupBit16)
			return
		case ast.OpReg16, ast.OpReg16Idx:
			if dst.Register != "sp" {
				break
			}
			switch src.Register {
			case "hl":
				e.emit(0xf9)
				return
			case "ix", "iy":
				e.emit(indexPrefix(src.Register)<<8 | 0xf9)
				return
			}
		}

	case ast.OpReg16Idx:
		prefix := indexPrefix(dst.Register) << 8
		switch src.Type {
		case ast.OpMemIndirect:
			e.emit(prefix | 0x2a)
			e.value(src, FixupBit16)
			return
		case ast.OpExpression:
			e.emit(prefix | 0x21)
			e.value(src, FixupBit16)
			return
		}

	case ast.OpIndexedIndirect:
		switch src.Type {
		case ast.OpReg8:
			e.indexed(dst, 0x70+reg8Order[src.Register])
			return
		case ast.OpExpression:
			e.indexed(dst, 0x36)
			e.value(src, FixupBit8)
			return
		}
	}
	e.invalid()
}

// alu1 encodes add, adc and sbc, which have 8 and 16-bit forms.
func (e *encoder) alu1() {
	if !e.arity(1, 2) {
		return
	}
	dst, src := &ast.Operand{Type: ast.OpReg8, Register: "a"}, e.ops[0]
	if len(e.ops) == 2 {
		dst, src = e.ops[0], e.ops[1]
	}
	alu := aluOrder[e.mnemonic]
	switch dst.Type {
	case ast.OpReg8:
		if dst.Register != "a" {
			e.a.report("Z2051", e.line)
			return
		}
		if e.alu8(src, alu) {
			return
		}

	case ast.OpReg16:
		switch src.Type {
		case ast.OpReg16:
			if dst.Register != "hl" {
				break
			}
			base := map[string]int{"add": 0x09, "adc": 0xed4a, "sbc": 0xed42}[e.mnemonic]
			e.emit(base + reg16Order[src.Register]*16)
			return
		case ast.OpReg8:
			if e.mnemonic != "add" || dst.Register == "sp" || src.Register != "a" {
				break
			}
			if !e.a.requireNext(e.line, e.mnemonic) {
				return
			}
			e.emit(map[string]int{"hl": 0xed31, "de": 0xed32, "bc": 0xed33}[dst.Register])
			return
		case ast.OpExpression:
			if e.mnemonic != "add" || dst.Register == "sp" {
				break
			}
			if !e.a.requireNext(e.line, e.mnemonic) {
				return
			}
			e.emit(map[string]int{"hl": 0xed34, "de": 0xed35, "bc": 0xed36}[dst.Register])
			e.value(src, FixupBit16)
			return
		}

	case ast.OpReg16Idx:
		if e.mnemonic != "add" {
			break
		}
		code := indexPrefix(dst.Register)<<8 | 0x09
		switch src.Type {
		case ast.OpReg16:
			if src.Register == "hl" {
				break
			}
			e.emit(code + reg16Order[src.Register]*16)
			return
		case ast.OpReg16Idx:
			if src.Register != dst.Register {
				break
			}
			e.emit(code + 0x20)
			return
		}
	}
	e.invalid()
}

// alu2 encodes sub, and, xor, or and cp; "a," in front of the operand is
// optional.
func (e *encoder) alu2() {
	if !e.arity(1, 2) {
		return
	}
	src := e.ops[0]
	if len(e.ops) == 2 {
		if src.Type != ast.OpReg8 || src.Register != "a" {
			e.a.report("Z2050", e.line)
			return
		}
		src = e.ops[1]
	}
	if !e.alu8(src, aluOrder[e.mnemonic]) {
		e.invalid()
	}
}

// alu8 emits an 8-bit arithmetic operation on a with src.
func (e *encoder) alu8(src *ast.Operand, alu int) bool {
	switch src.Type {
	case ast.OpReg8:
		e.emit(0x80 + alu*8 + reg8Order[src.Register])
	case ast.OpRegIndirect:
		if src.Register != "hl" {
			return false
		}
		e.emit(0x86 + alu*8)
	case ast.OpReg8Idx:
		code := 0x85
		if isHighHalf(src.Register) {
			code = 0x84
		}
		e.emitByte(indexPrefix(src.Register))
		e.emitByte(alu*8 + code)
	case ast.OpIndexedIndirect:
		e.indexed(src, 0x86+alu*8)
	case ast.OpExpression:
		e.emitByte(0xc6 + alu*8)
		e.value(src, FixupBit8)
	default:
		return false
	}
	return true
}

func (e *encoder) incDec() {
	if !e.arity(1) {
		return
	}
	op, inc := e.ops[0], e.mnemonic == "inc"
	switch op.Type {
	case ast.OpReg8:
		code := 0x05
		if inc {
			code = 0x04
		}
		e.emit(code + 8*reg8Order[op.Register])
		return
	case ast.OpReg8Idx, ast.OpReg16, ast.OpReg16Idx:
		codes := decOpCodes
		if inc {
			codes = incOpCodes
		}
		e.emit(codes[op.Register])
		return
	case ast.OpRegIndirect:
		if op.Register != "hl" {
			break
		}
		if inc {
			e.emit(0x34)
		} else {
			e.emit(0x35)
		}
		return
	case ast.OpIndexedIndirect:
		code := 0x35
		if inc {
			code = 0x34
		}
		e.indexed(op, code)
		return
	}
	e.invalid()
}

func (e *encoder) stack() {
	if !e.arity(1) {
		return
	}
	op := e.ops[0]
	switch op.Type {
	case ast.OpExpression:
		if e.mnemonic == "pop" {
			e.a.report("Z5000", e.line)
			return
		}
		if !e.a.requireNext(e.line, e.mnemonic) {
			return
		}
		e.emit(0xed8a)
		e.value(op, FixupBit16Be)
		return
	case ast.OpReg16, ast.OpReg16Spec, ast.OpReg16Idx:
		if code, ok := popOpCodes[op.Register]; ok {
			if e.mnemonic == "push" {
				code |= 0x04
			}
			e.emit(code)
			return
		}
	}
	e.a.report("Z5002", e.line)
}

func (e *encoder) jp() {
	if !e.arity(1, 2) {
		return
	}
	if len(e.ops) == 2 {
		order, ok := e.condition(e.ops[0])
		if !ok || !e.expression(e.ops[1]) {
			return
		}
		e.emit(0xc2 + order*8)
		e.value(e.ops[1], FixupBit16)
		return
	}
	op := e.ops[0]
	switch op.Type {
	case ast.OpCPort:
		if e.a.requireNext(e.line, e.mnemonic) {
			e.emit(0xed98)
		}
		return
	case ast.OpReg16, ast.OpRegIndirect:
		if op.Register == "hl" {
			e.emit(0xe9)
			return
		}
	case ast.OpIndexedIndirect, ast.OpReg16Idx:
		if op.Sign == "" {
			e.emit(indexPrefix(op.Register)<<8 | 0xe9)
			return
		}
	case ast.OpExpression:
		e.emit(0xc3)
		e.value(op, FixupBit16)
		return
	}
	e.invalid()
}

func (e *encoder) jr() {
	if !e.arity(1, 2) {
		return
	}
	if len(e.ops) == 1 {
		e.relativeJump(e.ops[0], 0x18)
		return
	}
	order, ok := e.condition(e.ops[0])
	if !ok {
		return
	}
	if order >= 4 {
		e.a.report("Z2044", e.line)
		return
	}
	e.relativeJump(e.ops[1], 0x20+order*8)
}

func (e *encoder) call() {
	if !e.arity(1, 2) {
		return
	}
	if len(e.ops) == 1 {
		if e.expression(e.ops[0]) {
			e.emit(0xcd)
			e.value(e.ops[0], FixupBit16)
		}
		return
	}
	order, ok := e.condition(e.ops[0])
	if !ok || !e.expression(e.ops[1]) {
		return
	}
	e.emit(0xc4 + order*8)
	e.value(e.ops[1], FixupBit16)
}

func (e *encoder) ret() {
	if !e.arity(0, 1) {
		return
	}
	if len(e.ops) == 0 {
		e.emit(0xc9)
		return
	}
	if order, ok := e.condition(e.ops[0]); ok {
		e.emit(0xc0 + order*8)
	}
}

func (e *encoder) rst() {
	if !e.arity(1) {
		return
	}
	n, ok := e.immediate(e.ops[0])
	if !ok {
		return
	}
	if n < 0 || n > 0x38 || n%8 != 0 {
		e.a.report("Z2046", e.line, n)
		return
	}
	e.emit(0xc7 + int(n))
}

func (e *encoder) im() {
	if !e.arity(1) {
		return
	}
	n, ok := e.immediate(e.ops[0])
	if !ok {
		return
	}
	if n < 0 || n > 2 {
		e.a.report("Z2047", e.line, n)
		return
	}
	e.emit([]int{0xed46, 0xed56, 0xed5e}[n])
}

func (e *encoder) ex() {
	if !e.arity(2) {
		return
	}
	dst, src := e.ops[0], e.ops[1]
	switch {
	case dst.Register == "af" && src.Register == "af'":
		e.emit(0x08)
		return
	case dst.Type == ast.OpReg16 && dst.Register == "de" && src.Register == "hl":
		e.emit(0xeb)
		return
	case dst.Type == ast.OpRegIndirect && dst.Register == "sp":
		switch {
		case src.Type == ast.OpReg16 && src.Register == "hl":
			e.emit(0xe3)
			return
		case src.Type == ast.OpReg16Idx:
			e.emit(indexPrefix(src.Register)<<8 | 0xe3)
			return
		}
	}
	e.invalid()
}

func (e *encoder) in() {
	if !e.arity(1, 2) {
		return
	}
	dst := e.ops[0]
	if len(e.ops) == 1 {
		if dst.Type == ast.OpCPort {
			e.emit(0xed70)
			return
		}
		e.invalid()
		return
	}
	src := e.ops[1]
	if dst.Type == ast.OpReg8 {
		switch {
		case dst.Register == "a" && src.Type == ast.OpMemIndirect:
			e.emit(0xdb)
			e.value(src, FixupBit8)
			return
		case src.Type == ast.OpCPort:
			e.emit(0xed40 + 8*reg8Order[dst.Register])
			return
		}
	}
	e.invalid()
}

func (e *encoder) out() {
	if !e.arity(2) {
		return
	}
	port, src := e.ops[0], e.ops[1]
	switch port.Type {
	case ast.OpMemIndirect:
		if src.Type == ast.OpReg8 && src.Register == "a" {
			e.emit(0xd3)
			e.value(port, FixupBit8)
			return
		}
	case ast.OpCPort:
		switch src.Type {
		case ast.OpReg8:
			e.emit(0xed41 + 8*reg8Order[src.Register])
			return
		case ast.OpExpression:
			n, ok := e.a.intArg(e.line, src.Expr)
			if !ok {
				return
			}
			if n != 0 {
				e.a.report("Z2048", e.line)
				return
			}
			e.emit(0xed71)
			return
		}
	}
	e.invalid()
}

// bit encodes bit, res and set. res and set on (ix+d) may copy the
// result into a third, 8-bit register operand.
func (e *encoder) bit() {
	if !e.arity(2, 3) {
		return
	}
	base := map[string]int{"bit": 0x40, "res": 0x80, "set": 0xc0}[e.mnemonic]
	index, ok := e.immediate(e.ops[0])
	if !ok {
		return
	}
	if index < 0 || index > 7 {
		e.a.report("Z2049", e.line, index)
		return
	}
	code := base + 8*int(index)
	target := e.ops[1]
	if len(e.ops) == 3 && (target.Type != ast.OpIndexedIndirect || e.mnemonic == "bit") {
		e.invalid()
		return
	}
	switch target.Type {
	case ast.OpIndexedIndirect:
		switch {
		case len(e.ops) == 2:
			code |= 0x06
		case e.ops[2].Type == ast.OpReg8:
			code |= reg8Order[e.ops[2].Register]
		default:
			e.invalid()
			return
		}
		e.indexedBit(target, code)
		return
	case ast.OpReg8:
		e.emitByte(0xcb)
		e.emitByte(code | reg8Order[target.Register])
		return
	case ast.OpRegIndirect:
		if target.Register == "hl" {
			e.emitByte(0xcb)
			e.emitByte(code | 0x06)
			return
		}
	}
	e.invalid()
}

func (e *encoder) shift() {
	if !e.arity(1, 2) {
		return
	}
	code := 8 * shiftOrder[e.mnemonic]
	op := e.ops[0]
	switch op.Type {
	case ast.OpReg8:
		if len(e.ops) == 1 {
			e.emitByte(0xcb)
			e.emitByte(code | reg8Order[op.Register])
			return
		}
	case ast.OpRegIndirect:
		if op.Register == "hl" && len(e.ops) == 1 {
			e.emitByte(0xcb)
			e.emitByte(code | 0x06)
			return
		}
	case ast.OpIndexedIndirect:
		switch {
		case len(e.ops) == 1:
			code |= 0x06
		case e.ops[1].Type == ast.OpReg8:
			code |= reg8Order[e.ops[1].Register]
		default:
			e.invalid()
			return
		}
		e.indexedBit(op, code)
		return
	}
	e.invalid()
}

func (e *encoder) nextReg() {
	if !e.arity(2) || !e.expression(e.ops[0]) {
		return
	}
	reg, value := e.ops[0], e.ops[1]
	switch {
	case value.Type == ast.OpExpression:
		e.emit(0xed91)
		e.value(reg, FixupBit8)
		e.value(value, FixupBit8)
	case value.Type == ast.OpReg8 && value.Register == "a":
		e.emit(0xed92)
		e.value(reg, FixupBit8)
	default:
		e.invalid()
	}
}
