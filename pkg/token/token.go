package token

import "strings"

type Type int

const (
	EOF Type = iota
	NewLine
	Comment
	Illegal
	Ident
	Number
	Real
	Char
	String
	True
	False
	CurAddress
	CurCnt
	NoneArg
	DefgPattern

	// Keyword-like classes. The canonical lowercase name is stored in Value.
	Mnemonic
	Pragma
	Statement
	Directive
	Register
	Condition
	Function

	LDBrac
	RDBrac
	GoesTo
	Colon
	DoubleColon
	VarAssign
	Assign
	Equal
	CiEqual
	NotEqual
	CiNotEqual
	Lt
	Le
	Shl
	MinOp
	Gt
	Ge
	Shr
	MaxOp
	Plus
	Minus
	Mul
	Div
	Mod
	Or
	Xor
	And
	Not
	Complement
	Question
	Comma
	LParen
	RParen
	LBracket
	RBracket
	Dot
)

var mnemonics = []string{
	"adc", "add", "and", "bit", "call", "ccf", "cp", "cpd", "cpdr", "cpi", "cpir", "cpl",
	"daa", "dec", "di", "djnz", "ei", "ex", "exx", "halt", "im", "in", "inc", "ind", "indr",
	"ini", "inir", "jp", "jr", "ld", "ldd", "lddr", "ldi", "ldir", "neg", "nop", "or", "otdr",
	"otir", "out", "outd", "outi", "pop", "push", "res", "ret", "reti", "retn", "rl", "rla",
	"rlc", "rlca", "rld", "rr", "rra", "rrc", "rrca", "rrd", "rst", "sbc", "scf", "set", "sla",
	"sll", "sra", "srl", "sub", "xor",
	// ZX Spectrum Next extended set
	"ldix", "ldws", "ldirx", "lddx", "lddrx", "ldpirx", "outinb", "mul", "swapnib", "mirror",
	"nextreg", "pixeldn", "pixelad", "setae", "test", "bsla", "bsra", "bsrl", "bsrf", "brlc",
}

// NextOnly lists the mnemonics that exist only on the ZX Spectrum Next.
var NextOnly = map[string]bool{
	"ldix": true, "ldws": true, "ldirx": true, "lddx": true, "lddrx": true, "ldpirx": true,
	"outinb": true, "mul": true, "swapnib": true, "mirror": true, "nextreg": true,
	"pixeldn": true, "pixelad": true, "setae": true, "test": true, "bsla": true, "bsra": true,
	"bsrl": true, "bsrf": true, "brlc": true,
}

// Pragma spellings mapped to their canonical name. Every pragma is also
// accepted with a leading dot.
var pragmas = map[string]string{
	"org": "org", "bank": "bank", "xorg": "xorg", "ent": "ent", "xent": "xent",
	"equ": "equ", "var": "var", "disp": "disp",
	"defb": "defb", "db": "defb", "defw": "defw", "dw": "defw",
	"defm": "defm", "dm": "defm", "defn": "defn", "dn": "defn",
	"defc": "defc", "dc": "defc", "defh": "defh", "dh": "defh",
	"defg": "defg", "dg": "defg", "defgx": "defgx", "dgx": "defgx",
	"defs": "defs", "ds": "defs", "skip": "skip", "extern": "extern",
	"fillb": "fillb", "fillw": "fillw", "model": "model", "align": "align",
	"trace": "trace", "tracehex": "tracehex", "rndseed": "rndseed", "error": "error",
	"includebin": "incbin", "include_bin": "incbin", "incbin": "incbin",
	"comparebin": "comparebin", "zxbasic": "zxbasic", "injectopt": "injectopt",
}

// Statements that can be written with or without a leading dot.
var bareStatements = map[string]string{
	"macro": "macro", "endm": "endm", "mend": "endm", "struct": "struct",
	"if": "if", "endif": "endif", "for": "for", "to": "to", "step": "step",
	"local": "local", "module": "module", "scope": "module",
	"endmodule": "endmodule", "endscope": "endmodule", "moduleend": "endmodule",
	"scopeend": "endmodule", "ifused": "ifused", "ifnused": "ifnused",
}

// Statements that require the leading dot; the bare words stay identifiers
// and the parser recognizes them positionally.
var dottedStatements = map[string]string{
	"loop": "loop", "endl": "endl", "lend": "endl", "while": "while",
	"endw": "endw", "wend": "endw", "repeat": "repeat", "until": "until",
	"proc": "proc", "endp": "endp", "pend": "endp", "ends": "ends",
	"else": "else", "elif": "elif", "break": "break", "continue": "continue",
	"next": "next",
}

var directives = map[string]bool{
	"define": true, "undef": true, "ifdef": true, "ifndef": true, "ifmod": true,
	"ifnmod": true, "endif": true, "else": true, "if": true, "include": true, "line": true,
}

var registers = map[string]string{
	"a": "a", "b": "b", "c": "c", "d": "d", "e": "e", "h": "h", "l": "l",
	"i": "i", "r": "r", "af": "af", "af'": "af'", "bc": "bc", "de": "de", "hl": "hl",
	"sp": "sp", "ix": "ix", "iy": "iy",
	"xh": "xh", "ixh": "xh", "xl": "xl", "ixl": "xl",
	"yh": "yh", "iyh": "yh", "yl": "yl", "iyl": "yl",
}

var conditions = map[string]bool{
	"z": true, "nz": true, "nc": true, "po": true, "pe": true, "p": true, "m": true,
}

// Functions that take an operand instead of an expression list.
var functions = map[string]bool{
	"textof": true, "ltextof": true, "hreg": true, "lreg": true, "def": true,
	"isreg8": true, "isreg8std": true, "isreg8spec": true, "isreg8idx": true,
	"isreg16": true, "isreg16std": true, "isreg16idx": true, "isregindirect": true,
	"iscport": true, "isindexedaddr": true, "iscondition": true, "isexpr": true,
	"isrega": true, "isregaf": true, "isregb": true, "isregc": true, "isregbc": true,
	"isregd": true, "isrege": true, "isregde": true, "isregh": true, "isregl": true,
	"isreghl": true, "isregi": true, "isregr": true, "isregsp": true, "isregix": true,
	"isregiy": true, "isregxh": true, "isregxl": true, "isregyh": true, "isregyl": true,
}

type keyword struct {
	Type  Type
	Value string
}

// KeywordMap holds every keyword in its canonical lowercase spelling.
var KeywordMap = make(map[string]keyword)

// Reverse mapping from Type to a printable name
var TypeStrings = map[Type]string{
	EOF: "end of file", NewLine: "new line", Comment: "comment", Illegal: "illegal",
	Ident: "identifier", Number: "number", Real: "real", Char: "char", String: "string",
	True: ".true", False: ".false", CurAddress: "$", CurCnt: "$cnt", NoneArg: "$<none>$",
	DefgPattern: "defg pattern", Mnemonic: "mnemonic", Pragma: "pragma", Statement: "statement",
	Directive: "directive", Register: "register", Condition: "condition", Function: "function",
	LDBrac: "{{", RDBrac: "}}", GoesTo: "->", Colon: ":", DoubleColon: "::", VarAssign: ":=",
	Assign: "=", Equal: "==", CiEqual: "===", NotEqual: "!=", CiNotEqual: "!==", Lt: "<",
	Le: "<=", Shl: "<<", MinOp: "<?", Gt: ">", Ge: ">=", Shr: ">>", MaxOp: ">?", Plus: "+",
	Minus: "-", Mul: "*", Div: "/", Mod: "%", Or: "|", Xor: "^", And: "&", Not: "!",
	Complement: "~", Question: "?", Comma: ",", LParen: "(", RParen: ")", LBracket: "[",
	RBracket: "]", Dot: ".",
}

func init() {
	for _, m := range mnemonics {
		KeywordMap[m] = keyword{Mnemonic, m}
	}
	for name, canon := range pragmas {
		KeywordMap[name] = keyword{Pragma, canon}
		KeywordMap["."+name] = keyword{Pragma, canon}
	}
	for name, canon := range bareStatements {
		KeywordMap[name] = keyword{Statement, canon}
		KeywordMap["."+name] = keyword{Statement, canon}
	}
	for name, canon := range dottedStatements {
		KeywordMap["."+name] = keyword{Statement, canon}
	}
	for name := range directives {
		KeywordMap["#"+name] = keyword{Directive, name}
	}
	for name, canon := range registers {
		KeywordMap[name] = keyword{Register, canon}
	}
	for name := range conditions {
		KeywordMap[name] = keyword{Condition, name}
	}
	for name := range functions {
		KeywordMap[name] = keyword{Function, name}
	}
	KeywordMap[".true"] = keyword{True, ""}
	KeywordMap[".false"] = keyword{False, ""}
	KeywordMap[".cnt"] = keyword{CurCnt, ""}
	KeywordMap["$cnt"] = keyword{CurCnt, ""}
}

// mixedCase are the only mixed-case spellings accepted as keywords.
var mixedCase = map[string]string{
	"IXh": "ixh", "IXl": "ixl", "IYh": "iyh", "IYl": "iyl", "Local": "local",
}

// Lookup classifies text as a keyword. Keywords are recognized only in
// all-lowercase or all-uppercase spelling.
func Lookup(text string) (Type, string, bool) {
	if kw, ok := KeywordMap[text]; ok {
		return kw.Type, kw.Value, true
	}
	if alias, ok := mixedCase[text]; ok {
		kw := KeywordMap[alias]
		return kw.Type, kw.Value, true
	}
	if upper := strings.ToUpper(text); upper == text {
		if kw, ok := KeywordMap[strings.ToLower(text)]; ok {
			return kw.Type, kw.Value, true
		}
	}
	return Ident, text, false
}

// IsDottedOnlyStatement reports whether an identifier spells a statement
// that is a keyword only with its leading dot (e.g. "loop").
func IsDottedOnlyStatement(text string) (string, bool) {
	lower := strings.ToLower(text)
	if lower != text && strings.ToUpper(text) != text {
		return "", false
	}
	canon, ok := dottedStatements[lower]
	return canon, ok
}

type Token struct {
	Type      Type
	Value     string
	Text      string
	FileIndex int
	Pos       int
	Line      int
	Column    int
	Len       int
}

func (t Token) String() string {
	if t.Text != "" {
		return t.Text
	}
	return TypeStrings[t.Type]
}

// End returns the rune offset just past the token.
func (t Token) End() int { return t.Pos + t.Len }
