package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/z80asm/pkg/token"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1,
	}
}

// Tokenize runs the lexer to the end of the source. The result always
// ends with an EOF token.
func Tokenize(source []rune, fileIndex int) []token.Token {
	l := NewLexer(source, fileIndex)
	var tokens []token.Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespace()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if ch == '/' && l.peekNext() == '*' {
			if !l.inlineComment() {
				return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
			}
			continue
		}
		if isIDStart(ch) {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '\n':
			return l.makeToken(token.NewLine, "", startPos, startCol, startLine)
		case '(':
			return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')':
			return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '[':
			return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
		case ']':
			return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
		case ',':
			return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '?':
			return l.makeToken(token.Question, "", startPos, startCol, startLine)
		case '~':
			return l.makeToken(token.Complement, "", startPos, startCol, startLine)
		case '+':
			return l.makeToken(token.Plus, "", startPos, startCol, startLine)
		case '*':
			return l.makeToken(token.Mul, "", startPos, startCol, startLine)
		case '|':
			return l.makeToken(token.Or, "", startPos, startCol, startLine)
		case '^':
			return l.makeToken(token.Xor, "", startPos, startCol, startLine)
		case '&':
			return l.makeToken(token.And, "", startPos, startCol, startLine)
		case '{':
			return l.matchThen('{', token.LDBrac, token.Illegal, startPos, startCol, startLine)
		case '}':
			return l.matchThen('}', token.RDBrac, token.Illegal, startPos, startCol, startLine)
		case '-':
			return l.matchThen('>', token.GoesTo, token.Minus, startPos, startCol, startLine)
		case ';':
			return l.lineComment(startPos, startCol, startLine)
		case '/':
			if l.peek() == '/' {
				return l.lineComment(startPos, startCol, startLine)
			}
			return l.makeToken(token.Div, "", startPos, startCol, startLine)
		case ':':
			if l.match(':') {
				return l.makeToken(token.DoubleColon, "", startPos, startCol, startLine)
			}
			return l.matchThen('=', token.VarAssign, token.Colon, startPos, startCol, startLine)
		case '=':
			if l.match('=') {
				return l.matchThen('=', token.CiEqual, token.Equal, startPos, startCol, startLine)
			}
			return l.makeToken(token.Assign, "", startPos, startCol, startLine)
		case '!':
			if l.match('=') {
				return l.matchThen('=', token.CiNotEqual, token.NotEqual, startPos, startCol, startLine)
			}
			return l.makeToken(token.Not, "", startPos, startCol, startLine)
		case '<':
			return l.less(startPos, startCol, startLine)
		case '>':
			return l.greater(startPos, startCol, startLine)
		case '%':
			if isBinaryDigit(l.peek()) {
				return l.binaryLiteral(startPos, startCol, startLine)
			}
			return l.makeToken(token.Mod, "", startPos, startCol, startLine)
		case '#':
			return l.directiveOrHex(startPos, startCol, startLine)
		case '$':
			return l.dollar(startPos, startCol, startLine)
		case '.':
			return l.dot(startPos, startCol, startLine)
		case '"':
			return l.stringLiteral(startPos, startCol, startLine)
		case '\'':
			return l.charLiteral(startPos, startCol, startLine)
		}

		return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.source) {
		return 0
	}
	return l.source[l.pos+offset]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, Text: string(l.source[startPos:l.pos]), FileIndex: l.fileIndex,
		Pos: startPos, Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

func (l *Lexer) skipWhitespace() {
	for {
		switch l.peek() {
		case ' ', '\t', '\r', '\f', '\v':
			l.advance()
		default:
			return
		}
	}
}

// inlineComment consumes a /* */ comment. It must close on the same line.
func (l *Lexer) inlineComment() bool {
	l.advance()
	l.advance()
	for !l.isAtEnd() && l.peek() != '\n' {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return true
		}
		l.advance()
	}
	return false
}

func (l *Lexer) lineComment(startPos, startCol, startLine int) token.Token {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
	text := strings.TrimRight(string(l.source[startPos:l.pos]), "\r")
	return l.makeToken(token.Comment, text, startPos, startCol, startLine)
}

// restOfLine captures everything up to the end of the line (used by defg).
func (l *Lexer) restOfLine() string {
	start := l.pos
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
	return strings.TrimRight(string(l.source[start:l.pos]), "\r")
}

func isIDStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '@' || ch == '`'
}

func isIDContinuation(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '@'
}

func isBinaryDigit(ch rune) bool { return ch == '0' || ch == '1' }

func isHexDigit(ch rune) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for {
		for isIDContinuation(l.peek()) {
			l.advance()
		}
		// compound names such as Module.Inner.symbol
		if l.peek() == '.' && isIDStart(l.peekNext()) && l.peekNext() != '`' {
			l.advance()
			continue
		}
		break
	}
	value := string(l.source[startPos:l.pos])
	if strings.EqualFold(value, "af") && l.peek() == '\'' {
		l.advance()
		value += "'"
	}

	tokType, canon, isKeyword := token.Lookup(value)
	if !isKeyword {
		return l.makeToken(token.Ident, value, startPos, startCol, startLine)
	}
	if tokType == token.Pragma && canon == "defg" {
		return l.defgPattern(startPos, startCol, startLine)
	}
	return l.makeToken(tokType, canon, startPos, startCol, startLine)
}

func (l *Lexer) defgPattern(startPos, startCol, startLine int) token.Token {
	pattern := l.restOfLine()
	return l.makeToken(token.DefgPattern, pattern, startPos, startCol, startLine)
}

func (l *Lexer) dot(startPos, startCol, startLine int) token.Token {
	if unicode.IsDigit(l.peek()) {
		l.pos, l.column = startPos, startCol
		return l.realLiteral(startPos, startCol, startLine)
	}
	if !unicode.IsLetter(l.peek()) {
		return l.makeToken(token.Dot, "", startPos, startCol, startLine)
	}
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tokType, canon, isKeyword := token.Lookup(value)
	if !isKeyword {
		return l.makeToken(token.Illegal, value, startPos, startCol, startLine)
	}
	if tokType == token.Pragma && canon == "defg" {
		return l.defgPattern(startPos, startCol, startLine)
	}
	return l.makeToken(tokType, canon, startPos, startCol, startLine)
}

func (l *Lexer) directiveOrHex(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	digits := string(l.source[startPos+1 : l.pos])
	if len(digits) > 0 && len(digits) <= 4 && allRunes(digits, isHexDigit) {
		return l.intToken(digits, 16, startPos, startCol, startLine)
	}
	if tokType, canon, ok := token.Lookup("#" + strings.ToLower(digits)); ok && tokType == token.Directive {
		return l.makeToken(token.Directive, canon, startPos, startCol, startLine)
	}
	return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
}

func (l *Lexer) dollar(startPos, startCol, startLine int) token.Token {
	if l.peek() == '<' {
		const noneArg = "<none>$"
		for i, r := range noneArg {
			if l.peekAt(i) != r {
				return l.makeToken(token.CurAddress, "", startPos, startCol, startLine)
			}
		}
		for range noneArg {
			l.advance()
		}
		return l.makeToken(token.NoneArg, "", startPos, startCol, startLine)
	}
	if !unicode.IsLetter(l.peek()) && !unicode.IsDigit(l.peek()) {
		return l.makeToken(token.CurAddress, "", startPos, startCol, startLine)
	}
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) {
		l.advance()
	}
	digits := string(l.source[startPos+1 : l.pos])
	if tokType, _, ok := token.Lookup("$" + digits); ok && tokType == token.CurCnt {
		return l.makeToken(token.CurCnt, "", startPos, startCol, startLine)
	}
	if len(digits) <= 4 && allRunes(digits, isHexDigit) {
		return l.intToken(digits, 16, startPos, startCol, startLine)
	}
	return l.makeToken(token.Number, "", startPos, startCol, startLine)
}

func (l *Lexer) binaryLiteral(startPos, startCol, startLine int) token.Token {
	for isBinaryDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	digits := strings.ReplaceAll(string(l.source[startPos+1:l.pos]), "_", "")
	return l.intToken(digits, 2, startPos, startCol, startLine)
}

// numberLiteral handles decimal, real, 0x/0b prefixed and h/q/o/b
// suffixed literals. A malformed literal yields a Number token with an
// empty value.
func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') && isHexDigit(l.peekAt(2)) {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
		return l.intToken(string(l.source[startPos+2:l.pos]), 16, startPos, startCol, startLine)
	}

	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && unicode.IsDigit(l.peekNext()) || l.isExponent() {
		l.pos, l.column = startPos, startCol
		return l.realLiteral(startPos, startCol, startLine)
	}
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) {
		l.advance()
	}
	text := string(l.source[startPos:l.pos])
	if allRunes(text, unicode.IsDigit) {
		return l.intToken(text, 10, startPos, startCol, startLine)
	}

	body, suffix := text[:len(text)-1], unicode.ToLower(rune(text[len(text)-1]))
	switch {
	case suffix == 'h' && len(body) > 0 && allRunes(body, isHexDigit):
		return l.intToken(body, 16, startPos, startCol, startLine)
	case (suffix == 'q' || suffix == 'o') && len(body) > 0 && allRunes(body, func(r rune) bool { return r >= '0' && r <= '7' }):
		return l.intToken(body, 8, startPos, startCol, startLine)
	case (text[:
		2] == "0b" || text[:2] == "0B") && len(text) > 2 && allRunes(text[2:], isBinaryDigit):
		return l.intToken(text[2:], 2, startPos, startCol, startLine)
	case suffix == 'b' && len(body) > 0 && allRunes(body, isBinaryDigit):
		return l.intToken(body, 2, startPos, startCol, startLine)
	}
	return l.makeToken(token.Number, "", startPos, startCol, startLine)
}

// isExponent reports whether an exponent part ("e5", "E-3") that ends the
// literal starts at the current position.
func (l *Lexer) isExponent() bool {
	if l.peek() != 'e' && l.peek() != 'E' {
		return false
	}
	i := 1
	if l.peekAt(i) == '+' || l.peekAt(i) == '-' {
		i++
	}
	if !unicode.IsDigit(l.peekAt(i)) {
		return false
	}
	for unicode.IsDigit(l.peekAt(i)) {
		i++
	}
	next := l.peekAt(i)
	return !unicode.IsLetter(next)
}

func (l *Lexer) realLiteral(startPos, startCol, startLine int) token.Token {
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		sign := 0
		if l.peekNext() == '+' || l.peekNext() == '-' {
			sign = 1
		}
		if unicode.IsDigit(l.peekAt(1 + sign)) {
			l.advance()
			if sign == 1 {
				l.advance()
			}
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
	}
	text := string(l.source[startPos:l.pos])
	return l.makeToken(token.Real, text, startPos, startCol, startLine)
}

func (l *Lexer) intToken(digits string, base, startPos, startCol, startLine int) token.Token {
	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	val, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return tok
	}
	tok.Value = strconv.FormatInt(val, 10)
	return tok
}

func allRunes(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func (l *Lexer) less(sPos, sCol, sLine int) token.Token {
	switch {
	case l.match('<'):
		return l.makeToken(token.Shl, "", sPos, sCol, sLine)
	case l.match('?'):
		return l.makeToken(token.MinOp, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.Le, token.Lt, sPos, sCol, sLine)
}

func (l *Lexer) greater(sPos, sCol, sLine int) token.Token {
	switch {
	case l.match('>'):
		return l.makeToken(token.Shr, "", sPos, sCol, sLine)
	case l.match('?'):
		return l.makeToken(token.MaxOp, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', token.Ge, token.Gt, sPos, sCol, sLine)
}

// ZX Spectrum specific escapes; \t and \b are Spectrum control codes,
// not tab and backspace.
var escapes = map[rune]byte{
	'i': 0x10, 'p': 0x11, 'f': 0x12, 'b': 0x13, 'I': 0x14, 'o': 0x15,
	'a': 0x16, 't': 0x17, 'P': 0x60, 'C': 0x7f,
	'\'': '\'', '"': '"', '\\': '\\', '0': 0,
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var buf []byte
	for !l.isAtEnd() && l.peek() != '\n' {
		c := l.advance()
		switch c {
		case '"':
			return l.makeToken(token.String, string(buf), startPos, startCol, startLine)
		case '\\':
			b, ok := l.decodeEscape()
			if !ok {
				return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
			}
			buf = append(buf, b...)
		default:
			buf = append(buf, byte(c))
		}
	}
	return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
}

func (l *Lexer) charLiteral(startPos, startCol, startLine int) token.Token {
	var b []byte
	switch c := l.advance(); c {
	case '\\':
		decoded, ok := l.decodeEscape()
		if !ok {
			return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
		}
		b = decoded
	case '\'', '\n', 0:
		return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
	default:
		b = []byte{byte(c)}
	}
	if !l.match('\'') || len(b) != 1 {
		return l.makeToken(token.Illegal, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Char, strconv.Itoa(int(b[0])), startPos, startCol, startLine)
}

func (l *Lexer) decodeEscape() ([]byte, bool) {
	if l.isAtEnd() || l.peek() == '\n' {
		return nil, false
	}
	c := l.advance()
	if c == 'x' {
		if !isHexDigit(l.peek()) || !isHexDigit(l.peekNext()) {
			return nil, false
		}
		hi, lo := l.advance(), l.advance()
		v, _ := strconv.ParseUint(string([]rune{hi, lo}), 16, 8)
		return []byte{byte(v)}, true
	}
	if b, ok := escapes[c]; ok {
		return []byte{b}, true
	}
	return []byte{'\\', byte(c)}, true
}
