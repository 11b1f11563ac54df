// Package diag holds the diagnostic catalog of the assembler and renders
// accumulated diagnostics for humans.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Error is one reported diagnostic. Positions are rune offsets into the
// source of the file at FileIndex.
type Error struct {
	Code      string
	FileIndex int
	File      string
	Line      int
	Column    int
	StartPos  int
	EndPos    int
	Message   string
	Warning   bool
}

func (e Error) Error() string {
	kind := "error"
	if e.Warning {
		kind = "warning"
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s [%s]", e.File, e.Line, e.Column, kind, e.Message, e.Code)
}

// Message formats the template of code with args.
func Message(code string, args ...any) string {
	text, ok := messages[code]
	if !ok {
		return "Unknown error"
	}
	for i, arg := range args {
		text = strings.ReplaceAll(text, fmt.Sprintf("{%d}", i), fmt.Sprint(arg))
	}
	return text
}

// New builds an Error for code with its formatted message. Position
// fields are filled in by the caller.
func New(code string, args ...any) Error {
	return Error{Code: code, Message: Message(code, args...), Warning: IsWarning(code)}
}

// IsWarning reports whether code belongs to the warning range.
func IsWarning(code string) bool { return strings.HasPrefix(code, "W") }

// Known reports whether code is part of the catalog.
func Known(code string) bool {
	_, ok := messages[code]
	return ok
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// Printer renders diagnostics in file:line:col form followed by the
// offending source line and a caret.
type Printer struct {
	W       io.Writer
	Color   bool
	Sources []SourceFileRecord
}

// NewPrinter enables colours when f is a terminal.
func NewPrinter(f *os.File, sources []SourceFileRecord) *Printer {
	return &Printer{W: f, Color: term.IsTerminal(int(f.Fd())), Sources: sources}
}

func (p *Printer) paint(code, text string) string {
	if !p.Color {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

func (p *Printer) Print(e Error) {
	kind := p.paint("31", "error:")
	if e.Warning {
		kind = p.paint("33", "warning:")
	}
	fmt.Fprintf(p.W, "%s:%d:%d: %s %s [%s]\n", e.File, e.Line, e.Column, kind, e.Message, e.Code)
	p.printErrorLine(e)
}

func (p *Printer) PrintAll(errs []Error) {
	for _, e := range errs {
		p.Print(e)
	}
}

// printErrorLine prints the source line and a caret indicating the error position
func (p *Printer) printErrorLine(e Error) {
	if e.FileIndex < 0 || e.FileIndex >= len(p.Sources) || e.Line == 0 {
		return
	}

	content := p.Sources[e.FileIndex].Content
	lineNum := e.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	if lineNum > 1 {
		return
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	line := strings.TrimRight(string(content[lineStart:lineEnd]), "\r")
	fmt.Fprintf(p.W, "  %s\n", line)

	col := max(e.Column, 1)
	width := e.EndPos - e.StartPos
	if width < 1 || col-1+width > len([]rune(line)) {
		width = 1
	}
	caret := "^" + strings.Repeat("~", width-1)
	fmt.Fprintf(p.W, "  %s%s\n", strings.Repeat(" ", col-1), p.paint("32", caret))
}
