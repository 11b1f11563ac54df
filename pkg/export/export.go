// Package export writes the result of a compilation as Intel HEX, raw
// binary, a listing or a symbol table.
package export

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xplshn/z80asm/pkg/assembler"
	"github.com/xplshn/z80asm/pkg/expr"
)

const hexRecordSize = 16

// LoadAddress is the address a segment is loaded at. .xorg overrides the
// address the code was assembled for.
func LoadAddress(s *assembler.Segment) uint16 {
	if s.XorgValue != nil {
		return uint16(*s.XorgValue)
	}
	return s.StartAddress
}

// WriteHex writes every non-empty segment as Intel HEX data records
// followed by the end-of-file record.
func WriteHex(w io.Writer, out *assembler.Output) error {
	bw := bufio.NewWriter(w)
	for _, s := range out.Segments {
		addr := int(LoadAddress(s))
		for i := 0; i < len(s.EmittedCode); i += hexRecordSize {
			end := min(i+hexRecordSize, len(s.EmittedCode))
			writeHexRecord(bw, uint16(addr+i), 0x00, s.EmittedCode[i:end])
		}
	}
	writeHexRecord(bw, 0, 0x01, nil)
	return bw.Flush()
}

func writeHexRecord(w *bufio.Writer, addr uint16, kind byte, data []byte) {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + kind
	fmt.Fprintf(w, ":%02X%04X%02X", len(data), addr, kind)
	for _, b := range data {
		fmt.Fprintf(w, "%02X", b)
		sum += b
	}
	fmt.Fprintf(w, "%02X\n", -sum)
}

// WriteBinary concatenates the emitted code of all segments.
func WriteBinary(w io.Writer, out *assembler.Output) error {
	for _, s := range out.Segments {
		if _, err := w.Write(s.EmittedCode); err != nil {
			return fmt.Errorf("writing segment at #%04X: %w", s.StartAddress, err)
		}
	}
	return nil
}

const listBytesPerLine = 4

// WriteListing writes one row per list item: address, up to four code
// bytes and the source text. Longer code continues on following rows.
func WriteListing(w io.Writer, out *assembler.Output) error {
	bw := bufio.NewWriter(w)
	for i, f := range out.SourceFiles {
		fmt.Fprintf(bw, "; %d: %s (%016x)\n", i, f.Filename, f.Hash)
	}
	for _, item := range out.ListFileItems {
		var code []byte
		if item.SegmentIndex >= 0 && item.SegmentIndex < len(out.Segments) {
			emitted := out.Segments[item.SegmentIndex].EmittedCode
			start := min(item.CodeStartIndex, len(emitted))
			code = emitted[start:min(start+item.CodeLength, len(emitted))]
		}
		source := strings.TrimRight(item.SourceText, " \t\r")
		if item.IsMacroInvocation {
			source = "+ " + source
		}
		addr := int(item.Address)
		for first := true; first || len(code) > 0; first = false {
			n := min(len(code), listBytesPerLine)
			fmt.Fprintf(bw, "%04X  %-12s", addr&0xffff, hexBytes(code[:n]))
			if first {
				fmt.Fprintf(bw, " %d:%-5d %s", item.FileIndex, item.Line, source)
			}
			bw.WriteByte('\n')
			code, addr = code[n:], addr+n
		}
	}
	return bw.Flush()
}

func hexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// SymbolEntry is one symbol of the symbol table, named by its module path.
type SymbolEntry struct {
	Name  string
	Value string
}

// Symbols flattens the module tree of out into entries sorted by name.
// Symbols of child modules are qualified with the module path.
func Symbols(out *assembler.Output) []SymbolEntry {
	var entries []SymbolEntry
	var walk func(m *assembler.Module, prefix string)
	walk = func(m *assembler.Module, prefix string) {
		for name, sym := range m.Symbols {
			entries = append(entries, SymbolEntry{Name: prefix + name, Value: formatValue(sym.Value)})
		}
		for name, child := range m.Children {
			walk(child, prefix+name+".")
		}
	}
	if out.Root != nil {
		walk(out.Root, "")
	}
	slices.SortFunc(entries, func(a, b SymbolEntry) int { return strings.Compare(a.Name, b.Name) })
	return entries
}

func formatValue(v expr.Value) string {
	switch v := v.(type) {
	case expr.Integer:
		if v >= 0 && v <= 0xffff {
			return fmt.Sprintf("#%04X", int64(v))
		}
		return fmt.Sprint(int64(v))
	case expr.String:
		return fmt.Sprintf("%q", string(v))
	}
	return expr.Format(v)
}

// WriteSymbols writes the symbol table, one "name = value" line each.
func WriteSymbols(w io.Writer, out *assembler.Output) error {
	bw := bufio.NewWriter(w)
	for _, e := range Symbols(out) {
		fmt.Fprintf(bw, "%s = %s\n", e.Name, e.Value)
	}
	return bw.Flush()
}
