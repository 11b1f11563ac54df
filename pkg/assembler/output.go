package assembler

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/z80asm/pkg/config"
	"github.com/xplshn/z80asm/pkg/diag"
)

// SourceName is the file name of an in-memory compilation. Includes are
// resolved relative to the working directory for it.
const SourceName = "#source"

// SourceFile is one compiled file and its place in the include graph.
type SourceFile struct {
	Filename string
	Hash     uint64
	Parent   *SourceFile
	Children []*SourceFile
}

func NewSourceFile(filename string, content []byte) *SourceFile {
	return &SourceFile{Filename: filename, Hash: xxhash.Sum64(content)}
}

// ContainsInIncludeList reports whether child has already been included
// into f.
func (f *SourceFile) ContainsInIncludeList(child *SourceFile) bool {
	for _, c := range f.Children {
		if c.Filename == child.Filename {
			return true
		}
	}
	return false
}

// Include adds child to the include list of f. It returns false when child
// is f itself or one of its ancestors.
func (f *SourceFile) Include(child *SourceFile) bool {
	for p := f; p != nil; p = p.Parent {
		if p.Filename == child.Filename {
			return false
		}
	}
	child.Parent = f
	f.Children = append(f.Children, child)
	return true
}

// Segment is a contiguous run of emitted bytes.
type Segment struct {
	StartAddress  uint16
	Bank          *int
	BankOffset    int
	Displacement  *int
	XorgValue     *int
	MaxCodeLength int
	EmittedCode   []byte
	Overflow      bool
}

func NewSegment(start uint16, maxLength int) *Segment {
	return &Segment{StartAddress: start, MaxCodeLength: maxLength}
}

func (s *Segment) CurrentOffset() int { return len(s.EmittedCode) }

// EmitByte appends b. It returns true only for the first byte that does
// not fit; that and every later byte is dropped.
func (s *Segment) EmitByte(b byte) bool {
	if len(s.EmittedCode) >= s.MaxCodeLength || int(s.StartAddress)+len(s.EmittedCode) > 0xffff {
		if s.Overflow {
			return false
		}
		s.Overflow = true
		return true
	}
	s.EmittedCode = append(s.EmittedCode, b)
	return false
}

// FileLine identifies a source line.
type FileLine struct {
	FileIndex int
	Line      int
}

// ListFileItem is one row of the listing.
type ListFileItem struct {
	FileIndex         int
	Line              int
	Address           uint16
	SegmentIndex      int
	CodeStartIndex    int
	CodeLength        int
	SourceText        string
	IsMacroInvocation bool
}

// Output is the result of one compilation.
type Output struct {
	SourceFiles        []*SourceFile
	Segments           []*Segment
	Errors             []diag.Error
	SourceMap          map[uint16]FileLine
	AddressMap         map[FileLine][]uint16
	ListFileItems      []*ListFileItem
	ModelType          config.SpectrumModel
	EntryAddress       *uint16
	ExportEntryAddress *uint16
	InjectedOptions    map[string]bool
	TraceOutput        []string
	// Root is the global module with the symbol table of the compilation.
	Root *Module
}

func newOutput() *Output {
	return &Output{
		SourceMap:       make(map[uint16]FileLine),
		AddressMap:      make(map[FileLine][]uint16),
		InjectedOptions: make(map[string]bool),
	}
}

func (o *Output) ErrorCount() int {
	n := 0
	for _, e := range o.Errors {
		if !e.Warning {
			n++
		}
	}
	return n
}

func (o *Output) WarningCount() int { return len(o.Errors) - o.ErrorCount() }

// SourceRecords returns the file names and contents needed by
// diag.Printer. Files that cannot be read again get empty content.
func (o *Output) SourceRecords(loader SourceLoader, source string) []diag.SourceFileRecord {
	records := make([]diag.SourceFileRecord, len(o.SourceFiles))
	for i, f := range o.SourceFiles {
		records[i].Name = f.Filename
		if f.Filename == SourceName {
			records[i].Content = []rune(source)
			continue
		}
		if content, err := loader.ReadFile(f.Filename); err == nil {
			records[i].Content = []rune(string(content))
		}
	}
	return records
}

// SourceLoader reads source and binary files for the assembler.
type SourceLoader interface {
	Exists(name string) bool
	ReadFile(name string) ([]byte, error)
	// Join resolves name relative to the directory of file.
	Join(file, name string) string
}

// OSLoader reads from the operating system.
type OSLoader struct{}

func (OSLoader) Exists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

func (OSLoader) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSLoader) Join(file, name string) string {
	if filepath.IsAbs(name) || file == SourceName {
		return name
	}
	return filepath.Join(filepath.Dir(file), name)
}

// FSLoader reads from an fs.FS, using slash separated paths.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Exists(name string) bool {
	info, err := fs.Stat(l.FS, name)
	return err == nil && !info.IsDir()
}

func (l FSLoader) ReadFile(name string) ([]byte, error) { return fs.ReadFile(l.FS, name) }

func (l FSLoader) Join(file, name string) string {
	if file == SourceName {
		return path.Clean(name)
	}
	return path.Join(path.Dir(file), name)
}
