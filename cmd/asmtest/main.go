// asmtest assembles a directory of sources in parallel and compares the
// produced segments and diagnostics against golden .json files.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/z80asm/pkg/assembler"
	"github.com/xplshn/z80asm/pkg/config"
)

type SegmentResult struct {
	Start  uint16 `json:"start"`
	Bank   *int   `json:"bank,omitempty"`
	Xorg   *int   `json:"xorg,omitempty"`
	Code   string `json:"code"`
	Length int    `json:"length"`
}

type DiagnosticResult struct {
	Code    string `json:"code"`
	File    int    `json:"file"`
	Line    int    `json:"line"`
	Warning bool   `json:"warning,omitempty"`
}

// Golden is the recorded outcome of assembling one source file.
type Golden struct {
	Hash        string             `json:"hash"`
	Model       string             `json:"model"`
	Entry       *uint16            `json:"entry,omitempty"`
	Segments    []SegmentResult    `json:"segments"`
	Diagnostics []DiagnosticResult `json:"diagnostics"`
}

type FileTestResult struct {
	File     string        `json:"file"`
	Status   string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string        `json:"message,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Duration time.Duration `json:"duration"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given source file.")
	testFiles      = flag.String("test-files", "tests/*.asm", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	flags          = flag.String("flags", "", "Assembler -W/-F flags applied to every file (space-separated).")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "asmtest"})

func main() {
	flag.Parse()
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	opts := config.NewOptions()
	cfg := config.NewConfig()
	if err := cfg.ProcessFlags(strings.Fields(*flags)); err != nil {
		logger.Fatal("invalid assembler flags", "err", err)
	}
	cfg.Apply(opts)

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden, opts)
		return
	}
	handleRunTestSuite(opts)
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// assemble compiles file and records what the golden file keeps.
func assemble(file, fileHash string, opts *config.Options) *Golden {
	out := assembler.New(opts).CompileFile(file)
	g := &Golden{
		Hash:        fileHash,
		Model:       out.ModelType.String(),
		Entry:       out.EntryAddress,
		Segments:    []SegmentResult{},
		Diagnostics: []DiagnosticResult{},
	}
	for _, s := range out.Segments {
		g.Segments = append(g.Segments, SegmentResult{
			Start:  s.StartAddress,
			Bank:   s.Bank,
			Xorg:   s.XorgValue,
			Code:   hex.EncodeToString(s.EmittedCode),
			Length: len(s.EmittedCode),
		})
	}
	for _, e := range out.Errors {
		g.Diagnostics = append(g.Diagnostics, DiagnosticResult{Code: e.Code, File: e.FileIndex, Line: e.Line, Warning: e.Warning})
	}
	return g
}

func handleGenerateGolden(sourceFile string, opts *config.Options) {
	logger.Info("generating golden file", "file", sourceFile)

	fileHash, err := hashFile(sourceFile)
	if err != nil {
		logger.Fatal("could not hash source file", "file", sourceFile, "err", err)
	}
	jsonData, err := json.MarshalIndent(assemble(sourceFile, fileHash, opts), "", "  ")
	if err != nil {
		logger.Fatal("failed to marshal golden data", "err", err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			logger.Fatal("failed to create directory", "dir", *jsonDir, "err", err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		logger.Fatal("failed to write golden file", "file", goldenFileName, "err", err)
	}
	logger.Info("golden file created", "file", goldenFileName)
}

func handleRunTestSuite(opts *config.Options) {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		logger.Fatal("invalid glob pattern(s)", "err", err)
	}
	if len(files) == 0 {
		logger.Warn("no test files found matching the pattern(s)", "patterns", *testFiles)
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan fileTask, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				resultsChan <- testFile(task.file, task.hash, opts)
			}
		}()
	}

	// Files with identical content are only assembled once.
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] || skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- fileTask{file: file, hash: fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool { return allResults[i].File < allResults[j].File })

	printSummary(allResults)
	if hasFailures(writeJSONReport(allResults)) {
		os.Exit(1)
	}
}

type fileTask struct {
	file string
	hash string
}

func testFile(file, fileHash string, opts *config.Options) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if os.IsNotExist(err) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var want Golden
	if err := json.Unmarshal(goldenData, &want); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	begin := time.Now()
	got := assemble(file, fileHash, opts)
	elapsed := time.Since(begin)
	logger.Debug("assembled", "file", file, "segments", len(got.Segments), "diagnostics", len(got.Diagnostics), "took", elapsed)

	if want.Hash != got.Hash {
		logger.Warn("source changed since the golden file was generated", "file", file)
	}
	want.Hash = got.Hash
	if diff := cmp.Diff(want, *got); diff != "" {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Output differs from golden file", Diff: diff, Duration: elapsed}
	}
	return &FileTestResult{File: file, Status: "PASS", Duration: elapsed}
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	fmt.Println("----------------------------------------------------------------------")
	for _, result := range results {
		var color string
		switch result.Status {
		case "PASS":
			passed++
			color = cGreen
		case "FAIL":
			failed++
			color = cRed
		case "SKIP":
			skipped++
			color = cYellow
		case "ERROR":
			errored++
			color = cRed
		}
		fmt.Printf("[%s%s%s] %s", color, result.Status, cNone, result.File)
		if result.Duration > 0 {
			fmt.Printf(" (%s)", result.Duration.Round(time.Microsecond))
		}
		fmt.Println()
		if result.Message != "" && result.Status != "PASS" {
			fmt.Printf("    %s\n", result.Message)
		}
		fmt.Print(formatDiff(result.Diff))
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		logger.Error("failed to marshal results", "err", err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			logger.Error("failed to create dir", "dir", *jsonDir, "err", err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}
	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		logger.Error("failed to write JSON report", "file", outputFile, "err", err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if seen[absFile] {
				continue
			}
			if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
				allFiles = append(allFiles, absFile)
				seen[absFile] = true
			}
		}
	}
	return allFiles, nil
}
