package checks

import (
	"fmt"
	"sort"
	"strings"
)

// ParseResult holds the normalized output from a parser.
type ParseResult struct {
	Passed   bool
	Summary  string
	Findings any
}

// Parser converts raw command output into a structured ParseResult.
type Parser interface {
	Parse(stdout string, stderr string, exitCode int) ParseResult
}

var parsers = map[string]Parser{
	"generic": &GenericParser{},
	"go-test": &GoTestParser{},
}

// ParserNames lists the registered parsers.
func ParserNames() []string {
	names := make([]string, 0, len(parsers))
	for n := range parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsKnownParser reports whether name is registered. Empty selects generic.
func IsKnownParser(name string) bool {
	if name == "" {
		return true
	}
	_, ok := parsers[name]
	return ok
}

// ParserFor returns the named parser, falling back to generic.
func ParserFor(name string) Parser {
	if p, ok := parsers[name]; ok {
		return p
	}
	return parsers["generic"]
}

// GenericParser judges by exit code and keeps the tail of the output.
type GenericParser struct{}

// maxOutputLen caps how much output the generic parser retains.
const maxOutputLen = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)"}
	}

	combined := strings.TrimSpace(strings.Join([]string{stdout, stderr}, "\n"))
	// error summaries and tracebacks are usually at the end
	if len(combined) > maxOutputLen {
		combined = "...(truncated)\n" + combined[len(combined)-maxOutputLen:]
	}
	return ParseResult{
		Summary:  fmt.Sprintf("exit code %d, stdout=%d bytes, stderr=%d bytes", exitCode, len(stdout), len(stderr)),
		Findings: combined,
	}
}

// GoTestParser reads the plain output of `go test ./...`.
type GoTestParser struct{}

// GoTestFindings lists failing tests and packages.
type GoTestFindings struct {
	FailedTests    []string `json:"failed_tests,omitempty"`
	FailedPackages []string `json:"failed_packages,omitempty"`
}

func (p *GoTestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var (
		f      GoTestFindings
		passed int
	)
	for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- FAIL: "):
			name, _, _ := strings.Cut(strings.TrimPrefix(trimmed, "--- FAIL: "), " ")
			f.FailedTests = append(f.FailedTests, name)
		case strings.HasPrefix(line, "ok "), strings.HasPrefix(line, "ok\t"):
			passed++
		case strings.HasPrefix(line, "FAIL\t"), strings.HasPrefix(line, "FAIL "):
			fields := strings.Fields(line)
			if len(fields) > 1 {
				f.FailedPackages = append(f.FailedPackages, fields[1])
			}
		}
	}

	if exitCode == 0 && len(f.FailedTests) == 0 && len(f.FailedPackages) == 0 {
		return ParseResult{Passed: true, Summary: fmt.Sprintf("%d packages ok", passed)}
	}
	if len(f.FailedTests) == 0 && len(f.FailedPackages) == 0 {
		// build errors and panics do not produce FAIL lines
		return (&GenericParser{}).Parse(stdout, stderr, exitCode)
	}
	return ParseResult{
		Summary: fmt.Sprintf("%d tests failed in %d packages: %s",
			len(f.FailedTests), len(f.FailedPackages), strings.Join(f.FailedTests, ", ")),
		Findings: f,
	}
}
