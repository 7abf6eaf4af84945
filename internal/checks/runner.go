// Package checks runs project commands (tests, linters) and turns their
// output into pass/fail evidence for quality gates.
package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies to checks without an explicit timeout.
const DefaultTimeout = 2 * time.Minute

// Result holds the structured output of a check run.
type Result struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	AutoFixed  bool   `json:"auto_fixed,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary"`
	Findings   string `json:"findings,omitempty"`
}

// Check is one command to run.
type Check struct {
	Name       string
	Command    string
	Parser     string
	Timeout    time.Duration
	FixCommand string
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes checks and parses their output.
type Runner struct {
	cmd CommandRunner
	now func() time.Time
}

// NewRunner creates a Runner over cmd.
func NewRunner(cmd CommandRunner) *Runner {
	return &Runner{cmd: cmd, now: time.Now}
}

// Run executes a single check in dir. A failed check with a fix command is
// fixed and re-run once. Execution problems and timeouts are reported as
// failed results, never as errors, so a broken command cannot pass a gate.
func (r *Runner) Run(ctx context.Context, dir string, c Check) Result {
	res := r.runOnce(ctx, dir, c)
	if res.Passed || c.FixCommand == "" || ctx.Err() != nil {
		return res
	}

	fixCtx, cancel := context.WithTimeout(ctx, timeoutOf(c))
	// fix commands often exit non-zero even when they changed something
	_, _, _, _ = r.cmd.Run(fixCtx, dir, c.FixCommand)
	cancel()

	recheck := r.runOnce(ctx, dir, c)
	recheck.AutoFixed = recheck.Passed
	return recheck
}

// RunAll runs checks in order and returns every result.
func (r *Runner) RunAll(ctx context.Context, dir string, cs []Check) []Result {
	out := make([]Result, 0, len(cs))
	for _, c := range cs {
		out = append(out, r.Run(ctx, dir, c))
	}
	return out
}

func (r *Runner) runOnce(ctx context.Context, dir string, c Check) Result {
	timeout := timeoutOf(c)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	stdout, stderr, exitCode, err := r.cmd.Run(runCtx, dir, c.Command)
	res := Result{
		Name:       c.Name,
		ExitCode:   exitCode,
		DurationMs: int(r.now().Sub(start).Milliseconds()),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Summary = fmt.Sprintf("timeout after %s", timeout)
		return res
	case err != nil:
		res.ExitCode = -1
		res.Summary = err.Error()
		return res
	}

	parsed := ParserFor(c.Parser).Parse(stdout, stderr, exitCode)
	res.Passed = exitCode == 0 && parsed.Passed
	res.Summary = parsed.Summary
	if parsed.Findings != nil {
		if data, err := json.Marshal(parsed.Findings); err == nil {
			res.Findings = string(data)
		}
	}
	return res
}

func timeoutOf(c Check) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}
