package context

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const gitTimeout = 10 * time.Second

// ExecGit implements GitRunner by calling the git binary.
type ExecGit struct{}

// Log returns the last 20 commits, one per line.
func (g *ExecGit) Log(dir string) (string, error) {
	return runGit(dir, "log", "--oneline", "-n", "20")
}

// Status returns uncommitted changes in short format.
func (g *ExecGit) Status(dir string) (string, error) {
	return runGit(dir, "status", "--short")
}

func runGit(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
