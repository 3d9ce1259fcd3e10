package syncer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one version-control command in dir and returns its
// combined stdout/stderr.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// GitRunner runs the git binary as a subprocess.
type GitRunner struct {
	// Binary is the git executable; "git" when empty.
	Binary string
	// Timeout bounds a single command; zero means no extra bound.
	Timeout time.Duration
}

// Run executes git with args in dir. Output is returned even on failure so
// callers can surface it.
func (g GitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	// Never block on a credential or editor prompt.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true", "GIT_MERGE_AUTOEDIT=no")

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s %s: timed out: %w", bin, strings.Join(args, " "), err)
		}
		return output, fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
	}
	return output, nil
}
