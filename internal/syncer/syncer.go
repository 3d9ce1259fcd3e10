// Package syncer reconciles the note tree with its remote git repository.
//
// One cycle is a fixed sequence:
//
//  1. commit local changes ("detected changes")
//  2. fetch and merge the upstream branch
//  3. commit whatever the merge left behind, conflict markers included
//     ("conflict markers")
//  4. push
//
// A failure at any step aborts the cycle; the next cycle starts over at step
// 1. Nothing is resumed.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Default commit messages.
const (
	DefaultLocalMessage    = "detected changes"
	DefaultConflictMessage = "conflict markers"
)

// Options configures an Engine.
type Options struct {
	LocalMessage    string
	ConflictMessage string
}

// Result describes what one cycle did.
type Result struct {
	CommittedLocal bool
	CommittedMerge bool
	Conflicts      bool
	ConflictFiles  []string
	Pushed         bool
	LocalOnly      bool // no remote configured; fetch/merge/push skipped
	Output         string
}

// Engine runs sync cycles through a Runner.
type Engine struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

// New creates an Engine. Empty messages fall back to the defaults.
func New(runner Runner, opts Options, logger *slog.Logger) *Engine {
	if opts.LocalMessage == "" {
		opts.LocalMessage = DefaultLocalMessage
	}
	if opts.ConflictMessage == "" {
		opts.ConflictMessage = DefaultConflictMessage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{runner: runner, opts: opts, logger: logger}
}

// cycle carries per-run state.
type cycle struct {
	e   *Engine
	ctx context.Context
	dir string
	log strings.Builder
}

func (c *cycle) run(op string, args ...string) (string, error) {
	out, err := c.e.runner.Run(c.ctx, c.dir, args...)
	c.log.WriteString("$ git " + strings.Join(args, " ") + "\n")
	c.log.Write(out)
	if err != nil {
		return string(out), &SyncFailure{Op: op, Args: args, Output: string(out), Err: err}
	}
	return string(out), nil
}

// SyncOnce runs one full cycle in baseDir. On failure the returned Result
// still reports the steps that completed, and the error is a *SyncFailure.
func (e *Engine) SyncOnce(ctx context.Context, baseDir string) (Result, error) {
	c := &cycle{e: e, ctx: ctx, dir: baseDir}
	var res Result
	defer func() { res.Output = c.log.String() }()

	if _, err := c.run("status", "rev-parse", "--is-inside-work-tree"); err != nil {
		f, _ := AsFailure(err)
		f.Err = fmt.Errorf("%w: %v", ErrNotRepository, f.Err)
		return res, f
	}

	committed, err := c.commitIfDirty(e.opts.LocalMessage)
	if err != nil {
		return res, err
	}
	res.CommittedLocal = committed

	remotes, err := c.run("status", "remote")
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(remotes) == "" {
		res.LocalOnly = true
		e.logger.Debug("sync: no remote configured, local commit only", slog.String("dir", baseDir))
		return res, nil
	}

	if _, err := c.run("fetch", "fetch"); err != nil {
		return res, err
	}

	out, err := c.run("merge", "merge")
	if err != nil {
		if !isConflict(out) {
			return res, err
		}
		res.Conflicts = true
		res.ConflictFiles = c.unmergedFiles()
		e.logger.Warn("sync: merge left conflict markers",
			slog.String("dir", baseDir),
			slog.String("files", strings.Join(res.ConflictFiles, ", ")))
	}

	committed, err = c.commitIfDirty(e.opts.ConflictMessage)
	if err != nil {
		return res, err
	}
	res.CommittedMerge = committed

	if _, err := c.run("push", "push"); err != nil {
		return res, err
	}
	res.Pushed = true
	return res, nil
}

// commitIfDirty stages and commits everything when the work tree (or the
// index, mid-merge) has changes.
func (c *cycle) commitIfDirty(message string) (bool, error) {
	status, err := c.run("status", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) == "" && !c.mergeInProgress() {
		return false, nil
	}
	if _, err := c.run("add", "add", "-A"); err != nil {
		return false, err
	}
	if _, err := c.run("commit", "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// mergeInProgress reports whether MERGE_HEAD exists, i.e. a merge stopped
// and still needs its commit even if every file was already staged.
func (c *cycle) mergeInProgress() bool {
	_, err := c.e.runner.Run(c.ctx, c.dir, "rev-parse", "-q", "--verify", "MERGE_HEAD")
	return err == nil
}

func (c *cycle) unmergedFiles() []string {
	out, err := c.e.runner.Run(c.ctx, c.dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

func isConflict(output string) bool {
	return strings.Contains(output, "CONFLICT") || strings.Contains(output, "Automatic merge failed")
}
