package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Git runs git commands scoped to the workspace root. All operations are
// disabled unless AllowExec is set.
type Git struct {
	WorkingDir string
	AllowExec  bool
	Logger     *zap.Logger
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	if !g.AllowExec {
		return "", fmt.Errorf("git operations disabled")
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	if g.WorkingDir != "" {
		cmd.Dir = g.WorkingDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}

func (g *Git) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// Status returns git status --short.
func (g *Git) Status(ctx context.Context) (string, error) {
	return g.run(ctx, "status", "--short")
}

// Diff returns the working-tree diff, optionally limited to one path and
// optionally for staged changes.
func (g *Git) Diff(ctx context.Context, path string, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	if path != "" {
		args = append(args, "--", path)
	}
	return g.run(ctx, args...)
}

// Log returns a compact one-line history, newest first.
func (g *Git) Log(ctx context.Context, limit int) (string, error) {
	if limit <= 0 {
		limit = 10
	}
	return g.run(ctx, "log", "--oneline", fmt.Sprintf("-n%d", limit))
}

// Commit stages everything (when stageAll) and records a commit.
func (g *Git) Commit(ctx context.Context, message string, stageAll bool) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}
	if stageAll {
		if _, err := g.run(ctx, "add", "-A"); err != nil {
			return "", err
		}
	}
	return g.run(ctx, "commit", "-m", message)
}

// GitStatusTool reports working-tree status.
type GitStatusTool struct {
	Git *Git
}

func (t *GitStatusTool) Name() string        { return "git_status" }
func (t *GitStatusTool) Description() string { return "Show the git working-tree status" }

func (t *GitStatusTool) Schema() Schema {
	return Schema{Name: t.Name(), Description: t.Description()}
}

func (t *GitStatusTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	out, err := t.Git.Status(ctx)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(out) == "" {
		out = "working tree clean"
	}
	return ok(out), nil
}

// GitDiffTool shows working-tree or staged changes.
type GitDiffTool struct {
	Git *Git
}

func (t *GitDiffTool) Name() string        { return "git_diff" }
func (t *GitDiffTool) Description() string { return "Show uncommitted changes as a unified diff" }

func (t *GitDiffTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "path", Type: "string", Description: "Limit the diff to one path", Required: false},
			{Name: "staged", Type: "boolean", Description: "Show staged changes instead of the working tree", Required: false},
		},
	}
}

func (t *GitDiffTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	out, err := t.Git.Diff(ctx, stringArg(args, "path"), boolArg(args, "staged"))
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(out) == "" {
		out = "no changes"
	}
	return ok(out), nil
}

// GitLogTool shows recent commit history.
type GitLogTool struct {
	Git *Git
}

func (t *GitLogTool) Name() string        { return "git_log" }
func (t *GitLogTool) Description() string { return "Show recent commits, newest first" }

func (t *GitLogTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "limit", Type: "integer", Description: "Maximum commits to show (default 10)", Required: false},
		},
	}
}

func (t *GitLogTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	out, err := t.Git.Log(ctx, intArg(args, "limit", 10))
	if err != nil {
		return Result{}, err
	}
	return ok(out), nil
}

// GitCommitTool records a commit. Commits change repository history, so every
// result carries RequiresConfirmation.
type GitCommitTool struct {
	Git *Git
}

func (t *GitCommitTool) Name() string { return "git_commit" }

func (t *GitCommitTool) Description() string {
	return "Stage and commit changes (requires confirmation)"
}

func (t *GitCommitTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "message", Type: "string", Description: "Commit message", Required: true},
			{Name: "stage_all", Type: "boolean", Description: "Stage all changes before committing (default true)", Required: false},
		},
	}
}

func (t *GitCommitTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	confirm := func(res Result, err error) (Result, error) {
		res.RequiresConfirmation = true
		return res, err
	}

	stageAll := true
	if v, exists := args["stage_all"]; exists {
		stageAll, _ = v.(bool)
	}

	message := stringArg(args, "message")
	out, err := t.Git.Commit(ctx, message, stageAll)
	if err != nil {
		return confirm(Result{}, err)
	}

	t.Git.logger().Info("commit recorded", zap.String("message", message))
	return confirm(ok(strings.TrimSpace(out)), nil)
}
