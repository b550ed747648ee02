package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Issue is one parsed diagnostic location.
type Issue struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// DiagnosticsTool runs the configured diagnostics command (a compiler,
// linter, or test runner) and extracts file:line issues from its output.
type DiagnosticsTool struct {
	Terminal *Terminal
	Command  string
	Args     []string
}

func (t *DiagnosticsTool) Name() string { return "diagnostics" }

func (t *DiagnosticsTool) Description() string {
	return "Run the project's diagnostics command and report file:line issues"
}

func (t *DiagnosticsTool) Schema() Schema {
	return Schema{Name: t.Name(), Description: t.Description()}
}

func (t *DiagnosticsTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	if t.Command == "" {
		return Result{}, fmt.Errorf("no diagnostics command configured")
	}

	res, execErr := t.Terminal.Exec(ctx, t.Command, t.Args...)
	combined := res.Stdout
	if res.Stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += res.Stderr
	}
	if execErr != nil && res.ExitCode == -1 {
		return Result{}, execErr
	}

	issues := parseIssues(combined)
	data := map[string]interface{}{
		"exit_code": res.ExitCode,
		"issues":    issues,
	}

	if res.ExitCode == 0 && len(issues) == 0 {
		r := ok("diagnostics clean")
		r.Data = data
		return r, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d issue(s) found\n", len(issues))
	for _, iss := range issues {
		fmt.Fprintf(&b, "%s:%d: %s\n", iss.File, iss.Line, iss.Message)
	}
	if len(issues) == 0 {
		b.WriteString(combined)
	}

	return Result{
		Success: res.ExitCode == 0,
		Output:  strings.TrimRight(b.String(), "\n"),
		Error: func() string {
			if res.ExitCode != 0 {
				return fmt.Sprintf("diagnostics exited with code %d", res.ExitCode)
			}
			return ""
		}(),
		Data: data,
	}, nil
}

var issueRe = regexp.MustCompile(`(?m)^\s*([A-Za-z0-9_./\\-]+\.[A-Za-z0-9_]+):(\d+)(?::\d+)?:?\s*(.*)$`)

// parseIssues extracts file:line locations from compiler-style output.
func parseIssues(output string) []Issue {
	matches := issueRe.FindAllStringSubmatch(output, -1)
	issues := make([]Issue, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		key := m[1] + ":" + m[2]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		issues = append(issues, Issue{
			File:    m[1],
			Line:    line,
			Message: strings.TrimSpace(m[3]),
		})
	}
	return issues
}
