package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTerminalDisabledByDefault(t *testing.T) {
	term := &Terminal{}
	if _, err := term.Exec(context.Background(), "echo", "hi"); err == nil {
		t.Fatalf("expected execution to be disabled")
	}
}

func TestTerminalDenylist(t *testing.T) {
	term := &Terminal{AllowExecution: true, Denied: []string{"curl"}}
	if _, err := term.Exec(context.Background(), "CURL", "http://example.com"); err == nil {
		t.Fatalf("expected denied command to be rejected case-insensitively")
	}
}

func TestTerminalAllowlist(t *testing.T) {
	term := &Terminal{AllowExecution: true, Allowed: []string{"echo"}}
	res, err := term.Exec(context.Background(), "echo", "hi")
	requireNoError(t, err)
	if strings.TrimSpace(res.Stdout) != "hi" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}

	if _, err := term.Exec(context.Background(), "ls"); err == nil {
		t.Fatalf("expected command outside allowlist to be rejected")
	}
}

func TestTerminalTimeout(t *testing.T) {
	term := &Terminal{AllowExecution: true, Timeout: 50 * time.Millisecond}
	if _, err := term.Exec(context.Background(), "sleep", "2"); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestRunCommandToolCapturesExit(t *testing.T) {
	tool := &RunCommandTool{Terminal: &Terminal{AllowExecution: true}}

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"command": "sh",
		"args":    []interface{}{"-c", "echo out; echo err >&2; exit 3"},
	})
	requireNoError(t, err)
	if res.Success {
		t.Fatalf("nonzero exit must not be success")
	}
	if res.Data["exit_code"] != 3 {
		t.Fatalf("unexpected exit code: %v", res.Data["exit_code"])
	}
	if !strings.Contains(res.Data["stdout"].(string), "out") {
		t.Fatalf("missing stdout: %+v", res.Data)
	}
	if !strings.Contains(res.Data["stderr"].(string), "err") {
		t.Fatalf("missing stderr: %+v", res.Data)
	}
}

func TestRunCommandToolSuccess(t *testing.T) {
	tool := &RunCommandTool{Terminal: &Terminal{AllowExecution: true}}

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"command": "echo",
		"args":    []interface{}{"hello"},
	})
	requireNoError(t, err)
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}
