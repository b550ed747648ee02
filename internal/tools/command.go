package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultNetworkDenials lists commands blocked unless network access is
// enabled in configuration.
var DefaultNetworkDenials = []string{
	"curl", "wget", "ping", "nc", "netcat", "telnet", "ssh", "scp", "sftp",
}

// Terminal executes commands with allow/deny checks.
type Terminal struct {
	WorkingDir     string
	Allowed        []string
	Denied         []string
	Timeout        time.Duration
	AllowExecution bool
}

// ExecResult carries output and status code.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs a command if allowed by configuration.
func (t *Terminal) Exec(ctx context.Context, command string, args ...string) (ExecResult, error) {
	if !t.AllowExecution {
		return ExecResult{}, errors.New("execution disabled by configuration")
	}
	if command == "" {
		return ExecResult{}, fmt.Errorf("command is required")
	}
	if err := t.validateCommand(command); err != nil {
		return ExecResult{}, err
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	if t.WorkingDir != "" {
		cmd.Dir = t.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		ExitCode: func() int {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode()
			}
			if err != nil {
				return -1
			}
			return 0
		}(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("command %s timed out after %s", command, timeout)
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

func (t *Terminal) validateCommand(cmd string) error {
	lower := strings.ToLower(cmd)
	for _, deny := range t.Denied {
		if lower == strings.ToLower(deny) {
			return fmt.Errorf("command %q is denied", cmd)
		}
	}
	if len(t.Allowed) > 0 {
		for _, allow := range t.Allowed {
			if lower == strings.ToLower(allow) {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in allowlist", cmd)
	}
	return nil
}

// RunCommandTool exposes the terminal as an agent tool. The command name is
// checked against allow/deny lists; arguments pass through as-is since no
// shell is involved.
type RunCommandTool struct {
	Terminal *Terminal
	Logger   *zap.Logger
}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Description() string {
	return "Run a whitelisted command in the workspace and capture stdout, stderr, and exit code"
}

func (t *RunCommandTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "command", Type: "string", Description: "Executable name (no shell interpretation)", Required: true},
			{Name: "args", Type: "array", Description: "Arguments passed to the command", Required: false},
		},
	}
}

func (t *RunCommandTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	command := stringArg(args, "command")
	cmdArgs := stringSliceArg(args, "args")

	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := t.Terminal.Exec(ctx, command, cmdArgs...)
	data := map[string]interface{}{
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
	}

	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			logger.Warn("command rejected", zap.String("command", command), zap.Error(err))
			return Result{Data: data}, err
		}
	}

	logger.Info("command executed",
		zap.String("command", command),
		zap.Strings("args", cmdArgs),
		zap.Int("exit_code", res.ExitCode))

	out := res.Stdout
	if res.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += res.Stderr
	}

	result := Result{
		Success: res.ExitCode == 0,
		Output:  out,
		Data:    data,
	}
	if res.ExitCode != 0 {
		result.Error = fmt.Sprintf("command %s exited with code %d", command, res.ExitCode)
	}
	return result, nil
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
