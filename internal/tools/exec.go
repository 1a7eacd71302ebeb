package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Output is what a finished command wrote to its standard streams
type Output struct {
	Stdout string
	Stderr string
}

// CommandRunner runs one external program to completion
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands as child processes
type ExecRunner struct {
	// Timeout bounds each invocation; zero means no limit
	Timeout time.Duration
}

// NewExecRunner creates a runner with a per-invocation timeout
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes name with args and captures stdout and stderr. Only the exit
// status decides success.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%s timed out after %s: %w", name, r.Timeout, ctx.Err())
		}
		return out, err
	}
	return out, nil
}

// ToolError is a failed or skipped external tool invocation. It degrades
// the job's outputs but never fails the job.
type ToolError struct {
	Tool   string
	File   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed for %s: %v", e.Tool, e.File, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// CommandLine renders a command for logging
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
