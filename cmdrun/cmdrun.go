// Package cmdrun runs external tools with a per-call timeout and captures
// their output for diagnostics.
package cmdrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result holds what a finished process wrote.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError describes a tool invocation that did not succeed.
type ExitError struct {
	Name     string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Name)
	}
	if d := Diagnostic(e.Stderr, 1); d != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Name, e.ExitCode, d)
	}
	return fmt.Sprintf("%s failed: %v", e.Name, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Diagnostic returns the first n non-empty lines of output joined by "; ".
func Diagnostic(output string, n int) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return strings.Join(lines, "; ")
}

// Run executes name with args and waits for it. A non-positive timeout leaves
// the call bounded by ctx alone. On timeout the whole process group is killed.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	setProcessGroup(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	exitErr := &ExitError{Name: name, ExitCode: -1, Stderr: res.Stderr, Err: err}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		exitErr.TimedOut = true
		exitErr.Err = context.DeadlineExceeded
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitErr.ExitCode = ee.ExitCode()
	}
	return res, exitErr
}
