// Package toolchain wraps the external tools the pipeline drives.
//
// Every subprocess goes through the Runner capability interface so the
// orchestrator can be exercised against a real process, a stub, or a
// remote execution backend without changing call sites.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// stderrTailSize bounds the stderr bytes retained per invocation.
const stderrTailSize = 64 * 1024

// Invocation describes one external tool call.
type Invocation struct {
	// Name is the logical tool name used in logs and metrics (e.g. "basecaller").
	Name string
	// Path is the executable to launch.
	Path string
	// Args are the arguments, excluding the executable.
	Args []string
	// Dir is the working directory. Empty inherits the current one.
	Dir string
	// Stdin feeds the process. Nil means no input.
	Stdin io.Reader
	// Stdout receives standard output. Nil discards it.
	Stdout io.Writer
}

// String renders the command line for logs.
func (i Invocation) String() string {
	return strings.TrimSpace(i.Path + " " + strings.Join(i.Args, " "))
}

// Result is the outcome of a completed invocation.
type Result struct {
	// ExitCode is the process exit code.
	ExitCode int
	// Stderr is the tail of the captured standard error.
	Stderr []byte
}

// Runner launches an invocation and waits for it to terminate.
// A non-zero exit is reported through Result, not as an error;
// errors are reserved for failures to launch or wait.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// ExitError is returned by RunChecked when a tool exits non-zero.
type ExitError struct {
	Tool     string
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, e.Command)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

// RunChecked runs inv and converts a non-zero exit into an *ExitError.
func RunChecked(ctx context.Context, r Runner, inv Invocation) (*Result, error) {
	res, err := r.Run(ctx, inv)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, &ExitError{
			Tool:     inv.Name,
			Command:  inv.String(),
			ExitCode: res.ExitCode,
			Stderr:   lastLines(string(res.Stderr), 10),
		}
	}
	return res, nil
}

// ExecRunner runs invocations as local subprocesses.
type ExecRunner struct{}

// NewExecRunner creates a subprocess-backed Runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the process and blocks until it exits.
// The process is killed if ctx is canceled.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdin = inv.Stdin
	cmd.Stdout = inv.Stdout

	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	err := cmd.Run()
	result := &Result{Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to run %s: %w", inv.Name, err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		result.ExitCode = status.ExitStatus()
	} else {
		result.ExitCode = -1
	}
	return result, nil
}

// Verify ExecRunner implements Runner.
var _ Runner = (*ExecRunner)(nil)

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	return b.buf
}

// lastLines returns at most n trailing non-empty lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
