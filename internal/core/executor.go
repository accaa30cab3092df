// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmgilman/go/exec"
)

// NativeResult contains the captured result of a native libtool run.
type NativeResult struct {
	Stdout []byte
	Stderr []byte

	// ExitCode is the process exit code; -1 if the process never started.
	ExitCode int
}

// NativeTool runs the real archiver.
type NativeTool interface {
	// Command returns the command line prefix used to invoke the tool.
	// It contributes to the cache key.
	Command() []string

	// Run invokes the tool with args. A non-zero exit returns the captured
	// result together with a non-nil error.
	Run(ctx context.Context, args []string) (*NativeResult, error)
}

// LibtoolCommand runs libtool through an exec.Executor.
//
// The process inherits the caller's environment with ZERO_AR_DATE=1 added so
// archive member timestamps are zeroed and identical inputs produce
// identical archives. Output is streamed to Stdout/Stderr while it is
// captured for the cache.
type LibtoolCommand struct {
	// Tool is the command line prefix, e.g. ["xcrun", "libtool"].
	Tool []string

	// WorkingDir is where the tool runs. Empty means the current directory.
	WorkingDir string

	Stdout io.Writer
	Stderr io.Writer

	// NewExecutor builds the base executor. Tests replace it.
	NewExecutor func() exec.Executor
}

// NewLibtoolCommand creates a LibtoolCommand streaming to the process's
// standard streams.
func NewLibtoolCommand(tool []string, workingDir string) *LibtoolCommand {
	return &LibtoolCommand{
		Tool:       tool,
		WorkingDir: workingDir,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		NewExecutor: func() exec.Executor {
			return exec.New(exec.WithInheritEnv())
		},
	}
}

func (l *LibtoolCommand) Command() []string {
	out := make([]string, len(l.Tool))
	copy(out, l.Tool)
	return out
}

// Run executes the tool. Cancelling ctx kills the process.
func (l *LibtoolCommand) Run(ctx context.Context, args []string) (*NativeResult, error) {
	if len(l.Tool) == 0 {
		return nil, fmt.Errorf("native tool is not configured")
	}
	if l.NewExecutor == nil {
		return nil, fmt.Errorf("native tool has no executor")
	}

	var e exec.Executor = exec.NewWrapper(l.NewExecutor(), l.Tool[0])
	e = e.WithContext(ctx).
		WithEnv(map[string]string{"ZERO_AR_DATE": "1"}).
		WithStdout(l.Stdout).
		WithStderr(l.Stderr).
		WithPassthrough()
	if l.WorkingDir != "" {
		e = e.WithDir(l.WorkingDir)
	}

	full := make([]string, 0, len(l.Tool)-1+len(args))
	full = append(full, l.Tool[1:]...)
	full = append(full, args...)

	res, err := e.Run(full...)
	out := &NativeResult{ExitCode: -1}
	if res != nil {
		out.Stdout = []byte(res.Stdout)
		out.Stderr = []byte(res.Stderr)
		out.ExitCode = res.ExitCode
	}
	if err != nil {
		var execErr *exec.ExecError
		if errors.As(err, &execErr) && execErr.ExitCode > 0 {
			return out, fmt.Errorf("%s exited with status %d", l.Tool[0], execErr.ExitCode)
		}
		return out, fmt.Errorf("running %s: %w", l.Tool[0], err)
	}
	if ctx.Err() != nil {
		return out, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
	return out, nil
}
