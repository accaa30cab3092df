package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	errs "github.com/jmgilman/go/errors"

	"xclibtool/internal/core"
)

// ProgramName prefixes every diagnostic line.
const ProgramName = "xclibtool"

// BuildExecutor performs a classified operation, from cache or natively.
type BuildExecutor interface {
	Execute(ctx context.Context, mode core.Mode) (*core.Outcome, error)
}

// ExecutorFactory builds the executor for one invocation. It is only called
// once classification succeeded.
type ExecutorFactory func(inv core.Invocation) (BuildExecutor, error)

// CLIResult is the outcome of one invocation.
type CLIResult struct {
	ExitCode int

	// Mode is the classified operation; nil if classification failed.
	Mode core.Mode

	// Outcome is the executor's report; nil unless it succeeded.
	Outcome *core.Outcome
}

// Run scans and classifies args (excluding the program name), then hands
// the mode to the executor built by factory.
//
// Returned errors carry one of the Code* failure codes; nothing is printed.
func Run(ctx context.Context, args []string, factory ExecutorFactory) (CLIResult, error) {
	scan := Scan(args)
	mode, err := Classify(scan)
	if err != nil {
		return CLIResult{ExitCode: ExitCode(err)}, err
	}
	res := CLIResult{ExitCode: ExitFailure, Mode: mode}

	if factory == nil {
		return res, errs.New(CodeExecutorFailure, "no build executor configured")
	}
	executor, err := factory(core.Invocation{Args: args, Passthrough: scan.Passthrough})
	if err != nil {
		if errs.GetCode(err) == errs.CodeInvalidConfig {
			return res, err
		}
		return res, errs.Wrap(err, CodeExecutorFailure, "preparing build executor")
	}

	outcome, err := executor.Execute(ctx, mode)
	if err != nil {
		return res, errs.Wrap(err, CodeExecutorFailure, "failed")
	}

	res.ExitCode = ExitSuccess
	res.Outcome = outcome
	return res, nil
}

// Main runs the invocation and reports any failure to stderr. It returns the
// process exit status.
func Main(ctx context.Context, args []string, factory ExecutorFactory, stderr io.Writer) int {
	res, err := Run(ctx, args, factory)
	if err != nil {
		Report(stderr, err, args)
	}
	return res.ExitCode
}

// Report writes one diagnostic line naming the failure kind and echoing
// the original argument vector.
func Report(w io.Writer, err error, args []string) {
	if w == nil || err == nil {
		return
	}
	kind := color.New(color.FgRed, color.Bold).Sprint(Kind(err))
	fmt.Fprintf(w, "%s: %s: %s. Args: %q\n", ProgramName, kind, describe(err), args)
}
