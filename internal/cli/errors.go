package cli

import (
	"errors"

	errs "github.com/jmgilman/go/errors"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Failure codes. Every failure is fatal to the invocation; none is retried.
const (
	// CodeMissingOutput: no -o was supplied.
	CodeMissingOutput errs.ErrorCode = "MISSING_OUTPUT"

	// CodeUnsupportedMode: neither the -filelist/-dependency_info pair nor a
	// library input was present.
	CodeUnsupportedMode errs.ErrorCode = "UNSUPPORTED_MODE"

	// CodeTruncatedArgument: a value-bearing flag was the last argument.
	CodeTruncatedArgument errs.ErrorCode = "TRUNCATED_ARGUMENT"

	// CodeExecutorFailure: the build executor failed.
	CodeExecutorFailure errs.ErrorCode = "EXECUTOR_FAILURE"
)

var kindNames = map[errs.ErrorCode]string{
	CodeMissingOutput:      "MissingOutput",
	CodeUnsupportedMode:    "UnsupportedMode",
	CodeTruncatedArgument:  "TruncatedArgument",
	CodeExecutorFailure:    "ExecutorFailure",
	errs.CodeInvalidConfig: "InvalidConfiguration",
}

// Kind returns the human-readable failure kind of err, e.g. "MissingOutput".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if name, ok := kindNames[errs.GetCode(err)]; ok {
		return name
	}
	return "InternalError"
}

// ExitCode maps err to the process exit status: 0 for nil, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}

// describe renders the message of the outermost coded error followed by its
// cause, without the "[CODE]" prefix.
func describe(err error) string {
	var pe errs.PlatformError
	if !errs.As(err, &pe) {
		return err.Error()
	}
	msg := pe.Message()
	if cause := errors.Unwrap(pe); cause != nil {
		msg += ": " + cause.Error()
	}
	return msg
}
