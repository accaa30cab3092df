package cli

import "strings"

// Native libtool flags the wrapper interprets. Each takes the following
// argument as its value.
const (
	FlagOutput         = "-o"
	FlagFileList       = "-filelist"
	FlagDependencyInfo = "-dependency_info"
)

// LibrarySuffix identifies static-library positional arguments.
const LibrarySuffix = ".a"

// ScanResult is what the scanner extracted from an argument vector.
//
// Empty strings mean "absent". It is produced once per invocation and not
// mutated afterward.
type ScanResult struct {
	// Output is the value of the last -o.
	Output string

	// InputLibraries are the positional .a arguments in encounter order.
	// Duplicates are kept.
	InputLibraries []string

	// FileList is the value of the last -filelist.
	FileList string

	// DependencyInfo is the value of the last -dependency_info.
	DependencyInfo string

	// Passthrough are the arguments the scanner ignored, in order.
	Passthrough []string

	// Truncated names a value-bearing flag that appeared as the final
	// argument with no value after it.
	Truncated string
}

// Scan walks args once, left to right.
//
// A value-bearing flag consumes the next element, so a value that happens to
// look like a flag ("-o -filelist") is never re-interpreted. Later
// occurrences of a flag override earlier ones. Unknown arguments are kept in
// Passthrough so newer native flags do not break the wrapper.
//
// If a value-bearing flag is the last element, Truncated is set and the
// scan stops; Classify turns that into a TruncatedArgument error.
func Scan(args []string) ScanResult {
	var res ScanResult
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case FlagOutput, FlagFileList, FlagDependencyInfo:
			if i+1 >= len(args) {
				res.Truncated = arg
				return res
			}
			i++
			value := args[i]
			switch arg {
			case FlagOutput:
				res.Output = value
			case FlagFileList:
				res.FileList = value
			case FlagDependencyInfo:
				res.DependencyInfo = value
			}
		default:
			if strings.HasSuffix(arg, LibrarySuffix) {
				res.InputLibraries = append(res.InputLibraries, arg)
			} else {
				res.Passthrough = append(res.Passthrough, arg)
			}
		}
	}
	return res
}
