package cli

import (
	errs "github.com/jmgilman/go/errors"

	"xclibtool/internal/core"
)

// Classify decides which libtool operation a scan describes.
//
// libtool is overloaded: given a manifest and a dependency file it creates
// an archive, given several .a inputs it merges them. Decision order:
//  1. no output                      -> MissingOutput
//  2. value-bearing flag at the end  -> TruncatedArgument
//  3. filelist and dependency info   -> CreateLibrary (library inputs ignored)
//  4. at least one library input     -> CreateUniversalBinary
//  5. otherwise                      -> UnsupportedMode
//
// Classify never inspects the filesystem.
func Classify(scan ScanResult) (core.Mode, error) {
	if scan.Output == "" {
		return nil, errs.New(CodeMissingOutput, "missing 'output' argument ("+FlagOutput+")")
	}
	if scan.Truncated != "" {
		return nil, errs.Newf(CodeTruncatedArgument, "flag %s is missing its value", scan.Truncated)
	}

	if scan.FileList != "" && scan.DependencyInfo != "" {
		return core.CreateLibrary{
			Output:         scan.Output,
			FileList:       scan.FileList,
			DependencyInfo: scan.DependencyInfo,
		}, nil
	}

	if len(scan.InputLibraries) > 0 {
		inputs := make([]string, len(scan.InputLibraries))
		copy(inputs, scan.InputLibraries)
		return core.CreateUniversalBinary{
			Output: scan.Output,
			Inputs: inputs,
		}, nil
	}

	return nil, errs.New(CodeUnsupportedMode, "unsupported mode")
}
