package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want ScanResult
	}{
		{
			name: "create library",
			args: []string{"-o", "out.a", "-filelist", "files.txt", "-dependency_info", "deps.dat"},
			want: ScanResult{Output: "out.a", FileList: "files.txt", DependencyInfo: "deps.dat"},
		},
		{
			name: "universal binary",
			args: []string{"-o", "universal.a", "arm64.a", "x86_64.a"},
			want: ScanResult{Output: "universal.a", InputLibraries: []string{"arm64.a", "x86_64.a"}},
		},
		{
			name: "order independent",
			args: []string{"-dependency_info", "deps.dat", "-filelist", "files.txt", "-o", "out.a"},
			want: ScanResult{Output: "out.a", FileList: "files.txt", DependencyInfo: "deps.dat"},
		},
		{
			name: "last occurrence wins",
			args: []string{"-o", "first.a", "-o", "second.a", "-filelist", "a", "-filelist", "b"},
			want: ScanResult{Output: "second.a", FileList: "b"},
		},
		{
			name: "value that looks like a flag",
			args: []string{"-o", "-filelist", "x.a"},
			want: ScanResult{Output: "-filelist", InputLibraries: []string{"x.a"}},
		},
		{
			name: "flag value ending in .a is not an input",
			args: []string{"-o", "out.a", "lib.a"},
			want: ScanResult{Output: "out.a", InputLibraries: []string{"lib.a"}},
		},
		{
			name: "duplicates kept",
			args: []string{"a.a", "-o", "out.a", "a.a"},
			want: ScanResult{Output: "out.a", InputLibraries: []string{"a.a", "a.a"}},
		},
		{
			name: "unknown flags pass through",
			args: []string{"-static", "-arch_only", "arm64", "-o", "out.a", "-D", "-syslibroot", "/sdk", "in.a"},
			want: ScanResult{
				Output:         "out.a",
				InputLibraries: []string{"in.a"},
				Passthrough:    []string{"-static", "-arch_only", "arm64", "-D", "-syslibroot", "/sdk"},
			},
		},
		{
			name: "suffix is case sensitive",
			args: []string{"-o", "out.a", "LIB.A", "lib.ar"},
			want: ScanResult{Output: "out.a", Passthrough: []string{"LIB.A", "lib.ar"}},
		},
		{
			name: "truncated output",
			args: []string{"x.a", "-o"},
			want: ScanResult{InputLibraries: []string{"x.a"}, Truncated: FlagOutput},
		},
		{
			name: "truncated dependency info",
			args: []string{"-o", "out.a", "-filelist", "f", "-dependency_info"},
			want: ScanResult{Output: "out.a", FileList: "f", Truncated: FlagDependencyInfo},
		},
		{
			name: "empty",
			args: nil,
			want: ScanResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scan(tt.args))
		})
	}
}

func TestScan_DoesNotMutateArgs(t *testing.T) {
	args := []string{"-o", "out.a", "a.a", "b.a"}
	res := Scan(args)
	res.InputLibraries[0] = "changed.a"

	assert.Equal(t, []string{"-o", "out.a", "a.a", "b.a"}, args)
}
