// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// InputResolver turns a Task's declared inputs into an InputSet.
//
// For library creation the object list comes from the filelist manifest;
// for universal binaries the inputs are the libraries named on the command
// line. Either way every input must exist and is read by content.
type InputResolver struct {
	// BaseDir is the working directory for resolving relative paths.
	BaseDir string
}

// NewInputResolver creates a new InputResolver with the given base directory.
func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve reads the manifest (if any) and the content of every input.
//
// The task's Inputs are replaced with the manifest entries when Manifest is
// set. Order is preserved and duplicates are kept.
func (r *InputResolver) Resolve(task *Task) (*InputSet, error) {
	if task == nil {
		return nil, fmt.Errorf("task is nil")
	}

	if task.Manifest != "" {
		paths, err := r.ReadFileList(task.Manifest)
		if err != nil {
			return nil, err
		}
		task.Inputs = paths
	}

	inputs := make([]Input, 0, len(task.Inputs))
	for _, p := range task.Inputs {
		content, err := os.ReadFile(r.abs(p))
		if err != nil {
			return nil, fmt.Errorf("reading input %q: %w", p, err)
		}
		inputs = append(inputs, Input{Path: p, Content: content})
	}

	return &InputSet{Inputs: inputs}, nil
}

// ReadFileList parses a libtool filelist: one object path per line.
//
// Surrounding whitespace is trimmed and blank lines are skipped. The flag
// value may take the native "listfile,dirname" form, in which case dirname
// is prepended to every entry.
func (r *InputResolver) ReadFileList(path string) ([]string, error) {
	listFile, dir, _ := strings.Cut(path, ",")
	data, err := os.ReadFile(r.abs(listFile))
	if err != nil {
		return nil, fmt.Errorf("reading filelist %q: %w", path, err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parsing filelist %q: %w", path, err)
	}

	lines = lo.Filter(lines, func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})
	return lo.Map(lines, func(line string, _ int) string {
		entry := strings.TrimSpace(line)
		if dir != "" {
			return filepath.Join(dir, entry)
		}
		return entry
	}), nil
}

func (r *InputResolver) abs(p string) string {
	if filepath.IsAbs(p) || r.BaseDir == "" {
		return p
	}
	return filepath.Join(r.BaseDir, p)
}
