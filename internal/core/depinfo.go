package core

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Dependency info files written by libtool and ld64 are a sequence of
// records: one opcode byte followed by a NUL-terminated path or string.
const (
	depInfoVersion  byte = 0x00
	depInfoInput    byte = 0x10
	depInfoNotFound byte = 0x11
	depInfoOutput   byte = 0x40
)

// Placeholders stored in cached dependency info in place of the paths of
// the checkout that built it. The abs- forms stand for the path resolved
// against the working directory.
const (
	placeholderPrefix    = "@xclibtool:"
	placeholderInput     = placeholderPrefix + "input:"
	placeholderAbsInput  = placeholderPrefix + "abs-input:"
	placeholderOutput    = placeholderPrefix + "output"
	placeholderAbsOutput = placeholderPrefix + "abs-output"
)

type depInfoRecord struct {
	Op    byte
	Value string
}

func parseDependencyInfo(data []byte) ([]depInfoRecord, error) {
	var records []depInfoRecord
	for len(data) > 0 {
		end := bytes.IndexByte(data[1:], 0)
		if end < 0 {
			return nil, fmt.Errorf("unterminated record at opcode 0x%02x", data[0])
		}
		records = append(records, depInfoRecord{Op: data[0], Value: string(data[1 : 1+end])})
		data = data[end+2:]
	}
	return records, nil
}

func encodeDependencyInfo(records []depInfoRecord) []byte {
	var buf bytes.Buffer
	for _, rec := range records {
		buf.WriteByte(rec.Op)
		buf.WriteString(rec.Value)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// relocateForStore rewrites the dependency info artifact so that it names
// the task's inputs and output by position instead of by path. The key
// only covers base names, so an entry may be restored into another
// checkout; expandDependencyInfo puts that checkout's paths back.
//
// Dependency info that cannot be parsed is an error: storing it verbatim
// would hand another checkout stale paths.
func relocateForStore(artifacts *ArtifactSet, task *Task, workDir string) error {
	for i := range artifacts.Artifacts {
		a := &artifacts.Artifacts[i]
		if a.Role != RoleDependencyInfo {
			continue
		}
		records, err := parseDependencyInfo(a.Content)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", a.Path, err)
		}

		raw := map[string]string{}
		abs := map[string]string{}
		remember := func(m map[string]string, path, placeholder string) {
			if _, ok := m[path]; !ok {
				m[path] = placeholder
			}
		}
		for n, p := range task.Inputs {
			remember(raw, p, placeholderInput+strconv.Itoa(n))
			remember(abs, absPath(workDir, p), placeholderAbsInput+strconv.Itoa(n))
		}
		if out := task.OutputPath(RoleOutput); out != "" {
			remember(raw, out, placeholderOutput)
			remember(abs, absPath(workDir, out), placeholderAbsOutput)
		}

		for j := range records {
			switch records[j].Op {
			case depInfoInput, depInfoNotFound, depInfoOutput:
			default:
				continue
			}
			if ph, ok := raw[records[j].Value]; ok {
				records[j].Value = ph
			} else if ph, ok := abs[records[j].Value]; ok {
				records[j].Value = ph
			}
		}
		a.Content = encodeDependencyInfo(records)
	}
	return nil
}

// expandDependencyInfo replaces placeholders with the current task's paths.
// Content without placeholders is returned unchanged.
func expandDependencyInfo(content []byte, task *Task, workDir string) ([]byte, error) {
	if !bytes.Contains(content, []byte(placeholderPrefix)) {
		return content, nil
	}
	records, err := parseDependencyInfo(content)
	if err != nil {
		return nil, err
	}

	for j := range records {
		v := records[j].Value
		switch {
		case v == placeholderOutput:
			records[j].Value = task.OutputPath(RoleOutput)
		case v == placeholderAbsOutput:
			records[j].Value = absPath(workDir, task.OutputPath(RoleOutput))
		case strings.HasPrefix(v, placeholderInput):
			p, err := inputAt(task, strings.TrimPrefix(v, placeholderInput))
			if err != nil {
				return nil, err
			}
			records[j].Value = p
		case strings.HasPrefix(v, placeholderAbsInput):
			p, err := inputAt(task, strings.TrimPrefix(v, placeholderAbsInput))
			if err != nil {
				return nil, err
			}
			records[j].Value = absPath(workDir, p)
		}
	}
	return encodeDependencyInfo(records), nil
}

func inputAt(task *Task, index string) (string, error) {
	n, err := strconv.Atoi(index)
	if err != nil || n < 0 || n >= len(task.Inputs) {
		return "", fmt.Errorf("dependency info refers to input %q of %d", index, len(task.Inputs))
	}
	return task.Inputs[n], nil
}

func absPath(workDir, p string) string {
	if filepath.IsAbs(p) || workDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}
