// Package core defines the domain models for cache-aware libtool execution.
package core

import "fmt"

// Task is the resolved unit of work derived from a Mode.
//
// It lists the files whose content identifies the build and the files the
// build is expected to produce. Paths are kept exactly as the build system
// passed them; the hasher only ever looks at base names.
type Task struct {
	// Kind is the mode the task was derived from.
	Kind ModeKind

	// Manifest is the filelist path for library creation, empty otherwise.
	// The manifest itself is not an input; the objects it lists are.
	Manifest string

	// Inputs are input paths in build order. For library creation they are
	// filled from Manifest by the InputResolver.
	Inputs []string

	// Outputs are the artifacts the task produces, keyed by role.
	Outputs []OutputSpec
}

// OutputSpec declares one expected artifact of a task.
type OutputSpec struct {
	Role ArtifactRole
	Path string
}

// TaskForMode translates a Mode into a Task.
func TaskForMode(mode Mode) (*Task, error) {
	switch m := mode.(type) {
	case CreateLibrary:
		return &Task{
			Kind:     m.Kind(),
			Manifest: m.FileList,
			Outputs: []OutputSpec{
				{Role: RoleOutput, Path: m.Output},
				{Role: RoleDependencyInfo, Path: m.DependencyInfo},
			},
		}, nil
	case CreateUniversalBinary:
		inputs := make([]string, len(m.Inputs))
		copy(inputs, m.Inputs)
		return &Task{
			Kind:    m.Kind(),
			Inputs:  inputs,
			Outputs: []OutputSpec{{Role: RoleOutput, Path: m.Output}},
		}, nil
	case nil:
		return nil, fmt.Errorf("mode is nil")
	default:
		return nil, fmt.Errorf("unsupported mode %T", mode)
	}
}

// OutputPath returns the declared path for role, or "" if the task does not
// produce that role.
func (t *Task) OutputPath(role ArtifactRole) string {
	for _, o := range t.Outputs {
		if o.Role == role {
			return o.Path
		}
	}
	return ""
}
