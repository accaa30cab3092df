// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// Harvester collects a task's declared outputs after the native tool ran.
//
// Only declared outputs are collected; libtool's temporary files are never
// looked at.
type Harvester struct {
	// BaseDir resolves relative output paths.
	BaseDir string
}

// NewHarvester creates a new Harvester with the given base directory.
func NewHarvester(baseDir string) *Harvester {
	return &Harvester{BaseDir: baseDir}
}

// Harvest reads every declared output of task, in declaration order.
//
// Returns an error if a declared output is missing (the tool claimed success
// without producing it) or is a directory.
func (h *Harvester) Harvest(task *Task) (*ArtifactSet, error) {
	if task == nil {
		return nil, fmt.Errorf("task is nil")
	}

	artifacts := make([]Artifact, 0, len(task.Outputs))
	for _, out := range task.Outputs {
		fullPath := out.Path
		if !filepath.IsAbs(fullPath) {
			fullPath = filepath.Join(h.BaseDir, fullPath)
		}

		info, err := os.Stat(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("declared %s does not exist: %s", out.Role, out.Path)
			}
			return nil, fmt.Errorf("stat %s %q: %w", out.Role, out.Path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("declared %s is a directory: %s", out.Role, out.Path)
		}

		content, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s %q: %w", out.Role, out.Path, err)
		}

		artifacts = append(artifacts, Artifact{
			Role:    out.Role,
			Path:    out.Path,
			Content: content,
		})
	}

	return &ArtifactSet{Artifacts: artifacts}, nil
}
