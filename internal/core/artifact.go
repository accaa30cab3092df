// Package core defines the domain models for cache-aware libtool execution.
package core

// ArtifactRole names what an artifact is for, independent of where the
// current build wants it written.
//
// The string values are persisted in cache entries; do not rename.
type ArtifactRole string

const (
	// RoleOutput is the static library requested with -o.
	RoleOutput ArtifactRole = "output"

	// RoleDependencyInfo is the file requested with -dependency_info.
	RoleDependencyInfo ArtifactRole = "dependency_info"
)

// Artifact represents a file produced by the native tool and declared by
// the task.
type Artifact struct {
	Role ArtifactRole

	// Path is where the file was read from.
	Path string

	Content []byte
}

// ArtifactSet represents the complete set of artifacts produced by a task,
// in the task's declared output order.
type ArtifactSet struct {
	Artifacts []Artifact
}
