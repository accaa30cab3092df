// Package core defines the domain models for cache-aware libtool execution.
package core

// Input represents a resolved file whose content contributes to the cache key.
type Input struct {
	// Path is the path as given by the build system or the filelist.
	Path string

	// Content is the raw file content.
	// Used for computing the cache key; file metadata is excluded.
	Content []byte
}

// InputSet represents the complete set of resolved inputs for a task.
//
// Unlike a glob expansion, order is significant: libtool places members in
// the archive in the order it receives them, so the set keeps build order.
type InputSet struct {
	Inputs []Input
}
