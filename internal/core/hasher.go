// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"path/filepath"
)

// TaskHash is the cache key of a libtool invocation.
//
// Includes: mode kind, native tool command, passthrough flags, output base
// name, input base names and contents in build order.
// Excludes: absolute paths, timestamps, machine-specific data.
type TaskHash string

// TaskHasher computes deterministic hashes for libtool invocations.
//
// Every component is length-prefixed so that no two distinct HashInputs
// share an encoding.
type TaskHasher struct{}

// NewTaskHasher creates a new TaskHasher.
func NewTaskHasher() *TaskHasher {
	return &TaskHasher{}
}

// HashInput contains all components required for computing a TaskHash.
type HashInput struct {
	Kind ModeKind

	// Tool is the native command line prefix, e.g. ["xcrun", "libtool"].
	Tool []string

	// Flags are the passthrough arguments in command-line order.
	Flags []string

	// Output is the requested output path. Only its base name is hashed.
	Output string

	// Inputs is the resolved InputSet in build order.
	Inputs *InputSet
}

// ComputeHash computes a deterministic TaskHash from the given inputs.
//
// Encoding order:
//  1. Mode kind
//  2. Tool (count, then each element)
//  3. Flags (count, then each element, order preserved)
//  4. Output base name
//  5. Inputs (count, then base name + content for each, order preserved)
func (h *TaskHasher) ComputeHash(input HashInput) TaskHash {
	hasher := sha256.New()

	writeField(hasher, []byte(input.Kind))

	writeCount(hasher, len(input.Tool))
	for _, t := range input.Tool {
		writeField(hasher, []byte(t))
	}

	// Flag order matters to libtool, so no sorting here.
	writeCount(hasher, len(input.Flags))
	for _, f := range input.Flags {
		writeField(hasher, []byte(f))
	}

	writeField(hasher, []byte(filepath.Base(input.Output)))

	inputCount := 0
	if input.Inputs != nil {
		inputCount = len(input.Inputs.Inputs)
	}
	writeCount(hasher, inputCount)
	if input.Inputs != nil {
		for _, inp := range input.Inputs.Inputs {
			writeField(hasher, []byte(filepath.Base(inp.Path)))
			writeField(hasher, inp.Content)
		}
	}

	return TaskHash(hex.EncodeToString(hasher.Sum(nil)))
}

// writeField writes an 8-byte big-endian length prefix followed by data.
func writeField(h hash.Hash, data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	h.Write(prefix[:])
	h.Write(data)
}

func writeCount(h hash.Hash, n int) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(n))
	h.Write(prefix[:])
}

// String returns the string representation of the TaskHash.
func (t TaskHash) String() string {
	return string(t)
}
