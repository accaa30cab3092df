// Package core defines the domain models for cache-aware libtool execution.
package core

// ModeKind is the stable discriminator of a Mode.
//
// The string values are part of the cache key; do not rename.
type ModeKind string

const (
	ModeCreateLibrary         ModeKind = "create-library"
	ModeCreateUniversalBinary ModeKind = "create-universal-binary"
)

// Mode is the closed set of libtool operations the wrapper understands.
//
// The only implementations are CreateLibrary and CreateUniversalBinary.
// Consumers switch on the concrete type:
//
//	switch m := mode.(type) {
//	case CreateLibrary:
//	case CreateUniversalBinary:
//	}
type Mode interface {
	// Kind returns the discriminator of the concrete mode.
	Kind() ModeKind

	isMode()
}

// CreateLibrary archives the object files listed in a manifest into a static
// library, writing dependency tracking information alongside it.
//
// All three fields are required and non-empty.
type CreateLibrary struct {
	// Output is the static library to produce.
	Output string

	// FileList is the manifest of object files, one path per line.
	FileList string

	// DependencyInfo is the dependency tracking file the build system reads.
	DependencyInfo string
}

func (CreateLibrary) Kind() ModeKind { return ModeCreateLibrary }

func (CreateLibrary) isMode() {}

// CreateUniversalBinary merges several static libraries into one.
//
// Output is required; Inputs is non-empty and keeps the order given on the
// command line.
type CreateUniversalBinary struct {
	Output string
	Inputs []string
}

func (CreateUniversalBinary) Kind() ModeKind { return ModeCreateUniversalBinary }

func (CreateUniversalBinary) isMode() {}

// Invocation carries what the executor needs from the raw command line in
// addition to the Mode: the native arguments for a fallback run and the
// flags the scanner did not interpret.
type Invocation struct {
	// Args are the arguments passed to the wrapper, excluding the program name.
	Args []string

	// Passthrough are arguments that were neither a recognized flag, a flag
	// value, nor a library input. They contribute to the cache key.
	Passthrough []string
}
