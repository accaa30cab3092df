package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ExecutionTrace is the deterministic record of the decisions taken for one
// libtool invocation.
//
// Invariants:
//   - Captures the mode and an ordered list of events.
//   - Contains logical decisions only: no timestamps, durations, or error text.
//
// The trace is observational only and must never affect execution behavior.
type ExecutionTrace struct {
	Mode   string       `json:"mode"`
	Events []TraceEvent `json:"events"`
}

// TraceEventKind is the stable discriminator for TraceEvent.
//
// The string values are part of the trace's canonical bytes; do not rename.
type TraceEventKind string

const (
	EventCacheBypassed     TraceEventKind = "CacheBypassed"
	EventCacheHit          TraceEventKind = "CacheHit"
	EventCacheMiss         TraceEventKind = "CacheMiss"
	EventArtifactsRestored TraceEventKind = "ArtifactsRestored"
	EventNativeInvoked     TraceEventKind = "NativeInvoked"
	EventNativeFailed      TraceEventKind = "NativeFailed"
	EventArtifactsStored   TraceEventKind = "ArtifactsStored"
)

// TraceEvent is a single logical decision.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`

	// Key is the cache key the decision refers to, when one was computed.
	Key string `json:"key,omitempty"`

	// Reason is a stable reason code (e.g. "Disabled", "InputsUnreadable").
	Reason string `json:"reason,omitempty"`

	// Artifacts lists artifact roles involved in the event.
	Artifacts []string `json:"artifacts,omitempty"`
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Mode == "" {
		return errors.New("mode is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		for j, a := range e.Artifacts {
			if a == "" {
				return fmt.Errorf("events[%d].artifacts[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize normalizes and sorts the trace into its canonical form.
//
// Canonicalization rules:
//   - Artifacts are copied and sorted; empty slices become nil.
//   - Events are stably sorted by (kindOrder, key, reason, artifacts).
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Artifacts) == 0 {
			t.Events[i].Artifacts = nil
			continue
		}
		art := make([]string, len(t.Events[i].Artifacts))
		copy(art, t.Events[i].Artifacts)
		sort.Strings(art)
		t.Events[i].Artifacts = art
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return compareStringSlices(a.Artifacts, b.Artifacts)
	})
}

// kindOrder follows the lifecycle of one invocation.
func kindOrder(k TraceEventKind) int {
	switch k {
	case EventCacheBypassed:
		return 10
	case EventCacheHit:
		return 20
	case EventCacheMiss:
		return 30
	case EventArtifactsRestored:
		return 40
	case EventNativeInvoked:
		return 50
	case EventNativeFailed:
		return 60
	case EventArtifactsStored:
		return 70
	default:
		return 1000
	}
}

func compareStringSlices(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	c := ExecutionTrace{Mode: t.Mode, Events: make([]TraceEvent, len(t.Events))}
	copy(c.Events, t.Events)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// WriteFile writes the canonical JSON encoding to path, replacing any
// previous trace atomically.
func (t ExecutionTrace) WriteFile(path string) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return os.Rename(tmpName, path)
}
