package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex sha256 of the trace's canonical JSON.
//
// Two invocations that took the same decisions produce the same hash, which
// makes traces from different machines comparable at a glance.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
