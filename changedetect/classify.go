// Package changedetect classifies a proposed entity value against the
// current cache state to decide whether a change has actually occurred.
package changedetect

import (
	"bytes"
	"encoding/json"

	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/hashx"
)

// Outcome is the result of classifying a candidate value.
type Outcome string

const (
	// Create means no hash entry exists yet: this is a first-time ingest.
	Create Outcome = "CREATE"
	// NoChange means the candidate matches both the hash entry and the
	// simple key: nothing to do.
	NoChange Outcome = "NO_CHANGE"
	// Mismatch means the candidate's hash differs from the stored hash: a
	// genuine content change.
	Mismatch Outcome = "MISMATCH"
	// SilentDrift means the hash entry still matches the candidate's hash,
	// but the simple key has been hand-edited to something else. Rare;
	// indicates manual operator intervention on the simple key.
	SilentDrift Outcome = "SILENT_DRIFT"
)

// Classify implements spec.md §4.5's decision table. simple is the current
// value at the simple key (nil if absent); hashEntry is the current hash
// entry (nil if absent). candidate is the freshly transformed value being
// considered for write.
func Classify(candidate interface{}, hashEntry *cache.Entry, simple json.RawMessage) (Outcome, string, error) {
	newHash, err := hashx.Hash(candidate)
	if err != nil {
		return "", "", err
	}

	if hashEntry == nil {
		return Create, newHash, nil
	}

	if hashEntry.DataHash == newHash {
		if simple == nil || !deepEqual(simple, candidate) {
			return SilentDrift, newHash, nil
		}
		return NoChange, newHash, nil
	}

	return Mismatch, newHash, nil
}

// deepEqual reports whether the raw simple-key value is structurally equal
// to candidate, by comparing their canonical JSON encodings.
func deepEqual(simple json.RawMessage, candidate interface{}) bool {
	var simpleGeneric interface{}
	if err := json.Unmarshal(simple, &simpleGeneric); err != nil {
		return false
	}

	simpleCanonical, err := json.Marshal(simpleGeneric)
	if err != nil {
		return false
	}

	candidateRaw, err := json.Marshal(candidate)
	if err != nil {
		return false
	}
	var candidateGeneric interface{}
	if err := json.Unmarshal(candidateRaw, &candidateGeneric); err != nil {
		return false
	}
	candidateCanonical, err := json.Marshal(candidateGeneric)
	if err != nil {
		return false
	}

	return bytes.Equal(simpleCanonical, candidateCanonical)
}
