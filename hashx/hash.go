// Package hashx provides the deterministic content hash used to detect
// changes in materialized ERP entities.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash computes the canonical SHA-256 digest of v, returned as a 64-hex-char
// string. Two values that are structurally equal after JSON round-tripping
// (same keys, same array order, same scalars) always hash identically,
// regardless of the original key order or struct field order.
//
// Normalization relies on Go's own behavior: marshaling a value, then
// unmarshaling it into interface{}, collapses it to maps/slices/scalars;
// re-marshaling a map[string]interface{} always sorts its keys
// alphabetically, recursively, which is exactly the canonical form this
// hash needs. Array order and string contents pass through unchanged.
func Hash(v interface{}) (string, error) {
	canonical, err := normalize(v)
	if err != nil {
		return "", fmt.Errorf("hashx: normalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash is like Hash but panics on error; it is meant for call sites
// hashing values that are already known-good JSON (e.g. freshly transformed
// entities), never for hashing arbitrary caller input.
func MustHash(v interface{}) string {
	h, err := Hash(v)
	if err != nil {
		panic(err)
	}
	return h
}

// normalize returns the canonical JSON encoding of v: sorted object keys at
// every nesting level, array order preserved, numbers in Go's canonical
// encoding/json form.
func normalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	return canonical, nil
}

// Equal reports whether two digests are identical. Empty or missing hashes
// never compare equal, even to each other.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b
}
