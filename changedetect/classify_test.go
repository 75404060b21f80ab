package changedetect

import (
	"encoding/json"
	"testing"

	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/hashx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCreateWhenNoHashEntry(t *testing.T) {
	outcome, digest, err := Classify(map[string]interface{}{"name": "item"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Create, outcome)
	assert.NotEmpty(t, digest)
}

func TestClassifyNoChangeWhenHashAndSimpleAgree(t *testing.T) {
	candidate := map[string]interface{}{"name": "item", "price": 10}
	digest, err := hashx.Hash(candidate)
	require.NoError(t, err)

	entry := &cache.Entry{DataHash: digest}
	simple := mustJSON(t, candidate)

	outcome, newDigest, err := Classify(candidate, entry, simple)
	require.NoError(t, err)
	assert.Equal(t, NoChange, outcome)
	assert.Equal(t, digest, newDigest)
}

func TestClassifyMismatchWhenHashDiffers(t *testing.T) {
	entry := &cache.Entry{DataHash: "stale-hash"}
	candidate := map[string]interface{}{"name": "item-v2"}

	outcome, _, err := Classify(candidate, entry, mustJSON(t, candidate))
	require.NoError(t, err)
	assert.Equal(t, Mismatch, outcome)
}

func TestClassifySilentDriftWhenSimpleKeyHandEdited(t *testing.T) {
	candidate := map[string]interface{}{"name": "item"}
	digest, err := hashx.Hash(candidate)
	require.NoError(t, err)

	entry := &cache.Entry{DataHash: digest}
	// simulate a manual rewrite of the simple key to something else
	tamperedSimple := mustJSON(t, map[string]interface{}{"name": "tampered"})

	outcome, newDigest, err := Classify(candidate, entry, tamperedSimple)
	require.NoError(t, err)
	assert.Equal(t, SilentDrift, outcome)
	assert.Equal(t, digest, newDigest)
}

func TestClassifySilentDriftWhenSimpleKeyMissing(t *testing.T) {
	candidate := map[string]interface{}{"name": "item"}
	digest, err := hashx.Hash(candidate)
	require.NoError(t, err)

	entry := &cache.Entry{DataHash: digest}

	outcome, _, err := Classify(candidate, entry, nil)
	require.NoError(t, err)
	assert.Equal(t, SilentDrift, outcome)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
