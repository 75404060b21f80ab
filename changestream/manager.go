// Package changestream implements the append-only per-family change log
// clients replay by cursor. There is no consumer-group abstraction: each
// client tracks its own cursor and the server only filters (see syncapi).
package changestream

import (
	"context"
	"fmt"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/kv"

	"github.com/google/uuid"
)

// Change is one entry appended to a family's stream.
type Change struct {
	StreamID       string
	EntityID       string
	DataHash       string
	Version        int64
	IdempotencyKey string
}

// Manager appends to and reads from per-family streams named
// "<family>_changes".
type Manager struct {
	store *kv.Store
}

// NewManager builds a Manager over store.
func NewManager(store *kv.Store) *Manager {
	return &Manager{store: store}
}

func streamName(family cache.Family) string {
	return fmt.Sprintf("%s_changes", family)
}

// Append attaches a random idempotency key to (entityID, dataHash, version)
// and appends it to the family's stream, returning the assigned id. The
// assigned stream id becomes the client-visible cursor.
func (m *Manager) Append(ctx context.Context, family cache.Family, entityID, dataHash string, version int64) (string, error) {
	key := uuid.New().String()

	id, err := m.store.XAdd(ctx, streamName(family), map[string]interface{}{
		"entity_type":     string(family),
		"entity_id":       entityID,
		"data_hash":       dataHash,
		"version":         version,
		"idempotency_key": key,
	})
	if err != nil {
		return "", apierrors.Wrap(apierrors.Transient, string(family)+":"+entityID, err)
	}
	return id, nil
}

// Read returns up to count entries from family's stream in ascending id
// order, starting strictly after fromID ("0" reads from the beginning).
func (m *Manager) Read(ctx context.Context, family cache.Family, fromID string, count int64) ([]Change, error) {
	entries, err := m.store.XRead(ctx, streamName(family), fromID, count)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, string(family), err)
	}

	changes := make([]Change, len(entries))
	for i, e := range entries {
		changes[i] = toChange(e)
	}
	return changes, nil
}

func toChange(e kv.StreamEntry) Change {
	version, _ := parseInt64(fmt.Sprintf("%v", e.Fields["version"]))
	return Change{
		StreamID:       e.ID,
		EntityID:       fmt.Sprintf("%v", e.Fields["entity_id"]),
		DataHash:       fmt.Sprintf("%v", e.Fields["data_hash"]),
		Version:        version,
		IdempotencyKey: fmt.Sprintf("%v", e.Fields["idempotency_key"]),
	}
}

func parseInt64(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
