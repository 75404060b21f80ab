// Package cache implements the two coexisting key shapes erpcache keeps per
// (family, id): a versioned hash entry used for change detection, and a
// raw simple key used by legacy reads and as the drift-detection witness.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/kv"
)

// Family names a class of cached entity (product, price, stock, hero,
// bundle, home, message, ...). It is a plain string rather than an enum so
// new families never require a core code change.
type Family string

// Entry is the field map stored at hash:<family>:<id>.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	DataHash  string          `json:"data_hash"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int64           `json:"version"`
}

// Layer exposes the readHash/readSimple/writeBoth/bumpVersion operations
// the core depends on, backed by a kv.Store.
type Layer struct {
	store *kv.Store
	ttl   map[string]time.Duration
}

// NewLayer builds a Layer over store. ttl maps a family name to its
// persistence TTL (0 = persistent); families absent from the map default
// to persistent as well.
func NewLayer(store *kv.Store, ttl map[string]time.Duration) *Layer {
	if ttl == nil {
		ttl = map[string]time.Duration{}
	}
	return &Layer{store: store, ttl: ttl}
}

func hashKey(family Family, id string) string {
	return fmt.Sprintf("hash:%s:%s", family, id)
}

func simpleKey(family Family, id string) string {
	return fmt.Sprintf("%s:%s", family, id)
}

// ReadHash returns the hash entry for (family, id), or (nil, nil) if none
// exists yet.
func (l *Layer) ReadHash(ctx context.Context, family Family, id string) (*Entry, error) {
	fields, err := l.store.HGetAll(ctx, hashKey(family, id))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, string(family)+":"+id, err)
	}

	version, err := parseInt64(fields["version"])
	if err != nil {
		return nil, apierrors.Internalf("cache: corrupt version field for %s:%s: %v", family, id, err)
	}

	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return &Entry{
		Data:      json.RawMessage(fields["data"]),
		DataHash:  fields["data_hash"],
		UpdatedAt: updatedAt,
		Version:   version,
	}, nil
}

// ReadSimple returns the raw value at the simple key, or (nil, nil) if none
// exists.
func (l *Layer) ReadSimple(ctx context.Context, family Family, id string) (json.RawMessage, error) {
	val, err := l.store.Get(ctx, simpleKey(family, id))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, string(family)+":"+id, err)
	}
	return json.RawMessage(val), nil
}

// WriteBoth writes the hash entry and then the simple key, in that order
// (the ordering discipline that keeps crash recovery safe without
// transactions — see §5). Callers treat this as logically atomic even
// though the two writes are not.
func (l *Layer) WriteBoth(ctx context.Context, family Family, id string, value json.RawMessage, dataHash string, version int64) error {
	now := time.Now().UTC()

	fields := map[string]interface{}{
		"data":       string(value),
		"data_hash":  dataHash,
		"updated_at": now.Format(time.RFC3339Nano),
		"version":    fmt.Sprintf("%d", version),
	}
	if err := l.store.HSetFields(ctx, hashKey(family, id), fields); err != nil {
		return apierrors.Wrap(apierrors.Transient, string(family)+":"+id, err)
	}

	ttl := l.ttl[string(family)]
	if err := l.store.Set(ctx, simpleKey(family, id), string(value), ttl); err != nil {
		return apierrors.Wrap(apierrors.Transient, string(family)+":"+id, err)
	}

	return nil
}

// BumpVersion atomically increments the hash entry's version field via
// hincrby. If the hash entry vanished between a prior read and this call,
// hincrby initializes the field from 0 and returns 1; webhook.Handler's
// nextVersion then falls back to the previously read version + 1.
func (l *Layer) BumpVersion(ctx context.Context, family Family, id string) (int64, error) {
	v, err := l.store.HIncrBy(ctx, hashKey(family, id), "version", 1)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.Transient, string(family)+":"+id, err)
	}
	return v, nil
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
