// Package webhook implements the single detect-and-commit entry point
// shared by the fast-path ingress, the legacy price endpoint, and full
// refresh: validate, fetch+transform, detect, and on change commit both
// caches and append a stream entry.
package webhook

import (
	"context"
	"encoding/json"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/changedetect"
	"erpcache.eve.dev/changestream"
	"erpcache.eve.dev/common"
)

// Result is what process(family, payload) returns to its caller — never
// the value itself, per spec.md §4.8.
type Result struct {
	Changed  bool
	Version  int64
	StreamID string // empty when Changed is false
}

// Handler wires the cache layer, change detector, and stream manager into
// the shared detect-and-commit routine.
type Handler struct {
	cacheLayer *cache.Layer
	streams    *changestream.Manager
	log        *common.ContextLogger
}

// NewHandler builds a Handler.
func NewHandler(cacheLayer *cache.Layer, streams *changestream.Manager, log *common.ContextLogger) *Handler {
	if log == nil {
		log = common.NewContextLogger(nil, map[string]interface{}{"component": "webhook"})
	}
	return &Handler{cacheLayer: cacheLayer, streams: streams, log: log}
}

// Process runs the shared pipeline for one entity: read current state,
// classify the candidate against it, and on CREATE/MISMATCH/SILENT_DRIFT
// commit both caches and append a stream entry. NO_CHANGE is a no-op.
//
// Webhooks are idempotent by value: replaying the same candidate for the
// same (family, id) yields NO_CHANGE and does not append (P5).
func (h *Handler) Process(ctx context.Context, family cache.Family, id string, candidate interface{}) (Result, error) {
	entry, err := h.cacheLayer.ReadHash(ctx, family, id)
	if err != nil {
		return Result{}, err
	}

	simple, err := h.cacheLayer.ReadSimple(ctx, family, id)
	if err != nil {
		return Result{}, err
	}

	outcome, newHash, err := changedetect.Classify(candidate, entry, simple)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Internal, string(family)+":"+id, err)
	}

	logger := h.log.WithFields(map[string]interface{}{
		"family":  string(family),
		"id":      id,
		"outcome": string(outcome),
	})

	if outcome == changedetect.NoChange {
		logger.Debug("no change detected")
		return Result{Changed: false}, nil
	}

	value, err := json.Marshal(candidate)
	if err != nil {
		return Result{}, apierrors.Internalf("webhook: marshal candidate for %s:%s: %v", family, id, err)
	}

	version, err := h.nextVersion(ctx, family, id, entry)
	if err != nil {
		return Result{}, err
	}

	if err := h.cacheLayer.WriteBoth(ctx, family, id, value, newHash, version); err != nil {
		return Result{}, err
	}

	streamID, err := h.streams.Append(ctx, family, id, newHash, version)
	if err != nil {
		return Result{}, err
	}

	logger.WithField("version", version).Info("entity changed")

	return Result{Changed: true, Version: version, StreamID: streamID}, nil
}

// Delete runs the shared pipeline with the canonical deletion candidate
// (I7) for (family, id): soft-deletes the entity by recording a tagged
// "deleted" value and appending its deletion marker to the stream.
func (h *Handler) Delete(ctx context.Context, family cache.Family, id string) (Result, error) {
	return h.Process(ctx, family, id, cache.DeletionCandidate(id))
}

// nextVersion starts new entities at 1 and bumps existing ones atomically,
// falling back to existing.Version + 1 if the hash entry vanished before
// the bump restarted its count.
func (h *Handler) nextVersion(ctx context.Context, family cache.Family, id string, existing *cache.Entry) (int64, error) {
	if existing == nil {
		return 1, nil
	}
	version, err := h.cacheLayer.BumpVersion(ctx, family, id)
	if err != nil {
		return 0, err
	}
	if version <= existing.Version {
		version = existing.Version + 1
	}
	return version, nil
}
