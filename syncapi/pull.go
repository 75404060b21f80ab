// Package syncapi implements the client-facing delta-pull contract
// (§4.11): read the stream from a client cursor, deliver the current cache
// state (data or a deletion marker) once for each entity the page names,
// and return a bounded page of deltas plus the cursor to resume from.
package syncapi

import (
	"context"
	"encoding/json"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/changestream"
)

// overfetchFactor is how much further past maxEntries the server reads
// from the stream to have headroom for entries the filter drops.
const overfetchFactor = 3

// Delta is one entry in a Pull response: either a current data snapshot
// or a deletion marker.
type Delta struct {
	EntityID string          `json:"entityId"`
	Version  int64           `json:"version,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Deleted  bool            `json:"deleted,omitempty"`
}

// Response is returned to the client for one Pull call.
type Response struct {
	Entries      []Delta `json:"entries"`
	NextStreamID string  `json:"next_stream_id"`
	More         bool    `json:"more"`
}

// Service resolves a client's cursor against the shared change stream
// and cache layer.
type Service struct {
	cacheLayer *cache.Layer
	streams    *changestream.Manager
}

// NewService builds a Service.
func NewService(cacheLayer *cache.Layer, streams *changestream.Manager) *Service {
	return &Service{cacheLayer: cacheLayer, streams: streams}
}

// Pull implements the three-step server pipeline from §4.11: read with
// overfetch headroom, filter each entry against current cache state,
// truncate at maxEntries.
func (s *Service) Pull(ctx context.Context, family cache.Family, fromStreamID string, maxEntries int64) (Response, error) {
	if maxEntries <= 0 {
		return Response{Entries: []Delta{}, NextStreamID: fromStreamID, More: false}, nil
	}

	changes, err := s.streams.Read(ctx, family, fromStreamID, maxEntries*overfetchFactor)
	if err != nil {
		return Response{}, err
	}

	entries := make([]Delta, 0, maxEntries)
	cursor := fromStreamID
	more := false

	// Two or more stream entries in the window can name the same entity
	// (re-converged drift, a flip-flopping value, a crash-recovery
	// duplicate). Only the first occurrence of an id is resolved against
	// current cache state and delivered; later occurrences of the same id
	// in this response are dropped — the client already observed an
	// equivalent-or-newer state via the first delivery (§4.11, P6).
	delivered := make(map[string]bool, len(changes))

	for _, change := range changes {
		if int64(len(entries)) >= maxEntries {
			more = true
			break
		}

		if !delivered[change.EntityID] {
			delta, include, err := s.currentDelta(ctx, family, change.EntityID)
			if err != nil {
				return Response{}, err
			}
			if include {
				entries = append(entries, delta)
			}
			delivered[change.EntityID] = true
		}

		cursor = change.StreamID
	}

	return Response{Entries: entries, NextStreamID: cursor, More: more}, nil
}

// currentDelta resolves entityID's current cache state into the delta a
// client converges on: a deletion marker if the current hash entry is
// tagged deleted, otherwise its current data and version. An entity with
// no current hash entry at all has nothing to deliver.
func (s *Service) currentDelta(ctx context.Context, family cache.Family, entityID string) (Delta, bool, error) {
	hashEntry, err := s.cacheLayer.ReadHash(ctx, family, entityID)
	if err != nil {
		return Delta{}, false, err
	}
	if hashEntry == nil {
		return Delta{}, false, nil
	}

	deletionHash, err := cache.DeletionDataHash(entityID)
	if err != nil {
		return Delta{}, false, apierrors.Internalf("syncapi: compute deletion hash for %s: %v", entityID, err)
	}

	if hashEntry.DataHash == deletionHash {
		return Delta{EntityID: entityID, Deleted: true}, true, nil
	}
	return Delta{EntityID: entityID, Version: hashEntry.Version, Data: hashEntry.Data}, true, nil
}
