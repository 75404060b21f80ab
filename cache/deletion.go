package cache

import "erpcache.eve.dev/hashx"

// DeletionCandidate builds the canonical value a deletion is recorded as
// (I7): the same shape every caller — webhook, full refresh, the message
// store — must hash to produce the same data_hash for "entity id is
// deleted", regardless of which one observed the deletion first.
func DeletionCandidate(entityID string) map[string]interface{} {
	return map[string]interface{}{"deleted": true, "entity_id": entityID}
}

// DeletionDataHash returns the data_hash a deletion stream entry (or hash
// entry) for entityID carries.
func DeletionDataHash(entityID string) (string, error) {
	return hashx.Hash(DeletionCandidate(entityID))
}
