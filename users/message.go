package users

import (
	"context"
	"fmt"
	"time"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/webhook"

	"github.com/google/uuid"
)

// MessageFamily is the cache/stream family messages are stored under.
const MessageFamily = cache.FamilyMessage

// defaultMessagePageLimit bounds a single List call when the
// caller does not supply a smaller one.
const defaultMessagePageLimit = 50

// Message is a user-owned message, stored as a hash entry under
// MessageFamily and indexed for ownership at user:<id>:messages.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Messages implements message create/list/delete over the shared
// webhook pipeline (so every message change rides the same
// detect-and-append mechanics every other family uses) plus a
// per-user ownership index.
type Messages struct {
	kv      *kv.Store
	cache   *cache.Layer
	handler *webhook.Handler
}

// NewMessages builds a Messages store.
func NewMessages(store *kv.Store, cacheLayer *cache.Layer, handler *webhook.Handler) *Messages {
	return &Messages{kv: store, cache: cacheLayer, handler: handler}
}

func messagesIndexKey(userID string) string {
	return fmt.Sprintf("user:%s:messages", userID)
}

// Create appends a new message owned by userID, committing it through
// the shared pipeline (so it lands in message_changes) and indexing it
// under the user's ownership set, newest-first by creation time.
func (m *Messages) Create(ctx context.Context, userID, body string) (*Message, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		UserID:    userID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	candidate := map[string]interface{}{
		"id": msg.ID, "userId": msg.UserID, "body": msg.Body, "createdAt": msg.CreatedAt,
	}
	if _, err := m.handler.Process(ctx, MessageFamily, msg.ID, candidate); err != nil {
		return nil, err
	}

	if err := m.kv.ZAdd(ctx, messagesIndexKey(userID), float64(msg.CreatedAt.UnixNano()), msg.ID); err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, msg.ID, err)
	}

	return msg, nil
}

// Delete soft-deletes a message: the shared pipeline records a deletion
// marker (I7) and appends it to message_changes. The ownership index
// entry is retained so a client's message list still reflects history;
// callers filter deleted messages by reading each entry's Deleted flag.
func (m *Messages) Delete(ctx context.Context, userID, messageID string) error {
	owns, err := m.ownsMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if !owns {
		return apierrors.Forbiddenf("users: %s does not own message %s", userID, messageID)
	}

	_, err = m.handler.Delete(ctx, MessageFamily, messageID)
	return err
}

func (m *Messages) ownsMessage(ctx context.Context, userID, messageID string) (bool, error) {
	members, err := m.kv.ZRevRange(ctx, messagesIndexKey(userID), 1<<20)
	if err != nil {
		return false, apierrors.Wrap(apierrors.Transient, userID, err)
	}
	for _, id := range members {
		if id == messageID {
			return true, nil
		}
	}
	return false, nil
}

// List returns up to limit messages owned by userID, newest first. A
// limit <= 0, or one exceeding defaultMessagePageLimit, is clamped to
// defaultMessagePageLimit — pagination always has an upper bound.
func (m *Messages) List(ctx context.Context, userID string, limit int64) ([]Message, error) {
	if limit <= 0 || limit > defaultMessagePageLimit {
		limit = defaultMessagePageLimit
	}

	ids, err := m.kv.ZRevRange(ctx, messagesIndexKey(userID), limit)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, userID, err)
	}

	messages := make([]Message, 0, len(ids))
	for _, id := range ids {
		raw, err := m.cache.ReadSimple(ctx, MessageFamily, id)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		var msg Message
		if err := jsonUnmarshal(string(raw), &msg); err != nil {
			return nil, apierrors.Internalf("users: corrupt message %s: %v", id, err)
		}
		msg.ID = id // a deletion tombstone's payload carries entity_id, not id
		messages = append(messages, msg)
	}
	return messages, nil
}
