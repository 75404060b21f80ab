// Package kv adapts Redis to the minimal primitive set erpcache's core
// relies on: string get/set, hash fields with an atomic counter, sets,
// append-only streams, and TTL control. Every operation is single-key
// atomic; multi-key sequences are the caller's responsibility (see the
// cache package's write ordering).
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client with the primitive operations erpcache needs.
type Store struct {
	client *redis.Client
}

// New creates a Store connected to the Redis/Valkey/DragonflyDB instance at
// url, verifying connectivity with a bounded Ping.
func New(url string, pingTimeout time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kv: parse url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kv: connect: %w", err)
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an already-constructed redis.Client, used by tests
// that point a Store at a miniredis instance.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// ErrNotFound is returned by Get/HGetAll when the key is absent. Callers at
// the cache layer treat this as "entry does not exist yet", not a failure.
var ErrNotFound = fmt.Errorf("kv: key not found")

// Get returns the raw string value of key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return val, nil
}

// Set writes key to value, applying ttl when non-zero (0 means persistent).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// Del removes key. Deleting an absent key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: del %s: %w", key, err)
	}
	return nil
}

// HSet writes a single field in the hash at key.
func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("kv: hset %s.%s: %w", key, field, err)
	}
	return nil
}

// HSetFields writes multiple fields in the hash at key in one round trip.
func (s *Store) HSetFields(ctx context.Context, key string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("kv: hset %s: %w", key, err)
	}
	return nil
}

// HGetAll returns every field of the hash at key. Returns ErrNotFound if
// the hash does not exist.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: hgetall %s: %w", key, err)
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// HIncrBy atomically increments field by n and returns the new value. This
// is the primitive bumpVersion is built on.
func (s *Store) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	val, err := s.client.HIncrBy(ctx, key, field, n).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: hincrby %s.%s: %w", key, field, err)
	}
	return val, nil
}

// SAdd adds members to the unordered set at key.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("kv: sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from the set at key.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("kv: srem %s: %w", key, err)
	}
	return nil
}

// SMembers returns every member of the set at key.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: smembers %s: %w", key, err)
	}
	return members, nil
}

// ZAdd adds member to the sorted set at key with the given score.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("kv: zadd %s: %w", key, err)
	}
	return nil
}

// ZRevRange returns up to count members of the sorted set at key in
// descending score order, the ownership-index access pattern for
// "newest first by timestamp" pagination.
func (s *Store) ZRevRange(ctx context.Context, key string, count int64) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}
	members, err := s.client.ZRevRange(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: zrevrange %s: %w", key, err)
	}
	return members, nil
}

// ZRem removes member from the sorted set at key.
func (s *Store) ZRem(ctx context.Context, key, member string) error {
	if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("kv: zrem %s: %w", key, err)
	}
	return nil
}

// XAdd appends fields to stream and returns the assigned, monotonically
// increasing entry id.
func (s *Store) XAdd(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("kv: xadd %s: %w", stream, err)
	}
	return id, nil
}

// StreamEntry is one record read back from a stream.
type StreamEntry struct {
	ID     string
	Fields map[string]interface{}
}

// XRead reads up to count entries from stream in ascending id order,
// starting strictly after fromID. fromID of "" or "0" reads every entry
// ever appended (modulo pruning), matching the "from = 0" boundary
// behavior.
func (s *Store) XRead(ctx context.Context, stream, fromID string, count int64) ([]StreamEntry, error) {
	if count <= 0 {
		return []StreamEntry{}, nil
	}

	start := "-"
	if fromID != "" && fromID != "0" {
		start = "(" + fromID
	}

	result, err := s.client.XRangeN(ctx, stream, start, "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: xread %s: %w", stream, err)
	}

	entries := make([]StreamEntry, len(result))
	for i, msg := range result {
		entries[i] = StreamEntry{ID: msg.ID, Fields: msg.Values}
	}
	return entries, nil
}

// Expire applies ttl to key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv: expire %s: %w", key, err)
	}
	return nil
}

// Persist removes any TTL on key, making it permanent.
func (s *Store) Persist(ctx context.Context, key string) error {
	if err := s.client.Persist(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: persist %s: %w", key, err)
	}
	return nil
}
