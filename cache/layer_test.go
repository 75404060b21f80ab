package cache

import (
	"context"
	"testing"
	"time"

	"erpcache.eve.dev/kv"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayer(t *testing.T) *Layer {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLayer(kv.NewFromClient(client), nil)
}

func TestReadHashOnAbsentEntity(t *testing.T) {
	layer := newTestLayer(t)
	entry, err := layer.ReadHash(context.Background(), Family("product"), "WEB-ITM-0002")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestWriteBothThenReadHashAndSimple(t *testing.T) {
	layer := newTestLayer(t)
	ctx := context.Background()

	value := []byte(`{"name":"WEB-ITM-0002"}`)
	require.NoError(t, layer.WriteBoth(ctx, "product", "WEB-ITM-0002", value, "deadbeef", 1))

	entry, err := layer.ReadHash(ctx, "product", "WEB-ITM-0002")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "deadbeef", entry.DataHash)
	assert.Equal(t, int64(1), entry.Version)
	assert.JSONEq(t, string(value), string(entry.Data))

	simple, err := layer.ReadSimple(ctx, "product", "WEB-ITM-0002")
	require.NoError(t, err)
	assert.JSONEq(t, string(value), string(simple))
}

func TestBumpVersionIncrementsAtomically(t *testing.T) {
	layer := newTestLayer(t)
	ctx := context.Background()

	require.NoError(t, layer.WriteBoth(ctx, "product", "X", []byte(`{}`), "h1", 1))

	v, err := layer.BumpVersion(ctx, "product", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = layer.BumpVersion(ctx, "product", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestBumpVersionOnMissingEntryStartsFromZero(t *testing.T) {
	layer := newTestLayer(t)
	v, err := layer.BumpVersion(context.Background(), "product", "ghost")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestWriteBothRespectsPerFamilyTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	layer := NewLayer(kv.NewFromClient(client), map[string]time.Duration{"stock": time.Hour})
	ctx := context.Background()

	require.NoError(t, layer.WriteBoth(ctx, "stock", "X", []byte(`[1,0,0]`), "h", 1))
	mr.FastForward(2 * time.Hour)

	simple, err := layer.ReadSimple(ctx, "stock", "X")
	require.NoError(t, err)
	assert.Nil(t, simple)
}
