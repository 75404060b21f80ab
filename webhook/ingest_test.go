package webhook

import (
	"context"
	"encoding/json"
	"testing"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/changestream"
	"erpcache.eve.dev/erp"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/transform"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedWarehouseReference writes the ordered reference list the way it is
// actually stored: a single JSON-encoded array, not a set.
func seedWarehouseReference(t *testing.T, store *kv.Store, warehouses ...string) {
	t.Helper()
	raw, err := json.Marshal(warehouses)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), WarehouseReferenceKey, string(raw), 0))
}

// fakeFetcher implements erp.Fetcher with fixed, in-memory responses.
type fakeFetcher struct {
	product       map[string]interface{}
	price         erp.ItemPrice
	stockReported []string
}

func (f *fakeFetcher) FetchProduct(ctx context.Context, id string) (map[string]interface{}, error) {
	return f.product, nil
}
func (f *fakeFetcher) FetchAllProductIndex(ctx context.Context) ([]erp.ProductIndexEntry, error) {
	return nil, nil
}
func (f *fakeFetcher) FetchItemPrice(ctx context.Context, itemCode string) (erp.ItemPrice, error) {
	return f.price, nil
}
func (f *fakeFetcher) FetchItemStockWarehouses(ctx context.Context, itemCode string) ([]string, error) {
	return f.stockReported, nil
}
func (f *fakeFetcher) FetchHeroImageURLs(ctx context.Context) ([]string, error)   { return nil, nil }
func (f *fakeFetcher) FetchBundleImageURLs(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeFetcher) FetchAppHomeRaw(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"banner": "sale"}, nil
}
func (f *fakeFetcher) FetchBlob(ctx context.Context, url string) ([]byte, string, error) {
	return nil, "", nil
}

func newTestIngestor(t *testing.T, fetcher erp.Fetcher) (*Ingestor, *kv.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := kv.NewFromClient(client)
	layer := cache.NewLayer(store, nil)
	streams := changestream.NewManager(store)
	handler := NewHandler(layer, streams, nil)
	transformer := transform.NewTransformer(fetcher, layer, nil)

	return NewIngestor(fetcher, transformer, handler, store), store
}

func TestIngestPriceWritesRetailWholesaleVector(t *testing.T) {
	fetcher := &fakeFetcher{price: erp.ItemPrice{Retail: 12.5, Wholesale: 9}}
	ingestor, store := newTestIngestor(t, fetcher)
	ctx := context.Background()

	result, err := ingestor.Ingest(ctx, "price", "SKU-1")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, int64(1), result.Version)

	simple, err := cache.NewLayer(store, nil).ReadSimple(ctx, cache.FamilyPrice, "SKU-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[12.5,9]`, string(simple))
}

func TestIngestStockMatchesAgainstWarehouseReference(t *testing.T) {
	fetcher := &fakeFetcher{stockReported: []string{"Homs Store - P"}}
	ingestor, store := newTestIngestor(t, fetcher)
	ctx := context.Background()

	seedWarehouseReference(t, store, "Idlib", "Homs")

	result, err := ingestor.Ingest(ctx, "stock", "SKU-2")
	require.NoError(t, err)
	assert.True(t, result.Changed)

	simple, err := cache.NewLayer(store, nil).ReadSimple(ctx, cache.FamilyStock, "SKU-2")
	require.NoError(t, err)
	assert.JSONEq(t, `[0,1]`, string(simple))
}

func TestIngestStockAvailabilityIndexStaysPinnedAcrossReads(t *testing.T) {
	fetcher := &fakeFetcher{stockReported: []string{"Homs"}}
	ingestor, store := newTestIngestor(t, fetcher)
	ctx := context.Background()

	seedWarehouseReference(t, store, "Idlib", "Homs", "Allepo")

	for i := 0; i < 3; i++ {
		reference, err := ReadWarehouseReference(ctx, store)
		require.NoError(t, err)
		require.Equal(t, []string{"Idlib", "Homs", "Allepo"}, reference, "reference order must stay stable across repeated reads")
	}

	result, err := ingestor.Ingest(ctx, "stock", "SKU-3")
	require.NoError(t, err)
	assert.True(t, result.Changed)

	decoded, err := cache.NewLayer(store, nil).ReadSimple(ctx, cache.FamilyStock, "SKU-3")
	require.NoError(t, err)
	var availability []int
	require.NoError(t, json.Unmarshal(decoded, &availability))
	assert.Equal(t, []int{0, 1, 0}, availability, "availability[1] must stay pinned to Homs, the reference's index 1")
}

func TestIngestHomePassesThroughUnchanged(t *testing.T) {
	fetcher := &fakeFetcher{}
	ingestor, store := newTestIngestor(t, fetcher)
	ctx := context.Background()

	result, err := ingestor.Ingest(ctx, "home", "")
	require.NoError(t, err)
	assert.True(t, result.Changed)

	simple, err := cache.NewLayer(store, nil).ReadSimple(ctx, cache.FamilyHome, cache.SingletonID(cache.FamilyHome))
	require.NoError(t, err)
	assert.JSONEq(t, `{"banner":"sale"}`, string(simple))
}

func TestIngestUnknownEntityTypeIsValidationError(t *testing.T) {
	ingestor, _ := newTestIngestor(t, &fakeFetcher{})
	ctx := context.Background()

	_, err := ingestor.Ingest(ctx, "unknown", "x")
	require.Error(t, err)
	assert.Equal(t, apierrors.Validation, apierrors.KindOf(err))
}
