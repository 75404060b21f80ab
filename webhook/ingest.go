package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/erp"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/materialize"
	"erpcache.eve.dev/transform"
)

// WarehouseReferenceKey is the key the warehouse vector axis is read from
// ("GET /api/stock/warehouses/reference" and the stock materializer both
// consult it; it is seeded and maintained out of band).
//
// The value is a single JSON-encoded []string, not a Redis set. The
// position of each entry is the axis every stock availability vector is
// indexed against, and that position has to stay pinned to the same
// warehouse across reads. SMEMBERS gives no ordering guarantee, so a set
// would let the same key decode into a different axis on every read,
// silently relabeling every client's availability vector.
const WarehouseReferenceKey = "warehouses:reference"

// ReadWarehouseReference loads the ordered warehouse descriptor list, or
// (nil, nil) if it has never been seeded.
func ReadWarehouseReference(ctx context.Context, store *kv.Store) ([]string, error) {
	raw, err := store.Get(ctx, WarehouseReferenceKey)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reference []string
	if err := json.Unmarshal([]byte(raw), &reference); err != nil {
		return nil, fmt.Errorf("webhook: corrupt warehouses reference: %w", err)
	}
	return reference, nil
}

// Ingestor wires the ERP fetcher and transformer in front of Handler,
// implementing spec.md §4.8's full "fetch → transform → detect → persist
// → append" contract for the fast-path webhook entry point. refresh (C9)
// drives the same Handler.Process directly with pre-fetched candidates
// instead, since it already holds an enumerated id set.
type Ingestor struct {
	fetcher     erp.Fetcher
	transformer *transform.Transformer
	handler     *Handler
	kv          *kv.Store
}

// NewIngestor builds an Ingestor.
func NewIngestor(fetcher erp.Fetcher, transformer *transform.Transformer, handler *Handler, store *kv.Store) *Ingestor {
	return &Ingestor{fetcher: fetcher, transformer: transformer, handler: handler, kv: store}
}

// Ingest handles POST /api/webhooks/erpnext: given an entity_type and an
// optional itemCode, fetch the current ERP payload, transform it into a
// candidate, and run it through the shared detect-and-commit pipeline.
//
// Families hero, bundle, and home take no id and address the cache under
// entity_id == family (singleton shape); product, price, and stock are
// keyed by itemCode.
func (in *Ingestor) Ingest(ctx context.Context, entityType, itemCode string) (Result, error) {
	switch cache.Family(entityType) {
	case cache.FamilyProduct:
		return in.ingestProduct(ctx, itemCode)
	case cache.FamilyPrice:
		return in.ingestPrice(ctx, itemCode)
	case cache.FamilyStock:
		return in.ingestStock(ctx, itemCode)
	case cache.FamilyHero:
		return in.ingestHero(ctx)
	case cache.FamilyBundle:
		return in.ingestBundle(ctx)
	case cache.FamilyHome:
		return in.ingestHome(ctx)
	default:
		return Result{}, apierrors.Validationf("webhook: unknown entity_type %q", entityType)
	}
}

func (in *Ingestor) ingestProduct(ctx context.Context, itemCode string) (Result, error) {
	if itemCode == "" {
		return Result{}, apierrors.Validationf("webhook: product ingest requires itemCode")
	}
	raw, err := in.fetcher.FetchProduct(ctx, itemCode)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, fmt.Sprintf("product:%s", itemCode), err)
	}
	candidate, err := in.transformer.Product(ctx, raw)
	if err != nil {
		return Result{}, err
	}
	return in.handler.Process(ctx, cache.FamilyProduct, itemCode, candidate)
}

func (in *Ingestor) ingestPrice(ctx context.Context, itemCode string) (Result, error) {
	if itemCode == "" {
		return Result{}, apierrors.Validationf("webhook: price ingest requires itemCode")
	}
	price, err := in.fetcher.FetchItemPrice(ctx, itemCode)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, fmt.Sprintf("price:%s", itemCode), err)
	}
	return in.handler.Process(ctx, cache.FamilyPrice, itemCode, materialize.Price(price))
}

func (in *Ingestor) ingestStock(ctx context.Context, itemCode string) (Result, error) {
	if itemCode == "" {
		return Result{}, apierrors.Validationf("webhook: stock ingest requires itemCode")
	}
	reported, err := in.fetcher.FetchItemStockWarehouses(ctx, itemCode)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, fmt.Sprintf("stock:%s", itemCode), err)
	}
	referenceList, err := ReadWarehouseReference(ctx, in.kv)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, "warehouses:reference", err)
	}

	availability, unmatched := materialize.Stock(reported, referenceList)
	for _, name := range unmatched {
		in.handler.log.WithField("item_code", itemCode).WithField("warehouse", name).
			Warn("unmatched warehouse name dropped from availability vector")
	}

	return in.handler.Process(ctx, cache.FamilyStock, itemCode, availability)
}

func (in *Ingestor) ingestHero(ctx context.Context) (Result, error) {
	urls, err := in.fetcher.FetchHeroImageURLs(ctx)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, "hero", err)
	}
	candidate := in.transformer.ImageList(ctx, urls)
	return in.handler.Process(ctx, cache.FamilyHero, cache.SingletonID(cache.FamilyHero), candidate)
}

func (in *Ingestor) ingestBundle(ctx context.Context) (Result, error) {
	urls, err := in.fetcher.FetchBundleImageURLs(ctx)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, "bundle", err)
	}
	candidate := in.transformer.ImageList(ctx, urls)
	return in.handler.Process(ctx, cache.FamilyBundle, cache.SingletonID(cache.FamilyBundle), candidate)
}

func (in *Ingestor) ingestHome(ctx context.Context) (Result, error) {
	raw, err := in.fetcher.FetchAppHomeRaw(ctx)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.Transient, "home", err)
	}
	candidate, err := in.transformer.Home(ctx, raw)
	if err != nil {
		return Result{}, err
	}
	return in.handler.Process(ctx, cache.FamilyHome, cache.SingletonID(cache.FamilyHome), candidate)
}
