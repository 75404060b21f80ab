package refresh

import (
	"context"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/common"
	"erpcache.eve.dev/erp"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/materialize"
	"erpcache.eve.dev/transform"
	"erpcache.eve.dev/webhook"
)

// Enumerator builds the full []Item set a scheduled or admin-triggered
// refresh pass needs: one enumeration call per family via C6, followed by
// the same per-item fetch+transform a webhook ingest would do, since a
// refresh item's candidate must already be computed before Run dispatches
// it through the shared pipeline (spec.md §4.9 step 1-2).
type Enumerator struct {
	fetcher     erp.Fetcher
	transformer *transform.Transformer
	kv          *kv.Store
	log         *common.ContextLogger
}

// NewEnumerator builds an Enumerator.
func NewEnumerator(fetcher erp.Fetcher, transformer *transform.Transformer, store *kv.Store, log *common.ContextLogger) *Enumerator {
	if log == nil {
		log = common.NewContextLogger(nil, map[string]interface{}{"component": "refresh.enumerate"})
	}
	return &Enumerator{fetcher: fetcher, transformer: transformer, kv: store, log: log}
}

// WarehouseReference returns the current warehouse vector axis, the
// "GET /api/stock/warehouses/reference" response body.
func (e *Enumerator) WarehouseReference(ctx context.Context) ([]string, error) {
	warehouses, err := webhook.ReadWarehouseReference(ctx, e.kv)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, "warehouses:reference", err)
	}
	return warehouses, nil
}

// Items enumerates every published product, its child item codes
// (deduplicated across variants for the price/stock families), and the
// three singleton content families, returning one Item per entity ready
// for Runner.Run.
func (e *Enumerator) Items(ctx context.Context) ([]Item, error) {
	var items []Item

	index, err := e.fetcher.FetchAllProductIndex(ctx)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, "product-index", err)
	}

	// The warehouse reference is read once and reused across every stock
	// item in this pass, so a full refresh scores every item against one
	// consistent axis even if the reference changes mid-pass.
	reference, err := webhook.ReadWarehouseReference(ctx, e.kv)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Transient, "warehouses:reference", err)
	}

	itemCodes := make(map[string]bool)

	for _, entry := range index {
		product, err := e.fetcher.FetchProduct(ctx, entry.ID)
		if err != nil {
			e.log.WithField("id", entry.ID).WithError(err).Warn("full refresh: product fetch failed, skipping")
			continue
		}
		candidate, err := e.transformer.Product(ctx, product)
		if err != nil {
			e.log.WithField("id", entry.ID).WithError(err).Warn("full refresh: product transform failed, skipping")
			continue
		}
		items = append(items, Item{Family: cache.FamilyProduct, ID: entry.ID, Candidate: candidate})

		for _, variant := range entry.Variants {
			if variant.ItemCode != "" {
				itemCodes[variant.ItemCode] = true
			}
		}
	}

	for itemCode := range itemCodes {
		price, err := e.fetcher.FetchItemPrice(ctx, itemCode)
		if err != nil {
			e.log.WithField("item_code", itemCode).WithError(err).Warn("full refresh: price fetch failed, skipping")
		} else {
			items = append(items, Item{Family: cache.FamilyPrice, ID: itemCode, Candidate: materialize.Price(price)})
		}

		reported, err := e.fetcher.FetchItemStockWarehouses(ctx, itemCode)
		if err != nil {
			e.log.WithField("item_code", itemCode).WithError(err).Warn("full refresh: stock fetch failed, skipping")
			continue
		}
		availability, unmatched := materialize.Stock(reported, reference)
		for _, name := range unmatched {
			e.log.WithField("item_code", itemCode).WithField("warehouse", name).Warn("unmatched warehouse name dropped")
		}
		items = append(items, Item{Family: cache.FamilyStock, ID: itemCode, Candidate: availability})
	}

	if urls, err := e.fetcher.FetchHeroImageURLs(ctx); err == nil {
		candidate := e.transformer.ImageList(ctx, urls)
		items = append(items, Item{Family: cache.FamilyHero, ID: cache.SingletonID(cache.FamilyHero), Candidate: candidate})
	} else {
		e.log.WithError(err).Warn("full refresh: hero image fetch failed, skipping")
	}

	if urls, err := e.fetcher.FetchBundleImageURLs(ctx); err == nil {
		candidate := e.transformer.ImageList(ctx, urls)
		items = append(items, Item{Family: cache.FamilyBundle, ID: cache.SingletonID(cache.FamilyBundle), Candidate: candidate})
	} else {
		e.log.WithError(err).Warn("full refresh: bundle image fetch failed, skipping")
	}

	if raw, err := e.fetcher.FetchAppHomeRaw(ctx); err == nil {
		candidate, err := e.transformer.Home(ctx, raw)
		if err != nil {
			e.log.WithError(err).Warn("full refresh: home transform failed, skipping")
		} else {
			items = append(items, Item{Family: cache.FamilyHome, ID: cache.SingletonID(cache.FamilyHome), Candidate: candidate})
		}
	} else {
		e.log.WithError(err).Warn("full refresh: home fetch failed, skipping")
	}

	return items, nil
}
