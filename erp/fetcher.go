// Package erp defines the boundary contract to the upstream ERP system and
// a plain net/http implementation of it. Every operation classifies its
// failure as TRANSIENT (ERP reachable but erroring/timing out — retry,
// count as a per-item error) or PERMANENT (known-bad id — no retry).
package erp

import (
	"context"
)

// ProductIndexEntry is enough information to enumerate a product's
// children during a full refresh: the id plus its nested variant
// descriptor, exactly as ERP reports it.
type ProductIndexEntry struct {
	ID       string              `json:"id"`
	Variants []VariantDescriptor `json:"variants"`
}

// VariantDescriptor describes one size/SKU variant of a product.
type VariantDescriptor struct {
	ItemCode string `json:"item_code"`
	SizeUnit string `json:"size_unit"`
}

// ItemPrice is the retail/wholesale price pair ERP reports for an item.
type ItemPrice struct {
	Retail    float64 `json:"retail"`
	Wholesale float64 `json:"wholesale"`
}

// Fetcher is the boundary contract erpcache's transform/webhook/refresh
// components depend on. All methods take a context so the caller can
// enforce the per-call timeout and cancellation described in spec.md §5.
type Fetcher interface {
	FetchProduct(ctx context.Context, id string) (map[string]interface{}, error)
	FetchAllProductIndex(ctx context.Context) ([]ProductIndexEntry, error)
	FetchItemPrice(ctx context.Context, itemCode string) (ItemPrice, error)
	FetchItemStockWarehouses(ctx context.Context, itemCode string) ([]string, error)
	FetchHeroImageURLs(ctx context.Context) ([]string, error)
	FetchBundleImageURLs(ctx context.Context) ([]string, error)
	FetchAppHomeRaw(ctx context.Context) (map[string]interface{}, error)
	FetchBlob(ctx context.Context, url string) ([]byte, string, error) // body, content-type
}
