// Package materialize computes the price and stock projections that ride
// the same detect-and-append pipeline as every other cached entity.
package materialize

import "erpcache.eve.dev/erp"

// Price returns the [retail, wholesale] vector erpcache stores at
// price:<itemCode>. A missing tier (reported as the float zero value) is
// represented as 0, matching ERP's own convention for "no price set".
func Price(p erp.ItemPrice) []float64 {
	return []float64{p.Retail, p.Wholesale}
}
