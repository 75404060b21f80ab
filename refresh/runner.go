// Package refresh implements the bounded-concurrency full-refresh pass
// invoked by the scheduler (or an admin trigger): enumerate every
// published entity per family, batch it, and run each item through the
// same detect-and-append pipeline the webhook handler uses.
package refresh

import (
	"context"
	"sync"

	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/common"
	"erpcache.eve.dev/webhook"

	"github.com/dustin/go-humanize"
)

// DefaultBatchSize is the default number of items processed concurrently
// in one batch of a refresh pass (a batch may mix families), per spec.md §4.9.
const DefaultBatchSize = 10

// Item is one (family, id, candidate) unit of work. candidate is computed
// eagerly by the caller (it may itself require an ERP fetch + transform).
type Item struct {
	Family    cache.Family
	ID        string
	Candidate interface{}
}

// Summary accumulates the outcome of refreshing one family.
type Summary struct {
	Family    cache.Family
	Total     int
	Updated   int
	Unchanged int
	Errors    []ItemError
}

// ItemError records one item that failed to refresh without aborting the
// rest of the batch.
type ItemError struct {
	ID  string
	Err error
}

// Runner drives batched refresh passes against the shared webhook
// handler. It holds no family-specific knowledge: callers supply the
// already-fetched+transformed candidates as Items.
type Runner struct {
	handler   *webhook.Handler
	batchSize int
	log       *common.ContextLogger
}

// NewRunner builds a Runner. batchSize <= 0 falls back to DefaultBatchSize.
func NewRunner(handler *webhook.Handler, batchSize int, log *common.ContextLogger) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = common.NewContextLogger(nil, map[string]interface{}{"component": "refresh"})
	}
	return &Runner{handler: handler, batchSize: batchSize, log: log}
}

// Run partitions items into fixed-size batches processed with bounded
// parallelism and returns one Summary per family encountered, in the
// order each family was first seen. Stream appends happen only on
// changes (I3); cross-item ordering within the stream reflects the
// order in which each item's xadd call actually completes, not Items'
// input order.
func (r *Runner) Run(ctx context.Context, items []Item) []Summary {
	summaries := make(map[cache.Family]*Summary)
	order := make([]cache.Family, 0)

	for start := 0; start < len(items); start += r.batchSize {
		end := start + r.batchSize
		if end > len(items) {
			end = len(items)
		}
		r.runBatch(ctx, items[start:end], summaries, &order)
	}

	out := make([]Summary, 0, len(order))
	for _, family := range order {
		out = append(out, *summaries[family])
	}
	return out
}

func (r *Runner) runBatch(ctx context.Context, batch []Item, summaries map[cache.Family]*Summary, order *[]cache.Family) {
	type outcome struct {
		item    Item
		changed bool
		err     error
	}

	results := make(chan outcome, len(batch))
	var wg sync.WaitGroup

	for _, item := range batch {
		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			res, err := r.handler.Process(ctx, item.Family, item.ID, item.Candidate)
			results <- outcome{item: item, changed: res.Changed, err: err}
		}(item)
	}

	wg.Wait()
	close(results)

	for res := range results {
		summary, ok := summaries[res.item.Family]
		if !ok {
			summary = &Summary{Family: res.item.Family}
			summaries[res.item.Family] = summary
			*order = append(*order, res.item.Family)
		}

		summary.Total++
		switch {
		case res.err != nil:
			summary.Errors = append(summary.Errors, ItemError{ID: res.item.ID, Err: res.err})
			r.log.WithField("family", string(res.item.Family)).WithField("id", res.item.ID).WithError(res.err).Warn("refresh item failed")
		case res.changed:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}
}

// LogSummaries writes one human-readable line per family summary.
func (r *Runner) LogSummaries(summaries []Summary) {
	for _, s := range summaries {
		r.log.WithFields(map[string]interface{}{
			"family":    string(s.Family),
			"total":     s.Total,
			"updated":   s.Updated,
			"unchanged": s.Unchanged,
			"errors":    len(s.Errors),
		}).Info("refresh pass for " + humanize.Comma(int64(s.Total)) + " items complete")
	}
}
