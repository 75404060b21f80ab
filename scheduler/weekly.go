// Package scheduler runs the full-refresh pass on a weekly wall-clock
// slot, independent of any external broker — it is a single long-lived
// goroutine that sleeps until the next occurrence and reconnects (i.e.
// recomputes the next slot) after every run, the same shape the teacher
// uses for its reconnect loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"erpcache.eve.dev/common"
	"erpcache.eve.dev/config"
)

// RunFunc is invoked once per scheduled slot. It should run the full
// refresh pass (C9) to completion before returning.
type RunFunc func(ctx context.Context)

// Weekly computes, each cycle, the seconds to the next occurrence of a
// configured weekday/hour/minute, sleeps, and invokes RunFunc. On
// restart it always computes the NEXT slot; it never back-fills missed
// slots.
type Weekly struct {
	cfg  config.SchedulerConfig
	run  RunFunc
	log  *common.ContextLogger
	now  func() time.Time
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New builds a Weekly scheduler. now defaults to time.Now; tests
// override it to make slot computation deterministic.
func New(cfg config.SchedulerConfig, run RunFunc, log *common.ContextLogger) *Weekly {
	if log == nil {
		log = common.NewContextLogger(nil, map[string]interface{}{"component": "scheduler"})
	}
	return &Weekly{cfg: cfg, run: run, log: log, now: time.Now}
}

// Start begins the scheduling loop in a background goroutine. It is a
// no-op when the scheduler is disabled in configuration.
func (w *Weekly) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		w.log.Info("scheduler disabled, not starting")
		return
	}

	w.ctx, w.stop = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels the scheduling loop and waits for the in-flight run, if
// any, to observe cancellation.
func (w *Weekly) Stop() {
	if w.stop == nil {
		return
	}
	w.stop()
	w.wg.Wait()
}

func (w *Weekly) loop() {
	defer w.wg.Done()

	for {
		wait := w.untilNextSlot(w.now())
		w.log.WithField("seconds", wait.Seconds()).Info("scheduler sleeping until next weekly slot")

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(wait):
		}

		select {
		case <-w.ctx.Done():
			return
		default:
		}

		w.log.Info("scheduler invoking full refresh")
		w.run(w.ctx)
	}
}

// untilNextSlot returns the duration from from until the next
// occurrence of the configured weekday/hour/minute, strictly in the
// future (a slot matching the current instant rolls to next week).
func (w *Weekly) untilNextSlot(from time.Time) time.Duration {
	candidate := time.Date(from.Year(), from.Month(), from.Day(), w.cfg.Hour, w.cfg.Minute, 0, 0, from.Location())

	daysUntil := (int(w.cfg.Weekday) - int(candidate.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysUntil)

	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 7)
	}

	return candidate.Sub(from)
}
