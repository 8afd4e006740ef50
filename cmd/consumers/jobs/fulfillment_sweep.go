package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"taquilla/internal/service"
)

// Sweeper is implemented by service.FulfillmentEngine
type Sweeper interface {
	Sweep(ctx context.Context, since time.Time) (service.SweepResult, error)
}

// FulfillmentSweepJob periodically fulfills succeeded payments whose webhook
// was lost or failed
type FulfillmentSweepJob struct {
	sweeper  Sweeper
	interval time.Duration
	lookback time.Duration
	now      func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFulfillmentSweepJob creates a job that looks back over the given window
// on every run
func NewFulfillmentSweepJob(sweeper Sweeper, interval, lookback time.Duration) *FulfillmentSweepJob {
	return &FulfillmentSweepJob{
		sweeper:  sweeper,
		interval: interval,
		lookback: lookback,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval. Runs never
// overlap.
func (j *FulfillmentSweepJob) Start(ctx context.Context) {
	slog.Info("Starting fulfillment sweep job", "interval", j.interval, "lookback", j.lookback)

	j.ticker = time.NewTicker(j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.runOnce(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.runOnce(ctx)
			case <-ctx.Done():
				slog.Info("Fulfillment sweep job stopped")
				return
			case <-j.done:
				slog.Info("Fulfillment sweep job stopped")
				return
			}
		}
	}()
}

// Stop halts the ticker and waits for an in-progress sweep to return
func (j *FulfillmentSweepJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
	j.wg.Wait()
}

func (j *FulfillmentSweepJob) runOnce(ctx context.Context) {
	start := j.now()
	since := start.Add(-j.lookback)

	result, err := j.sweeper.Sweep(ctx, since)
	if err != nil {
		slog.Error("Fulfillment sweep failed", "error", err, "since", since)
		return
	}

	if result.Failed > 0 {
		slog.Warn("Fulfillment sweep finished with failures",
			"checked", result.Checked, "failed", result.Failed, "elapsed", time.Since(start).String())
		return
	}
	slog.Debug("Fulfillment sweep finished", "checked", result.Checked, "elapsed", time.Since(start).String())
}
