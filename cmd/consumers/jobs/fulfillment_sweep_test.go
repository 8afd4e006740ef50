package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taquilla/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (s *countingSweeper) Sweep(_ context.Context, since time.Time) (service.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, since)
	return service.SweepResult{Checked: 1}, s.err
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestSweepJobRunsImmediatelyAndOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewFulfillmentSweepJob(sweeper, 5*time.Millisecond, time.Hour)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	job.Start(context.Background())
	require.Eventually(t, func() bool { return sweeper.count() >= 3 }, time.Second, time.Millisecond)
	job.Stop()

	stopped := sweeper.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.count(), "no sweeps after Stop")

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	assert.Equal(t, fixed.Add(-time.Hour), sweeper.calls[0])
}

func TestSweepJobSurvivesErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("gateway unavailable")}
	job := NewFulfillmentSweepJob(sweeper, 2*time.Millisecond, time.Minute)

	job.Start(context.Background())
	require.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, time.Millisecond)
	job.Stop()
}

func TestSweepJobStopsWithContext(t *testing.T) {
	sweeper := &countingSweeper{}
	job := NewFulfillmentSweepJob(sweeper, time.Hour, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	job.Start(ctx)
	require.Eventually(t, func() bool { return sweeper.count() == 1 }, time.Second, time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
}
