package cache

import (
	"context"
	"time"
)

// MemoryGuard maps checkout fingerprints to the payment intent created for
// them. It is advisory and lives only as long as the process.
type MemoryGuard struct {
	entries *BoundedMap[string]
}

func NewMemoryGuard(opts ...Option) *MemoryGuard {
	return &MemoryGuard{entries: NewBoundedMap[string](opts...)}
}

func (g *MemoryGuard) Reserve(_ context.Context, fingerprint string) (string, bool, error) {
	intentID, ok := g.entries.Get(fingerprint)
	return intentID, ok, nil
}

func (g *MemoryGuard) Record(_ context.Context, fingerprint, intentID string) error {
	g.entries.Put(fingerprint, intentID)
	return nil
}

func (g *MemoryGuard) Forget(_ context.Context, fingerprint string) error {
	g.entries.Delete(fingerprint)
	return nil
}

// MemoryLedger remembers recently processed webhook event ids.
type MemoryLedger struct {
	seen *BoundedMap[time.Time]
	now  func() time.Time
}

func NewMemoryLedger(opts ...Option) *MemoryLedger {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryLedger{seen: NewBoundedMap[time.Time](opts...), now: o.now}
}

func (l *MemoryLedger) Seen(_ context.Context, eventID string) (bool, error) {
	_, ok := l.seen.Get(eventID)
	return ok, nil
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, eventID string) error {
	l.seen.Put(eventID, l.now())
	return nil
}
