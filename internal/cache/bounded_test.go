package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedMapEvictsOldestPastCapacity(t *testing.T) {
	m := NewBoundedMap[int]()

	for i := 0; i < DefaultCapacity; i++ {
		m.Put(fmt.Sprintf("k%d", i), i)
	}
	assert.Equal(t, DefaultCapacity, m.Len())

	m.Put("k1000", 1000)
	assert.Equal(t, DefaultRetain, m.Len())

	_, ok := m.Get("k0")
	assert.False(t, ok)
	_, ok = m.Get("k500")
	assert.False(t, ok)

	v, ok := m.Get("k501")
	require.True(t, ok)
	assert.Equal(t, 501, v)
	_, ok = m.Get("k1000")
	assert.True(t, ok)
}

func TestBoundedMapInsertionOrderNotLRU(t *testing.T) {
	m := NewBoundedMap[string](WithCapacity(4, 2))

	m.Put("a", "1")
	m.Put("b", "2")
	m.Put("c", "3")
	m.Put("d", "4")

	// reading "a" must not protect it
	_, ok := m.Get("a")
	require.True(t, ok)

	m.Put("e", "5")

	_, ok = m.Get("a")
	assert.False(t, ok)
	_, ok = m.Get("d")
	assert.True(t, ok)
	_, ok = m.Get("e")
	assert.True(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestBoundedMapTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewBoundedMap[string](WithTTL(time.Minute), WithClock(clock))

	m.Put("fp", "pi_1")
	_, ok := m.Get("fp")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = m.Get("fp")
	assert.False(t, ok)
	assert.True(t, m.PutIfAbsent("fp", "pi_2"))

	v, _ := m.Get("fp")
	assert.Equal(t, "pi_2", v)
	assert.Equal(t, 1, m.Len())
}

func TestBoundedMapPutIfAbsent(t *testing.T) {
	m := NewBoundedMap[int]()

	assert.True(t, m.PutIfAbsent("x", 1))
	assert.False(t, m.PutIfAbsent("x", 2))

	v, _ := m.Get("x")
	assert.Equal(t, 1, v)
}

func TestBoundedMapPutIfAbsentSingleWinner(t *testing.T) {
	m := NewBoundedMap[int]()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			if m.PutIfAbsent("fp", g) {
				wins.Add(1)
			}
		}(g)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, m.Len())
}

func TestBoundedMapConcurrentAccess(t *testing.T) {
	m := NewBoundedMap[int](WithCapacity(100, 50))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				m.Put(key, i)
				m.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), 100)
}

func TestMemoryGuardAndLedger(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard()

	_, ok, err := guard.Reserve(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Record(ctx, "fp", "pi_123"))
	id, ok, err := guard.Reserve(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pi_123", id)

	require.NoError(t, guard.Forget(ctx, "fp"))
	_, ok, _ = guard.Reserve(ctx, "fp")
	assert.False(t, ok)

	ledger := NewMemoryLedger()
	seen, err := ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.MarkProcessed(ctx, "evt_1"))
	seen, _ = ledger.Seen(ctx, "evt_1")
	assert.True(t, seen)
}
