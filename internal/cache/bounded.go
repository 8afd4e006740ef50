package cache

import (
	"sync"
	"time"
)

const (
	DefaultCapacity = 1000
	DefaultRetain   = 500
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// BoundedMap is a mutex-protected map that remembers insertion order.
// Once it holds more than capacity entries it drops the oldest ones and
// keeps only the retain most recently inserted. Reads do not refresh an
// entry's position.
type BoundedMap[V any] struct {
	mu       sync.Mutex
	items    map[string]entry[V]
	order    []string
	capacity int
	retain   int
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*options)

type options struct {
	capacity int
	retain   int
	ttl      time.Duration
	now      func() time.Time
}

func WithCapacity(capacity, retain int) Option {
	return func(o *options) {
		o.capacity = capacity
		o.retain = retain
	}
}

// WithTTL makes entries older than ttl invisible. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewBoundedMap[V any](opts ...Option) *BoundedMap[V] {
	o := options{
		capacity: DefaultCapacity,
		retain:   DefaultRetain,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		o.capacity = DefaultCapacity
	}
	if o.retain <= 0 || o.retain > o.capacity {
		o.retain = o.capacity / 2
	}

	return &BoundedMap[V]{
		items:    make(map[string]entry[V], o.capacity+1),
		order:    make([]string, 0, o.capacity+1),
		capacity: o.capacity,
		retain:   o.retain,
		ttl:      o.ttl,
		now:      o.now,
	}
}

func (m *BoundedMap[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok || m.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key. Overwriting an existing key moves it to the
// newest position.
func (m *BoundedMap[V]) Put(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value)
}

// PutIfAbsent stores value only when key is missing or expired and reports
// whether it did.
func (m *BoundedMap[V]) PutIfAbsent(key string, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[key]; ok && !m.expired(e) {
		return false
	}
	m.put(key, value)
	return true
}

// put must be called with mu held.
func (m *BoundedMap[V]) put(key string, value V) {
	if _, ok := m.items[key]; ok {
		m.removeFromOrder(key)
	}
	m.items[key] = entry[V]{value: value, storedAt: m.now()}
	m.order = append(m.order, key)

	if len(m.order) > m.capacity {
		m.evict()
	}
}

func (m *BoundedMap[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[key]; !ok {
		return
	}
	delete(m.items, key)
	m.removeFromOrder(key)
}

func (m *BoundedMap[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func (m *BoundedMap[V]) expired(e entry[V]) bool {
	return m.ttl > 0 && m.now().Sub(e.storedAt) > m.ttl
}

// evict must be called with mu held.
func (m *BoundedMap[V]) evict() {
	drop := len(m.order) - m.retain
	for _, key := range m.order[:drop] {
		delete(m.items, key)
	}
	kept := make([]string, m.retain, m.capacity+1)
	copy(kept, m.order[drop:])
	m.order = kept
}

func (m *BoundedMap[V]) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
