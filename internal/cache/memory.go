package cache

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
)

// Memory is an in-process Store. Stale entries stay in the map until
// overwritten.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-memory cache.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock sets the time source and returns the cache.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, symbol string) (core.PriceQuote, bool) {
	m.mu.RLock()
	e, ok := m.entries[core.NormalizeSymbol(symbol)]
	m.mu.RUnlock()

	if !ok || !e.Fresh(m.now(), m.ttl) {
		return core.PriceQuote{}, false
	}
	return e.Quote, true
}

func (m *Memory) Put(_ context.Context, symbol string, quote core.PriceQuote, cachedAt time.Time) {
	m.mu.Lock()
	m.entries[core.NormalizeSymbol(symbol)] = Entry{Quote: quote, CachedAt: cachedAt}
	m.mu.Unlock()
}

func (m *Memory) TTL() time.Duration {
	return m.ttl
}

// Len returns the number of stored entries, stale ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
