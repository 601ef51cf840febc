package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*Memory)(nil)

func sampleQuote(symbol string) core.PriceQuote {
	return core.PriceQuote{
		Symbol:      symbol,
		Price:       2500.5,
		Change24h:   1.25,
		LastUpdated: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Source:      core.SourceLive,
	}
}

func TestMemory_GetPut(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(30 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, ok := m.Get(ctx, "ETH")
	assert.False(t, ok, "expected miss on empty cache")

	m.Put(ctx, "eth", sampleQuote("ETH"), now)

	got, ok := m.Get(ctx, "ETH")
	require.True(t, ok)
	assert.Equal(t, sampleQuote("ETH"), got)
}

func TestMemory_LazyExpiry(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m := NewMemory(30 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	m.Put(ctx, "BTC", sampleQuote("BTC"), base)

	now = base.Add(29 * time.Second)
	_, ok := m.Get(ctx, "BTC")
	assert.True(t, ok, "expected hit before ttl")

	now = base.Add(30 * time.Second)
	_, ok = m.Get(ctx, "BTC")
	assert.False(t, ok, "expected miss at ttl")

	assert.Equal(t, 1, m.Len(), "stale entries are not evicted")

	m.Put(ctx, "BTC", sampleQuote("BTC"), now)
	_, ok = m.Get(ctx, "BTC")
	assert.True(t, ok, "overwrite refreshes the entry")
}

func TestMemory_BackdatedEntryExpiresSooner(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m := NewMemory(30 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	m.Put(ctx, "ETH", sampleQuote("ETH"), base.Add(-15*time.Second))

	now = base.Add(14 * time.Second)
	_, ok := m.Get(ctx, "ETH")
	assert.True(t, ok)

	now = base.Add(15 * time.Second)
	_, ok = m.Get(ctx, "ETH")
	assert.False(t, ok)
}

func TestMemory_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewMemory(0).TTL())
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		symbol := fmt.Sprintf("T%d", i%5)
		go func() {
			defer wg.Done()
			m.Put(ctx, symbol, sampleQuote(symbol), time.Now())
		}()
		go func() {
			defer wg.Done()
			m.Get(ctx, symbol)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, m.Len())
}
