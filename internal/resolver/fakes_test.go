package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
	"github.com/newthinker/pricefeed/internal/rpc"
)

// fetchFunc scripts one live fetch. call counts from 1 per symbol.
type fetchFunc func(ctx context.Context, symbol string, call int) (core.PriceQuote, error)

type fakeFetcher struct {
	fn fetchFunc

	mu    sync.Mutex
	calls map[string]int
}

func newFakeFetcher(fn fetchFunc) *fakeFetcher {
	return &fakeFetcher{fn: fn, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, symbol string, _ *rpc.Handle) (core.PriceQuote, error) {
	f.mu.Lock()
	f.calls[symbol]++
	n := f.calls[symbol]
	f.mu.Unlock()
	return f.fn(ctx, symbol, n)
}

func (f *fakeFetcher) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type fakeConns struct {
	gets        atomic.Int32
	invalidated atomic.Int32
}

func (c *fakeConns) Get() *rpc.Handle {
	c.gets.Add(1)
	return &rpc.Handle{Target: "fake", CreatedAt: time.Now()}
}

func (c *fakeConns) Invalidate() {
	c.invalidated.Add(1)
}

type countingRecorder struct {
	mu          sync.Mutex
	hits        int
	misses      int
	outcomes    map[string]int
	resolutions map[string]int
	batches     map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		outcomes:    make(map[string]int),
		resolutions: make(map[string]int),
		batches:     make(map[string]int),
	}
}

func (r *countingRecorder) RecordCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *countingRecorder) RecordAttempt(outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes[outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordResolution(source string) {
	r.mu.Lock()
	r.resolutions[source]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordBatch(status string, _ time.Duration) {
	r.mu.Lock()
	r.batches[status]++
	r.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func liveQuote(symbol string, price float64) core.PriceQuote {
	return core.PriceQuote{
		Symbol:      symbol,
		Price:       price,
		Change24h:   1.5,
		LastUpdated: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		Source:      core.SourceLive,
	}
}

var livePrices = map[string]float64{"ETH": 2500.12345678, "BTC": 45000, "LINK": 15.5}

// alwaysLive serves livePrices and treats everything else as unsupported.
func alwaysLive(_ context.Context, symbol string, _ int) (core.PriceQuote, error) {
	p, ok := livePrices[symbol]
	if !ok {
		return core.PriceQuote{}, core.WrapError(core.ErrUnsupportedSymbol, fmt.Errorf("no feed for %q", symbol))
	}
	return liveQuote(symbol, p), nil
}

// blockUntilDone simulates an endpoint that never answers.
func blockUntilDone(ctx context.Context, _ string, _ int) (core.PriceQuote, error) {
	<-ctx.Done()
	return core.PriceQuote{}, ctx.Err()
}

func testConfig() Config {
	return Config{
		AttemptTimeout: 50 * time.Millisecond,
		Backoff:        10 * time.Millisecond,
		MaxRetries:     2,
		MemberTimeout:  100 * time.Millisecond,
		MaxBatch:       10,
	}
}
