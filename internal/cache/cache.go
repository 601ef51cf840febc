// Package cache keeps the last resolved quote per symbol with lazy expiry.
package cache

import (
	"context"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
)

// DefaultTTL is how long a cached quote is served.
const DefaultTTL = 30 * time.Second

// Entry is a cached quote and the time it was stored.
type Entry struct {
	Quote    core.PriceQuote `json:"quote"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CachedAt) < ttl
}

// Store is a per-symbol quote cache. Get reports a miss for absent or stale
// entries. Put overwrites; last writer wins.
type Store interface {
	Get(ctx context.Context, symbol string) (core.PriceQuote, bool)
	Put(ctx context.Context, symbol string, quote core.PriceQuote, cachedAt time.Time)
	TTL() time.Duration
}
