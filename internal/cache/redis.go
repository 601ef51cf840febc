package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces quote keys.
const DefaultKeyPrefix = "pricefeed:quote:"

// Redis is a Store shared between processes. Freshness is decided by the
// entry's CachedAt; the key expiry only reclaims memory.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client *redis.Client, ttl time.Duration, prefix string, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix, now: time.Now, logger: logger}
}

func (r *Redis) key(symbol string) string {
	return r.prefix + core.NormalizeSymbol(symbol)
}

// Get treats any Redis or decoding error as a miss.
func (r *Redis) Get(ctx context.Context, symbol string) (core.PriceQuote, bool) {
	data, err := r.client.Get(ctx, r.key(symbol)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis cache get failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return core.PriceQuote{}, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		r.logger.Warn("redis cache entry corrupt", zap.String("symbol", symbol), zap.Error(err))
		return core.PriceQuote{}, false
	}
	if !e.Fresh(r.now(), r.ttl) {
		return core.PriceQuote{}, false
	}
	return e.Quote, true
}

func (r *Redis) Put(ctx context.Context, symbol string, quote core.PriceQuote, cachedAt time.Time) {
	remaining := r.ttl - r.now().Sub(cachedAt)
	if remaining <= 0 {
		return
	}

	data, err := json.Marshal(Entry{Quote: quote, CachedAt: cachedAt})
	if err != nil {
		r.logger.Warn("redis cache encode failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, r.key(symbol), data, remaining).Err(); err != nil {
		r.logger.Warn("redis cache put failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (r *Redis) TTL() time.Duration {
	return r.ttl
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
