// Package synthetic produces bounded-random fallback quotes.
package synthetic

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
)

// DefaultBasePrice is used for symbols without a known base.
const DefaultBasePrice = 100.0

const (
	priceJitter  = 0.03
	changeJitter = 8.0
)

// Approximate USD levels for supported tokens.
var basePrices = map[string]float64{
	"ETH":   2500,
	"BTC":   45000,
	"LINK":  15,
	"USDC":  1,
	"USDT":  1,
	"DAI":   1,
	"AAVE":  100,
	"UNI":   7,
	"MATIC": 0.8,
	"SOL":   100,
}

// BasePrice returns the base used for symbol.
func BasePrice(symbol string) float64 {
	if p, ok := basePrices[core.NormalizeSymbol(symbol)]; ok {
		return p
	}
	return DefaultBasePrice
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the source of uniform values in [0, 1).
func WithRand(float func() float64) Option {
	return func(g *Generator) { g.float = float }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator creates synthetic quotes. Safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	float func() float64
	now   func() time.Time
}

// NewGenerator creates a generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{float: rand.Float64, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a quote within ±3% of the symbol's base price and a
// change24h within ±8%. It never fails.
func (g *Generator) Generate(symbol string) core.PriceQuote {
	symbol = core.NormalizeSymbol(symbol)
	base := BasePrice(symbol)

	g.mu.Lock()
	priceRoll, changeRoll := g.float(), g.float()
	g.mu.Unlock()

	price := base * (1 + (priceRoll*2-1)*priceJitter)
	change := (changeRoll*2 - 1) * changeJitter

	return core.PriceQuote{
		Symbol:      symbol,
		Price:       price,
		Change24h:   math.Round(change*100) / 100,
		LastUpdated: g.now().UTC(),
		Source:      core.SourceSynthetic,
	}
}
