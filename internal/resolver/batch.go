package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
	"go.uber.org/zap"
)

// Status summarizes the provenance mix of a batch.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusPartial      Status = "partial"
	StatusAllSynthetic Status = "all-synthetic"
	StatusError        Status = "error"
)

// Performance describes how a batch was served.
type Performance struct {
	RequestedTokens    int    `json:"requestedTokens"`
	SuccessfulRequests int    `json:"successfulRequests"`
	LiveSources        int    `json:"liveSources"`
	SyntheticSources   int    `json:"syntheticSources"`
	Status             Status `json:"status"`
}

// BatchResult is the batch response body.
type BatchResult struct {
	Prices      []core.PriceQuote `json:"prices"`
	Count       int               `json:"count"`
	Timestamp   time.Time         `json:"timestamp"`
	Performance Performance       `json:"performance"`
}

// SingleResolver resolves one symbol.
type SingleResolver interface {
	Resolve(ctx context.Context, symbol string) (core.PriceQuote, error)
}

// Batch fans single resolutions out over many symbols.
type Batch struct {
	single   SingleResolver
	fallback Fallback
	cfg      Config
	options
}

// NewBatch creates a batch resolver.
func NewBatch(single SingleResolver, fallback Fallback, cfg Config, opts ...Option) *Batch {
	return &Batch{
		single:   single,
		fallback: fallback,
		cfg:      cfg.withDefaults(),
		options:  buildOptions(opts),
	}
}

// Prepare caps the input at the batch limit, then normalizes it and drops
// empty and repeated symbols.
func (b *Batch) Prepare(symbols []string) []string {
	if len(symbols) > b.cfg.MaxBatch {
		symbols = symbols[:b.cfg.MaxBatch]
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = core.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ResolveMany resolves each symbol concurrently under its own timeout.
// Unsupported symbols are dropped; every other failure becomes a synthetic
// quote tagged with its reason. Results keep input order.
func (b *Batch) ResolveMany(ctx context.Context, symbols []string) []core.PriceQuote {
	symbols = b.Prepare(symbols)

	slots := make([]*core.PriceQuote, len(symbols))
	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			if q, ok := b.member(ctx, symbol); ok {
				slots[i] = &q
			}
		}(i, symbol)
	}
	wg.Wait()

	quotes := make([]core.PriceQuote, 0, len(slots))
	for _, q := range slots {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes
}

// ResolveBatch resolves symbols and builds the response body.
func (b *Batch) ResolveBatch(ctx context.Context, symbols []string) BatchResult {
	start := time.Now()
	requested := len(b.Prepare(symbols))
	quotes := b.ResolveMany(ctx, symbols)
	perf := Summarize(requested, quotes)

	b.recorder.RecordBatch(string(perf.Status), time.Since(start))
	b.logger.Info("batch resolved",
		zap.Int("requested", requested),
		zap.Int("live", perf.LiveSources),
		zap.Int("synthetic", perf.SyntheticSources),
		zap.String("status", string(perf.Status)),
		zap.Duration("duration", time.Since(start)),
	)

	return BatchResult{
		Prices:      quotes,
		Count:       len(quotes),
		Timestamp:   b.now().UTC(),
		Performance: perf,
	}
}

// member races one resolution against the member timeout.
func (b *Batch) member(ctx context.Context, symbol string) (core.PriceQuote, bool) {
	mctx, cancel := context.WithTimeout(ctx, b.cfg.MemberTimeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		q, err := b.single.Resolve(mctx, symbol)
		done <- fetchResult{quote: q, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.err == nil:
			return res.quote, true
		case errors.Is(res.err, core.ErrUnsupportedSymbol):
			b.logger.Debug("dropping unsupported symbol", zap.String("symbol", symbol))
			return core.PriceQuote{}, false
		case mctx.Err() != nil:
			return b.substitute(symbol, core.ReasonTimeout, res.err), true
		default:
			return b.substitute(symbol, core.ReasonError, res.err), true
		}
	case <-mctx.Done():
		return b.substitute(symbol, core.ReasonTimeout, mctx.Err()), true
	}
}

func (b *Batch) substitute(symbol, reason string, cause error) core.PriceQuote {
	b.logger.Warn("batch member replaced with synthetic quote",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	q := b.fallback.Generate(symbol)
	q.Reason = reason
	b.recorder.RecordResolution(string(core.SourceSynthetic))
	return q
}

// Summarize computes the performance block for a batch.
func Summarize(requested int, quotes []core.PriceQuote) Performance {
	p := Performance{RequestedTokens: requested, SuccessfulRequests: len(quotes)}
	for _, q := range quotes {
		if q.IsLive() {
			p.LiveSources++
		} else {
			p.SyntheticSources++
		}
	}

	switch {
	case len(quotes) == 0:
		p.Status = StatusError
	case p.SyntheticSources == 0:
		p.Status = StatusSuccess
	case p.LiveSources == 0:
		p.Status = StatusAllSynthetic
	default:
		p.Status = StatusPartial
	}
	return p
}
