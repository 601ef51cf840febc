// Package resolver turns symbols into quotes: cache first, then bounded live
// attempts with retry, then a synthetic fallback.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/newthinker/pricefeed/internal/cache"
	"github.com/newthinker/pricefeed/internal/core"
	"github.com/newthinker/pricefeed/internal/rpc"
	"go.uber.org/zap"
)

// LiveFetcher reads a live quote through an endpoint handle.
type LiveFetcher interface {
	Fetch(ctx context.Context, symbol string, handle *rpc.Handle) (core.PriceQuote, error)
}

// Connections hands out the shared endpoint handle.
type Connections interface {
	Get() *rpc.Handle
	Invalidate()
}

// Fallback produces synthetic quotes. It must never fail.
type Fallback interface {
	Generate(symbol string) core.PriceQuote
}

// Recorder receives resolution metrics.
type Recorder interface {
	RecordCacheLookup(hit bool)
	RecordAttempt(outcome string, duration time.Duration)
	RecordResolution(source string)
	RecordBatch(status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheLookup(bool) {}
func (nopRecorder) RecordAttempt(string, time.Duration) {}
func (nopRecorder) RecordResolution(string) {}
func (nopRecorder) RecordBatch(string, time.Duration) {}

// Config holds the timing and sizing bounds. Zero durations and a zero
// MaxBatch take the DefaultConfig values. MaxRetries is taken as given:
// zero means a single attempt, so start from DefaultConfig for the
// standard three.
type Config struct {
	AttemptTimeout time.Duration
	Backoff        time.Duration
	MaxRetries     int
	MemberTimeout  time.Duration
	MaxBatch       int
}

// DefaultConfig returns production bounds.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 7 * time.Second,
		Backoff:        time.Second,
		MaxRetries:     2,
		MemberTimeout:  8 * time.Second,
		MaxBatch:       10,
	}
}

// WorstCase bounds how long one single or batch resolution can take when
// every live attempt fails.
func (c Config) WorstCase() time.Duration {
	c = c.withDefaults()
	single := time.Duration(c.MaxRetries+1)*c.AttemptTimeout + time.Duration(c.MaxRetries)*c.Backoff
	return max(single, c.MemberTimeout)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MemberTimeout <= 0 {
		c.MemberTimeout = d.MemberTimeout
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = d.MaxBatch
	}
	return c
}

type options struct {
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Resolver or Batch.
type Option func(*options)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source used for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{recorder: nopRecorder{}, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

type state int

const (
	stateCheckCache state = iota
	stateAttempt
	stateBackoff
	stateStore
	stateFallback
)

// Resolver resolves one symbol at a time. It owns no state besides its
// collaborators and is safe for concurrent use.
type Resolver struct {
	cfg      Config
	fetcher  LiveFetcher
	conns    Connections
	fallback Fallback
	cache    cache.Store
	options
}

// New creates a resolver.
func New(cfg Config, fetcher LiveFetcher, conns Connections, fallback Fallback, store cache.Store, opts ...Option) *Resolver {
	return &Resolver{
		cfg:      cfg.withDefaults(),
		fetcher:  fetcher,
		conns:    conns,
		fallback: fallback,
		cache:    store,
		options:  buildOptions(opts),
	}
}

// Config returns the effective bounds.
func (r *Resolver) Config() Config {
	return r.cfg
}

func (r *Resolver) retryPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.Backoff), uint64(r.cfg.MaxRetries))
}

// Resolve returns a quote for symbol. The only errors are
// core.ErrUnsupportedSymbol and, when ctx ends first, core.ErrTransportTimeout.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (core.PriceQuote, error) {
	symbol = core.NormalizeSymbol(symbol)
	policy := r.retryPolicy()

	var (
		st      = stateCheckCache
		attempt = 0
		quote   core.PriceQuote
		err     error
	)

	for {
		switch st {
		case stateCheckCache:
			if q, ok := r.cache.Get(ctx, symbol); ok {
				r.recorder.RecordCacheLookup(true)
				r.logger.Debug("quote served from cache", zap.String("symbol", symbol))
				return q, nil
			}
			r.recorder.RecordCacheLookup(false)
			st = stateAttempt

		case stateAttempt:
			quote, err = r.attempt(ctx, symbol)
			switch {
			case err == nil:
				st = stateStore
			case !core.IsRetryable(err):
				return core.PriceQuote{}, err
			case ctx.Err() != nil:
				return core.PriceQuote{}, core.WrapError(core.ErrTransportTimeout, ctx.Err())
			default:
				r.conns.Invalidate()
				r.logger.Warn("live fetch failed",
					zap.String("symbol", symbol),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				st = stateBackoff
			}

		case stateBackoff:
			wait := policy.NextBackOff()
			if wait == backoff.Stop {
				st = stateFallback
				continue
			}
			if serr := sleep(ctx, wait); serr != nil {
				return core.PriceQuote{}, core.WrapError(core.ErrTransportTimeout, serr)
			}
			attempt++
			st = stateAttempt

		case stateStore:
			r.cache.Put(ctx, symbol, quote, r.now())
			r.recorder.RecordResolution(string(core.SourceLive))
			return quote, nil

		case stateFallback:
			quote = r.fallback.Generate(symbol)
			// Backdated so the next call retries the live source sooner.
			r.cache.Put(ctx, symbol, quote, r.now().Add(-r.cache.TTL()/2))
			r.recorder.RecordResolution(string(core.SourceSynthetic))
			r.logger.Info("serving synthetic quote",
				zap.String("symbol", symbol),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return quote, nil
		}
	}
}

type fetchResult struct {
	quote core.PriceQuote
	err   error
}

// attempt races one live fetch against the attempt timeout. The fetch
// goroutine writes to a buffered channel so a late result is dropped.
func (r *Resolver) attempt(ctx context.Context, symbol string) (core.PriceQuote, error) {
	handle := r.conns.Get()

	actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan fetchResult, 1)
	go func() {
		q, err := r.fetcher.Fetch(actx, symbol, handle)
		done <- fetchResult{quote: q, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && !res.quote.IsValid() {
			res.err = core.WrapError(core.ErrInvalidReading, fmt.Errorf("%s price %v", symbol, res.quote.Price))
		}
		r.recorder.RecordAttempt(outcome(res.err), time.Since(start))
		return res.quote, res.err
	case <-actx.Done():
		r.recorder.RecordAttempt(outcome(core.ErrTransportTimeout), time.Since(start))
		return core.PriceQuote{}, core.WrapError(core.ErrTransportTimeout,
			fmt.Errorf("%s attempt exceeded %s: %w", symbol, r.cfg.AttemptTimeout, actx.Err()))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, core.ErrUnsupportedSymbol):
		return "unsupported"
	case errors.Is(err, core.ErrInvalidReading):
		return "invalid_reading"
	case errors.Is(err, core.ErrTransportTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failure"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
