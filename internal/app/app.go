package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/pricefeed/internal/cache"
	"github.com/newthinker/pricefeed/internal/config"
	"github.com/newthinker/pricefeed/internal/feed"
	"github.com/newthinker/pricefeed/internal/metrics"
	"github.com/newthinker/pricefeed/internal/resolver"
	"github.com/newthinker/pricefeed/internal/rpc"
	"github.com/newthinker/pricefeed/internal/synthetic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App owns the resolution pipeline and its background jobs.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry

	registry *feed.Registry
	conns    *rpc.Manager
	store    cache.Store
	redis    *redis.Client
	resolver *resolver.Resolver
	batch    *resolver.Batch
	warmer   *Warmer

	mu      sync.Mutex
	running bool
}

// Option configures an App.
type Option func(*buildOptions)

type buildOptions struct {
	rpcOpts  []rpc.Option
	registry *feed.Registry
	fallback resolver.Fallback
}

// WithRPCOptions passes extra options to the connection manager.
func WithRPCOptions(opts ...rpc.Option) Option {
	return func(b *buildOptions) { b.rpcOpts = append(b.rpcOpts, opts...) }
}

// WithRegistry replaces the default feed registry.
func WithRegistry(r *feed.Registry) Option {
	return func(b *buildOptions) { b.registry = r }
}

// WithFallback replaces the synthetic generator.
func WithFallback(f resolver.Fallback) Option {
	return func(b *buildOptions) { b.fallback = f }
}

// New wires the pipeline from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := buildOptions{}
	for _, opt := range opts {
		opt(&b)
	}
	if b.registry == nil {
		b.registry = feed.DefaultRegistry()
	}
	if b.fallback == nil {
		b.fallback = synthetic.NewGenerator()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.NewRegistry(),
		registry: b.registry,
	}

	a.conns = rpc.NewManager(rpc.ManagerConfig{
		Endpoints:   cfg.RPC.Endpoints,
		CallTimeout: cfg.RPC.CallTimeout,
		HandleTTL:   cfg.RPC.HandleTTL,
	}, append([]rpc.Option{
		rpc.WithLogger(logger.Named("rpc")),
		rpc.WithSelectHook(a.metrics.RecordEndpointSelected),
	}, b.rpcOpts...)...)

	switch cfg.Cache.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		a.store = cache.NewRedis(a.redis, cfg.Cache.TTL, cfg.Cache.Redis.Prefix, logger.Named("cache"))
	default:
		a.store = cache.NewMemory(cfg.Cache.TTL)
	}

	rcfg := resolver.Config{
		AttemptTimeout: cfg.Resolver.AttemptTimeout,
		Backoff:        cfg.Resolver.Backoff,
		MaxRetries:     cfg.Resolver.MaxRetries,
		MemberTimeout:  cfg.Resolver.MemberTimeout,
		MaxBatch:       cfg.Resolver.MaxBatch,
	}
	ropts := []resolver.Option{
		resolver.WithRecorder(a.metrics),
		resolver.WithLogger(logger.Named("resolver")),
	}
	a.resolver = resolver.New(rcfg, feed.NewFetcher(a.registry), a.conns, b.fallback, a.store, ropts...)
	a.batch = resolver.NewBatch(a.resolver, b.fallback, rcfg, ropts...)

	if cfg.Warmup.Enabled {
		timeout := rcfg.MemberTimeout + time.Second
		a.warmer = NewWarmer(a.batch, cfg.Warmup.Schedule, cfg.Warmup.Symbols, timeout, logger.Named("warmup"))
	}

	logger.Info("pricefeed pipeline ready",
		zap.String("cache", cfg.Cache.Backend),
		zap.Int("endpoints", len(a.conns.Candidates())),
		zap.Int("feeds", len(a.registry.Symbols())),
	)
	return a, nil
}

// Start checks the cache backend and starts background jobs.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app already running")
	}

	if a.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.logger.Warn("redis unreachable, cache lookups will miss",
				zap.String("addr", a.cfg.Cache.Redis.Addr),
				zap.Error(err),
			)
		}
	}

	if a.warmer != nil {
		if err := a.warmer.Start(); err != nil {
			return err
		}
		go a.warmer.RunOnce(ctx)
	}

	a.running = true
	return nil
}

// Stop halts background jobs and releases the cache backend.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false

	if a.warmer != nil {
		a.warmer.Stop(ctx)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			return fmt.Errorf("closing redis: %w", err)
		}
	}
	return nil
}

func (a *App) Metrics() *metrics.Registry   { return a.metrics }
func (a *App) Registry() *feed.Registry     { return a.registry }
func (a *App) Resolver() *resolver.Resolver { return a.resolver }
func (a *App) Batch() *resolver.Batch       { return a.batch }
func (a *App) Store() cache.Store           { return a.store }

// GetStats returns application statistics.
func (a *App) GetStats() map[string]any {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()

	stats := map[string]any{
		"running":   running,
		"cache":     a.cfg.Cache.Backend,
		"endpoints": len(a.conns.Candidates()),
		"feeds":     len(a.registry.Symbols()),
	}
	if a.warmer != nil {
		stats["warmup"] = a.warmer.GetStats()
	}
	return stats
}
