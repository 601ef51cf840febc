package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/pricefeed/internal/resolver"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BatchResolver resolves a set of symbols in one pass.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, symbols []string) resolver.BatchResult
}

// Warmer periodically resolves a fixed symbol set so the quote cache stays hot.
type Warmer struct {
	batch    BatchResolver
	schedule string
	symbols  []string
	timeout  time.Duration
	logger   *zap.Logger

	cron *cron.Cron

	mu         sync.RWMutex
	running    bool
	runs       int
	lastRun    time.Time
	lastStatus resolver.Status
}

// NewWarmer creates a warmer. timeout bounds each run.
func NewWarmer(batch BatchResolver, schedule string, symbols []string, timeout time.Duration, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{
		batch:    batch,
		schedule: schedule,
		symbols:  append([]string(nil), symbols...),
		timeout:  timeout,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the job and starts the scheduler.
func (w *Warmer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("warmer already running")
	}

	if _, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		w.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling warmup %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.running = true
	w.logger.Info("cache warmup started",
		zap.String("schedule", w.schedule),
		zap.Strings("symbols", w.symbols),
	)
	return nil
}

// Stop halts the scheduler and waits for a running job, up to ctx.
func (w *Warmer) Stop(ctx context.Context) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.logger.Warn("warmup job still running at shutdown")
	}
	w.logger.Info("cache warmup stopped")
}

// RunOnce resolves the configured symbols immediately.
func (w *Warmer) RunOnce(ctx context.Context) resolver.BatchResult {
	result := w.batch.ResolveBatch(ctx, w.symbols)

	w.mu.Lock()
	w.runs++
	w.lastRun = result.Timestamp
	w.lastStatus = result.Performance.Status
	w.mu.Unlock()

	w.logger.Debug("cache warmup run",
		zap.Int("count", result.Count),
		zap.String("status", string(result.Performance.Status)),
	)
	return result
}

// Running reports whether the scheduler is active.
func (w *Warmer) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns warmup statistics.
func (w *Warmer) GetStats() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return map[string]any{
		"running":     w.running,
		"schedule":    w.schedule,
		"symbols":     len(w.symbols),
		"runs":        w.runs,
		"last_run":    w.lastRun,
		"last_status": string(w.lastStatus),
	}
}
