package rpc

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
	"go.uber.org/zap"
)

// Public endpoints always added to the candidate pool.
var PublicEndpoints = []string{
	"https://eth.llamarpc.com",
	"https://rpc.ankr.com/eth",
	"https://ethereum-rpc.publicnode.com",
}

// FallbackEndpoint is used when the selected candidate cannot be dialed.
const FallbackEndpoint = "https://cloudflare-eth.com"

const (
	DefaultHandleTTL   = 60 * time.Second
	DefaultCallTimeout = 5 * time.Second
)

// Handle is a cached connection to one endpoint. Borrowers must not mutate it.
type Handle struct {
	Target    string
	CreatedAt time.Time
	Caller    Caller
}

// DialFunc builds a Caller for target.
type DialFunc func(target string, timeout time.Duration) (Caller, error)

// ManagerConfig holds connection manager settings.
type ManagerConfig struct {
	Endpoints   []string
	CallTimeout time.Duration
	HandleTTL   time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer overrides how handles are constructed.
func WithDialer(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPicker overrides random candidate selection. pick returns an index in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(m *Manager) { m.pick = pick }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSelectHook registers a callback invoked each time a new handle is built.
func WithSelectHook(fn func(target string)) Option {
	return func(m *Manager) { m.onSelect = fn }
}

// Manager selects and caches a single endpoint handle shared by all symbols.
type Manager struct {
	candidates  []string
	callTimeout time.Duration
	ttl         time.Duration

	dial     DialFunc
	now      func() time.Time
	pick     func(n int) int
	logger   *zap.Logger
	onSelect func(target string)

	mu     sync.Mutex
	handle *Handle
}

// NewManager creates a manager drawing from cfg.Endpoints plus PublicEndpoints.
func NewManager(cfg ManagerConfig, opts ...Option) *Manager {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.HandleTTL <= 0 {
		cfg.HandleTTL = DefaultHandleTTL
	}

	m := &Manager{
		candidates:  mergeCandidates(cfg.Endpoints, PublicEndpoints),
		callTimeout: cfg.CallTimeout,
		ttl:         cfg.HandleTTL,
		dial: func(target string, timeout time.Duration) (Caller, error) {
			return Dial(target, timeout)
		},
		now:    time.Now,
		pick:   rand.IntN,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Candidates returns the endpoint pool in selection order.
func (m *Manager) Candidates() []string {
	out := make([]string, len(m.candidates))
	copy(out, m.candidates)
	return out
}

// Get returns the cached handle, building a new one if it is missing or expired.
// It never fails.
func (m *Manager) Get() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.handle != nil && now.Sub(m.handle.CreatedAt) < m.ttl {
		return m.handle
	}

	target := m.candidates[m.pick(len(m.candidates))]
	caller, err := m.dial(target, m.callTimeout)
	if err != nil {
		m.logger.Warn("endpoint construction failed, using fallback",
			zap.String("target", target),
			zap.Error(err),
		)
		target = FallbackEndpoint
		caller, err = m.dial(target, m.callTimeout)
		if err != nil {
			caller = brokenCaller{err: err}
		}
	}

	m.handle = &Handle{Target: target, CreatedAt: now, Caller: caller}
	m.logger.Debug("selected rpc endpoint", zap.String("target", target))
	if m.onSelect != nil {
		m.onSelect(target)
	}
	return m.handle
}

// Invalidate drops the cached handle so the next Get picks again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.handle = nil
	m.mu.Unlock()
}

func mergeCandidates(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, e := range list {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// brokenCaller surfaces a dial error on every call so the failure is
// absorbed by the resolver instead of the manager.
type brokenCaller struct {
	err error
}

func (b brokenCaller) CallContract(context.Context, string, []byte) ([]byte, error) {
	return nil, core.WrapError(core.ErrTransportFailure, b.err)
}
