// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/pricefeed/internal/app"
	"github.com/newthinker/pricefeed/internal/config"
	"github.com/newthinker/pricefeed/internal/core"
	"github.com/newthinker/pricefeed/internal/rpc"
	"go.uber.org/zap"
)

// chainNode serves decimals()=8 and a fixed latestRoundData answer.
type chainNode struct {
	answer int64
	down   bool
}

func (n chainNode) CallContract(_ context.Context, _ string, data []byte) ([]byte, error) {
	if n.down {
		return nil, core.WrapError(core.ErrTransportFailure, errors.New("connection refused"))
	}
	word := func(v int64) []byte { return big.NewInt(v).FillBytes(make([]byte, 32)) }
	if len(data) == 4 && data[0] == 0x31 {
		return word(8), nil
	}
	var out []byte
	for _, v := range []int64{7, n.answer, 1767225600, 1767225600, 7} {
		out = append(out, word(v)...)
	}
	return out, nil
}

// stalledNode never answers before the caller gives up.
type stalledNode struct{}

func (stalledNode) CallContract(ctx context.Context, _ string, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestServer(t *testing.T, apiKey string, node chainNode) *Server {
	t.Helper()

	cfg := config.Defaults()
	cfg.Resolver.AttemptTimeout = 50 * time.Millisecond
	cfg.Resolver.Backoff = 5 * time.Millisecond
	cfg.Resolver.MemberTimeout = 200 * time.Millisecond

	a, err := app.New(cfg, zap.NewNop(), app.WithRPCOptions(
		rpc.WithDialer(func(string, time.Duration) (rpc.Caller, error) { return node, nil }),
	))
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	srv, err := NewServer(Config{
		Host:        "localhost",
		Port:        0,
		APIKey:      apiKey,
		MetricsPath: "/metrics",
	}, Dependencies{
		Resolver: a.Resolver(),
		Batch:    a.Batch(),
		Registry: a.Registry(),
		Metrics:  a.Metrics(),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, "", chainNode{answer: 250000000000})

	w := serve(srv, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected health body %q", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_NewServer_MissingDeps(t *testing.T) {
	if _, err := NewServer(Config{Port: 8080}, Dependencies{}, nil); err == nil {
		t.Error("expected error without dependencies")
	}
}

func TestServer_SinglePrice(t *testing.T) {
	srv := newTestServer(t, "", chainNode{answer: 250012345678})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/prices/eth", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var q core.PriceQuote
	if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
		t.Fatalf("decoding quote: %v", err)
	}
	if q.Symbol != "ETH" || q.Price != 2500.12345678 || q.Source != core.SourceLive {
		t.Errorf("unexpected quote %+v", q)
	}
	if !q.LastUpdated.Equal(time.Unix(1767225600, 0)) {
		t.Errorf("expected lastUpdated from round, got %s", q.LastUpdated)
	}
}

func TestServer_SinglePrice_Errors(t *testing.T) {
	srv := newTestServer(t, "", chainNode{answer: 1})

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/api/v1/prices/DOGE", http.StatusNotFound, "UNSUPPORTED_SYMBOL"},
		{"/api/v1/prices/BTC%3B", http.StatusBadRequest, "INVALID_SYMBOL"},
	}

	for _, tt := range tests {
		w := serve(srv, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.code, w.Code)
			continue
		}
		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Error.Code != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.path, tt.want, resp.Error.Code)
		}
	}
}

func TestServer_BatchAllSynthetic(t *testing.T) {
	srv := newTestServer(t, "", chainNode{down: true})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/prices?symbols=ETH,BTC,DOGE", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Prices      []core.PriceQuote `json:"prices"`
		Count       int               `json:"count"`
		Performance struct {
			RequestedTokens  int    `json:"requestedTokens"`
			SyntheticSources int    `json:"syntheticSources"`
			Status           string `json:"status"`
		} `json:"performance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding batch: %v", err)
	}
	if body.Count != 2 || len(body.Prices) != 2 {
		t.Fatalf("expected 2 prices, got %d", body.Count)
	}
	if body.Prices[0].Symbol != "ETH" || body.Prices[1].Symbol != "BTC" {
		t.Errorf("expected input order, got %s,%s", body.Prices[0].Symbol, body.Prices[1].Symbol)
	}
	if body.Performance.Status != "all-synthetic" || body.Performance.SyntheticSources != 2 {
		t.Errorf("unexpected performance %+v", body.Performance)
	}
	if body.Performance.RequestedTokens != 3 {
		t.Errorf("expected 3 requested tokens, got %d", body.Performance.RequestedTokens)
	}
}

func TestServer_BatchRequiresSymbols(t *testing.T) {
	srv := newTestServer(t, "", chainNode{answer: 1})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/prices", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestServer_Symbols(t *testing.T) {
	srv := newTestServer(t, "", chainNode{answer: 1})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/symbols", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ETH"`) {
		t.Errorf("expected ETH in symbols, got %s", w.Body.String())
	}
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv := newTestServer(t, "test-key", chainNode{answer: 1})

	w := serve(srv, httptest.NewRequest("GET", "/api/v1/symbols", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}

	// Health stays open
	w = serve(srv, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for health, got %d", w.Code)
	}
}

func TestServer_APIAuth_ValidKey(t *testing.T) {
	srv := newTestServer(t, "test-key", chainNode{answer: 1})

	req := httptest.NewRequest("GET", "/api/v1/symbols", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := serve(srv, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, "", chainNode{answer: 250000000000})

	serve(srv, httptest.NewRequest("GET", "/api/v1/prices/ETH", nil))
	w := serve(srv, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`pricefeed_resolutions_total{source="live"} 1`,
		`http_requests_total{method="GET",path="/api/v1/prices/{symbol}",status="2xx"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

// newStalledServer serves a pipeline whose every live attempt times out.
// writeTimeout is shorter than the resolver's worst case.
func newStalledServer(t *testing.T, writeTimeout time.Duration, withBudget bool) string {
	t.Helper()

	cfg := config.Defaults()
	cfg.Resolver.AttemptTimeout = 100 * time.Millisecond
	cfg.Resolver.Backoff = 20 * time.Millisecond
	cfg.Resolver.MaxRetries = 2
	cfg.Resolver.MemberTimeout = 200 * time.Millisecond

	a, err := app.New(cfg, zap.NewNop(), app.WithRPCOptions(
		rpc.WithDialer(func(string, time.Duration) (rpc.Caller, error) { return stalledNode{}, nil }),
	))
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	worst := a.Resolver().Config().WorstCase()
	if worst <= writeTimeout {
		t.Fatalf("worst case %s should exceed write timeout %s", worst, writeTimeout)
	}

	scfg := Config{WriteTimeout: writeTimeout}
	if withBudget {
		scfg.ResolveBudget = worst
	}
	srv, err := NewServer(scfg, Dependencies{
		Resolver: a.Resolver(),
		Batch:    a.Batch(),
		Registry: a.Registry(),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return "http://" + l.Addr().String()
}

func TestServer_SinglePrice_OutlastsWriteTimeout(t *testing.T) {
	base := newStalledServer(t, 100*time.Millisecond, true)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/api/v1/prices/ETH")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var q core.PriceQuote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		t.Fatalf("decoding quote: %v", err)
	}
	if q.Symbol != "ETH" || q.Source != core.SourceSynthetic {
		t.Errorf("expected synthetic ETH quote, got %+v", q)
	}
}

func TestServer_SinglePrice_WriteTimeoutWithoutBudget(t *testing.T) {
	base := newStalledServer(t, 100*time.Millisecond, false)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/api/v1/prices/ETH")
	if err == nil {
		resp.Body.Close()
		t.Fatalf("expected the connection to drop, got %d", resp.StatusCode)
	}
}

func TestConfig_WriteTimeout(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{"default", Config{}, 15 * time.Second},
		{"explicit", Config{WriteTimeout: 30 * time.Second}, 30 * time.Second},
		{"budget raises", Config{ResolveBudget: 23 * time.Second}, 28 * time.Second},
		{"budget below timeout", Config{WriteTimeout: 60 * time.Second, ResolveBudget: 23 * time.Second}, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := tt.cfg.writeTimeout(); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}
