// Package rpc provides a minimal Ethereum JSON-RPC client for read-only
// contract calls and a manager that selects and caches an endpoint handle.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
)

// Caller performs read-only contract calls against a chain.
type Caller interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

// Client is a JSON-RPC client bound to one endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	nextID     atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type callArgs struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Dial validates the endpoint and returns a client whose calls are each
// bounded by timeout.
func Dial(endpoint string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	return &Client{
		endpoint: u.String(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}, nil
}

// CallContract issues eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "eth_call",
		Params: []any{
			callArgs{To: to, Data: "0x" + hex.EncodeToString(data)},
			"latest",
		},
	})
	if err != nil {
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, core.WrapError(core.ErrTransportTimeout, err)
		}
		return nil, core.WrapError(core.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("decoding response: %w", err))
	}
	if out.Error != nil {
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message))
	}

	var result string
	if err := json.Unmarshal(out.Result, &result); err != nil {
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("decoding result: %w", err))
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(result, "0x"))
	if err != nil {
		return nil, core.WrapError(core.ErrTransportFailure, fmt.Errorf("decoding hex result: %w", err))
	}
	return raw, nil
}
