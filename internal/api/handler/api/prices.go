// internal/api/handler/api/prices.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/pricefeed/internal/api/response"
	"github.com/newthinker/pricefeed/internal/core"
	"github.com/newthinker/pricefeed/internal/resolver"
	"go.uber.org/zap"
)

// SingleResolver resolves one symbol.
type SingleResolver interface {
	Resolve(ctx context.Context, symbol string) (core.PriceQuote, error)
}

// BatchResolver resolves many symbols at once.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, symbols []string) resolver.BatchResult
}

// PricesHandler serves quote lookups.
type PricesHandler struct {
	single SingleResolver
	batch  BatchResolver
	logger *zap.Logger
}

// NewPricesHandler creates a new prices handler.
func NewPricesHandler(single SingleResolver, batch BatchResolver, logger *zap.Logger) *PricesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PricesHandler{single: single, batch: batch, logger: logger}
}

// Get returns the quote for the {symbol} path parameter.
func (h *PricesHandler) Get(w http.ResponseWriter, r *http.Request) {
	symbol := core.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err := core.ValidateSymbol(symbol); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	quote, err := h.single.Resolve(r.Context(), symbol)
	if err != nil {
		status := response.StatusFor(err)
		if !errors.Is(err, core.ErrUnsupportedSymbol) {
			h.logger.Warn("price resolution failed",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
		response.Error(w, status, err)
		return
	}

	response.Raw(w, http.StatusOK, quote)
}

// List resolves the comma-separated symbols query parameter.
func (h *PricesHandler) List(w http.ResponseWriter, r *http.Request) {
	symbols := core.ParseSymbolList(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("symbols query parameter required")))
		return
	}

	result := h.batch.ResolveBatch(r.Context(), symbols)
	response.Raw(w, http.StatusOK, result)
}
