// internal/api/handler/api/symbols.go
package api

import (
	"net/http"

	"github.com/newthinker/pricefeed/internal/api/response"
)

// SymbolLister lists symbols with a live feed.
type SymbolLister interface {
	Symbols() []string
}

// SymbolsHandler handles symbol listing requests.
type SymbolsHandler struct {
	registry SymbolLister
}

// NewSymbolsHandler creates a new symbols handler.
func NewSymbolsHandler(registry SymbolLister) *SymbolsHandler {
	return &SymbolsHandler{registry: registry}
}

// List returns every supported symbol.
func (h *SymbolsHandler) List(w http.ResponseWriter, r *http.Request) {
	symbols := h.registry.Symbols()
	response.JSON(w, http.StatusOK, map[string]any{
		"symbols": symbols,
		"count":   len(symbols),
	})
}
