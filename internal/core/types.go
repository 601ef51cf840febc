package core

import "time"

// Source labels the provenance of a quote
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
)

// Fallback reasons attached to synthetic quotes produced by a batch member
// that did not complete.
const (
	ReasonTimeout = "timeout"
	ReasonError   = "error"
)

// PriceQuote is a resolved USD price for one symbol
type PriceQuote struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Change24h   float64   `json:"change24h"`
	LastUpdated time.Time `json:"lastUpdated"`
	Source      Source    `json:"source"`
	Reason      string    `json:"reason,omitempty"`
}

// IsValid checks if the quote has required fields
func (q PriceQuote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0 && q.Source != ""
}

// IsLive reports whether the price came from the on-chain feed
func (q PriceQuote) IsLive() bool {
	return q.Source == SourceLive
}
