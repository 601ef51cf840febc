// Package feed reads USD prices from on-chain Chainlink-style aggregators.
package feed

import (
	"fmt"
	"sort"

	"github.com/newthinker/pricefeed/internal/core"
)

// Address is the hex address of an aggregator contract.
type Address string

// Ethereum mainnet USD aggregators.
var mainnetFeeds = map[string]Address{
	"ETH":   "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	"BTC":   "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
	"LINK":  "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c",
	"USDC":  "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6",
	"USDT":  "0x3E7d1eAB13ad0104d2750B8863b489D65364e32D",
	"DAI":   "0xAed0c38402a5d19df6E4c03F4E2DceD6e29c1ee9",
	"AAVE":  "0x547a514d5e3769680Ce22B2361c10Ea13619e8a9",
	"UNI":   "0x553303d460EE0afB37EdFf9bE42922D8FF63220e",
	"MATIC": "0x7bAC85A8a13A4BcD8abb3eB7d6b4d632c5a57676",
	"SOL":   "0x4ffC43a60e009B551865A93d232E33Fce9f01507",
}

// Registry maps symbols to feed addresses. It is immutable after construction.
type Registry struct {
	feeds map[string]Address
}

// NewRegistry creates a registry from the given mapping. Keys are normalized.
func NewRegistry(feeds map[string]Address) *Registry {
	r := &Registry{feeds: make(map[string]Address, len(feeds))}
	for symbol, addr := range feeds {
		r.feeds[core.NormalizeSymbol(symbol)] = addr
	}
	return r
}

// DefaultRegistry returns the mainnet registry.
func DefaultRegistry() *Registry {
	return NewRegistry(mainnetFeeds)
}

// Lookup returns the feed address for symbol.
func (r *Registry) Lookup(symbol string) (Address, error) {
	addr, ok := r.feeds[core.NormalizeSymbol(symbol)]
	if !ok {
		return "", core.WrapError(core.ErrUnsupportedSymbol, fmt.Errorf("no feed for %q", symbol))
	}
	return addr, nil
}

// Supports reports whether symbol has a feed.
func (r *Registry) Supports(symbol string) bool {
	_, ok := r.feeds[core.NormalizeSymbol(symbol)]
	return ok
}

// Symbols returns the supported symbols, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.feeds))
	for s := range r.feeds {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
