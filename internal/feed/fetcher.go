package feed

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/newthinker/pricefeed/internal/core"
	"github.com/newthinker/pricefeed/internal/rpc"
	"golang.org/x/sync/errgroup"
)

// Fetcher builds live quotes from aggregator reads.
type Fetcher struct {
	registry *Registry
	now      func() time.Time
}

// NewFetcher creates a fetcher backed by registry.
func NewFetcher(registry *Registry) *Fetcher {
	return &Fetcher{registry: registry, now: time.Now}
}

// Fetch reads decimals and the latest round for symbol through handle.
// Unsupported symbols return core.ErrUnsupportedSymbol before any call is made.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, handle *rpc.Handle) (core.PriceQuote, error) {
	symbol = core.NormalizeSymbol(symbol)
	addr, err := f.registry.Lookup(symbol)
	if err != nil {
		return core.PriceQuote{}, err
	}

	var (
		decimals uint8
		round    RoundData
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := handle.Caller.CallContract(gctx, string(addr), decimalsSelector)
		if err != nil {
			return err
		}
		decimals, err = decodeDecimals(out)
		if err != nil {
			return core.WrapError(core.ErrTransportFailure, err)
		}
		return nil
	})
	g.Go(func() error {
		out, err := handle.Caller.CallContract(gctx, string(addr), latestRoundDataSelector)
		if err != nil {
			return err
		}
		round, err = decodeRoundData(out)
		if err != nil {
			return core.WrapError(core.ErrTransportFailure, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.PriceQuote{}, fmt.Errorf("reading %s feed: %w", symbol, err)
	}

	if round.Answer.Sign() <= 0 {
		return core.PriceQuote{}, core.WrapError(core.ErrInvalidReading,
			fmt.Errorf("%s answer %s", symbol, round.Answer))
	}

	price := ScalePrice(round.Answer, decimals)
	if price <= 0 {
		return core.PriceQuote{}, core.WrapError(core.ErrInvalidReading,
			fmt.Errorf("%s answer %s underflows at %d decimals", symbol, round.Answer, decimals))
	}

	updated := f.now().UTC()
	if round.UpdatedAt.IsInt64() && round.UpdatedAt.Sign() > 0 {
		updated = time.Unix(round.UpdatedAt.Int64(), 0).UTC()
	}

	return core.PriceQuote{
		Symbol:      symbol,
		Price:       price,
		Change24h:   PlaceholderChange24h(symbol, f.now()),
		LastUpdated: updated,
		Source:      core.SourceLive,
	}, nil
}

// ScalePrice converts a raw integer reading into a float using decimals.
func ScalePrice(raw *big.Int, decimals uint8) float64 {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	price, _ := new(big.Rat).SetFrac(raw, scale).Float64()
	return price
}
