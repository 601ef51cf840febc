package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newthinker/pricefeed/internal/app"
	"github.com/newthinker/pricefeed/internal/core"
	"github.com/newthinker/pricefeed/internal/logger"
	"github.com/spf13/cobra"
)

var priceTimeout time.Duration

var priceCmd = &cobra.Command{
	Use:   "price SYMBOL...",
	Short: "Resolve prices once and print them as JSON",
	Example: `  pricefeed price ETH
  pricefeed price eth,btc link`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrice,
}

func init() {
	priceCmd.Flags().DurationVar(&priceTimeout, "timeout", 30*time.Second, "overall deadline")
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	cfg.Warmup.Enabled = false

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	var symbols []string
	for _, arg := range args {
		symbols = append(symbols, core.ParseSymbolList(arg)...)
	}
	if len(symbols) == 0 {
		return core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("no symbols given"))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), priceTimeout)
	defer cancel()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if len(symbols) == 1 {
		quote, err := a.Resolver().Resolve(ctx, symbols[0])
		if err != nil {
			return err
		}
		return enc.Encode(quote)
	}
	return enc.Encode(a.Batch().ResolveBatch(ctx, symbols))
}
