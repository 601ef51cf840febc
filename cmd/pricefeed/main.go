package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "pricefeed",
	Short: "pricefeed - resilient on-chain price resolution",
	Long: `pricefeed resolves crypto asset prices from Chainlink aggregators over a
pool of Ethereum RPC endpoints. Results are cached briefly, failed reads are
retried, and a synthetic quote is served when the chain cannot be reached.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
