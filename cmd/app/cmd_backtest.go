package main

import (
	"context"
	"fmt"

	"RangeBreak/pkg/config"
	"RangeBreak/pkg/server"

	"github.com/spf13/cobra"
)

var (
	btFrom        string
	btTo          string
	btCapital     float64
	btInstruments []string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest and write the configured sinks",
	Long: `Run the breakout backtest once over the roster and exit.

Examples:
  app backtest --from 2019-01-04 --to 2024-12-30
  app backtest --capital 500000 --instruments 7203,6758`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		override := func(cfg *config.Config) error {
			if btFrom != "" {
				cfg.Backtest.From = btFrom
			}
			if btTo != "" {
				cfg.Backtest.To = btTo
			}
			if btCapital != 0 {
				cfg.Backtest.CapitalUnit = btCapital
			}
			return nil
		}
		return withApp(override, func(ctx context.Context, app *server.App) error {
			p := app.Params()
			p.Instruments = btInstruments
			run, err := app.RunBacktest(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d events, %d failed instruments, %d buckets in %s\n",
				run.ID, len(run.Result.Events), len(run.Result.Failed), len(run.Report.Buckets), run.Duration)
			return nil
		})
	},
}

func init() {
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first anchor date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "last anchor date (YYYY-MM-DD)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "capital per position used for sizing")
	backtestCmd.Flags().StringSliceVar(&btInstruments, "instruments", nil, "restrict the run to these codes")
	rootCmd.AddCommand(backtestCmd)
}
