package main

import (
	"context"

	"RangeBreak/pkg/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report API",
	Long: `Start the HTTP API. With server.run_on_start a backtest over the
configured period starts immediately; POST /api/v1/backtests starts another.`,
	RunE: func(*cobra.Command, []string) error {
		return withApp(nil, func(ctx context.Context, app *server.App) error {
			return app.Serve(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
