package main

import (
	"context"
	"fmt"
	"strings"

	"RangeBreak/pkg/config"
	"RangeBreak/pkg/server"

	"github.com/spf13/cobra"
)

var seedDir string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy JSON bar files into ClickHouse",
	Long: `Load <dir>/<code>.json for every roster instrument and the benchmark
and insert the bars into clickhouse.daily_bars.

Examples:
  app seed --dir data/bars`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		override := func(cfg *config.Config) error {
			if seedDir != "" {
				cfg.Source.Dir = seedDir
			}
			if !cfg.UsesClickHouse() {
				cfg.Sinks = append(cfg.Sinks, config.SinkClickHouse)
			}
			return nil
		}
		return withApp(override, func(ctx context.Context, app *server.App) error {
			rep, err := app.Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d instruments, %d bars\n", rep.Instruments, rep.Bars)
			if len(rep.Missing) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "missing: %s\n", strings.Join(rep.Missing, ", "))
			}
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedDir, "dir", "", "directory of <code>.json bar files (default source.dir)")
	rootCmd.AddCommand(seedCmd)
}
