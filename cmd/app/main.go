package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RangeBreak/internal/di"
	"RangeBreak/pkg/config"
	"RangeBreak/pkg/server"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Range breakout backtester",
	Long: `Backtest range breakouts over a roster of daily series, split the
outcomes by benchmark gap regime and compression band, and test each bucket
for a non-zero mean return.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

// withApp loads config, applies overrides, wires the app and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withApp(override func(*config.Config) error, fn func(ctx context.Context, app *server.App) error) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if override != nil {
		if err := override(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
