package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/handler/api"
	"RangeBreak/internal/usecase"
	"RangeBreak/pkg/config"
	xhttp "RangeBreak/pkg/http"
	applogger "RangeBreak/pkg/logger"
	"RangeBreak/pkg/util"
)

// defaultYears is the period used when the config names no start date.
const defaultYears = 5

// App encapsulates the application lifecycle for the backtest, serve and seed
// commands.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	svc     *usecase.BacktestService
	seeder  *usecase.BarSeeder
	roster  drepo.RosterSource
	handler *api.ReportEchoHandler

	collector *applogger.LogCollector
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.BacktestService,
	seeder *usecase.BarSeeder,
	roster drepo.RosterSource,
	handler *api.ReportEchoHandler,
) *App {
	return &App{cfg: cfg, log: l, svc: svc, seeder: seeder, roster: roster, handler: handler}
}

// AttachLogDigest folds repeated warn/error lines and ships them to p.
func (a *App) AttachLogDigest(p applogger.Publisher) {
	a.collector = applogger.NewLogCollector(applogger.CollectorConfig{
		FlushInterval:  a.cfg.Log.Digest.Interval,
		CountThreshold: a.cfg.Log.Digest.Threshold,
		Publisher:      p,
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
		},
	})
	a.log.AttachCollector(a.collector)
}

// Params resolves the configured backtest period: to defaults to today and
// from to five years before it.
func (a *App) Params() usecase.BacktestParams {
	to := util.ParseDateDefault(a.cfg.Backtest.To, util.Day(time.Now()))
	from := util.ParseDateDefault(a.cfg.Backtest.From, to.AddDate(-defaultYears, 0, 0))
	return usecase.BacktestParams{From: from, To: to, CapitalUnit: a.cfg.Backtest.CapitalUnit}
}

// RunBacktest runs once in the foreground.
func (a *App) RunBacktest(ctx context.Context, p usecase.BacktestParams) (*models.Run, error) {
	defer a.flush()
	return a.svc.Run(ctx, p)
}

// Seed copies the configured bar files, benchmark included, into ClickHouse.
func (a *App) Seed(ctx context.Context) (usecase.SeedReport, error) {
	defer a.flush()
	instruments, err := a.roster.LoadRoster(ctx)
	if err != nil {
		return usecase.SeedReport{}, fmt.Errorf("load roster: %w", err)
	}
	instruments = append(instruments, models.Instrument{Code: a.cfg.Regime.Benchmark})
	return a.seeder.Seed(ctx, instruments)
}

// Serve starts the HTTP API, optionally kicks off a run with the configured
// period, and blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	opts := []xhttp.ServerOption{
		xhttp.WithAddress(a.cfg.Server.Host, a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(a.cfg.Metrics.Path))
	}
	if len(a.cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins))
	}
	srv := xhttp.NewServer(a.log, []xhttp.Handler{a.handler}, opts...)
	srv.Start()

	if a.cfg.Server.RunOnStart {
		p := a.Params()
		if id, err := a.svc.Start(p); err != nil {
			a.log.Warn("initial backtest not started", applogger.Error(err))
		} else {
			a.log.Info("initial backtest started", applogger.String("run_id", id), applogger.Date("from", p.From), applogger.Date("to", p.To))
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(srv)
}

func (a *App) shutdown(srv *xhttp.Server) error {
	a.svc.Close()

	var errs []error
	if err := srv.Stop(context.Background()); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.flush()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) flush() {
	if a.collector != nil {
		a.collector.Flush()
	}
}

// Close stops the log digest. Clients are closed by the injector's cleanup.
func (a *App) Close() {
	if a.collector != nil {
		a.log.DetachCollector()
		a.collector = nil
	}
}
