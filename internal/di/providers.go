package di

import (
	"context"
	"fmt"
	"math"
	"time"

	"RangeBreak/internal/domain/models"
	drepo "RangeBreak/internal/domain/repository"
	"RangeBreak/internal/handler/api"
	internalrepo "RangeBreak/internal/repository"
	"RangeBreak/internal/services/analytics"
	"RangeBreak/internal/services/regime"
	"RangeBreak/internal/usecase"
	"RangeBreak/pkg/cache"
	pkgch "RangeBreak/pkg/clickhouse"
	"RangeBreak/pkg/config"
	pkghttp "RangeBreak/pkg/http"
	"RangeBreak/pkg/http/middleware"
	pkgkafka "RangeBreak/pkg/kafka"
	applogger "RangeBreak/pkg/logger"
	"RangeBreak/pkg/metrics"
	pkgpg "RangeBreak/pkg/postgres"
	"RangeBreak/pkg/server"
)

const schemaTimeout = 10 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects and creates the schema when the source
// or a sink uses ClickHouse. Otherwise it returns nil.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.UsesClickHouse() {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.Backtest.Workers+2, cfg.Backtest.Workers),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(client.Database())); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvidePostgresClient connects and migrates when the postgres sink is on.
func ProvidePostgresClient(cfg *config.Config, l *applogger.Logger) (*pkgpg.Client, func(), error) {
	if !cfg.HasSink(config.SinkPostgres) {
		return nil, func() {}, nil
	}
	client, err := pkgpg.NewClient(
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithPool(cfg.Postgres.MaxOpen, cfg.Postgres.MaxIdle, 0),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.Migrate(ctx, internalrepo.PostgresSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideKafkaProducer creates a producer when the kafka sink or the log
// digest is on.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.UsesKafka() {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideCache creates the series cache: memory only, or memory over Redis.
// It returns nil when caching is off.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	c := cfg.Source.Cache
	if !c.Enabled {
		return nil, func() {}, nil
	}
	if !c.Redis {
		mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(c.MemorySize), cache.WithMemoryTTL(c.TTL))
		return mem, func() { _ = mem.Close() }, nil
	}

	redis, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 0),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	layered := cache.NewLayeredCache(redis, cache.WithLayeredMemory(c.MemorySize, c.TTL))
	cleanup := func() {
		if err := layered.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return layered, cleanup, nil
}

// ProvideClickHouseStore wraps the client; nil when ClickHouse is unused.
func ProvideClickHouseStore(client *pkgch.Client, l *applogger.Logger) *internalrepo.ClickHouseStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewClickHouseStore(client, l)
}

// ProvideBarSource picks the configured source and puts the cache in front.
func ProvideBarSource(
	cfg *config.Config,
	store *internalrepo.ClickHouseStore,
	c cache.Service,
	l *applogger.Logger,
) (drepo.BarSource, error) {
	var src drepo.BarSource
	switch cfg.Source.Type {
	case config.SourceFile:
		src = internalrepo.NewFileBarSource(cfg.Source.Dir)
	case config.SourceClickHouse:
		src = store
	case config.SourceHTTP:
		h := cfg.Source.HTTP
		client := pkghttp.NewClient(
			pkghttp.WithTimeout(h.Timeout),
			pkghttp.WithRateLimit(h.RPS, h.Burst),
			pkghttp.WithRetry(h.MaxRetries, 0),
			pkghttp.WithBreakerName("bars-api"),
		)
		src = internalrepo.NewHTTPBarSource(client, h.BaseURL, h.Token)
	default:
		return nil, fmt.Errorf("unknown bar source %q", cfg.Source.Type)
	}

	if c != nil {
		return internalrepo.NewCachedBarSource(src, c, cfg.Source.Cache.TTL, l), nil
	}
	return src, nil
}

// ProvideRoster reads the instrument list from YAML.
func ProvideRoster(cfg *config.Config) drepo.RosterSource {
	return internalrepo.NewFileRoster(cfg.Roster.Path)
}

// ProvideKafkaPublisher creates the run/log publisher; nil without a producer.
func ProvideKafkaPublisher(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.KafkaPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, internalrepo.KafkaTopics{
		Events:  cfg.Kafka.Topics.Events,
		Reports: cfg.Kafka.Topics.Reports,
		Logs:    cfg.Kafka.Topics.Logs,
	})
}

// ProvideSinks builds the run sinks in configured order.
func ProvideSinks(
	cfg *config.Config,
	ch *internalrepo.ClickHouseStore,
	pg *pkgpg.Client,
	pub *internalrepo.KafkaPublisher,
) ([]drepo.RunSink, error) {
	sinks := make([]drepo.RunSink, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkFile:
			sinks = append(sinks, internalrepo.NewFileExporter(cfg.Output.Dir))
		case config.SinkClickHouse:
			sinks = append(sinks, ch)
		case config.SinkPostgres:
			sinks = append(sinks, internalrepo.NewPostgresResultStore(pg, cfg.Postgres.Timeout))
		case config.SinkKafka:
			sinks = append(sinks, pub)
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}

// ProvideClassifier creates the breakout classifier.
func ProvideClassifier(cfg *config.Config) *analytics.Classifier {
	return analytics.NewClassifier(
		analytics.WithBreakoutBars(cfg.Backtest.BreakoutBars),
		analytics.WithRangeBars(cfg.Backtest.RangeBars),
		analytics.WithStopFractions(cfg.Backtest.StopFractions),
	)
}

// ProvideSimulator creates the stop-loss simulator.
func ProvideSimulator(cfg *config.Config) *analytics.StopLossSimulator {
	return analytics.NewStopLossSimulator(cfg.Backtest.Horizons)
}

// ProvideLabeler creates the benchmark regime labeler.
func ProvideLabeler(cfg *config.Config) (*regime.Labeler, error) {
	return regime.NewLabeler(regime.Split(cfg.Regime.Split))
}

// ProvideDriver creates the backtest driver.
func ProvideDriver(
	cfg *config.Config,
	bars drepo.BarSource,
	classifier *analytics.Classifier,
	sim *analytics.StopLossSimulator,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.BacktestDriver {
	return usecase.NewBacktestDriver(bars, classifier, sim, m, l, usecase.DriverOptions{
		Workers:        cfg.Backtest.Workers,
		ATRBars:        cfg.Backtest.ATRBars,
		IncludeControl: cfg.Backtest.IncludeControl,
	})
}

// ProvideAggregator creates the regime aggregator.
func ProvideAggregator(cfg *config.Config) (*usecase.RegimeAggregator, error) {
	return usecase.NewRegimeAggregator(cfg.Backtest.Horizons, cfg.Backtest.StopFractions, bands(cfg.Backtest.Bands), cfg.Backtest.Alpha)
}

func bands(in []config.BandConfig) []models.Band {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Band, len(in))
	for i, b := range in {
		out[i] = models.Band{Min: b.Min, Max: b.Max}
		if b.Max == 0 {
			out[i].Max = math.Inf(1)
		}
	}
	return out
}

// ProvideBacktestService creates the run pipeline.
func ProvideBacktestService(
	cfg *config.Config,
	roster drepo.RosterSource,
	bars drepo.BarSource,
	labeler *regime.Labeler,
	driver *usecase.BacktestDriver,
	aggregator *usecase.RegimeAggregator,
	sinks []drepo.RunSink,
	m drepo.Metrics,
	l *applogger.Logger,
) (*usecase.BacktestService, func()) {
	svc := usecase.NewBacktestService(roster, bars, labeler, driver, aggregator, sinks, m, l, cfg.Regime.Benchmark)
	return svc, svc.Close
}

// ProvideSeeder copies JSON bar files into ClickHouse.
func ProvideSeeder(cfg *config.Config, store *internalrepo.ClickHouseStore, l *applogger.Logger) *usecase.BarSeeder {
	var to drepo.BarStore
	if store != nil {
		to = store
	}
	return usecase.NewBarSeeder(internalrepo.NewFileBarSource(cfg.Source.Dir), to, l)
}

// ProvideReportHandler creates the report API.
func ProvideReportHandler(cfg *config.Config, svc *usecase.BacktestService, l *applogger.Logger) *api.ReportEchoHandler {
	return api.NewReportEchoHandler(l, svc, cfg.Backtest.CapitalUnit, middleware.NewKeyedLimiter(0.2, 3))
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.BacktestService,
	seeder *usecase.BarSeeder,
	roster drepo.RosterSource,
	handler *api.ReportEchoHandler,
	pub *internalrepo.KafkaPublisher,
) *server.App {
	app := server.New(cfg, l, svc, seeder, roster, handler)
	if pub != nil && cfg.Log.Digest.Enabled {
		app.AttachLogDigest(pub)
	}
	return app
}
