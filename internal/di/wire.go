//go:build wireinject
// +build wireinject

package di

import (
	"RangeBreak/pkg/config"
	"RangeBreak/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideClickHouseStore,
		ProvideBarSource,
		ProvideRoster,
		ProvideKafkaPublisher,
		ProvideSinks,

		// Domain services and use cases
		ProvideClassifier,
		ProvideSimulator,
		ProvideLabeler,
		ProvideDriver,
		ProvideAggregator,
		ProvideBacktestService,
		ProvideSeeder,

		// Transport
		ProvideReportHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
