//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"EventHorizon/pkg/config"
	"EventHorizon/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// infrastructure
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideJobQueue,

		// repositories
		ProvideVerdictStore,
		ProvideCacheService,
		ProvideVerdictCache,
		ProvideVerdictPublisher,

		// use cases
		ProvideClassifyUseCase,
		ProvideEngine,
		ProvideVerifier,
		ProvideScanUseCase,

		// transport
		ProvideHub,
		ProvideRateLimiter,

		wire.Struct(new(server.Deps), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}
