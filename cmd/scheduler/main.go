package main

import (
	"kairos/commons/config"
	"kairos/commons/server"
	internalConfig "kairos/internal/config"

	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.WithLogger(config.ProvideFxLogger),
		fx.Provide(
			internalConfig.ProvideConfig,
			internalConfig.ProvideLogger,
			internalConfig.ProvideClock,
			config.ProvideRouteDependencies,
			internalConfig.ProvideStore,
			internalConfig.ProvideQueueBackend,
			internalConfig.ProvideQueueClient,
			internalConfig.ProvideLocker,
			internalConfig.ProvideSlackClient,
			internalConfig.ProvideAlerter,
			internalConfig.ProvideDispatcher,
			internalConfig.ProvideSweeper,
			internalConfig.ProvideOutcomeHandler,
			internalConfig.ProvideOutcomeConsumer,
			internalConfig.ProvideScheduler,
			internalConfig.ProvideScheduleManager,
			internalConfig.ProvideScheduleHandler,
			internalConfig.ProvideRunHandler,
			internalConfig.ProvideSchedulerHealthHandler,
			internalConfig.ProvideSchedulerRouterConfig,
			internalConfig.ProvideSchedulerServerConfig,
			internalConfig.ProvideSchedulerRouteInitializer,
			config.ProvideRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(
			internalConfig.ManageSchedulerLifecycle,
			internalConfig.ManageOutcomeConsumerLifecycle,
		),
	).Run()
}
