// cmd/monitor is the long-running tokenwatch service. It analyses every
// configured contract on a fixed interval, alerts on support/resistance
// levels, watches accounts for changes and serves the REST API, the
// analysis stream and Prometheus metrics.
//
// Usage:
//
//	CONTRACTS=addr1,addr2 go run ./cmd/monitor
package main

import (
	"tokenwatch/internal/metrics"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			loadConfig,
			newLogger,
			metrics.NewMetrics,
			metrics.NewHealthStatus,
			newRedis,
			newCache,
			newSolana,
			newSource,
			newHistory,
			newStore,
			newNotifier,
			newHub,
			newTracker,
		),
		fx.Invoke(
			runMetrics,
			runLiveness,
			runStream,
			runMonitor,
			runChangeFeed,
			runAPI,
		),
	).Run()
}
