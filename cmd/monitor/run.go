package main

import (
	"context"
	"time"

	"tokenwatch/config"
	"tokenwatch/internal/api"
	"tokenwatch/internal/logger"
	"tokenwatch/internal/metrics"
	"tokenwatch/internal/monitor"
	"tokenwatch/internal/source"
	redisstore "tokenwatch/internal/store/redis"
	sqlitestore "tokenwatch/internal/store/sqlite"
	"tokenwatch/internal/tracker"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// background appends a hook that starts fn with a context cancelled on stop.
func background(lc fx.Lifecycle, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go fn(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func runMetrics(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics, health *metrics.HealthStatus, log *zap.Logger) {
	srv := metrics.NewServer(cfg.MetricsAddr, m, health, logger.Component(log, "metrics"))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			srv.Start()
			return nil
		},
		OnStop: srv.Stop,
	})
}

func runLiveness(lc fx.Lifecycle, rc *redisstore.Client, st *sqlitestore.Store, health *metrics.HealthStatus) {
	background(lc, func(ctx context.Context) {
		if rc != nil {
			health.StartLivenessChecker(ctx, rc.Redis(), st.DB(), 10*time.Second)
			return
		}
		health.StartLivenessChecker(ctx, nil, st.DB(), 10*time.Second)
	})
}

// runStream relays the Redis analysis channel into the websocket hub. When
// Redis is down the tracker publishes to the hub directly.
func runStream(lc fx.Lifecycle, rc *redisstore.Client, hub *api.Hub) {
	if rc == nil {
		return
	}
	channel := redisstore.NewPublisher(rc).Channel()
	background(lc, func(ctx context.Context) {
		hub.RunRedis(ctx, rc.Redis(), channel)
	})
}

func runMonitor(lc fx.Lifecycle, cfg *config.Config, tr *tracker.Tracker, health *metrics.HealthStatus, log *zap.Logger) error {
	health.SetContracts(cfg.Contracts)
	if len(cfg.Contracts) == 0 {
		log.Warn("no contracts configured, periodic analysis disabled")
		return nil
	}
	mon, err := monitor.New(monitor.Config{
		Contracts:     cfg.Contracts,
		Interval:      cfg.MonitorInterval,
		ContractDelay: cfg.ContractDelay,
		Concurrency:   cfg.Concurrency,
	}, tr, logger.Component(log, "monitor"))
	if err != nil {
		return err
	}
	mon.OnRound = func(round int, took time.Duration) {
		log.Debug("round complete", zap.Int("round", round), zap.Duration("took", took))
	}
	background(lc, func(ctx context.Context) { mon.Run(ctx) })
	return nil
}

// runChangeFeed watches the contracts over the Solana websocket, or polls
// them when no websocket URL is configured. Polling bypasses the cache so
// changes are seen on the next tick.
func runChangeFeed(lc fx.Lifecycle, cfg *config.Config, tr *tracker.Tracker, sol *source.Solana, m *metrics.Metrics, health *metrics.HealthStatus, log *zap.Logger) error {
	if len(cfg.Contracts) == 0 {
		return nil
	}
	if cfg.SolanaWSURL == "" {
		p := monitor.NewPoller(sol, cfg.Contracts, cfg.WatchInterval, tr.OnChange, logger.Component(log, "poller"))
		background(lc, func(ctx context.Context) { p.Start(ctx) })
		return nil
	}

	w, err := monitor.NewWatcher(monitor.WatcherConfig{URL: cfg.SolanaWSURL}, cfg.Contracts, tr.OnChange, logger.Component(log, "watcher"))
	if err != nil {
		return err
	}
	w.OnReconnect = m.WatcherReconnects.Inc
	w.OnConnected = health.SetWatcherConnected
	background(lc, func(ctx context.Context) {
		if err := w.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("watcher stopped", zap.Error(err))
		}
	})
	return nil
}

func runAPI(lc fx.Lifecycle, cfg *config.Config, tr *tracker.Tracker, hub *api.Hub, log *zap.Logger) {
	l := logger.Component(log, "api")
	srv := api.NewServer(cfg.APIAddr, api.NewRouter(tr, hub, l), l)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			srv.Start()
			return nil
		},
		OnStop: srv.Stop,
	})
}
