package main

import (
	"context"
	"time"

	"tokenwatch/config"
	"tokenwatch/internal/api"
	"tokenwatch/internal/breaker"
	"tokenwatch/internal/cache"
	"tokenwatch/internal/logger"
	"tokenwatch/internal/metrics"
	"tokenwatch/internal/model"
	"tokenwatch/internal/notification"
	"tokenwatch/internal/source"
	redisstore "tokenwatch/internal/store/redis"
	sqlitestore "tokenwatch/internal/store/sqlite"
	"tokenwatch/internal/tracker"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if cfg.DebugMode {
		level = "debug"
	}
	return logger.Init("tokenwatch", level)
}

func newBreaker(name string, m *metrics.Metrics) *breaker.Breaker {
	cb := breaker.New(name, 5, 30*time.Second)
	cb.OnStateChange = m.BreakerChanged
	return cb
}

// newRedis connects to Redis when an address is configured. A failed dial
// is not fatal: the service runs without the Redis cache and publisher.
func newRedis(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics, health *metrics.HealthStatus, log *zap.Logger) *redisstore.Client {
	health.SetRedisEnabled(cfg.RedisAddr != "")
	if cfg.RedisAddr == "" {
		return nil
	}
	rc, err := redisstore.Dial(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		TTL:      cfg.CacheTimeout,
	}, newBreaker("redis", m), logger.Component(log, "redis"))
	if err != nil {
		log.Warn("redis unavailable, continuing without redis", zap.Error(err))
		return nil
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return rc.Close() }})
	return rc
}

func newCache(lc fx.Lifecycle, cfg *config.Config, rc *redisstore.Client, log *zap.Logger) model.Cache {
	if !cfg.CacheEnabled {
		return nil
	}
	var c model.Cache
	switch cfg.CacheBackend {
	case config.CacheFile:
		c = cache.NewFile(cfg.CacheDir, cfg.CacheTimeout)
	case config.CacheRedis:
		if rc != nil {
			c = redisstore.NewCache(rc, cfg.CacheTimeout)
			break
		}
		log.Warn("redis cache requested but redis is unavailable, using memory cache")
		fallthrough
	default:
		c = cache.NewMemory(cfg.CacheSize, cfg.CacheTimeout)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return c.Close() }})
	log.Info("cache ready", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTimeout))
	return c
}

func newSolana(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (*source.Solana, error) {
	sol, err := source.NewSolana(context.Background(), source.SolanaConfig{
		URL:  cfg.SolanaAPIURL,
		Mint: cfg.SolanaMint,
		RPS:  cfg.SolanaRPS,
	}, newBreaker("solana", m), m, logger.Component(log, "solana"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return sol.Close() }})
	return sol, nil
}

// newSource puts the cache, when there is one, in front of Solana.
func newSource(sol *source.Solana, c model.Cache, m *metrics.Metrics, log *zap.Logger) model.DataSource {
	if c == nil {
		return sol
	}
	return source.NewCached(sol, c, m, logger.Component(log, "cache"))
}

func newHistory(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) model.HistorySource {
	if cfg.HistoricalAPIURL == "" {
		return nil
	}
	return source.NewHistory(cfg.HistoricalAPIURL, 15*time.Second, m, logger.Component(log, "history"))
}

func newStore(lc fx.Lifecycle, cfg *config.Config, health *metrics.HealthStatus, log *zap.Logger) (*sqlitestore.Store, error) {
	st, err := sqlitestore.Open(cfg.SQLitePath, logger.Component(log, "sqlite"))
	if err != nil {
		return nil, err
	}
	health.SetSQLiteOK(true)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return st.Close() }})
	return st, nil
}

func newNotifier(cfg *config.Config, log *zap.Logger) (notification.Notifier, error) {
	return notification.New(notification.Options{
		SendAlerts:  cfg.SendAlerts,
		BotToken:    cfg.TelegramBotToken,
		ChatID:      cfg.TelegramChatID,
		WebhookURL:  cfg.WebhookURL,
		LogFallback: true,
	}, logger.Component(log, "notify"))
}

func newHub(log *zap.Logger) *api.Hub {
	return api.NewHub(logger.Component(log, "stream"))
}

type trackerParams struct {
	fx.In

	Config   *config.Config
	Source   model.DataSource
	History  model.HistorySource
	Store    *sqlitestore.Store
	Notifier notification.Notifier
	Redis    *redisstore.Client
	Hub      *api.Hub
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Log      *zap.Logger
}

// newTracker publishes through Redis when it is connected (the hub then
// relays the channel) and straight to the hub otherwise.
func newTracker(p trackerParams) (*tracker.Tracker, error) {
	var pub tracker.Publisher = p.Hub
	if p.Redis != nil {
		pub = redisstore.NewPublisher(p.Redis)
	}
	return tracker.New(tracker.FromConfig(p.Config), tracker.Deps{
		Source:    p.Source,
		History:   p.History,
		Prices:    p.Store,
		Journal:   p.Store,
		Notifier:  p.Notifier,
		Publisher: pub,
		Metrics:   p.Metrics,
		Health:    p.Health,
	}, logger.Component(p.Log, "tracker"))
}
