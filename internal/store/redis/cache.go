// Package redis provides the Redis-backed cache and the analysis
// publisher.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenwatch/internal/breaker"
	"tokenwatch/internal/cache"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "tokenwatch:"

// Config configures the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Client wraps a go-redis client shared by Cache and Publisher.
type Client struct {
	rdb    *goredis.Client
	prefix string
	cb     *breaker.Breaker
	log    *zap.Logger
}

// Dial connects and pings Redis. Calls go through cb when it is non-nil.
func Dial(cfg Config, cb *breaker.Breaker, log *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))
	return &Client{rdb: rdb, prefix: prefix, cb: cb, log: log}, nil
}

// Redis returns the underlying client for health checks.
func (c *Client) Redis() *goredis.Client { return c.rdb }

func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.cb == nil {
		return fn(ctx)
	}
	return c.cb.Do(ctx, fn)
}

// Close closes the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Cache stores cache envelopes under <prefix>cache:<key> with a Redis TTL.
type Cache struct {
	c   *Client
	ttl time.Duration
}

// NewCache creates a cache over an existing client.
func NewCache(c *Client, ttl time.Duration) *Cache {
	return &Cache{c: c, ttl: ttl}
}

func (rc *Cache) key(k string) string { return rc.c.prefix + "cache:" + k }

func (rc *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	err := rc.c.do(ctx, func(ctx context.Context) error {
		b, err := rc.c.rdb.Get(ctx, rc.key(key)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get %s: %w", key, err)
	}
	if raw == nil {
		return nil, false, nil
	}

	e, err := cache.DecodeEntry(raw)
	if err != nil {
		return nil, false, err
	}
	if !e.Fresh(time.Now(), rc.ttl) {
		return nil, false, nil
	}
	return e.Data, true, nil
}

func (rc *Cache) Set(ctx context.Context, key string, data []byte) error {
	b, err := cache.NewEntry(time.Now(), data).Encode()
	if err != nil {
		return err
	}
	err = rc.c.do(ctx, func(ctx context.Context) error {
		return rc.c.rdb.Set(ctx, rc.key(key), b, rc.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis cache set %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the shared Client owns the connection.
func (rc *Cache) Close() error { return nil }
