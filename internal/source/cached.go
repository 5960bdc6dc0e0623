package source

import (
	"context"

	"tokenwatch/internal/model"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// CacheRecorder counts cache lookups.
type CacheRecorder interface {
	CacheLookup(hit bool)
}

// Cached serves FetchRecords from a cache keyed by contract address and
// falls through to the wrapped source on a miss. Cache failures are logged
// and never fail the fetch.
type Cached struct {
	src   model.DataSource
	cache model.Cache
	rec   CacheRecorder
	log   *zap.Logger
}

// NewCached wraps src. rec may be nil.
func NewCached(src model.DataSource, cache model.Cache, rec CacheRecorder, log *zap.Logger) *Cached {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{src: src, cache: cache, rec: rec, log: log}
}

func (c *Cached) FetchRecords(ctx context.Context, contract string) ([]model.RawRecord, error) {
	data, ok, err := c.cache.Get(ctx, contract)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("contract", contract), zap.Error(err))
	}
	if ok {
		var recs []model.RawRecord
		if err := sonic.Unmarshal(data, &recs); err == nil {
			c.lookup(true)
			c.log.Debug("cache hit", zap.String("contract", contract))
			return recs, nil
		}
		c.log.Warn("cache payload corrupt", zap.String("contract", contract))
	}
	c.lookup(false)

	recs, err := c.src.FetchRecords(ctx, contract)
	if err != nil {
		return nil, err
	}
	payload, err := sonic.Marshal(recs)
	if err == nil {
		err = c.cache.Set(ctx, contract, payload)
	}
	if err != nil {
		c.log.Warn("cache write failed", zap.String("contract", contract), zap.Error(err))
	}
	return recs, nil
}

func (c *Cached) lookup(hit bool) {
	if c.rec != nil {
		c.rec.CacheLookup(hit)
	}
}
