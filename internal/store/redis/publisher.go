package redis

import (
	"context"
	"errors"
	"fmt"

	"tokenwatch/internal/model"

	"github.com/bytedance/sonic"
	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AnalysisChannel is the pub/sub channel (after the prefix) carrying
// analysis results.
const AnalysisChannel = "analysis"

// Publisher publishes analysis results and keeps the latest one per
// contract in a hash.
type Publisher struct {
	c *Client
}

// NewPublisher creates a publisher over an existing client.
func NewPublisher(c *Client) *Publisher { return &Publisher{c: c} }

// Channel returns the fully-qualified channel name.
func (p *Publisher) Channel() string { return p.c.prefix + AnalysisChannel }

func (p *Publisher) latestKey() string { return p.c.prefix + "latest" }

// PublishAnalysis stores res as the latest analysis for its contract and
// publishes it.
func (p *Publisher) PublishAnalysis(ctx context.Context, res *model.AnalysisResult) error {
	payload, err := sonic.Marshal(res)
	if err != nil {
		return fmt.Errorf("redis publish: marshal: %w", err)
	}
	err = p.c.do(ctx, func(ctx context.Context) error {
		pipe := p.c.rdb.TxPipeline()
		pipe.HSet(ctx, p.latestKey(), res.Contract, payload)
		pipe.Publish(ctx, p.Channel(), payload)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", res.Contract, err)
	}
	p.c.log.Debug("analysis published", zap.String("contract", res.Contract))
	return nil
}

// Latest returns the last published analysis for contract, or nil.
func (p *Publisher) Latest(ctx context.Context, contract string) (*model.AnalysisResult, error) {
	var raw []byte
	err := p.c.do(ctx, func(ctx context.Context) error {
		b, err := p.c.rdb.HGet(ctx, p.latestKey(), contract).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis latest %s: %w", contract, err)
	}
	if raw == nil {
		return nil, nil
	}
	var res model.AnalysisResult
	if err := sonic.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("redis latest %s: %w", contract, err)
	}
	return &res, nil
}
