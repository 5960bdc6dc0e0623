package monitor

import (
	"context"
	"errors"
	"time"

	"tokenwatch/internal/model"
	"tokenwatch/internal/source"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Poller is the polling fallback of Watcher: it fetches each contract's
// records every interval and reports when they differ from the last fetch.
type Poller struct {
	src       model.DataSource
	contracts []string
	interval  time.Duration
	onChange  ChangeHandler
	changes   *changeSet
	log       *zap.Logger
}

// NewPoller creates a Poller. A zero interval defaults to 10 seconds.
func NewPoller(src model.DataSource, contracts []string, interval time.Duration, onChange ChangeHandler, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		src:       src,
		contracts: contracts,
		interval:  interval,
		onChange:  onChange,
		changes:   newChangeSet(),
		log:       log,
	}
}

// Start polls until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one pass over all contracts.
func (p *Poller) Poll(ctx context.Context) {
	for _, c := range p.contracts {
		if ctx.Err() != nil {
			return
		}
		p.check(ctx, c)
	}
}

func (p *Poller) check(ctx context.Context, contract string) {
	recs, err := p.src.FetchRecords(ctx, contract)
	if errors.Is(err, source.ErrNoData) {
		p.log.Warn("no data found for contract", zap.String("contract", contract))
		return
	}
	if err != nil {
		p.log.Error("error monitoring contract", zap.String("contract", contract), zap.Error(err))
		return
	}
	state, err := sonic.Marshal(recs)
	if err != nil {
		p.log.Error("encode records", zap.String("contract", contract), zap.Error(err))
		return
	}
	if p.changes.observe(contract, state) {
		p.log.Info("change detected", zap.String("contract", contract))
		if p.onChange != nil {
			p.onChange(ctx, contract, state)
		}
	}
}
