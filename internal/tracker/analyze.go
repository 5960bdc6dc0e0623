package tracker

import (
	"context"
	"errors"
	"fmt"

	"tokenwatch/internal/analysis"
	"tokenwatch/internal/logger"
	"tokenwatch/internal/model"
	"tokenwatch/internal/notification"
	"tokenwatch/internal/source"

	"go.uber.org/zap"
)

func (t *Tracker) fetch(ctx context.Context, contract string) ([]model.RawRecord, error) {
	recs, err := t.deps.Source.FetchRecords(ctx, contract)
	if errors.Is(err, source.ErrNoData) {
		t.fetchResult(nil)
	} else {
		t.fetchResult(err)
	}
	return recs, err
}

// Analyze fetches the contract's records and computes support/resistance
// with the configured offset. Errors wrap source.ErrNoData or
// indicator.ErrInsufficientData when applicable.
func (t *Tracker) Analyze(ctx context.Context, contract string) (*model.AnalysisResult, error) {
	recs, err := t.fetch(ctx, contract)
	if err != nil {
		t.countAnalysis("error")
		return nil, fmt.Errorf("analyze %s: %w", contract, err)
	}
	res, err := t.estimator.AnalyzeTokenData(recs)
	if err != nil {
		t.countAnalysis("insufficient")
		return nil, fmt.Errorf("analyze %s: %w", contract, err)
	}
	res.Contract = contract
	t.countAnalysis("ok")
	return res, nil
}

// AnalyzeAndAlert runs one monitor cycle for contract: fetch, compute
// levels with the alert threshold, alert and publish. Missing or too few
// records are logged and skipped. Alert and publish failures are logged
// and counted but never returned; only fetch failures are.
func (t *Tracker) AnalyzeAndAlert(ctx context.Context, contract string) error {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(contract, t.now()))
	log := t.log.With(logger.LogWithTrace(ctx)...).With(zap.String("contract", contract))
	log.Info("analyzing contract")

	recs, err := t.fetch(ctx, contract)
	if errors.Is(err, source.ErrNoData) {
		log.Error("no contract data found, skipping analysis")
		t.countAnalysis("insufficient")
		return nil
	}
	if err != nil {
		t.countAnalysis("error")
		return fmt.Errorf("fetch %s: %w", contract, err)
	}

	prices, _ := analysis.ExtractPrices(recs)
	sr, err := analysis.Levels(prices, t.cfg.AlertThreshold)
	if err != nil {
		log.Warn("no valid analysis found for contract", zap.Error(err))
		t.countAnalysis("insufficient")
		return nil
	}
	t.countAnalysis("ok")

	res := &model.AnalysisResult{
		Contract:          contract,
		SupportResistance: sr,
		Points:            len(prices),
		AnalysedAt:        t.now().UTC(),
	}
	t.alert(ctx, log, notification.AnalysisAlert(contract, sr))

	if t.deps.Publisher != nil {
		if err := t.deps.Publisher.PublishAnalysis(ctx, res); err != nil {
			log.Warn("publish analysis failed", zap.Error(err))
		}
	}
	return nil
}

// OnChange alerts that a watched contract changed. It matches
// monitor.ChangeHandler.
func (t *Tracker) OnChange(ctx context.Context, contract string, _ []byte) {
	log := t.log.With(zap.String("contract", contract))
	log.Info("change detected")
	if t.deps.Metrics != nil {
		t.deps.Metrics.WatcherChanges.Inc()
	}
	t.alert(ctx, log, notification.ChangeAlert(contract))
}

func (t *Tracker) alert(ctx context.Context, log *zap.Logger, a notification.Alert) {
	if t.deps.Notifier == nil {
		log.Warn("alerts are not enabled or chat id is missing")
		return
	}
	err := t.deps.Notifier.Send(ctx, a)
	if t.deps.Metrics != nil {
		t.deps.Metrics.Alert(err)
	}
	if err != nil {
		log.Error("send alert failed", zap.Error(err))
		return
	}
	log.Info("alert sent")
}
