package tracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tokenwatch/config"
	"tokenwatch/internal/analysis"
	"tokenwatch/internal/metrics"
	"tokenwatch/internal/model"
	"tokenwatch/internal/notification"
	"tokenwatch/internal/source"
	"tokenwatch/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func record(amount float64) model.RawRecord {
	return model.RawRecord(fmt.Sprintf(`{"pubkey":"x","account":{"data":{"parsed":{"info":{"tokenAmount":{"uiAmount":%v}}}}}}`, amount))
}

type stubSource struct {
	recs []model.RawRecord
	err  error
}

func (s stubSource) FetchRecords(context.Context, string) ([]model.RawRecord, error) {
	return s.recs, s.err
}

type stubHistory struct {
	points []model.PricePoint
	err    error
}

func (s stubHistory) FetchHistory(context.Context, string, time.Time, time.Time) ([]model.PricePoint, error) {
	return s.points, s.err
}

type sink struct {
	mu     sync.Mutex
	alerts []notification.Alert
	err    error
}

func (s *sink) Send(_ context.Context, a notification.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

type pubs struct{ got []*model.AnalysisResult }

func (p *pubs) PublishAnalysis(_ context.Context, r *model.AnalysisResult) error {
	p.got = append(p.got, r)
	return nil
}

func newTracker(t *testing.T, deps Deps) *Tracker {
	t.Helper()
	tr, err := New(FromConfig(config.Default()), deps, nil)
	require.NoError(t, err)
	return tr
}

func daily(prices ...float64) []model.PricePoint {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = model.PricePoint{TS: t0.AddDate(0, 0, i), Price: p}
	}
	return out
}

func linear(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestAnalyzeAndAlert_SendsAnalysis(t *testing.T) {
	s := &sink{}
	p := &pubs{}
	m := metrics.NewMetrics()
	tr := newTracker(t, Deps{
		Source:    stubSource{recs: []model.RawRecord{record(5), record(3), record(9), record(1)}},
		Notifier:  s,
		Publisher: p,
		Metrics:   m,
	})

	require.NoError(t, tr.AnalyzeAndAlert(context.Background(), "Tok1"))

	require.Len(t, s.alerts, 1)
	assert.Equal(t, "Contract Analysis for Tok1:\nEntry Point: $1.05\nExit Point: $8.55\nMax Balance: $9.00\nMin Balance: $1.00\n",
		s.alerts[0].Message)
	require.Len(t, p.got, 1)
	assert.Equal(t, "Tok1", p.got[0].Contract)
	assert.Equal(t, 4, p.got[0].Points)
	assert.InDelta(t, 1.05, p.got[0].EntryPoint, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("ok")))
}

func TestAnalyzeAndAlert_Skips(t *testing.T) {
	cases := []struct {
		name    string
		src     stubSource
		wantErr bool
	}{
		{"no data", stubSource{err: source.ErrNoData}, false},
		{"no amounts", stubSource{recs: []model.RawRecord{model.RawRecord(`{"account":{}}`)}}, false},
		{"fetch failure", stubSource{err: errors.New("connection refused")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &sink{}
			tr := newTracker(t, Deps{Source: tc.src, Notifier: s})
			err := tr.AnalyzeAndAlert(context.Background(), "X")
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Empty(t, s.alerts)
		})
	}
}

func TestAnalyzeAndAlert_SingleRecordStillAlerts(t *testing.T) {
	s := &sink{}
	tr := newTracker(t, Deps{Source: stubSource{recs: []model.RawRecord{record(100)}}, Notifier: s})
	require.NoError(t, tr.AnalyzeAndAlert(context.Background(), "X"))
	require.Len(t, s.alerts, 1)
	assert.Contains(t, s.alerts[0].Message, "Entry Point: $105.00")
	assert.Contains(t, s.alerts[0].Message, "Exit Point: $95.00")
}

func TestAnalyzeAndAlert_AlertFailureIsNotFatal(t *testing.T) {
	m := metrics.NewMetrics()
	tr := newTracker(t, Deps{
		Source:   stubSource{recs: []model.RawRecord{record(1), record(2)}},
		Notifier: &sink{err: errors.New("telegram down")},
		Metrics:  m,
	})
	require.NoError(t, tr.AnalyzeAndAlert(context.Background(), "X"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTotal.WithLabelValues("failed")))
}

func TestAnalyzeAndAlert_DisabledAlertsWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr, err := New(FromConfig(config.Default()), Deps{Source: stubSource{recs: []model.RawRecord{record(1), record(2)}}}, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, tr.AnalyzeAndAlert(context.Background(), "X"))
	assert.Equal(t, 1, logs.FilterMessage("alerts are not enabled or chat id is missing").Len())
}

func TestAnalyze(t *testing.T) {
	health := metrics.NewHealthStatus()
	tr := newTracker(t, Deps{Source: stubSource{recs: []model.RawRecord{record(5), record(3), record(9), record(1)}}, Health: health})

	res, err := tr.Analyze(context.Background(), "Tok1")
	require.NoError(t, err)
	assert.Equal(t, "Tok1", res.Contract)
	assert.Equal(t, 1.0, res.Support)
	assert.Equal(t, 9.0, res.Resistance)
	assert.True(t, health.Snapshot().SolanaOK)

	tr = newTracker(t, Deps{Source: stubSource{recs: []model.RawRecord{record(5)}}})
	_, err = tr.Analyze(context.Background(), "Tok1")
	assert.True(t, analysis.IsInsufficient(err))
}

func TestOnChange(t *testing.T) {
	s := &sink{}
	tr := newTracker(t, Deps{Source: stubSource{}, Notifier: s})
	tr.OnChange(context.Background(), "Acct", nil)
	require.Len(t, s.alerts, 1)
	assert.Equal(t, "Change detected in contract Acct", s.alerts[0].Message)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "t.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBacktest_JournalsRun(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	m := metrics.NewMetrics()
	tr := newTracker(t, Deps{
		Source:  stubSource{},
		History: stubHistory{points: daily(linear(20)...)},
		Prices:  st,
		Journal: st,
		Metrics: m,
	})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 19)

	run, err := tr.Backtest(ctx, "Tok", start, end)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 20, run.Points)
	require.Len(t, run.Events, 6)
	assert.Equal(t, "895", run.FinalBalance.String())
	assert.Equal(t, start.AddDate(0, 0, 14), run.Events[0].TS)
	assert.Equal(t, 6.0, testutil.ToFloat64(m.BacktestEvents.WithLabelValues("buy")))

	runs, err := tr.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	got, err := tr.Run(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Events, 6)

	stored, err := st.LoadPrices(ctx, "Tok", start, end)
	require.NoError(t, err)
	assert.Len(t, stored, 20)
}

func TestLoadHistory_FallsBackToStore(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	require.NoError(t, st.SavePrices(ctx, "Tok", daily(1, 2, 3)))

	tr := newTracker(t, Deps{Source: stubSource{}, History: stubHistory{err: errors.New("502")}, Prices: st})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pts, err := tr.LoadHistory(ctx, "Tok", start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, model.PriceSeries{1, 2, 3}, model.Prices(pts))

	_, err = tr.LoadHistory(ctx, "Other", start, start)
	assert.ErrorIs(t, err, ErrNoHistory)

	tr = newTracker(t, Deps{Source: stubSource{}, History: stubHistory{err: errors.New("502")}})
	_, err = tr.LoadHistory(ctx, "Tok", start, start)
	assert.Error(t, err)
}

func TestSignals(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tr := newTracker(t, Deps{Source: stubSource{}, History: stubHistory{points: daily(linear(40)...)}})
	rep, err := tr.Signals(ctx, "Tok", now, now)
	require.NoError(t, err)
	assert.True(t, rep.Historical.EntrySignal)
	assert.False(t, rep.Historical.ExitSignal)
	require.NotNil(t, rep.Signals)
	assert.True(t, rep.Signals.SMAEntry)
	assert.True(t, rep.Signals.MACDReady)

	tr = newTracker(t, Deps{Source: stubSource{}, History: stubHistory{points: daily(linear(10)...)}})
	_, err = tr.Signals(ctx, "Tok", now, now)
	assert.True(t, analysis.IsInsufficient(err))
}

func TestBacktestSeries_Constant(t *testing.T) {
	series := make(model.PriceSeries, 20)
	for i := range series {
		series[i] = 10
	}
	tr := newTracker(t, Deps{Source: stubSource{}})
	run, err := tr.BacktestSeries(context.Background(), "Tok", series)
	require.NoError(t, err)
	assert.Empty(t, run.Events)
	assert.True(t, run.FinalBalance.Equal(run.InitialBalance))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(FromConfig(config.Default()), Deps{}, nil)
	assert.Error(t, err)

	cfg := FromConfig(config.Default())
	cfg.AlertThreshold = 1.5
	_, err = New(cfg, Deps{Source: stubSource{}}, nil)
	assert.Error(t, err)
}
