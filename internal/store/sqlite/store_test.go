package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tokenwatch/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ model.PriceStore      = (*Store)(nil)
	_ model.BacktestJournal = (*Store)(nil)
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.DB().Ping())

	var n int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('prices','backtest_runs','backtest_trades')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPrices_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	pts := []model.PricePoint{
		{TS: t0.Add(2 * time.Hour), Price: 3},
		{TS: t0, Price: 1},
		{TS: t0.Add(time.Hour), Price: 2},
	}
	require.NoError(t, s.SavePrices(ctx, "TokenA", pts))
	require.NoError(t, s.SavePrices(ctx, "TokenB", []model.PricePoint{{TS: t0, Price: 99}}))

	got, err := s.LoadPrices(ctx, "TokenA", t0, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, model.PriceSeries{1, 2, 3}, model.Prices(got))
	assert.Equal(t, t0, got[0].TS)

	got, err = s.LoadPrices(ctx, "TokenA", t0.Add(time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.PriceSeries{2}, model.Prices(got))

	// upsert replaces
	require.NoError(t, s.SavePrices(ctx, "TokenA", []model.PricePoint{{TS: t0, Price: 10}}))
	got, err = s.LoadPrices(ctx, "TokenA", t0, t0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got[0].Price)

	require.NoError(t, s.SavePrices(ctx, "TokenA", nil))
}

func TestJournal_SaveListGet(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	older := &model.BacktestRun{
		ID:             "run-1",
		Contract:       "TokenA",
		Points:         20,
		InitialBalance: decimal.NewFromInt(1000),
		FinalBalance:   decimal.NewFromInt(1000),
		CreatedAt:      t0,
	}
	newer := &model.BacktestRun{
		ID:             "run-2",
		Contract:       "TokenB",
		Start:          t0,
		End:            t0.AddDate(0, 0, 30),
		Points:         31,
		InitialBalance: decimal.NewFromInt(1000),
		FinalBalance:   decimal.RequireFromString("969.5"),
		Events: []model.TradeEvent{
			{Index: 14, TS: t0.AddDate(0, 0, 14), Action: model.ActionBuy, Price: 15, Balance: decimal.NewFromInt(985)},
			{Index: 15, Action: model.ActionSell, Price: 15.5, Balance: decimal.RequireFromString("969.5")},
		},
		CreatedAt: t0.Add(time.Minute),
	}
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, newer))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 2, runs[0].Trades)
	assert.Nil(t, runs[0].Events)
	assert.Equal(t, "run-1", runs[1].ID)
	assert.True(t, runs[1].Start.IsZero())

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	got, err := s.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TokenB", got.Contract)
	assert.Equal(t, t0, got.Start)
	assert.Equal(t, "969.5", got.FinalBalance.String())
	require.Len(t, got.Events, 2)
	assert.Equal(t, model.ActionBuy, got.Events[0].Action)
	assert.Equal(t, t0.AddDate(0, 0, 14), got.Events[0].TS)
	assert.Equal(t, "985", got.Events[0].Balance.String())
	assert.True(t, got.Events[1].TS.IsZero())
	assert.Equal(t, 15.5, got.Events[1].Price)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJournal_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	run := &model.BacktestRun{ID: "dup", Contract: "X", InitialBalance: decimal.Zero, FinalBalance: decimal.Zero}
	require.NoError(t, s.SaveRun(ctx, run))
	assert.Error(t, s.SaveRun(ctx, run))
}
