package analysis

import (
	"fmt"
	"testing"

	"tokenwatch/internal/indicator"
	"tokenwatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func record(amount string) model.RawRecord {
	return model.RawRecord(fmt.Sprintf(
		`{"pubkey":"x","account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"0","decimals":6,"uiAmount":%s}}}}}}`,
		amount))
}

func records(amounts ...string) []model.RawRecord {
	out := make([]model.RawRecord, len(amounts))
	for i, a := range amounts {
		out[i] = record(a)
	}
	return out
}

func TestFindSupportResistance(t *testing.T) {
	sr, err := FindSupportResistance(model.PriceSeries{5, 3, 9, 1})
	require.NoError(t, err)
	assert.Equal(t, model.SupportResistance{Support: 1, Resistance: 9}, sr)

	sr, err = FindSupportResistance(model.PriceSeries{4})
	require.NoError(t, err)
	assert.Equal(t, 4.0, sr.Support)
	assert.Equal(t, 4.0, sr.Resistance)

	_, err = FindSupportResistance(nil)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestLevels(t *testing.T) {
	sr, err := Levels(model.PriceSeries{5, 3, 9, 1}, DefaultOffset)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sr.Support)
	assert.Equal(t, 9.0, sr.Resistance)
	assert.InDelta(t, 1.05, sr.EntryPoint, 1e-12)
	assert.InDelta(t, 8.55, sr.ExitPoint, 1e-12)
}

func TestExtractPrices(t *testing.T) {
	recs := records("5", "3.25", "null", `"7.5"`)
	recs = append(recs, model.RawRecord(`{"account":{}}`))

	prices, skipped := ExtractPrices(recs)
	assert.Equal(t, model.PriceSeries{5, 3.25, 7.5}, prices)
	assert.Equal(t, 2, skipped)
}

func TestAnalyzeTokenData(t *testing.T) {
	e, err := NewEstimator(DefaultOffset, nil)
	require.NoError(t, err)

	res, err := e.AnalyzeTokenData(records("5", "3", "9", "1"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1.0, res.Support)
	assert.Equal(t, 9.0, res.Resistance)
	assert.InDelta(t, 1.05, res.EntryPoint, 1e-12)
	assert.InDelta(t, 8.55, res.ExitPoint, 1e-12)
	assert.Equal(t, 4, res.Points)
	assert.False(t, res.AnalysedAt.IsZero())
}

func TestAnalyzeTokenData_CustomOffset(t *testing.T) {
	e, err := NewEstimator(0.1, nil)
	require.NoError(t, err)

	res, err := e.AnalyzeTokenData(records("10", "20"))
	require.NoError(t, err)
	assert.InDelta(t, 11.0, res.EntryPoint, 1e-12)
	assert.InDelta(t, 18.0, res.ExitPoint, 1e-12)
}

func TestAnalyzeTokenData_Insufficient(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e, err := NewEstimator(DefaultOffset, zap.New(core))
	require.NoError(t, err)

	res, err := e.AnalyzeTokenData(records("5"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
	assert.True(t, IsInsufficient(err))
	assert.Equal(t, 1, logs.FilterMessage("not enough data to perform analysis").Len())

	res, err = e.AnalyzeTokenData(nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestNewEstimator_InvalidOffset(t *testing.T) {
	_, err := NewEstimator(1.5, nil)
	assert.Error(t, err)
	_, err = NewEstimator(-0.1, nil)
	assert.Error(t, err)
}

func TestHistoricalSignal(t *testing.T) {
	up := make(model.PriceSeries, 20)
	for i := range up {
		up[i] = float64(i + 1)
	}
	sig, err := HistoricalSignal(up, 14)
	require.NoError(t, err)
	// SMA of 7..20 = 13.5
	assert.InDelta(t, 13.5, sig.SMA, 1e-12)
	assert.Equal(t, 20.0, sig.Price)
	assert.True(t, sig.EntrySignal)
	assert.False(t, sig.ExitSignal)

	flat := model.PriceSeries{2, 2, 2, 2}
	sig, err = HistoricalSignal(flat, 3)
	require.NoError(t, err)
	assert.False(t, sig.EntrySignal)
	assert.False(t, sig.ExitSignal)

	_, err = HistoricalSignal(flat, 14)
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}
