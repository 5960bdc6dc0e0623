package model

import "time"

// SignalSet holds the entry signals for the latest point of a series, plus
// the indicator values they were derived from.
type SignalSet struct {
	SMAEntry  bool `json:"sma_entry"`
	RSIEntry  bool `json:"rsi_entry"`
	MACDEntry bool `json:"macd_entry"`

	LastPrice  float64 `json:"last_price"`
	SMA        float64 `json:"sma"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	// MACDReady is false when the series was too short for MACD; MACDEntry
	// is then always false.
	MACDReady bool `json:"macd_ready"`
}

// Map returns the three entry flags keyed by their wire names.
func (s SignalSet) Map() map[string]bool {
	return map[string]bool{
		"sma_entry":  s.SMAEntry,
		"rsi_entry":  s.RSIEntry,
		"macd_entry": s.MACDEntry,
	}
}

// SupportResistance is the min/max of a series and the derived entry/exit
// points.
type SupportResistance struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	EntryPoint float64 `json:"entry_point"`
	ExitPoint  float64 `json:"exit_point"`
}

// AnalysisResult is the outcome of analysing one contract's records.
type AnalysisResult struct {
	Contract string `json:"contract"`
	SupportResistance
	Points     int       `json:"points"`
	AnalysedAt time.Time `json:"analysed_at"`
}

// HistoricalSignal is the latest-SMA verdict over a historical series.
type HistoricalSignal struct {
	Price       float64 `json:"price"`
	SMA         float64 `json:"sma"`
	EntrySignal bool    `json:"entry_signal"`
	ExitSignal  bool    `json:"exit_signal"`
}
