package model

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Action is a simulated trade direction.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// TradeEvent records one simulated trade. Balance is the balance after the
// trade was applied. TS is zero for series replayed without timestamps and
// is left out of the JSON form in that case.
type TradeEvent struct {
	Index   int             `json:"index"`
	TS      time.Time       `json:"ts"`
	Action  Action          `json:"action"`
	Price   float64         `json:"price"`
	Balance decimal.Decimal `json:"balance"`
}

// BacktestRun is a persisted backtest summary. Start and End are zero for
// runs over an explicit series and are then omitted from JSON.
type BacktestRun struct {
	ID             string          `json:"id"`
	Contract       string          `json:"contract"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Points         int             `json:"points"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	FinalBalance   decimal.Decimal `json:"final_balance"`
	Trades         int             `json:"trades"`
	Events         []TradeEvent    `json:"events"`
	CreatedAt      time.Time       `json:"created_at"`
}

// optTime maps the zero time to nil so omitempty drops it.
func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (e TradeEvent) MarshalJSON() ([]byte, error) {
	type plain TradeEvent
	return sonic.ConfigStd.Marshal(struct {
		plain
		TS *time.Time `json:"ts,omitempty"`
	}{plain(e), optTime(e.TS)})
}

func (r BacktestRun) MarshalJSON() ([]byte, error) {
	type plain BacktestRun
	return sonic.ConfigStd.Marshal(struct {
		plain
		Start *time.Time `json:"start,omitempty"`
		End   *time.Time `json:"end,omitempty"`
	}{plain(r), optTime(r.Start), optTime(r.End)})
}
