// Package model defines the domain types shared by the analysis core and
// the I/O collaborators around it.
package model

import (
	"encoding/json"
	"time"
)

// PriceSeries is a chronologically ordered list of prices. Components
// treat it as read-only.
type PriceSeries []float64

// Last returns the most recent price. The caller guarantees len > 0.
func (s PriceSeries) Last() float64 { return s[len(s)-1] }

// PricePoint is a timestamped price, as served by the historical API.
type PricePoint struct {
	TS    time.Time `json:"ts"`
	Price float64   `json:"price"`
}

// Prices projects points onto a PriceSeries, keeping order.
func Prices(points []PricePoint) PriceSeries {
	out := make(PriceSeries, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// RawRecord is one opaque record returned by a data source (for Solana, one
// token account entry in jsonParsed encoding).
type RawRecord = json.RawMessage
