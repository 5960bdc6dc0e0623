package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the analysis pipeline from concrete data
// sources, caches and stores (Solana RPC, HTTP, Redis, SQLite, files).

// DataSource fetches the raw records for a contract address.
type DataSource interface {
	FetchRecords(ctx context.Context, contract string) ([]RawRecord, error)
}

// HistorySource fetches a historical price series for a contract.
type HistorySource interface {
	FetchHistory(ctx context.Context, contract string, start, end time.Time) ([]PricePoint, error)
}

// Cache stores opaque payloads by key with an implementation-defined TTL.
type Cache interface {
	// Get returns the payload and true on a fresh hit. Expired entries miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the payload, stamping it with the current time.
	Set(ctx context.Context, key string, data []byte) error

	// Close releases underlying resources.
	Close() error
}

// PriceStore persists historical price points.
type PriceStore interface {
	SavePrices(ctx context.Context, contract string, points []PricePoint) error

	// LoadPrices returns points in [start, end], ordered by timestamp.
	LoadPrices(ctx context.Context, contract string, start, end time.Time) ([]PricePoint, error)
}

// BacktestJournal persists backtest runs and their trade events.
type BacktestJournal interface {
	SaveRun(ctx context.Context, run *BacktestRun) error

	// ListRuns returns the last N runs, newest first, without events.
	ListRuns(ctx context.Context, limit int) ([]BacktestRun, error)

	// GetRun returns one run with its events, or nil if not found.
	GetRun(ctx context.Context, id string) (*BacktestRun, error)
}
