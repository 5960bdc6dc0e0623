package sqlite

import (
	"context"
	"fmt"
	"time"

	"tokenwatch/internal/model"

	"go.uber.org/zap"
)

// SavePrices upserts points for contract in a single transaction.
func (s *Store) SavePrices(ctx context.Context, contract string, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save prices: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO prices (contract, ts, price) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save prices: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, contract, p.TS.Unix(), p.Price); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite save prices: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite save prices: %w", err)
	}
	s.log.Debug("prices committed",
		zap.String("contract", contract),
		zap.Int("points", len(points)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// LoadPrices returns stored points for contract in [start, end], ordered
// by timestamp. A zero end means no upper bound.
func (s *Store) LoadPrices(ctx context.Context, contract string, start, end time.Time) ([]model.PricePoint, error) {
	to := int64(1<<63 - 1)
	if !end.IsZero() {
		to = end.Unix()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price FROM prices
		WHERE contract = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, contract, start.Unix(), to)
	if err != nil {
		return nil, fmt.Errorf("sqlite query prices: %w", err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var ts int64
		var p model.PricePoint
		if err := rows.Scan(&ts, &p.Price); err != nil {
			return nil, fmt.Errorf("sqlite scan prices: %w", err)
		}
		p.TS = time.Unix(ts, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
