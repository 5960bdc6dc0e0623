package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tokenwatch/internal/model"

	"github.com/shopspring/decimal"
)

// Balances are stored as decimal strings so they round-trip exactly.

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// SaveRun persists a run and its trade events.
func (s *Store) SaveRun(ctx context.Context, run *model.BacktestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, contract, start_ts, end_ts, points, initial_balance, final_balance, trades, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Contract, unixOrZero(run.Start), unixOrZero(run.End), run.Points,
		run.InitialBalance.String(), run.FinalBalance.String(), len(run.Events), created.UnixNano(),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, seq, idx, ts, action, price, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save run: %w", err)
	}
	defer stmt.Close()

	for seq, ev := range run.Events {
		if _, err := stmt.ExecContext(ctx, run.ID, seq, ev.Index, unixOrZero(ev.TS),
			string(ev.Action), ev.Price, ev.Balance.String()); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite save trade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite save run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (model.BacktestRun, error) {
	var (
		r              model.BacktestRun
		startTS, endTS int64
		initial, final string
		createdAt      int64
	)
	if err := sc.Scan(&r.ID, &r.Contract, &startTS, &endTS, &r.Points, &initial, &final, &r.Trades, &createdAt); err != nil {
		return r, err
	}
	var err error
	if r.InitialBalance, err = decimal.NewFromString(initial); err != nil {
		return r, fmt.Errorf("initial balance %q: %w", initial, err)
	}
	if r.FinalBalance, err = decimal.NewFromString(final); err != nil {
		return r, fmt.Errorf("final balance %q: %w", final, err)
	}
	r.Start = timeOrZero(startTS)
	r.End = timeOrZero(endTS)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return r, nil
}

const runColumns = `id, contract, start_ts, end_ts, points, initial_balance, final_balance, trades, created_at`

// ListRuns returns the last limit runs, newest first, without events.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.BacktestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list runs: %w", err)
	}
	defer rows.Close()

	runs := []model.BacktestRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its events, or nil when id is unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*model.BacktestRun, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM backtest_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, ts, action, price, balance FROM backtest_trades
		WHERE run_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite get trades: %w", err)
	}
	defer rows.Close()

	r.Events = []model.TradeEvent{}
	for rows.Next() {
		var (
			ev      model.TradeEvent
			ts      int64
			action  string
			balance string
		)
		if err := rows.Scan(&ev.Index, &ts, &action, &ev.Price, &balance); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		ev.TS = timeOrZero(ts)
		ev.Action = model.Action(action)
		if ev.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("sqlite trade balance %q: %w", balance, err)
		}
		r.Events = append(r.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}
