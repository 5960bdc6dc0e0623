// Package sqlite persists historical prices and backtest runs.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store wraps a single-writer SQLite database.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path with WAL mode and ensures
// the schema exists.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prices (
			contract TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			price    REAL    NOT NULL,
			PRIMARY KEY (contract, ts)
		);

		CREATE TABLE IF NOT EXISTS backtest_runs (
			id              TEXT    PRIMARY KEY,
			contract        TEXT    NOT NULL,
			start_ts        INTEGER NOT NULL DEFAULT 0,
			end_ts          INTEGER NOT NULL DEFAULT 0,
			points          INTEGER NOT NULL,
			initial_balance TEXT    NOT NULL,
			final_balance   TEXT    NOT NULL,
			trades          INTEGER NOT NULL,
			created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at);
		CREATE INDEX IF NOT EXISTS idx_backtest_runs_contract ON backtest_runs(contract);

		CREATE TABLE IF NOT EXISTS backtest_trades (
			run_id  TEXT    NOT NULL REFERENCES backtest_runs(id),
			seq     INTEGER NOT NULL,
			idx     INTEGER NOT NULL,
			ts      INTEGER NOT NULL DEFAULT 0,
			action  TEXT    NOT NULL,
			price   REAL    NOT NULL,
			balance TEXT    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
