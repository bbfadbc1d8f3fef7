// Package sqlite is the durable journal: broker fills, circuit
// breaker events and a candle archive, all in one WAL-mode database
// with a single writer connection.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to the database file, e.g. "data/tradecore.db"
}

// Store wraps the database handle. Monetary columns are TEXT holding
// exact decimal strings; timestamps are TEXT in RFC3339Nano UTC.
type Store struct {
	db *sql.DB

	// OnCommit is an optional hook reporting batch commit latency.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id           TEXT NOT NULL,
			uid                 TEXT NOT NULL,
			strategy_id         TEXT NOT NULL,
			run_id              TEXT,
			symbol              TEXT NOT NULL,
			side                TEXT NOT NULL,
			qty                 TEXT NOT NULL,
			price               TEXT NOT NULL,
			fees                TEXT NOT NULL,
			slippage            TEXT NOT NULL,
			ts_utc              TEXT NOT NULL,
			order_id            TEXT,
			broker_fill_id      TEXT,
			contract_multiplier INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills (ts_utc);
		CREATE INDEX IF NOT EXISTS idx_fills_group ON fills (tenant_id, uid, strategy_id, symbol);

		CREATE TABLE IF NOT EXISTS breaker_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			breaker_type TEXT NOT NULL,
			ts_utc       TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			tenant_id    TEXT NOT NULL,
			strategy_id  TEXT,
			severity     TEXT NOT NULL,
			message      TEXT NOT NULL,
			metadata     TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_breaker_events_ts ON breaker_events (ts_utc);

		CREATE TABLE IF NOT EXISTS candles (
			symbol      TEXT    NOT NULL,
			timeframe   TEXT    NOT NULL,
			ts_start    INTEGER NOT NULL,
			ts_end      INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL,
			vwap        REAL,
			trade_count INTEGER,
			PRIMARY KEY (symbol, timeframe, ts_start)
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
