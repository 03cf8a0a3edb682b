package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sabarim/eodfetch/internal/historical"
)

// SQLite persists normalized series, one row per symbol and date.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite store opened", "path", path)
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol        TEXT NOT NULL,
			date          TEXT NOT NULL,
			currency      TEXT NOT NULL,
			open          REAL,
			high          REAL,
			low           REAL,
			close         REAL,
			volume        INTEGER,
			adj_close     REAL,
			adj_close_usd REAL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_date ON bars(date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// WriteSeries upserts bars for symbol in a single transaction.
func (s *SQLite) WriteSeries(ctx context.Context, symbol, currency string, bars []historical.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO bars
		(symbol, date, currency, open, high, low, close, volume, adj_close, adj_close_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Date.Format(historical.DateLayout), currency,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.AdjClose, b.AdjCloseUSD); err != nil {
			return fmt.Errorf("insert %s %s: %w", symbol, b.Date.Format(historical.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored series", "symbol", symbol, "rows", len(bars))
	return nil
}

// Series returns the stored bars of symbol, oldest first.
func (s *SQLite) Series(ctx context.Context, symbol string) ([]historical.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, open, high, low, close, volume, adj_close, adj_close_usd
		FROM bars WHERE symbol = ? ORDER BY date`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []historical.Bar
	for rows.Next() {
		var (
			date string
			b    historical.Bar
		)
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.AdjClose, &b.AdjCloseUSD); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if b.Date, err = time.Parse(historical.DateLayout, date); err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
