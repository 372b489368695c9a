// Package storage provides a SQLite-backed, size-bounded liquidation event log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
	_ "modernc.org/sqlite"
)

// DefaultMaxEvents is the number of most recent liquidations kept.
const DefaultMaxEvents = 200

// timestampLayout is fixed-width UTC so lexical order equals time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Storage wraps a SQLite database holding the most recent liquidations.
type Storage struct {
	db        *sql.DB
	maxEvents int
	now       func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/liqoracle/data.db.
func New(maxEvents int, dbPath string) (*Storage, error) {
	if maxEvents < 1 {
		maxEvents = DefaultMaxEvents
	}
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "liqoracle", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxEvents: maxEvents, now: time.Now}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS liquidations (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			ticker    TEXT NOT NULL,
			direction TEXT NOT NULL,
			amount    REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_liquidations_timestamp ON liquidations(timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddLiquidation inserts ev and trims the log to the most recent maxEvents
// rows ordered by (timestamp, id) in the same transaction.
func (s *Storage) AddLiquidation(ctx context.Context, ev models.LiquidationEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid liquidation: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO liquidations (timestamp, ticker, direction, amount)
		VALUES (?,?,?,?)`,
		formatTimestamp(ev.Timestamp), ev.Ticker, string(ev.Direction), ev.Amount,
	); err != nil {
		return fmt.Errorf("failed to insert liquidation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM liquidations WHERE id NOT IN (
			SELECT id FROM liquidations ORDER BY timestamp DESC, id DESC LIMIT ?
		)`, s.maxEvents); err != nil {
		return fmt.Errorf("failed to enforce liquidation cap: %w", err)
	}

	return tx.Commit()
}

// LiquidationsBetween returns events with start <= timestamp <= end in
// ascending time order. A zero end means now. Rows whose timestamp cannot
// be parsed are skipped.
func (s *Storage) LiquidationsBetween(ctx context.Context, start, end time.Time) ([]models.LiquidationEvent, error) {
	if end.IsZero() {
		end = s.now()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, ticker, direction, amount
		FROM liquidations
		WHERE timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC`,
		formatTimestamp(start), formatTimestamp(end),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidations: %w", err)
	}
	defer rows.Close()

	events := []models.LiquidationEvent{}
	skipped := 0
	for rows.Next() {
		var (
			raw       string
			ev        models.LiquidationEvent
			direction string
		)
		if err := rows.Scan(&raw, &ev.Ticker, &direction, &ev.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan liquidation: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			skipped++
			continue
		}
		ev.Timestamp = ts.UTC()
		ev.Direction = models.Direction(direction)
		events = append(events, ev)
	}
	if skipped > 0 {
		logger.Debug("Skipped %d stored liquidations with malformed timestamps", skipped)
	}
	return events, rows.Err()
}

// Count returns the number of stored liquidations.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM liquidations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count liquidations: %w", err)
	}
	return n, nil
}

// MaxEvents returns the capacity bound of the log.
func (s *Storage) MaxEvents() int {
	return s.maxEvents
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
