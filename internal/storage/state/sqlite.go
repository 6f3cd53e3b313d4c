// internal/storage/state/sqlite.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS backtest_state (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		key              TEXT    NOT NULL,
		payload          BLOB,
		model            BLOB,
		model_created_at INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_state_key ON backtest_state(key, id)`,
}

// SQLiteStore appends every written state to a table and reads back the
// newest row for its key.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
func NewSQLiteStore(dbPath, key string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	if key == "" {
		key = "default"
	}
	return &SQLiteStore{db: db, key: key}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Read(ctx context.Context) (*backtest.State, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, model, model_created_at, created_at FROM backtest_state
		 WHERE key = ? ORDER BY id DESC LIMIT 1`, s.key)

	var (
		st               backtest.State
		payload, model   []byte
		modelAt, created int64
	)
	err := row.Scan(&payload, &model, &modelAt, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	if len(payload) > 0 {
		st.Payload = payload
	}
	if len(model) > 0 {
		st.Model = model
	}
	st.ModelCreatedAt = fromNanos(modelAt)
	st.CreatedAt = fromNanos(created)
	return &st, nil
}

func (s *SQLiteStore) Write(ctx context.Context, state backtest.State) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backtest_state (key, payload, model, model_created_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.key, []byte(state.Payload), []byte(state.Model),
		toNanos(state.ModelCreatedAt), toNanos(state.CreatedAt))
	if err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// Versions returns how many states were written for the key.
func (s *SQLiteStore) Versions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backtest_state WHERE key = ?`, s.key).Scan(&n)
	return n, err
}

// zero time has no UnixNano representation
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
