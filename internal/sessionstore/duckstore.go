package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb"
)

// DuckStore keeps session storage in a DuckDB file so handoffs survive a
// server restart within the session lifetime.
type DuckStore struct {
	db     *sql.DB
	dbPath string
}

// NewDuckStore opens (or creates) the database at dbPath.
// An empty path gives an in-memory database.
func NewDuckStore(dbPath string) (*DuckStore, error) {
	slog.Debug("opening session storage", "backend", "duckdb", "path", dbPath)

	connector, err := duckdb.NewConnector(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS session_storage (
			session_id VARCHAR NOT NULL,
			item_key   VARCHAR NOT NULL,
			item_value VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, item_key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &DuckStore{db: db, dbPath: dbPath}, nil
}

func (s *DuckStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT item_value FROM session_storage WHERE session_id = ? AND item_key = ?`,
		sessionID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (s *DuckStore) SetMany(ctx context.Context, sessionID string, items map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for k, v := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_storage (session_id, item_key, item_value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, item_key)
			DO UPDATE SET item_value = excluded.item_value, updated_at = excluded.updated_at
		`, sessionID, k, v, now)
		if err != nil {
			return fmt.Errorf("writing %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *DuckStore) Drop(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_storage WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("dropping session %s: %w", sessionID, err)
	}
	return nil
}

func (s *DuckStore) Close() error {
	return s.db.Close()
}
