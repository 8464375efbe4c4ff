package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		chain_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		context TEXT,
		address TEXT NOT NULL,
		contract_name TEXT,
		artifact_path TEXT,
		tx_hash TEXT,
		compiler TEXT,
		verified INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE(chain_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_address ON deployments(lower(address));
	CREATE INDEX IF NOT EXISTS idx_deployments_chain ON deployments(chain_id);
`

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{sqlStore{
		db:     db,
		logger: logger,
		rebind: func(q string) string { return q },
		schema: sqliteSchema,
	}}, nil
}
