package storage

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY,
		chain_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		context TEXT,
		address TEXT NOT NULL,
		contract_name TEXT,
		artifact_path TEXT,
		tx_hash TEXT,
		compiler TEXT,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		UNIQUE(chain_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_address ON deployments(lower(address));
	CREATE INDEX IF NOT EXISTS idx_deployments_chain ON deployments(chain_id);
`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{sqlStore{
		db:     db,
		logger: logger,
		rebind: rebindDollar,
		schema: postgresSchema,
	}}, nil
}
