package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores. Queries
// are written with ? placeholders and rebound per driver.
type sqlStore struct {
	db     *sql.DB
	logger *slog.Logger
	rebind func(string) string
	schema string
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *sqlStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	s.logger.Info("database migrations complete")
	return nil
}

const deploymentColumns = `id, chain_id, name, context, address, contract_name, artifact_path, tx_hash, compiler, verified, updated_at`

// UpsertDeployment inserts or refreshes the row for (chain_id, name).
func (s *sqlStore) UpsertDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	d.UpdatedAt = now()

	query := `
		INSERT INTO deployments (` + deploymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, name) DO UPDATE SET
			context = excluded.context,
			address = excluded.address,
			contract_name = excluded.contract_name,
			artifact_path = excluded.artifact_path,
			tx_hash = excluded.tx_hash,
			compiler = excluded.compiler,
			verified = excluded.verified,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		d.ID, int64(d.ChainID), d.Name, d.Context, d.Address, d.ContractName, d.ArtifactPath, d.TxHash, d.Compiler, d.Verified, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting deployment %s on chain %d: %w", d.Name, d.ChainID, err)
	}
	return nil
}

// GetDeployment retrieves a deployment row
func (s *sqlStore) GetDeployment(ctx context.Context, chainID uint64, name string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE chain_id = ? AND name = ?`
	row := s.db.QueryRowContext(ctx, s.rebind(query), int64(chainID), name)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployment rows ordered by chain and name
func (s *sqlStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	offset, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	if pagination.Limit <= 0 {
		pagination.Limit = 20
	}

	var where []string
	var args []any
	if filter.ChainID != 0 {
		where = append(where, "chain_id = ?")
		args = append(args, int64(filter.ChainID))
	}
	if filter.Verified != nil {
		where = append(where, "verified = ?")
		args = append(args, *filter.Verified)
	}

	query := `SELECT ` + deploymentColumns + ` FROM deployments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY chain_id, name LIMIT ? OFFSET ?"
	args = append(args, pagination.Limit+1, offset)

	deployments, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	hasMore := len(deployments) > pagination.Limit
	if hasMore {
		deployments = deployments[:pagination.Limit]
	}

	result := &PaginatedResult[Deployment]{Data: deployments, HasMore: hasMore}
	if hasMore {
		result.NextCursor = strconv.Itoa(offset + pagination.Limit)
	}
	return result, nil
}

// FindByAddress returns every row for an address regardless of checksum case
func (s *sqlStore) FindByAddress(ctx context.Context, address string) ([]Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE lower(address) = lower(?) ORDER BY chain_id, name`
	return s.query(ctx, query, address)
}

// MarkVerified records that compiler input has been captured for a deployment
func (s *sqlStore) MarkVerified(ctx context.Context, chainID uint64, name, compiler string) error {
	query := `UPDATE deployments SET verified = ?, compiler = ?, updated_at = ? WHERE chain_id = ? AND name = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query), true, compiler, now(), int64(chainID), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) ([]Deployment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (*Deployment, error) {
	var d Deployment
	var chainID int64
	var context, contractName, artifactPath, txHash, compiler sql.NullString
	err := row.Scan(&d.ID, &chainID, &d.Name, &context, &d.Address, &contractName, &artifactPath, &txHash, &compiler, &d.Verified, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ChainID = uint64(chainID)
	d.Context = context.String
	d.ContractName = contractName.String
	d.ArtifactPath = artifactPath.String
	d.TxHash = txHash.String
	d.Compiler = compiler.String
	return &d, nil
}
