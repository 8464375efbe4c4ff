// Package storage provides the deployment index: a queryable mirror of the
// file registry backed by SQLite or PostgreSQL.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/deployvault/internal/config"
)

// DeploymentStore handles indexed deployment operations
type DeploymentStore interface {
	UpsertDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID uint64, name string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	FindByAddress(ctx context.Context, address string) ([]Deployment, error)
	MarkVerified(ctx context.Context, chainID uint64, name, compiler string) error
}

// Store combines the index operations with lifecycle methods.
type Store interface {
	DeploymentStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment is an indexed deployment row.
type Deployment struct {
	ID           string
	ChainID      uint64
	Name         string
	Context      string
	Address      string
	ContractName string
	ArtifactPath string
	TxHash       string
	Compiler     string
	Verified     bool
	UpdatedAt    string
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	ChainID  uint64
	Verified *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.IndexConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
