package domain

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Get(ctx context.Context, chainID uint64, name string) (*Artifact, error) {
	start := time.Now()
	a, err := m.next.Get(ctx, chainID, name)
	m.logger.Debug("Get",
		"chain_id", chainID,
		"name", name,
		"duration", time.Since(start),
		"error", err,
	)
	return a, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.List(ctx, filter, pagination)
	count := 0
	if result != nil {
		count = len(result.Deployments)
	}
	m.logger.Debug("List",
		"chain_id", filter.ChainID,
		"limit", pagination.Limit,
		"count", count,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) FindByAddress(ctx context.Context, address string) ([]Summary, error) {
	start := time.Now()
	found, err := m.next.FindByAddress(ctx, address)
	m.logger.Info("FindByAddress",
		"address", address,
		"matches", len(found),
		"duration", time.Since(start),
		"error", err,
	)
	return found, err
}

func (m *loggingMiddleware) Networks(ctx context.Context) ([]uint64, error) {
	start := time.Now()
	chains, err := m.next.Networks(ctx)
	m.logger.Debug("Networks",
		"count", len(chains),
		"duration", time.Since(start),
		"error", err,
	)
	return chains, err
}
