package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/pendergraft/deployvault/internal/storage"
	"github.com/pendergraft/deployvault/internal/validation"
)

// Registry is the read side of the file registry the service resolves against.
type Registry interface {
	Get(name string, chainID uint64) (*Artifact, error)
	GetAll(chainID uint64) ([]Artifact, []*InvalidArtifactError, error)
	Networks() ([]uint64, error)
}

// Index is the subset of the deployment index the service queries.
type Index interface {
	ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error)
	FindByAddress(ctx context.Context, address string) ([]storage.Deployment, error)
}

// Service resolves deployments for the CLI and the resolver server.
type Service interface {
	// Get resolves a deployment by chain and name.
	Get(ctx context.Context, chainID uint64, name string) (*Artifact, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// FindByAddress finds every deployment of an address across chains.
	FindByAddress(ctx context.Context, address string) ([]Summary, error)

	// Networks lists the chain IDs present in the registry.
	Networks(ctx context.Context) ([]uint64, error)
}

// service implements the Service interface.
type service struct {
	registry Registry
	index    Index
}

// NewService creates a new deployment service. index may be nil, in which
// case listings are computed from the registry.
func NewService(registry Registry, index Index) Service {
	return &service{registry: registry, index: index}
}

// Get resolves a deployment by chain and name.
func (s *service) Get(ctx context.Context, chainID uint64, name string) (*Artifact, error) {
	if err := validation.ValidateChainID(chainID); err != nil {
		return nil, err
	}
	if err := validation.ValidateDeploymentName(name); err != nil {
		return nil, err
	}
	return s.registry.Get(name, chainID)
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	if pagination.Limit <= 0 {
		pagination.Limit = 20
	}

	if s.index != nil {
		return s.listFromIndex(ctx, filter, pagination)
	}
	return s.listFromRegistry(filter, pagination)
}

func (s *service) listFromIndex(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.index.ListDeployments(ctx, storage.DeploymentFilter{
		ChainID:  filter.ChainID,
		Verified: filter.Verified,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	summaries := make([]Summary, len(result.Data))
	for i, d := range result.Data {
		summaries[i] = summaryFromIndex(d)
	}
	return &ListResult{
		Deployments: summaries,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

func (s *service) listFromRegistry(filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	chains := []uint64{filter.ChainID}
	if filter.ChainID == 0 {
		var err error
		chains, err = s.registry.Networks()
		if err != nil {
			return nil, fmt.Errorf("discovering networks: %w", err)
		}
	}

	var all []Summary
	for _, chainID := range chains {
		artifacts, _, err := s.registry.GetAll(chainID)
		if err != nil {
			return nil, fmt.Errorf("listing chain %d: %w", chainID, err)
		}
		for i := range artifacts {
			summary := SummaryOf(&artifacts[i])
			if filter.Verified != nil && summary.Verified != *filter.Verified {
				continue
			}
			all = append(all, summary)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ChainID != all[j].ChainID {
			return all[i].ChainID < all[j].ChainID
		}
		return all[i].Name < all[j].Name
	})

	offset := 0
	if pagination.Cursor != "" {
		n, err := strconv.Atoi(pagination.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, pagination.Cursor)
		}
		offset = n
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + pagination.Limit
	if end > len(all) {
		end = len(all)
	}

	result := &ListResult{Deployments: all[offset:end], HasMore: end < len(all)}
	if result.HasMore {
		result.NextCursor = strconv.Itoa(end)
	}
	return result, nil
}

// FindByAddress finds every deployment of an address across chains.
func (s *service) FindByAddress(ctx context.Context, address string) ([]Summary, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, err
	}

	if s.index != nil {
		rows, err := s.index.FindByAddress(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("searching index: %w", err)
		}
		summaries := make([]Summary, len(rows))
		for i, d := range rows {
			summaries[i] = summaryFromIndex(d)
		}
		return summaries, nil
	}

	chains, err := s.registry.Networks()
	if err != nil {
		return nil, fmt.Errorf("discovering networks: %w", err)
	}
	var found []Summary
	for _, chainID := range chains {
		artifacts, _, err := s.registry.GetAll(chainID)
		if err != nil {
			return nil, fmt.Errorf("listing chain %d: %w", chainID, err)
		}
		for i := range artifacts {
			if validation.SameAddress(artifacts[i].Address, address) {
				found = append(found, SummaryOf(&artifacts[i]))
			}
		}
	}
	return found, nil
}

// Networks lists the chain IDs present in the registry.
func (s *service) Networks(ctx context.Context) ([]uint64, error) {
	return s.registry.Networks()
}

func summaryFromIndex(d storage.Deployment) Summary {
	return Summary{
		ChainID:      d.ChainID,
		Name:         d.Name,
		Context:      d.Context,
		Address:      d.Address,
		ContractName: d.ContractName,
		TxHash:       d.TxHash,
		Compiler:     d.Compiler,
		Verified:     d.Verified,
	}
}

// IsNotFound reports whether err means the deployment does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
