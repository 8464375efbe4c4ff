// Package transport serves the read-only deployment resolver over HTTP.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
	"github.com/pendergraft/deployvault/internal/storage"
	"github.com/pendergraft/deployvault/internal/validation"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Handler handles HTTP requests for deployments.
type Handler struct {
	svc domain.Service
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc domain.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the resolver routes on a chi router mounted at
// the API root.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/networks", h.handleNetworks)
	r.Route("/deployments", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/address/{address}", h.handleFindByAddress)
		r.Get("/{chainId}/{name}", h.handleGet)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultLimit
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}

	var filter domain.ListFilter
	if c := q.Get("chain_id"); c != "" {
		chainID, err := validation.ParseChainID(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		filter.ChainID = chainID
	}
	if v := q.Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "verified must be true or false")
			return
		}
		filter.Verified = &b
	}

	result, err := h.svc.List(r.Context(), filter, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		metrics.ResolverLookup("list", "error")
		if errors.Is(err, storage.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid cursor")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deployments")
		return
	}
	metrics.ResolverLookup("list", "ok")

	data := make([]DeploymentItem, len(result.Deployments))
	for i, d := range result.Deployments {
		data[i] = itemOf(d)
	}
	writeJSON(w, http.StatusOK, DeploymentListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	chainID, err := validation.ParseChainID(chi.URLParam(r, "chainId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	if err := validation.ValidateDeploymentName(name); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	a, err := h.svc.Get(r.Context(), chainID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ResolverLookup("get", "not_found")
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
			return
		}
		metrics.ResolverLookup("get", "error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve deployment")
		return
	}

	raw, err := json.Marshal(a)
	if err != nil {
		metrics.ResolverLookup("get", "error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encode deployment")
		return
	}
	metrics.ResolverLookup("get", "ok")

	writeJSON(w, http.StatusOK, DeploymentResponse{
		ChainID:      chainID,
		Name:         name,
		Address:      a.Address,
		ContractName: a.ContractName(),
		Verified:     a.HasStandardJSONInput(),
		Artifact:     raw,
	})
}

func (h *Handler) handleFindByAddress(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := validation.ValidateAddress(address); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	found, err := h.svc.FindByAddress(r.Context(), address)
	if err != nil {
		metrics.ResolverLookup("find", "error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to search deployments")
		return
	}
	if len(found) == 0 {
		metrics.ResolverLookup("find", "not_found")
		writeError(w, http.StatusNotFound, "NOT_FOUND", "No deployments at this address")
		return
	}
	metrics.ResolverLookup("find", "ok")

	data := make([]DeploymentItem, len(found))
	for i, d := range found {
		data[i] = itemOf(d)
	}
	writeJSON(w, http.StatusOK, AddressResponse{Address: validation.ChecksumAddress(address), Data: data})
}

func (h *Handler) handleNetworks(w http.ResponseWriter, r *http.Request) {
	chains, err := h.svc.Networks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list networks")
		return
	}
	if chains == nil {
		chains = []uint64{}
	}
	writeJSON(w, http.StatusOK, NetworksResponse{ChainIDs: chains})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
