package transport

import (
	"encoding/json"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentItem `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DeploymentItem is a deployment in a list.
type DeploymentItem struct {
	ChainID      uint64 `json:"chainId"`
	Name         string `json:"name"`
	Context      string `json:"context,omitempty"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	TxHash       string `json:"txHash,omitempty"`
	Compiler     string `json:"compiler,omitempty"`
	Verified     bool   `json:"verified"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// DeploymentResponse is the response for resolving one deployment.
type DeploymentResponse struct {
	ChainID      uint64          `json:"chainId"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	ContractName string          `json:"contractName"`
	Verified     bool            `json:"verified"`
	Artifact     json.RawMessage `json:"artifact"`
}

// AddressResponse lists every deployment of one address.
type AddressResponse struct {
	Address string           `json:"address"`
	Data    []DeploymentItem `json:"data"`
}

// NetworksResponse lists the chains present in the registry.
type NetworksResponse struct {
	ChainIDs []uint64 `json:"chainIds"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func itemOf(s domain.Summary) DeploymentItem {
	return DeploymentItem{
		ChainID:      s.ChainID,
		Name:         s.Name,
		Context:      s.Context,
		Address:      s.Address,
		ContractName: s.ContractName,
		TxHash:       s.TxHash,
		Compiler:     s.Compiler,
		Verified:     s.Verified,
	}
}
