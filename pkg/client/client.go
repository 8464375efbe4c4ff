// Package client provides a Go client for the deployvault resolver API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a resolver API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new resolver client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deployment is a deployment in a listing.
type Deployment struct {
	ChainID      uint64 `json:"chainId"`
	Name         string `json:"name"`
	Context      string `json:"context,omitempty"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	TxHash       string `json:"txHash,omitempty"`
	Compiler     string `json:"compiler,omitempty"`
	Verified     bool   `json:"verified"`
}

// ResolvedDeployment is one deployment with its full registry artifact.
type ResolvedDeployment struct {
	ChainID      uint64          `json:"chainId"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	ContractName string          `json:"contractName"`
	Verified     bool            `json:"verified"`
	Artifact     json.RawMessage `json:"artifact"`
}

// ListOptions filters and pages a listing.
type ListOptions struct {
	ChainID  uint64
	Verified *bool
	Limit    int
	Cursor   string
}

// ListDeploymentsResponse is a page of deployments.
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the resolver.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Health checks the resolver is up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// GetDeployment resolves a deployment by chain and name.
func (c *Client) GetDeployment(ctx context.Context, chainID uint64, name string) (*ResolvedDeployment, error) {
	var resp ResolvedDeployment
	path := fmt.Sprintf("/api/v1/deployments/%d/%s", chainID, url.PathEscape(name))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDeployments lists deployments.
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	if opts.ChainID != 0 {
		q.Set("chain_id", strconv.FormatUint(opts.ChainID, 10))
	}
	if opts.Verified != nil {
		q.Set("verified", strconv.FormatBool(*opts.Verified))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	path := "/api/v1/deployments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindByAddress lists every deployment of an address across chains.
func (c *Client) FindByAddress(ctx context.Context, address string) ([]Deployment, error) {
	var resp struct {
		Data []Deployment `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/deployments/address/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Networks lists the chain IDs the resolver knows.
func (c *Client) Networks(ctx context.Context) ([]uint64, error) {
	var resp struct {
		ChainIDs []uint64 `json:"chainIds"`
	}
	if err := c.get(ctx, "/api/v1/networks", &resp); err != nil {
		return nil, err
	}
	return resp.ChainIDs, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
