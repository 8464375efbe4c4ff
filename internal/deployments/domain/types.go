// Package domain contains the deployment provenance model: records extracted
// from broadcast logs, the persisted artifact form, and the resolver service.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pendergraft/deployvault/internal/validation"
)

// VoidContext marks a descriptor that must never be persisted.
const VoidContext = "void"

// Record is a deployment extracted from a broadcast log.
type Record struct {
	Name             string
	Address          string
	ABI              json.RawMessage
	Bytecode         string
	ArgsData         string
	TxHash           string
	Args             []string
	Data             string
	ContractName     string
	ArtifactPath     string
	ArtifactFullPath string
	Context          string
	ChainID          uint64
}

// Key returns the "context::name" key records are folded under.
func (r Record) Key() string {
	return r.Context + "::" + r.Name
}

// Voided reports whether the record carries the void context.
func (r Record) Voided() bool {
	return r.Context == VoidContext
}

// ToArtifact converts the record to its persisted form.
func (r Record) ToArtifact() Artifact {
	return Artifact{
		Address:          r.Address,
		ABI:              r.ABI,
		Bytecode:         r.Bytecode,
		ArgsData:         r.ArgsData,
		TxHash:           r.TxHash,
		Args:             r.Args,
		Data:             r.Data,
		ArtifactPath:     r.ArtifactPath,
		ArtifactFullPath: r.ArtifactFullPath,
		Context:          r.Context,
		Name:             r.Name,
		ChainID:          r.ChainID,
	}
}

// Artifact is the persisted registry entry for one deployment on one chain.
// StandardJSONInput and Compiler are filled in by verification and survive
// re-syncs while the address stays the same.
type Artifact struct {
	Address           string          `json:"address"`
	ABI               json.RawMessage `json:"abi,omitempty"`
	Bytecode          string          `json:"bytecode"`
	ArgsData          string          `json:"args_data"`
	TxHash            string          `json:"tx_hash"`
	Args              []string        `json:"args"`
	Data              string          `json:"data"`
	ArtifactPath      string          `json:"artifact_path"`
	ArtifactFullPath  string          `json:"artifact_full_path"`
	Context           string          `json:"context,omitempty"`
	SkipVerify        bool            `json:"skip_verify,omitempty"`
	StandardJSONInput json.RawMessage `json:"standardJsonInput,omitempty"`
	Compiler          string          `json:"compiler,omitempty"`

	// Populated by the registry on read, never persisted.
	Name     string `json:"-"`
	ChainID  uint64 `json:"-"`
	FilePath string `json:"-"`

	// Keys present in the file that this type does not model.
	extra map[string]json.RawMessage
}

// artifactFields has the same layout as Artifact without its JSON methods.
type artifactFields Artifact

var knownKeys = []string{
	"address", "abi", "bytecode", "args_data", "tx_hash", "args", "data",
	"artifact_path", "artifact_full_path", "context", "skip_verify",
	"standardJsonInput", "compiler",
}

// transientKeys are bookkeeping fields older tooling wrote into artifact files.
var transientKeys = []string{"name", "path", "filePath"}

// ContractName returns the contract part of the artifact full path.
func (a *Artifact) ContractName() string {
	if i := strings.LastIndex(a.ArtifactFullPath, ":"); i >= 0 {
		return a.ArtifactFullPath[i+1:]
	}
	return ""
}

// HasStandardJSONInput reports whether compiler input has been captured.
func (a *Artifact) HasStandardJSONInput() bool {
	return len(bytes.TrimSpace(a.StandardJSONInput)) > 0 && string(bytes.TrimSpace(a.StandardJSONInput)) != "null"
}

// HasField reports whether the file the artifact was read from carried an
// unmodelled key.
func (a *Artifact) HasField(key string) bool {
	_, ok := a.extra[key]
	return ok
}

// StripTransient drops bookkeeping keys so they are not written back.
func (a *Artifact) StripTransient() {
	for _, k := range transientKeys {
		delete(a.extra, k)
	}
}

// CarryExtra copies unmodelled keys from another artifact.
func (a *Artifact) CarryExtra(from *Artifact) {
	if len(from.extra) == 0 {
		return
	}
	if a.extra == nil {
		a.extra = make(map[string]json.RawMessage, len(from.extra))
	}
	for k, v := range from.extra {
		a.extra[k] = v
	}
}

// Validate checks the artifact is well formed.
func (a *Artifact) Validate() error {
	if err := validation.ValidateAddress(a.Address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if a.Bytecode != "" {
		if err := validation.ValidateHex(a.Bytecode); err != nil {
			return fmt.Errorf("%w: bytecode: %v", ErrInvalidArtifact, err)
		}
	}
	if a.ArtifactFullPath != "" && !strings.Contains(a.ArtifactFullPath, ":") {
		return fmt.Errorf("%w: artifact_full_path %q has no contract name", ErrInvalidArtifact, a.ArtifactFullPath)
	}
	if a.Compiler != "" {
		if err := validation.ValidateCompilerVersion(a.Compiler); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
	}
	if a.HasStandardJSONInput() {
		trimmed := bytes.TrimSpace(a.StandardJSONInput)
		if trimmed[0] != '{' || !json.Valid(trimmed) {
			return fmt.Errorf("%w: standardJsonInput must be a JSON object", ErrInvalidArtifact)
		}
	}
	return nil
}

// MarshalJSON writes modelled and unmodelled keys together, minus transient
// keys. Keys come out sorted.
func (a Artifact) MarshalJSON() ([]byte, error) {
	known, err := encodeNoEscape(artifactFields(a))
	if err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage, len(knownKeys)+len(a.extra))
	for k, v := range a.extra {
		merged[k] = v
	}
	for _, k := range transientKeys {
		delete(merged, k)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return encodeNoEscape(merged)
}

// UnmarshalJSON reads modelled fields and keeps everything else aside.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var fields artifactFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}

	*a = Artifact(fields)
	a.extra = nil
	if len(all) > 0 {
		a.extra = all
	}
	return nil
}

func encodeNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Summary is a lightweight view of a deployment used in listings.
type Summary struct {
	ChainID      uint64 `json:"chainId"`
	Name         string `json:"name"`
	Context      string `json:"context,omitempty"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	TxHash       string `json:"txHash,omitempty"`
	Compiler     string `json:"compiler,omitempty"`
	Verified     bool   `json:"verified"`
}

// SummaryOf builds a Summary from an artifact.
func SummaryOf(a *Artifact) Summary {
	return Summary{
		ChainID:      a.ChainID,
		Name:         a.Name,
		Context:      a.Context,
		Address:      a.Address,
		ContractName: a.ContractName(),
		TxHash:       a.TxHash,
		Compiler:     a.Compiler,
		Verified:     a.HasStandardJSONInput(),
	}
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	ChainID  uint64
	Verified *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Summary
	HasMore     bool
	NextCursor  string
}
