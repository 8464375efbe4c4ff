// Package registry persists deployment artifacts as per-chain JSON files and
// resolves (name, chain ID) pairs against them.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pendergraft/deployvault/internal/atomicfile"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/validation"
)

// MarkerFile records a chain folder's chain ID as plain text.
const MarkerFile = ".chainId"

// Registry is the file-backed deployment registry rooted at a deployment
// folder laid out as {folder}/{chainId}/{name}.json.
type Registry struct {
	folder string
	logger *slog.Logger
}

// New creates a registry rooted at folder.
func New(folder string, logger *slog.Logger) *Registry {
	return &Registry{folder: folder, logger: logger}
}

// Folder returns the registry root.
func (r *Registry) Folder() string {
	return r.folder
}

// Path returns the file an artifact is stored at.
func (r *Registry) Path(name string, chainID uint64) string {
	return filepath.Join(r.chainDir(chainID), name+".json")
}

func (r *Registry) chainDir(chainID uint64) string {
	return filepath.Join(r.folder, strconv.FormatUint(chainID, 10))
}

// Get returns the artifact for name on chainID. A missing file yields a
// *domain.NotFoundError naming the expected path.
func (r *Registry) Get(name string, chainID uint64) (*domain.Artifact, error) {
	if err := validation.ValidateDeploymentName(name); err != nil {
		return nil, err
	}
	path := r.Path(name, chainID)
	a, err := readArtifact(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.NotFoundError{Name: name, ChainID: chainID, Path: path}
		}
		return nil, err
	}
	a.Name = name
	a.ChainID = chainID
	a.FilePath = path
	return a, nil
}

// GetAll returns every readable artifact on chainID sorted by name. Files
// that fail to decode or validate are returned separately and do not stop
// the listing. A chain with no folder yields empty slices.
func (r *Registry) GetAll(chainID uint64) ([]domain.Artifact, []*domain.InvalidArtifactError, error) {
	dir := r.chainDir(chainID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var (
		artifacts []domain.Artifact
		invalid   []*domain.InvalidArtifactError
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		path := filepath.Join(dir, e.Name())
		a, err := readArtifact(path)
		if err != nil {
			r.logger.Warn("skipping unreadable artifact", "path", path, "error", err)
			invalid = append(invalid, &domain.InvalidArtifactError{Name: name, ChainID: chainID, Path: path, Err: err})
			continue
		}
		a.Name = name
		a.ChainID = chainID
		a.FilePath = path
		artifacts = append(artifacts, *a)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, invalid, nil
}

// Networks returns the chain IDs that have a marker file, in ascending order.
func (r *Registry) Networks() ([]uint64, error) {
	entries, err := os.ReadDir(r.folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", r.folder, err)
	}

	var chains []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		marker := filepath.Join(r.folder, e.Name(), MarkerFile)
		data, err := os.ReadFile(marker)
		if err != nil {
			continue
		}
		chainID, err := validation.ParseChainID(string(data))
		if err != nil {
			r.logger.Warn("ignoring invalid chain marker", "path", marker, "error", err)
			continue
		}
		chains = append(chains, chainID)
	}

	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains, nil
}

// Write merges a sync-derived record into the registry. When an artifact
// already exists at the same address, only the transactional fields are
// replaced and cached verification metadata is kept. A different address is
// a redeploy and starts from a fresh artifact. Write reports whether the file
// content changed.
func (r *Registry) Write(rec domain.Record) (*domain.Artifact, bool, error) {
	if rec.Voided() {
		return nil, false, fmt.Errorf("refusing to persist %s: context is %q", rec.Name, domain.VoidContext)
	}
	if err := validation.ValidateDeploymentName(rec.Name); err != nil {
		return nil, false, err
	}
	if err := validation.ValidateChainID(rec.ChainID); err != nil {
		return nil, false, err
	}

	path := r.Path(rec.Name, rec.ChainID)
	merged := rec.ToArtifact()

	existing, err := readArtifact(path)
	switch {
	case err == nil:
		merged = mergeArtifact(existing, rec)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, false, err
	}

	merged.Name = rec.Name
	merged.ChainID = rec.ChainID
	merged.FilePath = path

	changed, err := r.save(&merged)
	if err != nil {
		return nil, false, err
	}
	return &merged, changed, nil
}

// Save writes an enriched artifact back to its file, dropping transient keys.
func (r *Registry) Save(a *domain.Artifact) error {
	if err := validation.ValidateDeploymentName(a.Name); err != nil {
		return err
	}
	if err := validation.ValidateChainID(a.ChainID); err != nil {
		return err
	}
	a.FilePath = r.Path(a.Name, a.ChainID)
	_, err := r.save(a)
	return err
}

func (r *Registry) save(a *domain.Artifact) (bool, error) {
	a.StripTransient()
	if err := a.Validate(); err != nil {
		return false, fmt.Errorf("%s on chain %d: %w", a.Name, a.ChainID, err)
	}

	data, err := encodeArtifact(a)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", a.Name, err)
	}

	if current, err := os.ReadFile(a.FilePath); err == nil && bytes.Equal(current, data) {
		return false, r.ensureMarker(a.ChainID)
	}

	if err := atomicfile.WriteFile(a.FilePath, data, 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", a.FilePath, err)
	}
	if err := r.ensureMarker(a.ChainID); err != nil {
		return true, err
	}
	r.logger.Debug("artifact written", "name", a.Name, "chain_id", a.ChainID, "path", a.FilePath)
	return true, nil
}

func (r *Registry) ensureMarker(chainID uint64) error {
	marker := filepath.Join(r.chainDir(chainID), MarkerFile)
	want := strconv.FormatUint(chainID, 10)
	if data, err := os.ReadFile(marker); err == nil && strings.TrimSpace(string(data)) == want {
		return nil
	}
	if err := atomicfile.WriteFile(marker, []byte(want), 0644); err != nil {
		return fmt.Errorf("writing chain marker: %w", err)
	}
	return nil
}

// mergeArtifact applies the transactional fields of rec onto existing.
func mergeArtifact(existing *domain.Artifact, rec domain.Record) domain.Artifact {
	merged := rec.ToArtifact()
	merged.SkipVerify = existing.SkipVerify
	merged.CarryExtra(existing)
	if len(merged.ABI) == 0 {
		merged.ABI = existing.ABI
	}

	if validation.SameAddress(existing.Address, rec.Address) {
		merged.StandardJSONInput = existing.StandardJSONInput
		merged.Compiler = existing.Compiler
	}
	return merged
}

func readArtifact(path string) (*domain.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a domain.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

func encodeArtifact(a *domain.Artifact) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
