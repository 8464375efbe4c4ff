// Package metadata caches the standard JSON compiler input captured for each
// deployment.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pendergraft/deployvault/internal/atomicfile"
	"github.com/pendergraft/deployvault/internal/validation"
)

// ErrNotFound is returned when no blob is cached for a deployment.
var ErrNotFound = errors.New("no cached compiler input")

// Cache stores blobs at {dir}/deployvault/{chainId}/{name}.json.
type Cache struct {
	dir string
}

// NewCache creates a cache under dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the file a blob is cached at.
func (c *Cache) Path(chainID uint64, name string) string {
	return filepath.Join(c.dir, "deployvault", strconv.FormatUint(chainID, 10), name+".json")
}

// Save writes a blob for a deployment.
func (c *Cache) Save(chainID uint64, name string, blob []byte) error {
	if err := validation.ValidateDeploymentName(name); err != nil {
		return err
	}
	if err := atomicfile.WriteFile(c.Path(chainID, name), blob, 0644); err != nil {
		return fmt.Errorf("caching compiler input for %s: %w", name, err)
	}
	return nil
}

// Load reads a cached blob.
func (c *Cache) Load(chainID uint64, name string) ([]byte, error) {
	if err := validation.ValidateDeploymentName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.Path(chainID, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
