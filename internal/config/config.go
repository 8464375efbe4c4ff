// Package config provides configuration loading for deployvault.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ProjectConfigFiles is the search order for project config files.
var ProjectConfigFiles = []string{"deployvault.toml", "dv.toml"}

// ErrUnknownNetwork is returned when a network name has no configuration.
var ErrUnknownNetwork = errors.New("unknown network")

// Config holds all configuration for deployvault.
type Config struct {
	Root             string   `toml:"root"`
	DeploymentFolder string   `toml:"deployment_folder"`
	Out              string   `toml:"out"`
	Broadcast        string   `toml:"broadcast"`
	Cache            string   `toml:"cache"`
	Src              string   `toml:"src"`
	Libs             []string `toml:"libs"`
	Scratch          string   `toml:"scratch"`

	Verifier  VerifierConfig           `toml:"verifier"`
	Networks  map[string]NetworkConfig `toml:"networks"`
	Index     IndexConfig              `toml:"index"`
	Server    ServerConfig             `toml:"server"`
	RateLimit RateLimitConfig          `toml:"rate_limit"`
	Logging   LoggingConfig            `toml:"logging"`
	Metrics   MetricsConfig            `toml:"metrics"`
}

// VerifierConfig configures the external build and verification tool.
type VerifierConfig struct {
	Command   string `toml:"command"`
	Secondary string `toml:"secondary"`
}

// NetworkConfig is the per-network configuration.
type NetworkConfig struct {
	Name                     string `toml:"-"`
	ChainID                  uint64 `toml:"chain_id"`
	DisableSecondaryVerifier bool   `toml:"disable_secondary_verifier"`
	DisableVerifyOnDeploy    bool   `toml:"disable_verify_on_deploy"`
	Profile                  string `toml:"profile"`
	APIKeyEnv                string `toml:"api_key_env"`
}

// IndexConfig holds deployment index configuration.
type IndexConfig struct {
	Type        string `toml:"type"` // "", "sqlite" or "postgres"
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

// Enabled reports whether an index is configured.
func (c IndexConfig) Enabled() bool {
	return c.Type != ""
}

// ServerConfig holds resolver server configuration.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
	IdleTimeout  int    `toml:"idle_timeout"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled        bool `toml:"enabled"`
	RequestsPerMin int  `toml:"requests_per_min"`
	BurstSize      int  `toml:"burst_size"`
	CleanupMinutes int  `toml:"cleanup_minutes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Textfile string `toml:"textfile"`
}

// Default returns the configuration used when no project file exists.
func Default() *Config {
	return &Config{
		Root:             ".",
		DeploymentFolder: "deployments",
		Out:              "out",
		Broadcast:        "broadcast",
		Cache:            "cache",
		Src:              "src",
		Libs:             []string{"lib"},
		Scratch:          filepath.Join(".deployvault", "reconstructed"),
		Verifier: VerifierConfig{
			Command:   "forge",
			Secondary: "sourcify",
		},
		Networks: map[string]NetworkConfig{},
		Index: IndexConfig{
			SQLitePath: filepath.Join(".deployvault", "index.db"),
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8545,
			ReadTimeout:  30,
			WriteTimeout: 60,
			IdleTimeout:  120,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			BurstSize:      20,
			CleanupMinutes: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from path, or from the first project config file
// found in the working directory when path is empty. A missing file yields
// defaults. Environment variables override file values. The returned string is
// the file the config was read from, if any.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	if path == "" {
		for _, name := range ProjectConfigFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				return nil, path, fmt.Errorf("config file %s: %w", path, err)
			}
			return nil, path, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	for name, n := range cfg.Networks {
		n.Name = name
		cfg.Networks[name] = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func applyEnv(cfg *Config) {
	cfg.Root = getEnv("DEPLOYVAULT_ROOT", cfg.Root)
	cfg.DeploymentFolder = getEnv("DEPLOYVAULT_DEPLOYMENT_FOLDER", cfg.DeploymentFolder)
	cfg.Out = getEnv("DEPLOYVAULT_OUT", cfg.Out)
	cfg.Broadcast = getEnv("DEPLOYVAULT_BROADCAST", cfg.Broadcast)
	cfg.Cache = getEnv("DEPLOYVAULT_CACHE", cfg.Cache)
	cfg.Verifier.Command = getEnv("DEPLOYVAULT_VERIFIER", cfg.Verifier.Command)

	cfg.Index.Type = getEnv("DEPLOYVAULT_INDEX_TYPE", cfg.Index.Type)
	cfg.Index.SQLitePath = getEnv("DEPLOYVAULT_SQLITE_PATH", cfg.Index.SQLitePath)
	cfg.Index.PostgresURL = getEnv("DEPLOYVAULT_POSTGRES_URL", cfg.Index.PostgresURL)
	// A postgres URL without an explicit type selects postgres.
	if cfg.Index.PostgresURL != "" && cfg.Index.Type == "" {
		cfg.Index.Type = "postgres"
	}

	cfg.Server.Host = getEnv("DEPLOYVAULT_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("DEPLOYVAULT_PORT", cfg.Server.Port)
	cfg.RateLimit.Enabled = getEnvBool("DEPLOYVAULT_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMin = getEnvInt("DEPLOYVAULT_RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMin)

	cfg.Logging.Level = getEnv("DEPLOYVAULT_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("DEPLOYVAULT_LOG_FORMAT", cfg.Logging.Format)

	cfg.Metrics.Enabled = getEnvBool("DEPLOYVAULT_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Textfile = getEnv("DEPLOYVAULT_METRICS_TEXTFILE", cfg.Metrics.Textfile)

	cfg.Libs = getEnvStringSlice("DEPLOYVAULT_LIBS", cfg.Libs)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch c.Index.Type {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown index type: %s", c.Index.Type)
	}
	if c.Index.Type == "postgres" && c.Index.PostgresURL == "" {
		return errors.New("index type postgres requires postgres_url")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}

	seen := make(map[uint64]string)
	for name, n := range c.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("network %q: chain_id is required", name)
		}
		if other, ok := seen[n.ChainID]; ok {
			return fmt.Errorf("networks %q and %q share chain_id %d", other, name, n.ChainID)
		}
		seen[n.ChainID] = name
	}
	return nil
}

// Path resolves a project-relative path against Root.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// DeploymentsDir returns the resolved registry folder.
func (c *Config) DeploymentsDir() string { return c.Path(c.DeploymentFolder) }

// OutDir returns the resolved build output folder.
func (c *Config) OutDir() string { return c.Path(c.Out) }

// BroadcastDir returns the resolved broadcast root.
func (c *Config) BroadcastDir() string { return c.Path(c.Broadcast) }

// CacheDir returns the resolved cache folder.
func (c *Config) CacheDir() string { return c.Path(c.Cache) }

// ScratchDir returns the resolved reconstruction scratch folder.
func (c *Config) ScratchDir() string { return c.Path(c.Scratch) }

// Network returns the named network configuration.
func (c *Config) Network(name string) (NetworkConfig, error) {
	n, ok := c.Networks[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownNetwork, name, strings.Join(c.NetworkNames(), ", "))
	}
	n.Name = name
	return n, nil
}

// NetworkByChainID returns the network configured for a chain ID. Chains with
// no configuration get a zero-value network named after the chain ID.
func (c *Config) NetworkByChainID(chainID uint64) (NetworkConfig, bool) {
	for _, name := range c.NetworkNames() {
		if n := c.Networks[name]; n.ChainID == chainID {
			n.Name = name
			return n, true
		}
	}
	return NetworkConfig{Name: strconv.FormatUint(chainID, 10), ChainID: chainID}, false
}

// NetworkNames returns the configured network names, sorted.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
