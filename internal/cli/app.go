package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/forge"
	"github.com/pendergraft/deployvault/internal/metadata"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
	"github.com/pendergraft/deployvault/internal/reconstruct"
	"github.com/pendergraft/deployvault/internal/registry"
	"github.com/pendergraft/deployvault/internal/storage"
	"github.com/pendergraft/deployvault/internal/verification"
)

// app is the per-invocation environment shared by commands.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
}

func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	metrics.Init(cfg.Metrics.Enabled, "deployvault")

	return &app{
		cfg:     cfg,
		cfgPath: path,
		logger:  setupLogger(cfg, cmd.ErrOrStderr()),
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}, nil
}

// loadConfig finds the project config. With --root and no --config, the
// config files are looked up in the root.
func loadConfig(opts *options) (*config.Config, string, error) {
	path := opts.configFile
	if path == "" && opts.root != "" {
		for _, name := range config.ProjectConfigFiles {
			candidate := filepath.Join(opts.root, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg, path, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	if opts.root != "" {
		cfg.Root = opts.root
	}
	return cfg, path, nil
}

func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (a *app) registry() *registry.Registry {
	return registry.New(a.cfg.DeploymentsDir(), a.logger)
}

func (a *app) cache() *metadata.Cache {
	return metadata.NewCache(a.cfg.CacheDir())
}

func (a *app) runner() forge.Runner {
	return forge.NewExecRunner(a.logger)
}

func (a *app) reconstructor(runner forge.Runner) *reconstruct.Reconstructor {
	return reconstruct.New(a.cfg.ScratchDir(), runner, forge.NewTool(a.cfg.Verifier.Command), a.logger)
}

// openIndex opens and migrates the configured index, or returns nil when
// none is configured.
func (a *app) openIndex(ctx context.Context) (storage.Store, error) {
	if !a.cfg.Index.Enabled() {
		return nil, nil
	}
	idx := a.cfg.Index
	if idx.Type == "sqlite" {
		idx.SQLitePath = a.cfg.Path(idx.SQLitePath)
	}
	store, err := storage.New(idx, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating index: %w", err)
	}
	return store, nil
}

// engine builds a verification engine. The caller closes the returned
// store when it is not nil.
func (a *app) engine(ctx context.Context) (*verification.Engine, storage.Store, error) {
	store, err := a.openIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	runner := a.runner()
	deps := verification.Deps{
		Registry:     a.registry(),
		Cache:        a.cache(),
		Artifacts:    foundry.NewReader(a.cfg.OutDir()),
		Runner:       runner,
		Materializer: a.reconstructor(runner),
		APIKey:       a.keyResolver(),
	}
	if store != nil {
		deps.Index = store
	}
	return verification.New(a.cfg, deps, a.logger), store, nil
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics() {
	if err := metrics.WriteTextfile(a.cfg.Path(a.cfg.Metrics.Textfile)); err != nil {
		a.logger.Warn("writing metrics failed", "error", err)
	}
}

// service builds the deployment resolver over the registry and, when one is
// configured, the index. The returned func releases the index.
func (a *app) service(ctx context.Context) (domain.Service, func(), error) {
	store, err := a.openIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return domain.NewService(a.registry(), nil), func() {}, nil
	}
	return domain.NewService(a.registry(), store), func() { store.Close() }, nil
}
