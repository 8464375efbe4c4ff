// Package verification drives the external verifier: the post-deploy sweep
// that captures compiler input, and on-demand verification with two
// independent strategies.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/forge"
	"github.com/pendergraft/deployvault/internal/metadata"
	"github.com/pendergraft/deployvault/internal/reconstruct"
)

// Registry is the subset of the deployment registry the engine uses.
type Registry interface {
	Networks() ([]uint64, error)
	GetAll(chainID uint64) ([]domain.Artifact, []*domain.InvalidArtifactError, error)
	Get(name string, chainID uint64) (*domain.Artifact, error)
	Save(a *domain.Artifact) error
}

// Index mirrors verification state into the deployment index.
type Index interface {
	MarkVerified(ctx context.Context, chainID uint64, name, compiler string) error
}

// Artifacts reads local build artifacts.
type Artifacts interface {
	Read(sourcePath, contractName string) (*foundry.BuildArtifact, error)
}

// Materializer writes a cached compiler input out as a project.
type Materializer interface {
	Materialize(input []byte, artifactFullPath, compiler string) (*reconstruct.Project, error)
}

// KeyResolver returns the verifier API key for a network, or "".
type KeyResolver func(network config.NetworkConfig) string

// EnvKeyResolver reads the key from the network's api_key_env variable.
func EnvKeyResolver(network config.NetworkConfig) string {
	if network.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(network.APIKeyEnv)
}

// Deps are the collaborators of an Engine. Index and APIKey are optional.
type Deps struct {
	Registry     Registry
	Cache        *metadata.Cache
	Artifacts    Artifacts
	Runner       forge.Runner
	Materializer Materializer
	Index        Index
	APIKey       KeyResolver
}

// Engine runs verification against the registry.
type Engine struct {
	cfg  *config.Config
	deps Deps
	tool forge.Tool

	logger *slog.Logger
}

// New creates a verification engine.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Engine {
	if deps.APIKey == nil {
		deps.APIKey = EnvKeyResolver
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		tool:   forge.NewTool(cfg.Verifier.Command),
		logger: logger,
	}
}

// compilerSettings resolves build-time settings for an artifact from the
// local build output.
func (e *Engine) compilerSettings(a *domain.Artifact) (*foundry.CompilerSettings, error) {
	contract := a.ContractName()
	if a.ArtifactPath == "" || contract == "" {
		return nil, fmt.Errorf("%s has no artifact path", a.Name)
	}
	built, err := e.deps.Artifacts.Read(a.ArtifactPath, contract)
	if err != nil {
		return nil, fmt.Errorf("reading build artifact for %s: %w", a.Name, err)
	}
	return built.Settings()
}

// run executes a command rooted at dir, defaulting to the project root.
func (e *Engine) run(ctx context.Context, cmd forge.Command, dir string) (*forge.Result, error) {
	if dir == "" {
		dir = e.cfg.Root
	}
	cmd.Dir = dir
	return e.deps.Runner.Run(ctx, cmd)
}

// runWithChainRetry runs a verify command with --chain and, when that fails,
// once more without it. Some verifier backends mishandle the chain flag.
func (e *Engine) runWithChainRetry(ctx context.Context, opts forge.VerifyOptions, dir string, out *StrategyOutcome) error {
	out.Attempts++
	_, err := e.run(ctx, e.tool.VerifyContract(opts), dir)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	e.logger.Debug("verification failed, retrying without chain id", "address", opts.Address, "error", err)
	opts.OmitChain = true
	out.Attempts++
	out.RetriedWithoutChain = true
	_, err = e.run(ctx, e.tool.VerifyContract(opts), dir)
	return err
}
