package verification

import (
	"context"
	"errors"

	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/forge"
	"github.com/pendergraft/deployvault/internal/metadata"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
	"github.com/pendergraft/deployvault/internal/validation"
)

// Verify verifies one deployment with both strategies. Each strategy runs
// regardless of the other's outcome. Unknown networks and missing
// deployments are returned as errors; strategy failures are in the report.
func (e *Engine) Verify(ctx context.Context, networkName, name string) (*VerifyReport, error) {
	network, err := e.cfg.Network(networkName)
	if err != nil {
		return nil, err
	}
	a, err := e.deps.Registry.Get(name, network.ChainID)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		Network: network.Name,
		ChainID: network.ChainID,
		Name:    name,
		Address: a.Address,
	}
	report.ArtifactBased = e.verifyFromArtifact(ctx, network, a)
	metrics.Verification(StrategyArtifact, string(report.ArtifactBased.Status))

	report.StandardJSON = e.verifyFromStandardJSON(ctx, network, a)
	metrics.Verification(StrategyStandardJSON, string(report.StandardJSON.Status))

	e.logger.Info("verification finished",
		"network", network.Name,
		"name", name,
		"artifact", report.ArtifactBased.Status,
		"standard_json", report.StandardJSON.Status,
	)
	return report, nil
}

func (e *Engine) verifyFromArtifact(ctx context.Context, network config.NetworkConfig, a *domain.Artifact) StrategyOutcome {
	out := StrategyOutcome{Strategy: StrategyArtifact, Target: a.ArtifactFullPath}
	if a.ArtifactFullPath == "" {
		out.Status = StrategySkipped
		out.SkipReason = "no artifact path"
		return out
	}

	settings, err := e.compilerSettings(a)
	if err != nil {
		out.Status = StrategyFailed
		out.Err = err
		return out
	}

	opts := forge.VerifyOptions{
		Address:         a.Address,
		Target:          a.ArtifactFullPath,
		ChainID:         a.ChainID,
		CompilerVersion: validation.FullCompilerVersion(settings.Version),
		Optimized:       settings.OptimizerEnabled,
		OptimizerRuns:   settings.OptimizerRuns,
		ConstructorArgs: a.ArgsData,
		APIKey:          e.deps.APIKey(network),
	}
	if err := e.runWithChainRetry(ctx, opts, "", &out); err != nil {
		out.Status = StrategyFailed
		out.Err = err
		return out
	}
	out.Status = StrategyVerified
	return out
}

func (e *Engine) verifyFromStandardJSON(ctx context.Context, network config.NetworkConfig, a *domain.Artifact) StrategyOutcome {
	out := StrategyOutcome{Strategy: StrategyStandardJSON}

	input, err := e.StandardJSONInput(a)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		out.Status = StrategySkipped
		out.SkipReason = "no cached standard JSON input"
		return out
	case err != nil:
		out.Status = StrategyFailed
		out.Err = err
		return out
	}
	if a.Compiler == "" {
		out.Status = StrategySkipped
		out.SkipReason = "no compiler version recorded"
		return out
	}
	if a.ArtifactFullPath == "" {
		out.Status = StrategySkipped
		out.SkipReason = "no artifact path"
		return out
	}

	project, err := e.deps.Materializer.Materialize(input, a.ArtifactFullPath, a.Compiler)
	if err != nil {
		out.Status = StrategyFailed
		out.Err = err
		return out
	}
	out.Target = project.Target

	opts := forge.VerifyOptions{
		Address:         a.Address,
		Target:          project.Target,
		ChainID:         a.ChainID,
		Root:            project.Root,
		CompilerVersion: validation.FullCompilerVersion(a.Compiler),
		Optimized:       project.Profile.Optimizer,
		OptimizerRuns:   project.Profile.OptimizerRuns,
		ConstructorArgs: a.ArgsData,
		APIKey:          e.deps.APIKey(network),
	}
	if err := e.runWithChainRetry(ctx, opts, project.Root, &out); err != nil {
		out.Status = StrategyFailed
		out.Err = err
		return out
	}
	out.Status = StrategyVerified
	return out
}

// StandardJSONInput returns the cached compiler input of an artifact,
// falling back to the metadata cache. It returns metadata.ErrNotFound when
// neither has one.
func (e *Engine) StandardJSONInput(a *domain.Artifact) ([]byte, error) {
	if a.HasStandardJSONInput() {
		return a.StandardJSONInput, nil
	}
	if e.deps.Cache == nil {
		return nil, metadata.ErrNotFound
	}
	return e.deps.Cache.Load(a.ChainID, a.Name)
}
