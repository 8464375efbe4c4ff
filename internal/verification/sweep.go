package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/forge"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
	"github.com/pendergraft/deployvault/internal/storage"
	"github.com/pendergraft/deployvault/internal/validation"
)

// SecondaryVerifier is used when the configuration names none.
const SecondaryVerifier = "sourcify"

// Sweep visits every artifact of every chain and captures the standard JSON
// input of those that lack it. A failure is scoped to its deployment; the
// returned error is non-nil only when the registry cannot be listed or ctx
// is cancelled.
func (e *Engine) Sweep(ctx context.Context) (*SweepReport, error) {
	chains, err := e.deps.Registry.Networks()
	if err != nil {
		return nil, fmt.Errorf("listing networks: %w", err)
	}

	report := &SweepReport{}
	for _, chainID := range chains {
		network, _ := e.cfg.NetworkByChainID(chainID)

		artifacts, invalid, err := e.deps.Registry.GetAll(chainID)
		if err != nil {
			e.logger.Error("listing deployments failed", "chain_id", chainID, "error", err)
			report.Outcomes = append(report.Outcomes, SweepOutcome{
				ChainID: chainID, Network: network.Name, Status: SweepFailed, Err: err,
			})
			metrics.SweepOutcome(string(SweepFailed))
			continue
		}
		for _, bad := range invalid {
			e.logger.Warn("sweep failed", "chain_id", chainID, "name", bad.Name, "error", bad.Err)
			report.Outcomes = append(report.Outcomes, SweepOutcome{
				ChainID: chainID, Network: network.Name, Name: bad.Name, Status: SweepFailed, Err: bad,
			})
			metrics.SweepOutcome(string(SweepFailed))
		}

		for i := range artifacts {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			out := e.sweepOne(ctx, network, &artifacts[i])
			report.Outcomes = append(report.Outcomes, out)
			metrics.SweepOutcome(string(out.Status))
		}
	}
	return report, nil
}

func skipReason(network config.NetworkConfig, a *domain.Artifact) string {
	switch {
	case a.HasStandardJSONInput():
		return "standard JSON input already captured"
	case a.ArtifactPath == "" || a.ArtifactFullPath == "":
		return "no artifact path"
	case a.SkipVerify:
		return "marked skip_verify"
	case network.DisableVerifyOnDeploy:
		return "verification disabled for network"
	}
	return ""
}

func (e *Engine) sweepOne(ctx context.Context, network config.NetworkConfig, a *domain.Artifact) SweepOutcome {
	out := SweepOutcome{ChainID: a.ChainID, Network: network.Name, Name: a.Name}
	logger := e.logger.With("chain_id", a.ChainID, "name", a.Name)

	if reason := skipReason(network, a); reason != "" {
		out.Status = SweepSkipped
		out.SkipReason = reason
		logger.Debug("sweep skipped", "reason", reason)
		return out
	}

	fail := func(err error) SweepOutcome {
		out.Status = SweepFailed
		out.Err = err
		logger.Warn("sweep failed", "error", err)
		return out
	}

	settings, err := e.compilerSettings(a)
	if err != nil {
		return fail(err)
	}

	cmd := e.tool.VerifyContract(forge.VerifyOptions{
		Address:          a.Address,
		Target:           a.ArtifactFullPath,
		ChainID:          a.ChainID,
		CompilerVersion:  validation.FullCompilerVersion(settings.Version),
		Optimized:        settings.OptimizerEnabled,
		OptimizerRuns:    settings.OptimizerRuns,
		ConstructorArgs:  a.ArgsData,
		APIKey:           e.deps.APIKey(network),
		ShowStandardJSON: true,
	})
	res, err := e.run(ctx, cmd, "")
	if err != nil {
		metrics.Verification("capture", "failed")
		return fail(err)
	}

	blob, err := foundry.CapturedStandardJSON(res.Stdout)
	if err != nil {
		metrics.Verification("capture", "failed")
		return fail(fmt.Errorf("verifier output for %s: %w", a.Name, err))
	}
	if err := e.deps.Cache.Save(a.ChainID, a.Name, blob); err != nil {
		return fail(err)
	}

	a.StandardJSONInput = blob
	a.Compiler = settings.Version
	a.StripTransient()
	if err := e.deps.Registry.Save(a); err != nil {
		return fail(err)
	}
	metrics.Verification("capture", "verified")

	if e.deps.Index != nil {
		if err := e.deps.Index.MarkVerified(ctx, a.ChainID, a.Name, a.Compiler); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Debug("deployment not indexed yet")
			} else {
				logger.Warn("updating index failed", "error", err)
			}
		}
	}

	out.Status = SweepCaptured
	logger.Info("standard JSON input captured", "compiler", a.Compiler)

	if secondary := e.secondaryVerifier(network); secondary != "" {
		_, err := e.run(ctx, e.tool.VerifyContract(forge.VerifyOptions{
			Address:  a.Address,
			Target:   a.ArtifactFullPath,
			ChainID:  a.ChainID,
			Verifier: secondary,
		}), "")
		if err != nil {
			out.SecondaryErr = err
			metrics.Verification(secondary, "failed")
			logger.Warn("secondary verification failed", "verifier", secondary, "error", err)
		} else {
			metrics.Verification(secondary, "verified")
		}
	}
	return out
}

func (e *Engine) secondaryVerifier(network config.NetworkConfig) string {
	if network.DisableSecondaryVerifier {
		return ""
	}
	if e.cfg.Verifier.Secondary != "" {
		return e.cfg.Verifier.Secondary
	}
	return SecondaryVerifier
}
