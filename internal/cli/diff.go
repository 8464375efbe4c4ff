package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/chains/evm"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/drift"
	"github.com/pendergraft/deployvault/internal/metadata"
	"github.com/pendergraft/deployvault/internal/output"
	"github.com/pendergraft/deployvault/internal/reconstruct"
	"github.com/pendergraft/deployvault/internal/verification"
)

// newChooser returns the interactive chooser used to resolve deployment names.
var newChooser = func() drift.Chooser { return output.SurveyChooser{} }

func createDiffCmd(opts *options) *cobra.Command {
	var noBuild bool

	cmd := &cobra.Command{
		Use:   "diff <network> <name>",
		Short: "Compare deployed sources with the working tree",
		Long: `Rebuild the source tree a deployment was compiled from, using its cached
standard JSON input, and diff it against the current sources and libraries.

When the name is unknown or has no cached input, similar names with cached
input are offered instead.`,
		Example: `  deployvault diff mainnet Token
  deployvault diff mainnet Tokn --no-build`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.flushMetrics()
			return runDiff(cmd, a, args[0], args[1], noBuild)
		},
	}

	cmd.Flags().BoolVar(&noBuild, "no-build", false, "Materialize sources without compiling them")

	return cmd
}

func runDiff(cmd *cobra.Command, a *app, networkName, name string, noBuild bool) error {
	ctx := cmd.Context()

	network, err := a.cfg.Network(networkName)
	if err != nil {
		return err
	}

	engine, index, err := a.engine(ctx)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	reg := a.registry()
	artifact, input, err := artifactWithInput(engine, reg, name, network.ChainID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, metadata.ErrNotFound) {
			return err
		}
		names, listErr := namesWithInput(engine, reg, network.ChainID)
		if listErr != nil {
			return listErr
		}
		chosen, resolveErr := drift.Resolve(name, names, newChooser())
		if resolveErr != nil {
			return fmt.Errorf("%w: %w", err, resolveErr)
		}
		artifact, input, err = artifactWithInput(engine, reg, chosen, network.ChainID)
		if err != nil {
			return err
		}
	}

	recon := a.reconstructor(a.runner())
	var project *reconstruct.Project
	spin := startSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Rebuilding %s", artifact.Name))
	defer spin.Stop()
	if noBuild {
		project, err = recon.Materialize(input, artifact.ArtifactFullPath, artifact.Compiler)
	} else {
		project, err = recon.Reconstruct(ctx, input, artifact.ArtifactFullPath, artifact.Compiler)
	}
	if err != nil {
		return err
	}

	var match *evm.MatchResult
	if !noBuild && artifact.Bytecode != "" {
		spin.Update("Comparing bytecode")
		match, err = recon.CompareBuild(project, artifact.Bytecode)
		if err != nil {
			a.logger.Warn("comparing rebuilt bytecode failed", "name", artifact.Name, "error", err)
			match = nil
		}
	}

	spin.Update("Comparing with working tree")
	report, err := drift.NewDetector(a.logger).Compare(project.Root, a.cfg.Root, a.cfg.Src, a.cfg.Libs)
	spin.Stop()
	if err != nil {
		return err
	}

	output.Detail(a.out, "rebuilt sources in %s", recon.Scratch())
	if match != nil {
		output.Detail(a.out, "rebuilt bytecode match: %s", match.MatchType)
	}

	if report.Identical() {
		output.Success(a.out, "%s on %s: identical (%d files compared)", artifact.Name, network.Name, report.Compared)
		return nil
	}
	output.Warning(a.out, "%s on %s: %d of %d files differ", artifact.Name, network.Name, len(report.Differences), report.Compared)
	for _, d := range report.Differences {
		fmt.Fprintln(a.out, d.Diff)
	}
	return nil
}

// artifactWithInput loads an artifact together with its cached compiler input.
func artifactWithInput(engine *verification.Engine, reg domain.Registry, name string, chainID uint64) (*domain.Artifact, []byte, error) {
	artifact, err := reg.Get(name, chainID)
	if err != nil {
		return nil, nil, err
	}
	input, err := engine.StandardJSONInput(artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("%s on chain %d: %w", name, chainID, err)
	}
	return artifact, input, nil
}

// namesWithInput lists the deployments on a chain that have compiler input.
func namesWithInput(engine *verification.Engine, reg domain.Registry, chainID uint64) ([]string, error) {
	artifacts, _, err := reg.GetAll(chainID)
	if err != nil {
		return nil, err
	}
	var names []string
	for i := range artifacts {
		if _, err := engine.StandardJSONInput(&artifacts[i]); err == nil {
			names = append(names, artifacts[i].Name)
		}
	}
	return names, nil
}
