package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/broadcast"
	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
	"github.com/pendergraft/deployvault/internal/output"
	"github.com/pendergraft/deployvault/internal/storage"
)

func createSyncCmd(opts *options) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import deployments from broadcast logs into the registry",
		Long: `Scan the broadcast folder for run-latest.json files, extract the
deployments recorded by deploy scripts and write them to the registry.

Existing artifacts at the same address keep their cached compiler input.
Running sync twice without new broadcasts changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.flushMetrics()
			return runSync(cmd, a, concurrency)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of run files read in parallel")

	return cmd
}

func runSync(cmd *cobra.Command, a *app, concurrency int) error {
	ctx := cmd.Context()

	parser := broadcast.NewParser(a.logger,
		broadcast.WithArtifacts(foundry.NewReader(a.cfg.OutDir())),
		broadcast.WithConcurrency(concurrency),
	)
	result, err := parser.Parse(ctx, a.cfg.BroadcastDir())
	if err != nil {
		return fmt.Errorf("parsing broadcasts: %w", err)
	}

	index, err := a.openIndex(ctx)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	reg := a.registry()
	var written, unchanged, failed int
	for _, key := range result.Keys() {
		rec := result.Records[key]
		chain := strconv.FormatUint(rec.ChainID, 10)

		artifact, changed, err := reg.Write(rec)
		if err != nil {
			failed++
			metrics.SyncRecord(chain, "failed")
			output.Failure(a.out, "%s on chain %d: %v", rec.Name, rec.ChainID, err)
			continue
		}

		if index != nil {
			row := &storage.Deployment{
				ChainID:      artifact.ChainID,
				Name:         artifact.Name,
				Context:      artifact.Context,
				Address:      artifact.Address,
				ContractName: artifact.ContractName(),
				ArtifactPath: artifact.ArtifactPath,
				TxHash:       artifact.TxHash,
				Compiler:     artifact.Compiler,
				Verified:     artifact.HasStandardJSONInput(),
			}
			if err := index.UpsertDeployment(ctx, row); err != nil {
				a.logger.Warn("indexing deployment failed", "name", artifact.Name, "chain_id", artifact.ChainID, "error", err)
			}
		}

		if !changed {
			unchanged++
			metrics.SyncRecord(chain, "unchanged")
			continue
		}
		written++
		metrics.SyncRecord(chain, "written")
		output.Success(a.out, "%s on chain %d at %s", artifact.Name, artifact.ChainID, artifact.Address)
	}

	for _, f := range result.Failures {
		output.Warning(a.out, "%v", f)
	}

	output.Detail(a.out, "%d written, %d unchanged, %d failed, %d void skipped, %d run files",
		written, unchanged, failed, result.Skipped, result.Files)
	output.Detail(a.out, "registry: %s", reg.Folder())

	if failed > 0 {
		return exitWith(1, fmt.Errorf("%d deployments could not be written", failed))
	}
	return nil
}
