package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/output"
	"github.com/pendergraft/deployvault/internal/verification"
)

func createVerifyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <network> <name>",
		Short: "Verify a deployment on a block explorer",
		Long: `Verify one deployment with two independent strategies: once from the
local build artifact and once from the cached standard JSON input.

The command succeeds when either strategy verifies the contract. Otherwise
it exits with the verifier's own exit code.`,
		Example: `  deployvault verify mainnet Token
  deployvault verify sepolia Vault --log-level debug`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.flushMetrics()

			engine, index, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if index != nil {
				defer index.Close()
			}

			spin := startSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Verifying %s on %s", args[1], args[0]))
			report, err := engine.Verify(cmd.Context(), args[0], args[1])
			spin.Stop()
			if err != nil {
				return err
			}

			printVerifyReport(a.out, report)
			if code := report.ExitCode(); code != 0 {
				return exitWith(code, fmt.Errorf("%s on %s could not be verified", report.Name, report.Network))
			}
			return nil
		},
	}

	return cmd
}

func createSweepCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Capture compiler input for every unverified deployment",
		Long: `Visit every artifact on every network and verify those that have no
cached standard JSON input yet, capturing the input the verifier submits.

A failure is reported for its deployment and the sweep moves on. The command
exits with the verifier's exit code of the first failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.flushMetrics()

			engine, index, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if index != nil {
				defer index.Close()
			}

			spin := startSpinner(cmd.ErrOrStderr(), "Sweeping deployments")
			report, err := engine.Sweep(cmd.Context())
			spin.Stop()
			if report != nil {
				printSweepReport(a.out, report)
			}
			if err != nil {
				return err
			}

			if code := report.ExitCode(); code != 0 {
				first, _ := report.FirstFailure()
				return exitWith(code, fmt.Errorf("sweep failed for %s: %w", first.Name, first.Err))
			}
			return nil
		},
	}

	return cmd
}

// startSpinner shows a spinner when w is a terminal.
func startSpinner(w io.Writer, message string) *output.Spinner {
	f, ok := w.(*os.File)
	if !ok {
		return &output.Spinner{}
	}
	return output.StartSpinner(f, message)
}

func printVerifyReport(w io.Writer, r *verification.VerifyReport) {
	fmt.Fprintf(w, "%s on %s (chain %d) at %s\n", r.Name, r.Network, r.ChainID, r.Address)
	for _, o := range []verification.StrategyOutcome{r.ArtifactBased, r.StandardJSON} {
		printStrategy(w, o)
	}
}

func printStrategy(w io.Writer, o verification.StrategyOutcome) {
	switch o.Status {
	case verification.StrategyVerified:
		output.Success(w, "%s: verified %s", o.Strategy, o.Target)
	case verification.StrategySkipped:
		output.Skipped(w, "%s: %s", o.Strategy, o.SkipReason)
	default:
		output.Failure(w, "%s: %v", o.Strategy, o.Err)
	}
	if o.RetriedWithoutChain {
		output.Detail(w, "retried without chain id after the first attempt failed")
	}
}

func printSweepReport(w io.Writer, r *verification.SweepReport) {
	for _, o := range r.Outcomes {
		label := fmt.Sprintf("%s on chain %d", o.Name, o.ChainID)
		if o.Network != "" {
			label = fmt.Sprintf("%s on %s", o.Name, o.Network)
		}
		switch o.Status {
		case verification.SweepCaptured:
			output.Success(w, "%s: captured compiler input", label)
		case verification.SweepSkipped:
			output.Skipped(w, "%s: %s", label, o.SkipReason)
		case verification.SweepFailed:
			output.Failure(w, "%s: %v", label, o.Err)
		}
		if o.SecondaryErr != nil {
			output.Warning(w, "%s: secondary verifier: %v", label, o.SecondaryErr)
		}
	}
	output.Detail(w, "%d captured, %d skipped, %d failed",
		r.Count(verification.SweepCaptured),
		r.Count(verification.SweepSkipped),
		r.Count(verification.SweepFailed))
}
