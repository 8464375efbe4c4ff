// Package cli implements the deployvault command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// options are the global flags.
type options struct {
	configFile string
	root       string
	logLevel   string
}

// Execute runs the CLI. The context is cancelled on SIGINT and SIGTERM.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(version).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "deployvault",
		Short: "Deployment provenance registry and verification",
		Long: `deployvault records contract deployments from Foundry broadcast logs into a
per-chain registry, captures their compiler input and verifies them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: deployvault.toml or dv.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", "project root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(createSyncCmd(opts))
	rootCmd.AddCommand(createVerifyCmd(opts))
	rootCmd.AddCommand(createSweepCmd(opts))
	rootCmd.AddCommand(createDiffCmd(opts))
	rootCmd.AddCommand(createListCmd(opts))
	rootCmd.AddCommand(createShowCmd(opts))
	rootCmd.AddCommand(createFindCmd(opts))
	rootCmd.AddCommand(createServeCmd(opts))
	rootCmd.AddCommand(createConfigCmd(opts))
	rootCmd.AddCommand(createKeysCmd(opts))

	return rootCmd
}
