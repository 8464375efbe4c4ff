package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/output"
	"github.com/pendergraft/deployvault/internal/validation"
)

const configHeader = `# deployvault project configuration
#
# Paths are relative to root. Every value can be overridden with a
# DEPLOYVAULT_* environment variable.

`

func createConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd(opts))
	cmd.AddCommand(createConfigShowCmd(opts))

	return cmd
}

func createConfigInitCmd(opts *options) *cobra.Command {
	var (
		networks []string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a deployvault.toml configuration file in the project root.

Networks are given as name=chainId pairs and can be edited later.`,
		Example: `  deployvault config init --network mainnet=1 --network sepolia=11155111
  deployvault config init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.root
			if dir == "" {
				dir = "."
			}
			path, err := runConfigInit(dir, networks, force)
			if err != nil {
				return err
			}
			output.Success(cmd.OutOrStdout(), "Created %s", path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&networks, "network", nil, "network as name=chainId (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the resolved configuration",
		Long: `Display the configuration after defaults, the project file and
environment overrides have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}

			if a.cfgPath != "" {
				fmt.Fprintf(a.out, "# Loaded from: %s\n", a.cfgPath)
			} else {
				fmt.Fprintln(a.out, "# No config file found, using defaults")
			}
			if creds, err := loadCredentials(); err == nil {
				fmt.Fprintf(a.out, "# Credentials: %s (%d keys)\n", credentialsFilePath(), len(creds.Networks))
			}
			fmt.Fprintln(a.out)

			return toml.NewEncoder(a.out).Encode(a.cfg)
		},
	}

	return cmd
}

func runConfigInit(dir string, networks []string, force bool) (string, error) {
	for _, name := range config.ProjectConfigFiles {
		existing := filepath.Join(dir, name)
		if _, err := os.Stat(existing); err == nil && !force {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", existing)
		}
	}

	cfg := config.Default()
	for _, n := range networks {
		name, chainID, err := parseNetworkFlag(n)
		if err != nil {
			return "", err
		}
		cfg.Networks[name] = config.NetworkConfig{
			ChainID:   chainID,
			APIKeyEnv: strings.ToUpper(name) + "_ETHERSCAN_API_KEY",
		}
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	path := filepath.Join(dir, config.ProjectConfigFiles[0])
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

func parseNetworkFlag(value string) (string, uint64, error) {
	name, id, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("invalid network %q: expected name=chainId", value)
	}
	chainID, err := validation.ParseChainID(id)
	if err != nil {
		return "", 0, fmt.Errorf("invalid network %q: %w", value, err)
	}
	return name, chainID, nil
}
