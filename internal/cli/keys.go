package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/deployvault/internal/atomicfile"
	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/output"
	"github.com/pendergraft/deployvault/internal/verification"
)

// Credentials stores verifier API keys per network
type Credentials struct {
	Networks map[string]NetworkCredential `yaml:"networks"`
}

// NetworkCredential stores the verifier key for a single network
type NetworkCredential struct {
	APIKey string `yaml:"api_key"`
}

func createKeysCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage block explorer API keys",
	}

	cmd.AddCommand(createKeysSetCmd(opts))
	cmd.AddCommand(createKeysListCmd(opts))
	cmd.AddCommand(createKeysRemoveCmd(opts))

	return cmd
}

func createKeysSetCmd(opts *options) *cobra.Command {
	var apiKeyFlag string

	cmd := &cobra.Command{
		Use:   "set <network>",
		Short: "Save the verifier API key for a network",
		Long: `Save the block explorer API key used to verify contracts on a network.

The key is stored in ~/.deployvault/credentials.yaml with owner-only
permissions. A key in the network's api_key_env variable takes precedence.`,
		Example: `  # Interactive (prompts for the key)
  deployvault keys set mainnet

  # Non-interactive (for CI)
  deployvault keys set mainnet --api-key $ETHERSCAN_API_KEY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			network, err := a.cfg.Network(args[0])
			if err != nil {
				return err
			}

			apiKey := apiKeyFlag
			if apiKey == "" {
				fmt.Fprintf(a.errOut, "Enter API key for %s: ", network.Name)
				apiKey, err = readSecret(cmd.InOrStdin())
				fmt.Fprintln(a.errOut)
				if err != nil {
					return fmt.Errorf("failed to read API key: %w", err)
				}
			}
			if apiKey == "" {
				return errors.New("API key cannot be empty")
			}

			if err := saveCredential(network.Name, apiKey); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			output.Success(a.out, "Saved key for %s (key: %s)", network.Name, maskAPIKey(apiKey))
			output.Detail(a.out, "Credentials saved to %s", credentialsFilePath())
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")

	return cmd
}

func createKeysListCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show which networks have a verifier API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}

			creds, err := loadCredentials()
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			var rows [][2]string
			for _, name := range a.cfg.NetworkNames() {
				network, _ := a.cfg.Network(name)
				rows = append(rows, [2]string{name, describeKey(network, creds)})
			}
			if creds != nil {
				for _, name := range sortedCredentialNames(creds) {
					if _, err := a.cfg.Network(name); err != nil {
						rows = append(rows, [2]string{name, maskAPIKey(creds.Networks[name].APIKey) + " (not configured)"})
					}
				}
			}

			if len(rows) == 0 {
				fmt.Fprintln(a.out, "No networks configured")
				return nil
			}
			output.KeyValueTable(a.out, rows)
			return nil
		},
	}

	return cmd
}

func createKeysRemoveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <network>",
		Short: "Delete the saved verifier API key for a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			creds, err := loadCredentials()
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintf(out, "No key saved for %s\n", args[0])
					return nil
				}
				return fmt.Errorf("failed to load credentials: %w", err)
			}
			if _, ok := creds.Networks[args[0]]; !ok {
				fmt.Fprintf(out, "No key saved for %s\n", args[0])
				return nil
			}
			delete(creds.Networks, args[0])
			if err := writeCredentials(creds); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			output.Success(out, "Removed key for %s", args[0])
			return nil
		},
	}

	return cmd
}

// readSecret reads a key without echo from a terminal, else one line from r.
func readSecret(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func describeKey(network config.NetworkConfig, creds *Credentials) string {
	if network.APIKeyEnv != "" {
		if key := os.Getenv(network.APIKeyEnv); key != "" {
			return maskAPIKey(key) + " ($" + network.APIKeyEnv + ")"
		}
	}
	if creds != nil {
		if c, ok := creds.Networks[network.Name]; ok && c.APIKey != "" {
			return maskAPIKey(c.APIKey)
		}
	}
	return "(not set)"
}

// keyResolver resolves verifier keys from the environment, then from the
// credentials file.
func (a *app) keyResolver() verification.KeyResolver {
	return func(network config.NetworkConfig) string {
		if key := verification.EnvKeyResolver(network); key != "" {
			return key
		}
		creds, err := loadCredentials()
		if err != nil {
			if !os.IsNotExist(err) {
				a.logger.Warn("reading credentials failed", "error", err)
			}
			return ""
		}
		return creds.Networks[network.Name].APIKey
	}
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deployvault"
	}
	return filepath.Join(home, ".deployvault")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials.yaml")
}

func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.Networks == nil {
		creds.Networks = make(map[string]NetworkCredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return atomicfile.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(network, apiKey string) error {
	creds, err := loadCredentials()
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		creds = &Credentials{Networks: make(map[string]NetworkCredential)}
	}

	creds.Networks[network] = NetworkCredential{APIKey: apiKey}
	return writeCredentials(creds)
}

func sortedCredentialNames(creds *Credentials) []string {
	names := make([]string, 0, len(creds.Networks))
	for name := range creds.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
