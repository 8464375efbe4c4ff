//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/deployvault/internal/broadcast"
	"github.com/pendergraft/deployvault/internal/cli"
	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/registry"
	"github.com/pendergraft/deployvault/internal/server"
	"github.com/pendergraft/deployvault/internal/storage"
	"github.com/pendergraft/deployvault/pkg/client"
)

const (
	tokenAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	vaultAddr = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	proxyAddr = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	ProjectRoot       string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("deployvault"),
		postgres.WithUsername("deployvault"),
		postgres.WithPassword("deployvault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// setupProjectE writes a project with broadcasts on two chains and runs
// sync against it with the postgres index enabled.
func setupProjectE(connString string) (string, error) {
	root, err := os.MkdirTemp("", "deployvault-e2e-")
	if err != nil {
		return "", err
	}

	cfg := fmt.Sprintf(`
[logging]
level = "warn"

[metrics]
enabled = false

[index]
type = "postgres"
postgres_url = %q

[networks.mainnet]
chain_id = 1

[networks.base]
chain_id = 8453
`, connString)
	if err := os.WriteFile(filepath.Join(root, "deployvault.toml"), []byte(cfg), 0644); err != nil {
		return "", err
	}

	runs := []struct {
		chain       string
		descriptors string
		txs         map[string]string
	}{
		{"1", fmt.Sprintf(`[("Token", %s, 0x6080, 0x, "src/Token.sol:Token", "mainnet", 1), ("Vault", %s, 0x6080, 0x, "src/Vault.sol:Vault", "mainnet", 1)]`, tokenAddr, vaultAddr),
			map[string]string{tokenAddr: "0x01", vaultAddr: "0x02"}},
		{"8453", fmt.Sprintf(`[("Token", %s, 0x6080, 0x, "src/Token.sol:Token", "base", 8453), ("Proxy", %s, 0x6080, 0x, "src/Proxy.sol:Proxy", "void", 8453)]`, tokenAddr, proxyAddr),
			map[string]string{tokenAddr: "0x03"}},
	}
	for _, r := range runs {
		if err := writeRun(root, r.chain, r.descriptors, r.txs); err != nil {
			return "", err
		}
	}

	if err := runCLI(root, "sync"); err != nil {
		return "", fmt.Errorf("sync: %w", err)
	}
	return root, nil
}

func writeRun(root, chain, descriptors string, txs map[string]string) error {
	var transactions []map[string]any
	for addr, hash := range txs {
		transactions = append(transactions, map[string]any{
			"hash":            hash,
			"transactionType": "CREATE",
			"contractAddress": addr,
			"arguments":       []string{},
			"transaction":     map[string]any{"input": "0x6080"},
		})
	}
	data, err := json.Marshal(map[string]any{
		"transactions": transactions,
		"returns": map[string]any{
			"0": map[string]any{"internal_type": broadcast.DescriptorType, "value": descriptors},
		},
	})
	if err != nil {
		return err
	}
	dir := filepath.Join(root, "broadcast", "Deploy.s.sol", chain)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, broadcast.RunFileName), data, 0644)
}

// runCLI runs the command tree against root.
func runCLI(root string, args ...string) error {
	cmd := cli.NewRootCmd("e2e")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	if err := cmd.Execute(); err != nil {
		return fmt.Errorf("%w\nOutput: %s", err, out.String())
	}
	return nil
}

// startServerE starts the resolver in-process over the synced project
func startServerE(root, connString string) (*httptest.Server, storage.Store, error) {
	cfg := config.Default()
	cfg.Root = root
	cfg.Index = config.IndexConfig{Type: "postgres", PostgresURL: connString}
	cfg.RateLimit.Enabled = false
	cfg.Networks = map[string]config.NetworkConfig{
		"mainnet": {Name: "mainnet", ChainID: 1},
		"base":    {Name: "base", ChainID: 8453},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := storage.New(cfg.Index, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	reg := registry.New(cfg.DeploymentsDir(), logger)
	srv := server.New(cfg, domain.NewService(reg, store), logger)

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server) *client.Client {
	return client.New(testServer.URL)
}
