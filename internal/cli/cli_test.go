package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deployvault/internal/broadcast"
	"github.com/pendergraft/deployvault/internal/config"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/drift"
	"github.com/pendergraft/deployvault/internal/metadata"
)

const (
	fooAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	barAddr = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

const projectConfig = `
[logging]
level = "error"

[metrics]
enabled = false

[networks.mainnet]
chain_id = 1
api_key_env = "DV_TEST_MAINNET_KEY"

[networks.sepolia]
chain_id = 11155111
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newProject creates a project root with a config file and returns it.
func newProject(t *testing.T, extraConfig string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "deployvault.toml"), []byte(projectConfig+extraConfig), 0644))
	return root
}

// writeBroadcast writes a run file deploying Foo and Bar on chain 1.
func writeBroadcast(t *testing.T, root string) {
	t.Helper()
	descriptors := fmt.Sprintf(`[("Foo", %s, 0x6080, 0x, "src/Foo.sol:Foo", "mainnet", 1), ("Bar", %s, 0x6080, 0x, "src/Bar.sol:Bar", "mainnet", 1), ("Gone", %s, 0x6080, 0x, "src/Gone.sol:Gone", "void", 1)]`,
		fooAddr, barAddr, barAddr)
	run := map[string]any{
		"transactions": []map[string]any{{
			"hash":            "0xabc123",
			"transactionType": "CREATE",
			"contractName":    "Foo",
			"contractAddress": fooAddr,
			"arguments":       []string{"42"},
			"transaction":     map[string]any{"input": "0x6080deadbeef"},
		}},
		"returns": map[string]any{
			"0": map[string]any{"internal_type": broadcast.DescriptorType, "value": descriptors},
		},
	}
	data, err := json.Marshal(run)
	require.NoError(t, err)
	dir := filepath.Join(root, "broadcast", "Deploy.s.sol", "1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, broadcast.RunFileName), data, 0644))
}

// run executes the command tree against root and returns stdout.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 7, ExitCode(&ExitError{Code: 7, Err: errors.New("verifier failed")}))
	assert.Equal(t, 7, ExitCode(fmt.Errorf("wrapped: %w", &ExitError{Code: 7})))
	assert.Equal(t, 1, ExitCode(&ExitError{Code: 0}))
	assert.NoError(t, exitWith(0, errors.New("ignored")))
}

func TestSync_WritesRegistryAndIsIdempotent(t *testing.T) {
	root := newProject(t, "")
	writeBroadcast(t, root)

	out, err := run(t, root, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "2 written, 0 unchanged, 0 failed, 1 void skipped, 1 run files")
	assert.Contains(t, out, "registry: "+filepath.Join(root, "deployments"))

	fooPath := filepath.Join(root, "deployments", "1", "Foo.json")
	first, err := os.ReadFile(fooPath)
	require.NoError(t, err)
	assert.Contains(t, string(first), `"tx_hash": "0xabc123"`)

	_, err = os.Stat(filepath.Join(root, "deployments", "1", "Gone.json"))
	assert.True(t, os.IsNotExist(err))

	out, err = run(t, root, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "0 written, 2 unchanged")

	second, err := os.ReadFile(fooPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSync_RefreshesIndex(t *testing.T) {
	root := newProject(t, "\n[index]\ntype = \"sqlite\"\n")
	writeBroadcast(t, root)

	_, err := run(t, root, "sync")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, ".deployvault", "index.db"))
	require.NoError(t, err)

	out, err := run(t, root, "find", fooAddr, "--json")
	require.NoError(t, err)

	var found []domain.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "Foo", found[0].Name)
	assert.Equal(t, uint64(1), found[0].ChainID)
}

func TestListAndShow(t *testing.T) {
	root := newProject(t, "")
	writeBroadcast(t, root)
	_, err := run(t, root, "sync")
	require.NoError(t, err)

	t.Run("list json", func(t *testing.T) {
		out, err := run(t, root, "list", "mainnet", "--json")
		require.NoError(t, err)
		var list []domain.Summary
		require.NoError(t, json.Unmarshal([]byte(out), &list))
		require.Len(t, list, 2)
		assert.Equal(t, "Bar", list[0].Name)
		assert.Equal(t, "Foo", list[1].Name)
	})

	t.Run("list table", func(t *testing.T) {
		out, err := run(t, root, "list")
		require.NoError(t, err)
		assert.Contains(t, out, "Foo")
		assert.Contains(t, out, fooAddr)
	})

	t.Run("list empty network", func(t *testing.T) {
		out, err := run(t, root, "list", "sepolia")
		require.NoError(t, err)
		assert.Contains(t, out, "No deployments found")
	})

	t.Run("show table", func(t *testing.T) {
		out, err := run(t, root, "show", "mainnet", "Foo")
		require.NoError(t, err)
		assert.Contains(t, out, "src/Foo.sol:Foo")
		assert.Contains(t, out, "0xabc123")
	})

	t.Run("show json", func(t *testing.T) {
		out, err := run(t, root, "show", "mainnet", "Foo", "--json")
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &fields))
		assert.Equal(t, fooAddr, fields["address"])
	})

	t.Run("show missing", func(t *testing.T) {
		_, err := run(t, root, "show", "mainnet", "Nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.Equal(t, 1, ExitCode(err))
	})
}

func TestUnknownNetwork(t *testing.T) {
	root := newProject(t, "")

	for _, args := range [][]string{
		{"list", "nowhere"},
		{"show", "nowhere", "Foo"},
		{"verify", "nowhere", "Foo"},
		{"diff", "nowhere", "Foo"},
		{"keys", "set", "nowhere", "--api-key", "abc"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := run(t, root, args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrUnknownNetwork))
			assert.Equal(t, 1, ExitCode(err))
		})
	}
}

func TestFind_RejectsInvalidAddress(t *testing.T) {
	root := newProject(t, "")
	_, err := run(t, root, "find", "0x1234")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	root := t.TempDir()

	out, err := run(t, root, "config", "init", "--network", "mainnet=1", "--network", "base=8453")
	require.NoError(t, err)
	assert.Contains(t, out, "deployvault.toml")

	cfg, _, err := config.Load(filepath.Join(root, "deployvault.toml"))
	require.NoError(t, err)
	base, err := cfg.Network("base")
	require.NoError(t, err)
	assert.Equal(t, uint64(8453), base.ChainID)
	assert.Equal(t, "BASE_ETHERSCAN_API_KEY", base.APIKeyEnv)

	_, err = run(t, root, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, root, "config", "init", "--force")
	require.NoError(t, err)

	_, err = run(t, root, "config", "init", "--force", "--network", "bad")
	require.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	root := newProject(t, "")
	out, err := run(t, root, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded from: "+filepath.Join(root, "deployvault.toml"))
	assert.Contains(t, out, "chain_id = 11155111")
}

func TestKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DV_TEST_MAINNET_KEY", "")
	root := newProject(t, "")

	out, err := run(t, root, "keys", "set", "mainnet", "--api-key", "abcd1234efgh5678")
	require.NoError(t, err)
	assert.Contains(t, out, "abcd...5678")

	info, err := os.Stat(credentialsFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cmd := NewRootCmd("test")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("sepoliakey0000\n"))
	cmd.SetArgs([]string{"--root", root, "keys", "set", "sepolia"})
	require.NoError(t, cmd.Execute())

	creds, err := loadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "abcd1234efgh5678", creds.Networks["mainnet"].APIKey)
	assert.Equal(t, "sepoliakey0000", creds.Networks["sepolia"].APIKey)

	out, err = run(t, root, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "abcd...5678")
	assert.NotContains(t, out, "abcd1234efgh5678")

	_, err = run(t, root, "keys", "set", "mainnet")
	require.Error(t, err, "an empty key is rejected")

	out, err = run(t, root, "keys", "remove", "sepolia")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed key for sepolia")
	creds, err = loadCredentials()
	require.NoError(t, err)
	assert.NotContains(t, creds.Networks, "sepolia")
}

func TestKeyResolver_PrefersEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, saveCredential("mainnet", "fromfile"))

	a := &app{logger: testLogger()}
	network := config.NetworkConfig{Name: "mainnet", ChainID: 1, APIKeyEnv: "DV_TEST_MAINNET_KEY"}

	t.Setenv("DV_TEST_MAINNET_KEY", "")
	assert.Equal(t, "fromfile", a.keyResolver()(network))

	t.Setenv("DV_TEST_MAINNET_KEY", "fromenv")
	assert.Equal(t, "fromenv", a.keyResolver()(network))

	assert.Empty(t, a.keyResolver()(config.NetworkConfig{Name: "other"}))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcd...6789", maskAPIKey("abcdef0123456789"))
}

type fakeChooser struct {
	confirm  bool
	confirms int
	chooses  int
}

func (f *fakeChooser) Confirm(string) (bool, error) {
	f.confirms++
	return f.confirm, nil
}

func (f *fakeChooser) Choose(_ string, options []string) (string, error) {
	f.chooses++
	return options[0], nil
}

func useChooser(t *testing.T, c drift.Chooser) {
	t.Helper()
	prev := newChooser
	newChooser = func() drift.Chooser { return c }
	t.Cleanup(func() { newChooser = prev })
}

// seedVerified syncs the broadcast and gives Foo a cached compiler input.
func seedVerified(t *testing.T, root, deployedSource string) {
	t.Helper()
	writeBroadcast(t, root)
	_, err := run(t, root, "sync")
	require.NoError(t, err)

	path := filepath.Join(root, "deployments", "1", "Foo.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	fields["standardJsonInput"] = map[string]any{
		"language": "Solidity",
		"sources":  map[string]any{"src/Foo.sol": map[string]any{"content": deployedSource}},
		"settings": map[string]any{"optimizer": map[string]any{"enabled": true, "runs": 200}},
	}
	fields["compiler"] = "0.8.28+commit.7893614a"
	data, err = json.Marshal(fields)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDiff_Identical(t *testing.T) {
	root := newProject(t, "")
	seedVerified(t, root, "contract Foo {}\n")
	writeSource(t, root, "src/Foo.sol", "contract Foo {}\n")

	out, err := run(t, root, "diff", "mainnet", "Foo", "--no-build")
	require.NoError(t, err)
	assert.Contains(t, out, "identical (1 files compared)")
	assert.Contains(t, out, "rebuilt sources in "+filepath.Join(root, ".deployvault", "reconstructed"))
}

func TestDiff_ReportsDrift(t *testing.T) {
	root := newProject(t, "")
	seedVerified(t, root, "contract Foo {}\n")
	writeSource(t, root, "src/Foo.sol", "contract Foo {\n    uint256 x;\n}\n")

	out, err := run(t, root, "diff", "mainnet", "Foo", "--no-build")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 files differ")
	assert.Contains(t, out, "deployed/src/Foo.sol")
	assert.Contains(t, out, "+    uint256 x;")
}

func TestDiff_FuzzyFallback(t *testing.T) {
	root := newProject(t, "")
	seedVerified(t, root, "contract Foo {}\n")
	writeSource(t, root, "src/Foo.sol", "contract Foo {}\n")

	t.Run("confirmed", func(t *testing.T) {
		chooser := &fakeChooser{confirm: true}
		useChooser(t, chooser)

		out, err := run(t, root, "diff", "mainnet", "Fo", "--no-build")
		require.NoError(t, err)
		assert.Equal(t, 1, chooser.confirms)
		assert.Zero(t, chooser.chooses)
		assert.Contains(t, out, "Foo on mainnet: identical")
	})

	t.Run("declined", func(t *testing.T) {
		chooser := &fakeChooser{confirm: false}
		useChooser(t, chooser)

		_, err := run(t, root, "diff", "mainnet", "Fo", "--no-build")
		require.Error(t, err)
		assert.True(t, errors.Is(err, drift.ErrAborted))
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("artifact without input and no candidates", func(t *testing.T) {
		chooser := &fakeChooser{confirm: true}
		useChooser(t, chooser)

		_, err := run(t, root, "diff", "mainnet", "Bar", "--no-build")
		require.Error(t, err)
		assert.True(t, errors.Is(err, metadata.ErrNotFound))
		assert.True(t, errors.Is(err, drift.ErrNoCandidates))
		assert.Zero(t, chooser.confirms+chooser.chooses)
	})
}
