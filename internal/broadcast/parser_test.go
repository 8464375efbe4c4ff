package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func descriptorTuple(name, addr, path, ctx string, chainID string) string {
	return `("` + name + `", ` + addr + `, 0x6080, 0x, "` + path + `", "` + ctx + `", ` + chainID + `)`
}

// writeRun writes a run file under root/script/chain. txs maps a created
// contract address to its transaction hash.
func writeRun(t *testing.T, root, script, chain, descriptors string, txs map[string]string) {
	t.Helper()
	var transactions []map[string]any
	for addr, hash := range txs {
		transactions = append(transactions, map[string]any{
			"hash":            hash,
			"transactionType": "CREATE",
			"contractName":    "Foo",
			"contractAddress": addr,
			"function":        nil,
			"arguments":       []string{"42"},
			"transaction":     map[string]any{"from": "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "input": "0x6080deadbeef", "nonce": "0x0"},
		})
	}
	run := map[string]any{
		"transactions": transactions,
		"returns": map[string]any{
			"0": map[string]any{"internal_type": DescriptorType, "value": descriptors},
		},
		"chain": 1,
	}
	data, err := json.Marshal(run)
	require.NoError(t, err)
	dir := filepath.Join(root, script, chain)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RunFileName), data, 0644))
}

func TestParser_ScenarioA(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1")+"]",
		map[string]string{fooAddr: "0xabc123"})

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	assert.Equal(t, 1, res.Files)
	require.Equal(t, []string{"mainnet::Foo"}, res.Keys())

	rec := res.Records["mainnet::Foo"]
	assert.Equal(t, "0xabc123", rec.TxHash)
	assert.Equal(t, []string{"42"}, rec.Args)
	assert.Equal(t, "0x6080deadbeef", rec.Data)
	assert.Equal(t, "Foo", rec.ContractName)
	assert.Equal(t, "src/Foo.sol", rec.ArtifactPath)
	assert.Equal(t, uint64(1), rec.ChainID)
}

func TestParser_SnakeCaseTransactions(t *testing.T) {
	root := t.TempDir()
	run := map[string]any{
		"transactions": []map[string]any{{
			"hash":             "0xabc",
			"transaction_type": "CREATE",
			"contract_name":    "Foo",
			"contract_address": fooAddr,
			"arguments":        []string{"42"},
			"transaction":      map[string]any{"input": "0x6080deadbeef"},
		}},
		"returns": map[string]any{
			"0": map[string]any{
				"internal_type": DescriptorType,
				"value":         "[" + descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1") + "]",
			},
		},
		"chain": 1,
	}
	data, err := json.Marshal(run)
	require.NoError(t, err)
	dir := filepath.Join(root, "Deploy.s.sol", "1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RunFileName), data, 0644))

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	rec := res.Records["mainnet::Foo"]
	assert.Equal(t, "0xabc", rec.TxHash)
	assert.Equal(t, "0x6080deadbeef", rec.Data)
	assert.Equal(t, []string{"42"}, rec.Args)
}

func TestTransactionResult_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"camelCase", `{"hash":"0x1","transactionType":"CREATE","contractName":"Foo","contractAddress":"` + fooAddr + `"}`},
		{"snake_case", `{"hash":"0x1","transaction_type":"CREATE","contract_name":"Foo","contract_address":"` + fooAddr + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx TransactionResult
			require.NoError(t, json.Unmarshal([]byte(tt.in), &tx))
			assert.Equal(t, "0x1", tx.Hash)
			assert.Equal(t, "CREATE", tx.TransactionType)
			require.NotNil(t, tx.ContractName)
			assert.Equal(t, "Foo", *tx.ContractName)
			require.NotNil(t, tx.ContractAddress)
			assert.Equal(t, fooAddr, *tx.ContractAddress)
		})
	}

	var tx TransactionResult
	require.NoError(t, json.Unmarshal([]byte(`{"contractAddress":"0x01","contract_address":"0x02"}`), &tx))
	require.NotNil(t, tx.ContractAddress)
	assert.Equal(t, "0x01", *tx.ContractAddress)
}

func TestParser_ScenarioB_VoidSkipped(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", domain.VoidContext, "1")+"]",
		map[string]string{fooAddr: "0xabc123"})

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Skipped)
}

func TestParser_FactoryCreationHasNoTransaction(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1")+"]",
		map[string]string{barAddr: "0xother"})

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	rec := res.Records["mainnet::Foo"]
	assert.Empty(t, rec.TxHash)
	assert.Nil(t, rec.Args)
	assert.Empty(t, rec.Data)
}

func TestParser_AddressJoinIgnoresCase(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1")+"]",
		map[string]string{"0x5fbdb2315678afecb367f032d93f642f64180aa3": "0xabc123"})

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", res.Records["mainnet::Foo"].TxHash)
}

func TestParser_MalformedFileDoesNotAbort(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "A.s.sol", "1", `[("Foo", broken`, nil)
	writeRun(t, root, "B.s.sol", "1",
		"["+descriptorTuple("Bar", barAddr, "src/Bar.sol:Bar", "mainnet", "1")+"]", nil)

	bad := filepath.Join(root, "C.s.sol", "1")
	require.NoError(t, os.MkdirAll(bad, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, RunFileName), []byte("{not json"), 0644))

	// A chain folder without a run file is skipped silently.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "D.s.sol", "5"), 0755))

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, []string{"mainnet::Bar"}, res.Keys())
	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.True(t, errors.Is(f, domain.ErrMalformedBroadcast))
	}
	assert.Equal(t, filepath.Join(root, "A.s.sol", "1", RunFileName), res.Failures[0].File)
	assert.Equal(t, filepath.Join(root, "C.s.sol", "1", RunFileName), res.Failures[1].File)
}

func TestParser_DeterministicFold(t *testing.T) {
	root := t.TempDir()
	// Same key in two chain folders of one script; the later folder wins.
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1")+"]", nil)
	writeRun(t, root, "Deploy.s.sol", "2",
		"["+descriptorTuple("Foo", barAddr, "src/Foo.sol:Foo", "mainnet", "1")+"]", nil)

	for i := 0; i < 5; i++ {
		res, err := NewParser(testLogger(), WithConcurrency(2)).Parse(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, barAddr, res.Records["mainnet::Foo"].Address)
	}
}

func TestParser_IgnoresRunsWithoutDescriptors(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Upgrade.s.sol", "1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RunFileName), []byte(`{"transactions":[],"returns":{}}`), 0644))

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Failures)
}

func TestParser_MissingRoot(t *testing.T) {
	res, err := NewParser(testLogger()).Parse(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestParser_ArtifactPathWithoutContract(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol", "mainnet", "1")+"]", nil)

	res, err := NewParser(testLogger()).Parse(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Len(t, res.Failures, 1)
}

type fakeArtifacts map[string]json.RawMessage

func (f fakeArtifacts) Read(sourcePath, contractName string) (*foundry.BuildArtifact, error) {
	abi, ok := f[foundry.FullPath(sourcePath, contractName)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &foundry.BuildArtifact{ABI: abi}, nil
}

func TestParser_CopiesABIFromBuildArtifacts(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1")+","+
			descriptorTuple("Bar", barAddr, "src/Bar.sol:Bar", "mainnet", "1")+"]", nil)

	artifacts := fakeArtifacts{"src/Foo.sol:Foo": json.RawMessage(`[{"type":"constructor"}]`)}
	res, err := NewParser(testLogger(), WithArtifacts(artifacts)).Parse(context.Background(), root)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"constructor"}]`, string(res.Records["mainnet::Foo"].ABI))
	assert.Nil(t, res.Records["mainnet::Bar"].ABI)
}

func TestParser_ContextCancelled(t *testing.T) {
	root := t.TempDir()
	writeRun(t, root, "Deploy.s.sol", "1",
		"["+descriptorTuple("Foo", fooAddr, "src/Foo.sol:Foo", "mainnet", "1")+"]", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser(testLogger()).Parse(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
