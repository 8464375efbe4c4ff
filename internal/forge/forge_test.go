package forge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

func TestTool_VerifyContract(t *testing.T) {
	tool := NewTool("")
	cmd := tool.VerifyContract(VerifyOptions{
		Address:          "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Target:           "src/Foo.sol:Foo",
		ChainID:          1,
		CompilerVersion:  "0.8.28+commit.7893614a",
		Optimized:        true,
		OptimizerRuns:    200,
		ConstructorArgs:  "0x01",
		APIKey:           "secret",
		ShowStandardJSON: true,
	})

	assert.Equal(t, "forge", cmd.Name)
	assert.Equal(t, []string{
		"verify-contract", "0x5FbDB2315678afecb367f032d93F642f64180aa3", "src/Foo.sol:Foo",
		"--chain", "1",
		"--compiler-version", "0.8.28+commit.7893614a",
		"--num-of-optimizations", "200",
		"--constructor-args", "0x01",
		"--show-standard-json-input",
	}, cmd.Args)
	assert.Equal(t, []string{"ETHERSCAN_API_KEY=secret"}, cmd.Env)
	assert.NotContains(t, cmd.String(), "secret")
	for _, arg := range cmd.Args {
		assert.NotContains(t, arg, "secret")
	}
}

func TestTool_VerifyContractOmitsChainAndEmptyArgs(t *testing.T) {
	cmd := NewTool("/opt/forge").VerifyContract(VerifyOptions{
		Address:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Target:          "src/Foo.sol:Foo",
		ChainID:         1,
		OmitChain:       true,
		ConstructorArgs: "0x",
		Root:            "/tmp/scratch",
		Verifier:        "sourcify",
	})

	assert.Equal(t, "/opt/forge", cmd.Name)
	assert.NotContains(t, cmd.Args, "--chain")
	assert.NotContains(t, cmd.Args, "--constructor-args")
	assert.NotContains(t, cmd.Args, "--num-of-optimizations")
	assert.Contains(t, cmd.Args, "--root")
	assert.Contains(t, cmd.Args, "sourcify")
	assert.Empty(t, cmd.Env)
}

func TestTool_Build(t *testing.T) {
	cmd := NewTool("forge").Build("/tmp/scratch")
	assert.Equal(t, []string{"build", "--root", "/tmp/scratch"}, cmd.Args)
	assert.Equal(t, "/tmp/scratch", cmd.Dir)
}

func TestExecRunner(t *testing.T) {
	runner := NewExecRunner(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	ctx := context.Background()

	t.Run("captures stdout", func(t *testing.T) {
		res, err := runner.Run(ctx, Command{Name: "sh", Args: []string{"-c", "printf '{}'"}})
		require.NoError(t, err)
		assert.Equal(t, "{}", string(res.Stdout))
		assert.Equal(t, 0, res.ExitCode)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		res, err := runner.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
		require.Error(t, err)
		assert.Equal(t, 3, res.ExitCode)

		var vf *domain.VerificationFailedError
		require.True(t, errors.As(err, &vf))
		assert.Equal(t, 3, vf.ExitCode)
		assert.Equal(t, "boom", vf.Stderr)
		assert.True(t, errors.Is(err, domain.ErrVerificationFailed))
	})

	t.Run("env is appended", func(t *testing.T) {
		res, err := runner.Run(ctx, Command{Name: "sh", Args: []string{"-c", "printf \"$DV_TEST\""}, Env: []string{"DV_TEST=ok"}})
		require.NoError(t, err)
		assert.Equal(t, "ok", string(res.Stdout))
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := runner.Run(ctx, Command{Name: "deployvault-no-such-binary"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrVerificationFailed))
	})
}
