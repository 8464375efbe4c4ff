package forge

import (
	"strconv"
)

// APIKeyEnv is the variable forge reads the explorer API key from. The key
// is passed through the environment so it never shows up in argv.
const APIKeyEnv = "ETHERSCAN_API_KEY"

// VerifyOptions are the inputs to a verify-contract invocation.
type VerifyOptions struct {
	Address         string
	Target          string // path:Contract
	ChainID         uint64
	OmitChain       bool
	CompilerVersion string
	OptimizerRuns   int
	Optimized       bool
	ConstructorArgs string
	APIKey          string
	Root            string
	// ShowStandardJSON prints the standard JSON input instead of submitting.
	ShowStandardJSON bool
	// Verifier selects a non-default verification backend, e.g. sourcify.
	Verifier string
}

// Tool builds commands for one forge binary.
type Tool struct {
	Binary string
}

// NewTool returns a builder for binary, defaulting to "forge".
func NewTool(binary string) Tool {
	if binary == "" {
		binary = "forge"
	}
	return Tool{Binary: binary}
}

// VerifyContract builds `forge verify-contract`.
func (t Tool) VerifyContract(opts VerifyOptions) Command {
	args := []string{"verify-contract", opts.Address, opts.Target}
	if !opts.OmitChain && opts.ChainID != 0 {
		args = append(args, "--chain", strconv.FormatUint(opts.ChainID, 10))
	}
	if opts.Root != "" {
		args = append(args, "--root", opts.Root)
	}
	if opts.Verifier != "" {
		args = append(args, "--verifier", opts.Verifier)
	}
	if opts.CompilerVersion != "" {
		args = append(args, "--compiler-version", opts.CompilerVersion)
	}
	if opts.Optimized {
		args = append(args, "--num-of-optimizations", strconv.Itoa(opts.OptimizerRuns))
	}
	if ca := opts.ConstructorArgs; ca != "" && ca != "0x" {
		args = append(args, "--constructor-args", ca)
	}
	if opts.ShowStandardJSON {
		args = append(args, "--show-standard-json-input")
	}
	cmd := Command{Name: t.Binary, Args: args}
	if opts.APIKey != "" {
		cmd.Env = []string{APIKeyEnv + "=" + opts.APIKey}
	}
	return cmd
}

// Build builds `forge build --root <root>`.
func (t Tool) Build(root string) Command {
	return Command{Name: t.Binary, Args: []string{"build", "--root", root}, Dir: root}
}
