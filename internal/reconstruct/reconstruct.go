// Package reconstruct rebuilds a standalone Foundry project from a cached
// standard JSON compiler input.
package reconstruct

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pendergraft/deployvault/internal/chains/evm"
	"github.com/pendergraft/deployvault/internal/chains/evm/foundry"
	"github.com/pendergraft/deployvault/internal/deployments/domain"
	"github.com/pendergraft/deployvault/internal/forge"
	"github.com/pendergraft/deployvault/internal/observability/metrics"
	"github.com/pendergraft/deployvault/internal/validation"
)

// ConfigFile is the build configuration written into the scratch root.
const ConfigFile = "foundry.toml"

// Project is a materialized source tree.
type Project struct {
	Root string
	// Target is the path-qualified identifier of the compiled contract,
	// relative to Root, e.g. "src/Foo.sol:Foo".
	Target       string
	SourcePath   string
	ContractName string
	Files        []string
	Profile      Profile
}

// Profile is the [profile.default] table of the synthesized foundry.toml.
type Profile struct {
	Src           string   `toml:"src"`
	Out           string   `toml:"out"`
	Libs          []string `toml:"libs"`
	Remappings    []string `toml:"remappings,omitempty"`
	Optimizer     bool     `toml:"optimizer"`
	OptimizerRuns int      `toml:"optimizer_runs"`
	EVMVersion    string   `toml:"evm_version,omitempty"`
	ViaIR         bool     `toml:"via_ir,omitempty"`
	SolcVersion   string   `toml:"solc_version,omitempty"`
}

type foundryConfig struct {
	Profile map[string]Profile `toml:"profile"`
}

// Reconstructor materializes projects into a scratch directory it owns.
type Reconstructor struct {
	scratch string
	runner  forge.Runner
	tool    forge.Tool
	logger  *slog.Logger
}

// New creates a reconstructor. The scratch directory is wiped on every
// Materialize.
func New(scratch string, runner forge.Runner, tool forge.Tool, logger *slog.Logger) *Reconstructor {
	return &Reconstructor{scratch: scratch, runner: runner, tool: tool, logger: logger}
}

// Scratch returns the scratch root.
func (r *Reconstructor) Scratch() string {
	return r.scratch
}

// Materialize writes every source of input under the scratch root and a
// foundry.toml reproducing its settings. It does not build.
func (r *Reconstructor) Materialize(input []byte, artifactFullPath, compiler string) (*Project, error) {
	sourcePath, contractName, ok := foundry.SplitFullPath(artifactFullPath)
	if !ok {
		return nil, fmt.Errorf("invalid artifact path %q", artifactFullPath)
	}

	in, err := foundry.ParseStandardJSON(input)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(r.scratch); err != nil {
		return nil, fmt.Errorf("clearing scratch directory: %w", err)
	}
	if err := os.MkdirAll(r.scratch, 0755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	names := make([]string, 0, len(in.Sources))
	for name := range in.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	want := path.Clean(strings.TrimLeft(filepath.ToSlash(sourcePath), "/"))
	var exact, suffix string
	files := make([]string, 0, len(names))

	for _, name := range names {
		rel, err := rootedPath(name)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(r.scratch, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(dst, []byte(in.Sources[name].Content), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", rel, err)
		}
		files = append(files, rel)

		switch {
		case rel == want:
			exact = rel
		case suffix == "" && (strings.HasSuffix(rel, "/"+want) || strings.HasSuffix(want, "/"+rel)):
			suffix = rel
		}
	}

	matched := exact
	if matched == "" {
		matched = suffix
	}
	if matched == "" {
		return nil, &domain.ReconstructionMismatchError{Target: artifactFullPath}
	}

	p := &Project{
		Root:         r.scratch,
		Target:       foundry.FullPath(matched, contractName),
		SourcePath:   matched,
		ContractName: contractName,
		Files:        files,
		Profile:      profileFor(in, matched, compiler),
	}
	if err := writeConfig(filepath.Join(r.scratch, ConfigFile), p.Profile); err != nil {
		return nil, err
	}

	r.logger.Debug("project materialized", "root", r.scratch, "target", p.Target, "files", len(files))
	return p, nil
}

// Build compiles a materialized project. A failing build means the cached
// input does not reproduce the deployment.
func (r *Reconstructor) Build(ctx context.Context, p *Project) error {
	if _, err := r.runner.Run(ctx, r.tool.Build(p.Root)); err != nil {
		return fmt.Errorf("building reconstructed project: %w", err)
	}
	return nil
}

// Reconstruct materializes and builds.
func (r *Reconstructor) Reconstruct(ctx context.Context, input []byte, artifactFullPath, compiler string) (*Project, error) {
	p, err := r.Materialize(input, artifactFullPath, compiler)
	if err != nil {
		if errors.Is(err, domain.ErrReconstructionMismatch) {
			metrics.Reconstruction("mismatch")
		} else {
			metrics.Reconstruction("failed")
		}
		return nil, err
	}
	if err := r.Build(ctx, p); err != nil {
		metrics.Reconstruction("build_failed")
		return nil, err
	}
	metrics.Reconstruction("built")
	return p, nil
}

// CompareBuild compares the rebuilt creation bytecode with the recorded one.
func (r *Reconstructor) CompareBuild(p *Project, recordedBytecode string) (*evm.MatchResult, error) {
	built, err := foundry.NewReader(filepath.Join(p.Root, p.Profile.Out)).Read(p.SourcePath, p.ContractName)
	if err != nil {
		return nil, err
	}
	return evm.CompareBytecode(recordedBytecode, built.Bytecode)
}

// rootedPath turns a source key into a slash path relative to the scratch
// root. Absolute keys are re-rooted and escaping keys rejected.
func rootedPath(name string) (string, error) {
	rel := strings.TrimLeft(filepath.ToSlash(name), "/")
	if vol := filepath.VolumeName(rel); vol != "" {
		rel = strings.TrimLeft(strings.TrimPrefix(rel, vol), "/")
	}
	rel = path.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("source path %q escapes the project root", name)
	}
	return rel, nil
}

func profileFor(in *foundry.StandardJSONInput, target, compiler string) Profile {
	src := "."
	if i := strings.Index(target, "/"); i > 0 {
		src = target[:i]
	}

	p := Profile{
		Src:           src,
		Out:           "out",
		Libs:          []string{"lib"},
		Remappings:    in.Settings.Remappings,
		Optimizer:     in.Settings.Optimizer.Enabled,
		OptimizerRuns: in.Settings.Optimizer.Runs,
		EVMVersion:    in.Settings.EVMVersion,
		ViaIR:         in.Settings.ViaIR,
	}
	if compiler != "" {
		p.SolcVersion = validation.NormalizeCompilerVersion(compiler)
	}
	return p
}

func writeConfig(file string, p Profile) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(foundryConfig{Profile: map[string]Profile{"default": p}}); err != nil {
		return fmt.Errorf("encoding %s: %w", ConfigFile, err)
	}
	if err := os.WriteFile(file, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFile, err)
	}
	return nil
}
