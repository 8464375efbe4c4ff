// Package foundry reads Foundry build artifacts and models the standard JSON
// compiler input Foundry emits.
package foundry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoMetadata is returned when a build artifact carries no rawMetadata.
var ErrNoMetadata = errors.New("artifact has no metadata")

// Reader resolves build artifacts under a Foundry out directory.
type Reader struct {
	outDir string
}

// NewReader creates a reader rooted at outDir.
func NewReader(outDir string) *Reader {
	return &Reader{outDir: outDir}
}

// Path returns where Foundry writes the artifact for a contract:
// out/{File.sol}/{Contract}.json.
func (r *Reader) Path(sourcePath, contractName string) string {
	return filepath.Join(r.outDir, filepath.Base(sourcePath), contractName+".json")
}

// Read loads and parses the build artifact for a contract.
func (r *Reader) Read(sourcePath, contractName string) (*BuildArtifact, error) {
	return ReadFile(r.Path(sourcePath, contractName))
}

// ReadFile parses a Foundry artifact file.
func ReadFile(path string) (*BuildArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw FoundryArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON %s: %w", path, err)
	}

	a := &BuildArtifact{
		Path:             path,
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode.Object,
		DeployedBytecode: raw.DeployedBytecode.Object,
	}

	switch {
	case raw.RawMetadata != "":
		if err := json.Unmarshal([]byte(raw.RawMetadata), &a.Metadata); err != nil {
			return nil, fmt.Errorf("parsing rawMetadata %s: %w", path, err)
		}
		a.hasMetadata = true
	case len(raw.Metadata) > 0 && string(raw.Metadata) != "null":
		if err := json.Unmarshal(raw.Metadata, &a.Metadata); err == nil {
			a.hasMetadata = true
		}
	}

	return a, nil
}

// BuildArtifact is the subset of a Foundry artifact this tool consumes.
type BuildArtifact struct {
	Path             string
	ABI              json.RawMessage
	Bytecode         string
	DeployedBytecode string
	Metadata         FoundryMetadata

	hasMetadata bool
}

// CompilerSettings are the build-time compiler options verification needs.
type CompilerSettings struct {
	Version           string
	OptimizerEnabled  bool
	OptimizerRuns     int
	EVMVersion        string
	ViaIR             bool
	CompilationTarget string
}

// Settings extracts compiler settings from the artifact metadata.
func (a *BuildArtifact) Settings() (*CompilerSettings, error) {
	if !a.hasMetadata {
		return nil, fmt.Errorf("%s: %w", a.Path, ErrNoMetadata)
	}
	if a.Metadata.Compiler.Version == "" {
		return nil, fmt.Errorf("%s: metadata has no compiler version", a.Path)
	}

	s := &CompilerSettings{
		Version:           a.Metadata.Compiler.Version,
		OptimizerEnabled:  a.Metadata.Settings.Optimizer.Enabled,
		OptimizerRuns:     a.Metadata.Settings.Optimizer.Runs,
		EVMVersion:        a.Metadata.Settings.EVMVersion,
		ViaIR:             a.Metadata.Settings.ViaIR,
		CompilationTarget: a.Metadata.Settings.CompilationTarget.First(),
	}
	// Only default runs when optimizer is enabled; when disabled, runs=0 is correct
	if s.OptimizerEnabled && s.OptimizerRuns == 0 {
		s.OptimizerRuns = 200
	}
	return s, nil
}

// FoundryArtifact represents the structure of a Foundry artifact JSON file
type FoundryArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
	Metadata         json.RawMessage `json:"metadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object         string                       `json:"object"`
	LinkReferences map[string]map[string][]Link `json:"linkReferences"`
}

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// FoundryMetadata represents the parsed rawMetadata field
type FoundryMetadata struct {
	Compiler CompilerMeta `json:"compiler"`
	Language string       `json:"language"`
	Settings SettingsMeta `json:"settings"`
	Sources  SourcesMeta  `json:"sources"`
	Version  int          `json:"version"`
}

// CompilerMeta contains compiler information
type CompilerMeta struct {
	Version string `json:"version"`
}

// SettingsMeta contains compiler settings
type SettingsMeta struct {
	CompilationTarget CompilationTarget            `json:"compilationTarget"`
	EVMVersion        string                       `json:"evmVersion"`
	Libraries         map[string]map[string]string `json:"libraries"`
	Optimizer         OptimizerMeta                `json:"optimizer"`
	Remappings        []string                     `json:"remappings"`
	ViaIR             bool                         `json:"viaIR"`
}

// CompilationTarget maps a source path to the contract compiled from it.
type CompilationTarget map[string]string

// First returns the source path of the target. Solidity only ever records
// one, so sorting just makes the choice stable.
func (c CompilationTarget) First() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// OptimizerMeta contains optimizer settings
type OptimizerMeta struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// SourcesMeta contains source file information
type SourcesMeta map[string]SourceMeta

// SourceMeta contains individual source file info
type SourceMeta struct {
	Keccak256 string   `json:"keccak256"`
	License   string   `json:"license"`
	URLs      []string `json:"urls"`
}

// FullPath joins a source path and contract name the way Foundry does.
func FullPath(sourcePath, contractName string) string {
	return sourcePath + ":" + contractName
}

// SplitFullPath splits "path:Contract" at the last colon.
func SplitFullPath(fullPath string) (sourcePath, contractName string, ok bool) {
	i := strings.LastIndex(fullPath, ":")
	if i <= 0 || i == len(fullPath)-1 {
		return "", "", false
	}
	return fullPath[:i], fullPath[i+1:], true
}
