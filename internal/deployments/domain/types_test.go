package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKey(t *testing.T) {
	r := Record{Name: "Foo", Context: "mainnet"}
	assert.Equal(t, "mainnet::Foo", r.Key())
	assert.False(t, r.Voided())

	r.Context = VoidContext
	assert.True(t, r.Voided())
}

func TestArtifact_PreservesUnknownKeys(t *testing.T) {
	raw := `{
		"address": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"bytecode": "0x6080",
		"args_data": "0x",
		"tx_hash": "0xabc",
		"args": null,
		"data": "0x6080",
		"artifact_path": "src/Foo.sol",
		"artifact_full_path": "src/Foo.sol:Foo",
		"linkedLibraries": {"Lib": "0x01"},
		"name": "Foo",
		"path": "deployments/1/Foo.json"
	}`

	var a Artifact
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Equal(t, "Foo", a.ContractName())
	assert.True(t, a.HasField("linkedLibraries"))
	assert.True(t, a.HasField("name"))
	assert.Nil(t, a.Args)

	out, err := json.Marshal(a)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Contains(t, fields, "linkedLibraries")
	assert.NotContains(t, fields, "name")
	assert.NotContains(t, fields, "path")
	assert.Equal(t, "null", string(fields["args"]))
	assert.NotContains(t, fields, "standardJsonInput")
}

func TestArtifact_SourcesAreNotHTMLEscaped(t *testing.T) {
	a := Artifact{
		Address:           "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		StandardJSONInput: json.RawMessage(`{"sources":{"a.sol":{"content":"if (a < b && c > d) {}"}}}`),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(a))
	assert.Contains(t, buf.String(), "a < b && c > d")
	assert.NotContains(t, buf.String(), `\u003c`)
}

func TestArtifact_Validate(t *testing.T) {
	valid := func() Artifact {
		return Artifact{
			Address:          "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			Bytecode:         "0x6080",
			ArtifactFullPath: "src/Foo.sol:Foo",
		}
	}

	tests := []struct {
		name    string
		mutate  func(a *Artifact)
		wantErr bool
	}{
		{"valid", func(a *Artifact) {}, false},
		{"bad address", func(a *Artifact) { a.Address = "0x1234" }, true},
		{"bad bytecode", func(a *Artifact) { a.Bytecode = "6080" }, true},
		{"no contract name", func(a *Artifact) { a.ArtifactFullPath = "src/Foo.sol" }, true},
		{"stdjson not object", func(a *Artifact) { a.StandardJSONInput = json.RawMessage(`[1]`) }, true},
		{"stdjson object", func(a *Artifact) { a.StandardJSONInput = json.RawMessage(`{"language":"Solidity"}`) }, false},
		{"compiler with commit", func(a *Artifact) { a.Compiler = "0.8.28+commit.7893614a" }, false},
		{"bad compiler", func(a *Artifact) { a.Compiler = "latest" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArtifact))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	nf := &NotFoundError{Name: "Foo", ChainID: 1, Path: "deployments/1/Foo.json"}
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.Contains(t, nf.Error(), "deployments/1/Foo.json")

	mb := &MalformedBroadcastError{File: "run-latest.json", Err: errors.New("unbalanced")}
	assert.True(t, errors.Is(mb, ErrMalformedBroadcast))

	vf := &VerificationFailedError{Command: "forge verify-contract", ExitCode: 3}
	assert.True(t, errors.Is(vf, ErrVerificationFailed))
	code, ok := ExitCode(vf)
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	rm := &ReconstructionMismatchError{Target: "src/Foo.sol"}
	assert.True(t, errors.Is(rm, ErrReconstructionMismatch))
	assert.Contains(t, rm.Error(), "could not match compilation target")
}
