package foundry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StandardJSONInput is the solc standard JSON input. Only the fields the
// reconstructor needs are modelled; the verbatim blob is kept elsewhere.
type StandardJSONInput struct {
	Language string                   `json:"language"`
	Sources  map[string]SourceContent `json:"sources"`
	Settings StandardJSONSettings     `json:"settings"`
}

// SourceContent holds one source file of the input.
type SourceContent struct {
	Content string `json:"content"`
}

// StandardJSONSettings holds the compiler settings of the input.
type StandardJSONSettings struct {
	Optimizer  OptimizerMeta                `json:"optimizer"`
	EVMVersion string                       `json:"evmVersion,omitempty"`
	ViaIR      bool                         `json:"viaIR,omitempty"`
	Libraries  map[string]map[string]string `json:"libraries,omitempty"`
	Remappings []string                     `json:"remappings,omitempty"`
}

// ParseStandardJSON decodes a standard JSON input blob.
func ParseStandardJSON(data []byte) (*StandardJSONInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("standard JSON input must be a JSON object")
	}
	var in StandardJSONInput
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, fmt.Errorf("parsing standard JSON input: %w", err)
	}
	if len(in.Sources) == 0 {
		return nil, fmt.Errorf("standard JSON input has no sources")
	}
	return &in, nil
}

// CapturedStandardJSON checks that verifier output is a standard JSON input
// object with sources and returns it byte for byte, minus surrounding
// whitespace. Foundry-only keys such as version and allowPaths are kept.
func CapturedStandardJSON(output []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("standard JSON input must be a JSON object")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("parsing standard JSON input: %w", err)
	}
	if _, ok := m["sources"]; !ok {
		return nil, fmt.Errorf("standard JSON input has no sources")
	}
	return json.RawMessage(bytes.Clone(trimmed)), nil
}
