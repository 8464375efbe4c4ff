// Package evm normalizes and compares EVM bytecode.
package evm

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Match types reported by CompareBytecode.
const (
	MatchFull    = "full"
	MatchPartial = "partial"
	MatchNone    = "none"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// MatchResult describes how two bytecodes compare.
type MatchResult struct {
	Match     bool
	MatchType string
	Message   string
}

// StripMetadata removes the CBOR metadata appended to bytecode
func StripMetadata(bytecode []byte) []byte {
	// Find last occurrence of metadata marker
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode // No metadata found
	}
	// Back up to find the length prefix (2 bytes before marker)
	if idx >= 2 {
		return bytecode[:idx-2]
	}
	return bytecode
}

// Decode parses 0x-prefixed hex bytecode. Unlinked library placeholders are
// zeroed so the surrounding code can still be compared.
func Decode(code string) ([]byte, error) {
	code = strings.TrimSpace(code)
	if code == "" || code == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	code = libraryPlaceholder.ReplaceAllString(code, strings.Repeat("0", 40))
	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	return b, nil
}

// CompareBytecode compares recorded bytecode against freshly built bytecode.
// Both are hex strings. Constructor arguments appended to the recorded
// creation code are tolerated.
func CompareBytecode(recorded, built string) (*MatchResult, error) {
	rec, err := Decode(recorded)
	if err != nil {
		return nil, fmt.Errorf("recorded: %w", err)
	}
	out, err := Decode(built)
	if err != nil {
		return nil, fmt.Errorf("built: %w", err)
	}
	if len(out) == 0 {
		return &MatchResult{MatchType: MatchNone, Message: "Built artifact has no bytecode"}, nil
	}

	// Try exact match first
	if bytes.Equal(rec, out) || bytes.HasPrefix(rec, out) {
		return &MatchResult{
			Match:     true,
			MatchType: MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}, nil
	}

	// Strip metadata and compare
	recStripped := StripMetadata(rec)
	outStripped := StripMetadata(out)

	if bytes.Equal(recStripped, outStripped) {
		return &MatchResult{
			Match:     true,
			MatchType: MatchPartial,
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}, nil
	}

	// No match
	return &MatchResult{
		Match:     false,
		MatchType: MatchNone,
		Message:   "Bytecode does not match",
	}, nil
}

// HasLibraryPlaceholders checks if bytecode contains library placeholders
func HasLibraryPlaceholders(bytecode string) bool {
	return libraryPlaceholder.MatchString(bytecode)
}
