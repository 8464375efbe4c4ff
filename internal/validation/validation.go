// Package validation provides input validation for deployvault.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/mod/semver"
)

// ValidateAddress validates an EVM address (0x followed by 40 hex characters).
func ValidateAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: must be 0x followed by 40 hex characters")
	}
	return nil
}

// ChecksumAddress returns the EIP-55 form of addr.
func ChecksumAddress(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// SameAddress reports whether two addresses refer to the same account.
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return strings.EqualFold(a, b)
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// ValidateHex validates a 0x-prefixed hex blob such as bytecode or calldata.
// "0x" on its own is accepted as an empty blob.
func ValidateHex(s string) error {
	if _, err := hexutil.Decode(s); err != nil {
		return fmt.Errorf("invalid hex data: %w", err)
	}
	return nil
}

// DecodeHex decodes a 0x-prefixed hex blob.
func DecodeHex(s string) ([]byte, error) {
	return hexutil.Decode(s)
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID uint64) error {
	if chainID == 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ParseChainID parses a decimal chain ID as found in descriptors, marker files
// and URL paths.
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("chain ID cannot be empty")
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain ID %q: must be a positive integer", s)
	}
	if err := ValidateChainID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// ValidateDeploymentName validates a deployment name. Names become file names
// in the registry, so separators and traversal are rejected.
func ValidateDeploymentName(name string) error {
	if name == "" {
		return errors.New("deployment name cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("deployment name too long (max 128 chars)")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.New("invalid characters in deployment name")
	}
	if strings.HasPrefix(name, ".") {
		return errors.New("deployment name cannot start with a dot")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version such as
// "0.8.28", "v0.8.28" or "0.8.28+commit.7893614a".
func ValidateCompilerVersion(v string) error {
	if v == "" {
		return errors.New("compiler version cannot be empty")
	}
	if !semver.IsValid("v" + strings.TrimPrefix(v, "v")) {
		return fmt.Errorf("invalid compiler version %q", v)
	}
	return nil
}

// NormalizeCompilerVersion strips the leading "v" and any build suffix, so
// "v0.8.28+commit.7893614a" becomes "0.8.28". Invalid input is returned
// unchanged.
func NormalizeCompilerVersion(v string) string {
	withV := "v" + strings.TrimPrefix(v, "v")
	if !semver.IsValid(withV) {
		return v
	}
	canonical := semver.Canonical(withV)
	return strings.TrimPrefix(canonical, "v")
}

// FullCompilerVersion returns the version in the "v0.8.28+commit.7893614a"
// form verifiers expect.
func FullCompilerVersion(v string) string {
	if v == "" {
		return v
	}
	return "v" + strings.TrimPrefix(v, "v")
}
