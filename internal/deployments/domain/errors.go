package domain

import (
	"errors"
	"fmt"
)

// Errors returned across the registry, parser and verification packages.
// Typed errors below match these sentinels with errors.Is.
var (
	ErrNotFound               = errors.New("deployment not found")
	ErrMalformedBroadcast     = errors.New("malformed broadcast")
	ErrVerificationFailed     = errors.New("verification failed")
	ErrReconstructionMismatch = errors.New("could not match compilation target")
	ErrInvalidArtifact        = errors.New("invalid deployment artifact")
)

// NotFoundError reports a missing deployment together with where it was
// expected on disk.
type NotFoundError struct {
	Name    string
	ChainID uint64
	Path    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("deployment %q not found on chain %d (expected %s)", e.Name, e.ChainID, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidArtifactError is scoped to one registry file that could not be
// read, decoded or validated.
type InvalidArtifactError struct {
	Name    string
	ChainID uint64
	Path    string
	Err     error
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("deployment %q on chain %d (%s): %v", e.Name, e.ChainID, e.Path, e.Err)
}

func (e *InvalidArtifactError) Unwrap() error { return e.Err }

func (e *InvalidArtifactError) Is(target error) bool { return target == ErrInvalidArtifact }

// MalformedBroadcastError is scoped to a single broadcast file.
type MalformedBroadcastError struct {
	File string
	Err  error
}

func (e *MalformedBroadcastError) Error() string {
	return fmt.Sprintf("malformed broadcast %s: %v", e.File, e.Err)
}

func (e *MalformedBroadcastError) Unwrap() error { return e.Err }

func (e *MalformedBroadcastError) Is(target error) bool { return target == ErrMalformedBroadcast }

// VerificationFailedError carries the exit code of the external tool.
type VerificationFailedError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *VerificationFailedError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *VerificationFailedError) Unwrap() error { return ErrVerificationFailed }

// ReconstructionMismatchError means no source in a cached compiler input
// matches the artifact's compilation target.
type ReconstructionMismatchError struct {
	Target string
}

func (e *ReconstructionMismatchError) Error() string {
	return fmt.Sprintf("could not match compilation target %q", e.Target)
}

func (e *ReconstructionMismatchError) Unwrap() error { return ErrReconstructionMismatch }

// ExitCode extracts the external tool exit code from err, if any.
func ExitCode(err error) (int, bool) {
	var vf *VerificationFailedError
	if errors.As(err, &vf) && vf.ExitCode != 0 {
		return vf.ExitCode, true
	}
	return 0, false
}
