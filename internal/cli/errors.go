package cli

import (
	"errors"
	"fmt"
)

// ExitError carries a process exit code to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by the command tree to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}

// exitWith wraps err with code unless the code is success.
func exitWith(code int, err error) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}
