// Package forge runs the external build and verification tool.
package forge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

// Command is one invocation of an external tool.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
}

// String renders the command for logs and errors. Env is left out.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result holds the captured output of a command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs external commands. A non-zero exit yields a
// *domain.VerificationFailedError alongside the captured Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

const stderrTail = 2048

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	// #nosec G204 -- command and arguments are assembled by this package
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("running command", "command", cmd.String(), "dir", cmd.Dir)
	err := c.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode <= 0 {
			res.ExitCode = 1
		}
		r.logger.Debug("command failed", "command", cmd.String(), "exit_code", res.ExitCode)
		return res, &domain.VerificationFailedError{
			Command:  cmd.String(),
			ExitCode: res.ExitCode,
			Stderr:   tail(stderr.String(), stderrTail),
		}
	}
	return res, fmt.Errorf("running %s: %w", cmd.Name, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
