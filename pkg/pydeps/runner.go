// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type (
	// CommandRunner runs an external tool in dir and returns its stdout.
	CommandRunner interface {
		Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
	}

	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// ExecRunner is the CommandRunner backed by os/exec.
	ExecRunner struct {
		ExecCommand ExecCommandFunc
	}

	// CommandError reports a failed external tool invocation.
	CommandError struct {
		Command string
		Stderr  string
		Err     error
	}
)

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	execCommand := r.ExecCommand
	if execCommand == nil {
		execCommand = exec.CommandContext
	}

	cmd := execCommand(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{
			Command: strings.Join(append([]string{name}, args...), " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.Bytes(), nil
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }
