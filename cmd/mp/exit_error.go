// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

// Exit codes returned by the mp binary.
const (
	// ExitFailure is returned for any error without a more specific code.
	ExitFailure = 1
	// ExitPartial is returned when a marketplace pass finished but some
	// integrations failed.
	ExitPartial = 3
	// ExitDuplicates is returned when an identifier appears more than once.
	ExitDuplicates = 4
	// ExitInvalid is returned by validate when an integration breaks a rule.
	ExitInvalid = 5
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
