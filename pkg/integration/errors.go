// SPDX-License-Identifier: MPL-2.0

package integration

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel wrapped by every ValidationError.
	ErrValidation = errors.New("invalid integration")

	// ErrPingAction is returned when the ping action rule is violated.
	ErrPingAction = errors.New("invalid ping action")

	// ErrSSLParameter is returned when the 'Verify SSL' parameter rule is violated.
	ErrSSLParameter = errors.New("invalid 'Verify SSL' parameter")

	// ErrFieldValue is returned when a field fails a length, word-count,
	// pattern or format rule.
	ErrFieldValue = errors.New("invalid field value")

	// ErrParamDefault is returned when a parameter default does not match its type.
	ErrParamDefault = errors.New("parameter default does not match its type")

	// ErrScriptCollision is returned when two scripts flatten to the same file name.
	ErrScriptCollision = errors.New("script file name collision")

	// ErrReservedFileName is returned when a script file name is reserved on Windows.
	ErrReservedFileName = errors.New("reserved script file name")
)

// ValidationError reports one violated rule. It unwraps to both
// ErrValidation and the rule-specific sentinel.
type ValidationError struct {
	// Integration is the identifier of the offending integration.
	Integration string
	// Field locates the offending value, e.g. "Actions[ping].Name".
	Field string
	// Rule is the rule-specific sentinel.
	Rule    error
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("integration %s: %s", e.Integration, e.Message)
	}
	return fmt.Sprintf("integration %s: %s: %s", e.Integration, e.Field, e.Message)
}

// Unwrap returns ErrValidation and the rule sentinel.
func (e *ValidationError) Unwrap() []error {
	if e.Rule == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Rule}
}
