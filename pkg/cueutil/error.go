// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

var (
	// ErrInvalid is wrapped by every ValidationError.
	ErrInvalid = errors.New("invalid CUE document")
	// ErrTooLarge is returned when a document exceeds its size bound.
	ErrTooLarge = errors.New("document too large")
)

type (
	// ValidationError lists the problems CUE reported for one document.
	ValidationError struct {
		File   string
		Issues []Issue
	}

	// Issue is one problem at one field.
	Issue struct {
		// Path is the field in JSON-path notation, empty for document-level problems.
		Path    string
		Message string
	}
)

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", e.File, e.Issues[0])
	}
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		lines[i] = is.String()
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.File, strings.Join(lines, "\n  "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// FormatError converts a CUE error into a *ValidationError for file. Errors
// that did not come from CUE are wrapped with the file name.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}
	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return fmt.Errorf("%s: %w", file, err)
	}

	verr := &ValidationError{File: file}
	for _, e := range cueerrors.Errors(err) {
		p := formatPath(cueerrors.Path(e))
		msg := e.Error()
		if p != "" && strings.HasPrefix(msg, p) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, p), ":"))
		}
		verr.Issues = append(verr.Issues, Issue{Path: p, Message: msg})
	}
	return verr
}

// formatPath turns ["build", "ignore_patterns", "2"] into "build.ignore_patterns[2]".
func formatPath(path []string) string {
	var sb strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			sb.WriteString("[" + part + "]")
		case i > 0:
			sb.WriteString("." + part)
		default:
			sb.WriteString(part)
		}
	}
	return sb.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckSize fails when data is larger than max bytes.
func CheckSize(data []byte, max int64, file string) error {
	if int64(len(data)) > max {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, file, len(data), max)
	}
	return nil
}
