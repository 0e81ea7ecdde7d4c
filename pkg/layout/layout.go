// SPDX-License-Identifier: MPL-2.0

// Package layout classifies an integration directory by its on-disk shape.
//
// An integration is always in exactly one of three states:
//   - [StatusNonBuilt]: source form, carries a pyproject.toml and no built definition
//   - [StatusHalfBuilt]: transitional, pyproject.toml next to an Integration-<id>.def
//   - [StatusBuilt]: deployable form, Integration-<id>.def and no pyproject.toml
//
// Classification depends only on marker files; nothing is parsed or written.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StatusNonBuilt is the human-authored source layout.
	StatusNonBuilt Status = iota + 1
	// StatusHalfBuilt has both source and built markers.
	StatusHalfBuilt
	// StatusBuilt is the flattened, vendored layout.
	StatusBuilt
)

const (
	// ProjectFile is the source-layout dependency descriptor.
	ProjectFile = "pyproject.toml"
	// BuiltDefinitionPrefix prefixes the flattened definition file name.
	BuiltDefinitionPrefix = "Integration-"
	// BuiltDefinitionSuffix is the flattened definition file extension.
	BuiltDefinitionSuffix = ".def"
)

// ErrNotIntegration is returned when a directory carries neither marker file.
var ErrNotIntegration = errors.New("not an integration")

type (
	// Status is the layout state of an integration directory.
	Status int

	// NotIntegrationError reports a path that is not an integration.
	// It wraps ErrNotIntegration for errors.Is() compatibility.
	NotIntegrationError struct {
		Path string
	}
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusNonBuilt:
		return "non-built"
	case StatusHalfBuilt:
		return "half-built"
	case StatusBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *NotIntegrationError) Error() string {
	return fmt.Sprintf("%s is not an integration: no %s or %s*%s found",
		e.Path, ProjectFile, BuiltDefinitionPrefix, BuiltDefinitionSuffix)
}

// Unwrap returns ErrNotIntegration.
func (e *NotIntegrationError) Unwrap() error { return ErrNotIntegration }

// Classify inspects path and returns its layout status.
func Classify(path string) (Status, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return 0, &NotIntegrationError{Path: path}
	}

	hasProject := fileExists(filepath.Join(path, ProjectFile))
	_, hasDef := FindBuiltDefinition(path)

	switch {
	case hasProject && hasDef:
		return StatusHalfBuilt, nil
	case hasDef:
		return StatusBuilt, nil
	case hasProject:
		return StatusNonBuilt, nil
	default:
		return 0, &NotIntegrationError{Path: path}
	}
}

// IsIntegration reports whether path is an integration in any state.
func IsIntegration(path string) bool {
	_, err := Classify(path)
	return err == nil
}

// HasProjectFile reports whether path directly contains a pyproject.toml.
func HasProjectFile(path string) bool {
	return fileExists(filepath.Join(path, ProjectFile))
}

// BuiltDefinitionName returns the flattened definition file name for identifier.
func BuiltDefinitionName(identifier string) string {
	return BuiltDefinitionPrefix + identifier + BuiltDefinitionSuffix
}

// FindBuiltDefinition returns the path of the Integration-<id>.def file in dir.
// When several exist the lexically first one wins.
func FindBuiltDefinition(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(name, BuiltDefinitionPrefix) && strings.HasSuffix(name, BuiltDefinitionSuffix) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// IdentifierFromDefinition extracts the integration identifier from a built definition file name.
func IdentifierFromDefinition(path string) string {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, BuiltDefinitionPrefix)
	return strings.TrimSuffix(name, BuiltDefinitionSuffix)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
