// SPDX-License-Identifier: MPL-2.0

// Package restructure converts integrations between the non-built source
// layout and the built layout.
//
// A build classifies its input first. Built input is copied as is. Half-built
// input keeps its definitions, gets its scripts re-flattened and its
// dependencies vendored. Non-built input goes through the whole pipeline:
// parse and validate, flatten every script into Scripts/ with rewritten
// imports, vendor dependencies into Dependencies/, and render the built
// definitions plus the full-details descriptor.
//
// Every build writes into a private staging directory next to the output and
// renames it into place only once the integration is complete, so a failed
// build never leaves partial output behind.
package restructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/soarhub/mp/pkg/fspath"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
	"github.com/soarhub/mp/pkg/pydeps"
	"github.com/soarhub/mp/pkg/pyimport"
)

// DefaultIgnorePatterns are the doublestar patterns, relative to the
// integration root, that never reach the output.
var DefaultIgnorePatterns = []string{
	"**/__pycache__",
	"**/*.pyc",
	"**/.DS_Store",
	"**/.venv",
	"**/.pytest_cache",
	"**/.mypy_cache",
	"tests",
}

var (
	// ErrOutputInsideSource is returned when the output directory is, lies
	// within, or contains the integration being restructured.
	ErrOutputInsideSource = errors.New("output directory is inside the source integration")

	// ErrMissingScript is returned when a component definition has no script.
	ErrMissingScript = errors.New("component script not found")
)

type (
	// DependencyResolver locks and vendors an integration's dependencies.
	// *pydeps.Resolver is the production implementation.
	DependencyResolver interface {
		CompileCoreIntegrationDependencies(ctx context.Context, sourceDir, outputRequirementsFile string) error
		DownloadWheelsFromRequirements(ctx context.Context, requirementsFile, outputDir string) error
	}

	// Builder builds and deconstructs single integrations. It is safe for
	// concurrent use as long as calls target disjoint output directories.
	Builder struct {
		resolver DependencyResolver
		rewriter *pyimport.Rewriter
		rules    integration.Rules
		ignore   []string
		logger   *log.Logger
	}

	// Option configures a Builder.
	Option func(*Builder) error

	// Result describes one restructured integration.
	Result struct {
		Identifier  string
		DisplayName string
		Source      string
		Output      string
		// From is the layout of the source directory.
		From        layout.Status
		Integration *integration.Integration
		// Scripts lists the script files written, relative to Output.
		Scripts []string
		// Dependencies lists the vendored artifacts relative to Output after
		// a build, and the declared requirements after a deconstruction.
		Dependencies []string
	}

	// InvalidIntegrationError is returned for a path that holds no integration.
	InvalidIntegrationError struct {
		Path string
		Err  error
	}
)

func (e *InvalidIntegrationError) Error() string {
	return "Invalid integration " + e.Path
}

// Unwrap matches both fs.ErrNotExist and the classification error.
func (e *InvalidIntegrationError) Unwrap() []error {
	return []error{fs.ErrNotExist, e.Err}
}

// WithResolver sets the dependency resolver.
func WithResolver(r DependencyResolver) Option {
	return func(b *Builder) error {
		b.resolver = r
		return nil
	}
}

// WithRewriter sets the import rewriter.
func WithRewriter(r *pyimport.Rewriter) Option {
	return func(b *Builder) error {
		b.rewriter = r
		return nil
	}
}

// WithRules sets the validation rules integrations are parsed with.
func WithRules(rules integration.Rules) Option {
	return func(b *Builder) error {
		b.rules = rules
		return nil
	}
}

// WithIgnorePatterns replaces the ignore patterns.
func WithIgnorePatterns(patterns ...string) Option {
	return func(b *Builder) error {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("invalid ignore pattern %q", p)
			}
		}
		b.ignore = patterns
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) error {
		if l != nil {
			b.logger = l
		}
		return nil
	}
}

// NewBuilder returns a Builder. Without options it resolves dependencies
// with the default pydeps.Resolver and validates with integration.DefaultRules.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		rewriter: pyimport.NewRewriter(),
		rules:    integration.DefaultRules(),
		ignore:   DefaultIgnorePatterns,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.resolver == nil {
		r, err := pydeps.NewResolver(pydeps.WithLogger(b.logger))
		if err != nil {
			return nil, err
		}
		b.resolver = r
	}
	return b, nil
}

// Ignored reports whether the slash-separated path rel, relative to an
// integration root, matches an ignore pattern.
func (b *Builder) Ignored(rel string) bool {
	for _, p := range b.ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (b *Builder) skip(rel string, _ fs.DirEntry) bool {
	return b.Ignored(rel)
}

func (b *Builder) classify(path string) (layout.Status, error) {
	status, err := layout.Classify(path)
	if err != nil {
		return 0, &InvalidIntegrationError{Path: path, Err: err}
	}
	return status, nil
}

// stage runs fn against a fresh staging directory beside outDir and moves
// the result to outDir, replacing any previous content. The staging
// directory is removed when fn fails.
func stage(src, outDir string, fn func(dir string) error) (err error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}
	if contains(absSrc, absOut) || contains(absOut, absSrc) {
		return fmt.Errorf("%w: %s", ErrOutputInsideSource, outDir)
	}

	parent := filepath.Dir(absOut)
	if err := os.MkdirAll(parent, fspath.DirPerm); err != nil {
		return fmt.Errorf("failed to create output parent: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "."+filepath.Base(absOut)+".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	if err = fn(dir); err != nil {
		return err
	}
	if err = os.Chmod(dir, fspath.DirPerm); err != nil {
		return err
	}
	if err = os.RemoveAll(absOut); err != nil {
		return fmt.Errorf("failed to replace %s: %w", outDir, err)
	}
	if err = os.Rename(dir, absOut); err != nil {
		return fmt.Errorf("failed to move staged output into place: %w", err)
	}
	return nil
}

// contains reports whether path is parent or lies below it.
func contains(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func newResult(src, outDir string, from layout.Status, it *integration.Integration) *Result {
	return &Result{
		Identifier:  it.Identifier,
		DisplayName: it.Metadata.DisplayName,
		Source:      src,
		Output:      outDir,
		From:        from,
		Integration: it,
	}
}
