// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"

	"github.com/soarhub/mp/pkg/fspath"
)

const (
	// DefaultCompileCommand resolves and pins requirements.
	DefaultCompileCommand = "uv pip compile"
	// DefaultDownloadCommand fetches pinned artifacts.
	DefaultDownloadCommand = "python3 -m pip download"
	// DefaultTimeout bounds one external tool invocation.
	DefaultTimeout = 10 * time.Minute
	// DefaultMaxAttempts bounds download attempts.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the wait before the first retry; it doubles per attempt.
	DefaultBackoff = 2 * time.Second

	requirementsInFile = "requirements.in"
)

var (
	// ErrResolution is returned when dependencies cannot be resolved.
	ErrResolution = errors.New("dependency resolution failed")
	// ErrDownload is returned when locked dependencies cannot be downloaded.
	ErrDownload = errors.New("dependency download failed")
)

type (
	// Resolver compiles and downloads integration dependencies.
	Resolver struct {
		runner          CommandRunner
		compileCommand  []string
		downloadCommand []string
		exclude         map[string]bool
		timeout         time.Duration
		maxAttempts     int
		backoff         time.Duration
		logger          *log.Logger
	}

	// Option configures a Resolver.
	Option func(*Resolver) error
)

// WithRunner sets the CommandRunner used to invoke external tools.
func WithRunner(r CommandRunner) Option {
	return func(res *Resolver) error {
		res.runner = r
		return nil
	}
}

// WithCompileCommand sets the compile command line, split with shell rules.
func WithCompileCommand(cmdline string) Option {
	return func(res *Resolver) error {
		fields, err := splitCommand(cmdline)
		if err != nil {
			return err
		}
		res.compileCommand = fields
		return nil
	}
}

// WithDownloadCommand sets the download command line, split with shell rules.
func WithDownloadCommand(cmdline string) Option {
	return func(res *Resolver) error {
		fields, err := splitCommand(cmdline)
		if err != nil {
			return err
		}
		res.downloadCommand = fields
		return nil
	}
}

// WithExclude skips the named packages when downloading.
func WithExclude(names ...string) Option {
	return func(res *Resolver) error {
		for _, n := range names {
			res.exclude[NormalizeName(n)] = true
		}
		return nil
	}
}

// WithTimeout bounds each external tool invocation. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(res *Resolver) error {
		if d > 0 {
			res.timeout = d
		}
		return nil
	}
}

// WithRetry sets the download retry policy. Non-positive values keep the defaults.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(res *Resolver) error {
		if maxAttempts > 0 {
			res.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			res.backoff = backoff
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(res *Resolver) error {
		if l != nil {
			res.logger = l
		}
		return nil
	}
}

// NewResolver returns a Resolver using uv and pip unless configured otherwise.
func NewResolver(opts ...Option) (*Resolver, error) {
	res := &Resolver{
		runner:      ExecRunner{},
		exclude:     make(map[string]bool),
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		logger:      log.New(io.Discard),
	}
	res.compileCommand, _ = splitCommand(DefaultCompileCommand)
	res.downloadCommand, _ = splitCommand(DefaultDownloadCommand)

	for _, opt := range opts {
		if err := opt(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// CompileCoreIntegrationDependencies resolves the runtime dependencies of the
// project in sourceDir with the default Resolver.
func CompileCoreIntegrationDependencies(ctx context.Context, sourceDir, outputRequirementsFile string) error {
	res, err := NewResolver()
	if err != nil {
		return err
	}
	return res.CompileCoreIntegrationDependencies(ctx, sourceDir, outputRequirementsFile)
}

// DownloadWheelsFromRequirements downloads locked artifacts with the default Resolver.
func DownloadWheelsFromRequirements(ctx context.Context, requirementsFile, outputDir string) error {
	res, err := NewResolver()
	if err != nil {
		return err
	}
	return res.DownloadWheelsFromRequirements(ctx, requirementsFile, outputDir)
}

// CompileCoreIntegrationDependencies resolves the runtime dependencies of the
// project in sourceDir into a pinned requirements file. The dev dependency
// group is left out, and any dev-only package the resolver still emits is
// filtered from the output.
func (r *Resolver) CompileCoreIntegrationDependencies(ctx context.Context, sourceDir, outputRequirementsFile string) error {
	project, err := ReadProject(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolution, err)
	}

	if len(project.Dependencies) == 0 {
		r.logger.Debug("no runtime dependencies", "project", project.Name)
		return fspath.WriteFile(outputRequirementsFile, nil)
	}

	tmpDir, err := os.MkdirTemp("", "mp-compile-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolution, err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	inFile := filepath.Join(tmpDir, requirementsInFile)
	in := strings.Join(project.Dependencies, "\n") + "\n"
	if err := fspath.WriteFile(inFile, []byte(in)); err != nil {
		return fmt.Errorf("%w: %w", ErrResolution, err)
	}

	outFile, err := fspath.Abs(outputRequirementsFile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolution, err)
	}
	if err := os.MkdirAll(filepath.Dir(outFile), fspath.DirPerm); err != nil {
		return fmt.Errorf("%w: %w", ErrResolution, err)
	}

	args := append(append([]string(nil), r.compileCommand[1:]...), inFile, "--output-file", outFile)
	r.logger.Debug("compiling dependencies", "project", project.Name, "count", len(project.Dependencies))

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.runner.Run(runCtx, sourceDir, r.compileCommand[0], args...); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrResolution, project.Name, err)
	}

	locked, err := os.ReadFile(outFile)
	if err != nil {
		return fmt.Errorf("%w: reading compiled requirements: %w", ErrResolution, err)
	}
	if dev := project.DevOnlyNames(); len(dev) > 0 {
		filtered := FilterRequirements(locked, dev)
		if len(filtered) != len(locked) {
			r.logger.Debug("filtered dev dependencies from lock", "project", project.Name)
		}
		if err := fspath.WriteFileAtomic(outFile, filtered, fspath.FilePerm); err != nil {
			return fmt.Errorf("%w: %w", ErrResolution, err)
		}
	}
	return nil
}

// DownloadWheelsFromRequirements downloads binary artifacts for every locked
// requirement in requirementsFile into outputDir. Each attempt is bounded by
// the resolver timeout and failed attempts are retried with exponential
// backoff.
func (r *Resolver) DownloadWheelsFromRequirements(ctx context.Context, requirementsFile, outputDir string) error {
	reqs, err := ReadRequirements(requirementsFile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	var wanted []string
	for _, req := range reqs {
		if r.exclude[RequirementName(req)] {
			r.logger.Debug("skipping excluded requirement", "requirement", req)
			continue
		}
		wanted = append(wanted, req)
	}

	absOut, err := fspath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if err := os.MkdirAll(absOut, fspath.DirPerm); err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if len(wanted) == 0 {
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "mp-download-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	reqFile := filepath.Join(tmpDir, "requirements.txt")
	if err := fspath.WriteFile(reqFile, []byte(strings.Join(wanted, "\n")+"\n")); err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	args := append(append([]string(nil), r.downloadCommand[1:]...),
		"--only-binary=:all:", "--no-deps", "-r", reqFile, "-d", absOut)

	err = RetryWithBackoff(ctx, r.maxAttempts, r.backoff, func(attempt int) (bool, error) {
		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		r.logger.Debug("downloading dependencies", "attempt", attempt+1, "count", len(wanted))
		_, runErr := r.runner.Run(runCtx, tmpDir, r.downloadCommand[0], args...)
		if runErr == nil {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, runErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			runErr = fmt.Errorf("timed out after %s: %w", r.timeout, runErr)
		}
		r.logger.Warn("dependency download failed", "attempt", attempt+1, "err", runErr)
		return true, runErr
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return nil
}

func splitCommand(cmdline string) ([]string, error) {
	fields, err := shell.Fields(cmdline, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", cmdline, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command %q", cmdline)
	}
	return fields, nil
}
