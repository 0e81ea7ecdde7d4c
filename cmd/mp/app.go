// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/soarhub/mp/internal/config"
	"github.com/soarhub/mp/internal/marketplace"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/pkg/pydeps"
)

type (
	configPathContextKey struct{}

	// App wires CLI services and shared dependencies. Every Cobra handler
	// receives the App and builds its pipeline through it.
	App struct {
		Config ConfigProvider
		Runner pydeps.CommandRunner
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		// Runner executes the external dependency tools.
		Runner pydeps.CommandRunner
		Stdout io.Writer
		Stderr io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Runner == nil {
		deps.Runner = pydeps.ExecRunner{}
	}

	return &App{
		Config: deps.Config,
		Runner: deps.Runner,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// contextWithConfigPath attaches the explicit --config value to the context.
func contextWithConfigPath(ctx context.Context, configPath string) context.Context {
	return context.WithValue(ctx, configPathContextKey{}, configPath)
}

// configPathFromContext extracts the explicit config path from context.
func configPathFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(configPathContextKey{}).(string); ok {
		return v
	}

	return ""
}

// loadConfig loads the configuration named by --config, or the default one.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: configPathFromContext(ctx)})
}

// newLogger returns the stderr logger shared by every pipeline stage.
func (a *App) newLogger(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		ReportTimestamp: false,
	})
}

// newResolver returns the dependency resolver selected by cfg.
func (a *App) newResolver(cfg *config.Config, logger *log.Logger) (*pydeps.Resolver, error) {
	opts := append(cfg.ResolverOptions(), pydeps.WithRunner(a.Runner), pydeps.WithLogger(logger))
	return pydeps.NewResolver(opts...)
}

// newBuilder returns a restructure.Builder configured by cfg.
func (a *App) newBuilder(cfg *config.Config, logger *log.Logger) (*restructure.Builder, error) {
	resolver, err := a.newResolver(cfg, logger)
	if err != nil {
		return nil, err
	}
	return restructure.NewBuilder(
		restructure.WithResolver(resolver),
		restructure.WithRules(cfg.Rules()),
		restructure.WithIgnorePatterns(cfg.Build.IgnorePatterns...),
		restructure.WithLogger(logger),
	)
}

// newMarketplace returns the marketplace driver for roots, configured by cfg.
func (a *App) newMarketplace(cfg *config.Config, roots marketplace.Roots, outDir string, only []string, workers int, logger *log.Logger) (*marketplace.Marketplace, error) {
	builder, err := a.newBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}
	return marketplace.New(roots, outDir,
		marketplace.WithBuilder(builder),
		marketplace.WithWorkers(workers),
		marketplace.WithManifestName(cfg.Marketplace.ManifestFile),
		marketplace.WithSelection(only...),
		marketplace.WithLogger(logger),
	)
}
