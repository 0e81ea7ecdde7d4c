// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for mp.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/soarhub/mp/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// session is the per-invocation state shared by the command handlers.
type session struct {
	cfg     *config.Config
	logger  *log.Logger
	verbose bool
}

// NewRootCommand builds the mp command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "mp",
		Short: "Build and restructure SOAR marketplace integrations",
		Long: TitleStyle.Render("mp") + SubtitleStyle.Render(" - SOAR marketplace integration builder") + `

mp converts integrations between the non-built source layout (YAML metadata,
pyproject.toml, package directories) and the built layout the platform loads
(JSON definitions, flat Scripts/, vendored Dependencies/).

` + SubtitleStyle.Render("Examples:") + `
  mp build integration ./commercial/VirusTotal -o out/VirusTotal
  mp build marketplace --commercial ./commercial --community ./community
  mp deconstruct integration ./built/VirusTotal -o src/VirusTotal
  mp validate ./commercial/VirusTotal
  mp config show`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(contextWithConfigPath(cmd.Context(), cfgFile))
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mp/config.cue)")

	rootCmd.AddCommand(
		newBuildCommand(app),
		newDeconstructCommand(app),
		newValidateCommand(app),
		newCheckCommand(app),
		newDepsCommand(app),
		newConfigCommand(app),
	)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// start loads the configuration and builds the logger for one invocation.
func (a *App) start(cmd *cobra.Command) (*session, error) {
	cfg, err := a.loadConfig(cmd.Context())
	if err != nil {
		a.explain(err, true, config.ColorSchemeAuto)
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	verbose = verbose || cfg.UI.Verbose
	return &session{cfg: cfg, logger: a.newLogger(verbose), verbose: verbose}, nil
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the mp command tree and exits with the code of the failure.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
