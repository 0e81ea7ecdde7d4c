// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soarhub/mp/internal/config"
	"github.com/soarhub/mp/pkg/fspath"
)

// newConfigCommand creates the `mp config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mp configuration",
		Long: `Manage mp configuration.

Configuration is stored in:
  - Linux: ~/.config/mp/config.cue
  - macOS: ~/Library/Application Support/mp/config.cue
  - Windows: %APPDATA%\mp\config.cue

Any value can be overridden through the environment, e.g. MP_BUILD_WORKERS=8.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfig(cmd.Context())
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := initConfig(configPathFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s %s\n", WarningStyle.Render("Configuration already exists:"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if p := configPathFromContext(cmd.Context()); p != "" {
				fmt.Fprintln(app.stdout, p)
				return nil
			}
			path, err := config.FilePath("")
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}

// initConfig writes the defaults to path, or to the platform location when
// path is empty. An existing file is kept.
func initConfig(path string) (string, bool, error) {
	if path == "" {
		return config.CreateDefaultConfig("")
	}
	if fspath.Exists(path) {
		return path, false, nil
	}
	return path, true, config.Save(path, config.DefaultConfig())
}

func (a *App) showConfig(ctx context.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		a.explain(err, true, config.ColorSchemeAuto)
		return err
	}

	source := configPathFromContext(ctx)
	if source == "" {
		source = SubtitleStyle.Render("(defaults and any config file found)")
	}
	fmt.Fprintf(a.stdout, "%s %s\n\n", TitleStyle.Render("Configuration:"), source)
	fmt.Fprint(a.stdout, strings.TrimPrefix(config.GenerateCUE(cfg), "// mp configuration file\n\n"))
	return nil
}
