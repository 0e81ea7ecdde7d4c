// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soarhub/mp/pkg/pydeps"
)

func newDepsCommand(app *App) *cobra.Command {
	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "Resolve and vendor Python dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var requirements string
	compileCmd := &cobra.Command{
		Use:   "compile <project-dir>",
		Short: "Lock the runtime dependencies of a project, without its dev group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.start(cmd)
			if err != nil {
				return err
			}
			out := requirements
			if out == "" {
				out = filepath.Join(args[0], "requirements.txt")
			}
			resolver, err := app.newResolver(s.cfg, s.logger)
			if err != nil {
				return err
			}
			if err := resolver.CompileCoreIntegrationDependencies(cmd.Context(), args[0], out); err != nil {
				return app.fail(s, wrapError(err, "compile dependencies", args[0]))
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("✓"), out)
			return nil
		},
	}
	compileCmd.Flags().StringVarP(&requirements, "output", "o", "", "requirements file to write (default: <project-dir>/requirements.txt)")

	downloadCmd := &cobra.Command{
		Use:   "download <requirements-file> <output-dir>",
		Short: "Download the artifacts of a locked requirements file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.start(cmd)
			if err != nil {
				return err
			}
			resolver, err := app.newResolver(s.cfg, s.logger)
			if err != nil {
				return err
			}
			if err := resolver.DownloadWheelsFromRequirements(cmd.Context(), args[0], args[1]); err != nil {
				return app.fail(s, wrapError(err, "download dependencies", args[0]))
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("✓"), args[1])
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <project-dir> <requirements-file>",
		Short: "Write requirement lines into the dependencies of pyproject.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pydeps.AddDependenciesToToml(args[0], args[1]); err != nil {
				return wrapError(err, "add dependencies", args[0])
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("✓"), filepath.Join(args[0], pydeps.ProjectFileName))
			return nil
		},
	}

	pythonVersionCmd := &cobra.Command{
		Use:   "python-version <constraint>",
		Short: "Print the lowest major.minor Python version of a constraint",
		Example: `  mp deps python-version ">=3.11,<3.13"
  3.11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := pydeps.GetPythonVersionFromVersionString(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, v)
			return nil
		},
	}

	depsCmd.AddCommand(compileCmd, downloadCmd, addCmd, pythonVersionCmd)
	return depsCmd
}
