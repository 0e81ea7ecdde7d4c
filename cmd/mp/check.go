// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soarhub/mp/internal/marketplace"
	"github.com/soarhub/mp/internal/postbuild"
)

func newCheckCommand(app *App) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check built marketplace output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var output string
	duplicatesCmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Fail when an identifier appears more than once across both marketplaces",
		Long: `Read the manifests of <output>/commercial and <output>/community and fail
when an integration identifier appears twice within one marketplace or in both.
A missing manifest counts as empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.start(cmd)
			if err != nil {
				return err
			}
			if output == "" {
				output = s.cfg.Marketplace.Output
			}
			commercial := filepath.Join(output, marketplace.Commercial)
			community := filepath.Join(output, marketplace.Community)

			s.logger.Debug("checking manifests", "commercial", commercial, "community", community)
			if err := postbuild.RaiseErrorsForDuplicateIntegrations(commercial, community, s.cfg.Marketplace.ManifestFile); err != nil {
				for _, e := range flatten(err) {
					fmt.Fprintf(app.stdout, "%s %s\n", ErrorStyle.Render("✗"), e)
				}
				return &ExitError{Code: ExitDuplicates, Err: app.fail(s, wrapError(err, "check duplicates", output))}
			}
			fmt.Fprintf(app.stdout, "%s no duplicate identifiers\n", SuccessStyle.Render("✓"))
			return nil
		},
	}
	duplicatesCmd.Flags().StringVarP(&output, "output", "o", "", "marketplace output directory (overrides marketplace.output)")

	checkCmd.AddCommand(duplicatesCmd)
	return checkCmd
}
