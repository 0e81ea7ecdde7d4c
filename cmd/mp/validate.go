// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
)

func newValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check integrations against the marketplace rules without building",
		Long: `Parse and validate integrations of any layout without writing anything.

Every violated rule is listed, not only the first one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runValidate(cmd, args)
		},
	}
}

func (a *App) runValidate(cmd *cobra.Command, paths []string) error {
	s, err := a.start(cmd)
	if err != nil {
		return err
	}

	invalid := 0
	for _, path := range paths {
		it, status, err := parseIntegration(path, s.cfg.Rules())
		if err != nil {
			invalid++
			fmt.Fprintf(a.stdout, "%s %s\n", ErrorStyle.Render("✗"), CmdStyle.Render(path))
			for _, e := range flatten(err) {
				fmt.Fprintf(a.stdout, "    %s\n", e)
			}
			continue
		}
		s.logger.Debug("validated", "integration", it.Identifier, "layout", status)
		fmt.Fprintf(a.stdout, "%s %s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(it.Identifier),
			SubtitleStyle.Render(status.String()+" "+path))
	}

	if invalid > 0 {
		err := fmt.Errorf("%d of %d integrations are invalid", invalid, len(paths))
		a.explain(wrapError(integration.ErrValidation, "validate", ""), s.verbose, s.cfg.UI.ColorScheme)
		return &ExitError{Code: ExitInvalid, Err: err}
	}
	return nil
}

// parseIntegration parses the integration at path in whichever layout it uses.
func parseIntegration(path string, rules integration.Rules) (*integration.Integration, layout.Status, error) {
	status, err := layout.Classify(path)
	if err != nil {
		return nil, 0, err
	}
	var it *integration.Integration
	if status == layout.StatusNonBuilt {
		it, err = integration.FromNonBuiltPath(path, integration.WithRules(rules))
	} else {
		it, err = integration.FromBuiltPath(path, integration.WithRules(rules))
	}
	return it, status, err
}

// flatten splits errors.Join trees into their leaves. A ValidationError is
// a leaf even though it unwraps to several sentinels.
func flatten(err error) []error {
	if _, ok := err.(*integration.ValidationError); ok {
		return []error{err}
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
