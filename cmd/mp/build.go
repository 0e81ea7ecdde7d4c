// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/soarhub/mp/internal/config"
	"github.com/soarhub/mp/internal/issue"
	"github.com/soarhub/mp/internal/marketplace"
	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/internal/watch"
)

type (
	// marketplaceFlags are shared by build marketplace and deconstruct marketplace.
	marketplaceFlags struct {
		commercial string
		community  string
		output     string
		only       []string
		workers    int
	}

	restructureOp func(b *restructure.Builder, ctx context.Context, path, outDir string) (*restructure.Result, error)
)

func newBuildCommand(app *App) *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build integrations into the built layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var (
		output    string
		watchMode bool
		debounce  time.Duration
	)
	integrationCmd := &cobra.Command{
		Use:   "integration <path>",
		Short: "Build one integration",
		Long: `Build one integration into the built layout.

Non-built and half-built integrations are converted: metadata becomes JSON
definitions, scripts are flattened into Scripts/ with rewritten imports and
dependencies are vendored into Dependencies/. Built integrations are validated
and copied.

With --watch the integration is rebuilt whenever its source changes, until
interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchMode {
				return app.watchIntegration(cmd, args[0], output, debounce)
			}
			return app.runIntegration(cmd, args[0], output, "build integration", (*restructure.Builder).BuildIntegration)
		},
	}
	integrationCmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: out/<name>)")
	integrationCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "rebuild whenever the source changes")
	integrationCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a rebuild in watch mode")

	flags := &marketplaceFlags{}
	marketplaceCmd := &cobra.Command{
		Use:   "marketplace",
		Short: "Build every integration of the marketplace roots",
		Long: `Build every integration of the commercial and community roots.

Each root is written to <output>/<root> together with its manifest. The pass
continues past failing integrations and ends with a check that no identifier
appears twice across both roots.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runMarketplace(cmd, flags, true)
		},
	}
	flags.register(marketplaceCmd)

	buildCmd.AddCommand(integrationCmd, marketplaceCmd)
	return buildCmd
}

func (f *marketplaceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.commercial, "commercial", "", "commercial marketplace root (overrides marketplace.commercial)")
	cmd.Flags().StringVar(&f.community, "community", "", "community marketplace root (overrides marketplace.community)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory (overrides marketplace.output)")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "restrict the pass to these integration directory names")
	cmd.Flags().IntVarP(&f.workers, "workers", "j", 0, "integrations processed at once (overrides build.workers)")
}

// runIntegration applies op to the integration at path.
func (a *App) runIntegration(cmd *cobra.Command, path, output, operation string, op restructureOp) error {
	s, err := a.start(cmd)
	if err != nil {
		return err
	}
	if output == "" {
		output = defaultOutput(s.cfg, path)
	}

	builder, err := a.newBuilder(s.cfg, s.logger)
	if err != nil {
		return err
	}
	res, err := op(builder, cmd.Context(), path, output)
	if err != nil {
		return a.fail(s, wrapError(err, operation, path))
	}
	a.printResult(res)
	return nil
}

// watchIntegration builds the integration at path, then rebuilds it on every
// source change until the command context is canceled. Failed builds are
// reported and watching continues.
func (a *App) watchIntegration(cmd *cobra.Command, path, output string, debounce time.Duration) error {
	s, err := a.start(cmd)
	if err != nil {
		return err
	}
	if output == "" {
		output = defaultOutput(s.cfg, path)
	}
	builder, err := a.newBuilder(s.cfg, s.logger)
	if err != nil {
		return err
	}

	build := func(ctx context.Context) error {
		res, err := builder.BuildIntegration(ctx, path, output)
		if err != nil {
			err = wrapError(err, "build integration", path)
			a.explain(err, s.verbose, s.cfg.UI.ColorScheme)
			return err
		}
		a.printResult(res)
		return nil
	}
	if err := build(cmd.Context()); err != nil {
		s.logger.Error("build failed", "err", err)
	}

	w, err := watch.New(watch.Options{
		Dir:      path,
		Ignored:  builder.Ignored,
		Debounce: debounce,
		OnChange: func(ctx context.Context, changed []string) error {
			s.logger.Info("rebuilding", "changed", changed)
			return build(ctx)
		},
		Logger: s.logger,
	})
	if err != nil {
		return a.fail(s, wrapError(err, "watch", path))
	}
	return w.Run(cmd.Context())
}

// defaultOutput is <marketplace.output>/<integration directory name>.
func defaultOutput(cfg *config.Config, path string) string {
	return filepath.Join(cfg.Marketplace.Output, filepath.Base(filepath.Clean(path)))
}

func (a *App) printResult(res *restructure.Result) {
	fmt.Fprintf(a.stdout, "%s %s %s %s\n",
		SuccessStyle.Render("✓"), CmdStyle.Render(res.Identifier),
		SubtitleStyle.Render(res.From.String()+" →"), res.Output)
}

// runMarketplace builds or deconstructs every integration of the configured roots.
func (a *App) runMarketplace(cmd *cobra.Command, f *marketplaceFlags, build bool) error {
	s, err := a.start(cmd)
	if err != nil {
		return err
	}

	roots := marketplace.Roots{Commercial: s.cfg.Marketplace.Commercial, Community: s.cfg.Marketplace.Community}
	if f.commercial != "" {
		roots.Commercial = f.commercial
	}
	if f.community != "" {
		roots.Community = f.community
	}
	if roots.Commercial == "" && roots.Community == "" {
		return a.fail(s, issue.NewErrorContext().
			WithOperation("locate marketplace roots").
			WithIssue(issue.MarketplaceRootNotFoundId).
			WithSuggestion("Pass --commercial and/or --community").
			Wrap(errors.New("no marketplace root configured")).
			BuildError())
	}
	output := s.cfg.Marketplace.Output
	if f.output != "" {
		output = f.output
	}
	workers := s.cfg.Build.Workers
	if f.workers > 0 {
		workers = f.workers
	}

	mp, err := a.newMarketplace(s.cfg, roots, output, f.only, workers, s.logger)
	if err != nil {
		return a.fail(s, wrapError(err, "prepare marketplace", output))
	}

	operation := "build marketplace"
	run := mp.Build
	if !build {
		operation = "deconstruct marketplace"
		run = mp.Deconstruct
	}

	report, err := run(cmd.Context())
	if report != nil {
		a.printReport(report)
	}
	if err != nil {
		err = a.fail(s, wrapError(err, operation, output))
		if errors.Is(err, postbuild.ErrDuplicateIntegration) {
			return &ExitError{Code: ExitDuplicates, Err: err}
		}
		return err
	}
	if len(report.Failed) > 0 {
		return &ExitError{Code: ExitPartial, Err: fmt.Errorf("%d of %d integrations failed", len(report.Failed), len(report.Failed)+len(report.Built))}
	}
	return nil
}

// fail explains err in verbose mode and returns it.
func (a *App) fail(s *session, err error) error {
	a.explain(err, s.verbose, s.cfg.UI.ColorScheme)
	return err
}

func (a *App) printReport(r *marketplace.Report) {
	for _, res := range r.Built {
		fmt.Fprintf(a.stdout, "%s %s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(res.Identifier), SubtitleStyle.Render(res.Output))
	}
	for _, f := range r.Failed {
		fmt.Fprintf(a.stdout, "%s %s %s\n", ErrorStyle.Render("✗"), CmdStyle.Render(filepath.Base(f.Path)), f.Err)
	}
	for _, p := range r.Skipped {
		fmt.Fprintf(a.stdout, "%s %s\n", WarningStyle.Render("-"), SubtitleStyle.Render(p+" (skipped)"))
	}
	fmt.Fprintf(a.stdout, "\n%s %d built, %d failed, %d skipped\n",
		TitleStyle.Render("Summary:"), len(r.Built), len(r.Failed), len(r.Skipped))
}

func newDeconstructCommand(app *App) *cobra.Command {
	deconstructCmd := &cobra.Command{
		Use:   "deconstruct",
		Short: "Convert built integrations back to the non-built layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var output string
	integrationCmd := &cobra.Command{
		Use:   "integration <path>",
		Short: "Deconstruct one integration",
		Long: `Deconstruct one built or half-built integration into the non-built layout.

Definitions are split into YAML files, flat scripts move back into their
package directories with relative imports and the vendored dependencies are
listed in pyproject.toml.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runIntegration(cmd, args[0], output, "deconstruct integration", (*restructure.Builder).DeconstructIntegration)
		},
	}
	integrationCmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: out/<name>)")

	flags := &marketplaceFlags{}
	marketplaceCmd := &cobra.Command{
		Use:   "marketplace",
		Short: "Deconstruct every integration of the marketplace roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runMarketplace(cmd, flags, false)
		},
	}
	flags.register(marketplaceCmd)

	deconstructCmd.AddCommand(integrationCmd, marketplaceCmd)
	return deconstructCmd
}
