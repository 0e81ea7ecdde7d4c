// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/soarhub/mp/internal/config"
	"github.com/soarhub/mp/internal/issue"
	"github.com/soarhub/mp/internal/marketplace"
	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
	"github.com/soarhub/mp/pkg/pydeps"
)

// issueFor returns the catalog entry matching err, or zero.
func issueFor(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	switch {
	case errors.Is(err, postbuild.ErrDuplicateIntegration):
		return issue.DuplicateIntegrationId
	case errors.Is(err, layout.ErrNotIntegration):
		return issue.NotAnIntegrationId
	case errors.Is(err, integration.ErrValidation):
		return issue.IntegrationInvalidId
	case errors.Is(err, restructure.ErrMissingScript):
		return issue.MissingScriptId
	case errors.Is(err, pydeps.ErrResolution):
		return issue.DependencyResolutionFailedId
	case errors.Is(err, pydeps.ErrDownload):
		return issue.DependencyDownloadFailedId
	case errors.Is(err, restructure.ErrOutputInsideSource), errors.Is(err, marketplace.ErrOutputInsideRoot):
		return issue.OutputInsideSourceId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	default:
		return 0
	}
}

// wrapError attaches the operation, resource and matching catalog entry to err.
func wrapError(err error, operation, resource string) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}
	ctx := issue.NewErrorContext().
		WithOperation(operation).
		WithResource(resource).
		WithIssue(issueFor(err)).
		Wrap(err)
	switch issueFor(err) {
	case issue.IntegrationInvalidId:
		ctx.WithSuggestion("Run 'mp validate " + resource + "' to list every problem")
	case issue.DependencyDownloadFailedId:
		ctx.WithSuggestion("Retry with --verbose to see the download tool output")
	case issue.OutputInsideSourceId:
		ctx.WithSuggestion("Choose an output directory outside the source tree")
	}
	return ctx.BuildError()
}

// explain writes the Markdown guide for err to stderr. Nothing is written
// outside verbose mode or when no guide matches.
func (a *App) explain(err error, verbose bool, scheme config.ColorScheme) {
	if !verbose {
		return
	}
	id := issueFor(err)
	if id == 0 {
		return
	}
	if scheme == "" {
		scheme = config.ColorSchemeAuto
	}
	rendered, rerr := issue.Get(id).Render(scheme.String())
	if rerr != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}
