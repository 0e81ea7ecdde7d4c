// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/soarhub/mp/internal/config"
	"github.com/soarhub/mp/internal/issue"
	"github.com/soarhub/mp/internal/marketplace"
	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
	"github.com/soarhub/mp/pkg/pydeps"
)

func TestIssueFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"duplicate", &postbuild.DuplicateIntegrationError{Identifier: "Acme"}, issue.DuplicateIntegrationId},
		{"not an integration", &layout.NotIntegrationError{Path: "/tmp/x"}, issue.NotAnIntegrationId},
		{"validation", errors.Join(&integration.ValidationError{Integration: "Acme", Rule: integration.ErrPingAction}), issue.IntegrationInvalidId},
		{"missing script", fmt.Errorf("%w: ping.py", restructure.ErrMissingScript), issue.MissingScriptId},
		{"resolution", fmt.Errorf("%w: boom", pydeps.ErrResolution), issue.DependencyResolutionFailedId},
		{"download", fmt.Errorf("%w: boom", pydeps.ErrDownload), issue.DependencyDownloadFailedId},
		{"output inside source", restructure.ErrOutputInsideSource, issue.OutputInsideSourceId},
		{"output inside root", marketplace.ErrOutputInsideRoot, issue.OutputInsideSourceId},
		{"config", &config.InvalidConfigError{}, issue.ConfigLoadFailedId},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, issue.PermissionDeniedId},
		{"unknown", errors.New("boom"), 0},
		{
			"explicit issue wins",
			issue.NewErrorContext().WithOperation("op").WithIssue(issue.MarketplaceRootNotFoundId).Wrap(pydeps.ErrDownload).BuildError(),
			issue.MarketplaceRootNotFoundId,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := issueFor(tt.err); got != tt.want {
				t.Errorf("issueFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	if wrapError(nil, "op", "res") != nil {
		t.Error("wrapError(nil) should be nil")
	}

	cause := fmt.Errorf("%w: requests", pydeps.ErrDownload)
	err := wrapError(cause, "build integration", "Acme")
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("wrapError() = %T, want *issue.ActionableError", err)
	}
	if ae.Operation != "build integration" || ae.Resource != "Acme" {
		t.Errorf("Operation, Resource = %q, %q", ae.Operation, ae.Resource)
	}
	if ae.Issue != issue.DependencyDownloadFailedId || !ae.HasSuggestions() {
		t.Errorf("Issue = %d, suggestions = %v", ae.Issue, ae.Suggestions)
	}
	if !errors.Is(err, pydeps.ErrDownload) {
		t.Error("wrapped error lost its cause")
	}

	if again := wrapError(err, "other", "other"); again != err {
		t.Error("wrapError() should keep an existing actionable error")
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), ExitFailure},
		{&ExitError{Code: ExitPartial}, ExitPartial},
		{fmt.Errorf("wrapped: %w", &ExitError{Code: ExitInvalid, Err: errors.New("bad")}), ExitInvalid},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	err := &ExitError{Code: ExitDuplicates, Err: inner}
	if err.Error() != "inner" || !errors.Is(err, inner) {
		t.Errorf("ExitError = %q, want it to wrap inner", err)
	}
	if got := (&ExitError{Code: 4}).Error(); got != "exit status 4" {
		t.Errorf("Error() = %q, want %q", got, "exit status 4")
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	v1 := &integration.ValidationError{Integration: "Acme", Rule: integration.ErrPingAction, Message: "missing"}
	v2 := &integration.ValidationError{Integration: "Acme", Rule: integration.ErrSSLParameter, Message: "missing"}
	plain := errors.New("plain")

	got := flatten(errors.Join(v1, errors.Join(v2, plain)))
	if len(got) != 3 || got[0] != v1 || got[1] != v2 || got[2] != plain {
		t.Errorf("flatten() = %v, want [v1 v2 plain]", got)
	}
	if got := flatten(v1); len(got) != 1 || got[0] != v1 {
		t.Errorf("flatten(ValidationError) = %v, want the error itself", got)
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	app := NewApp(Dependencies{Stdout: &bytes.Buffer{}, Stderr: &stderr})

	app.explain(pydeps.ErrDownload, false, config.ColorSchemeAuto)
	if stderr.Len() != 0 {
		t.Errorf("explain() wrote %q outside verbose mode", stderr.String())
	}

	app.explain(errors.New("unknown"), true, config.ColorSchemeAuto)
	if stderr.Len() != 0 {
		t.Errorf("explain() wrote %q for an error without a guide", stderr.String())
	}

	app.explain(&postbuild.DuplicateIntegrationError{Identifier: "Acme"}, true, "")
	if !strings.Contains(strings.ToLower(stderr.String()), "duplicate") {
		t.Errorf("explain() = %q, want the duplicate identifier guide", stderr.String())
	}
}
