// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{"operation only", &ActionableError{Operation: "build marketplace"}, "failed to build marketplace"},
		{"with resource", &ActionableError{Operation: "build integration", Resource: "VirusTotal"}, "failed to build integration: VirusTotal"},
		{
			"with cause",
			&ActionableError{Operation: "build integration", Resource: "VirusTotal", Cause: errors.New("no ping action")},
			"failed to build integration: VirusTotal: no ping action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := NewErrorContext().WithOperation("x").Wrap(fmt.Errorf("wrapped: %w", sentinel)).BuildError()
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is() did not reach the cause")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("exit status 1")
	err := NewErrorContext().
		WithOperation("vendor dependencies").
		WithResource("VirusTotal").
		WithSuggestions("Check the network", "Retry later").
		Wrap(fmt.Errorf("download: %w", inner)).
		Build()

	short := err.Format(false)
	if !strings.HasPrefix(short, "failed to vendor dependencies: VirusTotal: download: exit status 1") {
		t.Errorf("Format(false) = %q", short)
	}
	if !strings.Contains(short, "\n  • Check the network\n  • Retry later") {
		t.Errorf("Format(false) lacks suggestions: %q", short)
	}
	if strings.Contains(short, "Error chain") {
		t.Error("Format(false) includes the error chain")
	}

	long := err.Format(true)
	if !strings.Contains(long, "Error chain:\n  1. download: exit status 1\n  2. exit status 1") {
		t.Errorf("Format(true) = %q", long)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation returned an error")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation returned non-nil")
	}

	ae := NewErrorContext().
		WithOperation("check duplicates").
		WithIssue(DuplicateIntegrationId).
		WithSuggestion("rename one").
		Build()
	if ae.Issue != DuplicateIntegrationId || !ae.HasSuggestions() {
		t.Errorf("Build() = %+v", ae)
	}
}

func TestWrapWithContext(t *testing.T) {
	t.Parallel()

	if WrapWithContext(nil, "op", "res") != nil {
		t.Error("WrapWithContext(nil) != nil")
	}
	cause := errors.New("boom")
	ae := WrapWithContext(cause, "op", "res")
	if ae.Operation != "op" || ae.Resource != "res" || !errors.Is(ae, cause) {
		t.Errorf("WrapWithContext() = %+v", ae)
	}
}
