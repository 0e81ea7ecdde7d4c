// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, nil)
	good := writeIntegration(t, filepath.Join(t.TempDir(), "Acme"), "Acme")
	bad := writePinglessIntegration(t, filepath.Join(t.TempDir(), "Broken"), "Broken")

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := runCLI(t, nil, "--config", cfgPath, "validate", good)
		if err != nil {
			t.Fatalf("validate error: %v", err)
		}
		if !strings.Contains(stdout, "Acme") || !strings.Contains(stdout, "non-built") {
			t.Errorf("stdout = %q, want identifier and layout", stdout)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := runCLI(t, nil, "--config", cfgPath, "validate", good, bad)
		if got := exitCode(err); got != ExitInvalid {
			t.Fatalf("exitCode() = %d, want %d (err: %v)", got, ExitInvalid, err)
		}
		if !strings.Contains(err.Error(), "1 of 2") {
			t.Errorf("error = %q, want a count of invalid integrations", err)
		}
		if !strings.Contains(stdout, bad) || !strings.Contains(stdout, "integration Broken") {
			t.Errorf("stdout = %q, want the violated rule listed", stdout)
		}
	})

	t.Run("not an integration", func(t *testing.T) {
		t.Parallel()

		_, _, err := runCLI(t, nil, "--config", cfgPath, "validate", t.TempDir())
		if got := exitCode(err); got != ExitInvalid {
			t.Errorf("exitCode() = %d, want %d", got, ExitInvalid)
		}
	})
}

func TestParseIntegration(t *testing.T) {
	t.Parallel()

	dir := writeIntegration(t, filepath.Join(t.TempDir(), "Acme"), "Acme")
	it, status, err := parseIntegration(dir, integration.DefaultRules())
	if err != nil {
		t.Fatalf("parseIntegration() error: %v", err)
	}
	if status != layout.StatusNonBuilt {
		t.Errorf("status = %v, want %v", status, layout.StatusNonBuilt)
	}
	if it.Identifier != "Acme" {
		t.Errorf("Identifier = %q, want Acme", it.Identifier)
	}

	if _, _, err := parseIntegration(t.TempDir(), integration.DefaultRules()); err == nil {
		t.Error("expected an error for an empty directory")
	}
}
