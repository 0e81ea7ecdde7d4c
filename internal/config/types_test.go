// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"reflect"
	"testing"

	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/pydeps"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Marketplace.Output != DefaultOutputDir {
		t.Errorf("Output = %q, want %q", cfg.Marketplace.Output, DefaultOutputDir)
	}
	if cfg.Marketplace.ManifestFile != "marketplace.json" {
		t.Errorf("ManifestFile = %q", cfg.Marketplace.ManifestFile)
	}
	if cfg.Dependencies.CompileCommand != pydeps.DefaultCompileCommand {
		t.Errorf("CompileCommand = %q", cfg.Dependencies.CompileCommand)
	}
	if cfg.UI.ColorScheme != ColorSchemeAuto || cfg.UI.Verbose {
		t.Errorf("UI = %+v", cfg.UI)
	}
	if !reflect.DeepEqual(cfg.Rules(), integration.DefaultRules()) {
		t.Errorf("Rules() = %+v, want DefaultRules()", cfg.Rules())
	}
}

func TestConfig_Rules_DoesNotAlias(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Validation.PingExempt = []string{"Siemplify"}
	rules := cfg.Rules()
	rules.PingExempt[0] = "changed"

	if cfg.Validation.PingExempt[0] != "Siemplify" {
		t.Error("Rules() shares its slices with the config")
	}
	if !cfg.Rules().IsPingExempt("siemplify") {
		t.Error("Rules() lost ping_exempt")
	}
	if cfg.Rules().Limits != integration.DefaultLimits() {
		t.Error("Rules() changed the size limits")
	}
}

func TestConfig_ResolverOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Dependencies.CompileCommand = "pip-compile --quiet"
	if _, err := pydeps.NewResolver(cfg.ResolverOptions()...); err != nil {
		t.Fatalf("NewResolver(ResolverOptions()) error = %v", err)
	}

	cfg.Dependencies.DownloadCommand = `pip download "unterminated`
	if _, err := pydeps.NewResolver(cfg.ResolverOptions()...); err == nil {
		t.Error("NewResolver() accepted an unterminated quote")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad glob", func(c *Config) { c.Build.IgnorePatterns = []string{"a/[b"} }},
		{"empty compile command", func(c *Config) { c.Dependencies.CompileCommand = "  " }},
		{"empty download command", func(c *Config) { c.Dependencies.DownloadCommand = "" }},
		{"negative timeout", func(c *Config) { c.Dependencies.Timeout = -1 }},
		{"negative backoff", func(c *Config) { c.Dependencies.Backoff = -1 }},
		{"color scheme", func(c *Config) { c.UI.ColorScheme = "neon" }},
		{"same roots", func(c *Config) { c.Marketplace.Commercial, c.Marketplace.Community = "/x", "/x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			var ice *InvalidConfigError
			if !errors.As(err, &ice) || len(ice.FieldErrors) != 1 {
				t.Errorf("Validate() = %v, want exactly one field error", err)
			}
		})
	}
}

func TestColorScheme_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value ColorScheme
		valid bool
	}{
		{"", true},
		{ColorSchemeAuto, true},
		{ColorSchemeDark, true},
		{ColorSchemeLight, true},
		{"Dark", false},
		{"neon", false},
	}

	for _, tt := range tests {
		err := tt.value.Validate()
		if (err == nil) != tt.valid {
			t.Errorf("ColorScheme(%q).Validate() = %v, want valid=%v", tt.value, err, tt.valid)
		}
		if err != nil && !errors.Is(err, ErrInvalidColorScheme) {
			t.Errorf("ColorScheme(%q).Validate() does not wrap ErrInvalidColorScheme", tt.value)
		}
	}
}
