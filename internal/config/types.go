// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/exp/slices"

	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/pydeps"
)

const (
	// ColorSchemeAuto follows the terminal background.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces the dark palette.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces the light palette.
	ColorSchemeLight ColorScheme = "light"

	// DefaultOutputDir is where marketplace builds land when no output is configured.
	DefaultOutputDir = "out"
)

var (
	// ErrInvalidColorScheme is the sentinel error wrapped by InvalidColorSchemeError.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidConfigError collects the field-level problems of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Marketplace locates the marketplace roots and the build output.
		Marketplace MarketplaceConfig `json:"marketplace" mapstructure:"marketplace"`
		// Build tunes the restructure pipeline.
		Build BuildConfig `json:"build" mapstructure:"build"`
		// Dependencies selects the dependency tools and their retry policy.
		Dependencies DependenciesConfig `json:"dependencies" mapstructure:"dependencies"`
		// Validation carries the integration validation rules.
		Validation ValidationConfig `json:"validation" mapstructure:"validation"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// MarketplaceConfig locates the marketplace roots. An empty root is not built.
	MarketplaceConfig struct {
		Commercial   string `json:"commercial" mapstructure:"commercial"`
		Community    string `json:"community" mapstructure:"community"`
		Output       string `json:"output" mapstructure:"output"`
		ManifestFile string `json:"manifest_file" mapstructure:"manifest_file"`
	}

	// BuildConfig tunes the restructure pipeline.
	BuildConfig struct {
		// Workers bounds concurrent integration builds; 0 uses one per CPU.
		Workers int `json:"workers" mapstructure:"workers"`
		// IgnorePatterns are doublestar globs of source files never copied to the output.
		IgnorePatterns []string `json:"ignore_patterns" mapstructure:"ignore_patterns"`
		// SharedLibraries are packages provided by the platform and never vendored.
		SharedLibraries []string `json:"shared_libraries" mapstructure:"shared_libraries"`
	}

	// DependenciesConfig selects the dependency tools.
	DependenciesConfig struct {
		CompileCommand  string        `json:"compile_command" mapstructure:"compile_command"`
		DownloadCommand string        `json:"download_command" mapstructure:"download_command"`
		Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
		MaxAttempts     int           `json:"max_attempts" mapstructure:"max_attempts"`
		Backoff         time.Duration `json:"backoff" mapstructure:"backoff"`
	}

	// ValidationConfig carries the rule lists of integration.Rules.
	ValidationConfig struct {
		PingExempt                []string `json:"ping_exempt" mapstructure:"ping_exempt"`
		SSLExempt                 []string `json:"ssl_exempt" mapstructure:"ssl_exempt"`
		SSLDefaultExempt          []string `json:"ssl_default_exempt" mapstructure:"ssl_default_exempt"`
		SSLParameterNames         []string `json:"ssl_parameter_names" mapstructure:"ssl_parameter_names"`
		WordCountExemptParameters []string `json:"word_count_exempt_parameters" mapstructure:"word_count_exempt_parameters"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables debug logging.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
		// ColorScheme sets the color scheme.
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	rules := integration.DefaultRules()
	return &Config{
		Marketplace: MarketplaceConfig{
			Output:       DefaultOutputDir,
			ManifestFile: postbuild.DefaultManifestName,
		},
		Build: BuildConfig{
			IgnorePatterns:  slices.Clone(restructure.DefaultIgnorePatterns),
			SharedLibraries: []string{"TIPCommon", "EnvironmentCommon"},
		},
		Dependencies: DependenciesConfig{
			CompileCommand:  pydeps.DefaultCompileCommand,
			DownloadCommand: pydeps.DefaultDownloadCommand,
			Timeout:         pydeps.DefaultTimeout,
			MaxAttempts:     pydeps.DefaultMaxAttempts,
			Backoff:         pydeps.DefaultBackoff,
		},
		Validation: ValidationConfig{
			PingExempt:                rules.PingExempt,
			SSLExempt:                 rules.SSLExempt,
			SSLDefaultExempt:          rules.SSLDefaultExempt,
			SSLParameterNames:         rules.SSLParameterNames,
			WordCountExemptParameters: rules.WordCountExemptParameters,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// Rules returns the integration validation rules described by the
// configuration. Size limits always use their defaults.
func (c *Config) Rules() integration.Rules {
	rules := integration.DefaultRules()
	rules.PingExempt = slices.Clone(c.Validation.PingExempt)
	rules.SSLExempt = slices.Clone(c.Validation.SSLExempt)
	rules.SSLDefaultExempt = slices.Clone(c.Validation.SSLDefaultExempt)
	rules.SSLParameterNames = slices.Clone(c.Validation.SSLParameterNames)
	rules.WordCountExemptParameters = slices.Clone(c.Validation.WordCountExemptParameters)
	return rules
}

// ResolverOptions returns the pydeps options selected by the configuration.
func (c *Config) ResolverOptions() []pydeps.Option {
	return []pydeps.Option{
		pydeps.WithCompileCommand(c.Dependencies.CompileCommand),
		pydeps.WithDownloadCommand(c.Dependencies.DownloadCommand),
		pydeps.WithTimeout(c.Dependencies.Timeout),
		pydeps.WithRetry(c.Dependencies.MaxAttempts, c.Dependencies.Backoff),
		pydeps.WithExclude(c.Build.SharedLibraries...),
	}
}

// Validate reports the problems CUE cannot express: unparsable globs,
// unsplittable commands and negative durations. A value set through the
// environment skips the schema, so the color scheme is checked here too.
func (c *Config) Validate() error {
	var errs []error
	for _, p := range c.Build.IgnorePatterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("build.ignore_patterns: invalid pattern %q", p))
		}
	}
	if strings.TrimSpace(c.Dependencies.CompileCommand) == "" {
		errs = append(errs, errors.New("dependencies.compile_command: must not be empty"))
	}
	if strings.TrimSpace(c.Dependencies.DownloadCommand) == "" {
		errs = append(errs, errors.New("dependencies.download_command: must not be empty"))
	}
	if c.Dependencies.Timeout < 0 {
		errs = append(errs, errors.New("dependencies.timeout: must not be negative"))
	}
	if c.Dependencies.Backoff < 0 {
		errs = append(errs, errors.New("dependencies.backoff: must not be negative"))
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Marketplace.Commercial != "" && c.Marketplace.Commercial == c.Marketplace.Community {
		errs = append(errs, errors.New("marketplace: commercial and community roots must differ"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// String returns the string representation of the ColorScheme.
func (s ColorScheme) String() string { return string(s) }

// Validate returns an *InvalidColorSchemeError for unknown schemes. The empty
// scheme means auto.
func (s ColorScheme) Validate() error {
	switch s {
	case "", ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return &InvalidColorSchemeError{Value: s}
	}
}

func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }
