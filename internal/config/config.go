// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/soarhub/mp/internal/issue"
	"github.com/soarhub/mp/pkg/cueutil"
	"github.com/soarhub/mp/pkg/fspath"
)

const (
	// AppName is the application name.
	AppName = "mp"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. MP_BUILD_WORKERS.
	EnvPrefix = "MP"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the mp configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// FilePath returns the path of the config file in dir, or in ConfigDir when
// dir is empty.
func FilePath(dir string) (string, error) {
	cfgDir, err := configDirWithOverride(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	// --config is used exclusively.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'mp config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", invalidFileError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cuePath, err := FilePath(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", invalidFileError(cuePath, err)
			}
			resolvedPath = cuePath
		}
		// No config file: defaults only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check the MP_* environment variables for stray values").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func invalidFileError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("See 'mp config --help' for configuration options").
		Wrap(err).
		BuildError()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("marketplace.commercial", d.Marketplace.Commercial)
	v.SetDefault("marketplace.community", d.Marketplace.Community)
	v.SetDefault("marketplace.output", d.Marketplace.Output)
	v.SetDefault("marketplace.manifest_file", d.Marketplace.ManifestFile)
	v.SetDefault("build.workers", d.Build.Workers)
	v.SetDefault("build.ignore_patterns", d.Build.IgnorePatterns)
	v.SetDefault("build.shared_libraries", d.Build.SharedLibraries)
	v.SetDefault("dependencies.compile_command", d.Dependencies.CompileCommand)
	v.SetDefault("dependencies.download_command", d.Dependencies.DownloadCommand)
	v.SetDefault("dependencies.timeout", d.Dependencies.Timeout)
	v.SetDefault("dependencies.max_attempts", d.Dependencies.MaxAttempts)
	v.SetDefault("dependencies.backoff", d.Dependencies.Backoff)
	v.SetDefault("validation.ping_exempt", d.Validation.PingExempt)
	v.SetDefault("validation.ssl_exempt", d.Validation.SSLExempt)
	v.SetDefault("validation.ssl_default_exempt", d.Validation.SSLDefaultExempt)
	v.SetDefault("validation.ssl_parameter_names", d.Validation.SSLParameterNames)
	v.SetDefault("validation.word_count_exempt_parameters", d.Validation.WordCountExemptParameters)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.color_scheme", d.UI.ColorScheme)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates the CUE file at path against #Config and merges
// its contents into v. The file is decoded to a map, not a Config, so that
// unset fields keep Viper's defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := cueutil.Decode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path), cueutil.WithPartial())
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration into dir (ConfigDir
// when empty) unless a config file exists. It returns the file path and
// whether the file was written.
func CreateDefaultConfig(dir string) (string, bool, error) {
	cfgPath, err := FilePath(dir)
	if err != nil {
		return "", false, err
	}
	if fspath.Exists(cfgPath) {
		return cfgPath, false, nil
	}
	if err := Save(cfgPath, DefaultConfig()); err != nil {
		return "", false, err
	}
	return cfgPath, true, nil
}

// Save writes cfg to path as CUE.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), fspath.DirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := fspath.WriteFileAtomic(path, []byte(GenerateCUE(cfg)), fspath.FilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// mp configuration file\n\n")

	sb.WriteString("marketplace: {\n")
	fmt.Fprintf(&sb, "\tcommercial:    %q\n", cfg.Marketplace.Commercial)
	fmt.Fprintf(&sb, "\tcommunity:     %q\n", cfg.Marketplace.Community)
	fmt.Fprintf(&sb, "\toutput:        %q\n", cfg.Marketplace.Output)
	fmt.Fprintf(&sb, "\tmanifest_file: %q\n", cfg.Marketplace.ManifestFile)
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	fmt.Fprintf(&sb, "\tworkers: %d\n", cfg.Build.Workers)
	writeList(&sb, "ignore_patterns", cfg.Build.IgnorePatterns)
	writeList(&sb, "shared_libraries", cfg.Build.SharedLibraries)
	sb.WriteString("}\n")

	sb.WriteString("\ndependencies: {\n")
	fmt.Fprintf(&sb, "\tcompile_command:  %q\n", cfg.Dependencies.CompileCommand)
	fmt.Fprintf(&sb, "\tdownload_command: %q\n", cfg.Dependencies.DownloadCommand)
	fmt.Fprintf(&sb, "\ttimeout:          %q\n", cfg.Dependencies.Timeout.String())
	fmt.Fprintf(&sb, "\tmax_attempts:     %d\n", cfg.Dependencies.MaxAttempts)
	fmt.Fprintf(&sb, "\tbackoff:          %q\n", cfg.Dependencies.Backoff.String())
	sb.WriteString("}\n")

	sb.WriteString("\nvalidation: {\n")
	writeList(&sb, "ping_exempt", cfg.Validation.PingExempt)
	writeList(&sb, "ssl_exempt", cfg.Validation.SSLExempt)
	writeList(&sb, "ssl_default_exempt", cfg.Validation.SSLDefaultExempt)
	writeList(&sb, "ssl_parameter_names", cfg.Validation.SSLParameterNames)
	writeList(&sb, "word_count_exempt_parameters", cfg.Validation.WordCountExemptParameters)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose:      %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	sb.WriteString("}\n")

	return sb.String()
}

func writeList(sb *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		fmt.Fprintf(sb, "\t%s: []\n", key)
		return
	}
	fmt.Fprintf(sb, "\t%s: [\n", key)
	for _, s := range values {
		fmt.Fprintf(sb, "\t\t%q,\n", s)
	}
	sb.WriteString("\t]\n")
}
