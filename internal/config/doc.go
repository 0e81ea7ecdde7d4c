// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/mp/config.cue (or $XDG_CONFIG_HOME/mp on Linux,
// ~/Library/Application Support/mp on macOS, %APPDATA%\mp on Windows), or from the file
// named by --config. Files are validated against the embedded config_schema.cue before
// being merged over the defaults, so every field is optional.
//
// The configuration locates the marketplace roots and the output directory, bounds the
// build worker pool, selects the external dependency tools and carries the validation
// rules applied to every integration.
package config
