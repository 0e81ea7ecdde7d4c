// SPDX-License-Identifier: MPL-2.0

// Package integration provides the typed metadata model of a marketplace
// integration and its two on-disk representations.
//
// # Representations
//
// The non-built (source) representation keeps one YAML file per component
// next to its script (actions/ping.yaml + actions/ping.py), the integration
// definition in definition.yaml, and the version and Python constraint in
// pyproject.toml. The built representation flattens everything into JSON:
// Integration-<id>.def, RN.json, ActionsDefinitions/*.actiondef,
// Connectors/*.connectordef, Jobs/*.jobdef and Widgets/*.json.
//
//   - [FromNonBuiltPath] / [FromBuiltPath] parse either form
//   - [Integration.ToBuilt] / [Integration.ToNonBuilt] render either form
//   - [Integration.WriteBuilt] / [Integration.WriteNonBuilt] write it to disk
//
// # Validation
//
// [New] is the only way to obtain an *Integration. It normalizes parameter
// defaults and runs every structural rule eagerly, so an invalid Integration
// never exists. The rules are:
//   - exactly one enabled, non-custom action named "ping" (case-insensitive)
//   - a boolean "Verify SSL" parameter defaulting to true
//   - bounded lengths and word counts for names and descriptions
//   - parameter defaults that match the declared parameter type
//   - unique flat script names across components and common modules
//
// Exemption lists and limits are carried by [Rules], which callers inject
// through [WithRules]; [DefaultRules] returns the stock configuration.
package integration
