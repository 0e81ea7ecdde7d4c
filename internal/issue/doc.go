// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// An ActionableError names the failed operation, the integration or file it
// concerned and what the user can do about it. Errors that match a known
// problem also carry an Id into the catalog of Markdown guides, which the CLI
// renders with glamour.
package issue
