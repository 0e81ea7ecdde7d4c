// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes CUE documents against an embedded schema.
//
// A document is compiled, unified with one definition of the schema, validated
// and decoded into a Go value. Errors name the offending field in JSON-path
// notation, prefixed with the file name:
//
//	config.cue: build.workers: conflicting values "4" and int
package cueutil
