// SPDX-License-Identifier: MPL-2.0

// Package integrationtest provides fixtures for integration trees and
// integration.Integration values.
//
// This package is separate from testutil so that testutil stays free of
// domain imports.
//
// # Usage
//
//	root := testutil.WriteTree(t, t.TempDir(), integrationtest.NonBuiltFiles("Acme"))
//	it := integrationtest.NewTestIntegration(t, "Acme", integrationtest.WithVersion("2.0"))
package integrationtest
