// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks for the hot paths of a marketplace build,
// used to generate the PGO profile:
//   - import rewriting of integration scripts
//   - integration parsing and validation
//   - CUE configuration loading
//   - the full restructure pipeline, dependency tools faked
//
// To generate a profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
