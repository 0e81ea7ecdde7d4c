// SPDX-License-Identifier: MPL-2.0

package benchmark

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soarhub/mp/internal/config"
	"github.com/soarhub/mp/internal/marketplace"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/internal/testutil"
	itest "github.com/soarhub/mp/internal/testutil/integrationtest"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/pyimport"
)

// sampleScript mixes every import form the rewriter handles.
const sampleScript = `from __future__ import annotations

import json
from TIPCommon.extraction import extract_action_param
from ..core.AcmeManager import AcmeManager
from ..core import constants, utils  # shared helpers
from ..core.exceptions import (
    AcmeError,
    AcmeNotFoundError,
)
from .datamodels import Alert


def main():
    manager = AcmeManager(constants.API_ROOT)
    try:
        result = manager.get_alerts()
    except AcmeNotFoundError:
        result = []
    print(json.dumps([Alert(r).to_json() for r in result]))
`

// noDependencies resolves nothing, keeping the pipeline benchmarks offline.
type noDependencies struct{}

func (noDependencies) CompileCoreIntegrationDependencies(_ context.Context, _, out string) error {
	return os.WriteFile(out, nil, 0o644)
}

func (noDependencies) DownloadWheelsFromRequirements(_ context.Context, _, outDir string) error {
	return os.MkdirAll(outDir, 0o755)
}

// BenchmarkRewriteScript benchmarks flattening the imports of one script.
func BenchmarkRewriteScript(b *testing.B) {
	r := pyimport.NewRewriter()
	code := strings.Repeat(sampleScript, 20)

	b.ResetTimer()
	for b.Loop() {
		_ = r.RewriteScript(code)
	}
}

// BenchmarkRelativizeScript benchmarks the reverse rewrite used by deconstruct.
func BenchmarkRelativizeScript(b *testing.B) {
	r := pyimport.NewRewriter()
	code := r.RewriteScript(strings.Repeat(sampleScript, 20))
	modules := []string{"AcmeManager", "constants", "utils", "exceptions", "datamodels"}

	b.ResetTimer()
	for b.Loop() {
		_ = r.RelativizeScript(code, modules, "..core")
	}
}

// BenchmarkParseNonBuilt benchmarks reading and validating a non-built integration.
func BenchmarkParseNonBuilt(b *testing.B) {
	dir := testutil.WriteTree(b, b.TempDir(), itest.NonBuiltFiles("Acme"))

	b.ResetTimer()
	for b.Loop() {
		if _, err := integration.FromNonBuiltPath(dir); err != nil {
			b.Fatalf("FromNonBuiltPath failed: %v", err)
		}
	}
}

// BenchmarkConfigLoad benchmarks loading a CUE configuration file.
func BenchmarkConfigLoad(b *testing.B) {
	path := filepath.Join(b.TempDir(), "config.cue")
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		b.Fatal(err)
	}
	provider := config.NewProvider()
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		if _, err := provider.Load(ctx, config.LoadOptions{ConfigFilePath: path}); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
	}
}

// BenchmarkBuildIntegration benchmarks one non-built to built conversion.
func BenchmarkBuildIntegration(b *testing.B) {
	src := testutil.WriteTree(b, b.TempDir(), itest.NonBuiltFiles("Acme"))
	out := filepath.Join(b.TempDir(), "Acme")
	builder, err := restructure.NewBuilder(restructure.WithResolver(noDependencies{}))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		if _, err := builder.BuildIntegration(ctx, src, out); err != nil {
			b.Fatalf("BuildIntegration failed: %v", err)
		}
	}
}

// BenchmarkBuildMarketplace benchmarks a full pass over a small marketplace.
func BenchmarkBuildMarketplace(b *testing.B) {
	root := b.TempDir()
	for _, id := range []string{"Acme", "Beta", "Gamma", "Delta"} {
		testutil.WriteTree(b, filepath.Join(root, id), itest.NonBuiltFiles(id))
	}
	out := b.TempDir()
	builder, err := restructure.NewBuilder(restructure.WithResolver(noDependencies{}))
	if err != nil {
		b.Fatal(err)
	}
	m, err := marketplace.New(marketplace.Roots{Commercial: root}, out, marketplace.WithBuilder(builder))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		report, err := m.Build(ctx)
		if err != nil {
			b.Fatalf("Build failed: %v", err)
		}
		if len(report.Failed) > 0 {
			b.Fatalf("Build failed for %d integrations: %v", len(report.Failed), report.Err())
		}
	}
}
