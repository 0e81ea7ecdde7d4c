// SPDX-License-Identifier: MPL-2.0

package restructure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/pkg/fspath"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
	"github.com/soarhub/mp/pkg/pydeps"
)

const requirementsFileName = "requirements.txt"

// BuildIntegration produces the built layout of the integration at path in
// outDir. outDir is replaced as a whole, and left untouched when the build fails.
func (b *Builder) BuildIntegration(ctx context.Context, path, outDir string) (*Result, error) {
	from, err := b.classify(path)
	if err != nil {
		return nil, err
	}
	logger := b.logger.With("integration", filepath.Base(path), "layout", from)
	logger.Debug("building")

	var res *Result
	err = stage(path, outDir, func(dir string) error {
		var err error
		switch from {
		case layout.StatusBuilt:
			res, err = b.copyBuilt(path, dir)
		case layout.StatusHalfBuilt:
			res, err = b.buildHalfBuilt(ctx, path, dir)
		default:
			res, err = b.buildNonBuilt(ctx, path, dir)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	res.Source, res.Output, res.From = path, outDir, from
	logger.Info("built", "id", res.Identifier, "scripts", len(res.Scripts), "dependencies", len(res.Dependencies))
	return res, nil
}

func (b *Builder) copyBuilt(src, dir string) (*Result, error) {
	it, err := integration.FromBuiltPath(src, integration.WithRules(b.rules))
	if err != nil {
		return nil, err
	}
	if err := fspath.CopyDir(src, dir, b.skip); err != nil {
		return nil, fmt.Errorf("failed to copy built integration: %w", err)
	}

	res := newResult(src, dir, layout.StatusBuilt, it)
	if res.Scripts, err = listDir(dir, integration.ScriptsDir); err != nil {
		return nil, err
	}
	if res.Dependencies, err = listDir(dir, integration.DependenciesDir); err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Builder) buildHalfBuilt(ctx context.Context, src, dir string) (*Result, error) {
	it, err := integration.FromBuiltPath(src, integration.WithRules(b.rules))
	if err != nil {
		return nil, err
	}
	if err := it.WriteBuilt(dir); err != nil {
		return nil, err
	}

	res := newResult(src, dir, layout.StatusHalfBuilt, it)
	for _, file := range it.ScriptFiles() {
		rel := integration.ScriptsDir + "/" + file
		if err := b.rewriteInto(fspath.FromSlash(src, rel), dir, file, b.rewriter.RewriteScript); err != nil {
			return nil, err
		}
		res.Scripts = append(res.Scripts, rel)
	}

	return b.finish(ctx, src, dir, res)
}

func (b *Builder) buildNonBuilt(ctx context.Context, src, dir string) (*Result, error) {
	it, err := integration.FromNonBuiltPath(src, integration.WithRules(b.rules))
	if err != nil {
		return nil, err
	}
	if err := it.WriteBuilt(dir); err != nil {
		return nil, err
	}

	res := newResult(src, dir, layout.StatusNonBuilt, it)
	for _, file := range it.ScriptFiles() {
		rel := it.NonBuiltScriptPath(file)
		rewrite := b.rewriter.RewriteScript
		if isCommonModule(it, file) {
			rewrite = b.rewriter.RewritePackageScript
		}
		if err := b.rewriteInto(fspath.FromSlash(src, rel), dir, file, rewrite); err != nil {
			return nil, err
		}
		res.Scripts = append(res.Scripts, integration.ScriptsDir+"/"+file)
	}

	return b.finish(ctx, src, dir, res)
}

// finish vendors the dependencies declared in src and writes the full details.
func (b *Builder) finish(ctx context.Context, src, dir string, res *Result) (*Result, error) {
	deps, err := b.vendor(ctx, src, dir)
	if err != nil {
		return nil, err
	}
	res.Dependencies = deps

	if err := postbuild.WriteFullDetails(dir, res.Integration); err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Builder) rewriteInto(src, dir, file string, rewrite func(string) string) error {
	code, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingScript, src)
		}
		return err
	}
	return fspath.WriteFile(filepath.Join(dir, integration.ScriptsDir, file), []byte(rewrite(string(code))))
}

// vendor locks the dependencies of the project in src into a temporary
// requirements file and downloads them into the Dependencies directory.
func (b *Builder) vendor(ctx context.Context, src, dir string) ([]string, error) {
	tmp, err := os.MkdirTemp("", "mp-requirements-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	req := filepath.Join(tmp, requirementsFileName)
	if err := b.resolver.CompileCoreIntegrationDependencies(ctx, src, req); err != nil {
		return nil, err
	}
	depDir := filepath.Join(dir, integration.DependenciesDir)
	if err := b.resolver.DownloadWheelsFromRequirements(ctx, req, depDir); err != nil {
		return nil, err
	}

	files, err := listDir(dir, integration.DependenciesDir)
	if err != nil {
		return nil, err
	}
	var artifacts []string
	for _, f := range files {
		if pydeps.IsArtifact(f) {
			artifacts = append(artifacts, f)
		}
	}
	return artifacts, nil
}

func isCommonModule(it *integration.Integration, file string) bool {
	for _, m := range it.CommonModules {
		if m.FileName == file {
			return true
		}
	}
	return false
}

// listDir returns the slash-separated paths, relative to root, of the regular
// files directly inside root/sub. A missing directory yields nothing.
func listDir(root, sub string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, sub))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, sub+"/"+e.Name())
		}
	}
	return files, nil
}
