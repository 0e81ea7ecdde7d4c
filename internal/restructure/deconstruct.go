// SPDX-License-Identifier: MPL-2.0

package restructure

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soarhub/mp/pkg/fspath"
	"github.com/soarhub/mp/pkg/integration"
	"github.com/soarhub/mp/pkg/layout"
	"github.com/soarhub/mp/pkg/pydeps"
)

const packageInitFile = "__init__.py"

// DeconstructIntegration produces the non-built layout of the integration at
// path in outDir. Built definitions are split into per-component YAML files,
// flat scripts move back into their package directories with relative
// imports, and the project descriptor lists the vendored dependencies by
// name. Half-built input keeps its own descriptor. Non-built input is copied.
func (b *Builder) DeconstructIntegration(ctx context.Context, path, outDir string) (*Result, error) {
	from, err := b.classify(path)
	if err != nil {
		return nil, err
	}
	logger := b.logger.With("integration", filepath.Base(path), "layout", from)
	logger.Debug("deconstructing")

	var res *Result
	err = stage(path, outDir, func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if from == layout.StatusNonBuilt {
			res, err = b.copyNonBuilt(path, dir)
		} else {
			res, err = b.splitBuilt(path, dir, from)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	res.Source, res.Output, res.From = path, outDir, from
	logger.Info("deconstructed", "id", res.Identifier, "scripts", len(res.Scripts), "dependencies", len(res.Dependencies))
	return res, nil
}

func (b *Builder) copyNonBuilt(src, dir string) (*Result, error) {
	it, err := integration.FromNonBuiltPath(src, integration.WithRules(b.rules))
	if err != nil {
		return nil, err
	}
	if err := fspath.CopyDir(src, dir, b.skip); err != nil {
		return nil, fmt.Errorf("failed to copy non-built integration: %w", err)
	}

	res := newResult(src, dir, layout.StatusNonBuilt, it)
	for _, file := range it.ScriptFiles() {
		res.Scripts = append(res.Scripts, it.NonBuiltScriptPath(file))
	}
	project, err := pydeps.ReadProject(dir)
	if err != nil {
		return nil, err
	}
	res.Dependencies = project.Dependencies
	return res, nil
}

func (b *Builder) splitBuilt(src, dir string, from layout.Status) (*Result, error) {
	it, err := integration.FromBuiltPath(src, integration.WithRules(b.rules))
	if err != nil {
		return nil, err
	}
	if err := it.WriteNonBuilt(dir); err != nil {
		return nil, err
	}

	res := newResult(src, dir, from, it)
	if res.Scripts, err = b.unflattenScripts(src, dir, it); err != nil {
		return nil, err
	}

	if from == layout.StatusHalfBuilt {
		if err := fspath.CopyFile(filepath.Join(src, pydeps.ProjectFileName), filepath.Join(dir, pydeps.ProjectFileName)); err != nil {
			return nil, fmt.Errorf("failed to keep project descriptor: %w", err)
		}
		project, err := pydeps.ReadProject(dir)
		if err != nil {
			return nil, err
		}
		res.Dependencies = project.Dependencies
		return res, nil
	}

	if res.Dependencies, err = vendoredNames(src); err != nil {
		return nil, err
	}
	if err := pydeps.SetDependencies(dir, res.Dependencies); err != nil {
		return nil, err
	}
	return res, nil
}

// unflattenScripts moves every flat script to its package directory and turns
// imports of common modules back into relative imports. Each package
// directory that receives a script gets an __init__.py.
func (b *Builder) unflattenScripts(src, dir string, it *integration.Integration) ([]string, error) {
	var modules []string
	for _, m := range it.CommonModules {
		modules = append(modules, strings.TrimSuffix(m.FileName, integration.ScriptFileExtension))
	}

	packages := map[string]bool{}
	var written []string
	for _, file := range it.ScriptFiles() {
		code, err := os.ReadFile(filepath.Join(src, integration.ScriptsDir, file))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingScript, file)
		}

		rel := it.NonBuiltScriptPath(file)
		pkg := path.Dir(rel)
		ref := "..core"
		if pkg == integration.CoreDir {
			ref = "."
		}
		out := b.rewriter.RelativizeScript(string(code), modules, ref)
		if err := fspath.WriteFile(fspath.FromSlash(dir, rel), []byte(out)); err != nil {
			return nil, err
		}
		packages[pkg] = true
		written = append(written, rel)
	}

	for pkg := range packages {
		initPath := fspath.FromSlash(dir, pkg+"/"+packageInitFile)
		if fspath.Exists(initPath) {
			continue
		}
		if err := fspath.WriteFile(initPath, nil); err != nil {
			return nil, err
		}
	}
	return written, nil
}

// vendoredNames returns the sorted, de-duplicated project names of the
// artifacts in src/Dependencies.
func vendoredNames(src string) ([]string, error) {
	files, err := listDir(src, integration.DependenciesDir)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, f := range files {
		name := pydeps.ArtifactRequirementName(path.Base(f))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
