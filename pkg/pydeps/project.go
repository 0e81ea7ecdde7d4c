// SPDX-License-Identifier: MPL-2.0

// Package pydeps resolves, locks and vendors the third-party Python
// dependencies of an integration.
//
// The dependency descriptor is a PEP 621 pyproject.toml. Runtime dependencies
// live in [project].dependencies and development-only dependencies in the
// "dev" entry of [dependency-groups]. Resolution and download are delegated
// to external tools (uv and pip by default) invoked through a CommandRunner.
package pydeps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"

	"github.com/soarhub/mp/pkg/fspath"
)

const (
	// ProjectFileName is the dependency descriptor file name.
	ProjectFileName = "pyproject.toml"
	// DevGroup is the dependency group holding development-only packages.
	DevGroup = "dev"
)

var (
	// ErrNoPythonVersion is returned when a version expression names no version.
	ErrNoPythonVersion = errors.New("no python version found")

	versionClausePattern = regexp.MustCompile(`^\s*(===|==|~=|!=|>=|<=|>|<)?\s*v?([0-9]+)(?:\.([0-9]+|\*))?`)
)

type (
	// Project is the subset of pyproject.toml the pipeline reads and writes.
	Project struct {
		Name            string
		Version         string
		Description     string
		RequiresPython  string
		Dependencies    []string
		DevDependencies []string
	}

	pyproject struct {
		Project struct {
			Name           string   `toml:"name"`
			Version        string   `toml:"version"`
			Description    string   `toml:"description,omitempty"`
			RequiresPython string   `toml:"requires-python,omitempty"`
			Dependencies   []string `toml:"dependencies"`
		} `toml:"project"`
		DependencyGroups map[string][]any `toml:"dependency-groups,omitempty"`
	}
)

// ParseProject reads the pyproject.toml file at path.
func ParseProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw pyproject
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	p := &Project{
		Name:           raw.Project.Name,
		Version:        raw.Project.Version,
		Description:    raw.Project.Description,
		RequiresPython: raw.Project.RequiresPython,
		Dependencies:   raw.Project.Dependencies,
	}
	// Group entries may also be {include-group = "..."} tables; only plain
	// requirement strings are dependencies.
	for _, entry := range raw.DependencyGroups[DevGroup] {
		if s, ok := entry.(string); ok {
			p.DevDependencies = append(p.DevDependencies, s)
		}
	}
	return p, nil
}

// ReadProject reads dir/pyproject.toml.
func ReadProject(dir string) (*Project, error) {
	return ParseProject(filepath.Join(dir, ProjectFileName))
}

// Marshal renders p as a fresh pyproject.toml document.
func (p *Project) Marshal() ([]byte, error) {
	var raw pyproject
	raw.Project.Name = p.Name
	raw.Project.Version = p.Version
	raw.Project.Description = p.Description
	raw.Project.RequiresPython = p.RequiresPython
	raw.Project.Dependencies = p.Dependencies
	if raw.Project.Dependencies == nil {
		raw.Project.Dependencies = []string{}
	}
	if len(p.DevDependencies) > 0 {
		dev := make([]any, len(p.DevDependencies))
		for i, d := range p.DevDependencies {
			dev[i] = d
		}
		raw.DependencyGroups = map[string][]any{DevGroup: dev}
	}

	data, err := toml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ProjectFileName, err)
	}
	return data, nil
}

// Write writes p to dir/pyproject.toml.
func (p *Project) Write(dir string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	return fspath.WriteFileAtomic(filepath.Join(dir, ProjectFileName), data, fspath.FilePerm)
}

// PythonVersion returns the minimum major.minor version allowed by
// RequiresPython.
func (p *Project) PythonVersion() (string, error) {
	return GetPythonVersionFromVersionString(p.RequiresPython)
}

// DevOnlyNames returns the normalized names of dev dependencies that are not
// also runtime dependencies.
func (p *Project) DevOnlyNames() map[string]bool {
	runtime := make(map[string]bool, len(p.Dependencies))
	for _, d := range p.Dependencies {
		runtime[RequirementName(d)] = true
	}
	dev := make(map[string]bool)
	for _, d := range p.DevDependencies {
		if name := RequirementName(d); name != "" && !runtime[name] {
			dev[name] = true
		}
	}
	return dev
}

// AddDependenciesToToml replaces [project].dependencies of
// projectDir/pyproject.toml with the requirements listed in requirementsFile.
// Every other table of the document is kept.
func AddDependenciesToToml(projectDir, requirementsFile string) error {
	reqs, err := ReadRequirements(requirementsFile)
	if err != nil {
		return err
	}
	return SetDependencies(projectDir, reqs)
}

// SetDependencies replaces [project].dependencies of projectDir/pyproject.toml.
func SetDependencies(projectDir string, deps []string) error {
	path := filepath.Join(projectDir, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	project, _ := doc["project"].(map[string]any)
	if project == nil {
		project = map[string]any{}
	}
	if deps == nil {
		deps = []string{}
	}
	project["dependencies"] = deps
	doc["project"] = project

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return fspath.WriteFileAtomic(path, out, fspath.FilePerm)
}

// GetPythonVersionFromVersionString returns the smallest major.minor version
// referenced by a version specifier expression, e.g. ">=3.11,<3.13" -> "3.11".
// A bare major version such as "3" is read as "3.0".
func GetPythonVersionFromVersionString(expr string) (string, error) {
	var lowest string
	for _, clause := range strings.Split(expr, ",") {
		m := versionClausePattern.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		minor := m[3]
		if minor == "" || minor == "*" {
			minor = "0"
		}
		candidate := "v" + m[2] + "." + minor
		if lowest == "" || semver.Compare(candidate, lowest) < 0 {
			lowest = candidate
		}
	}
	if lowest == "" {
		return "", fmt.Errorf("%w in %q", ErrNoPythonVersion, expr)
	}
	return strings.TrimPrefix(lowest, "v"), nil
}
