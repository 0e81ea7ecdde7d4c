// SPDX-License-Identifier: MPL-2.0

// Package marketplace drives builds over the commercial and community
// marketplace roots.
//
// Integrations are independent, so they are restructured concurrently by a
// bounded worker pool. Each output root gets its manifest written once, after
// every integration of the pass has finished, and the pass ends with the
// duplicate identifier check across both roots.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/internal/restructure"
)

const (
	// Commercial is the name of the commercial marketplace root.
	Commercial = "commercial"
	// Community is the name of the community marketplace root.
	Community = "community"
)

// ErrOutputInsideRoot is returned when the output directory, or the output
// root of either marketplace, overlaps a marketplace root.
var ErrOutputInsideRoot = errors.New("output directory is inside a marketplace root")

type (
	// Restructurer builds and deconstructs single integrations.
	// *restructure.Builder is the production implementation.
	Restructurer interface {
		BuildIntegration(ctx context.Context, path, outDir string) (*restructure.Result, error)
		DeconstructIntegration(ctx context.Context, path, outDir string) (*restructure.Result, error)
	}

	// Roots locates both marketplace roots. An empty path disables a root.
	Roots struct {
		Commercial string
		Community  string
	}

	// Marketplace restructures every integration of both roots into an
	// output directory, one subdirectory per root.
	Marketplace struct {
		roots        Roots
		outDir       string
		builder      Restructurer
		workers      int
		manifestName string
		selected     map[string]bool
		logger       *log.Logger
	}

	// Option configures a Marketplace.
	Option func(*Marketplace)

	// Failure is an integration whose restructuring failed.
	Failure struct {
		Marketplace string
		Path        string
		Err         error
	}

	// Report summarizes one pass.
	Report struct {
		Built   []*restructure.Result
		Failed  []Failure
		Skipped []string
	}

	root struct {
		name string
		path string
	}

	task struct {
		root   root
		path   string
		outDir string
	}
)

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Marketplace, f.Path, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Err joins every failure of the pass, or returns nil.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// WithBuilder sets the restructurer.
func WithBuilder(b Restructurer) Option {
	return func(m *Marketplace) { m.builder = b }
}

// WithWorkers bounds the number of integrations processed at once. Zero or
// less selects runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(m *Marketplace) { m.workers = n }
}

// WithManifestName sets the manifest file name written to each output root.
func WithManifestName(name string) Option {
	return func(m *Marketplace) {
		if name != "" {
			m.manifestName = name
		}
	}
}

// WithSelection restricts the pass to integrations whose directory name is
// listed. Other integrations are reported as skipped.
func WithSelection(names ...string) Option {
	return func(m *Marketplace) {
		if len(names) == 0 {
			m.selected = nil
			return
		}
		m.selected = make(map[string]bool, len(names))
		for _, n := range names {
			m.selected[n] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Marketplace) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a Marketplace writing into outDir. Without WithBuilder it uses
// a restructure.Builder with default settings.
func New(roots Roots, outDir string, opts ...Option) (*Marketplace, error) {
	m := &Marketplace{
		roots:        roots,
		outDir:       outDir,
		manifestName: postbuild.DefaultManifestName,
		logger:       log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = runtime.NumCPU()
	}
	if outDir == "" {
		return nil, errors.New("output directory is required")
	}
	for _, r := range m.rootList() {
		if within(r.path, outDir) {
			return nil, fmt.Errorf("%w: %s", ErrOutputInsideRoot, r.path)
		}
		for _, name := range []string{Commercial, Community} {
			out := m.OutputRoot(name)
			if within(out, r.path) || within(r.path, out) {
				return nil, fmt.Errorf("%w: %s overlaps %s output %s", ErrOutputInsideRoot, r.path, name, out)
			}
		}
	}
	if m.builder == nil {
		b, err := restructure.NewBuilder(restructure.WithLogger(m.logger))
		if err != nil {
			return nil, err
		}
		m.builder = b
	}
	return m, nil
}

// OutputRoot returns the output directory of the named marketplace root.
func (m *Marketplace) OutputRoot(name string) string {
	return filepath.Join(m.outDir, name)
}

// Build builds every integration of both roots, writes each output root's
// manifest from the integrations that built, and checks identifiers for
// duplicates. A selective pass merges its integrations into the existing
// manifest instead of replacing it. Integration failures are collected in the report; the returned
// error is reserved for failures of the pass itself, duplicates included.
func (m *Marketplace) Build(ctx context.Context) (*Report, error) {
	report, err := m.run(ctx, m.builder.BuildIntegration)
	if err != nil {
		return report, err
	}

	for _, r := range m.rootList() {
		var entries []postbuild.ManifestEntry
		for _, res := range report.Built {
			if within(m.OutputRoot(r.name), res.Output) {
				entries = append(entries, postbuild.ManifestEntry{Identifier: res.Identifier, DisplayName: res.DisplayName})
			}
		}
		path := filepath.Join(m.OutputRoot(r.name), m.manifestName)
		if m.selected != nil {
			if entries, err = mergeManifest(path, entries); err != nil {
				return report, err
			}
		}
		if err := postbuild.WriteManifest(path, entries); err != nil {
			return report, fmt.Errorf("failed to write %s manifest: %w", r.name, err)
		}
		m.logger.Info("manifest written", "marketplace", r.name, "integrations", len(entries))
	}

	if err := postbuild.RaiseErrorsForDuplicateIntegrations(
		m.OutputRoot(Commercial), m.OutputRoot(Community), m.manifestName,
	); err != nil {
		return report, err
	}
	return report, nil
}

// mergeManifest adds entries to the manifest at path, replacing listed
// integrations with the same identifier.
func mergeManifest(path string, entries []postbuild.ManifestEntry) ([]postbuild.ManifestEntry, error) {
	existing, err := postbuild.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	rebuilt := make(map[string]bool, len(entries))
	for _, e := range entries {
		rebuilt[e.Identifier] = true
	}
	merged := make([]postbuild.ManifestEntry, 0, len(existing)+len(entries))
	for _, e := range existing {
		if !rebuilt[e.Identifier] {
			merged = append(merged, e)
		}
	}
	return append(merged, entries...), nil
}

// Deconstruct produces the non-built layout of every integration of both roots.
func (m *Marketplace) Deconstruct(ctx context.Context) (*Report, error) {
	return m.run(ctx, m.builder.DeconstructIntegration)
}

func (m *Marketplace) run(ctx context.Context, op func(context.Context, string, string) (*restructure.Result, error)) (*Report, error) {
	report := &Report{}
	tasks, err := m.plan(report)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(m.workers)
	for _, t := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := op(ctx, t.path, t.outDir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.logger.Error("failed", "marketplace", t.root.name, "integration", filepath.Base(t.path), "err", err)
				report.Failed = append(report.Failed, Failure{Marketplace: t.root.name, Path: t.path, Err: err})
				return nil
			}
			report.Built = append(report.Built, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Built, func(i, j int) bool { return report.Built[i].Output < report.Built[j].Output })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })
	sort.Strings(report.Skipped)
	return report, nil
}

// plan discovers every integration of both roots and maps it to its output
// directory, <out>/<marketplace>/<path relative to the root>.
func (m *Marketplace) plan(report *Report) ([]task, error) {
	var tasks []task
	for _, r := range m.rootList() {
		targets, err := Discover(r.path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.name, err)
		}
		report.Skipped = append(report.Skipped, targets.Skipped...)

		for _, p := range targets.All() {
			if m.selected != nil && !m.selected[filepath.Base(p)] {
				report.Skipped = append(report.Skipped, p)
				continue
			}
			rel, err := filepath.Rel(r.path, p)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task{root: r, path: p, outDir: filepath.Join(m.OutputRoot(r.name), rel)})
		}
		m.logger.Debug("discovered", "marketplace", r.name,
			"integrations", len(targets.Integrations), "groups", len(targets.Groups))
	}
	return tasks, nil
}

func (m *Marketplace) rootList() []root {
	var roots []root
	if m.roots.Commercial != "" {
		roots = append(roots, root{name: Commercial, path: m.roots.Commercial})
	}
	if m.roots.Community != "" {
		roots = append(roots, root{name: Community, path: m.roots.Community})
	}
	return roots
}

// within reports whether path is parent or lies below it.
func within(parent, path string) bool {
	absParent, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absParent, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
