// SPDX-License-Identifier: MPL-2.0

package marketplace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soarhub/mp/internal/postbuild"
	"github.com/soarhub/mp/internal/restructure"
	"github.com/soarhub/mp/internal/testutil"
	itest "github.com/soarhub/mp/internal/testutil/integrationtest"
)

const minimalProject = "[project]\nname = \"x\"\nversion = \"1.0\"\n"

// fakeRestructurer records calls and creates the output directory.
type fakeRestructurer struct {
	mu     sync.Mutex
	active int
	peak   int
	calls  []string
	fail   map[string]error
	ids    map[string]string
	delay  time.Duration
}

func (f *fakeRestructurer) do(path, outDir string) (*restructure.Result, error) {
	name := filepath.Base(path)

	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.active++
	f.peak = max(f.peak, f.active)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	time.Sleep(f.delay)
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	id := name
	if override, ok := f.ids[name]; ok {
		id = override
	}
	return &restructure.Result{Identifier: id, DisplayName: id + " Display", Source: path, Output: outDir}, nil
}

func (f *fakeRestructurer) BuildIntegration(_ context.Context, path, outDir string) (*restructure.Result, error) {
	return f.do(path, outDir)
}

func (f *fakeRestructurer) DeconstructIntegration(_ context.Context, path, outDir string) (*restructure.Result, error) {
	return f.do(path, outDir)
}

// fakeResolver writes an empty lock file and vendors nothing.
type fakeResolver struct{}

func (fakeResolver) CompileCoreIntegrationDependencies(_ context.Context, _, out string) error {
	return os.WriteFile(out, nil, 0o644)
}

func (fakeResolver) DownloadWheelsFromRequirements(_ context.Context, _, outDir string) error {
	return os.MkdirAll(outDir, 0o755)
}

// writeRoot creates a marketplace root with one project file per listed
// integration path.
func writeRoot(t *testing.T, integrations ...string) string {
	t.Helper()
	files := map[string]string{}
	for _, p := range integrations {
		files[p+"/pyproject.toml"] = minimalProject
	}
	return testutil.WriteTree(t, t.TempDir(), files)
}

func manifestIDs(t *testing.T, path string) []string {
	t.Helper()
	entries, err := postbuild.ReadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Identifier)
	}
	return ids
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, t.TempDir(), map[string]string{
		"Acme/pyproject.toml":               minimalProject,
		"Cloud/Beta/pyproject.toml":         minimalProject,
		"Cloud/Gamma/Integration-Gamma.def": "{}",
		"Cloud/README.md":                   "",
		"docs/index.md":                     "",
		".git/config":                       "",
		"notes.txt":                         "",
	})

	targets, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	if want := []string{filepath.Join(root, "Acme")}; !reflect.DeepEqual(targets.Integrations, want) {
		t.Errorf("Integrations = %v, want %v", targets.Integrations, want)
	}
	if len(targets.Groups) != 1 || targets.Groups[0].Path != filepath.Join(root, "Cloud") || len(targets.Groups[0].Integrations) != 2 {
		t.Errorf("Groups = %+v", targets.Groups)
	}
	if want := []string{filepath.Join(root, "docs")}; !reflect.DeepEqual(targets.Skipped, want) {
		t.Errorf("Skipped = %v, want %v", targets.Skipped, want)
	}

	want := []string{
		filepath.Join(root, "Acme"),
		filepath.Join(root, "Cloud", "Beta"),
		filepath.Join(root, "Cloud", "Gamma"),
	}
	if got := targets.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	t.Parallel()

	if _, err := Discover(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestBuild_WritesOutputsAndManifests(t *testing.T) {
	t.Parallel()

	commercial := writeRoot(t, "Acme", "Cloud/Beta")
	community := writeRoot(t, "Delta")
	out := t.TempDir()
	fake := &fakeRestructurer{}

	m, err := New(Roots{Commercial: commercial, Community: community}, out, WithBuilder(fake))
	if err != nil {
		t.Fatal(err)
	}
	report, err := m.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(report.Built) != 3 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}

	for _, p := range []string{"commercial/Acme", "commercial/Cloud/Beta", "community/Delta"} {
		if info, err := os.Stat(filepath.Join(out, filepath.FromSlash(p))); err != nil || !info.IsDir() {
			t.Errorf("missing output %s", p)
		}
	}
	if got := manifestIDs(t, filepath.Join(out, Commercial, postbuild.DefaultManifestName)); !reflect.DeepEqual(got, []string{"Acme", "Beta"}) {
		t.Errorf("commercial manifest = %v", got)
	}
	if got := manifestIDs(t, filepath.Join(out, Community, postbuild.DefaultManifestName)); !reflect.DeepEqual(got, []string{"Delta"}) {
		t.Errorf("community manifest = %v", got)
	}
}

func TestBuild_CollectsFailures(t *testing.T) {
	t.Parallel()

	commercial := writeRoot(t, "Acme", "Beta", "Gamma")
	out := t.TempDir()
	boom := errors.New("boom")
	fake := &fakeRestructurer{fail: map[string]error{"Beta": boom}}

	m, err := New(Roots{Commercial: commercial}, out, WithBuilder(fake))
	if err != nil {
		t.Fatal(err)
	}
	report, err := m.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(report.Built) != 2 || len(report.Failed) != 1 || report.Failed[0].Marketplace != Commercial {
		t.Fatalf("report = %+v", report)
	}
	if !errors.Is(report.Err(), boom) || !strings.Contains(report.Err().Error(), "Beta") {
		t.Errorf("report.Err() = %v", report.Err())
	}
	if got := manifestIDs(t, filepath.Join(out, Commercial, postbuild.DefaultManifestName)); !reflect.DeepEqual(got, []string{"Acme", "Gamma"}) {
		t.Errorf("manifest must list only successes, got %v", got)
	}
}

func TestBuild_Duplicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		community []string
		ids       map[string]string
		wantMsg   string
	}{
		{
			name:      "across roots",
			community: []string{"Acme"},
			wantMsg:   "found in more than one marketplace",
		},
		{
			name:      "within root",
			community: []string{"Delta"},
			ids:       map[string]string{"Beta": "Acme"},
			wantMsg:   "multiple integrations with the same identifier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := New(
				Roots{Commercial: writeRoot(t, "Acme", "Beta"), Community: writeRoot(t, tt.community...)},
				t.TempDir(),
				WithBuilder(&fakeRestructurer{ids: tt.ids}),
			)
			if err != nil {
				t.Fatal(err)
			}
			_, err = m.Build(context.Background())
			if !errors.Is(err, postbuild.ErrDuplicateIntegration) {
				t.Fatalf("Build() error = %v, want ErrDuplicateIntegration", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestBuild_BoundedWorkers(t *testing.T) {
	t.Parallel()

	commercial := writeRoot(t, "A", "B", "C", "D", "E", "F")
	fake := &fakeRestructurer{delay: 20 * time.Millisecond}

	m, err := New(Roots{Commercial: commercial}, t.TempDir(), WithBuilder(fake), WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Build(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fake.calls) != 6 {
		t.Errorf("calls = %v", fake.calls)
	}
	if fake.peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", fake.peak)
	}
}

func TestBuild_Selection(t *testing.T) {
	t.Parallel()

	commercial := writeRoot(t, "Acme", "Beta")
	fake := &fakeRestructurer{}
	m, err := New(Roots{Commercial: commercial}, t.TempDir(), WithBuilder(fake), WithSelection("Beta"))
	if err != nil {
		t.Fatal(err)
	}
	report, err := m.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fake.calls, []string{"Beta"}) {
		t.Errorf("calls = %v", fake.calls)
	}
	if !reflect.DeepEqual(report.Skipped, []string{filepath.Join(commercial, "Acme")}) {
		t.Errorf("skipped = %v", report.Skipped)
	}
}

func TestBuild_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := New(Roots{Commercial: writeRoot(t, "Acme")}, t.TempDir(), WithBuilder(&fakeRestructurer{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Build(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want context.Canceled", err)
	}
}

func TestNew_OutputInsideRoot(t *testing.T) {
	t.Parallel()

	root := writeRoot(t, "Acme")
	if _, err := New(Roots{Community: root}, filepath.Join(root, "out"), WithBuilder(&fakeRestructurer{})); !errors.Is(err, ErrOutputInsideRoot) {
		t.Errorf("New() error = %v, want ErrOutputInsideRoot", err)
	}
}

func TestNew_OutputOverlapsRoot(t *testing.T) {
	t.Parallel()

	base := testutil.WriteTree(t, t.TempDir(), map[string]string{
		"commercial/Acme/pyproject.toml": minimalProject,
		"community/Zeta/pyproject.toml":  minimalProject,
	})
	commercial := filepath.Join(base, "commercial")
	community := filepath.Join(base, "community")

	tests := []struct {
		name  string
		roots Roots
	}{
		{"output root is the commercial root", Roots{Commercial: commercial, Community: community}},
		{"output root is the community root", Roots{Community: community}},
		{"root inside an output root", Roots{Commercial: filepath.Join(community, "Zeta")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.roots, base, WithBuilder(&fakeRestructurer{})); !errors.Is(err, ErrOutputInsideRoot) {
				t.Errorf("New() error = %v, want ErrOutputInsideRoot", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(commercial, "Acme", "pyproject.toml")); err != nil {
		t.Errorf("source integration touched: %v", err)
	}
}

func TestBuild_SelectionMergesManifest(t *testing.T) {
	t.Parallel()

	commercial := writeRoot(t, "Acme", "Beta")
	out := t.TempDir()
	manifest := filepath.Join(out, Commercial, postbuild.DefaultManifestName)
	if err := postbuild.WriteManifest(manifest, []postbuild.ManifestEntry{
		{Identifier: "Acme", DisplayName: "Acme Display"},
		{Identifier: "Beta", DisplayName: "Old Beta"},
	}); err != nil {
		t.Fatal(err)
	}

	m, err := New(Roots{Commercial: commercial}, out, WithBuilder(&fakeRestructurer{}), WithSelection("Beta"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	entries, err := postbuild.ReadManifest(manifest)
	if err != nil {
		t.Fatal(err)
	}
	want := []postbuild.ManifestEntry{
		{Identifier: "Acme", DisplayName: "Acme Display"},
		{Identifier: "Beta", DisplayName: "Beta Display"},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("manifest = %+v, want %+v", entries, want)
	}
}

func TestDeconstruct_WritesNoManifest(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	fake := &fakeRestructurer{}
	m, err := New(Roots{Commercial: writeRoot(t, "Acme")}, out, WithBuilder(fake))
	if err != nil {
		t.Fatal(err)
	}
	report, err := m.Deconstruct(context.Background())
	if err != nil || len(report.Built) != 1 {
		t.Fatalf("Deconstruct() = %+v, %v", report, err)
	}
	if _, err := os.Stat(filepath.Join(out, Commercial, postbuild.DefaultManifestName)); err == nil {
		t.Error("deconstruct must not write a manifest")
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	t.Parallel()

	commercial := testutil.WriteTree(t, t.TempDir(), map[string]string{})
	testutil.WriteTree(t, filepath.Join(commercial, "Acme"), itest.NonBuiltFiles("Acme"))
	testutil.WriteTree(t, filepath.Join(commercial, "Vendors", "Zeta"), itest.NonBuiltFiles("Zeta"))
	out := t.TempDir()

	builder, err := restructure.NewBuilder(restructure.WithResolver(fakeResolver{}))
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(Roots{Commercial: commercial}, out, WithBuilder(builder), WithManifestName("index.json"))
	if err != nil {
		t.Fatal(err)
	}
	report, err := m.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("integration failures: %v", err)
	}

	if got := manifestIDs(t, filepath.Join(out, Commercial, "index.json")); !reflect.DeepEqual(got, []string{"Acme", "Zeta"}) {
		t.Errorf("manifest = %v", got)
	}
	for _, p := range []string{"Acme/Acme.fulldetails", "Vendors/Zeta/Integration-Zeta.def", "Vendors/Zeta/Scripts/ZetaManager.py"} {
		if _, err := os.Stat(filepath.Join(out, Commercial, filepath.FromSlash(p))); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}
