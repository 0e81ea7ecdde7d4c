// SPDX-License-Identifier: MPL-2.0

package pydeps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

const testProject = `[project]
name = "acme"
version = "3.0"
description = "Acme integration"
requires-python = ">=3.11,<3.13"
dependencies = ["requests>=2.31", "python-dateutil"]

[dependency-groups]
dev = ["pytest>=8", "requests-mock", {include-group = "lint"}]

[tool.uv]
package = false
`

type (
	call struct {
		dir  string
		name string
		args []string
	}

	fakeRunner struct {
		mu    sync.Mutex
		calls []call
		run   func(c call) error
	}
)

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	c := call{dir: dir, name: name, args: args}
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.run == nil {
		return nil, nil
	}
	return nil, f.run(c)
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestParseProject(t *testing.T) {
	t.Parallel()

	p, err := ReadProject(writeProject(t, testProject))
	if err != nil {
		t.Fatalf("ReadProject() error: %v", err)
	}
	if p.Name != "acme" || p.Version != "3.0" || p.RequiresPython != ">=3.11,<3.13" {
		t.Errorf("unexpected project fields: %+v", p)
	}
	if !slices.Equal(p.DevDependencies, []string{"pytest>=8", "requests-mock"}) {
		t.Errorf("DevDependencies = %v", p.DevDependencies)
	}
	dev := p.DevOnlyNames()
	if !dev["pytest"] || !dev["requests-mock"] || dev["requests"] {
		t.Errorf("DevOnlyNames() = %v", dev)
	}
	if v, err := p.PythonVersion(); err != nil || v != "3.11" {
		t.Errorf("PythonVersion() = %q, %v", v, err)
	}
}

func TestProjectMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := &Project{Name: "acme", Version: "1.0", RequiresPython: ">=3.11", DevDependencies: []string{"pytest"}}
	if err := in.Write(dir); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out, err := ReadProject(dir)
	if err != nil {
		t.Fatalf("ReadProject() error: %v", err)
	}
	if out.Name != in.Name || out.Version != in.Version || len(out.Dependencies) != 0 || !slices.Equal(out.DevDependencies, in.DevDependencies) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestGetPythonVersionFromVersionString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{expr: ">=3.11,<3.13", want: "3.11"},
		{expr: "<3.13,>=3.9", want: "3.9"},
		{expr: "==3.11.*", want: "3.11"},
		{expr: "~=3.10.2", want: "3.10"},
		{expr: ">=3", want: "3.0"},
		{expr: "3.12", want: "3.12"},
		{expr: "", wantErr: true},
		{expr: "latest", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			got, err := GetPythonVersionFromVersionString(tt.expr)
			if tt.wantErr {
				if !errors.Is(err, ErrNoPythonVersion) {
					t.Fatalf("error = %v, want ErrNoPythonVersion", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetPythonVersionFromVersionString(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestAddDependenciesToToml(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, testProject)
	req := filepath.Join(t.TempDir(), "requirements.txt")
	content := "# generated\ncertifi==2024.2.2 \\\n    --hash=sha256:abc\n    # via requests\nrequests==2.31.0\n"
	if err := os.WriteFile(req, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := AddDependenciesToToml(dir, req); err != nil {
		t.Fatalf("AddDependenciesToToml() error: %v", err)
	}

	p, err := ReadProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(p.Dependencies, []string{"certifi==2024.2.2", "requests==2.31.0"}) {
		t.Errorf("Dependencies = %v", p.Dependencies)
	}
	if p.Description != "Acme integration" || len(p.DevDependencies) != 2 {
		t.Errorf("other fields must be kept: %+v", p)
	}

	data, err := os.ReadFile(filepath.Join(dir, ProjectFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[tool.uv]") && !strings.Contains(string(data), "[tool]") {
		t.Errorf("unrelated tables must be kept:\n%s", data)
	}
}

func TestRequirementNames(t *testing.T) {
	t.Parallel()

	for spec, want := range map[string]string{
		"Requests[socks]>=2.0":                "requests",
		"python_dateutil==2.9.0":              "python-dateutil",
		"zope.interface ; python_version<'4'": "zope-interface",
		"":                                    "",
	} {
		if got := RequirementName(spec); got != want {
			t.Errorf("RequirementName(%q) = %q, want %q", spec, got, want)
		}
	}

	for file, want := range map[string]string{
		"python_dateutil-2.9.0-py2.py3-none-any.whl": "python-dateutil",
		"requests-2.31.0-py3-none-any.whl":           "requests",
		"pyyaml-6.0.1.tar.gz":                        "pyyaml",
		"my-package-1.0.zip":                         "my-package",
		"README.md":                                  "",
	} {
		if got := ArtifactRequirementName(file); got != want {
			t.Errorf("ArtifactRequirementName(%q) = %q, want %q", file, got, want)
		}
	}
}

func TestFilterRequirements(t *testing.T) {
	t.Parallel()

	in := "# header\ncertifi==1\n    # via requests\npytest==8.0\n    # via -r requirements.in\nrequests==2\n"
	got := string(FilterRequirements([]byte(in), map[string]bool{"pytest": true}))
	want := "# header\ncertifi==1\n    # via requests\nrequests==2\n"
	if got != want {
		t.Errorf("FilterRequirements() = %q, want %q", got, want)
	}
}

func TestCompileCoreIntegrationDependencies(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, testProject)
	out := filepath.Join(t.TempDir(), "requirements.txt")

	var input string
	runner := &fakeRunner{run: func(c call) error {
		for _, a := range c.args {
			if strings.HasSuffix(a, requirementsInFile) {
				data, err := os.ReadFile(a)
				if err != nil {
					return err
				}
				input = string(data)
			}
		}
		locked := "requests==2.31.0\npytest==8.0.0\n    # via -r requirements.in\npython-dateutil==2.9.0\n"
		return os.WriteFile(argAfter(c.args, "--output-file"), []byte(locked), 0o644)
	}}

	res, err := NewResolver(WithRunner(runner))
	if err != nil {
		t.Fatal(err)
	}
	if err := res.CompileCoreIntegrationDependencies(context.Background(), dir, out); err != nil {
		t.Fatalf("CompileCoreIntegrationDependencies() error: %v", err)
	}

	if len(runner.calls) != 1 || runner.calls[0].name != "uv" || runner.calls[0].args[0] != "pip" {
		t.Fatalf("unexpected tool calls: %+v", runner.calls)
	}
	if strings.Contains(input, "pytest") || !strings.Contains(input, "requests>=2.31") {
		t.Errorf("requirements.in must hold runtime dependencies only, got %q", input)
	}

	reqs, err := ReadRequirements(out)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(reqs, []string{"requests==2.31.0", "python-dateutil==2.9.0"}) {
		t.Errorf("locked requirements = %v", reqs)
	}
}

func TestCompileCoreIntegrationDependencies_NoDevGroup(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, "[project]\nname = \"acme\"\nversion = \"1.0\"\ndependencies = [\"requests\"]\n")
	out := filepath.Join(t.TempDir(), "requirements.txt")
	runner := &fakeRunner{run: func(c call) error {
		return os.WriteFile(argAfter(c.args, "--output-file"), []byte("requests==2.31.0\n"), 0o644)
	}}

	res, err := NewResolver(WithRunner(runner), WithCompileCommand("pip-compile --quiet"))
	if err != nil {
		t.Fatal(err)
	}
	if err := res.CompileCoreIntegrationDependencies(context.Background(), dir, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls[0].name != "pip-compile" || runner.calls[0].args[0] != "--quiet" {
		t.Errorf("configured command not used: %+v", runner.calls[0])
	}
}

func TestCompileCoreIntegrationDependencies_NoDependencies(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, "[project]\nname = \"acme\"\nversion = \"1.0\"\ndependencies = []\n")
	out := filepath.Join(t.TempDir(), "requirements.txt")
	runner := &fakeRunner{}

	res, err := NewResolver(WithRunner(runner))
	if err != nil {
		t.Fatal(err)
	}
	if err := res.CompileCoreIntegrationDependencies(context.Background(), dir, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("no tool should run without dependencies, got %d calls", len(runner.calls))
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("empty lock file must be written: %v", err)
	}
}

func TestCompileCoreIntegrationDependencies_ToolFailure(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, testProject)
	runner := &fakeRunner{run: func(call) error {
		return &CommandError{Command: "uv pip compile", Stderr: "No solution found", Err: errors.New("exit status 1")}
	}}

	res, err := NewResolver(WithRunner(runner))
	if err != nil {
		t.Fatal(err)
	}
	err = res.CompileCoreIntegrationDependencies(context.Background(), dir, filepath.Join(t.TempDir(), "r.txt"))
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("error = %v, want ErrResolution", err)
	}
	if !strings.Contains(err.Error(), "No solution found") {
		t.Errorf("tool stderr must be surfaced: %v", err)
	}
}

func TestDownloadWheelsFromRequirements(t *testing.T) {
	t.Parallel()

	req := filepath.Join(t.TempDir(), "requirements.txt")
	if err := os.WriteFile(req, []byte("requests==2.31.0\nTIPCommon==1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "Dependencies")

	var requested string
	runner := &fakeRunner{run: func(c call) error {
		data, err := os.ReadFile(argAfter(c.args, "-r"))
		if err != nil {
			return err
		}
		requested = string(data)
		return os.WriteFile(filepath.Join(argAfter(c.args, "-d"), "requests-2.31.0-py3-none-any.whl"), nil, 0o644)
	}}

	res, err := NewResolver(WithRunner(runner), WithExclude("tipcommon"))
	if err != nil {
		t.Fatal(err)
	}
	if err := res.DownloadWheelsFromRequirements(context.Background(), req, out); err != nil {
		t.Fatalf("DownloadWheelsFromRequirements() error: %v", err)
	}

	if !slices.Contains(runner.calls[0].args, "--only-binary=:all:") {
		t.Errorf("binary-only flag missing: %v", runner.calls[0].args)
	}
	if requested != "requests==2.31.0\n" {
		t.Errorf("requested = %q, excluded package must be skipped", requested)
	}
	if _, err := os.Stat(filepath.Join(out, "requests-2.31.0-py3-none-any.whl")); err != nil {
		t.Error("artifact not downloaded into output dir")
	}
}

func TestDownloadWheelsFromRequirements_Retry(t *testing.T) {
	t.Parallel()

	req := filepath.Join(t.TempDir(), "requirements.txt")
	if err := os.WriteFile(req, []byte("requests==2.31.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	attempts := 0
	runner := &fakeRunner{run: func(call) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	}}

	res, err := NewResolver(WithRunner(runner), WithRetry(3, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := res.DownloadWheelsFromRequirements(context.Background(), req, t.TempDir()); err != nil {
		t.Fatalf("download should succeed on the third attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	attempts = -10
	err = res.DownloadWheelsFromRequirements(context.Background(), req, t.TempDir())
	if !errors.Is(err, ErrDownload) {
		t.Fatalf("error = %v, want ErrDownload after exhausting retries", err)
	}
}

func TestDownloadWheelsFromRequirements_Empty(t *testing.T) {
	t.Parallel()

	req := filepath.Join(t.TempDir(), "requirements.txt")
	if err := os.WriteFile(req, []byte("# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	res, err := NewResolver(WithRunner(runner))
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "deps")
	if err := res.DownloadWheelsFromRequirements(context.Background(), req, out); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 0 {
		t.Error("no tool should run for an empty lock")
	}
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		t.Error("output dir must exist")
	}
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, 5, time.Hour, func(int) (bool, error) {
		calls++
		cancel()
		return true, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSplitCommand_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := NewResolver(WithCompileCommand(`uv "pip`)); err == nil {
		t.Error("unterminated quote must be rejected")
	}
	if _, err := NewResolver(WithDownloadCommand("")); err == nil {
		t.Error("empty command must be rejected")
	}
}
