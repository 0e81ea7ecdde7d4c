// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Settings: {
	name:     string & != ""
	workers?: int & >=1
	tags?: [...string]
}
`

type settings struct {
	Name    string   `json:"name"`
	Workers int      `json:"workers"`
	Tags    []string `json:"tags"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	got, err := Decode[settings](testSchema, []byte("name: \"a\"\nworkers: 3\ntags: [\"x\"]\n"), "#Settings")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Name != "a" || got.Workers != 3 || len(got.Tags) != 1 {
		t.Errorf("Decode() = %+v", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		opts    []Option
		want    error
		message string
	}{
		{name: "constraint", data: "name: \"a\"\nworkers: 0\n", want: ErrInvalid, message: "workers"},
		{name: "unknown field", data: "name: \"a\"\nextra: 1\n", want: ErrInvalid, message: "extra"},
		{name: "syntax", data: "name: [\n", message: "settings.cue"},
		{name: "missing required", data: "workers: 2\n", want: ErrInvalid},
		{name: "too large", data: "name: \"abc\"\n", opts: []Option{WithMaxSize(4)}, want: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := append([]Option{WithFilename("settings.cue")}, tt.opts...)
			_, err := Decode[settings](testSchema, []byte(tt.data), "#Settings", opts...)
			if err == nil {
				t.Fatal("Decode() succeeded, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Decode() error = %q, want it to contain %q", err, tt.message)
			}
		})
	}
}

func TestDecode_Partial(t *testing.T) {
	t.Parallel()

	schema := "#S: { name: string | *\"dflt\", count?: int }"
	got, err := Decode[map[string]any](schema, []byte("count: 2\n"), "#S", WithPartial())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if (*got)["name"] != "dflt" {
		t.Errorf("name = %v, want default", (*got)["name"])
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"ui"}, "ui"},
		{[]string{"ui", "verbose"}, "ui.verbose"},
		{[]string{"build", "ignore_patterns", "2"}, "build.ignore_patterns[2]"},
		{[]string{"a", "0", "b", "11"}, "a[0].b[11]"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFormatError_NonCUE(t *testing.T) {
	t.Parallel()

	if FormatError(nil, "x.cue") != nil {
		t.Error("FormatError(nil) != nil")
	}
	base := errors.New("boom")
	err := FormatError(base, "x.cue")
	if !errors.Is(err, base) || !strings.HasPrefix(err.Error(), "x.cue: ") {
		t.Errorf("FormatError() = %v", err)
	}
	if errors.Is(err, ErrInvalid) {
		t.Errorf("FormatError() = %v, a plain error must not become a ValidationError", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	one := &ValidationError{File: "c.cue", Issues: []Issue{{Path: "ui.verbose", Message: "expected bool"}}}
	if got, want := one.Error(), "c.cue: ui.verbose: expected bool"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	two := &ValidationError{File: "c.cue", Issues: []Issue{{Message: "a"}, {Path: "b", Message: "c"}}}
	if got, want := two.Error(), "c.cue: validation failed:\n  a\n  b: c"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
