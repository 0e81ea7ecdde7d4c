// SPDX-License-Identifier: MPL-2.0

package postbuild

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soarhub/mp/internal/testutil"
	itest "github.com/soarhub/mp/internal/testutil/integrationtest"
	"github.com/soarhub/mp/pkg/integration"
)

func TestNewFullDetails(t *testing.T) {
	t.Parallel()

	in := itest.NewTestIntegration(t, "Acme",
		itest.WithAction("enrich", "Enrich Entities", integration.Parameter{Name: "Limit", Type: integration.ParamInteger, DefaultValue: 5}),
		itest.WithAction("block", "Block IP"),
		itest.WithConnector("alerts", "Alerts Connector"),
		itest.WithReleaseNote("1.0", "2024-01-02", "Initial"),
		itest.WithReleaseNote("10.0", "", "Rewrite"),
		itest.WithReleaseNote("2.0", "2024-05-01", "Second"),
	)

	fd := NewFullDetails(in)

	var names []string
	for _, a := range fd.Actions {
		names = append(names, a.Name)
	}
	if got := strings.Join(names, ","); got != "Block IP,Enrich Entities,Ping" {
		t.Errorf("actions = %s, want sorted by name", got)
	}
	if p := fd.Actions[1].Parameters[0]; p.Type != "integer" || p.DefaultValue != "5" {
		t.Errorf("parameter details = %+v", p)
	}
	if len(fd.Connectors) != 1 || len(fd.Jobs) != 0 || fd.Jobs == nil {
		t.Errorf("connectors = %v, jobs = %v", fd.Connectors, fd.Jobs)
	}

	var versions []string
	for _, n := range fd.ReleaseNotes {
		versions = append(versions, n.Version)
	}
	if got := strings.Join(versions, ","); got != "10.0,2.0,1.0" {
		t.Errorf("release note versions = %s, want newest first", got)
	}
	if fd.ReleaseNotes[1].PublishTime != 1714521600000 || fd.ReleaseNotes[0].PublishTime != 0 {
		t.Errorf("publish times = %+v", fd.ReleaseNotes)
	}
}

func TestNewFullDetails_Deterministic(t *testing.T) {
	t.Parallel()

	in := itest.NewTestIntegration(t, "Acme",
		itest.WithAction("a", "Same Name"),
		itest.WithAction("b", "Same Name"),
		itest.WithConnector("z", "Z"),
		itest.WithConnector("y", "Y"),
	)

	first, err := NewFullDetails(in).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		again, err := NewFullDetails(in).Marshal()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("full details output is not deterministic")
		}
	}
}

func TestWriteFullDetails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := itest.NewTestIntegration(t, "Acme")
	if err := WriteFullDetails(dir, in); err != nil {
		t.Fatalf("WriteFullDetails() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Acme.fulldetails"))
	if err != nil {
		t.Fatal(err)
	}
	var fd FullDetails
	if err := json.Unmarshal(data, &fd); err != nil {
		t.Fatalf("full details is not JSON: %v", err)
	}
	if fd.Identifier != "Acme" || len(fd.Actions) != 1 {
		t.Errorf("decoded full details = %+v", fd)
	}
}

func TestManifest_WriteSortsAndReads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", DefaultManifestName)
	entries := []ManifestEntry{
		{Identifier: "Zeta", DisplayName: "Zeta"},
		{Identifier: "Acme", DisplayName: "Acme TI"},
	}
	if err := WriteManifest(path, entries); err != nil {
		t.Fatalf("WriteManifest() error: %v", err)
	}
	if entries[0].Identifier != "Zeta" {
		t.Error("WriteManifest must not reorder the caller's slice")
	}

	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest() error: %v", err)
	}
	if len(got) != 2 || got[0].Identifier != "Acme" || got[1].DisplayName != "Zeta" {
		t.Errorf("ReadManifest() = %+v", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"DisplayName": "Acme TI"`) {
		t.Errorf("manifest keys must be PascalCase:\n%s", data)
	}
}

func TestReadManifest_Missing(t *testing.T) {
	t.Parallel()

	got, err := ReadManifest(filepath.Join(t.TempDir(), DefaultManifestName))
	if err != nil || len(got) != 0 {
		t.Errorf("ReadManifest() on missing file = %v, %v", got, err)
	}
}

func TestReadManifest_Malformed(t *testing.T) {
	t.Parallel()

	root := testutil.WriteTree(t, t.TempDir(), map[string]string{DefaultManifestName: "{"})
	if _, err := ReadManifest(filepath.Join(root, DefaultManifestName)); err == nil {
		t.Error("expected parse error")
	}
}

func TestRaiseErrorsForDuplicateIntegrations(t *testing.T) {
	t.Parallel()

	manifest := func(ids ...string) string {
		entries := make([]ManifestEntry, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, ManifestEntry{Identifier: id, DisplayName: id})
		}
		data, err := json.Marshal(entries)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	tests := []struct {
		name       string
		commercial []string
		community  []string
		wantMsgs   []string
	}{
		{
			name:       "unique",
			commercial: []string{"Acme", "Zeta"},
			community:  []string{"Beta"},
		},
		{
			name:       "same root",
			commercial: []string{"Acme", "Acme"},
			community:  []string{"Beta"},
			wantMsgs:   []string{"multiple integrations with the same identifier"},
		},
		{
			name:       "cross root",
			commercial: []string{"Acme"},
			community:  []string{"Acme"},
			wantMsgs:   []string{"found in more than one marketplace"},
		},
		{
			name:       "both",
			commercial: []string{"Acme"},
			community:  []string{"Acme", "Beta", "Beta"},
			wantMsgs:   []string{"multiple integrations with the same identifier", "found in more than one marketplace"},
		},
		{
			name:       "identifiers are case-sensitive",
			commercial: []string{"Acme"},
			community:  []string{"acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			commercial := testutil.WriteTree(t, t.TempDir(), map[string]string{DefaultManifestName: manifest(tt.commercial...)})
			community := testutil.WriteTree(t, t.TempDir(), map[string]string{DefaultManifestName: manifest(tt.community...)})

			err := RaiseErrorsForDuplicateIntegrations(commercial, community, "")
			if len(tt.wantMsgs) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrDuplicateIntegration) {
				t.Fatalf("error = %v, want ErrDuplicateIntegration", err)
			}
			var de *DuplicateIntegrationError
			if !errors.As(err, &de) {
				t.Errorf("error must carry a DuplicateIntegrationError: %v", err)
			}
			for _, msg := range tt.wantMsgs {
				if !strings.Contains(err.Error(), msg) {
					t.Errorf("error %q does not mention %q", err, msg)
				}
			}
		})
	}
}

func TestRaiseErrorsForDuplicateIntegrations_MissingManifest(t *testing.T) {
	t.Parallel()

	if err := RaiseErrorsForDuplicateIntegrations(t.TempDir(), t.TempDir(), "custom.json"); err != nil {
		t.Errorf("missing manifests must count as empty: %v", err)
	}
}
