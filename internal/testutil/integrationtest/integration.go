// SPDX-License-Identifier: MPL-2.0

package integrationtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/soarhub/mp/pkg/integration"
)

// Option configures a test integration.
type Option func(*integration.Integration)

// NewTestIntegration returns a validated integration with the minimal
// content every integration needs: a "Verify SSL" parameter defaulting to
// true and an enabled "Ping" action. The test fails if options produce an
// invalid integration.
func NewTestIntegration(t testing.TB, identifier string, opts ...Option) *integration.Integration {
	t.Helper()

	in := integration.Integration{
		Identifier: identifier,
		Metadata: integration.Metadata{
			DisplayName: identifier,
			Description: identifier + " integration.",
			Version:     "1.0",
			IsAvailable: true,
		},
		Parameters: []integration.Parameter{
			{Name: "Verify SSL", Type: integration.ParamBoolean, DefaultValue: true},
		},
		Actions: map[string]integration.ActionMetadata{
			"ping": {ScriptMetadata: integration.ScriptMetadata{FileName: "ping", Name: "Ping", IsEnabled: true}},
		},
	}
	for _, opt := range opts {
		opt(&in)
	}

	it, err := integration.New(in)
	if err != nil {
		t.Fatalf("invalid test integration %s: %v", identifier, err)
	}
	return it
}

// WithDisplayName sets the display name.
func WithDisplayName(name string) Option {
	return func(it *integration.Integration) { it.Metadata.DisplayName = name }
}

// WithVersion sets the integration version.
func WithVersion(v string) Option {
	return func(it *integration.Integration) { it.Metadata.Version = v }
}

// WithAction adds an enabled action with the given key and display name.
func WithAction(key, name string, params ...integration.Parameter) Option {
	return func(it *integration.Integration) {
		if it.Actions == nil {
			it.Actions = map[string]integration.ActionMetadata{}
		}
		it.Actions[key] = integration.ActionMetadata{ScriptMetadata: integration.ScriptMetadata{
			FileName: key, Name: name, IsEnabled: true, Parameters: params,
		}}
	}
}

// WithConnector adds an enabled connector with the given key and display name.
func WithConnector(key, name string) Option {
	return func(it *integration.Integration) {
		if it.Connectors == nil {
			it.Connectors = map[string]integration.ConnectorMetadata{}
		}
		it.Connectors[key] = integration.ConnectorMetadata{ScriptMetadata: integration.ScriptMetadata{
			FileName: key, Name: name, IsEnabled: true,
		}}
	}
}

// WithReleaseNote adds a release note for version v published on date.
func WithReleaseNote(v, date, description string) Option {
	return func(it *integration.Integration) {
		it.ReleaseNotes = append(it.ReleaseNotes, integration.ReleaseNote{
			Description: description, IntegrationVersion: v, PublishTime: date,
		})
	}
}

// NonBuiltFiles returns the source tree of a valid non-built integration:
// a ping action and a connector importing a common module through relative
// imports, a nested core package, and one runtime plus one dev dependency.
func NonBuiltFiles(identifier string) map[string]string {
	manager := identifier + "Manager"
	return map[string]string{
		"pyproject.toml": fmt.Sprintf(`[project]
name = %q
version = "1.0"
description = "%s integration."
requires-python = ">=3.11"
dependencies = ["requests>=2.31"]

[dependency-groups]
dev = ["pytest>=8"]
`, strings.ToLower(identifier), identifier),
		"definition.yaml": fmt.Sprintf(`identifier: %s
name: %s
description: %s integration.
parameters:
  - name: API Root
    type: string
    is_mandatory: true
  - name: Verify SSL
    type: boolean
    default_value: true
`, identifier, identifier, identifier),
		"release_notes.yaml": `- description: Initial release
  integration_version: "1.0"
  publish_time: "2024-05-01"
`,
		"actions/ping.yaml": "name: Ping\ndescription: Test connectivity.\n",
		"actions/ping.py": fmt.Sprintf(`from TIPCommon.extraction import extract_configuration_param

from ..core.%s import %s


def main():
    %s().test_connectivity()
`, manager, manager, manager),
		"connectors/alerts.yaml": "name: Alerts Connector\ndescription: Pull alerts.\n",
		"connectors/alerts.py": fmt.Sprintf(`from ..core.%s import (
    %s,
)
from ..core import constants
`, manager, manager),
		"core/__init__.py": "",
		"core/" + manager + ".py": `import requests

from .constants import TIMEOUT


class ` + manager + `:
    def test_connectivity(self):
        return requests.get("https://example.com", timeout=TIMEOUT)
`,
		"core/constants.py":              "TIMEOUT = 30\n",
		"core/__pycache__/constants.pyc": "\x00",
		"tests/test_ping.py":             "def test_ping(): ...\n",
		"widgets/.gitkeep":               "",
	}
}
