// SPDX-License-Identifier: MPL-2.0

// Package postbuild holds the steps that run on built integrations: the
// full-details descriptor, the marketplace manifest, and duplicate identifier
// detection across marketplace roots.
package postbuild

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/mod/semver"

	"github.com/soarhub/mp/pkg/fspath"
	"github.com/soarhub/mp/pkg/integration"
)

// FullDetailsExtension is the file extension of the full-details descriptor.
const FullDetailsExtension = ".fulldetails"

type (
	// FullDetails is the consolidated descriptor the platform reads to render
	// an integration's marketplace page without opening every definition.
	FullDetails struct {
		Identifier        string
		DisplayName       string
		Description       string
		Version           string
		PythonVersion     string
		IsCustom          bool
		IsAvailable       bool
		Categories        []string
		DocumentationLink string
		Parameters        []ParameterDetails
		Actions           []ComponentDetails
		Connectors        []ComponentDetails
		Jobs              []ComponentDetails
		Widgets           []ComponentDetails
		ReleaseNotes      []ReleaseNoteDetails
		CustomFamilies    []string
		HasMappingRules   bool
	}

	// ParameterDetails is a parameter as shown in the full details.
	ParameterDetails struct {
		Name         string
		Type         string
		Description  string
		IsMandatory  bool
		DefaultValue string
	}

	// ComponentDetails summarizes one action, connector, job or widget.
	ComponentDetails struct {
		Identifier  string
		Name        string
		Description string
		IsEnabled   bool
		IsCustom    bool
		Parameters  []ParameterDetails
	}

	// ReleaseNoteDetails is a release note entry. PublishTime is in unix
	// milliseconds, zero when the note carries no date.
	ReleaseNoteDetails struct {
		Version     string
		Description string
		PublishTime int64
		New         bool
		Deprecated  bool
	}
)

// FullDetailsName returns the descriptor file name for an integration.
func FullDetailsName(identifier string) string {
	return identifier + FullDetailsExtension
}

// NewFullDetails aggregates every component of it into one descriptor.
// Components are ordered by display name, then by key, and release notes by
// version, newest first, so the output depends only on the integration.
func NewFullDetails(it *integration.Integration) FullDetails {
	fd := FullDetails{
		Identifier:        it.Identifier,
		DisplayName:       it.Metadata.DisplayName,
		Description:       it.Metadata.Description,
		Version:           it.Metadata.Version,
		PythonVersion:     it.Metadata.PythonVersion,
		IsCustom:          it.Metadata.IsCustom,
		IsAvailable:       it.Metadata.IsAvailable,
		Categories:        slices.Clone(it.Metadata.Categories),
		DocumentationLink: it.Metadata.DocumentationLink,
		Parameters:        parameterDetails(it.Parameters),
		HasMappingRules:   len(it.MappingRules) > 0,
	}
	if fd.Categories == nil {
		fd.Categories = []string{}
	}

	fd.Actions = components(it.Actions, func(a integration.ActionMetadata) integration.ScriptMetadata { return a.ScriptMetadata })
	fd.Connectors = components(it.Connectors, func(c integration.ConnectorMetadata) integration.ScriptMetadata { return c.ScriptMetadata })
	fd.Jobs = components(it.Jobs, func(j integration.JobMetadata) integration.ScriptMetadata { return j.ScriptMetadata })
	fd.Widgets = components(it.Widgets, func(w integration.WidgetMetadata) integration.ScriptMetadata { return w.ScriptMetadata })

	fd.ReleaseNotes = make([]ReleaseNoteDetails, 0, len(it.ReleaseNotes))
	for _, n := range it.ReleaseNotes {
		fd.ReleaseNotes = append(fd.ReleaseNotes, ReleaseNoteDetails{
			Version:     n.IntegrationVersion,
			Description: n.Description,
			PublishTime: publishMillis(n.PublishTime),
			New:         n.New,
			Deprecated:  n.Deprecated,
		})
	}
	slices.SortStableFunc(fd.ReleaseNotes, func(a, b ReleaseNoteDetails) int {
		if c := semver.Compare("v"+b.Version, "v"+a.Version); c != 0 {
			return c
		}
		return strings.Compare(a.Description, b.Description)
	})

	fd.CustomFamilies = make([]string, 0, len(it.CustomFamilies))
	for _, f := range it.CustomFamilies {
		fd.CustomFamilies = append(fd.CustomFamilies, f.Family)
	}
	slices.Sort(fd.CustomFamilies)

	return fd
}

// Marshal renders the descriptor as indented JSON with a trailing newline.
func (fd FullDetails) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(fd, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteFullDetails writes the descriptor of it into the built directory dir.
func WriteFullDetails(dir string, it *integration.Integration) error {
	data, err := NewFullDetails(it).Marshal()
	if err != nil {
		return fmt.Errorf("failed to render full details for %s: %w", it.Identifier, err)
	}
	return fspath.WriteFileAtomic(filepath.Join(dir, FullDetailsName(it.Identifier)), data, fspath.FilePerm)
}

func components[T any](m map[string]T, script func(T) integration.ScriptMetadata) []ComponentDetails {
	out := make([]ComponentDetails, 0, len(m))
	for key, c := range m {
		s := script(c)
		out = append(out, ComponentDetails{
			Identifier:  key,
			Name:        s.Name,
			Description: s.Description,
			IsEnabled:   s.IsEnabled,
			IsCustom:    s.IsCustom,
			Parameters:  parameterDetails(s.Parameters),
		})
	}
	slices.SortFunc(out, func(a, b ComponentDetails) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Identifier, b.Identifier)
	})
	return out
}

func parameterDetails(params []integration.Parameter) []ParameterDetails {
	out := make([]ParameterDetails, 0, len(params))
	for _, p := range params {
		out = append(out, ParameterDetails{
			Name:         p.Name,
			Type:         p.Type.String(),
			Description:  p.Description,
			IsMandatory:  p.IsMandatory,
			DefaultValue: integration.FormatDefault(p.DefaultValue),
		})
	}
	return out
}

func publishMillis(date string) int64 {
	if date == "" {
		return 0
	}
	t, err := integration.ParsePublishTime(date)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
