// SPDX-License-Identifier: MPL-2.0

package integration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/soarhub/mp/pkg/fspath"
	"github.com/soarhub/mp/pkg/pydeps"
)

// Non-built layout names.
const (
	DefinitionFile      = "definition.yaml"
	ReleaseNotesFile    = "release_notes.yaml"
	MappingRulesFile    = "ontology_mapping.yaml"
	CustomFamiliesFile  = "custom_families.yaml"
	ActionsDir          = "actions"
	ConnectorsDir       = "connectors"
	JobsDir             = "jobs"
	WidgetsDir          = "widgets"
	CoreDir             = "core"
	componentDefExt     = ".yaml"
	widgetHTMLExt       = ".html"
	packageInitFileName = "__init__.py"
)

type (
	yamlParameter struct {
		Name           string   `yaml:"name"`
		Type           string   `yaml:"type"`
		Description    string   `yaml:"description,omitempty"`
		IsMandatory    bool     `yaml:"is_mandatory"`
		DefaultValue   any      `yaml:"default_value,omitempty"`
		OptionalValues []string `yaml:"optional_values,omitempty"`
	}

	yamlDefinition struct {
		Identifier        string          `yaml:"identifier"`
		Name              string          `yaml:"name"`
		Description       string          `yaml:"description,omitempty"`
		DocumentationLink string          `yaml:"documentation_link,omitempty"`
		Categories        []string        `yaml:"categories,omitempty"`
		IsCustom          bool            `yaml:"is_custom"`
		IsAvailable       *bool           `yaml:"is_available,omitempty"`
		Parameters        []yamlParameter `yaml:"parameters,omitempty"`
	}

	yamlScript struct {
		Name        string          `yaml:"name"`
		Description string          `yaml:"description,omitempty"`
		Version     string          `yaml:"version,omitempty"`
		IsEnabled   *bool           `yaml:"is_enabled,omitempty"`
		IsCustom    bool            `yaml:"is_custom"`
		Parameters  []yamlParameter `yaml:"parameters,omitempty"`
	}

	yamlAction struct {
		yamlScript     `yaml:",inline"`
		IsAsync        bool `yaml:"is_async,omitempty"`
		TimeoutSeconds int  `yaml:"timeout_seconds,omitempty"`
	}

	yamlConnectorRule struct {
		Name string `yaml:"rule_name"`
		Type string `yaml:"rule_type"`
	}

	yamlConnector struct {
		yamlScript                `yaml:",inline"`
		IsConnectorRulesSupported bool                `yaml:"is_connector_rules_supported"`
		Rules                     []yamlConnectorRule `yaml:"rules,omitempty"`
	}

	yamlJob struct {
		yamlScript           `yaml:",inline"`
		RunIntervalInSeconds int `yaml:"run_interval_in_seconds,omitempty"`
	}

	yamlWidgetCondition struct {
		FieldName string `yaml:"field_name"`
		Value     string `yaml:"value"`
		MatchType string `yaml:"match_type"`
	}

	yamlWidgetConditionGroup struct {
		LogicalOperator string                `yaml:"logical_operator,omitempty"`
		Conditions      []yamlWidgetCondition `yaml:"conditions,omitempty"`
	}

	yamlWidget struct {
		yamlScript       `yaml:",inline"`
		Type             string                   `yaml:"type,omitempty"`
		Scope            string                   `yaml:"scope,omitempty"`
		DefaultSize      string                   `yaml:"default_size,omitempty"`
		ActionIdentifier string                   `yaml:"action_identifier,omitempty"`
		ConditionGroup   yamlWidgetConditionGroup `yaml:"condition_group,omitempty"`
	}

	yamlReleaseNote struct {
		Description        string `yaml:"description"`
		IntegrationVersion string `yaml:"integration_version"`
		PublishTime        string `yaml:"publish_time,omitempty"`
		ItemName           string `yaml:"item_name,omitempty"`
		ItemType           string `yaml:"item_type,omitempty"`
		TicketNumber       string `yaml:"ticket_number,omitempty"`
		New                bool   `yaml:"new,omitempty"`
		Regressive         bool   `yaml:"regressive,omitempty"`
		Deprecated         bool   `yaml:"deprecated,omitempty"`
		Removed            bool   `yaml:"removed,omitempty"`
	}

	yamlMappingRule struct {
		Source    string            `yaml:"source"`
		Product   string            `yaml:"product,omitempty"`
		EventName string            `yaml:"event_name,omitempty"`
		Mappings  map[string]string `yaml:"mappings,omitempty"`
	}

	yamlFamilyRule struct {
		PrimarySource   string `yaml:"primary_source"`
		SecondarySource string `yaml:"secondary_source,omitempty"`
		ThirdSource     string `yaml:"third_source,omitempty"`
		Relation        string `yaml:"relation"`
	}

	yamlCustomFamily struct {
		Family      string           `yaml:"family"`
		Description string           `yaml:"description,omitempty"`
		ImageBase64 string           `yaml:"image_base64,omitempty"`
		IsCustom    bool             `yaml:"is_custom"`
		Rules       []yamlFamilyRule `yaml:"rules,omitempty"`
	}
)

// FromNonBuiltPath parses the non-built integration rooted at dir.
func FromNonBuiltPath(dir string, opts ...Option) (*Integration, error) {
	project, err := pydeps.ReadProject(dir)
	if err != nil {
		return nil, err
	}

	var def yamlDefinition
	if err := readYAML(filepath.Join(dir, DefinitionFile), &def); err != nil {
		return nil, err
	}

	in := Integration{
		Identifier: def.Identifier,
		Metadata: Metadata{
			DisplayName:       def.Name,
			Description:       def.Description,
			Version:           project.Version,
			IsCustom:          def.IsCustom,
			IsAvailable:       boolOr(def.IsAvailable, true),
			Categories:        def.Categories,
			DocumentationLink: def.DocumentationLink,
		},
		Actions:    map[string]ActionMetadata{},
		Connectors: map[string]ConnectorMetadata{},
		Jobs:       map[string]JobMetadata{},
		Widgets:    map[string]WidgetMetadata{},
	}
	if in.Metadata.Description == "" {
		in.Metadata.Description = project.Description
	}
	if project.RequiresPython != "" {
		if in.Metadata.PythonVersion, err = project.PythonVersion(); err != nil {
			return nil, fmt.Errorf("%s: %w", pydeps.ProjectFileName, err)
		}
	}
	if in.Parameters, err = parametersFromYAML(def.Parameters); err != nil {
		return nil, fmt.Errorf("%s: %w", DefinitionFile, err)
	}

	if err := readComponents(dir, ActionsDir, func(key string, data []byte) error {
		var y yamlAction
		if err := yaml.Unmarshal(data, &y); err != nil {
			return err
		}
		s, err := y.yamlScript.toModel(key)
		if err != nil {
			return err
		}
		in.Actions[key] = ActionMetadata{ScriptMetadata: s, IsAsync: y.IsAsync, TimeoutSeconds: y.TimeoutSeconds}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readComponents(dir, ConnectorsDir, func(key string, data []byte) error {
		var y yamlConnector
		if err := yaml.Unmarshal(data, &y); err != nil {
			return err
		}
		s, err := y.yamlScript.toModel(key)
		if err != nil {
			return err
		}
		c := ConnectorMetadata{ScriptMetadata: s, IsConnectorRulesSupported: y.IsConnectorRulesSupported}
		for _, r := range y.Rules {
			c.Rules = append(c.Rules, ConnectorRule(r))
		}
		in.Connectors[key] = c
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readComponents(dir, JobsDir, func(key string, data []byte) error {
		var y yamlJob
		if err := yaml.Unmarshal(data, &y); err != nil {
			return err
		}
		s, err := y.yamlScript.toModel(key)
		if err != nil {
			return err
		}
		in.Jobs[key] = JobMetadata{ScriptMetadata: s, RunIntervalInSeconds: y.RunIntervalInSeconds}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readComponents(dir, WidgetsDir, func(key string, data []byte) error {
		var y yamlWidget
		if err := yaml.Unmarshal(data, &y); err != nil {
			return err
		}
		s, err := y.yamlScript.toModel(key)
		if err != nil {
			return err
		}
		w := WidgetMetadata{
			ScriptMetadata:   s,
			Type:             y.Type,
			Scope:            y.Scope,
			DefaultSize:      y.DefaultSize,
			ActionIdentifier: y.ActionIdentifier,
			ConditionGroup:   WidgetConditionGroup{LogicalOperator: y.ConditionGroup.LogicalOperator},
		}
		for _, c := range y.ConditionGroup.Conditions {
			w.ConditionGroup.Conditions = append(w.ConditionGroup.Conditions, WidgetCondition(c))
		}
		html, err := os.ReadFile(filepath.Join(dir, WidgetsDir, key+widgetHTMLExt))
		switch {
		case err == nil:
			w.HTMLContent = string(html)
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		in.Widgets[key] = w
		return nil
	}); err != nil {
		return nil, err
	}

	var notes []yamlReleaseNote
	if err := readOptionalYAML(filepath.Join(dir, ReleaseNotesFile), &notes); err != nil {
		return nil, err
	}
	for _, n := range notes {
		in.ReleaseNotes = append(in.ReleaseNotes, ReleaseNote(n))
	}

	var mappings []yamlMappingRule
	if err := readOptionalYAML(filepath.Join(dir, MappingRulesFile), &mappings); err != nil {
		return nil, err
	}
	for _, m := range mappings {
		in.MappingRules = append(in.MappingRules, MappingRule(m))
	}

	var families []yamlCustomFamily
	if err := readOptionalYAML(filepath.Join(dir, CustomFamiliesFile), &families); err != nil {
		return nil, err
	}
	for _, f := range families {
		cf := CustomFamily{Family: f.Family, Description: f.Description, ImageBase64: f.ImageBase64, IsCustom: f.IsCustom}
		for _, r := range f.Rules {
			cf.Rules = append(cf.Rules, FamilyRule(r))
		}
		in.CustomFamilies = append(in.CustomFamilies, cf)
	}

	if in.CommonModules, err = findCommonModules(dir); err != nil {
		return nil, err
	}

	return New(in, opts...)
}

// findCommonModules lists every core/**/*.py module except package markers.
func findCommonModules(dir string) ([]CommonModule, error) {
	if !fspath.IsDir(filepath.Join(dir, CoreDir)) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), CoreDir+"/**/*"+ScriptFileExtension)
	if err != nil {
		return nil, fmt.Errorf("listing common modules: %w", err)
	}

	var mods []CommonModule
	for _, m := range matches {
		name := path.Base(m)
		if name == packageInitFileName {
			continue
		}
		mods = append(mods, CommonModule{FileName: name, SourcePath: m})
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].SourcePath < mods[j].SourcePath })
	return mods, nil
}

// ToNonBuilt renders the definition files of the non-built layout, including
// a pyproject.toml without dependencies. Scripts and common modules are not
// part of the model and must be copied separately.
func (it *Integration) ToNonBuilt() (fspath.Tree, error) {
	tree := fspath.Tree{}

	available := it.Metadata.IsAvailable
	def := yamlDefinition{
		Identifier:        it.Identifier,
		Name:              it.Metadata.DisplayName,
		Description:       it.Metadata.Description,
		DocumentationLink: it.Metadata.DocumentationLink,
		Categories:        it.Metadata.Categories,
		IsCustom:          it.Metadata.IsCustom,
		IsAvailable:       &available,
		Parameters:        parametersToYAML(it.Parameters),
	}
	if err := putYAML(tree, DefinitionFile, def); err != nil {
		return nil, err
	}

	project := &pydeps.Project{
		Name:        strings.ToLower(it.Identifier),
		Version:     it.Metadata.Version,
		Description: it.Metadata.Description,
	}
	if it.Metadata.PythonVersion != "" {
		project.RequiresPython = ">=" + it.Metadata.PythonVersion
	}
	data, err := project.Marshal()
	if err != nil {
		return nil, err
	}
	tree[pydeps.ProjectFileName] = data

	for key, a := range it.Actions {
		y := yamlAction{yamlScript: scriptToYAML(a.ScriptMetadata), IsAsync: a.IsAsync, TimeoutSeconds: a.TimeoutSeconds}
		if err := putYAML(tree, ActionsDir+"/"+key+componentDefExt, y); err != nil {
			return nil, err
		}
	}
	for key, c := range it.Connectors {
		y := yamlConnector{yamlScript: scriptToYAML(c.ScriptMetadata), IsConnectorRulesSupported: c.IsConnectorRulesSupported}
		for _, r := range c.Rules {
			y.Rules = append(y.Rules, yamlConnectorRule(r))
		}
		if err := putYAML(tree, ConnectorsDir+"/"+key+componentDefExt, y); err != nil {
			return nil, err
		}
	}
	for key, j := range it.Jobs {
		y := yamlJob{yamlScript: scriptToYAML(j.ScriptMetadata), RunIntervalInSeconds: j.RunIntervalInSeconds}
		if err := putYAML(tree, JobsDir+"/"+key+componentDefExt, y); err != nil {
			return nil, err
		}
	}
	for key, w := range it.Widgets {
		y := yamlWidget{
			yamlScript:       scriptToYAML(w.ScriptMetadata),
			Type:             w.Type,
			Scope:            w.Scope,
			DefaultSize:      w.DefaultSize,
			ActionIdentifier: w.ActionIdentifier,
			ConditionGroup:   yamlWidgetConditionGroup{LogicalOperator: w.ConditionGroup.LogicalOperator},
		}
		for _, c := range w.ConditionGroup.Conditions {
			y.ConditionGroup.Conditions = append(y.ConditionGroup.Conditions, yamlWidgetCondition(c))
		}
		if err := putYAML(tree, WidgetsDir+"/"+key+componentDefExt, y); err != nil {
			return nil, err
		}
		if w.HTMLContent != "" {
			tree[WidgetsDir+"/"+key+widgetHTMLExt] = []byte(w.HTMLContent)
		}
	}

	if len(it.ReleaseNotes) > 0 {
		notes := make([]yamlReleaseNote, len(it.ReleaseNotes))
		for i, n := range it.ReleaseNotes {
			notes[i] = yamlReleaseNote(n)
		}
		if err := putYAML(tree, ReleaseNotesFile, notes); err != nil {
			return nil, err
		}
	}
	if len(it.MappingRules) > 0 {
		rules := make([]yamlMappingRule, len(it.MappingRules))
		for i, m := range it.MappingRules {
			rules[i] = yamlMappingRule(m)
		}
		if err := putYAML(tree, MappingRulesFile, rules); err != nil {
			return nil, err
		}
	}
	if len(it.CustomFamilies) > 0 {
		families := make([]yamlCustomFamily, len(it.CustomFamilies))
		for i, f := range it.CustomFamilies {
			y := yamlCustomFamily{Family: f.Family, Description: f.Description, ImageBase64: f.ImageBase64, IsCustom: f.IsCustom}
			for _, r := range f.Rules {
				y.Rules = append(y.Rules, yamlFamilyRule(r))
			}
			families[i] = y
		}
		if err := putYAML(tree, CustomFamiliesFile, families); err != nil {
			return nil, err
		}
	}

	return tree, nil
}

// WriteNonBuilt writes the non-built definition files below dir.
func (it *Integration) WriteNonBuilt(dir string) error {
	tree, err := it.ToNonBuilt()
	if err != nil {
		return err
	}
	return tree.Write(dir)
}

// NonBuiltScriptPath returns the slash-separated non-built path of a flat
// script file, or "" when no component or common module owns it.
func (it *Integration) NonBuiltScriptPath(file string) string {
	key := strings.TrimSuffix(file, ScriptFileExtension)
	if _, ok := it.Actions[key]; ok {
		return ActionsDir + "/" + file
	}
	if _, ok := it.Connectors[key]; ok {
		return ConnectorsDir + "/" + file
	}
	if _, ok := it.Jobs[key]; ok {
		return JobsDir + "/" + file
	}
	for _, m := range it.CommonModules {
		if m.FileName == file {
			if m.SourcePath != "" {
				return m.SourcePath
			}
			return CoreDir + "/" + file
		}
	}
	return ""
}

func (y yamlScript) toModel(key string) (ScriptMetadata, error) {
	params, err := parametersFromYAML(y.Parameters)
	if err != nil {
		return ScriptMetadata{}, err
	}
	return ScriptMetadata{
		FileName:    key,
		Name:        y.Name,
		Description: y.Description,
		Version:     y.Version,
		IsEnabled:   boolOr(y.IsEnabled, true),
		IsCustom:    y.IsCustom,
		Parameters:  params,
	}, nil
}

func scriptToYAML(s ScriptMetadata) yamlScript {
	enabled := s.IsEnabled
	return yamlScript{
		Name:        s.Name,
		Description: s.Description,
		Version:     s.Version,
		IsEnabled:   &enabled,
		IsCustom:    s.IsCustom,
		Parameters:  parametersToYAML(s.Parameters),
	}
}

func parametersFromYAML(in []yamlParameter) ([]Parameter, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]Parameter, len(in))
	for i, p := range in {
		t, err := ParseParamType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		out[i] = Parameter{
			Name:           p.Name,
			Type:           t,
			Description:    p.Description,
			IsMandatory:    p.IsMandatory,
			DefaultValue:   p.DefaultValue,
			OptionalValues: p.OptionalValues,
		}
	}
	return out, nil
}

func parametersToYAML(in []Parameter) []yamlParameter {
	if len(in) == 0 {
		return nil
	}
	out := make([]yamlParameter, len(in))
	for i, p := range in {
		out[i] = yamlParameter{
			Name:           p.Name,
			Type:           p.Type.String(),
			Description:    p.Description,
			IsMandatory:    p.IsMandatory,
			DefaultValue:   p.DefaultValue,
			OptionalValues: p.OptionalValues,
		}
	}
	return out
}

// readComponents calls fn for every <kind>/<key>.yaml definition under dir.
func readComponents(dir, kind string, fn func(key string, data []byte) error) error {
	entries, err := os.ReadDir(filepath.Join(dir, kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", kind, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != componentDefExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, kind, name))
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(name, componentDefExt)
		if err := fn(key, data); err != nil {
			return fmt.Errorf("%s/%s: %w", kind, name, err)
		}
	}
	return nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readOptionalYAML(path string, out any) error {
	if !fspath.Exists(path) {
		return nil
	}
	return readYAML(path, out)
}

func putYAML(tree fspath.Tree, rel string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	tree[rel] = data
	return nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
