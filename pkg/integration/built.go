// SPDX-License-Identifier: MPL-2.0

package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soarhub/mp/pkg/fspath"
	"github.com/soarhub/mp/pkg/layout"
)

// Built layout names.
const (
	ReleaseNotesBuiltFile   = "RN.json"
	ActionsDefinitionsDir   = "ActionsDefinitions"
	ConnectorsBuiltDir      = "Connectors"
	JobsBuiltDir            = "Jobs"
	WidgetsBuiltDir         = "Widgets"
	ScriptsDir              = "Scripts"
	DependenciesDir         = "Dependencies"
	OntologyMappingDir      = "OntologyMapping"
	MappingRulesBuiltFile   = "mapping_rules.json"
	CustomFamiliesBuiltDir  = "CustomFamilies"
	CustomFamiliesBuiltFile = "custom_families.json"
	ActionDefExt            = ".actiondef"
	ConnectorDefExt         = ".connectordef"
	JobDefExt               = ".jobdef"
	WidgetDefExt            = ".json"
)

type (
	builtParameter struct {
		Name           string   `json:"Name"`
		Type           int      `json:"Type"`
		Description    string   `json:"Description"`
		IsMandatory    bool     `json:"IsMandatory"`
		DefaultValue   string   `json:"DefaultValue"`
		OptionalValues []string `json:"OptionalValues,omitempty"`
	}

	builtDefinition struct {
		Identifier        string           `json:"Identifier"`
		DisplayName       string           `json:"DisplayName"`
		Description       string           `json:"Description"`
		Version           string           `json:"Version"`
		PythonVersion     string           `json:"PythonVersion,omitempty"`
		IsCustom          bool             `json:"IsCustom"`
		IsAvailable       bool             `json:"IsAvailable"`
		Categories        []string         `json:"Categories"`
		DocumentationLink string           `json:"DocumentationLink,omitempty"`
		Parameters        []builtParameter `json:"Parameters"`
	}

	builtScript struct {
		Name                  string           `json:"Name"`
		Description           string           `json:"Description"`
		Version               string           `json:"Version,omitempty"`
		IsEnabled             bool             `json:"IsEnabled"`
		IsCustom              bool             `json:"IsCustom"`
		IntegrationIdentifier string           `json:"IntegrationIdentifier"`
		Script                string           `json:"Script,omitempty"`
		Parameters            []builtParameter `json:"Parameters"`
	}

	builtAction struct {
		builtScript
		IsAsync        bool `json:"IsAsync"`
		TimeoutSeconds int  `json:"TimeoutSeconds,omitempty"`
	}

	builtConnectorRule struct {
		Name string `json:"RuleName"`
		Type string `json:"RuleType"`
	}

	builtConnector struct {
		builtScript
		IsConnectorRulesSupported bool                 `json:"IsConnectorRulesSupported"`
		Rules                     []builtConnectorRule `json:"Rules"`
	}

	builtJob struct {
		builtScript
		RunIntervalInSeconds int `json:"RunIntervalInSeconds"`
	}

	builtWidgetCondition struct {
		FieldName string `json:"FieldName"`
		Value     string `json:"Value"`
		MatchType string `json:"MatchType"`
	}

	builtWidgetConditionGroup struct {
		LogicalOperator string                 `json:"LogicalOperator,omitempty"`
		Conditions      []builtWidgetCondition `json:"Conditions"`
	}

	builtWidget struct {
		builtScript
		Type             string                    `json:"Type,omitempty"`
		Scope            string                    `json:"Scope,omitempty"`
		DefaultSize      string                    `json:"DefaultSize,omitempty"`
		ActionIdentifier string                    `json:"ActionIdentifier,omitempty"`
		ConditionGroup   builtWidgetConditionGroup `json:"ConditionsGroup"`
		HTMLContent      string                    `json:"HtmlContent,omitempty"`
	}

	builtReleaseNote struct {
		Description        string `json:"Description"`
		IntegrationVersion string `json:"IntegrationVersion"`
		// PublishTime is a Unix timestamp in milliseconds.
		PublishTime  int64  `json:"PublishTime,omitempty"`
		ItemName     string `json:"ItemName,omitempty"`
		ItemType     string `json:"ItemType,omitempty"`
		TicketNumber string `json:"TicketNumber,omitempty"`
		New          bool   `json:"New"`
		Regressive   bool   `json:"Regressive"`
		Deprecated   bool   `json:"Deprecated"`
		Removed      bool   `json:"Removed"`
	}

	builtMappingRule struct {
		Source    string            `json:"Source"`
		Product   string            `json:"Product,omitempty"`
		EventName string            `json:"EventName,omitempty"`
		Mappings  map[string]string `json:"Mappings,omitempty"`
	}

	builtFamilyRule struct {
		PrimarySource   string `json:"PrimarySource"`
		SecondarySource string `json:"SecondarySource,omitempty"`
		ThirdSource     string `json:"ThirdSource,omitempty"`
		Relation        string `json:"Relation"`
	}

	builtCustomFamily struct {
		Family      string            `json:"Family"`
		Description string            `json:"Description,omitempty"`
		ImageBase64 string            `json:"ImageBase64,omitempty"`
		IsCustom    bool              `json:"IsCustom"`
		Rules       []builtFamilyRule `json:"Rules"`
	}
)

// FromBuiltPath parses the built or half-built integration rooted at dir.
// Scripts in Scripts/ that no component definition claims become common
// modules.
func FromBuiltPath(dir string, opts ...Option) (*Integration, error) {
	defPath, ok := layout.FindBuiltDefinition(dir)
	if !ok {
		return nil, &layout.NotIntegrationError{Path: dir}
	}

	var def builtDefinition
	if err := readJSON(defPath, &def); err != nil {
		return nil, err
	}
	if def.Identifier == "" {
		def.Identifier = layout.IdentifierFromDefinition(defPath)
	}

	in := Integration{
		Identifier: def.Identifier,
		Metadata: Metadata{
			DisplayName:       def.DisplayName,
			Description:       def.Description,
			Version:           def.Version,
			PythonVersion:     def.PythonVersion,
			IsCustom:          def.IsCustom,
			IsAvailable:       def.IsAvailable,
			Categories:        def.Categories,
			DocumentationLink: def.DocumentationLink,
		},
		Parameters: parametersFromBuilt(def.Parameters),
		Actions:    map[string]ActionMetadata{},
		Connectors: map[string]ConnectorMetadata{},
		Jobs:       map[string]JobMetadata{},
		Widgets:    map[string]WidgetMetadata{},
	}

	if err := readBuiltComponents(dir, ActionsDefinitionsDir, ActionDefExt, func(key string, data []byte) error {
		var b builtAction
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		in.Actions[key] = ActionMetadata{ScriptMetadata: b.toModel(key), IsAsync: b.IsAsync, TimeoutSeconds: b.TimeoutSeconds}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readBuiltComponents(dir, ConnectorsBuiltDir, ConnectorDefExt, func(key string, data []byte) error {
		var b builtConnector
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		c := ConnectorMetadata{ScriptMetadata: b.toModel(key), IsConnectorRulesSupported: b.IsConnectorRulesSupported}
		for _, r := range b.Rules {
			c.Rules = append(c.Rules, ConnectorRule(r))
		}
		in.Connectors[key] = c
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readBuiltComponents(dir, JobsBuiltDir, JobDefExt, func(key string, data []byte) error {
		var b builtJob
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		in.Jobs[key] = JobMetadata{ScriptMetadata: b.toModel(key), RunIntervalInSeconds: b.RunIntervalInSeconds}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readBuiltComponents(dir, WidgetsBuiltDir, WidgetDefExt, func(key string, data []byte) error {
		var b builtWidget
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		w := WidgetMetadata{
			ScriptMetadata:   b.toModel(key),
			Type:             b.Type,
			Scope:            b.Scope,
			DefaultSize:      b.DefaultSize,
			ActionIdentifier: b.ActionIdentifier,
			ConditionGroup:   WidgetConditionGroup{LogicalOperator: b.ConditionGroup.LogicalOperator},
			HTMLContent:      b.HTMLContent,
		}
		for _, c := range b.ConditionGroup.Conditions {
			w.ConditionGroup.Conditions = append(w.ConditionGroup.Conditions, WidgetCondition(c))
		}
		in.Widgets[key] = w
		return nil
	}); err != nil {
		return nil, err
	}

	var notes []builtReleaseNote
	if err := readOptionalJSON(filepath.Join(dir, ReleaseNotesBuiltFile), &notes); err != nil {
		return nil, err
	}
	for _, n := range notes {
		in.ReleaseNotes = append(in.ReleaseNotes, n.toModel())
	}

	var mappings []builtMappingRule
	if err := readOptionalJSON(filepath.Join(dir, OntologyMappingDir, MappingRulesBuiltFile), &mappings); err != nil {
		return nil, err
	}
	for _, m := range mappings {
		in.MappingRules = append(in.MappingRules, MappingRule(m))
	}

	var families []builtCustomFamily
	if err := readOptionalJSON(filepath.Join(dir, CustomFamiliesBuiltDir, CustomFamiliesBuiltFile), &families); err != nil {
		return nil, err
	}
	for _, f := range families {
		cf := CustomFamily{Family: f.Family, Description: f.Description, ImageBase64: f.ImageBase64, IsCustom: f.IsCustom}
		for _, r := range f.Rules {
			cf.Rules = append(cf.Rules, FamilyRule(r))
		}
		in.CustomFamilies = append(in.CustomFamilies, cf)
	}

	mods, err := unclaimedScripts(dir, &in)
	if err != nil {
		return nil, err
	}
	in.CommonModules = mods

	return New(in, opts...)
}

// unclaimedScripts returns the Scripts/*.py files no component owns.
func unclaimedScripts(dir string, in *Integration) ([]CommonModule, error) {
	entries, err := os.ReadDir(filepath.Join(dir, ScriptsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ScriptsDir, err)
	}

	claimed := make(map[string]bool)
	for _, a := range in.Actions {
		claimed[a.ScriptFile()] = true
	}
	for _, c := range in.Connectors {
		claimed[c.ScriptFile()] = true
	}
	for _, j := range in.Jobs {
		claimed[j.ScriptFile()] = true
	}

	var mods []CommonModule
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ScriptFileExtension || claimed[name] || name == packageInitFileName {
			continue
		}
		mods = append(mods, CommonModule{FileName: name, SourcePath: CoreDir + "/" + name})
	}
	return mods, nil
}

// ToBuilt renders the definition files of the built layout. Scripts and
// dependencies are not part of the model and must be copied separately.
func (it *Integration) ToBuilt() (fspath.Tree, error) {
	tree := fspath.Tree{}

	categories := it.Metadata.Categories
	if categories == nil {
		categories = []string{}
	}
	def := builtDefinition{
		Identifier:        it.Identifier,
		DisplayName:       it.Metadata.DisplayName,
		Description:       it.Metadata.Description,
		Version:           it.Metadata.Version,
		PythonVersion:     it.Metadata.PythonVersion,
		IsCustom:          it.Metadata.IsCustom,
		IsAvailable:       it.Metadata.IsAvailable,
		Categories:        categories,
		DocumentationLink: it.Metadata.DocumentationLink,
		Parameters:        parametersToBuilt(it.Parameters),
	}
	if err := putJSON(tree, layout.BuiltDefinitionName(it.Identifier), def); err != nil {
		return nil, err
	}

	for key, a := range it.Actions {
		b := builtAction{builtScript: it.scriptToBuilt(a.ScriptMetadata, true), IsAsync: a.IsAsync, TimeoutSeconds: a.TimeoutSeconds}
		if err := putJSON(tree, ActionsDefinitionsDir+"/"+key+ActionDefExt, b); err != nil {
			return nil, err
		}
	}
	for key, c := range it.Connectors {
		b := builtConnector{builtScript: it.scriptToBuilt(c.ScriptMetadata, true), IsConnectorRulesSupported: c.IsConnectorRulesSupported, Rules: []builtConnectorRule{}}
		for _, r := range c.Rules {
			b.Rules = append(b.Rules, builtConnectorRule(r))
		}
		if err := putJSON(tree, ConnectorsBuiltDir+"/"+key+ConnectorDefExt, b); err != nil {
			return nil, err
		}
	}
	for key, j := range it.Jobs {
		b := builtJob{builtScript: it.scriptToBuilt(j.ScriptMetadata, true), RunIntervalInSeconds: j.RunIntervalInSeconds}
		if err := putJSON(tree, JobsBuiltDir+"/"+key+JobDefExt, b); err != nil {
			return nil, err
		}
	}
	for key, w := range it.Widgets {
		b := builtWidget{
			builtScript:      it.scriptToBuilt(w.ScriptMetadata, false),
			Type:             w.Type,
			Scope:            w.Scope,
			DefaultSize:      w.DefaultSize,
			ActionIdentifier: w.ActionIdentifier,
			ConditionGroup: builtWidgetConditionGroup{
				LogicalOperator: w.ConditionGroup.LogicalOperator,
				Conditions:      []builtWidgetCondition{},
			},
			HTMLContent: w.HTMLContent,
		}
		for _, c := range w.ConditionGroup.Conditions {
			b.ConditionGroup.Conditions = append(b.ConditionGroup.Conditions, builtWidgetCondition(c))
		}
		if err := putJSON(tree, WidgetsBuiltDir+"/"+key+WidgetDefExt, b); err != nil {
			return nil, err
		}
	}

	notes := make([]builtReleaseNote, 0, len(it.ReleaseNotes))
	for _, n := range it.ReleaseNotes {
		b, err := releaseNoteToBuilt(n)
		if err != nil {
			return nil, err
		}
		notes = append(notes, b)
	}
	if err := putJSON(tree, ReleaseNotesBuiltFile, notes); err != nil {
		return nil, err
	}

	if len(it.MappingRules) > 0 {
		rules := make([]builtMappingRule, len(it.MappingRules))
		for i, m := range it.MappingRules {
			rules[i] = builtMappingRule(m)
		}
		if err := putJSON(tree, OntologyMappingDir+"/"+MappingRulesBuiltFile, rules); err != nil {
			return nil, err
		}
	}
	if len(it.CustomFamilies) > 0 {
		families := make([]builtCustomFamily, len(it.CustomFamilies))
		for i, f := range it.CustomFamilies {
			b := builtCustomFamily{Family: f.Family, Description: f.Description, ImageBase64: f.ImageBase64, IsCustom: f.IsCustom, Rules: []builtFamilyRule{}}
			for _, r := range f.Rules {
				b.Rules = append(b.Rules, builtFamilyRule(r))
			}
			families[i] = b
		}
		if err := putJSON(tree, CustomFamiliesBuiltDir+"/"+CustomFamiliesBuiltFile, families); err != nil {
			return nil, err
		}
	}

	return tree, nil
}

// WriteBuilt writes the built definition files below dir.
func (it *Integration) WriteBuilt(dir string) error {
	tree, err := it.ToBuilt()
	if err != nil {
		return err
	}
	return tree.Write(dir)
}

func (it *Integration) scriptToBuilt(s ScriptMetadata, scripted bool) builtScript {
	b := builtScript{
		Name:                  s.Name,
		Description:           s.Description,
		Version:               s.Version,
		IsEnabled:             s.IsEnabled,
		IsCustom:              s.IsCustom,
		IntegrationIdentifier: it.Identifier,
		Parameters:            parametersToBuilt(s.Parameters),
	}
	if scripted {
		b.Script = s.ScriptFile()
	}
	return b
}

func (b builtScript) toModel(key string) ScriptMetadata {
	return ScriptMetadata{
		FileName:    key,
		Name:        b.Name,
		Description: b.Description,
		Version:     b.Version,
		IsEnabled:   b.IsEnabled,
		IsCustom:    b.IsCustom,
		Parameters:  parametersFromBuilt(b.Parameters),
	}
}

func (b builtReleaseNote) toModel() ReleaseNote {
	n := ReleaseNote{
		Description:        b.Description,
		IntegrationVersion: b.IntegrationVersion,
		ItemName:           b.ItemName,
		ItemType:           b.ItemType,
		TicketNumber:       b.TicketNumber,
		New:                b.New,
		Regressive:         b.Regressive,
		Deprecated:         b.Deprecated,
		Removed:            b.Removed,
	}
	if b.PublishTime > 0 {
		n.PublishTime = FormatPublishTime(time.UnixMilli(b.PublishTime))
	}
	return n
}

func releaseNoteToBuilt(n ReleaseNote) (builtReleaseNote, error) {
	b := builtReleaseNote{
		Description:        n.Description,
		IntegrationVersion: n.IntegrationVersion,
		ItemName:           n.ItemName,
		ItemType:           n.ItemType,
		TicketNumber:       n.TicketNumber,
		New:                n.New,
		Regressive:         n.Regressive,
		Deprecated:         n.Deprecated,
		Removed:            n.Removed,
	}
	if n.PublishTime != "" {
		t, err := ParsePublishTime(n.PublishTime)
		if err != nil {
			return b, fmt.Errorf("release note %q: publish time: %w", n.Description, err)
		}
		b.PublishTime = t.UnixMilli()
	}
	return b, nil
}

// ParsePublishTime parses a release note publish time, either a date
// (2024-05-01) or an RFC 3339 timestamp.
func ParsePublishTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatPublishTime renders t for release_notes.yaml. Midnight UTC is written
// as a date, any other instant as an RFC 3339 timestamp in milliseconds.
func FormatPublishTime(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02T15:04:05.000Z07:00")
}

func parametersFromBuilt(in []builtParameter) []Parameter {
	if len(in) == 0 {
		return nil
	}
	out := make([]Parameter, len(in))
	for i, p := range in {
		out[i] = Parameter{
			Name:           p.Name,
			Type:           ParamType(p.Type),
			Description:    p.Description,
			IsMandatory:    p.IsMandatory,
			DefaultValue:   p.DefaultValue,
			OptionalValues: p.OptionalValues,
		}
	}
	return out
}

func parametersToBuilt(in []Parameter) []builtParameter {
	out := make([]builtParameter, len(in))
	for i, p := range in {
		out[i] = builtParameter{
			Name:           p.Name,
			Type:           int(p.Type),
			Description:    p.Description,
			IsMandatory:    p.IsMandatory,
			DefaultValue:   FormatDefault(p.DefaultValue),
			OptionalValues: p.OptionalValues,
		}
	}
	return out
}

// readBuiltComponents calls fn for every <kind>/<key><ext> definition under dir.
func readBuiltComponents(dir, kind, ext string, fn func(key string, data []byte) error) error {
	entries, err := os.ReadDir(filepath.Join(dir, kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", kind, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, kind, name))
		if err != nil {
			return err
		}
		if err := fn(strings.TrimSuffix(name, ext), data); err != nil {
			return fmt.Errorf("%s/%s: %w", kind, name, err)
		}
	}
	return nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readOptionalJSON(path string, out any) error {
	if !fspath.Exists(path) {
		return nil
	}
	return readJSON(path, out)
}

func putJSON(tree fspath.Tree, rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	tree[rel] = append(data, '\n')
	return nil
}
