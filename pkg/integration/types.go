// SPDX-License-Identifier: MPL-2.0

package integration

import (
	"fmt"
	"strings"
)

const (
	// ParamBoolean is a true/false parameter.
	ParamBoolean ParamType = iota
	// ParamInteger is a whole-number parameter.
	ParamInteger
	// ParamString is a free-text parameter.
	ParamString
	// ParamPassword is a secret parameter.
	ParamPassword
	// ParamIP is an IP address parameter.
	ParamIP
	// ParamEmail is an email address parameter.
	ParamEmail
	// ParamHost is a hostname parameter.
	ParamHost
	// ParamURL is a URL parameter.
	ParamURL
	// ParamMultiValues is a comma-separated list parameter.
	ParamMultiValues
	// ParamDDL is a drop-down list parameter.
	ParamDDL
	// ParamContent is a multi-line content parameter.
	ParamContent
)

// ScriptFileExtension is the extension of every component and common-module script.
const ScriptFileExtension = ".py"

var paramTypeNames = [...]string{
	ParamBoolean:     "boolean",
	ParamInteger:     "integer",
	ParamString:      "string",
	ParamPassword:    "password",
	ParamIP:          "ip",
	ParamEmail:       "email",
	ParamHost:        "host",
	ParamURL:         "url",
	ParamMultiValues: "multi_values",
	ParamDDL:         "ddl",
	ParamContent:     "content",
}

type (
	// ParamType is the declared type of a parameter. The numeric value is
	// the built-layout type code.
	ParamType int

	// Parameter is a configuration or script input.
	Parameter struct {
		Name        string    `validate:"required"`
		Type        ParamType `validate:"paramtype"`
		Description string
		IsMandatory bool
		// DefaultValue is nil, a bool (ParamBoolean), an int (ParamInteger)
		// or a string (every other type).
		DefaultValue any
		// OptionalValues lists the choices of a ParamDDL parameter.
		OptionalValues []string
	}

	// Metadata holds the integration-level descriptive fields.
	Metadata struct {
		DisplayName       string `validate:"required"`
		Description       string
		Version           string `validate:"required,version"`
		PythonVersion     string `validate:"omitempty,pyversion"`
		IsCustom          bool
		IsAvailable       bool
		Categories        []string
		DocumentationLink string `validate:"omitempty,url"`
	}

	// ScriptMetadata is shared by every scripted component.
	ScriptMetadata struct {
		// FileName is the component key: the script file name without extension.
		FileName    string `validate:"required,filekey"`
		Name        string `validate:"required,scriptname"`
		Description string
		Version     string
		IsEnabled   bool
		IsCustom    bool
		Parameters  []Parameter `validate:"dive"`
	}

	// ActionMetadata describes an action.
	ActionMetadata struct {
		ScriptMetadata
		IsAsync        bool
		TimeoutSeconds int `validate:"gte=0"`
	}

	// ConnectorRule is a connector allow/block rule definition.
	ConnectorRule struct {
		Name string `validate:"required"`
		Type string `validate:"required"`
	}

	// ConnectorMetadata describes a connector.
	ConnectorMetadata struct {
		ScriptMetadata
		IsConnectorRulesSupported bool
		Rules                     []ConnectorRule `validate:"dive"`
	}

	// JobMetadata describes a scheduled job.
	JobMetadata struct {
		ScriptMetadata
		RunIntervalInSeconds int `validate:"gte=0"`
	}

	// WidgetCondition is a single widget display condition.
	WidgetCondition struct {
		FieldName string
		Value     string
		MatchType string
	}

	// WidgetConditionGroup combines widget conditions.
	WidgetConditionGroup struct {
		LogicalOperator string `validate:"omitempty,oneof=and or"`
		Conditions      []WidgetCondition
	}

	// WidgetMetadata describes an action result widget.
	WidgetMetadata struct {
		ScriptMetadata
		Type             string `validate:"omitempty,oneof=html json"`
		Scope            string `validate:"omitempty,oneof=alert case"`
		DefaultSize      string `validate:"omitempty,oneof=half_width full_width third_width"`
		ActionIdentifier string
		ConditionGroup   WidgetConditionGroup
		// HTMLContent is the widget body.
		HTMLContent string
	}

	// ReleaseNote is one release-note entry.
	ReleaseNote struct {
		Description        string `validate:"required"`
		IntegrationVersion string `validate:"required,version"`
		// PublishTime is a date (YYYY-MM-DD) or an RFC 3339 timestamp.
		PublishTime  string `validate:"omitempty,publishtime"`
		ItemName     string
		ItemType     string
		TicketNumber string
		New          bool
		Regressive   bool
		Deprecated   bool
		Removed      bool
	}

	// MappingRule is an ontology mapping rule.
	MappingRule struct {
		Source    string `validate:"required"`
		Product   string
		EventName string
		Mappings  map[string]string
	}

	// FamilyRule is a visual family relation rule.
	FamilyRule struct {
		PrimarySource   string
		SecondarySource string
		ThirdSource     string
		Relation        string
	}

	// CustomFamily is a visual family definition.
	CustomFamily struct {
		Family      string `validate:"required"`
		Description string
		ImageBase64 string
		IsCustom    bool
		Rules       []FamilyRule
	}

	// CommonModule is a shared script imported by components.
	CommonModule struct {
		// FileName is the flat module file name, e.g. "AcmeManager.py".
		FileName string `validate:"required"`
		// SourcePath is the slash-separated path relative to the integration
		// root in the non-built layout, e.g. "core/clients/AcmeManager.py".
		SourcePath string
	}

	// Integration is a validated marketplace integration.
	Integration struct {
		Identifier     string `validate:"required,identifier"`
		Metadata       Metadata
		Parameters     []Parameter                  `validate:"dive"`
		Actions        map[string]ActionMetadata    `validate:"dive"`
		Connectors     map[string]ConnectorMetadata `validate:"dive"`
		Jobs           map[string]JobMetadata       `validate:"dive"`
		Widgets        map[string]WidgetMetadata    `validate:"dive"`
		ReleaseNotes   []ReleaseNote                `validate:"dive"`
		MappingRules   []MappingRule                `validate:"dive"`
		CustomFamilies []CustomFamily               `validate:"dive"`
		CommonModules  []CommonModule               `validate:"dive"`

		rules Rules
	}
)

// String returns the non-built type name.
func (p ParamType) String() string {
	if p < 0 || int(p) >= len(paramTypeNames) {
		return fmt.Sprintf("ParamType(%d)", int(p))
	}
	return paramTypeNames[p]
}

// IsValid reports whether p is a known type code.
func (p ParamType) IsValid() bool {
	return p >= 0 && int(p) < len(paramTypeNames)
}

// ParseParamType resolves a non-built type name (case-insensitive).
func ParseParamType(name string) (ParamType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i, n := range paramTypeNames {
		if n == normalized {
			return ParamType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter type %q", name)
}

// ScriptFile returns the flat script file name of the component.
func (s ScriptMetadata) ScriptFile() string {
	return s.FileName + ScriptFileExtension
}

// Rules returns the rules the integration was validated with.
func (it *Integration) Rules() Rules {
	return it.rules
}

// PingAction returns the ping action when one exists.
func (it *Integration) PingAction() (ActionMetadata, bool) {
	for _, a := range it.Actions {
		if isPing(a.Name) {
			return a, true
		}
	}
	return ActionMetadata{}, false
}

// ScriptFiles returns every flat script file name the built layout carries,
// component scripts first, then common modules.
func (it *Integration) ScriptFiles() []string {
	var files []string
	for _, key := range sortedKeys(it.Actions) {
		files = append(files, it.Actions[key].ScriptFile())
	}
	for _, key := range sortedKeys(it.Connectors) {
		files = append(files, it.Connectors[key].ScriptFile())
	}
	for _, key := range sortedKeys(it.Jobs) {
		files = append(files, it.Jobs[key].ScriptFile())
	}
	for _, m := range it.CommonModules {
		files = append(files, m.FileName)
	}
	return files
}

func isPing(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), "ping")
}
