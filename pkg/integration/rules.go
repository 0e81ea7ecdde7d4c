// SPDX-License-Identifier: MPL-2.0

package integration

import "strings"

type (
	// Rules carries the exemption lists and limits applied by validation.
	// The zero value applies no exemptions and no limits; use DefaultRules.
	Rules struct {
		// PingExempt lists integration identifiers that need no ping action.
		PingExempt []string `json:"ping_exempt" mapstructure:"ping_exempt"`
		// SSLExempt lists owner names (integration identifiers or connector
		// names) that need no 'Verify SSL' parameter.
		SSLExempt []string `json:"ssl_exempt" mapstructure:"ssl_exempt"`
		// SSLDefaultExempt lists owner names whose 'Verify SSL' parameter may
		// default to false.
		SSLDefaultExempt []string `json:"ssl_default_exempt" mapstructure:"ssl_default_exempt"`
		// SSLParameterNames are the accepted synonyms of 'Verify SSL'.
		SSLParameterNames []string `json:"ssl_parameter_names" mapstructure:"ssl_parameter_names"`
		// WordCountExemptParameters are parameter names allowed to exceed the word limit.
		WordCountExemptParameters []string `json:"word_count_exempt_parameters" mapstructure:"word_count_exempt_parameters"`
		// Limits bounds name and description sizes.
		Limits Limits `json:"limits" mapstructure:"limits"`
	}

	// Limits bounds the size of user-facing strings. A zero field disables that bound.
	Limits struct {
		DisplayNameMaxLength int `json:"display_name_max_length" mapstructure:"display_name_max_length"`
		DescriptionMaxLength int `json:"description_max_length" mapstructure:"description_max_length"`
		ScriptNameMaxLength  int `json:"script_name_max_length" mapstructure:"script_name_max_length"`
		ScriptNameMaxWords   int `json:"script_name_max_words" mapstructure:"script_name_max_words"`
		ParamNameMaxLength   int `json:"param_name_max_length" mapstructure:"param_name_max_length"`
		ParamNameMaxWords    int `json:"param_name_max_words" mapstructure:"param_name_max_words"`
	}
)

// DefaultRules returns the stock validation rules.
func DefaultRules() Rules {
	utilities := []string{"Tools", "Functions", "TemplateEngine", "FileUtilities", "EmailUtilities", "Lists"}
	return Rules{
		PingExempt: append([]string(nil), utilities...),
		SSLExempt:  append([]string(nil), utilities...),
		SSLParameterNames: []string{
			"Verify SSL",
			"Verify SSL Certificate",
			"SSL Verification",
			"Verify Certificate",
		},
		WordCountExemptParameters: []string{
			"Use dynamic list as a blocklist for rules",
			"Fetch Max Hours Backwards for first connector iteration",
		},
		Limits: DefaultLimits(),
	}
}

// DefaultLimits returns the stock size limits.
func DefaultLimits() Limits {
	return Limits{
		DisplayNameMaxLength: 100,
		DescriptionMaxLength: 2200,
		ScriptNameMaxLength:  100,
		ScriptNameMaxWords:   10,
		ParamNameMaxLength:   150,
		ParamNameMaxWords:    6,
	}
}

// IsPingExempt reports whether identifier skips the ping check.
func (r Rules) IsPingExempt(identifier string) bool {
	return containsFold(r.PingExempt, identifier)
}

// IsSSLExempt reports whether owner skips the 'Verify SSL' check.
func (r Rules) IsSSLExempt(owner string) bool {
	return containsFold(r.SSLExempt, owner)
}

// IsSSLDefaultExempt reports whether owner skips the 'Verify SSL' default-value check.
func (r Rules) IsSSLDefaultExempt(owner string) bool {
	return containsFold(r.SSLDefaultExempt, owner)
}

// IsSSLParameter reports whether name is an accepted 'Verify SSL' synonym.
func (r Rules) IsSSLParameter(name string) bool {
	return containsFold(r.SSLParameterNames, strings.TrimSpace(name))
}

// IsWordCountExempt reports whether a parameter name skips the word limit.
func (r Rules) IsWordCountExempt(name string) bool {
	return containsFold(r.WordCountExemptParameters, strings.TrimSpace(name))
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
