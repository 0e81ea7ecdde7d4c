// SPDX-License-Identifier: MPL-2.0

package integration

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/mod/semver"

	"github.com/soarhub/mp/pkg/fspath"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	fileKeyPattern    = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*$`)
	scriptNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _\-.,()'/:&]*$`)
	pyVersionPattern  = regexp.MustCompile(`^3\.[0-9]+$`)

	validate = newValidator()
)

type (
	// Option configures New, FromBuiltPath and FromNonBuiltPath.
	Option func(*options)

	options struct {
		rules Rules
	}

	// issues accumulates validation errors for one integration.
	issues struct {
		identifier string
		errs       []error
	}
)

// WithRules sets the rules used to validate the integration.
func WithRules(rules Rules) Option {
	return func(o *options) { o.rules = rules }
}

func buildOptions(opts []Option) options {
	o := options{rules: DefaultRules()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New normalizes and validates in, returning the resulting Integration.
// Parameter defaults are coerced to the Go type matching their ParamType.
func New(in Integration, opts ...Option) (*Integration, error) {
	o := buildOptions(opts)

	it := in
	it.rules = o.rules
	it.Actions = cloneMap(in.Actions)
	it.Connectors = cloneMap(in.Connectors)
	it.Jobs = cloneMap(in.Jobs)
	it.Widgets = cloneMap(in.Widgets)

	iss := &issues{identifier: it.Identifier}
	it.Parameters = normalizeParameters(iss, "Parameters", it.Parameters)
	for key, a := range it.Actions {
		a.Parameters = normalizeParameters(iss, fmt.Sprintf("Actions[%s].Parameters", key), a.Parameters)
		it.Actions[key] = a
	}
	for key, c := range it.Connectors {
		c.Parameters = normalizeParameters(iss, fmt.Sprintf("Connectors[%s].Parameters", key), c.Parameters)
		it.Connectors[key] = c
	}
	for key, j := range it.Jobs {
		j.Parameters = normalizeParameters(iss, fmt.Sprintf("Jobs[%s].Parameters", key), j.Parameters)
		it.Jobs[key] = j
	}
	for key, w := range it.Widgets {
		w.Parameters = normalizeParameters(iss, fmt.Sprintf("Widgets[%s].Parameters", key), w.Parameters)
		it.Widgets[key] = w
	}
	if err := iss.err(); err != nil {
		return nil, err
	}

	if err := it.Validate(o.rules); err != nil {
		return nil, err
	}
	return &it, nil
}

// Validate runs every structural rule against it and returns all violations
// joined, or nil.
func (it *Integration) Validate(rules Rules) error {
	iss := &issues{identifier: it.Identifier}

	if err := validate.Struct(it); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating integration %s: %w", it.Identifier, err)
		}
		for _, fe := range verrs {
			iss.add(fieldPath(fe.Namespace()), ErrFieldValue, describeFieldError(fe))
		}
	}

	lim := rules.Limits
	iss.checkVar("Metadata.DisplayName", it.Metadata.DisplayName, maxTag(lim.DisplayNameMaxLength))
	iss.checkVar("Metadata.Description", it.Metadata.Description, maxTag(lim.DescriptionMaxLength))
	iss.checkParameters("Parameters", it.Parameters, rules)

	for _, key := range sortedKeys(it.Actions) {
		iss.checkScript("Actions["+key+"]", it.Actions[key].ScriptMetadata, rules)
	}
	for _, key := range sortedKeys(it.Connectors) {
		iss.checkScript("Connectors["+key+"]", it.Connectors[key].ScriptMetadata, rules)
	}
	for _, key := range sortedKeys(it.Jobs) {
		iss.checkScript("Jobs["+key+"]", it.Jobs[key].ScriptMetadata, rules)
	}
	for _, key := range sortedKeys(it.Widgets) {
		iss.checkScript("Widgets["+key+"]", it.Widgets[key].ScriptMetadata, rules)
	}

	it.checkPing(iss, rules)
	it.checkSSL(iss, rules)
	it.checkScriptCollisions(iss)

	return iss.err()
}

func (it *Integration) checkPing(iss *issues, rules Rules) {
	if rules.IsPingExempt(it.Identifier) {
		return
	}

	var pings []ActionMetadata
	for _, key := range sortedKeys(it.Actions) {
		if a := it.Actions[key]; isPing(a.Name) {
			pings = append(pings, a)
		}
	}

	switch {
	case len(pings) == 0:
		iss.add("Actions", ErrPingAction, fmt.Sprintf("%s doesn't implement a 'ping' action", it.Identifier))
		return
	case len(pings) > 1:
		iss.add("Actions", ErrPingAction, fmt.Sprintf("%s implements %d 'ping' actions", it.Identifier, len(pings)))
	}

	var disabled, custom []string
	for _, p := range pings {
		if !p.IsEnabled {
			disabled = append(disabled, p.FileName)
		}
		if p.IsCustom {
			custom = append(custom, p.FileName)
		}
	}
	if len(disabled) > 0 {
		iss.add("Actions", ErrPingAction, "contains disabled scripts: "+strings.Join(disabled, ", "))
	}
	if len(custom) > 0 {
		iss.add("Actions", ErrPingAction, "contains custom scripts: "+strings.Join(custom, ", "))
	}
}

// checkSSL requires a 'Verify SSL' parameter on the integration. A connector
// inherits the integration parameters, so only SSL parameters a connector
// declares itself are checked for type and default.
func (it *Integration) checkSSL(iss *issues, rules Rules) {
	if rules.IsSSLExempt(it.Identifier) {
		return
	}

	found := checkSSLParams(iss, "Parameters", it.Identifier, it.Parameters, rules)
	if !found {
		iss.add("Parameters", ErrSSLParameter, fmt.Sprintf("%s is missing a 'Verify SSL' parameter", it.Identifier))
	}

	for _, key := range sortedKeys(it.Connectors) {
		c := it.Connectors[key]
		if rules.IsSSLExempt(c.Name) {
			continue
		}
		checkSSLParams(iss, "Connectors["+key+"].Parameters", c.Name, c.Parameters, rules)
	}
}

func checkSSLParams(iss *issues, field, owner string, params []Parameter, rules Rules) bool {
	found := false
	for i, p := range params {
		if !rules.IsSSLParameter(p.Name) {
			continue
		}
		found = true
		path := fmt.Sprintf("%s[%d]", field, i)
		if p.Type != ParamBoolean {
			iss.add(path, ErrSSLParameter, fmt.Sprintf("'%s' parameter must be of type 'boolean'", p.Name))
			continue
		}
		if rules.IsSSLDefaultExempt(owner) {
			continue
		}
		if v, ok := p.DefaultValue.(bool); !ok || !v {
			iss.add(path, ErrSSLParameter, fmt.Sprintf("'%s' parameter must be a boolean true", p.Name))
		}
	}
	return found
}

func (it *Integration) checkScriptCollisions(iss *issues) {
	seen := make(map[string]bool)
	for _, f := range it.ScriptFiles() {
		if fspath.IsWindowsReservedName(f) {
			iss.add("Scripts", ErrReservedFileName, fmt.Sprintf("script file %s cannot be checked out on Windows", f))
		}
		lower := strings.ToLower(f)
		if seen[lower] {
			iss.add("Scripts", ErrScriptCollision, fmt.Sprintf("script file %s is produced more than once", f))
			continue
		}
		seen[lower] = true
	}
}

func (iss *issues) checkScript(field string, s ScriptMetadata, rules Rules) {
	lim := rules.Limits
	iss.checkVar(field+".Name", s.Name, maxTag(lim.ScriptNameMaxLength), maxWordsTag(lim.ScriptNameMaxWords))
	iss.checkVar(field+".Description", s.Description, maxTag(lim.DescriptionMaxLength))
	iss.checkParameters(field+".Parameters", s.Parameters, rules)
}

func (iss *issues) checkParameters(field string, params []Parameter, rules Rules) {
	lim := rules.Limits
	for i, p := range params {
		path := fmt.Sprintf("%s[%d]", field, i)
		words := ""
		if !rules.IsWordCountExempt(p.Name) {
			words = maxWordsTag(lim.ParamNameMaxWords)
		}
		iss.checkVar(path+".Name", p.Name, maxTag(lim.ParamNameMaxLength), words)
		iss.checkVar(path+".Description", p.Description, maxTag(lim.DescriptionMaxLength))
	}
}

// checkVar validates value against the non-empty tags.
func (iss *issues) checkVar(field string, value string, tags ...string) {
	var active []string
	for _, t := range tags {
		if t != "" {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return
	}

	err := validate.Var(value, strings.Join(active, ","))
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		iss.add(field, ErrFieldValue, err.Error())
		return
	}
	for _, fe := range verrs {
		iss.add(field, ErrFieldValue, describeFieldError(fe))
	}
}

func (iss *issues) add(field string, rule error, msg string) {
	iss.errs = append(iss.errs, &ValidationError{
		Integration: iss.identifier,
		Field:       field,
		Rule:        rule,
		Message:     msg,
	})
}

func (iss *issues) err() error {
	return errors.Join(iss.errs...)
}

// normalizeParameters coerces every default to the Go type of its ParamType.
func normalizeParameters(iss *issues, field string, params []Parameter) []Parameter {
	if len(params) == 0 {
		return params
	}
	out := make([]Parameter, len(params))
	for i, p := range params {
		v, err := NormalizeDefault(p.Type, p.DefaultValue)
		if err != nil {
			iss.add(fmt.Sprintf("%s[%d].DefaultValue", field, i), ErrParamDefault,
				fmt.Sprintf("default of '%s': %v", p.Name, err))
			out[i] = p
			continue
		}
		p.DefaultValue = v
		if p.Type == ParamDDL && v != nil && len(p.OptionalValues) > 0 && !slices.Contains(p.OptionalValues, v.(string)) {
			iss.add(fmt.Sprintf("%s[%d].DefaultValue", field, i), ErrParamDefault,
				fmt.Sprintf("default of '%s' is not one of its optional values", p.Name))
		}
		out[i] = p
	}
	return out
}

// NormalizeDefault coerces a raw default value to the Go type matching t:
// bool for ParamBoolean, int for ParamInteger and string otherwise. Empty
// strings become nil. Booleans and integers also accept their string forms,
// which is how the built layout stores them.
func NormalizeDefault(t ParamType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch t {
	case ParamBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", v)
			}
			return b, nil
		}
	case ParamInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case uint64:
			if v <= math.MaxInt {
				return int(v), nil
			}
		case float64:
			if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
				return int(v), nil
			}
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", v)
			}
			return n, nil
		}
	default:
		if !t.IsValid() {
			return nil, fmt.Errorf("unknown parameter type %d", int(t))
		}
		if v, ok := raw.(string); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%v (%T) does not match type %s", raw, raw, t)
}

// FormatDefault renders a normalized default as the built layout stores it.
func FormatDefault(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(d)
	case int:
		return strconv.Itoa(d)
	case string:
		return d
	default:
		return fmt.Sprint(d)
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("registering %s validation: %v", tag, err))
		}
	}
	mustRegister("identifier", regexValidation(identifierPattern))
	mustRegister("filekey", regexValidation(fileKeyPattern))
	mustRegister("scriptname", regexValidation(scriptNamePattern))
	mustRegister("pyversion", regexValidation(pyVersionPattern))
	mustRegister("version", func(fl validator.FieldLevel) bool {
		return IsVersion(fl.Field().String())
	})
	mustRegister("paramtype", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.Int {
			return false
		}
		return ParamType(fl.Field().Int()).IsValid()
	})
	mustRegister("publishtime", func(fl validator.FieldLevel) bool {
		_, err := ParsePublishTime(fl.Field().String())
		return err == nil
	})
	mustRegister("maxwords", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(strings.Fields(fl.Field().String())) <= limit
	})
	return v
}

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// IsVersion reports whether v is a dotted numeric version such as "1", "12.0"
// or "2.1.3".
func IsVersion(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return false
	}
	return semver.IsValid("v" + v)
}

func maxTag(n int) string {
	if n <= 0 {
		return ""
	}
	return "max=" + strconv.Itoa(n)
}

func maxWordsTag(n int) string {
	if n <= 0 {
		return ""
	}
	return "maxwords=" + strconv.Itoa(n)
}

// fieldPath turns a validator namespace such as
// "Integration.Actions[ping].ScriptMetadata.Name" into "Actions[ping].Name".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Integration.")
	return strings.ReplaceAll(ns, ".ScriptMetadata", "")
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("exceeds %s characters", fe.Param())
	case "maxwords":
		return fmt.Sprintf("exceeds %s words", fe.Param())
	case "version":
		return fmt.Sprintf("%q is not a valid version", fe.Value())
	case "pyversion":
		return fmt.Sprintf("%q is not a major.minor Python 3 version", fe.Value())
	case "identifier":
		return fmt.Sprintf("%q must start with a letter and contain only letters, digits and underscores", fe.Value())
	case "filekey":
		return fmt.Sprintf("%q must contain only letters, digits, '_' and '-'", fe.Value())
	case "scriptname":
		return fmt.Sprintf("%q contains characters that are not allowed in a script name", fe.Value())
	case "paramtype":
		return fmt.Sprintf("%v is not a known parameter type", fe.Value())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s", fe.Value(), fe.Param())
	case "publishtime":
		return fmt.Sprintf("%q must be a date (YYYY-MM-DD) or an RFC 3339 timestamp", fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fe.Error()
	}
}

// cloneMap returns a shallow copy of m, never nil.
func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return maps.Clone(m)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
