package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Declarative check tags.
const (
	CheckBannedTerms    = "banned_terms"
	CheckRequiredFields = "required_fields"
	CheckMaxLength      = "max_length"
	CheckNumericRange   = "numeric_range"
	CheckPattern        = "pattern"
	CheckAllowedValues  = "allowed_values"
)

type builtinCheck struct {
	name     string
	schema   string
	eval     CheckFunc
	validate func(map[string]any) error
}

func builtinChecks() []builtinCheck {
	patterns := &regexCache{}
	return []builtinCheck{
		{name: CheckBannedTerms, schema: bannedTermsSchema, eval: bannedTerms},
		{name: CheckRequiredFields, schema: requiredFieldsSchema, eval: requiredFields},
		{name: CheckMaxLength, schema: maxLengthSchema, eval: maxLength},
		{name: CheckNumericRange, schema: numericRangeSchema, eval: numericRange, validate: validateNumericRange},
		{name: CheckPattern, schema: patternSchema, eval: patterns.check},
		{name: CheckAllowedValues, schema: allowedValuesSchema, eval: allowedValues},
	}
}

const bannedTermsSchema = `{
  "type": "object",
  "properties": {
    "terms": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1},
    "fields": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "caseSensitive": {"type": "boolean"},
    "wholeWord": {"type": "boolean"}
  },
  "required": ["terms"],
  "additionalProperties": false
}`

const requiredFieldsSchema = `{
  "type": "object",
  "properties": {
    "fields": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1}
  },
  "required": ["fields"],
  "additionalProperties": false
}`

const maxLengthSchema = `{
  "type": "object",
  "properties": {
    "field": {"type": "string", "minLength": 1},
    "max": {"type": "integer", "minimum": 0}
  },
  "required": ["field", "max"],
  "additionalProperties": false
}`

const numericRangeSchema = `{
  "type": "object",
  "properties": {
    "field": {"type": "string", "minLength": 1},
    "min": {"type": "number"},
    "max": {"type": "number"}
  },
  "required": ["field"],
  "anyOf": [{"required": ["min"]}, {"required": ["max"]}],
  "additionalProperties": false
}`

const patternSchema = `{
  "type": "object",
  "properties": {
    "field": {"type": "string", "minLength": 1},
    "regex": {"type": "string", "format": "regex"},
    "mustMatch": {"type": "boolean"}
  },
  "required": ["field", "regex"],
  "additionalProperties": false
}`

const allowedValuesSchema = `{
  "type": "object",
  "properties": {
    "field": {"type": "string", "minLength": 1},
    "values": {"type": "array", "minItems": 1}
  },
  "required": ["field", "values"],
  "additionalProperties": false
}`

// decodeParams maps validated parameters onto a typed struct.
func decodeParams[T any](params map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("encode parameters: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode parameters: %w", err)
	}
	return out, nil
}

type bannedTermsParams struct {
	Terms         []string `json:"terms"`
	Fields        []string `json:"fields"`
	CaseSensitive bool     `json:"caseSensitive"`
	WholeWord     bool     `json:"wholeWord"`
}

// bannedTerms fails when any listed field (or, with no fields, any string in
// the payload) contains a banned term. Matched terms are not echoed back.
func bannedTerms(params map[string]any, data DataView) (Verdict, error) {
	p, err := decodeParams[bannedTermsParams](params)
	if err != nil {
		return Verdict{}, err
	}

	var hits []string
	inspect := func(path, text string) {
		if containsTerm(text, p.Terms, p.CaseSensitive, p.WholeWord) {
			hits = append(hits, path)
		}
	}

	if len(p.Fields) == 0 {
		data.WalkStrings(inspect)
	} else {
		for _, f := range p.Fields {
			val, ok := data.Get(f)
			if !ok {
				continue
			}
			NewDataView(map[string]any{f: val}).WalkStrings(inspect)
		}
	}

	if len(hits) > 0 {
		return Failed("banned content in %s", strings.Join(hits, ", ")), nil
	}
	return Passed(), nil
}

func containsTerm(text string, terms []string, caseSensitive, wholeWord bool) bool {
	if !caseSensitive {
		text = strings.ToLower(text)
	}
	for _, term := range terms {
		if !caseSensitive {
			term = strings.ToLower(term)
		}
		if !wholeWord {
			if strings.Contains(text, term) {
				return true
			}
			continue
		}
		for i := 0; ; {
			j := strings.Index(text[i:], term)
			if j < 0 {
				break
			}
			start, end := i+j, i+j+len(term)
			if isBoundary(text, start-1) && isBoundary(text, end) {
				return true
			}
			i = start + 1
		}
	}
	return false
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_')
}

type requiredFieldsParams struct {
	Fields []string `json:"fields"`
}

// requiredFields fails for absent, null or blank-string fields.
func requiredFields(params map[string]any, data DataView) (Verdict, error) {
	p, err := decodeParams[requiredFieldsParams](params)
	if err != nil {
		return Verdict{}, err
	}
	var missing []string
	for _, f := range p.Fields {
		if !data.Has(f) {
			missing = append(missing, f)
			continue
		}
		if s, ok := data.String(f); ok && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Failed("missing required fields: %s", strings.Join(missing, ", ")), nil
	}
	return Passed(), nil
}

type maxLengthParams struct {
	Field string `json:"field"`
	Max   int    `json:"max"`
}

// maxLength bounds a string (in characters) or an array (in elements).
// An absent field passes; presence is required_fields' job.
func maxLength(params map[string]any, data DataView) (Verdict, error) {
	p, err := decodeParams[maxLengthParams](params)
	if err != nil {
		return Verdict{}, err
	}
	val, ok := data.Get(p.Field)
	if !ok || val == nil {
		return Passed(), nil
	}
	var n int
	switch t := val.(type) {
	case string:
		n = utf8.RuneCountInString(t)
	case []any:
		n = len(t)
	case []string:
		n = len(t)
	default:
		return Verdict{}, fmt.Errorf("field %s: expected string or array, got %T", p.Field, val)
	}
	if n > p.Max {
		return Failed("%s has length %d, maximum is %d", p.Field, n, p.Max), nil
	}
	return Passed(), nil
}

type numericRangeParams struct {
	Field string   `json:"field"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

func validateNumericRange(params map[string]any) error {
	p, err := decodeParams[numericRangeParams](params)
	if err != nil {
		return err
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("min %v is greater than max %v", *p.Min, *p.Max)
	}
	return nil
}

// numericRange bounds a number inclusively. A non-numeric value is an
// evaluation error, not a policy failure.
func numericRange(params map[string]any, data DataView) (Verdict, error) {
	p, err := decodeParams[numericRangeParams](params)
	if err != nil {
		return Verdict{}, err
	}
	if !data.Has(p.Field) {
		return Passed(), nil
	}
	n, ok := data.Number(p.Field)
	if !ok {
		return Verdict{}, fmt.Errorf("field %s is not a number", p.Field)
	}
	if p.Min != nil && n < *p.Min {
		return Failed("%s is %v, minimum is %v", p.Field, n, *p.Min), nil
	}
	if p.Max != nil && n > *p.Max {
		return Failed("%s is %v, maximum is %v", p.Field, n, *p.Max), nil
	}
	return Passed(), nil
}

type patternParams struct {
	Field     string `json:"field"`
	Regex     string `json:"regex"`
	MustMatch *bool  `json:"mustMatch"`
}

type regexCache struct {
	compiled sync.Map
}

func (c *regexCache) get(expr string) (*regexp.Regexp, error) {
	if re, ok := c.compiled.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	c.compiled.Store(expr, re)
	return re, nil
}

// check requires a string field to match (or, with mustMatch=false, to not
// match) the expression.
func (c *regexCache) check(params map[string]any, data DataView) (Verdict, error) {
	p, err := decodeParams[patternParams](params)
	if err != nil {
		return Verdict{}, err
	}
	if !data.Has(p.Field) {
		return Passed(), nil
	}
	s, ok := data.String(p.Field)
	if !ok {
		return Verdict{}, fmt.Errorf("field %s is not a string", p.Field)
	}
	re, err := c.get(p.Regex)
	if err != nil {
		return Verdict{}, fmt.Errorf("compile pattern: %w", err)
	}
	mustMatch := p.MustMatch == nil || *p.MustMatch
	matched := re.MatchString(s)
	switch {
	case mustMatch && !matched:
		return Failed("%s does not match the required pattern", p.Field), nil
	case !mustMatch && matched:
		return Failed("%s matches a forbidden pattern", p.Field), nil
	}
	return Passed(), nil
}

type allowedValuesParams struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
}

func allowedValues(params map[string]any, data DataView) (Verdict, error) {
	p, err := decodeParams[allowedValuesParams](params)
	if err != nil {
		return Verdict{}, err
	}
	val, ok := data.Get(p.Field)
	if !ok {
		return Passed(), nil
	}
	if n, isNum := toFloat(val); isNum {
		val = n
	}
	for _, allowed := range p.Values {
		if reflect.DeepEqual(val, allowed) {
			return Passed(), nil
		}
	}
	return Failed("%s has a value outside the allowed set", p.Field), nil
}
