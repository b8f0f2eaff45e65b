// Package schema validates tool arguments against the JSON-schema subset
// used by tool input schemas: object properties with type, required,
// enum, numeric bounds and string length bounds.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
)

// Supported type names.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Schema is a parsed input schema document.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Enum                 []interface{}      `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Default              interface{}        `json:"default,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// Parse decodes and checks a tool input schema. The top level must describe
// an object; an empty document is treated as an object without properties.
func Parse(raw json.RawMessage) (*Schema, error) {
	if len(raw) == 0 {
		return &Schema{Type: TypeObject}, nil
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}
	if s.Type == "" {
		s.Type = TypeObject
	}
	if s.Type != TypeObject {
		return nil, fmt.Errorf("input schema must describe an object, got %q", s.Type)
	}
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return nil, fmt.Errorf("required property %q is not declared", name)
		}
	}
	for name, prop := range s.Properties {
		if err := prop.check(); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
	}
	return &s, nil
}

func (s *Schema) check() error {
	switch s.Type {
	case "", TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject:
	case TypeArray:
		if s.Items != nil {
			return s.Items.check()
		}
	default:
		return fmt.Errorf("unsupported type %q", s.Type)
	}
	if s.Minimum != nil && s.Maximum != nil && *s.Minimum > *s.Maximum {
		return fmt.Errorf("minimum %v exceeds maximum %v", *s.Minimum, *s.Maximum)
	}
	return nil
}

// MustParse is Parse for schemas known at compile time.
func MustParse(raw string) *Schema {
	s, err := Parse(json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks args and returns every problem found, ordered by the
// required list and then by property name. A nil result means args are valid.
func (s *Schema) Validate(args map[string]interface{}) []mcperrors.FieldError {
	var problems []mcperrors.FieldError

	for _, name := range s.Required {
		if v, ok := args[name]; !ok || v == nil {
			problems = append(problems, mcperrors.FieldError{Field: name, Reason: "required"})
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := args[name]
		prop, ok := s.Properties[name]
		if !ok {
			if s.AdditionalProperties != nil && !*s.AdditionalProperties {
				problems = append(problems, mcperrors.FieldError{Field: name, Reason: "unknown argument"})
			}
			continue
		}
		if value == nil {
			continue
		}
		if reason := prop.validateValue(value); reason != "" {
			problems = append(problems, mcperrors.FieldError{Field: name, Reason: reason})
		}
	}
	return problems
}

// validateValue returns an empty string when value satisfies s.
func (s *Schema) validateValue(value interface{}) string {
	switch s.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %s", kindOf(value))
		}
		n := len([]rune(str))
		if s.MinLength != nil && n < *s.MinLength {
			return fmt.Sprintf("must be at least %d characters", *s.MinLength)
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			return fmt.Sprintf("must be at most %d characters", *s.MaxLength)
		}
	case TypeInteger, TypeNumber:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("expected %s, got %s", s.Type, kindOf(value))
		}
		if s.Type == TypeInteger && f != math.Trunc(f) {
			return fmt.Sprintf("expected integer, got %v", f)
		}
		if s.Minimum != nil && f < *s.Minimum {
			return fmt.Sprintf("must be >= %v", *s.Minimum)
		}
		if s.Maximum != nil && f > *s.Maximum {
			return fmt.Sprintf("must be <= %v", *s.Maximum)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %s", kindOf(value))
		}
	case TypeArray:
		items, ok := value.([]interface{})
		if !ok {
			if strs, isStrs := value.([]string); isStrs {
				items = make([]interface{}, len(strs))
				for i, v := range strs {
					items[i] = v
				}
			} else {
				return fmt.Sprintf("expected array, got %s", kindOf(value))
			}
		}
		if s.Items != nil {
			for i, item := range items {
				if reason := s.Items.validateValue(item); reason != "" {
					return fmt.Sprintf("item %d: %s", i, reason)
				}
			}
		}
	case TypeObject:
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Sprintf("expected object, got %s", kindOf(value))
		}
	}

	if len(s.Enum) > 0 && !inEnum(s.Enum, value) {
		allowed := make([]string, len(s.Enum))
		for i, e := range s.Enum {
			allowed[i] = fmt.Sprint(e)
		}
		return fmt.Sprintf("must be one of [%s]", strings.Join(allowed, ", "))
	}
	return ""
}

// ApplyDefaults returns a copy of args with declared defaults filled in for
// absent properties.
func (s *Schema) ApplyDefaults(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args)+len(s.Properties))
	for k, v := range args {
		out[k] = v
	}
	for name, prop := range s.Properties {
		if _, ok := out[name]; !ok && prop.Default != nil {
			out[name] = prop.Default
		}
	}
	return out
}

func inEnum(enum []interface{}, value interface{}) bool {
	switch value.(type) {
	case map[string]interface{}, []interface{}, []string:
		return false
	}
	vf, vIsNum := toFloat(value)
	for _, e := range enum {
		if ef, ok := toFloat(e); ok && vIsNum {
			if ef == vf {
				return true
			}
			continue
		}
		if e == value {
			return true
		}
	}
	return false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func kindOf(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}, []string:
		return "array"
	}
	if _, ok := toFloat(value); ok {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}
