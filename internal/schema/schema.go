// Package schema defines the fixed feature schema shared between the trainer
// and the inference service, and validates raw request payloads against it.
package schema

import (
	"fmt"
	"math"
	"sort"
)

// FieldKind distinguishes numeric from categorical features.
type FieldKind string

const (
	KindNumeric     FieldKind = "numeric"
	KindCategorical FieldKind = "categorical"
)

// Field describes a single feature: its name, kind, and value domain.
// For numeric fields Min is the inclusive lower bound (nil means unbounded).
// For categorical fields Categories is the closed set of allowed values.
type Field struct {
	Name       string    `json:"name" yaml:"name"`
	Kind       FieldKind `json:"kind" yaml:"kind"`
	Min        *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Categories []string  `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Schema is the ordered feature schema fixed at artifact build time.
// Field order matters: it defines the encoding order of the model's
// design matrix columns.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// Vector is a validated feature vector. Numeric features hold their parsed
// value; categorical features hold the matched category string.
type Vector struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

// FieldError describes a single validation failure tied to a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a raw decoded JSON object against the schema. It returns
// the typed vector on success, or the full list of field errors otherwise.
// Extra fields, missing fields, type mismatches and out-of-domain values are
// all errors; nothing is defaulted or silently dropped.
func (s *Schema) Validate(raw map[string]interface{}) (*Vector, []FieldError) {
	var errs []FieldError

	vec := &Vector{
		Numeric:     make(map[string]float64, len(s.Fields)),
		Categorical: make(map[string]string, len(s.Fields)),
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		seen[f.Name] = true

		val, ok := raw[f.Name]
		if !ok {
			errs = append(errs, FieldError{Field: f.Name, Message: "required field is missing"})
			continue
		}

		switch f.Kind {
		case KindNumeric:
			num, ok := val.(float64)
			if !ok {
				errs = append(errs, FieldError{
					Field:   f.Name,
					Message: fmt.Sprintf("expected a number, got %s", jsonTypeName(val)),
				})
				continue
			}
			if math.IsNaN(num) || math.IsInf(num, 0) {
				errs = append(errs, FieldError{Field: f.Name, Message: "value must be finite"})
				continue
			}
			if f.Min != nil && num < *f.Min {
				errs = append(errs, FieldError{
					Field:   f.Name,
					Message: fmt.Sprintf("value %v is below minimum %v", num, *f.Min),
				})
				continue
			}
			vec.Numeric[f.Name] = num

		case KindCategorical:
			str, ok := val.(string)
			if !ok {
				errs = append(errs, FieldError{
					Field:   f.Name,
					Message: fmt.Sprintf("expected a string, got %s", jsonTypeName(val)),
				})
				continue
			}
			if !contains(f.Categories, str) {
				errs = append(errs, FieldError{
					Field:   f.Name,
					Message: fmt.Sprintf("value %q is not one of the allowed categories", str),
				})
				continue
			}
			vec.Categorical[f.Name] = str

		default:
			errs = append(errs, FieldError{
				Field:   f.Name,
				Message: fmt.Sprintf("schema declares unsupported kind %q", f.Kind),
			})
		}
	}

	// Unknown fields are rejected, not ignored.
	var extra []string
	for name := range raw {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		errs = append(errs, FieldError{Field: name, Message: "unknown field"})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return vec, nil
}

// ValidateSpec checks the schema itself: every field needs a name, a known
// kind, and categorical fields need a non-empty category set.
func (s *Schema) ValidateSpec() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}

	names := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		names[f.Name] = true

		switch f.Kind {
		case KindNumeric:
		case KindCategorical:
			if len(f.Categories) == 0 {
				return fmt.Errorf("categorical field %q has no categories", f.Name)
			}
		default:
			return fmt.Errorf("field %q has unsupported kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

// Names returns field names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// jsonTypeName maps a decoded encoding/json value to the JSON type name used
// in validation messages.
func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
