// Package schema generates JSON Schemas from Go structs and validates raw
// JSON against them. Field schemas come from the struct shape plus the
// `jsonschema` tag, e.g.:
//
//	type Input struct {
//	    Query string  `json:"query" jsonschema:"required,description=search text"`
//	    Limit int     `json:"limit" jsonschema:"minimum=1,maximum=100"`
//	    Sort  string  `json:"sort" jsonschema:"enum=asc,enum=desc"`
//	}
package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Schema is a JSON Schema subset: enough for flat and nested parameter
// objects with type, enum, and range constraints.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Description string             `json:"description,omitempty"`
	Default     any                `json:"default,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Generate creates a schema from a Go value's type.
func Generate(v any) (*Schema, error) {
	return GenerateFromType(reflect.TypeOf(v))
}

// GenerateFromType creates a schema from a reflect.Type.
func GenerateFromType(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fmt.Errorf("schema: nil type")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return structSchema(t)
	case reflect.String:
		return &Schema{Type: "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}, nil
	case reflect.Bool:
		return &Schema{Type: "boolean"}, nil
	case reflect.Slice, reflect.Array:
		items, err := GenerateFromType(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Schema{Type: "array", Items: items}, nil
	case reflect.Map:
		return &Schema{Type: "object"}, nil
	case reflect.Interface:
		return &Schema{}, nil
	default:
		return nil, fmt.Errorf("schema: unsupported kind %s", t.Kind())
	}
}

func structSchema(t reflect.Type) (*Schema, error) {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, skip := fieldName(field)
		if skip {
			continue
		}

		fieldSchema, err := GenerateFromType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}

		required, err := applyTag(field.Tag.Get("jsonschema"), fieldSchema)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if required {
			s.Required = append(s.Required, name)
		}
		s.Properties[name] = fieldSchema
	}
	return s, nil
}

func fieldName(field reflect.StructField) (name string, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name = field.Name
	if tag != "" {
		if base := strings.Split(tag, ",")[0]; base != "" {
			name = base
		}
	}
	return name, false
}

// applyTag folds one `jsonschema` tag into the field schema. Recognized
// directives: required, description=, default=, enum= (repeatable),
// minimum=, maximum=.
func applyTag(tag string, s *Schema) (required bool, err error) {
	if tag == "" {
		return false, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "":
		case "required":
			required = true
		case "description":
			s.Description = value
		case "default":
			s.Default = coerce(s.Type, value)
		case "enum":
			if !hasValue {
				return false, fmt.Errorf("schema: enum directive needs a value")
			}
			s.Enum = append(s.Enum, coerce(s.Type, value))
		case "minimum":
			f, perr := strconv.ParseFloat(value, 64)
			if perr != nil {
				return false, fmt.Errorf("schema: bad minimum %q: %w", value, perr)
			}
			s.Minimum = &f
		case "maximum":
			f, perr := strconv.ParseFloat(value, 64)
			if perr != nil {
				return false, fmt.Errorf("schema: bad maximum %q: %w", value, perr)
			}
			s.Maximum = &f
		default:
			return false, fmt.Errorf("schema: unknown directive %q", key)
		}
	}
	return required, nil
}

// coerce converts a tag literal into the field's JSON type so enum and
// default values compare correctly against decoded JSON.
func coerce(schemaType, literal string) any {
	switch schemaType {
	case "integer", "number":
		if f, err := strconv.ParseFloat(literal, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(literal); err == nil {
			return b
		}
	}
	return literal
}
