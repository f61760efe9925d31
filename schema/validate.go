package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError pins one failure to a path inside the document, e.g.
// "filters.limit". Missing marks a required field that was absent, which
// callers report differently from a present-but-wrong value.
type ValidationError struct {
	Path    string
	Message string
	Missing bool
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every failure found in one pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for _, err := range e {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks raw JSON against the schema. It returns nil when valid
// and ValidationErrors listing every violation otherwise.
func (s *Schema) Validate(data json.RawMessage) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return ValidationErrors{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	return s.ValidateValue(value)
}

// ValidateValue checks an already-decoded value against the schema.
func (s *Schema) ValidateValue(value any) error {
	var errs ValidationErrors
	s.check("", value, &errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Schema) check(path string, value any, errs *ValidationErrors) {
	if value == nil {
		return
	}

	switch s.Type {
	case "object":
		s.checkObject(path, value, errs)
	case "array":
		s.checkArray(path, value, errs)
	case "string":
		s.checkString(path, value, errs)
	case "integer":
		s.checkNumeric(path, value, errs, true)
	case "number":
		s.checkNumeric(path, value, errs, false)
	case "boolean":
		if _, ok := value.(bool); !ok {
			fail(errs, path, "expected boolean, got %T", value)
		}
	}
}

func (s *Schema) checkObject(path string, value any, errs *ValidationErrors) {
	obj, ok := value.(map[string]any)
	if !ok {
		fail(errs, path, "expected object, got %T", value)
		return
	}

	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			*errs = append(*errs, &ValidationError{
				Path:    joinPath(path, name),
				Message: "required field is missing",
				Missing: true,
			})
		}
	}

	for name, prop := range s.Properties {
		if fieldValue, present := obj[name]; present {
			prop.check(joinPath(path, name), fieldValue, errs)
		}
	}
}

func (s *Schema) checkArray(path string, value any, errs *ValidationErrors) {
	items, ok := value.([]any)
	if !ok {
		fail(errs, path, "expected array, got %T", value)
		return
	}
	if s.Items == nil {
		return
	}
	for i, item := range items {
		s.Items.check(fmt.Sprintf("%s[%d]", path, i), item, errs)
	}
}

func (s *Schema) checkString(path string, value any, errs *ValidationErrors) {
	str, ok := value.(string)
	if !ok {
		fail(errs, path, "expected string, got %T", value)
		return
	}
	if len(s.Enum) > 0 && !s.enumContains(str) {
		fail(errs, path, "value %q must be one of %v", str, s.Enum)
	}
}

func (s *Schema) checkNumeric(path string, value any, errs *ValidationErrors, wantInteger bool) {
	num, ok := value.(float64)
	if !ok {
		if wantInteger {
			fail(errs, path, "expected integer, got %T", value)
		} else {
			fail(errs, path, "expected number, got %T", value)
		}
		return
	}
	if wantInteger && num != float64(int64(num)) {
		fail(errs, path, "expected integer, got %v", num)
		return
	}
	if s.Minimum != nil && num < *s.Minimum {
		fail(errs, path, "value %v is below minimum %v", num, *s.Minimum)
	}
	if s.Maximum != nil && num > *s.Maximum {
		fail(errs, path, "value %v is above maximum %v", num, *s.Maximum)
	}
	if len(s.Enum) > 0 && !s.enumContains(num) {
		fail(errs, path, "value %v must be one of %v", num, s.Enum)
	}
}

func (s *Schema) enumContains(value any) bool {
	for _, allowed := range s.Enum {
		if allowed == value {
			return true
		}
	}
	return false
}

func fail(errs *ValidationErrors, path, format string, args ...any) {
	*errs = append(*errs, &ValidationError{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
