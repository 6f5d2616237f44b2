package schemas

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RepairError indicates that raw LLM output could not be brought into
// conformance with its schema. Callers fall through to the degraded path.
type RepairError struct {
	Message string
	Cause   error
}

func (e *RepairError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("schema repair failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("schema repair failed: %s", e.Message)
}

func (e *RepairError) Unwrap() error {
	return e.Cause
}

// Repair takes raw LLM output and returns JSON that validates against the
// schema. It tries, in order:
//  1. the raw text as-is (after trimming markdown fences),
//  2. the first balanced JSON object embedded in the text,
//  3. the parsed object with missing required fields filled with neutral
//     defaults where the schema allows it (empty arrays, false, empty string).
//
// Numeric required fields are never fabricated; if one is missing the repair
// fails and the caller must use its deterministic fallback.
func Repair(schemaContent, raw string) (string, error) {
	// Probe the schema itself first: validating an empty object cannot fail
	// to load unless the schema is broken.
	if err := Validate(schemaContent, "{}"); err != nil {
		if _, ok := err.(*SchemaLoadError); ok {
			return "", &RepairError{Message: "schema unusable", Cause: err}
		}
	}

	candidate := stripFences(raw)
	if err := Validate(schemaContent, candidate); err == nil {
		return candidate, nil
	}

	if extracted := extractObject(candidate); extracted != "" && extracted != candidate {
		if err := Validate(schemaContent, extracted); err == nil {
			return extracted, nil
		}
		candidate = extracted
	}

	filled, err := fillDefaults(schemaContent, candidate)
	if err != nil {
		return "", err
	}
	if err := Validate(schemaContent, filled); err != nil {
		return "", &RepairError{Message: "document invalid after repair", Cause: err}
	}
	return filled, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// extractObject returns the first balanced top-level JSON object in text.
// Braces inside strings are skipped.
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// schemaShape is the subset of JSON Schema the default-filling step reads.
type schemaShape struct {
	Required   []string              `json:"required"`
	Properties map[string]schemaProp `json:"properties"`
}

type schemaProp struct {
	Type      string `json:"type"`
	MinLength int    `json:"minLength"`
	MinItems  int    `json:"minItems"`
}

func fillDefaults(schemaContent, candidate string) (string, error) {
	var shape schemaShape
	if err := json.Unmarshal([]byte(schemaContent), &shape); err != nil {
		return "", &RepairError{Message: "cannot parse schema for defaults", Cause: err}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return "", &RepairError{Message: "output is not a JSON object", Cause: err}
	}

	for _, field := range shape.Required {
		if _, ok := doc[field]; ok {
			continue
		}
		prop := shape.Properties[field]
		switch prop.Type {
		case "array":
			if prop.MinItems > 0 {
				return "", &RepairError{Message: fmt.Sprintf("required field %q missing and must be non-empty", field)}
			}
			doc[field] = []any{}
		case "boolean":
			doc[field] = false
		case "string":
			if prop.MinLength > 0 {
				return "", &RepairError{Message: fmt.Sprintf("required field %q missing and must be non-empty", field)}
			}
			doc[field] = ""
		default:
			// Objects and numbers carry meaning we must not invent.
			return "", &RepairError{Message: fmt.Sprintf("required field %q missing", field)}
		}
	}

	repaired, err := json.Marshal(doc)
	if err != nil {
		return "", &RepairError{Message: "failed to re-encode repaired document", Cause: err}
	}
	return string(repaired), nil
}
