package gateway

import (
	"encoding/json"
	"fmt"
)

// degradedResponse synthesizes a minimal well-formed document for the given
// response schema. It is deterministic and deliberately low-confidence:
// numeric fields sit mid-scale, strings say the service is degraded, and
// booleans are false. Returns an error when the schema cannot be read.
func degradedResponse(schemaContent string) (string, error) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(schemaContent), &schema); err != nil {
		return "", fmt.Errorf("cannot parse response schema: %w", err)
	}

	doc := synthesize(schema)
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("cannot encode degraded response: %w", err)
	}
	return string(out), nil
}

func synthesize(schema map[string]any) any {
	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		obj := make(map[string]any)
		props, _ := schema["properties"].(map[string]any)
		for name, raw := range props {
			propSchema, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			obj[name] = synthesize(propSchema)
		}
		return obj
	case "array":
		items, _ := schema["items"].(map[string]any)
		if items == nil {
			return []any{}
		}
		if minItems, ok := schema["minItems"].(float64); ok && minItems > 0 {
			return []any{synthesize(items)}
		}
		return []any{}
	case "string":
		if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
			if s, ok := enum[0].(string); ok {
				return s
			}
		}
		return "unavailable"
	case "integer":
		if minimum, ok := schema["minimum"].(float64); ok {
			return int(minimum)
		}
		return 1
	case "number":
		return 50.0
	case "boolean":
		return false
	}
	return nil
}
