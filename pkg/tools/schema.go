package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// NormalizeSchema returns a parameter schema the model backend accepts.
//
// A missing schema becomes an empty object schema. An object schema
// without a properties field, or with a null one, gets "properties": {}.
// That includes type unions such as ["object", "null"]. Any other schema
// is returned unchanged, byte for byte.
func NormalizeSchema(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyObjectSchema, nil
	}

	var schema map[string]any
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return nil, fmt.Errorf("parameter schema is not a JSON object: %w", err)
	}

	if !isObjectType(schema["type"]) {
		return raw, nil
	}
	if props, ok := schema["properties"]; ok && props != nil {
		return raw, nil
	}

	schema["properties"] = map[string]any{}
	out, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding normalized schema: %w", err)
	}
	return out, nil
}

// isObjectType reports whether a schema "type" value is "object" or a
// union that includes it.
func isObjectType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "object"
	case []any:
		for _, e := range v {
			if e == "object" {
				return true
			}
		}
	}
	return false
}
