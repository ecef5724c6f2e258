package birthdaybot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// intAsStringKeysInSchema lists keys that genai.Schema's UnmarshalJSON expects as strings
// but are standardly numbers in JSON Schema.
var intAsStringKeysInSchema = map[string]bool{
	"minLength":     true,
	"maxLength":     true,
	"minItems":      true,
	"maxItems":      true,
	"minProperties": true,
	"maxProperties": true,
}

// normalizeSchemaDocument rewrites a decoded JSON Schema object in place so
// genai.Schema accepts it: integer bounds become strings, lower-case type
// names become genai.Type constants, and string formats Gemini rejects are
// dropped.
func normalizeSchemaDocument(data map[string]any) {
	if typeVal, ok := data["type"].(string); ok {
		if typeVal == "string" {
			if formatVal, ok := data["format"].(string); ok && formatVal != "enum" && formatVal != "date-time" {
				delete(data, "format")
			}
		}
		data["type"] = strings.ToUpper(typeVal)
	}

	for key, value := range data {
		if intAsStringKeysInSchema[key] {
			if numVal, ok := value.(float64); ok {
				data[key] = strconv.FormatInt(int64(numVal), 10)
			}
		}

		switch nested := value.(type) {
		case map[string]any:
			normalizeSchemaDocument(nested)
		case []any:
			for _, item := range nested {
				if itemMap, ok := item.(map[string]any); ok {
					normalizeSchemaDocument(itemMap)
				}
			}
		}
	}
}

// DeserializeToolSchema turns a JSON Schema document into a *genai.Schema.
// An empty or null document yields an object schema without properties.
func DeserializeToolSchema(jsonBytes []byte) (*genai.Schema, error) {
	if len(jsonBytes) == 0 || string(jsonBytes) == "null" {
		return &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}, nil
	}

	var rawData map[string]any
	if err := json.Unmarshal(jsonBytes, &rawData); err != nil {
		return nil, fmt.Errorf("DeserializeToolSchema: error unmarshalling to raw map: %w", err)
	}

	normalizeSchemaDocument(rawData)

	modifiedJSON, err := json.Marshal(rawData)
	if err != nil {
		return nil, fmt.Errorf("DeserializeToolSchema: error marshalling modified map: %w", err)
	}

	var schema genai.Schema
	// genai.Schema has its own UnmarshalJSON; call it directly.
	if err := schema.UnmarshalJSON(modifiedJSON); err != nil {
		return nil, fmt.Errorf("DeserializeToolSchema: error unmarshalling to genai.Schema: %w", err)
	}

	return &schema, nil
}
