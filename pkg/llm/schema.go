package llm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a strict-mode JSON schema from a Go type: the invopop
// schema with the structured-output constraints applied.
func SchemaFor[T any]() (json.RawMessage, error) {
	r := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            false,
		AllowAdditionalProperties: false,
	}
	var zero T
	schema := r.Reflect(&zero)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}
	return StrictSchema(raw)
}

// StrictSchema rewrites a JSON schema for strict structured output: every
// object node gains additionalProperties=false and lists all of its declared
// properties as required, recursively through nested schema keywords. The
// rewrite is deterministic and idempotent.
func StrictSchema(raw json.RawMessage) (json.RawMessage, error) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	node = strictWalk(node)
	out, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal sanitized schema: %w", err)
	}
	return out, nil
}

func strictWalk(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for _, key := range []string{"properties", "$defs", "definitions"} {
			if sub, ok := v[key].(map[string]any); ok {
				for k, item := range sub {
					sub[k] = strictWalk(item)
				}
			}
		}
		for _, key := range []string{"items", "additionalItems", "contains"} {
			if sub, ok := v[key]; ok {
				v[key] = strictWalk(sub)
			}
		}
		for _, key := range []string{"anyOf", "oneOf", "allOf"} {
			if sub, ok := v[key].([]any); ok {
				for i, item := range sub {
					sub[i] = strictWalk(item)
				}
			}
		}
		if v["type"] == "object" {
			v["additionalProperties"] = false
			if props, ok := v["properties"].(map[string]any); ok {
				required := make([]string, 0, len(props))
				for k := range props {
					required = append(required, k)
				}
				sort.Strings(required)
				v["required"] = required
			} else {
				v["properties"] = map[string]any{}
				v["required"] = []string{}
			}
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = strictWalk(item)
		}
		return v
	default:
		return node
	}
}
