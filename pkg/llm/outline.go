package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SchemaOutline renders a compact human-readable outline of a JSON schema,
// suitable for embedding in a parse prompt. Example:
//
//	ClaimProcessingStep:
//	- claim: string (required)
//	- type: enum['goal', 'promise', 'statement'] (required)
func SchemaOutline(raw json.RawMessage) string {
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return ""
	}

	var lines []string
	for _, entry := range collectObjects(schema) {
		name, obj := entry.name, entry.node
		if t, ok := obj["type"].(string); ok && t != "object" {
			if _, hasProps := obj["properties"]; !hasProps {
				continue
			}
		}
		lines = append(lines, name+":")
		props, _ := obj["properties"].(map[string]any)
		if len(props) == 0 {
			lines = append(lines, "- (no properties)")
			continue
		}
		required := map[string]bool{}
		if req, ok := obj["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			spec, ok := props[key].(map[string]any)
			if !ok {
				continue
			}
			kind := "optional"
			if required[key] {
				kind = "required"
			}
			lines = append(lines, fmt.Sprintf("- %s: %s (%s)", key, summarizeType(spec, schema), kind))
		}
	}
	return strings.Join(lines, "\n")
}

type outlineEntry struct {
	name string
	node map[string]any
}

func collectObjects(schema map[string]any) []outlineEntry {
	title := "Root"
	if t, ok := schema["title"].(string); ok && t != "" {
		title = t
	}
	out := []outlineEntry{{name: title, node: schema}}

	defs := schemaDefs(schema)
	names := make([]string, 0, len(defs))
	for k := range defs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		if node, ok := defs[name].(map[string]any); ok {
			out = append(out, outlineEntry{name: name, node: node})
		}
	}
	return out
}

func schemaDefs(schema map[string]any) map[string]any {
	if defs, ok := schema["$defs"].(map[string]any); ok {
		return defs
	}
	if defs, ok := schema["definitions"].(map[string]any); ok {
		return defs
	}
	return nil
}

func summarizeType(node, schema map[string]any) string {
	if ev := enumValues(node); ev != "" {
		return ev
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		subs, ok := node[key].([]any)
		if !ok {
			continue
		}
		var parts []string
		seen := map[string]bool{}
		for _, sub := range subs {
			m, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			p := summarizeType(m, schema)
			if p == "" || strings.EqualFold(p, "null") || seen[p] {
				continue
			}
			seen[p] = true
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			return "any"
		}
		return strings.Join(parts, "|")
	}

	if ref, ok := node["$ref"].(string); ok {
		name := ref[strings.LastIndex(ref, "/")+1:]
		if target, ok := schemaDefs(schema)[name].(map[string]any); ok {
			if ev := enumValues(target); ev != "" {
				return ev
			}
		}
		return "object(" + name + ")"
	}

	switch t := node["type"].(type) {
	case string:
		if t == "array" {
			items, _ := node["items"].(map[string]any)
			if items == nil {
				items = map[string]any{}
			}
			return "array[" + summarizeType(items, schema) + "]"
		}
		if t == "string" {
			return stringWithFormat(node)
		}
		return t
	case []any:
		var parts []string
		for _, tp := range t {
			s, ok := tp.(string)
			if !ok || s == "null" {
				continue
			}
			if s == "string" {
				parts = append(parts, stringWithFormat(node))
			} else {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "any"
		}
		return strings.Join(parts, "|")
	}

	if _, ok := node["properties"]; ok {
		return "object"
	}
	return "any"
}

func enumValues(node map[string]any) string {
	vals, ok := node["enum"].([]any)
	if !ok || len(vals) == 0 {
		return ""
	}
	const limit = 6
	var shown []string
	for i, v := range vals {
		if i == limit {
			break
		}
		shown = append(shown, fmt.Sprintf("%#v", v))
	}
	out := "enum[" + strings.Join(shown, ", ")
	if len(vals) > limit {
		out += ", ..."
	}
	return out + "]"
}

func stringWithFormat(node map[string]any) string {
	switch node["format"] {
	case "date", "date-time", "uri":
		return node["format"].(string)
	}
	return "string"
}
