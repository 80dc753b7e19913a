package agent

import (
	"context"
	"encoding/json"

	"github.com/newsdocket/docket/pkg/llm"
)

// ToolSet selects which tool families a loop run exposes to the model.
type ToolSet string

const (
	WebSearch      ToolSet = "ddg_web"
	NewsSearch     ToolSet = "ddg_news"
	InternalSearch ToolSet = "internal"
)

// Tool names as the model sees them.
const (
	toolWebSearch      = "ddg_web_search"
	toolNewsSearch     = "ddg_news_search"
	toolFetchURL       = "fetch_url"
	toolInternalSearch = "internal_search"
)

// Tool is one callable function exposed to the model. Invoke never fails the
// loop: tool-level errors are encoded into the returned payload so the model
// can react to them.
type Tool interface {
	Definition() llm.ToolDefinition
	Invoke(ctx context.Context, args json.RawMessage) any
}

var webSearchDef = llm.ToolDefinition{
	Type:        "function",
	Name:        toolWebSearch,
	Description: "Search the public web for a query and return relevant links with snippets.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Natural language query"},
			"max_results": {"type": ["integer", "null"], "minimum": 1, "maximum": 25, "default": 5}
		},
		"required": ["query", "max_results"],
		"additionalProperties": false
	}`),
}

var newsSearchDef = llm.ToolDefinition{
	Type:        "function",
	Name:        toolNewsSearch,
	Description: "Search DuckDuckGo News for a query and return relevant news links.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "News search query"},
			"max_results": {"type": ["integer", "null"], "minimum": 1, "maximum": 25, "default": 5}
		},
		"required": ["query", "max_results"],
		"additionalProperties": false
	}`),
}

var fetchURLDef = llm.ToolDefinition{
	Type:        "function",
	Name:        toolFetchURL,
	Description: "Fetch the readable content of a URL and return plain text.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "URL to fetch"},
			"max_chars": {"type": ["integer", "null"], "minimum": 500, "maximum": 200000, "default": 50000}
		},
		"required": ["url", "max_chars"],
		"additionalProperties": false
	}`),
}

var internalSearchDef = llm.ToolDefinition{
	Type:        "function",
	Name:        toolInternalSearch,
	Description: "Search our in-house knowledge base for articles and claims with optional date filtering (ISO YYYY-MM-DD). If this tool is available, you are expected to use it at least once for the current task.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search text"},
			"max_articles": {"type": ["integer", "null"], "minimum": 1, "maximum": 50, "default": 10},
			"max_claims": {"type": ["integer", "null"], "minimum": 1, "maximum": 100, "default": 20},
			"start_date": {"type": ["string", "null"], "description": "Earliest article/claim date (YYYY-MM-DD)"},
			"end_date": {"type": ["string", "null"], "description": "Latest article/claim date (YYYY-MM-DD)"}
		},
		"required": ["query", "max_articles", "max_claims"],
		"additionalProperties": false
	}`),
}

// toolErr is the payload returned when a tool cannot produce a result.
type toolErr struct {
	Error string `json:"error"`
}

func intArg(v *int, fallback int) int {
	if v == nil || *v <= 0 {
		return fallback
	}
	return *v
}
