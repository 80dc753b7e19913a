package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoop(t *testing.T, handler http.Handler) *Loop {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := llm.NewClient(&config.LLMProviderConfig{
		Type:    config.LLMProviderTypeOpenAI,
		BaseURL: server.URL,
	}, testLogger())
	return NewLoop(client, nil, config.DefaultSearchConfig(), config.DefaultLoopConfig(), testLogger())
}

// stubTool replaces a network-backed tool in loop tests.
type stubTool struct {
	def     llm.ToolDefinition
	result  any
	queries []string
}

func (s *stubTool) Definition() llm.ToolDefinition { return s.def }

func (s *stubTool) Invoke(_ context.Context, args json.RawMessage) any {
	s.queries = append(s.queries, string(args))
	return s.result
}

func textResponse(id, text string) llm.Response {
	return llm.Response{
		ID:     id,
		Model:  "gpt-5-mini",
		Status: "completed",
		Output: []llm.ResponseOutputItem{{
			Type:    "message",
			Role:    "assistant",
			Content: []llm.ResponseContentPart{{Type: "output_text", Text: text}},
		}},
		Usage: &llm.ResponseUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func callResponse(id, name, callID, args string) llm.Response {
	return llm.Response{
		ID:     id,
		Model:  "gpt-5-mini",
		Status: "completed",
		Output: []llm.ResponseOutputItem{{
			Type:      "function_call",
			Name:      name,
			CallID:    callID,
			Arguments: args,
		}},
		Usage: &llm.ResponseUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func lastUserContent(req *llm.ResponseRequest) string {
	for i := len(req.Input) - 1; i >= 0; i-- {
		if req.Input[i].Role == "user" {
			if s, ok := req.Input[i].Content.(string); ok {
				return s
			}
		}
	}
	return ""
}

func TestRunToolLoopThenStructuredParse(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var req llm.ResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Text != nil {
			// Parse-only pass carries the schema and the outline prompt.
			assert.Equal(t, "json_schema", req.Text.Format.Type)
			assert.True(t, req.Text.Format.Strict)
			assert.Contains(t, lastUserContent(&req), "Return ONLY the requested structured output")
			json.NewEncoder(w).Encode(textResponse("resp-parse", `{"verdict": "progress"}`))
			return
		}

		switch calls.Add(1) {
		case 1:
			assert.NotEmpty(t, req.Tools)
			json.NewEncoder(w).Encode(callResponse("resp-1", toolWebSearch, "call-1", `{"query":"budget vote","max_results":3}`))
		default:
			// The tool result must be replayed before the next turn.
			var sawOutput bool
			for _, item := range req.Input {
				if item.Type == "function_call_output" && item.CallID == "call-1" {
					sawOutput = true
				}
			}
			assert.True(t, sawOutput)
			json.NewEncoder(w).Encode(textResponse("resp-2", "The vote passed."))
		}
	})

	l := newTestLoop(t, mux)
	stub := &stubTool{def: webSearchDef, result: map[string]any{"results": []SearchResult{}}}
	l.tools[toolWebSearch] = stub

	schema := json.RawMessage(`{"type":"object","properties":{"verdict":{"type":"string"}},"required":["verdict"],"additionalProperties":false}`)
	out, err := l.Run(context.Background(), "Check the budget vote.", Options{
		Model:      "gpt-5-mini",
		Schema:     schema,
		SchemaName: "verdict",
		CalledFrom: "loop_test",
	})
	require.NoError(t, err)

	assert.Equal(t, "The vote passed.", out.Text)
	assert.JSONEq(t, `{"verdict": "progress"}`, string(out.Parsed))
	require.Len(t, stub.queries, 1)
	assert.Contains(t, stub.queries[0], "budget vote")
	require.NotNil(t, out.LMLog)
	assert.Equal(t, "resp-parse", out.LMLog.CallID)
	assert.Equal(t, "loop_test", out.LMLog.CalledFrom)
	assert.Empty(t, out.Sources)
}

func TestRunCollectsFetchedSources(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			json.NewEncoder(w).Encode(callResponse("resp-1", toolFetchURL, "call-1", `{"url":"https://example.org/a","max_chars":null}`))
		case 2:
			json.NewEncoder(w).Encode(callResponse("resp-2", toolFetchURL, "call-2", `{"url":"https://example.org/a","max_chars":null}`))
		default:
			json.NewEncoder(w).Encode(textResponse("resp-3", "done"))
		}
	})

	l := newTestLoop(t, mux)
	l.tools[toolFetchURL] = &stubTool{
		def:    fetchURLDef,
		result: FetchResult{URL: "https://example.org/a", Text: strings.Repeat("x", 300)},
	}

	out, err := l.Run(context.Background(), "read the page", Options{Model: "gpt-5-mini"})
	require.NoError(t, err)

	require.Len(t, out.Sources, 1)
	assert.Equal(t, "https://example.org/a", out.Sources[0].URL)
	assert.Len(t, out.Sources[0].Snippet, 200)
	assert.Equal(t, "done", out.Text)
}

func TestRunFailedFetchIsNotASource(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			json.NewEncoder(w).Encode(callResponse("resp-1", toolFetchURL, "call-1", `{"url":"https://example.org/b","max_chars":null}`))
			return
		}
		json.NewEncoder(w).Encode(textResponse("resp-2", "done"))
	})

	l := newTestLoop(t, mux)
	l.tools[toolFetchURL] = &stubTool{
		def:    fetchURLDef,
		result: FetchResult{URL: "https://example.org/b", Error: "status 404"},
	}

	out, err := l.Run(context.Background(), "read the page", Options{Model: "gpt-5-mini"})
	require.NoError(t, err)
	assert.Empty(t, out.Sources)
}

func TestAddSourceSnippetKeepsRunesWhole(t *testing.T) {
	// 150 runes but 300 bytes: under the rune limit, the text stays intact.
	accents := strings.Repeat("é", 150)
	sources := addSource(nil, FetchResult{URL: "https://example.org/a", Text: accents})
	require.Len(t, sources, 1)
	assert.Equal(t, accents, sources[0].Snippet)

	kanji := strings.Repeat("日", 210)
	sources = addSource(sources, FetchResult{URL: "https://example.org/b", Text: kanji})
	require.Len(t, sources, 2)
	snippet := sources[1].Snippet
	assert.True(t, utf8.ValidString(snippet))
	assert.Equal(t, 200, utf8.RuneCountInString(snippet))
}

func TestRunRetriesWholeLoopOnEmptyAnswer(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(textResponse("resp", ""))
	})

	l := newTestLoop(t, mux)
	l.cfg = &config.LoopConfig{MaxTurns: 2, MaxRetries: 2, FetchMaxChars: 1000}

	out, err := l.Run(context.Background(), "say something", Options{Model: "gpt-5-mini"})
	require.NoError(t, err)
	assert.Empty(t, out.Text)
	// Each attempt is one loop turn plus one finalization nudge.
	assert.Equal(t, int32(4), calls.Load())
}

func TestRunFinalizeNudgeRecoversText(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var req llm.ResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls.Add(1)
		if lastUserContent(&req) == finalizePrompt {
			json.NewEncoder(w).Encode(textResponse("resp-final", "recovered answer"))
			return
		}
		json.NewEncoder(w).Encode(textResponse("resp", ""))
	})

	l := newTestLoop(t, mux)
	out, err := l.Run(context.Background(), "say something", Options{Model: "gpt-5-mini"})
	require.NoError(t, err)
	assert.Equal(t, "recovered answer", out.Text)
	assert.Equal(t, int32(2), calls.Load())
	require.NotNil(t, out.LMLog)
	assert.Equal(t, "resp-final", out.LMLog.CallID)
}

func TestRunTaskSystemBecomesDeveloperLayout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var req llm.ResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.GreaterOrEqual(t, len(req.Input), 3)
		assert.Equal(t, "developer", req.Input[0].Role)
		assert.Equal(t, "system", req.Input[1].Role)
		assert.Equal(t, "focus on fiscal policy", req.Input[1].Content)
		assert.Equal(t, "user", req.Input[2].Role)
		json.NewEncoder(w).Encode(textResponse("resp", "ok"))
	})

	l := newTestLoop(t, mux)
	out, err := l.Run(context.Background(), "task", Options{
		Model:      "gpt-5-mini",
		TaskSystem: "focus on fiscal policy",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
}

func TestToolDefsSelection(t *testing.T) {
	l := &Loop{}

	names := func(defs []llm.ToolDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{toolWebSearch, toolNewsSearch, toolFetchURL},
		names(l.toolDefs([]ToolSet{WebSearch, NewsSearch})))
	assert.Equal(t, []string{toolWebSearch, toolNewsSearch, toolFetchURL, toolInternalSearch},
		names(l.toolDefs([]ToolSet{WebSearch, NewsSearch, InternalSearch})))
	assert.Equal(t, []string{toolInternalSearch},
		names(l.toolDefs([]ToolSet{InternalSearch})))
}

func TestRunStructuredDecodesTarget(t *testing.T) {
	type verdictOut struct {
		Verdict string `json:"verdict" jsonschema:"required"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var req llm.ResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Text != nil {
			json.NewEncoder(w).Encode(textResponse("resp-parse", `{"verdict":"complete"}`))
			return
		}
		json.NewEncoder(w).Encode(textResponse("resp-1", "the work finished"))
	})

	l := newTestLoop(t, mux)
	parsed, out, err := RunStructured[verdictOut](context.Background(), l, "check it", Options{Model: "gpt-5-mini"})
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, "complete", parsed.Verdict)
	assert.Equal(t, "the work finished", out.Text)
}

func TestInvokeUnknownTool(t *testing.T) {
	l := &Loop{tools: map[string]Tool{}, logger: testLogger()}
	result := l.invoke(context.Background(), "bogus_tool", nil)
	errPayload, ok := result.(toolErr)
	require.True(t, ok)
	assert.Contains(t, errPayload.Error, "bogus_tool")
}
