// Package agent runs the agentic research loop: a responses-API conversation
// where the model iterates over web search, news search, page fetch, and
// knowledge-base search tools before producing a final answer, optionally
// parsed against a strict JSON schema in a closing structured pass.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
)

// systemPrompt frames every loop run. Task-specific instructions ride
// alongside it as a separate system message.
const systemPrompt = `You are an expert news analyst and researcher.
The system will give a well-defined task. Use your available tools to complete the task as described.
This task is automatic: do not ask clarifying questions, engage in further discussion, or prompt the system for more information.
Provide a comprehensive report that fully meets the instructions. Do not include suggestions for next steps or use conversational language.
For tools prefixed with "ddg_", you have the ability to use modifiers on your query strings:
- You can exclude specific websites by appending ' -site:example.com' to your query.
- You can specify exact phrases by enclosing them in double quotes. (Ex. climate change "botswana")
- You can specify "filetype:..." to filter results by file type. (Ex. filetype:pdf)
In all matters, you must follow the stances and standards of The Follow Up News (thefollowup.ai):
 - Strictly avoid untrustworthy, biased, or low-quality sources.
     - NY Post, Washington Times, Grokipedia, Times of Israel, Hindustan Times, and similar sources are to be considered low-quality and prone to manipulation; avoid using them.
 - Prioritize factual accuracy, neutrality, and balanced perspectives above all.
 - Expect all media to be subject to manipulation as to the incentives of the source, and operate accordingly.
 - Only expect truth when it aligns with incentives; otherwise, treat with skepticism.
    - Ex: The Department of State can be expected to be truthful when discussing neutral or politically favorable topics, but not when discussing politically sensitive topics that may reflect poorly on the US government.
 - Viewpoints; While The Follow Up as a general rule is strictly neutral and fact-driven, in certain specific matters it takes a strong stance:
    - It strongly opposes Israel's occupation of Palestinian territories, strongly supports the rights of Palestinians to human rights and the full return of Palestinian land.
    - It strongly opposes the Russian invasion of Ukraine and supports Ukrainian sovereignty.
    - It strongly opposes misinformation, disinformation, and deceptive practices in media and politics.
    - It is always critical of corporate influence in media and politics, and all interactions between the business world and the government.
    - It is always critical of all parties operating in the government- trusting them only to do and say things that align with their incentives. The truth can only be expected when it aligns with their incentives.
 - Always present the facts as accurately as possible in good faith, even if inconvenient to the stances of The Follow Up.
 - The Follow Up primarily concerns itself with holding public figures and institutions accountable for the claims and commitments they make.
The viewpoints and stances must be strictly adhered to, but do not need to be explicitly mentioned in your final output.`

const (
	parsePrompt    = "Return ONLY the requested structured output using the conversation above. Match this structure and type hints; do not include prose outside it.\n"
	finalizePrompt = "Provide the final answer now as text. Do not call tools."
)

// Source is one page the model actually read during a run. Search hits alone
// do not count; only fetched pages become sources.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Options configures one loop run.
type Options struct {
	Model           string
	ReasoningEffort string

	// Schema, when set, triggers a structured parse pass after the tool loop.
	Schema     json.RawMessage
	SchemaName string

	// TaskSystem is a task-specific system message layered over the base
	// analyst prompt.
	TaskSystem string

	// Tools selects the exposed tool families. Nil means web plus news.
	Tools []ToolSet

	CalledFrom string
}

// Output is the result of a loop run. Parsed is nil when no schema was
// requested or when structured parsing failed; Text may still be set then.
type Output struct {
	Text         string
	Parsed       json.RawMessage
	Sources      []Source
	Conversation []llm.ResponseInputItem
	LMLog        *models.LMLog
}

// Loop drives tool-call conversations against the responses API.
type Loop struct {
	client *llm.Client
	cfg    *config.LoopConfig
	logger *slog.Logger
	tools  map[string]Tool
}

// NewLoop wires the tool loop with its four tools. st may be nil when no
// knowledge base is available; the internal_search tool then reports an
// error payload to the model.
func NewLoop(client *llm.Client, st *store.Store, search *config.SearchConfig, loop *config.LoopConfig, logger *slog.Logger) *Loop {
	searcher := NewSearcher(search, logger)
	fetcher := NewFetcher(search, loop, logger)
	l := &Loop{
		client: client,
		cfg:    loop,
		logger: logger.With("component", "agent"),
		tools: map[string]Tool{
			toolWebSearch:  &webSearchTool{searcher: searcher},
			toolNewsSearch: &newsSearchTool{searcher: searcher},
			toolFetchURL:   &fetchURLTool{fetcher: fetcher},
		},
	}
	if st != nil {
		l.tools[toolInternalSearch] = &internalSearchTool{store: st, logger: l.logger}
	}
	return l
}

// toolDefs assembles the tool list for the selected families. fetch_url is
// available whenever an external search tool is.
func (l *Loop) toolDefs(choices []ToolSet) []llm.ToolDefinition {
	enabled := map[ToolSet]bool{}
	for _, c := range choices {
		enabled[c] = true
	}
	var defs []llm.ToolDefinition
	if enabled[WebSearch] {
		defs = append(defs, webSearchDef)
	}
	if enabled[NewsSearch] {
		defs = append(defs, newsSearchDef)
	}
	if enabled[WebSearch] || enabled[NewsSearch] {
		defs = append(defs, fetchURLDef)
	}
	if enabled[InternalSearch] {
		defs = append(defs, internalSearchDef)
	}
	return defs
}

// Run executes the tool loop for input and returns the final answer. When a
// schema is set the run ends with a parse-only pass bound to the full
// conversation. Empty final answers are retried from scratch up to the
// configured retry limit.
func (l *Loop) Run(ctx context.Context, input string, opts Options) (*Output, error) {
	if opts.Tools == nil {
		opts.Tools = []ToolSet{WebSearch, NewsSearch}
	}
	if opts.CalledFrom == "" {
		opts.CalledFrom = "agent.loop"
	}
	defs := l.toolDefs(opts.Tools)

	var out *Output
	var err error
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		out, err = l.runOnce(ctx, input, opts, defs)
		if err != nil {
			return nil, err
		}
		if out.Text != "" || out.Parsed != nil {
			return out, nil
		}
		if attempt < l.cfg.MaxRetries {
			l.logger.Warn("empty loop response, retrying",
				"attempt", attempt, "called_from", opts.CalledFrom)
		}
	}
	return out, nil
}

func (l *Loop) runOnce(ctx context.Context, input string, opts Options, defs []llm.ToolDefinition) (*Output, error) {
	messages := []llm.ResponseInputItem{llm.Message("system", systemPrompt)}
	if s := strings.TrimSpace(opts.TaskSystem); s != "" {
		messages = []llm.ResponseInputItem{
			llm.Message("developer", systemPrompt),
			llm.Message("system", s),
		}
	}
	messages = append(messages, llm.Message("user", input))

	var sources []Source
	var lastResp *llm.Response
	var primaryLog *models.LMLog

	for turn := 0; turn < l.cfg.MaxTurns; turn++ {
		resp, err := l.client.CreateResponse(ctx, &llm.ResponseRequest{
			Model:     opts.Model,
			Input:     messages,
			Tools:     defs,
			Reasoning: reasoning(opts.ReasoningEffort),
		})
		if err != nil {
			return nil, fmt.Errorf("tool loop turn: %w", err)
		}
		lastResp = resp
		if primaryLog == nil {
			primaryLog = llm.ResponseLMLog(resp, opts.CalledFrom)
		}

		for _, item := range resp.Output {
			messages = append(messages, item.InputItem())
		}

		calls := resp.FunctionCalls()
		for _, call := range calls {
			result := l.invoke(ctx, call.Name, json.RawMessage(call.Arguments))
			if call.Name == toolFetchURL {
				if fr, ok := result.(FetchResult); ok {
					sources = addSource(sources, fr)
				}
			}
			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(`{"error":"tool result not serializable"}`)
			}
			messages = append(messages, llm.FunctionCallOutput(call.CallID, string(payload)))
		}
		if len(calls) == 0 {
			break
		}
	}

	out := &Output{Sources: sources, LMLog: primaryLog}
	if lastResp != nil {
		out.Text = strings.TrimSpace(lastResp.OutputText())
	}

	if opts.Schema != nil {
		parsed, log := l.parsePass(ctx, messages, opts)
		if log != nil {
			out.LMLog = log
		}
		out.Parsed = parsed
	}
	if opts.Schema == nil || out.Parsed == nil {
		if out.Text == "" {
			messages = l.finalize(ctx, messages, opts, out)
		}
	}
	out.Conversation = messages
	return out, nil
}

// finalize nudges the model into plain text after a run that produced none,
// then retries the structured parse against the extended conversation.
func (l *Loop) finalize(ctx context.Context, messages []llm.ResponseInputItem, opts Options, out *Output) []llm.ResponseInputItem {
	resp, err := l.client.CreateResponse(ctx, &llm.ResponseRequest{
		Model:     opts.Model,
		Input:     append(slices.Clone(messages), llm.Message("user", finalizePrompt)),
		Reasoning: reasoning(opts.ReasoningEffort),
	})
	if err != nil {
		l.logger.Warn("finalization attempt failed", "error", err)
		return messages
	}
	for _, item := range resp.Output {
		messages = append(messages, item.InputItem())
	}
	if log := llm.ResponseLMLog(resp, opts.CalledFrom); log != nil {
		out.LMLog = log
	}
	out.Text = strings.TrimSpace(resp.OutputText())

	if opts.Schema != nil {
		parsed, log := l.parsePass(ctx, messages, opts)
		if log != nil {
			out.LMLog = log
		}
		out.Parsed = parsed
	}
	return messages
}

// parsePass asks for the structured output alone, grounded on the finished
// conversation. Failures degrade to the text answer.
func (l *Loop) parsePass(ctx context.Context, messages []llm.ResponseInputItem, opts Options) (json.RawMessage, *models.LMLog) {
	name := opts.SchemaName
	if name == "" {
		name = "response"
	}
	input := append(slices.Clone(messages),
		llm.Message("user", parsePrompt+llm.SchemaOutline(opts.Schema)))
	resp, err := l.client.CreateResponse(ctx, &llm.ResponseRequest{
		Model: opts.Model,
		Input: input,
		Text: &llm.TextFormat{Format: llm.TextFormatSpec{
			Type:   "json_schema",
			Name:   name,
			Strict: true,
			Schema: opts.Schema,
		}},
		Reasoning: reasoning(opts.ReasoningEffort),
	})
	if err != nil {
		l.logger.Warn("structured parse failed, falling back to text", "error", err)
		return nil, nil
	}
	text := strings.TrimSpace(resp.OutputText())
	if !json.Valid([]byte(text)) {
		l.logger.Warn("structured parse returned invalid JSON")
		return nil, llm.ResponseLMLog(resp, opts.CalledFrom)
	}
	return json.RawMessage(text), llm.ResponseLMLog(resp, opts.CalledFrom)
}

func (l *Loop) invoke(ctx context.Context, name string, args json.RawMessage) any {
	tool, ok := l.tools[name]
	if !ok {
		return toolErr{Error: fmt.Sprintf("Unknown tool %s", name)}
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return tool.Invoke(ctx, args)
}

// RunStructured runs the loop with a schema derived from T and decodes the
// parsed output. The decoded value is nil when parsing failed; the Output
// still carries the text answer and sources.
func RunStructured[T any](ctx context.Context, l *Loop, input string, opts Options) (*T, *Output, error) {
	if opts.Schema == nil {
		schema, err := llm.SchemaFor[T]()
		if err != nil {
			return nil, nil, fmt.Errorf("derive schema: %w", err)
		}
		opts.Schema = schema
	}
	out, err := l.Run(ctx, input, opts)
	if err != nil {
		return nil, nil, err
	}
	if out.Parsed == nil {
		return nil, out, nil
	}
	var parsed T
	if err := json.Unmarshal(out.Parsed, &parsed); err != nil {
		l.logger.Warn("parsed output does not match target type", "error", err)
		return nil, out, nil
	}
	return &parsed, out, nil
}

// addSource records a fetched page, deduplicated by URL. Failed fetches are
// not sources.
func addSource(sources []Source, fr FetchResult) []Source {
	if fr.URL == "" || fr.Error != "" {
		return sources
	}
	for _, s := range sources {
		if s.URL == fr.URL {
			return sources
		}
	}
	snippet := fr.Text
	if len(snippet) > 200 {
		// Cut on rune boundaries so multi-byte text is not split mid-character.
		if runes := []rune(snippet); len(runes) > 200 {
			snippet = string(runes[:200])
		}
	}
	return append(sources, Source{Title: fr.URL, URL: fr.URL, Snippet: snippet})
}

func reasoning(effort string) *llm.ReasoningParam {
	if effort == "" {
		return nil
	}
	return &llm.ReasoningParam{Effort: effort}
}
