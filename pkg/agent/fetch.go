package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/llm"
)

// FetchResult is the fetch_url tool payload. Exactly one of Text and Error
// is set.
type FetchResult struct {
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Fetcher retrieves pages and reduces them to whitespace-normalized text.
// Results are cached per URL for the lifetime of the Fetcher, so repeated
// fetches inside one pipeline run hit the network once.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxChars  int
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]FetchResult
}

// NewFetcher creates a Fetcher honoring the configured page size cap.
func NewFetcher(search *config.SearchConfig, loop *config.LoopConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: 20 * time.Second},
		userAgent: search.UserAgent,
		maxChars:  loop.FetchMaxChars,
		logger:    logger.With("component", "fetch"),
		cache:     map[string]FetchResult{},
	}
}

// Fetch returns the readable text of url, truncated to maxChars characters.
func (f *Fetcher) Fetch(ctx context.Context, url string, maxChars int) FetchResult {
	if maxChars <= 0 || maxChars > f.maxChars {
		maxChars = f.maxChars
	}

	f.mu.Lock()
	cached, ok := f.cache[url]
	f.mu.Unlock()
	if !ok {
		cached = f.fetch(ctx, url)
		f.mu.Lock()
		f.cache[url] = cached
		f.mu.Unlock()
	}

	if cached.Error == "" && len(cached.Text) > maxChars {
		return FetchResult{URL: url, Text: cached.Text[:maxChars]}
	}
	return cached
}

func (f *Fetcher) fetch(ctx context.Context, url string) FetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{URL: url, Error: err.Error()}
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{URL: url, Error: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return FetchResult{URL: url, Error: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return FetchResult{URL: url, Error: err.Error()}
	}
	return FetchResult{URL: url, Text: HTMLToText(string(body))}
}

// HTMLToText strips script, style, and noscript elements and collapses all
// remaining text into single-space-separated words.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

type fetchURLTool struct {
	fetcher *Fetcher
}

func (t *fetchURLTool) Definition() llm.ToolDefinition { return fetchURLDef }

func (t *fetchURLTool) Invoke(ctx context.Context, args json.RawMessage) any {
	var in struct {
		URL      string `json:"url"`
		MaxChars *int   `json:"max_chars"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolErr{Error: fmt.Sprintf("bad arguments: %v", err)}
	}
	return t.fetcher.Fetch(ctx, in.URL, intArg(in.MaxChars, 0))
}
