package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
)

// SearchResult is one web or news hit handed back to the model.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

// Searcher runs DuckDuckGo web and news searches by scraping the HTML
// endpoints. News results come from the news.js JSON endpoint, which needs a
// vqd token scraped from the landing page first.
type Searcher struct {
	cfg    *config.SearchConfig
	client *http.Client
	logger *slog.Logger

	htmlBase string
	liteBase string
	newsBase string
}

// NewSearcher creates a Searcher with the production DuckDuckGo endpoints.
func NewSearcher(cfg *config.SearchConfig, logger *slog.Logger) *Searcher {
	return &Searcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger.With("component", "search"),
		htmlBase: "https://duckduckgo.com",
		liteBase: "https://lite.duckduckgo.com",
		newsBase: "https://duckduckgo.com",
	}
}

// preprocess appends a -site: exclusion for every blacklisted domain.
func (s *Searcher) preprocess(query string) string {
	for _, domain := range s.cfg.Blacklist {
		query += " -site:" + domain
	}
	return query
}

func (s *Searcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// Search runs a web search and returns up to maxResults hits. Endpoint
// failures degrade to whatever was collected so far.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) []SearchResult {
	query = s.preprocess(query)
	var results []SearchResult
	seen := map[string]bool{}

	body, err := s.get(ctx, s.htmlBase+"/html/?q="+url.QueryEscape(query))
	if err == nil {
		results = parseResultsPage(body, s.htmlBase, maxResults, results, seen)
	} else {
		s.logger.Debug("html search endpoint failed", "error", err)
	}

	if len(results) < maxResults {
		body, err = s.get(ctx, s.liteBase+"/lite/?q="+url.QueryEscape(query))
		if err == nil {
			results = parseResultsPage(body, s.liteBase, maxResults, results, seen)
		} else {
			s.logger.Debug("lite search endpoint failed", "error", err)
		}
	}
	return results
}

var vqdPattern = regexp.MustCompile(`vqd=['"]?([\d-]+)`)

type newsResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Excerpt string `json:"excerpt"`
		Date    int64  `json:"date"`
		Source  string `json:"source"`
	} `json:"results"`
}

// News runs a DuckDuckGo News search. The news vertical requires a vqd
// session token, scraped from the landing page for the same query.
func (s *Searcher) News(ctx context.Context, query string, maxResults int) []SearchResult {
	query = s.preprocess(query)

	body, err := s.get(ctx, s.newsBase+"/?q="+url.QueryEscape(query))
	if err != nil {
		s.logger.Debug("vqd fetch failed", "error", err)
		return nil
	}
	m := vqdPattern.FindSubmatch(body)
	if m == nil {
		s.logger.Debug("no vqd token in landing page")
		return nil
	}

	newsURL := fmt.Sprintf("%s/news.js?l=wt-wt&o=json&noamp=1&q=%s&vqd=%s",
		s.newsBase, url.QueryEscape(query), string(m[1]))
	body, err = s.get(ctx, newsURL)
	if err != nil {
		s.logger.Debug("news endpoint failed", "error", err)
		return nil
	}

	var decoded newsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		s.logger.Debug("news payload not JSON", "error", err)
		return nil
	}

	var results []SearchResult
	for _, r := range decoded.Results {
		if r.URL == "" {
			continue
		}
		item := SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Excerpt}
		if item.Title == "" {
			item.Title = r.URL
		}
		if r.Date > 0 {
			item.Date = dates.DateOf(time.Unix(r.Date, 0).In(dates.Zone())).String()
		}
		results = append(results, item)
		if len(results) >= maxResults {
			break
		}
	}
	return results
}

// parseResultsPage pulls result links out of a DuckDuckGo HTML page and
// appends them to results, skipping URLs already in seen.
func parseResultsPage(body []byte, base string, maxResults int, results []SearchResult, seen map[string]bool) []SearchResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return results
	}
	doc.Find("a.result__a, a.result__url, a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		target := extractResultHref(href, base)
		if target == "" || seen[target] {
			return true
		}
		title := strings.TrimSpace(a.Text())
		if title == "" {
			title = target
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     target,
			Snippet: nearbySnippet(a),
		})
		seen[target] = true
		return len(results) < maxResults
	})
	return results
}

// nearbySnippet walks up from the anchor looking for a sibling text block
// long enough to serve as a snippet.
func nearbySnippet(a *goquery.Selection) string {
	parent := a.Parent()
	for i := 0; i < 3 && parent.Length() > 0; i++ {
		snippet := ""
		parent.ChildrenFiltered("p, div, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			txt := strings.Join(strings.Fields(s.Text()), " ")
			if len(txt) > 40 {
				snippet = txt
				return false
			}
			return true
		})
		if snippet != "" {
			return snippet
		}
		parent = parent.Parent()
	}
	return ""
}

// extractResultHref resolves a DuckDuckGo result href to the target URL.
// Redirect links carry the real destination in the uddg query parameter.
func extractResultHref(href, base string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if strings.Contains(u.Host, "duckduckgo.com") {
			return u.Query().Get("uddg")
		}
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	full := baseURL.ResolveReference(ref)
	if v := full.Query().Get("uddg"); v != "" {
		return v
	}
	if full.Scheme == "http" || full.Scheme == "https" {
		if strings.Contains(full.Host, "duckduckgo.com") {
			return ""
		}
		return full.String()
	}
	return ""
}

type webSearchTool struct {
	searcher *Searcher
}

func (t *webSearchTool) Definition() llm.ToolDefinition { return webSearchDef }

func (t *webSearchTool) Invoke(ctx context.Context, args json.RawMessage) any {
	var in struct {
		Query      string `json:"query"`
		MaxResults *int   `json:"max_results"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolErr{Error: fmt.Sprintf("bad arguments: %v", err)}
	}
	results := t.searcher.Search(ctx, strings.TrimSpace(in.Query), intArg(in.MaxResults, 5))
	return map[string]any{"results": results}
}

type newsSearchTool struct {
	searcher *Searcher
}

func (t *newsSearchTool) Definition() llm.ToolDefinition { return newsSearchDef }

func (t *newsSearchTool) Invoke(ctx context.Context, args json.RawMessage) any {
	var in struct {
		Query      string `json:"query"`
		MaxResults *int   `json:"max_results"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolErr{Error: fmt.Sprintf("bad arguments: %v", err)}
	}
	results := t.searcher.News(ctx, strings.TrimSpace(in.Query), intArg(in.MaxResults, 5))
	return map[string]any{"results": results}
}
