package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
)

// contentFetcher turns a live article page into canonical markdown:
// readability extraction of the main content, then GitHub-flavored markdown
// conversion. Failures fall back to whatever the scraper stored.
type contentFetcher struct {
	client    *http.Client
	userAgent string
	converter *md.Converter
}

func newContentFetcher(userAgent string) *contentFetcher {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &contentFetcher{
		client:    &http.Client{Timeout: 20 * time.Second},
		userAgent: userAgent,
		converter: converter,
	}
}

// CanonicalMarkdown fetches link and reduces it to markdown. Any failure
// returns an error; callers fall back to the stored raw content.
func (f *contentFetcher) CanonicalMarkdown(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", link, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	markdown, err := f.converter.ConvertString(article.Content)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", fmt.Errorf("no readable content at %s", link)
	}
	return markdown, nil
}
