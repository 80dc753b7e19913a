// Package enrich implements the article enrichment stage: candidates missing
// enrichment fields get canonical markdown plus model-written summary,
// takeaways, priority, and follow-up questions via a strict-schema batch.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/lease"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/prompts"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/pkg/worker"
)

const leaseName = "enrich"

// Sites that block live fetching; the stored raw content is used instead.
var skipLiveFetch = []string{"https://www.state.gov"}

// Stage runs article enrichment.
type Stage struct {
	store      *store.Store
	leases     *lease.Manager
	client     *llm.Client
	dispatcher *llm.Dispatcher
	pool       *worker.Pool
	fetcher    *contentFetcher
	cfg        *config.Config
	logger     *slog.Logger
}

// New wires the enrichment stage.
func New(st *store.Store, client *llm.Client, pool *worker.Pool, cfg *config.Config, logger *slog.Logger) *Stage {
	logger = logger.With("stage", "enrich")
	return &Stage{
		store:      st,
		leases:     lease.NewManager(st.DB(), logger),
		client:     client,
		dispatcher: llm.NewDispatcher(client, cfg.Batch, logger),
		pool:       pool,
		fetcher:    newContentFetcher(cfg.Search.UserAgent),
		cfg:        cfg,
		logger:     logger,
	}
}

// candidate is one leased article with its canonical markdown resolved.
type candidate struct {
	article  *models.Article
	markdown string
}

// Run enriches up to the configured batch of candidate articles. Batch
// submission is preferred; on batch timeout every candidate is retried with
// individual parse calls on the worker pool.
func (s *Stage) Run(ctx context.Context) error {
	stageCfg := s.cfg.Stages.Enrich
	template := prompts.MustLoad(prompts.ArticleEnrich)

	articles, err := s.store.Articles.EnrichmentCandidates(ctx, stageCfg.Batch)
	if err != nil {
		return fmt.Errorf("load enrichment candidates: %w", err)
	}

	owner := lease.Owner()
	var leased []*models.Article
	for _, a := range articles {
		ok, err := s.leases.Acquire(ctx, "articles", a.ID, leaseName, owner, stageCfg.LeaseTTL)
		if err != nil {
			return fmt.Errorf("acquire enrich lease: %w", err)
		}
		if ok {
			leased = append(leased, a)
		}
	}
	if len(leased) == 0 {
		s.logger.Info("no articles require enrichment")
		return nil
	}
	s.logger.Info("enriching articles", "count", len(leased))

	candidates := s.resolveMarkdown(ctx, leased)

	schema, err := llm.SchemaFor[models.ArticleEnrichment]()
	if err != nil {
		return fmt.Errorf("build enrichment schema: %w", err)
	}
	choice := s.cfg.Models.Choose(config.TaskTrackProcess, config.DifficultyLow)

	byID := make(map[string]candidate, len(candidates))
	requests := make([]llm.BatchRequest, 0, len(candidates))
	for _, c := range candidates {
		id := c.article.ID.String()
		byID[id] = c
		requests = append(requests, llm.NewChatBatchRequest(id, &llm.ChatCompletionRequest{
			Model:           choice.Model,
			ReasoningEffort: choice.ReasoningEffort,
			Messages: []llm.ChatMessage{
				{Role: "user", Content: buildInput(template, c)},
			},
			ResponseFormat: &llm.ResponseFormat{
				Type:       "json_schema",
				JSONSchema: &llm.JSONSchemaSpec{Name: "ArticleEnrichment", Strict: true, Schema: schema},
			},
		}))
	}

	records, err := s.dispatcher.RunBatchWithFallback(ctx, llm.ChatEndpoint, requests, func() {
		s.logger.Warn("enrichment batch timed out, retrying candidates individually")
		s.fallback(ctx, template, choice, candidates)
	})
	if err != nil {
		return fmt.Errorf("enrichment batch: %w", err)
	}
	if records == nil {
		return nil
	}

	updated := 0
	for id, record := range records {
		c, ok := byID[id]
		if !ok {
			continue
		}
		if record.Err != "" {
			s.logger.Warn("enrichment request failed", "article_id", id, "error", record.Err)
			continue
		}
		resp, err := record.ChatCompletion()
		if err != nil {
			s.logger.Warn("bad enrichment record", "article_id", id, "error", err)
			continue
		}
		var enr models.ArticleEnrichment
		if err := json.Unmarshal([]byte(resp.Text()), &enr); err != nil {
			s.logger.Warn("enrichment output not parseable", "article_id", id, "error", err)
			continue
		}
		if err := s.apply(ctx, c, &enr, llm.ChatLMLog(resp, "enrich")); err != nil {
			s.logger.Warn("failed to persist enrichment", "article_id", id, "error", err)
			continue
		}
		updated++
	}
	s.logger.Info("enrichment finished", "updated", updated, "candidates", len(candidates))
	return nil
}

// resolveMarkdown computes the canonical markdown for every leased article
// on the worker pool. Fetch failures fall back to the stored raw content.
func (s *Stage) resolveMarkdown(ctx context.Context, leased []*models.Article) []candidate {
	candidates := make([]candidate, len(leased))
	var mu sync.Mutex
	jobs := make([]worker.Job, len(leased))
	for i, a := range leased {
		jobs[i] = worker.Job{Name: "markdown " + a.ID.String(), Run: func(ctx context.Context) error {
			markdown := s.canonicalMarkdown(ctx, a)
			mu.Lock()
			candidates[i] = candidate{article: a, markdown: markdown}
			mu.Unlock()
			return nil
		}}
	}
	if err := s.pool.Do(ctx, jobs); err != nil {
		s.logger.Warn("markdown resolution incomplete", "error", err)
	}
	// Jobs that never ran still need a usable fallback body.
	for i, c := range candidates {
		if c.article == nil {
			candidates[i] = candidate{article: leased[i], markdown: leased[i].RawContent}
		}
	}
	return candidates
}

func (s *Stage) canonicalMarkdown(ctx context.Context, a *models.Article) string {
	for _, prefix := range skipLiveFetch {
		if strings.HasPrefix(a.Link, prefix) {
			return a.RawContent
		}
	}
	markdown, err := s.fetcher.CanonicalMarkdown(ctx, a.Link)
	if err != nil {
		s.logger.Debug("live fetch failed, using raw content", "article_id", a.ID, "error", err)
		return a.RawContent
	}
	return markdown
}

// fallback retries every candidate with individual structured parse calls.
func (s *Stage) fallback(ctx context.Context, template string, choice config.ModelChoice, candidates []candidate) {
	jobs := make([]worker.Job, 0, len(candidates))
	for _, c := range candidates {
		jobs = append(jobs, worker.Job{Name: "enrich " + c.article.ID.String(), Run: func(ctx context.Context) error {
			enr, log, err := llm.ParseStructured[models.ArticleEnrichment](ctx, s.client, llm.StructuredRequest{
				Model:           choice.Model,
				ReasoningEffort: choice.ReasoningEffort,
				SchemaName:      "ArticleEnrichment",
				User:            buildInput(template, c),
				CalledFrom:      "enrich.fallback",
			})
			if err != nil {
				return err
			}
			return s.apply(ctx, c, enr, log)
		}})
	}
	if err := s.pool.Do(ctx, jobs); err != nil {
		s.logger.Warn("fallback enrichment incomplete", "error", err)
	}
}

// apply persists the enrichment and releases the lease. The canonical
// markdown wins over the model's clean_markdown.
func (s *Stage) apply(ctx context.Context, c candidate, enr *models.ArticleEnrichment, log *models.LMLog) error {
	if err := s.store.Articles.SetEnrichment(ctx, c.article.ID, c.markdown, enr); err != nil {
		return err
	}
	if log != nil {
		if err := s.store.LMLogs.Insert(ctx, log); err != nil {
			s.logger.Warn("failed to record enrichment call log", "article_id", c.article.ID, "error", err)
		}
	}
	s.leases.Release(ctx, "articles", c.article.ID, leaseName)
	return nil
}

// buildInput assembles the enrichment prompt: template verbatim, then the
// article header and body.
func buildInput(template string, c candidate) string {
	a := c.article
	return template + "\n\n" + fmt.Sprintf(
		"Title: %s\nDate: %s\nTags: %s\nSource: %s\n\nSource Content (fetched):\n%s",
		a.Title, a.Date, strings.Join(a.Tags, ","), a.Link, c.markdown)
}
