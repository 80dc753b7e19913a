// Package extract implements the claim extraction stage: articles not yet
// claim-processed are run through the extraction prompt and every returned
// step is normalized into a Claim row.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/lease"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/prompts"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/pkg/worker"
)

const leaseName = "claimproc"

// Stage runs claim extraction.
type Stage struct {
	store      *store.Store
	leases     *lease.Manager
	client     *llm.Client
	dispatcher *llm.Dispatcher
	pool       *worker.Pool
	cfg        *config.Config
	logger     *slog.Logger
}

// New wires the extraction stage.
func New(st *store.Store, client *llm.Client, pool *worker.Pool, cfg *config.Config, logger *slog.Logger) *Stage {
	logger = logger.With("stage", "extract")
	return &Stage{
		store:      st,
		leases:     lease.NewManager(st.DB(), logger),
		client:     client,
		dispatcher: llm.NewDispatcher(client, cfg.Batch, logger),
		pool:       pool,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run extracts claims from up to the configured batch of unprocessed
// articles. Extraction runs at temperature zero; an article whose output
// cannot be applied stays unprocessed for the next run.
func (s *Stage) Run(ctx context.Context) error {
	stageCfg := s.cfg.Stages.Extract
	template := prompts.MustLoad(prompts.ClaimProcessing)

	articles, err := s.store.Articles.ExtractionCandidates(ctx, stageCfg.Batch)
	if err != nil {
		return fmt.Errorf("load extraction candidates: %w", err)
	}

	owner := lease.Owner()
	var leased []*models.Article
	for _, a := range articles {
		ok, err := s.leases.Acquire(ctx, "articles", a.ID, leaseName, owner, stageCfg.LeaseTTL)
		if err != nil {
			return fmt.Errorf("acquire claimproc lease: %w", err)
		}
		if !ok {
			continue
		}
		// Materialize claim_processed=false so the flag is never null once
		// an article has entered extraction.
		if a.ClaimProcessed == nil {
			if err := s.store.Articles.SetClaimProcessed(ctx, a.ID, false); err != nil {
				return fmt.Errorf("materialize claim_processed: %w", err)
			}
		}
		leased = append(leased, a)
	}
	if len(leased) == 0 {
		s.logger.Info("no articles awaiting claim extraction")
		return nil
	}
	s.logger.Info("extracting claims", "count", len(leased))

	schema, err := llm.SchemaFor[models.ClaimProcessingResult]()
	if err != nil {
		return fmt.Errorf("build extraction schema: %w", err)
	}
	choice := s.cfg.Models.Choose(config.TaskTrackProcess, config.DifficultyLow)
	temperature := 0.0

	byID := make(map[string]*models.Article, len(leased))
	requests := make([]llm.BatchRequest, 0, len(leased))
	for _, a := range leased {
		id := a.ID.String()
		byID[id] = a
		requests = append(requests, llm.NewChatBatchRequest(id, &llm.ChatCompletionRequest{
			Model:           choice.Model,
			ReasoningEffort: choice.ReasoningEffort,
			Temperature:     &temperature,
			Messages: []llm.ChatMessage{
				{Role: "user", Content: buildInput(template, schema, a)},
			},
			ResponseFormat: &llm.ResponseFormat{
				Type:       "json_schema",
				JSONSchema: &llm.JSONSchemaSpec{Name: "ClaimProcessingResult", Strict: true, Schema: schema},
			},
		}))
	}

	records, err := s.dispatcher.RunBatchWithFallback(ctx, llm.ChatEndpoint, requests, func() {
		s.logger.Warn("extraction batch timed out, retrying candidates individually")
		s.fallback(ctx, template, schema, choice, leased)
	})
	if err != nil {
		return fmt.Errorf("extraction batch: %w", err)
	}
	if records == nil {
		return nil
	}

	processed := 0
	for id, record := range records {
		a, ok := byID[id]
		if !ok {
			continue
		}
		if record.Err != "" {
			s.logger.Warn("extraction request failed", "article_id", id, "error", record.Err)
			continue
		}
		resp, err := record.ChatCompletion()
		if err != nil {
			s.logger.Warn("bad extraction record", "article_id", id, "error", err)
			continue
		}
		var result models.ClaimProcessingResult
		if err := json.Unmarshal([]byte(resp.Text()), &result); err != nil {
			s.logger.Warn("extraction output not parseable", "article_id", id, "error", err)
			continue
		}
		if err := s.apply(ctx, a, &result, llm.ChatLMLog(resp, "extract")); err != nil {
			s.logger.Warn("failed to apply extraction", "article_id", id, "error", err)
			continue
		}
		processed++
	}
	s.logger.Info("extraction finished", "processed", processed, "candidates", len(leased))
	return nil
}

// fallback retries every leased article with individual structured calls.
func (s *Stage) fallback(ctx context.Context, template string, schema json.RawMessage, choice config.ModelChoice, leased []*models.Article) {
	jobs := make([]worker.Job, 0, len(leased))
	for _, a := range leased {
		jobs = append(jobs, worker.Job{Name: "extract " + a.ID.String(), Run: func(ctx context.Context) error {
			result, log, err := llm.ParseStructured[models.ClaimProcessingResult](ctx, s.client, llm.StructuredRequest{
				Model:           choice.Model,
				ReasoningEffort: choice.ReasoningEffort,
				SchemaName:      "ClaimProcessingResult",
				User:            buildInput(template, schema, a),
				CalledFrom:      "extract.fallback",
			})
			if err != nil {
				return err
			}
			return s.apply(ctx, a, result, log)
		}})
	}
	if err := s.pool.Do(ctx, jobs); err != nil {
		s.logger.Warn("fallback extraction incomplete", "error", err)
	}
}

// apply inserts one Claim per step, marks the article processed, and
// releases the lease. A step that cannot be inserted is dropped alone.
func (s *Stage) apply(ctx context.Context, a *models.Article, result *models.ClaimProcessingResult, log *models.LMLog) error {
	today := dates.PipelineToday()
	inserted := 0
	for _, step := range result.Steps {
		claim := models.NewClaim(step, a, today)
		claim.LMLog = log
		if err := s.store.Claims.Insert(ctx, &claim); err != nil {
			s.logger.Warn("failed to insert claim", "article_id", a.ID, "claim", step.Claim, "error", err)
			continue
		}
		inserted++
	}
	if err := s.store.Articles.SetClaimProcessed(ctx, a.ID, true); err != nil {
		return err
	}
	if log != nil {
		if err := s.store.LMLogs.Insert(ctx, log); err != nil {
			s.logger.Warn("failed to record extraction call log", "article_id", a.ID, "error", err)
		}
	}
	s.leases.Release(ctx, "articles", a.ID, leaseName)
	s.logger.Debug("article claim-processed", "article_id", a.ID, "claims", inserted)
	return nil
}

// buildInput substitutes the schema and article block into the extraction
// template.
func buildInput(template string, schema json.RawMessage, a *models.Article) string {
	var indented bytes.Buffer
	if err := json.Indent(&indented, schema, "", "  "); err != nil {
		indented.Reset()
		indented.Write(schema)
	}
	articleBlock := fmt.Sprintf("Title: %s\nTimestamp: %s\nTags: %s\nSource: %s\n\nContent: %s",
		a.Title, a.Date, strings.Join(a.Tags, ","), a.Link, a.Body())
	content := strings.ReplaceAll(template, "{{SCHEMA}}", indented.String())
	return strings.ReplaceAll(content, "{{ARTICLE}}", articleBlock)
}
