// Package answers implements the follow-up answering stage: articles whose
// enrichment produced follow-up questions get concise, sourced answers from
// one research-loop call per article.
package answers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/newsdocket/docket/pkg/agent"
	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/lease"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/pkg/worker"
)

const leaseName = "followup_answer_lock"

// excerptMaxChars bounds how much article markdown the prompt carries.
const excerptMaxChars = 4000

// Stage answers follow-up questions for enriched articles.
type Stage struct {
	store  *store.Store
	leases *lease.Manager
	loop   *agent.Loop
	pool   *worker.Pool
	cfg    *config.Config
	logger *slog.Logger
}

// New wires the answering stage.
func New(st *store.Store, client *llm.Client, pool *worker.Pool, cfg *config.Config, logger *slog.Logger) *Stage {
	logger = logger.With("stage", "answers")
	return &Stage{
		store:  st,
		leases: lease.NewManager(st.DB(), logger),
		loop:   agent.NewLoop(client, st, cfg.Search, cfg.Loop, logger),
		pool:   pool,
		cfg:    cfg,
		logger: logger,
	}
}

// Run answers follow-up questions for up to the configured batch of
// candidate articles, one research-loop call per article on the worker
// pool. A failed article keeps its questions unanswered for the next run.
func (s *Stage) Run(ctx context.Context) error {
	stageCfg := s.cfg.Stages.Answers

	articles, err := s.store.Articles.AnswerCandidates(ctx, stageCfg.Batch)
	if err != nil {
		return fmt.Errorf("load answer candidates: %w", err)
	}

	owner := lease.Owner()
	var leased []*models.Article
	for _, a := range articles {
		ok, err := s.leases.Acquire(ctx, "articles", a.ID, leaseName, owner, stageCfg.LeaseTTL)
		if err != nil {
			return fmt.Errorf("acquire answer lease: %w", err)
		}
		if ok {
			leased = append(leased, a)
		}
	}
	if len(leased) == 0 {
		s.logger.Info("no articles require follow-up answers")
		return nil
	}
	s.logger.Info("answering follow-up questions", "count", len(leased))

	schema, err := llm.SchemaFor[models.FollowupAnswersList]()
	if err != nil {
		return fmt.Errorf("build answers schema: %w", err)
	}
	choice := s.cfg.Models.Choose(config.TaskTrackAgent, config.DifficultyMedium)

	jobs := make([]worker.Job, 0, len(leased))
	for _, a := range leased {
		jobs = append(jobs, worker.Job{Name: "answer " + a.ID.String(), Run: func(ctx context.Context) error {
			s.answer(ctx, a, choice, schema)
			return nil
		}})
	}
	if err := s.pool.Do(ctx, jobs); err != nil {
		s.logger.Warn("answer pass incomplete", "error", err)
	}
	return nil
}

// answer runs one article through the loop and persists whatever answers
// came back. Failures release the lease and leave the article a candidate.
func (s *Stage) answer(ctx context.Context, a *models.Article, choice config.ModelChoice, schema json.RawMessage) {
	questions := a.FollowUpQuestions
	if len(questions) == 0 {
		s.leases.Release(ctx, "articles", a.ID, leaseName)
		return
	}
	groups := a.FollowUpQuestionGroups.Expand(len(questions))

	parsed, out, err := agent.RunStructured[models.FollowupAnswersList](ctx, s.loop,
		buildPrompt(a, questions, groups, schema), agent.Options{
			Model:           choice.Model,
			ReasoningEffort: choice.ReasoningEffort,
			Schema:          schema,
			SchemaName:      "FollowupAnswersList",
			CalledFrom:      "answers",
		})
	if err != nil {
		s.logger.Warn("answer loop failed", "article_id", a.ID, "error", err)
		s.leases.Release(ctx, "articles", a.ID, leaseName)
		return
	}

	if parsed == nil && out.Text != "" {
		// A parse pass that never bound still sometimes leaves usable JSON
		// in the final text.
		var fromText models.FollowupAnswersList
		if json.Unmarshal([]byte(out.Text), &fromText) == nil {
			parsed = &fromText
		}
	}

	records := collectRecords(parsed, questions)
	if err := s.store.Articles.SetFollowUpAnswers(ctx, a.ID, records, out.LMLog); err != nil {
		s.logger.Warn("failed to persist answers", "article_id", a.ID, "error", err)
		s.leases.Release(ctx, "articles", a.ID, leaseName)
		return
	}
	if out.LMLog != nil {
		if err := s.store.LMLogs.Insert(ctx, out.LMLog); err != nil {
			s.logger.Warn("failed to record lm log", "article_id", a.ID, "error", err)
		}
	}
	s.leases.Release(ctx, "articles", a.ID, leaseName)
	s.logger.Info("stored follow-up answers", "article_id", a.ID, "answers", len(records))
}

// collectRecords flattens the model's indexed answers into persisted records
// in question order. Out-of-range indexes are dropped; an unanswered index
// produces no record.
func collectRecords(parsed *models.FollowupAnswersList, questions []string) []models.FollowupAnswerRecord {
	if parsed == nil {
		return nil
	}
	byIndex := make(map[int]models.FollowupAnswerItem, len(parsed.Answers))
	for _, item := range parsed.Answers {
		if item.Index < 0 || item.Index >= len(questions) {
			continue
		}
		if _, seen := byIndex[item.Index]; !seen {
			byIndex[item.Index] = item
		}
	}
	var records []models.FollowupAnswerRecord
	for idx, q := range questions {
		item, ok := byIndex[idx]
		if !ok {
			continue
		}
		records = append(records, models.FollowupAnswerRecord{
			Index:    idx,
			Question: q,
			Text:     item.Text,
			Sources:  item.Sources,
		})
	}
	return records
}

// buildPrompt lays out the answering task: instructions, the expected output
// shape, the article context, the question grouping hint, the questions, and
// a bounded excerpt of the article body for grounding.
func buildPrompt(a *models.Article, questions []string, groups [][]int, schema json.RawMessage) string {
	var b strings.Builder
	b.WriteString("You are answering follow-up questions to make this article understandable to a layperson.\n")
	b.WriteString("Use the article context below and web/news research to produce concise, sourced answers.\n")
	b.WriteString("Return ONLY the structured output requested.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("- Provide a short answer for each question index, even if the article partially answers it.\n")
	b.WriteString("- Cite 1-3 high-quality sources per answer when possible; prefer sources that directly support the answer.\n")
	b.WriteString("- Reuse research across grouped questions to keep answers consistent.\n")
	b.WriteString("- If a question is unanswerable with available information, say so concisely and leave sources empty.\n\n")
	b.WriteString("Structured output required:\n")
	b.WriteString("A JSON object with an \"answers\" list. Each entry carries the 0-based question index, a concise text answer, and the source URLs backing it.\n")
	b.WriteString(llm.SchemaOutline(schema))
	b.WriteString("Do not include prose outside the JSON object.\n")

	fmt.Fprintf(&b, "Article title: %s\nDate: %s\nLink: %s\n", a.Title, a.Date, a.Link)
	fmt.Fprintf(&b, "Summary: %s\n", a.SummaryParagraph)
	b.WriteString("Key takeaways:\n")
	if len(a.KeyTakeaways) == 0 {
		b.WriteString("- None provided\n")
	} else {
		for _, kt := range a.KeyTakeaways {
			b.WriteString("- " + kt + "\n")
		}
	}
	b.WriteString("Named entities with counts from the original text:\n")
	b.WriteString(formatEntities(a.Entities))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Question groups (0-based indexes of related questions): %s\n\n", formatGroups(groups))
	b.WriteString("Questions (index: text):\n")
	for idx, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", idx, q)
	}
	b.WriteString("\nArticle excerpt for grounding:\n")
	b.WriteString(truncate(a.Body(), excerptMaxChars))
	return b.String()
}

// formatEntities renders the named-entity counts with deterministic order.
func formatEntities(entities map[string]int) string {
	if len(entities) == 0 {
		return "None detected"
	}
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %d", name, entities[name]))
	}
	return strings.Join(lines, "\n")
}

func formatGroups(groups [][]int) string {
	if len(groups) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, fmt.Sprint(g))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
