// Package roundup generates daily, weekly, monthly and yearly recaps from
// the period's articles and the lower-tier roundups nested inside it.
package roundup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/newsdocket/docket/pkg/agent"
	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/prompts"
	"github.com/newsdocket/docket/pkg/store"
)

// nestedScore marks seeds that are lower-tier roundups rather than articles.
const nestedScore = 100000

// nestedTiers maps a roundup kind to the kind and count of roundups nested
// inside its period.
var nestedTiers = map[models.RoundupKind]struct {
	kind  models.RoundupKind
	limit int
}{
	models.RoundupWeekly:  {models.RoundupDaily, 7},
	models.RoundupMonthly: {models.RoundupWeekly, 4},
	models.RoundupYearly:  {models.RoundupMonthly, 12},
}

// Stage generates missing roundups for the pipeline date.
type Stage struct {
	store  *store.Store
	client *llm.Client
	loop   *agent.Loop
	cfg    *config.Config
	logger *slog.Logger
}

// New wires the roundup stage.
func New(st *store.Store, client *llm.Client, cfg *config.Config, logger *slog.Logger) *Stage {
	logger = logger.With("stage", "roundup")
	return &Stage{
		store:  st,
		client: client,
		loop:   agent.NewLoop(client, st, cfg.Search, cfg.Loop, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Run generates every missing roundup whose period has closed: yesterday's
// daily, the last full week, month and year. Periods starting before the
// cutoff date are never generated; a failed period does not block the rest.
func (s *Stage) Run(ctx context.Context) error {
	today := dates.PipelineToday()
	template := prompts.MustLoad(prompts.Roundup)

	cutoff, err := dates.ParseDate(s.cfg.Stages.Roundup.CutoffDate)
	if err != nil {
		return fmt.Errorf("parse roundup cutoff: %w", err)
	}

	type period struct {
		kind       models.RoundupKind
		start, end dates.Date
	}
	var periods []period
	for _, kind := range []models.RoundupKind{
		models.RoundupDaily, models.RoundupWeekly, models.RoundupMonthly, models.RoundupYearly,
	} {
		var start, end dates.Date
		switch kind {
		case models.RoundupDaily:
			start, end = prevDay(today)
		case models.RoundupWeekly:
			start, end = prevWeek(today)
		case models.RoundupMonthly:
			start, end = prevMonth(today)
		default:
			start, end = prevYear(today)
		}
		periods = append(periods, period{kind, start, end})
	}

	for _, p := range periods {
		if p.start.Before(cutoff) {
			s.logger.Info("period precedes cutoff", "kind", p.kind, "start", p.start, "cutoff", cutoff)
			continue
		}
		exists, err := s.store.Roundups.Exists(ctx, p.kind, p.start, p.end)
		if err != nil {
			return fmt.Errorf("check roundup existence: %w", err)
		}
		if exists {
			s.logger.Info("roundup already generated", "kind", p.kind, "start", p.start, "end", p.end)
			continue
		}
		if err := s.generate(ctx, p.kind, p.start, p.end, template); err != nil {
			s.logger.Warn("roundup generation failed",
				"kind", p.kind, "start", p.start, "end", p.end, "error", err)
		}
	}
	return nil
}

func (s *Stage) generate(ctx context.Context, kind models.RoundupKind, start, end dates.Date, template string) error {
	seeds, omitted, err := s.collectSeeds(ctx, kind, start, end)
	if err != nil {
		return err
	}
	s.logger.Info("generating roundup", "kind", kind, "start", start, "end", end,
		"seeds", len(seeds), "omitted", omitted)

	prompt := fmt.Sprintf(
		"Time period: %s to %s (%s)\n\nSeed articles (representative sample):\n%s\n\n"+
			"Articles in internal knowledge base but not in this seed list: %d\n\nWrite the roundup.",
		start, end, kind, seedMarkdown(seeds), omitted)

	// Yearly recaps always get the strongest agent entry; the rest let the
	// selector grade the task.
	var choice config.ModelChoice
	if kind == models.RoundupYearly {
		choice = s.cfg.Models.Choose(config.TaskTrackAgent, config.DifficultyHigh)
	} else {
		var selLog *models.LMLog
		choice, selLog = llm.SelectModel(ctx, s.client, s.cfg.Models, config.TaskTrackAgent, prompt, s.logger)
		if selLog != nil {
			if err := s.store.LMLogs.Insert(ctx, selLog); err != nil {
				s.logger.Warn("failed to record selector lm log", "error", err)
			}
		}
	}

	schema, err := llm.SchemaFor[models.RoundupResponseOutput]()
	if err != nil {
		return fmt.Errorf("build roundup schema: %w", err)
	}
	result, out, err := agent.RunStructured[models.RoundupResponseOutput](ctx, s.loop, prompt, agent.Options{
		Model:           choice.Model,
		ReasoningEffort: choice.ReasoningEffort,
		Schema:          schema,
		SchemaName:      "RoundupResponseOutput",
		TaskSystem:      template,
		Tools:           []agent.ToolSet{agent.WebSearch, agent.NewsSearch, agent.InternalSearch},
		CalledFrom:      "roundup",
	})
	if err != nil {
		return fmt.Errorf("roundup loop: %w", err)
	}

	title := ""
	body := out.Text
	var sources []string
	if result != nil {
		title = result.Title
		if result.Text != "" {
			body = result.Text
		}
		sources = result.Sources
	}
	if title == "" {
		title = fmt.Sprintf("%s Roundup (%s – %s)", titleCase(string(kind)), start, end)
	}

	slug, err := uniqueSlug(ctx, s.store.Roundups, title, end)
	if err != nil {
		return fmt.Errorf("derive slug: %w", err)
	}

	ru := &models.Roundup{
		Kind:            kind,
		Slug:            slug,
		PeriodStart:     start,
		PeriodEnd:       end,
		Title:           title,
		SummaryMarkdown: body,
		Sources:         sources,
		SeedArticles:    seeds,
		OmittedCount:    omitted,
		LMLog:           out.LMLog,
	}
	if err := s.store.Roundups.Insert(ctx, ru); err != nil {
		return fmt.Errorf("insert roundup: %w", err)
	}
	if out.LMLog != nil {
		if err := s.store.LMLogs.Insert(ctx, out.LMLog); err != nil {
			s.logger.Warn("failed to record lm log", "error", err)
		}
	}
	s.logger.Info("roundup stored", "kind", kind, "slug", slug)
	return nil
}

// collectSeeds assembles the prompt seeds: nested lower-tier roundups first,
// then the period's highest-scoring articles up to the seed cap. The omitted
// count is how many period articles did not make the seed list.
func (s *Stage) collectSeeds(ctx context.Context, kind models.RoundupKind, start, end dates.Date) ([]models.RoundupSeedArticle, int, error) {
	var seeds []models.RoundupSeedArticle

	if tier, ok := nestedTiers[kind]; ok {
		nested, err := s.store.Roundups.NestedWithin(ctx, tier.kind, start, end, tier.limit)
		if err != nil {
			return nil, 0, fmt.Errorf("load nested roundups: %w", err)
		}
		for _, r := range nested {
			title := r.Title
			if title == "" {
				title = fmt.Sprintf("%s Roundup (%s – %s)", titleCase(string(r.Kind)), r.PeriodStart, r.PeriodEnd)
			}
			seeds = append(seeds, models.RoundupSeedArticle{
				ArticleID: r.ID.String(),
				Title:     title,
				Score:     nestedScore,
			})
		}
	}

	remaining := s.cfg.Stages.Roundup.MaxSeeds - len(seeds)
	if remaining < 0 {
		remaining = 0
	}

	articles, err := s.store.Articles.InPeriod(ctx, start, end)
	if err != nil {
		return nil, 0, fmt.Errorf("load period articles: %w", err)
	}

	type scored struct {
		article *models.Article
		count   int
		score   int
	}
	ranked := make([]scored, 0, len(articles))
	for _, a := range articles {
		count, err := s.store.Claims.CountByArticle(ctx, a.ID)
		if err != nil {
			s.logger.Warn("claim count failed", "article_id", a.ID, "error", err)
			count = 0
		}
		priority := 0
		if a.Priority != nil {
			priority = *a.Priority
		}
		ranked = append(ranked, scored{a, count, len(a.KeyTakeaways) + count + priority})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > remaining {
		ranked = ranked[:remaining]
	}

	for _, r := range ranked {
		claims, err := s.store.Claims.ListByArticle(ctx, r.article.ID)
		if err != nil {
			s.logger.Warn("claim list failed", "article_id", r.article.ID, "error", err)
		}
		var texts []string
		for _, c := range claims {
			if c.Claim != "" {
				texts = append(texts, c.Claim)
			}
			if len(texts) == 100 {
				break
			}
		}
		seeds = append(seeds, models.RoundupSeedArticle{
			ArticleID:    r.article.ID.String(),
			Title:        r.article.Title,
			Link:         r.article.Link,
			Score:        r.score,
			KeyTakeaways: r.article.KeyTakeaways,
			Claims:       texts,
		})
	}

	omitted := len(articles) - len(ranked)
	if omitted < 0 {
		omitted = 0
	}
	return seeds, omitted, nil
}

// seedMarkdown renders seeds as the nested bullet list the prompt embeds.
func seedMarkdown(seeds []models.RoundupSeedArticle) string {
	var lines []string
	for _, s := range seeds {
		if s.Link != "" {
			lines = append(lines, fmt.Sprintf("- %s (%s)", s.Title, s.Link))
		} else {
			lines = append(lines, "- "+s.Title)
		}
		for _, kt := range s.KeyTakeaways {
			lines = append(lines, "  - "+kt)
		}
		if len(s.Claims) > 0 {
			lines = append(lines, "  - Claims:")
			for _, c := range s.Claims {
				lines = append(lines, "    - "+c)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
