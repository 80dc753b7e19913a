// Package lifecycle runs claim verification: cadence classification,
// follow-up autoplanning, check-in requests through the research loop, and
// verdict application.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/newsdocket/docket/pkg/agent"
	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/prompts"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/pkg/worker"
)

// Stage runs one verification pass.
type Stage struct {
	store  *store.Store
	loop   *agent.Loop
	pool   *worker.Pool
	cfg    *config.Config
	logger *slog.Logger

	// now is swapped out in tests to control the drain gate
	now func() time.Time
}

// New wires the verification stage.
func New(st *store.Store, client *llm.Client, pool *worker.Pool, cfg *config.Config, logger *slog.Logger) *Stage {
	logger = logger.With("stage", "lifecycle")
	return &Stage{
		store:  st,
		loop:   agent.NewLoop(client, st, cfg.Search, cfg.Loop, logger),
		pool:   pool,
		cfg:    cfg,
		logger: logger,
		now:    dates.Now,
	}
}

// checkRequest is one check-in to run through the research loop.
type checkRequest struct {
	customID   string
	input      string
	claim      *models.Claim
	followUp   *models.FollowUp
	updateType UpdateType
	choice     config.ModelChoice
	schema     json.RawMessage
	schemaName string
}

// parsedVerdict is the field set shared by both structured check-in outputs.
type parsedVerdict struct {
	Verdict      string   `json:"verdict"`
	Text         string   `json:"text"`
	Sources      []string `json:"sources"`
	FollowUpDate *string  `json:"follow_up_date"`
}

// Run executes the full verification pass for the pipeline date: chump
// check, autoplan, then every due check-in.
func (s *Stage) Run(ctx context.Context) error {
	today := dates.PipelineToday()

	// Chump check: a promise that lost its deadline is a goal.
	demoted, err := s.store.Claims.DemotePromisesWithoutDeadline(ctx)
	if err != nil {
		return fmt.Errorf("demote deadline-less promises: %w", err)
	}
	if demoted > 0 {
		s.logger.Info("demoted deadline-less promises to goals", "count", demoted)
	}

	promises, err := s.store.Claims.EligiblePromises(ctx)
	if err != nil {
		return fmt.Errorf("load eligible promises: %w", err)
	}
	goals, err := s.store.Claims.EligibleGoals(ctx)
	if err != nil {
		return fmt.Errorf("load eligible goals: %w", err)
	}
	statements, err := s.store.Claims.EligibleStatements(ctx)
	if err != nil {
		return fmt.Errorf("load eligible statements: %w", err)
	}
	s.logger.Info("eligible claims",
		"promises", len(promises), "goals", len(goals), "statements", len(statements))

	if planned := s.autoplan(ctx, promises, today); planned > 0 {
		s.logger.Info("autoplan scheduled follow-ups", "count", planned)
	}

	requests, err := s.buildRequests(ctx, promises, goals, statements, today)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		s.logger.Info("no check-ins due")
		return nil
	}
	s.logger.Info("running check-ins", "count", len(requests))

	jobs := make([]worker.Job, 0, len(requests))
	for _, req := range requests {
		jobs = append(jobs, worker.Job{Name: "check " + req.customID, Run: func(ctx context.Context) error {
			return s.check(ctx, req, today)
		}})
	}
	if err := s.pool.Do(ctx, jobs); err != nil {
		s.logger.Warn("verification pass incomplete", "error", err)
	}
	return nil
}

// autoplan materializes the full future follow-up schedule for promises that
// have none scheduled yet. Idempotent: a claim with any follow-up on or
// after today is left alone, and every insert is (claim, date) deduplicated.
func (s *Stage) autoplan(ctx context.Context, promises []*models.Claim, today dates.Date) int {
	inserted := 0
	for _, c := range promises {
		if c.CompletionConditionDate == nil {
			continue
		}
		end := *c.CompletionConditionDate
		if today.After(end) {
			continue
		}
		has, err := s.store.FollowUps.HasOnOrAfter(ctx, c.ID, today)
		if err != nil {
			s.logger.Warn("autoplan existence check failed", "claim_id", c.ID, "error", err)
			continue
		}
		if has {
			continue
		}
		note, _ := json.Marshal(fmt.Sprintf("Scheduled full plan on %s (autoplan)", today))
		for _, d := range Schedule(c.ArticleDate, end) {
			if d.Before(today) {
				continue
			}
			ok, err := s.store.FollowUps.InsertUnique(ctx, &models.FollowUp{
				ClaimID:      c.ID,
				ClaimText:    c.Claim,
				FollowUpDate: d,
				ArticleID:    c.ArticleID,
				ArticleLink:  c.ArticleLink,
				ModelOutput:  note,
			})
			if err != nil {
				s.logger.Warn("autoplan insert failed", "claim_id", c.ID, "date", d, "error", err)
				continue
			}
			if ok {
				inserted++
			}
		}
	}
	return inserted
}

func (s *Stage) buildRequests(ctx context.Context, promises, goals, statements []*models.Claim, today dates.Date) ([]*checkRequest, error) {
	regularTpl := prompts.MustLoad(prompts.RegularCheckin)
	endpointTpl := prompts.MustLoad(prompts.EndpointCheckin)
	factTpl := prompts.MustLoad(prompts.FactCheck)

	verdictSchema, err := llm.SchemaFor[models.ModelResponseOutput]()
	if err != nil {
		return nil, fmt.Errorf("build verdict schema: %w", err)
	}
	factSchema, err := llm.SchemaFor[models.FactCheckResponseOutput]()
	if err != nil {
		return nil, fmt.Errorf("build fact check schema: %w", err)
	}
	low := s.cfg.Models.Choose(config.TaskTrackAgent, config.DifficultyLow)
	medium := s.cfg.Models.Choose(config.TaskTrackAgent, config.DifficultyMedium)

	var requests []*checkRequest

	for idx, c := range promises {
		ut := Classify(c, today)
		if ut == NoUpdate {
			continue
		}
		tpl := regularTpl
		if ut == Endpoint {
			tpl = endpointTpl
		}
		requests = append(requests, &checkRequest{
			customID:   fmt.Sprintf("%s:%d", c.ID, idx),
			input:      claimMetadata(tpl, c, today),
			claim:      c,
			updateType: ut,
			choice:     low,
			schema:     verdictSchema,
			schemaName: "ModelResponseOutput",
		})
	}

	// Goals get a regular check-in every pass; the model proposes the next
	// follow-up date itself.
	for idx, c := range goals {
		requests = append(requests, &checkRequest{
			customID:   fmt.Sprintf("goal:%s:%d", c.ID, idx),
			input:      claimMetadata(regularTpl, c, today),
			claim:      c,
			choice:     low,
			schema:     verdictSchema,
			schemaName: "ModelResponseOutput",
		})
	}

	for idx, c := range statements {
		requests = append(requests, &checkRequest{
			customID:   fmt.Sprintf("statement:%s:%d", c.ID, idx),
			input:      statementMetadata(factTpl, c, today),
			claim:      c,
			choice:     low,
			schema:     factSchema,
			schemaName: "FactCheckResponseOutput",
		})
	}

	// Due follow-ups drain only on the last run of the day.
	if s.now().Hour() >= s.cfg.Stages.Lifecycle.DrainHour {
		due, err := s.store.FollowUps.DueOn(ctx, today)
		if err != nil {
			return nil, fmt.Errorf("load due follow-ups: %w", err)
		}
		for idx, f := range due {
			requests = append(requests, &checkRequest{
				customID:   fmt.Sprintf("followup:%s:%d", f.ID, idx),
				input:      followUpMetadata(endpointTpl, f),
				followUp:   f,
				choice:     medium,
				schema:     verdictSchema,
				schemaName: "ModelResponseOutput",
			})
		}
		if len(due) > 0 {
			s.logger.Info("draining due follow-ups", "count", len(due), "date", today)
		}
	}

	return requests, nil
}

// check runs one request through the research loop and applies the result.
// A loop failure still yields a failed-verdict Update rather than an error.
func (s *Stage) check(ctx context.Context, req *checkRequest, today dates.Date) error {
	out, err := s.loop.Run(ctx, req.input, agent.Options{
		Model:           req.choice.Model,
		ReasoningEffort: req.choice.ReasoningEffort,
		Schema:          req.schema,
		SchemaName:      req.schemaName,
		CalledFrom:      "lifecycle",
	})

	verdict := "in_progress"
	var text string
	var parsed *parsedVerdict
	if err != nil {
		s.logger.Warn("check-in loop failed", "custom_id", req.customID, "error", err)
		verdict = "failed"
		text = fmt.Sprintf("research loop failed: %v", err)
	} else {
		text = out.Text
		if lines := sourceLines(out.Sources); len(lines) > 0 {
			text = text + "\n\nSources:\n" + strings.Join(lines, "\n")
		}
		if out.Parsed != nil {
			var p parsedVerdict
			if jsonErr := json.Unmarshal(out.Parsed, &p); jsonErr == nil {
				parsed = &p
				if p.Verdict != "" {
					verdict = p.Verdict
				}
				if p.Text != "" {
					text = p.Text
				}
			}
		}
		if parsed == nil {
			verdict = ClassifyVerdict(text)
		}
	}

	var modelOutput json.RawMessage
	if parsed != nil {
		modelOutput = out.Parsed
	} else {
		modelOutput, _ = json.Marshal(text)
	}

	update := &models.Update{Verdict: verdict, ModelOutput: modelOutput}
	if req.followUp != nil {
		f := req.followUp
		update.ClaimID = f.ClaimID
		update.ClaimText = f.ClaimText
		update.ArticleID = f.ArticleID
		update.ArticleLink = f.ArticleLink
	} else {
		c := req.claim
		update.ClaimID = c.ID
		update.ClaimText = c.Claim
		update.ArticleID = c.ArticleID
		update.ArticleLink = c.ArticleLink
		update.ArticleDate = &c.ArticleDate
	}
	if out != nil {
		update.LMLog = out.LMLog
	}
	if err := s.store.Updates.Insert(ctx, update); err != nil {
		return fmt.Errorf("insert update for %s: %w", req.customID, err)
	}
	if out != nil && out.LMLog != nil {
		if err := s.store.LMLogs.Insert(ctx, out.LMLog); err != nil {
			s.logger.Warn("failed to record lm log", "custom_id", req.customID, "error", err)
		}
	}

	if parsed != nil && parsed.FollowUpDate != nil {
		if d, ok := dates.CoerceDate(*parsed.FollowUpDate); ok {
			s.insertProposedFollowUp(ctx, req, d, modelOutput)
		}
	}

	if req.followUp == nil && req.claim.Type == models.ClaimTypePromise {
		if req.updateType == Endpoint || terminalVerdict(verdict) {
			if err := s.store.Claims.SetDatePast(ctx, req.claim.ID, true); err != nil {
				s.logger.Warn("failed to mark claim terminal", "claim_id", req.claim.ID, "error", err)
			}
		}
	}

	if req.followUp != nil {
		if err := s.store.FollowUps.MarkProcessed(ctx, req.followUp.ID, update.ID); err != nil {
			s.logger.Warn("failed to mark follow-up processed",
				"followup_id", req.followUp.ID, "error", err)
		}
	}
	return nil
}

func (s *Stage) insertProposedFollowUp(ctx context.Context, req *checkRequest, d dates.Date, modelOutput json.RawMessage) {
	f := &models.FollowUp{FollowUpDate: d, ModelOutput: modelOutput}
	if req.followUp != nil {
		f.ClaimID = req.followUp.ClaimID
		f.ClaimText = req.followUp.ClaimText
		f.ArticleID = req.followUp.ArticleID
		f.ArticleLink = req.followUp.ArticleLink
	} else {
		f.ClaimID = req.claim.ID
		f.ClaimText = req.claim.Claim
		f.ArticleID = req.claim.ArticleID
		f.ArticleLink = req.claim.ArticleLink
	}
	inserted, err := s.store.FollowUps.InsertUnique(ctx, f)
	if err != nil {
		s.logger.Warn("failed to insert proposed follow-up", "claim_id", f.ClaimID, "error", err)
		return
	}
	if inserted {
		s.logger.Info("scheduled follow-up", "claim_id", f.ClaimID, "date", d)
	}
}

func claimMetadata(tpl string, c *models.Claim, today dates.Date) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(tpl))
	b.WriteString("\n\n-- Article Metadata --\n")
	fmt.Fprintf(&b, "Source Article Link: %s\n", c.ArticleLink)
	fmt.Fprintf(&b, "Source Article Date: %s\n", c.ArticleDate)
	fmt.Fprintf(&b, "Claim: %s\n", c.Claim)
	fmt.Fprintf(&b, "Verbatim Quote from Article: %s\n", c.VerbatimClaim)
	fmt.Fprintf(&b, "Completion Condition: %s\n", c.CompletionCondition)
	fmt.Fprintf(&b, "Projected Completion Date: %s\n", datePtrString(c.CompletionConditionDate))
	fmt.Fprintf(&b, "Current Date: %s", today)
	return b.String()
}

func statementMetadata(tpl string, c *models.Claim, today dates.Date) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(tpl))
	b.WriteString("\n\n-- Statement Metadata --\n")
	fmt.Fprintf(&b, "Source Article Link: %s\n", c.ArticleLink)
	fmt.Fprintf(&b, "Source Article Date: %s\n", c.ArticleDate)
	fmt.Fprintf(&b, "Claim (statement): %s\n", c.Claim)
	fmt.Fprintf(&b, "Verbatim Quote: %s\n", c.VerbatimClaim)
	if c.EventDate != nil {
		fmt.Fprintf(&b, "Event/Effective Date (if any): %s\n", *c.EventDate)
	}
	fmt.Fprintf(&b, "Current Date: %s", today)
	return b.String()
}

func followUpMetadata(tpl string, f *models.FollowUp) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(tpl))
	b.WriteString("\n\n-- Followup Metadata --\n")
	fmt.Fprintf(&b, "Source Article Link: %s\n", f.ArticleLink)
	fmt.Fprintf(&b, "Claim: %s\n", f.ClaimText)
	fmt.Fprintf(&b, "Followup requested for: %s", f.FollowUpDate)
	return b.String()
}

func datePtrString(d *dates.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// sourceLines renders fetched sources for the stored narrative.
func sourceLines(sources []agent.Source) []string {
	var lines []string
	for _, s := range sources {
		switch {
		case s.Title != "" && s.URL != "":
			lines = append(lines, fmt.Sprintf("- %s %s", s.Title, s.URL))
		case s.URL != "":
			lines = append(lines, "- "+s.URL)
		case s.Title != "":
			lines = append(lines, "- "+s.Title)
		}
	}
	return lines
}
