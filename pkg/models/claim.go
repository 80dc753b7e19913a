package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
)

// Claim is one extracted claim and its scheduling state. date_past=true is
// terminal: the claim leaves every eligible population for good.
type Claim struct {
	ID          uuid.UUID  `json:"id"`
	ArticleID   uuid.UUID  `json:"article_id"`
	ArticleLink string     `json:"article_link"`
	ArticleDate dates.Date `json:"article_date"`

	Claim                   string      `json:"claim"`
	VerbatimClaim           string      `json:"verbatim_claim"`
	Type                    ClaimType   `json:"type"`
	CompletionCondition     string      `json:"completion_condition"`
	CompletionConditionDate *dates.Date `json:"completion_condition_date,omitempty"` // promise-only deadline
	EventDate               *dates.Date `json:"event_date,omitempty"`                // statement-only event date
	FollowUpWorthy          bool        `json:"follow_up_worthy"`
	Priority                Priority    `json:"priority"`
	Mechanism               Mechanism   `json:"mechanism,omitempty"`

	DatePast  *bool     `json:"date_past,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LMLog     *LMLog    `json:"lm_log,omitempty"`
}

// Terminal reports whether the claim has left the scheduling populations.
func (c *Claim) Terminal() bool {
	return c.DatePast != nil && *c.DatePast
}

// ClaimProcessingStep is one extracted claim as produced by the extraction
// model, before resolution and normalization.
type ClaimProcessingStep struct {
	Claim         string    `json:"claim" jsonschema:"required,description=Canonical short description of the extracted claim"`
	VerbatimClaim string    `json:"verbatim_claim" jsonschema:"required,description=Exact excerpt from the article supporting the claim with no paraphrase"`
	Type          ClaimType `json:"type" jsonschema:"required,enum=goal,enum=promise,enum=statement,description=statement = verifiable claim about what is or was done; goal = vague or aspirational objective; promise = future deliverable with an explicit deadline and a measurable outcome"`

	CompletionCondition     string       `json:"completion_condition" jsonschema:"required,description=Condition(s) that must be met to consider the claim true or the goal achieved or the promise fulfilled"`
	CompletionConditionDate FlexibleDate `json:"completion_condition_date" jsonschema:"description=Deadline by which the completion condition must be met. PROMISE ONLY. Must be explicitly stated in the text. Never set to the article date unless the text sets that deadline"`
	EventDate               FlexibleDate `json:"event_date" jsonschema:"description=For already-taken actions (statements) the date the action occurred or became effective; only if explicitly stated in the text. Never use for deadlines"`

	FollowUpWorthy bool      `json:"follow_up_worthy" jsonschema:"required,description=Whether this claim should be queued for follow-up checks. Almost always true for promises; for goals only if material and checkable later; for statements whether a fact check is worthwhile"`
	Priority       Priority  `json:"priority" jsonschema:"required,enum=high,enum=medium,enum=low,description=high = material policy or enforcement or funding actions and time-bound promises; medium = meaningful but smaller scope; low = background or record-only"`
	Mechanism      Mechanism `json:"mechanism" jsonschema:"enum=direct_action,enum=directive,enum=enforcement,enum=funding,enum=rulemaking,enum=litigation,enum=oversight,enum=other,description=Routing hint for how the claim is executed"`
}

// Normalize applies the construction rules: a promise without a deadline is
// demoted to a goal, deadlines are promise-only, event dates are
// statement-only, and a non-follow-up-worthy step cannot stay high priority.
func (s *ClaimProcessingStep) Normalize() {
	if s.Type == ClaimTypePromise && s.CompletionConditionDate.IsNull() {
		s.Type = ClaimTypeGoal
	}
	if s.Type != ClaimTypePromise {
		s.CompletionConditionDate = FlexibleDate{}
	}
	if s.Type != ClaimTypeStatement {
		s.EventDate = FlexibleDate{}
	}
	if !s.FollowUpWorthy && s.Priority == PriorityHigh {
		s.Priority = PriorityMedium
	}
}

// ClaimProcessingResult is the strict-schema extraction output for one
// article.
type ClaimProcessingResult struct {
	Steps []ClaimProcessingStep `json:"steps" jsonschema:"required,description=List of extracted claims"`
}

// NewClaim builds a normalized Claim from an extraction step. Relative dates
// resolve against the article date unless the step names its own anchor, and
// date_past is derived from the resolved deadline and the pipeline today.
func NewClaim(step ClaimProcessingStep, article *Article, today dates.Date) Claim {
	step.Normalize()

	c := Claim{
		ID:                  uuid.New(),
		ArticleID:           article.ID,
		ArticleLink:         article.Link,
		ArticleDate:         article.Date,
		Claim:               step.Claim,
		VerbatimClaim:       step.VerbatimClaim,
		Type:                step.Type,
		CompletionCondition: step.CompletionCondition,
		FollowUpWorthy:      step.FollowUpWorthy,
		Priority:            step.Priority,
		Mechanism:           step.Mechanism,
		CreatedAt:           dates.Now(),
	}
	if c.ArticleDate.IsZero() {
		c.ArticleDate = today
	}
	if d, ok := step.CompletionConditionDate.Resolve(c.ArticleDate); ok {
		c.CompletionConditionDate = &d
	}
	if d, ok := step.EventDate.Resolve(c.ArticleDate); ok {
		c.EventDate = &d
	}

	past := c.CompletionConditionDate != nil && c.CompletionConditionDate.Before(today)
	c.DatePast = &past
	return c
}
