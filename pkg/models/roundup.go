package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
)

// RoundupSeedArticle is one scored input the roundup prompt was built from.
// Nested lower-tier roundups appear here with a sentinel score.
type RoundupSeedArticle struct {
	ArticleID    string   `json:"article_id"`
	Title        string   `json:"title"`
	Link         string   `json:"link,omitempty"`
	Score        int      `json:"score"`
	KeyTakeaways []string `json:"key_takeaways,omitempty"`
	Claims       []string `json:"claims,omitempty"` // claim texts referencing this article
}

// Roundup is one generated recap for a (kind, period) pair.
type Roundup struct {
	ID              uuid.UUID            `json:"id"`
	Kind            RoundupKind          `json:"kind"`
	Slug            string               `json:"slug,omitempty"`
	PeriodStart     dates.Date           `json:"period_start"`
	PeriodEnd       dates.Date           `json:"period_end"`
	Title           string               `json:"title"`
	SummaryMarkdown string               `json:"summary_markdown"`
	Sources         []string             `json:"sources,omitempty"`
	SeedArticles    []RoundupSeedArticle `json:"seed_articles"`
	OmittedCount    int                  `json:"omitted_count"`
	CreatedAt       time.Time            `json:"created_at"`
	LMLog           *LMLog               `json:"lm_log,omitempty"`
}
