package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
)

// internalArticle is the article shape returned by the internal_search tool.
type internalArticle struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Date             dates.Date `json:"date"`
	Link             string     `json:"link"`
	SummaryParagraph string     `json:"summary_paragraph,omitempty"`
}

// internalClaim is the claim shape returned by the internal_search tool.
// LatestUpdate carries the verdict of the newest update, if any.
type internalClaim struct {
	ID                      string           `json:"id"`
	Claim                   string           `json:"claim"`
	Type                    models.ClaimType `json:"type"`
	CompletionCondition     string           `json:"completion_condition"`
	CompletionConditionDate *dates.Date      `json:"completion_condition_date,omitempty"`
	LatestUpdate            *internalVerdict `json:"latest_update"`
}

type internalVerdict struct {
	Verdict   string    `json:"verdict"`
	CreatedAt time.Time `json:"created_at"`
}

type internalSearchResult struct {
	Articles []internalArticle `json:"articles"`
	Claims   []internalClaim   `json:"claims"`
}

type internalSearchTool struct {
	store  *store.Store
	logger *slog.Logger
}

func (t *internalSearchTool) Definition() llm.ToolDefinition { return internalSearchDef }

func (t *internalSearchTool) Invoke(ctx context.Context, args json.RawMessage) any {
	var in struct {
		Query       string  `json:"query"`
		MaxArticles *int    `json:"max_articles"`
		MaxClaims   *int    `json:"max_claims"`
		StartDate   *string `json:"start_date"`
		EndDate     *string `json:"end_date"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return toolErr{Error: fmt.Sprintf("bad arguments: %v", err)}
	}

	query := strings.TrimSpace(in.Query)
	start := parseOptionalDate(in.StartDate)
	end := parseOptionalDate(in.EndDate)

	out := internalSearchResult{Articles: []internalArticle{}, Claims: []internalClaim{}}

	articles, err := t.store.Articles.Search(ctx, query, intArg(in.MaxArticles, 10), start, end)
	if err != nil {
		t.logger.Warn("internal article search failed", "error", err)
	}
	for _, a := range articles {
		out.Articles = append(out.Articles, internalArticle{
			ID:               a.ID.String(),
			Title:            a.Title,
			Date:             a.Date,
			Link:             a.Link,
			SummaryParagraph: a.SummaryParagraph,
		})
	}

	claims, err := t.store.Claims.Search(ctx, query, intArg(in.MaxClaims, 20), start, end)
	if err != nil {
		t.logger.Warn("internal claim search failed", "error", err)
	}
	claimIDs := make([]uuid.UUID, 0, len(claims))
	for _, c := range claims {
		claimIDs = append(claimIDs, c.ID)
	}
	verdicts, err := t.store.Updates.LatestVerdicts(ctx, claimIDs)
	if err != nil {
		t.logger.Warn("latest verdict lookup failed", "error", err)
		verdicts = nil
	}
	for _, c := range claims {
		item := internalClaim{
			ID:                      c.ID.String(),
			Claim:                   c.Claim,
			Type:                    c.Type,
			CompletionCondition:     c.CompletionCondition,
			CompletionConditionDate: c.CompletionConditionDate,
		}
		if v, ok := verdicts[c.ID]; ok {
			item.LatestUpdate = &internalVerdict{Verdict: v.Verdict, CreatedAt: v.CreatedAt}
		}
		out.Claims = append(out.Claims, item)
	}
	return out
}

func parseOptionalDate(s *string) *dates.Date {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	d, err := dates.ParseDate(strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &d
}
