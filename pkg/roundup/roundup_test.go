package roundup

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/test/util"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Stages: config.DefaultStagesConfig(),
		Pool:   config.DefaultPoolConfig(),
		Batch:  config.DefaultBatchConfig(),
		Search: config.DefaultSearchConfig(),
		Loop:   config.DefaultLoopConfig(),
		Models: config.DefaultModelsConfig(),
	}
}

func d(y, m, day int) dates.Date {
	return dates.NewDate(y, time.Month(m), day)
}

func TestPrevDay(t *testing.T) {
	start, end := prevDay(d(2026, 3, 10))
	assert.Equal(t, d(2026, 3, 9), start)
	assert.Equal(t, d(2026, 3, 9), end)
}

func TestPrevWeek(t *testing.T) {
	cases := []struct {
		name       string
		today      dates.Date
		start, end dates.Date
	}{
		{"tuesday", d(2026, 3, 10), d(2026, 3, 2), d(2026, 3, 8)},
		{"monday", d(2026, 3, 9), d(2026, 3, 2), d(2026, 3, 8)},
		{"sunday", d(2026, 3, 8), d(2026, 2, 23), d(2026, 3, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := prevWeek(tc.today)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.end, end)
		})
	}
}

func TestPrevMonth(t *testing.T) {
	start, end := prevMonth(d(2026, 3, 10))
	assert.Equal(t, d(2026, 2, 1), start)
	assert.Equal(t, d(2026, 2, 28), end)

	start, end = prevMonth(d(2026, 1, 15))
	assert.Equal(t, d(2025, 12, 1), start)
	assert.Equal(t, d(2025, 12, 31), end)
}

func TestPrevYear(t *testing.T) {
	start, end := prevYear(d(2026, 3, 10))
	assert.Equal(t, d(2025, 1, 1), start)
	assert.Equal(t, d(2025, 12, 31), end)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", slugify("Hello, World!"))
	assert.Equal(t, "mixed-case-42", slugify("  __Mixed -- Case__ 42 "))
	assert.Equal(t, "item", slugify("!!!"))
}

func TestUniqueSlugFallbacks(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	date := d(2026, 3, 9)

	insert := func(slug string) {
		require.NoError(t, st.Roundups.Insert(ctx, &models.Roundup{
			Kind:        models.RoundupDaily,
			Slug:        slug,
			PeriodStart: date,
			PeriodEnd:   date,
			Title:       "Daily Report",
		}))
	}

	slug, err := uniqueSlug(ctx, st.Roundups, "Daily Report", date)
	require.NoError(t, err)
	assert.Equal(t, "daily-report", slug)

	insert("daily-report")
	slug, err = uniqueSlug(ctx, st.Roundups, "Daily Report", date)
	require.NoError(t, err)
	assert.Equal(t, "daily-report-2026-03-09", slug)

	insert("daily-report-2026-03-09")
	slug, err = uniqueSlug(ctx, st.Roundups, "Daily Report", date)
	require.NoError(t, err)
	assert.Equal(t, "daily-report-2", slug)
}

// roundupHandler answers loop requests with text and parse passes with a
// structured roundup payload, counting responses-API calls along the way.
func roundupHandler(t *testing.T, calls *atomic.Int64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req llm.ResponseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		body := "Draft recap of the period."
		id := "resp-loop"
		if req.Text != nil {
			payload, err := json.Marshal(models.RoundupResponseOutput{
				Title:   "Infrastructure Week in Review",
				Text:    "Bridges dominated the period.",
				Sources: []string{"https://example.org/bridges"},
			})
			require.NoError(t, err)
			body = string(payload)
			id = "resp-parse"
		}
		json.NewEncoder(w).Encode(llm.Response{
			ID:     id,
			Model:  req.Model,
			Status: "completed",
			Output: []llm.ResponseOutputItem{{
				Type:    "message",
				Role:    "assistant",
				Content: []llm.ResponseContentPart{{Type: "output_text", Text: body}},
			}},
			Usage: &llm.ResponseUsage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30},
		})
	})
	return mux
}

func newTestStage(t *testing.T, st *store.Store, handler http.Handler, cfg *config.Config) *Stage {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := llm.NewClient(&config.LLMProviderConfig{
		Type:    config.LLMProviderTypeOpenAI,
		BaseURL: server.URL,
	}, testLogger())
	return New(st, client, cfg, testLogger())
}

func seedArticle(t *testing.T, st *store.Store, date dates.Date, title, link string, takeaways []string) *models.Article {
	t.Helper()
	a := &models.Article{
		Link:         link,
		Title:        title,
		Date:         date,
		RawContent:   "body",
		KeyTakeaways: takeaways,
	}
	require.NoError(t, st.Articles.Insert(context.Background(), a))
	return a
}

func TestRunGeneratesDailyRoundup(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	t.Setenv(dates.PipelineRunDateEnv, "2026-03-10")
	yesterday := d(2026, 3, 9)

	rich := seedArticle(t, st, yesterday, "Ministry pledges bridge repairs",
		"https://example.org/bridges", []string{"500 bridges slated for repair", "Funding already approved"})
	require.NoError(t, st.Claims.Insert(ctx, &models.Claim{
		ArticleID:     rich.ID,
		ArticleLink:   rich.Link,
		ArticleDate:   rich.Date,
		Claim:         "Ministry will repair 500 bridges",
		VerbatimClaim: "The ministry will repair 500 bridges.",
		Type:          models.ClaimTypePromise,
		Priority:      models.PriorityHigh,
	}))
	seedArticle(t, st, yesterday, "Minor zoning update", "https://example.org/zoning", nil)

	var calls atomic.Int64
	stage := newTestStage(t, st, roundupHandler(t, &calls), testConfig())
	require.NoError(t, stage.Run(ctx))

	exists, err := st.Roundups.Exists(ctx, models.RoundupDaily, yesterday, yesterday)
	require.NoError(t, err)
	assert.True(t, exists)

	ru, err := st.Roundups.GetBySlug(ctx, "infrastructure-week-in-review")
	require.NoError(t, err)
	assert.Equal(t, models.RoundupDaily, ru.Kind)
	assert.Equal(t, "Infrastructure Week in Review", ru.Title)
	assert.Equal(t, "Bridges dominated the period.", ru.SummaryMarkdown)
	assert.Equal(t, []string{"https://example.org/bridges"}, ru.Sources)
	assert.Equal(t, 0, ru.OmittedCount)
	require.NotNil(t, ru.LMLog)
	assert.Equal(t, "roundup", ru.LMLog.CalledFrom)

	// The richer article ranks first: takeaways plus a claim beat none.
	require.Len(t, ru.SeedArticles, 2)
	assert.Equal(t, "Ministry pledges bridge repairs", ru.SeedArticles[0].Title)
	assert.Equal(t, "https://example.org/bridges", ru.SeedArticles[0].Link)
	assert.Contains(t, ru.SeedArticles[0].Claims, "Ministry will repair 500 bridges")
	assert.Greater(t, ru.SeedArticles[0].Score, ru.SeedArticles[1].Score)

	// The 2025 yearly period starts before the cutoff and is skipped.
	exists, err = st.Roundups.Exists(ctx, models.RoundupYearly, d(2025, 1, 1), d(2025, 12, 31))
	require.NoError(t, err)
	assert.False(t, exists)

	// Usage accounting sees the loop calls.
	rows, err := st.LMLogs.UsageForDate(ctx, dates.Today())
	require.NoError(t, err)
	require.NotEmpty(t, rows)
}

func TestRunSkipsPeriodsBeforeCutoff(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	t.Setenv(dates.PipelineRunDateEnv, "2026-03-10")

	seedArticle(t, st, d(2026, 3, 9), "Something happened", "https://example.org/x", nil)

	cfg := testConfig()
	cfg.Stages.Roundup.CutoffDate = "2026-04-01"
	var calls atomic.Int64
	stage := newTestStage(t, st, roundupHandler(t, &calls), cfg)
	require.NoError(t, stage.Run(ctx))

	assert.Zero(t, calls.Load())
	list, err := st.Roundups.List(ctx, models.RoundupDaily, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRunSkipsExistingRoundups(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	t.Setenv(dates.PipelineRunDateEnv, "2026-03-10")
	yesterday := d(2026, 3, 9)

	require.NoError(t, st.Roundups.Insert(ctx, &models.Roundup{
		Kind:        models.RoundupDaily,
		Slug:        "already-there",
		PeriodStart: yesterday,
		PeriodEnd:   yesterday,
		Title:       "Already There",
	}))

	var calls atomic.Int64
	stage := newTestStage(t, st, roundupHandler(t, &calls), testConfig())
	require.NoError(t, stage.Run(ctx))

	list, err := st.Roundups.List(ctx, models.RoundupDaily, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "already-there", list[0].Slug)
}

func TestRunWeeklySeedsNestedDailies(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	t.Setenv(dates.PipelineRunDateEnv, "2026-03-10")

	// Two dailies inside the Mon 3/2 .. Sun 3/8 week.
	for _, day := range []dates.Date{d(2026, 3, 3), d(2026, 3, 4)} {
		require.NoError(t, st.Roundups.Insert(ctx, &models.Roundup{
			Kind:        models.RoundupDaily,
			Slug:        "daily-" + day.String(),
			PeriodStart: day,
			PeriodEnd:   day,
			Title:       "Daily " + day.String(),
		}))
	}
	// Yesterday's daily exists so the daily pass does not also generate.
	yesterday := d(2026, 3, 9)
	require.NoError(t, st.Roundups.Insert(ctx, &models.Roundup{
		Kind:        models.RoundupDaily,
		Slug:        "daily-" + yesterday.String(),
		PeriodStart: yesterday,
		PeriodEnd:   yesterday,
		Title:       "Daily " + yesterday.String(),
	}))

	var calls atomic.Int64
	stage := newTestStage(t, st, roundupHandler(t, &calls), testConfig())
	require.NoError(t, stage.Run(ctx))

	list, err := st.Roundups.List(ctx, models.RoundupWeekly, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	weekly := list[0]
	assert.Equal(t, d(2026, 3, 2), weekly.PeriodStart)
	assert.Equal(t, d(2026, 3, 8), weekly.PeriodEnd)

	require.GreaterOrEqual(t, len(weekly.SeedArticles), 2)
	nested := 0
	for _, seed := range weekly.SeedArticles {
		if seed.Score == nestedScore {
			nested++
			assert.Empty(t, seed.Link)
		}
	}
	assert.Equal(t, 2, nested)
}

func TestRunCountsOmittedArticles(t *testing.T) {
	st, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	t.Setenv(dates.PipelineRunDateEnv, "2026-03-10")
	yesterday := d(2026, 3, 9)

	seedArticle(t, st, yesterday, "First", "https://example.org/1", []string{"a", "b"})
	seedArticle(t, st, yesterday, "Second", "https://example.org/2", []string{"c"})
	seedArticle(t, st, yesterday, "Third", "https://example.org/3", nil)

	cfg := testConfig()
	cfg.Stages.Roundup.MaxSeeds = 1
	var calls atomic.Int64
	stage := newTestStage(t, st, roundupHandler(t, &calls), cfg)
	require.NoError(t, stage.Run(ctx))

	list, err := st.Roundups.List(ctx, models.RoundupDaily, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	ru := list[0]
	require.Len(t, ru.SeedArticles, 1)
	assert.Equal(t, "First", ru.SeedArticles[0].Title)
	assert.Equal(t, 2, ru.OmittedCount)
}
