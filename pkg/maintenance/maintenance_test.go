package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/test/util"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, _ := util.SetupTestDatabase(t)
	return New(st, slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

func seedClaim(t *testing.T, st *store.Store) *models.Claim {
	t.Helper()
	ctx := context.Background()
	a := &models.Article{
		Link:       "https://example.org/bridges",
		Title:      "Ministry pledges bridge repairs",
		Date:       dates.NewDate(2026, 3, 1),
		RawContent: "The ministry will repair 500 bridges.",
	}
	require.NoError(t, st.Articles.Insert(ctx, a))
	c := &models.Claim{
		ArticleID:     a.ID,
		ArticleLink:   a.Link,
		ArticleDate:   a.Date,
		Claim:         "Ministry will repair 500 bridges",
		VerbatimClaim: "The ministry will repair 500 bridges.",
		Type:          models.ClaimTypePromise,
	}
	require.NoError(t, st.Claims.Insert(ctx, c))
	return c
}

func seedFollowUp(t *testing.T, st *store.Store, c *models.Claim, date dates.Date, createdDaysAgo int, processed bool) *models.FollowUp {
	t.Helper()
	f := &models.FollowUp{
		ClaimID:      c.ID,
		ClaimText:    c.Claim,
		FollowUpDate: date,
		CreatedAt:    dates.Now().AddDate(0, 0, -createdDaysAgo),
	}
	if processed {
		at := dates.Now()
		f.ProcessedAt = &at
	}
	require.NoError(t, st.FollowUps.Insert(context.Background(), f))
	return f
}

func TestDedupeKeepsEarliestProcessedRow(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	c := seedClaim(t, st)
	date := dates.NewDate(2026, 4, 1)

	oldest := seedFollowUp(t, st, c, date, 5, false)
	keeper := seedFollowUp(t, st, c, date, 3, true)
	seedFollowUp(t, st, c, date, 1, true)

	res, err := svc.DedupeFollowUps(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, int64(2), res.Deleted)
	assert.False(t, res.DryRun)

	// The earliest processed row survives even though an unprocessed row is
	// older still.
	got, err := st.FollowUps.GetByID(ctx, keeper.ID)
	require.NoError(t, err)
	assert.Equal(t, keeper.ID, got.ID)
	_, err = st.FollowUps.GetByID(ctx, oldest.ID)
	assert.Error(t, err)
}

func TestDedupeKeepsEarliestUnprocessedWhenNoneProcessed(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	c := seedClaim(t, st)
	date := dates.NewDate(2026, 4, 1)

	keeper := seedFollowUp(t, st, c, date, 4, false)
	seedFollowUp(t, st, c, date, 2, false)

	res, err := svc.DedupeFollowUps(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)

	remaining, err := st.FollowUps.ListByClaim(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keeper.ID, remaining[0].ID)
}

func TestDedupeDryRunDeletesNothing(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	c := seedClaim(t, st)
	date := dates.NewDate(2026, 4, 1)
	seedFollowUp(t, st, c, date, 2, false)
	seedFollowUp(t, st, c, date, 1, false)

	res, err := svc.DedupeFollowUps(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Groups)
	assert.Zero(t, res.Deleted)
	assert.True(t, res.DryRun)

	remaining, err := st.FollowUps.ListByClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestDedupeWithoutDuplicatesIsANoop(t *testing.T) {
	svc, st := newTestService(t)
	c := seedClaim(t, st)
	seedFollowUp(t, st, c, dates.NewDate(2026, 4, 1), 1, false)
	seedFollowUp(t, st, c, dates.NewDate(2026, 5, 1), 1, false)

	res, err := svc.DedupeFollowUps(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, res.Groups)
	assert.Zero(t, res.Deleted)
}

func TestUsageReportRendersTotals(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	day := dates.Today()

	require.NoError(t, st.LMLogs.Insert(ctx, &models.LMLog{
		APIType: "responses", CallID: "r-1", CalledFrom: "lifecycle",
		ModelName: "gpt-5-mini", SystemTokens: 10, UserTokens: 20, ResponseTokens: 30,
	}))
	require.NoError(t, st.LMLogs.Insert(ctx, &models.LMLog{
		APIType: "chat", CallID: "c-1", CalledFrom: "extract",
		ModelName: "gpt-5-nano", SystemTokens: 1, UserTokens: 2, ResponseTokens: 3,
	}))
	// A call from another day stays out of the report.
	require.NoError(t, st.LMLogs.Insert(ctx, &models.LMLog{
		APIType: "chat", CallID: "c-2", CalledFrom: "extract",
		ModelName: "gpt-5-nano", ResponseTokens: 99,
		CreatedAt: dates.Now().Add(-48 * time.Hour),
	}))

	report, err := svc.UsageReport(ctx, day)
	require.NoError(t, err)
	assert.Contains(t, report, day.String())
	assert.Contains(t, report, "gpt-5-mini")
	assert.Contains(t, report, "lifecycle")
	assert.Contains(t, report, "gpt-5-nano")
	assert.NotContains(t, report, "99")
	assert.Contains(t, report, "total")
}

func TestPruneLMLogsRemovesOnlyOldRows(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.LMLogs.Insert(ctx, &models.LMLog{
		APIType: "responses", CallID: "r-old", CalledFrom: "lifecycle",
		ModelName: "gpt-5-mini", ResponseTokens: 5,
		CreatedAt: dates.Now().AddDate(0, 0, -120),
	}))
	require.NoError(t, st.LMLogs.Insert(ctx, &models.LMLog{
		APIType: "responses", CallID: "r-new", CalledFrom: "lifecycle",
		ModelName: "gpt-5-mini", ResponseTokens: 7,
	}))

	deleted, err := svc.PruneLMLogs(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, err := st.LMLogs.UsageForDate(ctx, dates.Today())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].ResponseTokens)
}

func TestPruneLMLogsRejectsNonPositiveWindow(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.PruneLMLogs(context.Background(), 0)
	assert.Error(t, err)
}

func TestUsageReportEmptyDay(t *testing.T) {
	svc, _ := newTestService(t)
	report, err := svc.UsageReport(context.Background(), dates.NewDate(2020, 1, 1))
	require.NoError(t, err)
	assert.Contains(t, report, "No model calls recorded")
}
