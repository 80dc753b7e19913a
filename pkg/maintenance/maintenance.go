// Package maintenance holds the operational passes that keep the data tidy:
// follow-up deduplication, call-log retention and the daily usage report.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
	"github.com/newsdocket/docket/pkg/store"
)

// Service runs maintenance passes against the store.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// New wires the maintenance service.
func New(st *store.Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger.With("component", "maintenance")}
}

// DedupeResult summarizes one deduplication pass.
type DedupeResult struct {
	Groups  int
	Deleted int64
	DryRun  bool
}

// DedupeFollowUps enforces at most one follow-up per (claim, date) pair.
// Within a group the earliest-created processed row is kept when one exists,
// otherwise the earliest-created unprocessed row; ties break on id. With
// dryRun set nothing is deleted, only the plan is logged.
func (s *Service) DedupeFollowUps(ctx context.Context, dryRun bool) (DedupeResult, error) {
	groups, err := s.store.FollowUps.DuplicateGroups(ctx)
	if err != nil {
		return DedupeResult{}, fmt.Errorf("find duplicate follow-ups: %w", err)
	}

	result := DedupeResult{Groups: len(groups), DryRun: dryRun}
	var doomed []uuid.UUID
	for _, g := range groups {
		keep := chooseKeeper(g.Rows)
		var drop []uuid.UUID
		for _, f := range g.Rows {
			if f.ID != keep.ID {
				drop = append(drop, f.ID)
			}
		}
		s.logger.Info("duplicate follow-up group",
			"claim_id", g.ClaimID, "date", g.Date, "keep", keep.ID, "delete", drop, "dry_run", dryRun)
		doomed = append(doomed, drop...)
	}
	if dryRun || len(doomed) == 0 {
		return result, nil
	}

	deleted, err := s.store.FollowUps.DeleteByIDs(ctx, doomed)
	if err != nil {
		return result, fmt.Errorf("delete duplicate follow-ups: %w", err)
	}
	result.Deleted = deleted
	s.logger.Info("deduplicated follow-ups", "groups", result.Groups, "deleted", deleted)
	return result, nil
}

// chooseKeeper picks the row to survive from a duplicate group. Rows arrive
// ordered by created_at then id, so the first processed row (or the first
// row outright) is the earliest.
func chooseKeeper(rows []*models.FollowUp) *models.FollowUp {
	for _, f := range rows {
		if f.ProcessedAt != nil {
			return f
		}
	}
	return rows[0]
}

// PruneLMLogs deletes standalone call-accounting rows older than the
// retention window. The logs embedded in article and claim documents are
// untouched, so per-document provenance survives the sweep.
func (s *Service) PruneLMLogs(ctx context.Context, keep time.Duration) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %s", keep)
	}
	cutoff := dates.Now().Add(-keep)
	deleted, err := s.store.LMLogs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune lm logs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("pruned model call logs", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// UsageReport renders the day's aggregated model usage as an aligned text
// table, one line per (model, caller) pair plus a totals row.
func (s *Service) UsageReport(ctx context.Context, day dates.Date) (string, error) {
	rows, err := s.store.LMLogs.UsageForDate(ctx, day)
	if err != nil {
		return "", fmt.Errorf("load usage for %s: %w", day, err)
	}
	if len(rows) == 0 {
		return fmt.Sprintf("No model calls recorded on %s\n", day), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Model usage for %s\n\n", day)
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCALLED FROM\tCALLS\tSYSTEM\tUSER\tRESPONSE")
	var calls int
	var system, user, response int64
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ModelName, r.CalledFrom, r.Calls, r.SystemTokens, r.UserTokens, r.ResponseTokens)
		calls += r.Calls
		system += r.SystemTokens
		user += r.UserTokens
		response += r.ResponseTokens
	}
	fmt.Fprintf(w, "total\t\t%d\t%d\t%d\t%d\n", calls, system, user, response)
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("render usage table: %w", err)
	}
	return b.String(), nil
}
