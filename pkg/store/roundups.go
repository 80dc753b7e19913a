package store

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// RoundupRepository provides typed access to the roundups table.
type RoundupRepository struct {
	db *stdsql.DB
}

const roundupColumns = `id, kind, slug, period_start, period_end, title, summary_markdown,
	sources, seed_articles, omitted_count, created_at, lm_log`

// Insert stores a generated roundup.
func (r *RoundupRepository) Insert(ctx context.Context, ru *models.Roundup) error {
	if ru.ID == uuid.Nil {
		ru.ID = uuid.New()
	}
	if ru.CreatedAt.IsZero() {
		ru.CreatedAt = dates.Now()
	}
	sources, err := marshalNormalized(orEmptySlice(ru.Sources))
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	seeds, err := marshalNormalized(orEmptySlice(ru.SeedArticles))
	if err != nil {
		return fmt.Errorf("encode seed_articles: %w", err)
	}
	lmLog, err := marshalNormalized(ru.LMLog)
	if err != nil {
		return fmt.Errorf("encode lm_log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO roundups (id, kind, slug, period_start, period_end, title, summary_markdown,
			sources, seed_articles, omitted_count, created_at, lm_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ru.ID, ru.Kind, ru.Slug, ru.PeriodStart, ru.PeriodEnd, ru.Title, ru.SummaryMarkdown,
		sources, seeds, ru.OmittedCount, dates.InPipelineZone(ru.CreatedAt), lmLog,
	)
	if err != nil {
		return fmt.Errorf("insert roundup: %w", err)
	}
	return nil
}

// Exists reports whether a roundup already covers the (kind, period) pair.
func (r *RoundupRepository) Exists(ctx context.Context, kind models.RoundupKind, start, end dates.Date) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roundups WHERE kind = $1 AND period_start = $2 AND period_end = $3
		)`, kind, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check roundup exists: %w", err)
	}
	return exists, nil
}

// SlugExists reports whether the slug is already taken.
func (r *RoundupRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roundups WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug exists: %w", err)
	}
	return exists, nil
}

// GetBySlug fetches one roundup by its slug.
func (r *RoundupRepository) GetBySlug(ctx context.Context, slug string) (*models.Roundup, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roundupColumns+` FROM roundups WHERE slug = $1`, slug)
	return scanRoundup(row)
}

// List returns roundups newest period first, optionally filtered by kind.
func (r *RoundupRepository) List(ctx context.Context, kind models.RoundupKind, limit int) ([]*models.Roundup, error) {
	query := `SELECT ` + roundupColumns + ` FROM roundups`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += fmt.Sprintf(` ORDER BY period_end DESC, period_start DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roundups: %w", err)
	}
	return scanRoundups(rows)
}

// NestedWithin returns completed lower-tier roundups whose periods fall
// entirely inside [start, end], ordered by period start, capped at limit.
// A weekly roundup seeds from dailies this way, monthlies from weeklies.
func (r *RoundupRepository) NestedWithin(ctx context.Context, kind models.RoundupKind, start, end dates.Date, limit int) ([]*models.Roundup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roundupColumns+` FROM roundups
		WHERE kind = $1 AND period_start >= $2 AND period_end <= $3
		ORDER BY period_start ASC
		LIMIT $4`, kind, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("list nested roundups: %w", err)
	}
	return scanRoundups(rows)
}

func scanRoundups(rows *stdsql.Rows) ([]*models.Roundup, error) {
	defer rows.Close()
	var out []*models.Roundup
	for rows.Next() {
		ru, err := scanRoundup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ru)
	}
	return out, rows.Err()
}

func scanRoundup(row rowScanner) (*models.Roundup, error) {
	var (
		ru        models.Roundup
		sources   []byte
		seeds     []byte
		createdAt stdsql.NullTime
		lmLog     []byte
	)
	err := row.Scan(&ru.ID, &ru.Kind, &ru.Slug, &ru.PeriodStart, &ru.PeriodEnd, &ru.Title,
		&ru.SummaryMarkdown, &sources, &seeds, &ru.OmittedCount, &createdAt, &lmLog)
	if err != nil {
		if err == stdsql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan roundup: %w", err)
	}
	if err := scanJSON(sources, &ru.Sources); err != nil {
		return nil, fmt.Errorf("decode roundup sources: %w", err)
	}
	if err := scanJSON(seeds, &ru.SeedArticles); err != nil {
		return nil, fmt.Errorf("decode roundup seed_articles: %w", err)
	}
	if createdAt.Valid {
		ru.CreatedAt = dates.InPipelineZone(createdAt.Time)
	}
	if len(lmLog) > 0 && string(lmLog) != "null" {
		var l models.LMLog
		if err := scanJSON(lmLog, &l); err != nil {
			return nil, fmt.Errorf("decode roundup lm_log: %w", err)
		}
		ru.LMLog = &l
	}
	return &ru, nil
}
