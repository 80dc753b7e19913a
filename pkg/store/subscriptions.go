package store

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// LocaleSubscriptionRepository reads locale_subscriptions. The website writes
// these rows; the pipeline only reports on them.
type LocaleSubscriptionRepository struct {
	db *stdsql.DB
}

// List returns active subscriptions for a locale, or all locales when
// locale is empty, oldest first.
func (r *LocaleSubscriptionRepository) List(ctx context.Context, locale string) ([]*models.LocaleSubscription, error) {
	query := `SELECT id, email, locale, active, created_at FROM locale_subscriptions WHERE active`
	args := []any{}
	if locale != "" {
		query += ` AND locale = $1`
		args = append(args, locale)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.LocaleSubscription
	for rows.Next() {
		var (
			s         models.LocaleSubscription
			createdAt stdsql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Email, &s.Locale, &s.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if createdAt.Valid {
			s.CreatedAt = dates.InPipelineZone(createdAt.Time)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Count counts active subscriptions, optionally for one locale.
func (r *LocaleSubscriptionRepository) Count(ctx context.Context, locale string) (int, error) {
	query := `SELECT count(*) FROM locale_subscriptions WHERE active`
	args := []any{}
	if locale != "" {
		query += ` AND locale = $1`
		args = append(args, locale)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}
