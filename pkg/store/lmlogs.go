package store

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// LMLogRepository provides typed access to the lm_logs table.
type LMLogRepository struct {
	db *stdsql.DB
}

// Insert records one provider call's token accounting.
func (r *LMLogRepository) Insert(ctx context.Context, l *models.LMLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = dates.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lm_logs (id, api_type, call_id, called_from, model_name,
			system_tokens, user_tokens, response_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.APIType, l.CallID, l.CalledFrom, l.ModelName,
		l.SystemTokens, l.UserTokens, l.ResponseTokens, dates.InPipelineZone(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert lm log: %w", err)
	}
	return nil
}

// UsageRow is aggregated token usage for one (model, caller) pair.
type UsageRow struct {
	ModelName      string `json:"model_name"`
	CalledFrom     string `json:"called_from"`
	Calls          int    `json:"calls"`
	SystemTokens   int64  `json:"system_tokens"`
	UserTokens     int64  `json:"user_tokens"`
	ResponseTokens int64  `json:"response_tokens"`
}

// UsageForDate aggregates lm_logs rows created on the given pipeline-zone
// date, grouped by model and caller, highest response volume first.
func (r *LMLogRepository) UsageForDate(ctx context.Context, day dates.Date) ([]UsageRow, error) {
	start := day.Time()
	end := start.AddDate(0, 0, 1)

	rows, err := r.db.QueryContext(ctx, `
		SELECT model_name, called_from, count(*),
			coalesce(sum(system_tokens), 0),
			coalesce(sum(user_tokens), 0),
			coalesce(sum(response_tokens), 0)
		FROM lm_logs
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY model_name, called_from
		ORDER BY sum(response_tokens) DESC, model_name, called_from`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query usage for date: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var u UsageRow
		if err := rows.Scan(&u.ModelName, &u.CalledFrom, &u.Calls,
			&u.SystemTokens, &u.UserTokens, &u.ResponseTokens); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteBefore removes lm_logs rows created strictly before the cutoff and
// returns the number of rows removed. Logs embedded in documents are not
// touched, only the standalone accounting table.
func (r *LMLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lm_logs WHERE created_at < $1`,
		dates.InPipelineZone(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete lm logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}
