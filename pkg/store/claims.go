package store

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// ClaimRepository provides typed access to the claims table.
type ClaimRepository struct {
	db *stdsql.DB
}

const claimColumns = `id, article_id, article_link, article_date, claim, verbatim_claim, type,
	completion_condition, completion_condition_date, event_date, follow_up_worthy,
	priority, mechanism, date_past, created_at, lm_log`

// Insert stores a new claim. A missing id is filled in.
func (r *ClaimRepository) Insert(ctx context.Context, c *models.Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = dates.Now()
	}
	lmLog, err := marshalNormalized(c.LMLog)
	if err != nil {
		return fmt.Errorf("encode lm_log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO claims (id, article_id, article_link, article_date, claim, verbatim_claim,
			type, completion_condition, completion_condition_date, event_date,
			follow_up_worthy, priority, mechanism, date_past, created_at, lm_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.ArticleID, c.ArticleLink, nullDatePtr(c.ArticleDate), c.Claim, c.VerbatimClaim,
		c.Type, c.CompletionCondition, nullDate(c.CompletionConditionDate), nullDate(c.EventDate),
		c.FollowUpWorthy, c.Priority, c.Mechanism, c.DatePast,
		dates.InPipelineZone(c.CreatedAt), lmLog,
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// GetByID fetches one claim by id.
func (r *ClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	return scanClaim(row)
}

// ListByArticle returns all claims extracted from one article.
func (r *ClaimRepository) ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*models.Claim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE article_id = $1 ORDER BY created_at ASC, id ASC`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list claims by article: %w", err)
	}
	return scanClaims(rows)
}

// CountByArticle counts claims referencing one article.
func (r *ClaimRepository) CountByArticle(ctx context.Context, articleID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM claims WHERE article_id = $1`, articleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count claims by article: %w", err)
	}
	return n, nil
}

// EligiblePromises returns promises that have not reached a terminal state.
func (r *ClaimRepository) EligiblePromises(ctx context.Context) ([]*models.Claim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE type = 'promise' AND (date_past IS NULL OR date_past = FALSE)
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query eligible promises: %w", err)
	}
	return scanClaims(rows)
}

// EligibleGoals returns follow-up-worthy goals.
func (r *ClaimRepository) EligibleGoals(ctx context.Context) ([]*models.Claim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE type = 'goal' AND follow_up_worthy = TRUE
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query eligible goals: %w", err)
	}
	return scanClaims(rows)
}

// EligibleStatements returns follow-up-worthy statements that have never been
// fact-checked. Once a statement has any Update it never re-enters proactive
// checking; only explicitly scheduled follow-ups revisit it.
func (r *ClaimRepository) EligibleStatements(ctx context.Context) ([]*models.Claim, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM claims c
		WHERE c.type = 'statement' AND c.follow_up_worthy = TRUE
		  AND NOT EXISTS (SELECT 1 FROM updates u WHERE u.claim_id = c.id)
		ORDER BY c.created_at ASC, c.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query eligible statements: %w", err)
	}
	return scanClaims(rows)
}

// SetDatePast marks a claim terminal (or clears the marker).
func (r *ClaimRepository) SetDatePast(ctx context.Context, id uuid.UUID, past bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE claims SET date_past = $2 WHERE id = $1`, id, past)
	if err != nil {
		return fmt.Errorf("update date_past for claim %s: %w", id, err)
	}
	return nil
}

// DemotePromisesWithoutDeadline converts promises with no completion deadline
// into goals and returns the number changed. Runs at the start of every
// verification pass.
func (r *ClaimRepository) DemotePromisesWithoutDeadline(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claims SET type = 'goal'
		WHERE type = 'promise' AND completion_condition_date IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("demote deadline-less promises: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("demote deadline-less promises: %w", err)
	}
	return n, nil
}

// Search does a case-insensitive substring match over the claim text fields,
// newest first, with an optional article date range.
func (r *ClaimRepository) Search(ctx context.Context, query string, limit int, start, end *dates.Date) ([]*models.Claim, error) {
	pattern := "%" + query + "%"
	sql := `
		SELECT ` + claimColumns + ` FROM claims
		WHERE (claim ILIKE $1 OR verbatim_claim ILIKE $1 OR completion_condition ILIKE $1)`
	args := []any{pattern}
	if start != nil {
		args = append(args, start.Time())
		sql += fmt.Sprintf(" AND article_date >= $%d", len(args))
	}
	if end != nil {
		args = append(args, end.Time())
		sql += fmt.Sprintf(" AND article_date <= $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search claims: %w", err)
	}
	return scanClaims(rows)
}

func scanClaims(rows *stdsql.Rows) ([]*models.Claim, error) {
	defer rows.Close()
	var out []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		c           models.Claim
		articleDate stdsql.NullTime
		completion  stdsql.NullTime
		eventDate   stdsql.NullTime
		datePast    stdsql.NullBool
		createdAt   stdsql.NullTime
		lmLog       []byte
	)
	err := row.Scan(&c.ID, &c.ArticleID, &c.ArticleLink, &articleDate, &c.Claim, &c.VerbatimClaim,
		&c.Type, &c.CompletionCondition, &completion, &eventDate, &c.FollowUpWorthy,
		&c.Priority, &c.Mechanism, &datePast, &createdAt, &lmLog)
	if err != nil {
		if err == stdsql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}

	if articleDate.Valid {
		c.ArticleDate = dates.DateOf(articleDate.Time)
	}
	c.CompletionConditionDate = scanDatePtr(completion)
	c.EventDate = scanDatePtr(eventDate)
	if datePast.Valid {
		v := datePast.Bool
		c.DatePast = &v
	}
	if createdAt.Valid {
		c.CreatedAt = dates.InPipelineZone(createdAt.Time)
	}
	if len(lmLog) > 0 && string(lmLog) != "null" {
		var l models.LMLog
		if err := scanJSON(lmLog, &l); err != nil {
			return nil, fmt.Errorf("decode claim lm_log: %w", err)
		}
		c.LMLog = &l
	}
	return &c, nil
}
