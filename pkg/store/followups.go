package store

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// FollowUpRepository provides typed access to the follow_ups table.
type FollowUpRepository struct {
	db *stdsql.DB
}

const followUpColumns = `id, claim_id, claim_text, article_id, article_link, follow_up_date,
	model_output, created_at, processed_at, processed_update_id, lm_log`

// Insert stores a follow-up without checking for an existing row on the
// same (claim, date). Use InsertUnique when duplicates must be avoided.
func (r *FollowUpRepository) Insert(ctx context.Context, f *models.FollowUp) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = dates.Now()
	}
	modelOutput, err := rawNormalized(f.ModelOutput)
	if err != nil {
		return fmt.Errorf("encode model_output: %w", err)
	}
	lmLog, err := marshalNormalized(f.LMLog)
	if err != nil {
		return fmt.Errorf("encode lm_log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO follow_ups (id, claim_id, claim_text, article_id, article_link, follow_up_date,
			model_output, created_at, processed_at, processed_update_id, lm_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.ClaimID, f.ClaimText, nullableArticleID(f.ArticleID), f.ArticleLink,
		f.FollowUpDate, modelOutput, dates.InPipelineZone(f.CreatedAt),
		nullTime(f.ProcessedAt), nullUUID(f.ProcessedUpdateID), lmLog,
	)
	if err != nil {
		return fmt.Errorf("insert follow-up: %w", err)
	}
	return nil
}

// InsertUnique inserts the follow-up unless one already exists for the same
// claim and date. Returns true when a row was written. Deduplication lives
// here rather than in a constraint so concurrent writers degrade to
// duplicates the dedupe command repairs later.
func (r *FollowUpRepository) InsertUnique(ctx context.Context, f *models.FollowUp) (bool, error) {
	exists, err := r.Exists(ctx, f.ClaimID, f.FollowUpDate)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := r.Insert(ctx, f); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether a follow-up row exists for claim and date.
func (r *FollowUpRepository) Exists(ctx context.Context, claimID uuid.UUID, date dates.Date) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM follow_ups WHERE claim_id = $1 AND follow_up_date = $2)`,
		claimID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check follow-up exists: %w", err)
	}
	return exists, nil
}

// HasOnOrAfter reports whether the claim already has any follow-up scheduled
// on or after the given date, processed or not.
func (r *FollowUpRepository) HasOnOrAfter(ctx context.Context, claimID uuid.UUID, date dates.Date) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM follow_ups WHERE claim_id = $1 AND follow_up_date >= $2)`,
		claimID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check follow-up on or after: %w", err)
	}
	return exists, nil
}

// DueOn returns unprocessed follow-ups scheduled exactly on the date.
// Rows scheduled for other days, past or future, stay out of the due set.
func (r *FollowUpRepository) DueOn(ctx context.Context, date dates.Date) ([]*models.FollowUp, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+followUpColumns+` FROM follow_ups
		WHERE processed_at IS NULL AND follow_up_date = $1
		ORDER BY created_at ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("list due follow-ups: %w", err)
	}
	return scanFollowUps(rows)
}

// ListByClaim returns a claim's follow-ups ordered by scheduled date.
func (r *FollowUpRepository) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*models.FollowUp, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+followUpColumns+` FROM follow_ups
		WHERE claim_id = $1
		ORDER BY follow_up_date ASC, created_at ASC`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups by claim: %w", err)
	}
	return scanFollowUps(rows)
}

// GetByID fetches one follow-up by id.
func (r *FollowUpRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FollowUp, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+followUpColumns+` FROM follow_ups WHERE id = $1`, id)
	return scanFollowUp(row)
}

// MarkProcessed stamps the follow-up as handled, recording which update its
// processing produced.
func (r *FollowUpRepository) MarkProcessed(ctx context.Context, id, updateID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE follow_ups SET processed_at = now(), processed_update_id = $2 WHERE id = $1`,
		id, updateID)
	if err != nil {
		return fmt.Errorf("mark follow-up processed: %w", err)
	}
	return nil
}

// DuplicateGroup is one (claim, date) pair holding more than one follow-up.
type DuplicateGroup struct {
	ClaimID uuid.UUID
	Date    dates.Date
	Rows    []*models.FollowUp
}

// DuplicateGroups returns every (claim_id, follow_up_date) pair with more
// than one row, each group's rows included, for the dedupe pass.
func (r *FollowUpRepository) DuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+followUpColumns+` FROM follow_ups
		WHERE (claim_id, follow_up_date) IN (
			SELECT claim_id, follow_up_date FROM follow_ups
			GROUP BY claim_id, follow_up_date
			HAVING count(*) > 1
		)
		ORDER BY claim_id, follow_up_date, created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list duplicate follow-ups: %w", err)
	}
	fus, err := scanFollowUps(rows)
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	for _, f := range fus {
		n := len(groups)
		if n == 0 || groups[n-1].ClaimID != f.ClaimID || !groups[n-1].Date.Equal(f.FollowUpDate) {
			groups = append(groups, DuplicateGroup{ClaimID: f.ClaimID, Date: f.FollowUpDate})
			n++
		}
		groups[n-1].Rows = append(groups[n-1].Rows, f)
	}
	return groups, nil
}

// DeleteByIDs removes the given follow-ups and returns how many went away.
func (r *FollowUpRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return 0, fmt.Errorf("encode follow-up ids: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM follow_ups
		WHERE id = ANY (SELECT (jsonb_array_elements_text($1::jsonb))::uuid)`, encoded)
	if err != nil {
		return 0, fmt.Errorf("delete follow-ups: %w", err)
	}
	return res.RowsAffected()
}

func scanFollowUps(rows *stdsql.Rows) ([]*models.FollowUp, error) {
	defer rows.Close()
	var out []*models.FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFollowUp(row rowScanner) (*models.FollowUp, error) {
	var (
		f           models.FollowUp
		articleID   stdsql.NullString
		modelOutput []byte
		createdAt   stdsql.NullTime
		processedAt stdsql.NullTime
		processedID stdsql.NullString
		lmLog       []byte
	)
	err := row.Scan(&f.ID, &f.ClaimID, &f.ClaimText, &articleID, &f.ArticleLink, &f.FollowUpDate,
		&modelOutput, &createdAt, &processedAt, &processedID, &lmLog)
	if err != nil {
		if err == stdsql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan follow-up: %w", err)
	}
	if id := scanUUIDPtr(articleID); id != nil {
		f.ArticleID = *id
	}
	f.ModelOutput = json.RawMessage(modelOutput)
	if createdAt.Valid {
		f.CreatedAt = dates.InPipelineZone(createdAt.Time)
	}
	f.ProcessedAt = scanTimePtr(processedAt)
	f.ProcessedUpdateID = scanUUIDPtr(processedID)
	if len(lmLog) > 0 && string(lmLog) != "null" {
		var l models.LMLog
		if err := scanJSON(lmLog, &l); err != nil {
			return nil, fmt.Errorf("decode follow-up lm_log: %w", err)
		}
		f.LMLog = &l
	}
	return &f, nil
}
