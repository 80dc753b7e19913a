package store

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// UpdateRepository provides typed access to the updates table.
type UpdateRepository struct {
	db *stdsql.DB
}

const updateColumns = `id, claim_id, claim_text, article_id, article_link, article_date,
	verdict, model_output, created_at, lm_log`

// Insert stores a new verification outcome. A missing id is filled in.
func (r *UpdateRepository) Insert(ctx context.Context, u *models.Update) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = dates.Now()
	}
	modelOutput, err := rawNormalized(u.ModelOutput)
	if err != nil {
		return fmt.Errorf("encode model_output: %w", err)
	}
	lmLog, err := marshalNormalized(u.LMLog)
	if err != nil {
		return fmt.Errorf("encode lm_log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO updates (id, claim_id, claim_text, article_id, article_link, article_date,
			verdict, model_output, created_at, lm_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.ClaimID, u.ClaimText, nullableArticleID(u.ArticleID), u.ArticleLink,
		nullDate(u.ArticleDate), u.Verdict, modelOutput,
		dates.InPipelineZone(u.CreatedAt), lmLog,
	)
	if err != nil {
		return fmt.Errorf("insert update: %w", err)
	}
	return nil
}

// GetByID fetches one update by id.
func (r *UpdateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Update, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+updateColumns+` FROM updates WHERE id = $1`, id)
	return scanUpdate(row)
}

// ListByClaim returns a claim's updates newest first; the first row is the
// authoritative current verdict.
func (r *UpdateRepository) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*models.Update, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+updateColumns+` FROM updates
		WHERE claim_id = $1
		ORDER BY created_at DESC, id DESC`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list updates by claim: %w", err)
	}
	return scanUpdates(rows)
}

// LatestVerdict holds the newest verdict for one claim.
type LatestVerdict struct {
	Verdict   string    `json:"verdict"`
	CreatedAt time.Time `json:"created_at"`
}

// LatestVerdicts returns the newest verdict per claim for the given ids.
// Claims with no updates are absent from the result.
func (r *UpdateRepository) LatestVerdicts(ctx context.Context, claimIDs []uuid.UUID) (map[uuid.UUID]LatestVerdict, error) {
	if len(claimIDs) == 0 {
		return map[uuid.UUID]LatestVerdict{}, nil
	}
	ids, err := json.Marshal(claimIDs)
	if err != nil {
		return nil, fmt.Errorf("encode claim ids: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (claim_id) claim_id, verdict, created_at
		FROM updates
		WHERE claim_id = ANY (SELECT (jsonb_array_elements_text($1::jsonb))::uuid)
		ORDER BY claim_id, created_at DESC, id DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("query latest verdicts: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]LatestVerdict, len(claimIDs))
	for rows.Next() {
		var (
			claimID   uuid.UUID
			verdict   string
			createdAt time.Time
		)
		if err := rows.Scan(&claimID, &verdict, &createdAt); err != nil {
			return nil, fmt.Errorf("scan latest verdict: %w", err)
		}
		out[claimID] = LatestVerdict{Verdict: verdict, CreatedAt: dates.InPipelineZone(createdAt)}
	}
	return out, rows.Err()
}

// CountByClaim counts a claim's updates.
func (r *UpdateRepository) CountByClaim(ctx context.Context, claimID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM updates WHERE claim_id = $1`, claimID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count updates by claim: %w", err)
	}
	return n, nil
}

func scanUpdates(rows *stdsql.Rows) ([]*models.Update, error) {
	defer rows.Close()
	var out []*models.Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUpdate(row rowScanner) (*models.Update, error) {
	var (
		u           models.Update
		articleID   stdsql.NullString
		articleDate stdsql.NullTime
		modelOutput []byte
		createdAt   stdsql.NullTime
		lmLog       []byte
	)
	err := row.Scan(&u.ID, &u.ClaimID, &u.ClaimText, &articleID, &u.ArticleLink, &articleDate,
		&u.Verdict, &modelOutput, &createdAt, &lmLog)
	if err != nil {
		if err == stdsql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan update: %w", err)
	}
	if id := scanUUIDPtr(articleID); id != nil {
		u.ArticleID = *id
	}
	u.ArticleDate = scanDatePtr(articleDate)
	u.ModelOutput = json.RawMessage(modelOutput)
	if createdAt.Valid {
		u.CreatedAt = dates.InPipelineZone(createdAt.Time)
	}
	if len(lmLog) > 0 && string(lmLog) != "null" {
		var l models.LMLog
		if err := scanJSON(lmLog, &l); err != nil {
			return nil, fmt.Errorf("decode update lm_log: %w", err)
		}
		u.LMLog = &l
	}
	return &u, nil
}

func nullableArticleID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
