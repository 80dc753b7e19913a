package store

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// ArticleRepository provides typed access to the articles table.
type ArticleRepository struct {
	db *stdsql.DB
}

const articleColumns = `id, link, title, date, ingested_at, tags, raw_content, entities,
	clean_markdown, summary_paragraph, key_takeaways, priority,
	follow_up_questions, follow_up_question_groups, follow_up_answers,
	follow_up_answers_lm_log, claim_processed, leases`

// Insert stores a new article. Missing id and ingested_at are filled in.
func (r *ArticleRepository) Insert(ctx context.Context, a *models.Article) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.IngestedAt.IsZero() {
		a.IngestedAt = dates.Now()
	}

	tags, err := marshalNormalized(orEmptySlice(a.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	entities, err := marshalNormalized(orEmptyMap(a.Entities))
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}
	takeaways, err := marshalNormalized(orEmptySlice(a.KeyTakeaways))
	if err != nil {
		return fmt.Errorf("encode key_takeaways: %w", err)
	}
	questions, err := marshalNormalized(orEmptySlice(a.FollowUpQuestions))
	if err != nil {
		return fmt.Errorf("encode follow_up_questions: %w", err)
	}
	groups, err := marshalNormalized(a.FollowUpQuestionGroups)
	if err != nil {
		return fmt.Errorf("encode follow_up_question_groups: %w", err)
	}
	leases, err := marshalNormalized(orEmptyLeaseMap(a.Leases))
	if err != nil {
		return fmt.Errorf("encode leases: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO articles (id, link, title, date, ingested_at, tags, raw_content, entities,
			clean_markdown, summary_paragraph, key_takeaways, priority,
			follow_up_questions, follow_up_question_groups, claim_processed, leases)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.Link, a.Title, nullDatePtr(a.Date), dates.InPipelineZone(a.IngestedAt),
		tags, a.RawContent, entities,
		a.CleanMarkdown, a.SummaryParagraph, takeaways, a.Priority,
		questions, groups, a.ClaimProcessed, leases,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// GetByID fetches one article by id.
func (r *ArticleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	return scanArticle(row)
}

// GetByLink fetches one article by its unique source URL.
func (r *ArticleRepository) GetByLink(ctx context.Context, link string) (*models.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE link = $1`, link)
	return scanArticle(row)
}

// EnrichmentCandidates returns articles still missing an enrichment field,
// oldest first.
func (r *ArticleRepository) EnrichmentCandidates(ctx context.Context, limit int) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE clean_markdown = '' OR summary_paragraph = '' OR key_takeaways = '[]'::jsonb
		ORDER BY ingested_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query enrichment candidates: %w", err)
	}
	return scanArticles(rows)
}

// ExtractionCandidates returns articles not yet claim-processed that have a
// usable body.
func (r *ArticleRepository) ExtractionCandidates(ctx context.Context, limit int) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE claim_processed IS NOT TRUE
		  AND (clean_markdown <> '' OR raw_content <> '')
		ORDER BY ingested_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query extraction candidates: %w", err)
	}
	return scanArticles(rows)
}

// AnswerCandidates returns articles with follow-up questions but no stored
// answers yet.
func (r *ArticleRepository) AnswerCandidates(ctx context.Context, limit int) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE follow_up_questions <> '[]'::jsonb
		  AND follow_up_answers IS NULL
		ORDER BY ingested_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query answer candidates: %w", err)
	}
	return scanArticles(rows)
}

// SetEnrichment persists the enrichment fields. The markdown argument wins
// over the model's clean_markdown, which is accepted but untrusted.
func (r *ArticleRepository) SetEnrichment(ctx context.Context, id uuid.UUID, markdown string, enr *models.ArticleEnrichment) error {
	takeaways, err := marshalNormalized(orEmptySlice(enr.KeyTakeaways))
	if err != nil {
		return fmt.Errorf("encode key_takeaways: %w", err)
	}
	questions, err := marshalNormalized(orEmptySlice(enr.FollowUpQuestions))
	if err != nil {
		return fmt.Errorf("encode follow_up_questions: %w", err)
	}
	groups, err := marshalNormalized(enr.FollowUpQuestionGroups)
	if err != nil {
		return fmt.Errorf("encode follow_up_question_groups: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE articles
		SET clean_markdown = $2, summary_paragraph = $3, key_takeaways = $4,
			priority = $5, follow_up_questions = $6, follow_up_question_groups = $7
		WHERE id = $1`,
		id, markdown, enr.SummaryParagraph, takeaways, enr.Priority, questions, groups)
	if err != nil {
		return fmt.Errorf("update enrichment for article %s: %w", id, err)
	}
	return nil
}

// SetClaimProcessed materializes the tri-state claim_processed flag.
func (r *ArticleRepository) SetClaimProcessed(ctx context.Context, id uuid.UUID, processed bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET claim_processed = $2 WHERE id = $1`, id, processed)
	if err != nil {
		return fmt.Errorf("update claim_processed for article %s: %w", id, err)
	}
	return nil
}

// SetFollowUpAnswers stores the answered follow-up questions and the call log
// that produced them.
func (r *ArticleRepository) SetFollowUpAnswers(ctx context.Context, id uuid.UUID, answers []models.FollowupAnswerRecord, lmLog *models.LMLog) error {
	encoded, err := marshalNormalized(orEmptySlice(answers))
	if err != nil {
		return fmt.Errorf("encode follow_up_answers: %w", err)
	}
	logEncoded, err := marshalNormalized(lmLog)
	if err != nil {
		return fmt.Errorf("encode follow_up answers lm_log: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE articles SET follow_up_answers = $2, follow_up_answers_lm_log = $3
		WHERE id = $1`, id, encoded, logEncoded)
	if err != nil {
		return fmt.Errorf("update follow_up_answers for article %s: %w", id, err)
	}
	return nil
}

// List returns articles newest first.
func (r *ArticleRepository) List(ctx context.Context, limit, offset int) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		ORDER BY date DESC NULLS LAST, ingested_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return scanArticles(rows)
}

// InPeriod returns all articles published inside [start, end].
func (r *ArticleRepository) InPeriod(ctx context.Context, start, end dates.Date) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, ingested_at ASC`, start.Time(), end.Time())
	if err != nil {
		return nil, fmt.Errorf("query articles in period: %w", err)
	}
	return scanArticles(rows)
}

// CountInPeriod counts articles published inside [start, end].
func (r *ArticleRepository) CountInPeriod(ctx context.Context, start, end dates.Date) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM articles WHERE date >= $1 AND date <= $2`,
		start.Time(), end.Time()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count articles in period: %w", err)
	}
	return n, nil
}

// Count returns the total number of articles.
func (r *ArticleRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// Search does a case-insensitive substring match over the indexed article
// text fields, newest first, with an optional publication date range.
func (r *ArticleRepository) Search(ctx context.Context, query string, limit int, start, end *dates.Date) ([]*models.Article, error) {
	pattern := "%" + query + "%"
	sql := `
		SELECT ` + articleColumns + ` FROM articles
		WHERE (title ILIKE $1 OR clean_markdown ILIKE $1 OR raw_content ILIKE $1
			OR summary_paragraph ILIKE $1 OR key_takeaways::text ILIKE $1)`
	args := []any{pattern}
	if start != nil {
		args = append(args, start.Time())
		sql += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if end != nil {
		args = append(args, end.Time())
		sql += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY date DESC NULLS LAST, id DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	return scanArticles(rows)
}

func scanArticles(rows *stdsql.Rows) ([]*models.Article, error) {
	defer rows.Close()
	var out []*models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		a              models.Article
		date           stdsql.NullTime
		ingestedAt     stdsql.NullTime
		tags           []byte
		entities       []byte
		takeaways      []byte
		priority       stdsql.NullInt64
		questions      []byte
		groups         []byte
		answers        []byte
		answersLog     []byte
		claimProcessed stdsql.NullBool
		leases         []byte
	)
	err := row.Scan(&a.ID, &a.Link, &a.Title, &date, &ingestedAt, &tags, &a.RawContent, &entities,
		&a.CleanMarkdown, &a.SummaryParagraph, &takeaways, &priority,
		&questions, &groups, &answers, &answersLog, &claimProcessed, &leases)
	if err != nil {
		if err == stdsql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}

	if date.Valid {
		a.Date = dates.DateOf(date.Time)
	}
	if ingestedAt.Valid {
		a.IngestedAt = dates.InPipelineZone(ingestedAt.Time)
	}
	if priority.Valid {
		p := int(priority.Int64)
		a.Priority = &p
	}
	if claimProcessed.Valid {
		v := claimProcessed.Bool
		a.ClaimProcessed = &v
	}
	if err := scanJSON(tags, &a.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := scanJSON(entities, &a.Entities); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	if err := scanJSON(takeaways, &a.KeyTakeaways); err != nil {
		return nil, fmt.Errorf("decode key_takeaways: %w", err)
	}
	if err := scanJSON(questions, &a.FollowUpQuestions); err != nil {
		return nil, fmt.Errorf("decode follow_up_questions: %w", err)
	}
	if len(groups) > 0 && string(groups) != "null" {
		var g models.QuestionGroups
		if err := scanJSON(groups, &g); err != nil {
			return nil, fmt.Errorf("decode follow_up_question_groups: %w", err)
		}
		a.FollowUpQuestionGroups = &g
	}
	if err := scanJSON(answers, &a.FollowUpAnswers); err != nil {
		return nil, fmt.Errorf("decode follow_up_answers: %w", err)
	}
	if len(answersLog) > 0 && string(answersLog) != "null" {
		var l models.LMLog
		if err := scanJSON(answersLog, &l); err != nil {
			return nil, fmt.Errorf("decode follow_up_answers_lm_log: %w", err)
		}
		a.FollowUpAnswersLMLog = &l
	}
	if err := scanJSON(leases, &a.Leases); err != nil {
		return nil, fmt.Errorf("decode leases: %w", err)
	}
	return &a, nil
}

func nullDatePtr(d dates.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.Time()
}

func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func orEmptyMap(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func orEmptyLeaseMap(m map[string]models.LeaseEntry) map[string]models.LeaseEntry {
	if m == nil {
		return map[string]models.LeaseEntry{}
	}
	return m
}
