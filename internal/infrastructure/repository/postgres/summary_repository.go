package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const summaryColumns = `id, document_id, strategy, model_id, model_name, summary_short, summary_detailed,
	document_type, tags, processing_time_ms, input_tokens, output_tokens, total_tokens, estimated_cost_usd,
	status, error_message, created_at`

type SummaryRepository struct {
	db *sql.DB
}

func NewSummaryRepository(db *sql.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

func (r *SummaryRepository) Create(ctx context.Context, summary *domain.Summary) error {
	tags, err := marshalTags(summary.Tags)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO summaries (`+summaryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		summary.ID, summary.DocumentID, string(summary.Strategy), summary.ModelID, summary.ModelName,
		summary.ShortSummary, summary.DetailedSummary, summary.DocumentType, tags, summary.ProcessingTimeMs,
		summary.InputTokens, summary.OutputTokens, summary.TotalTokens, summary.EstimatedCostUSD,
		string(summary.Status), summary.ErrorMessage, summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func (r *SummaryRepository) GetByID(ctx context.Context, id string) (*domain.Summary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = $1`, id)
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSummaryNotFound, "get summary", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &summary, nil
}

func (r *SummaryRepository) MarkCompleted(ctx context.Context, id string, out domain.SummaryOutput) error {
	tags, err := marshalTags(out.Tags)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE summaries
SET status = 'completed',
	summary_short = $2,
	summary_detailed = $3,
	document_type = $4,
	tags = $5,
	processing_time_ms = $6,
	input_tokens = $7,
	output_tokens = $8,
	total_tokens = $9,
	estimated_cost_usd = $10,
	error_message = NULL
WHERE id = $1
`,
		id, out.ShortSummary, out.DetailedSummary, out.DocumentType, tags, out.ProcessingTime.Milliseconds(),
		out.TokenUsage.InputTokens, out.TokenUsage.OutputTokens, out.TokenUsage.TotalTokens,
		out.TokenUsage.EstimatedCostUSD,
	)
	if err != nil {
		return fmt.Errorf("complete summary: %w", err)
	}
	return requireSummaryAffected(res, "complete summary", id)
}

func (r *SummaryRepository) MarkFailed(ctx context.Context, id string, errMessage string) error {
	if strings.TrimSpace(errMessage) == "" {
		errMessage = "unknown error"
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE summaries SET status = 'failed', error_message = $2 WHERE id = $1
`, id, errMessage)
	if err != nil {
		return fmt.Errorf("fail summary: %w", err)
	}
	return requireSummaryAffected(res, "fail summary", id)
}

func (r *SummaryRepository) ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]domain.Summary, error) {
	if len(documentIDs) == 0 {
		return []domain.Summary{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+summaryColumns+`
FROM summaries
WHERE document_id = ANY($1)
ORDER BY created_at ASC
`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Summary, 0)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

func requireSummaryAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSummaryNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

func marshalTags(tags []domain.Tag) ([]byte, error) {
	if tags == nil {
		tags = []domain.Tag{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return raw, nil
}

func scanSummary(row rowScanner) (domain.Summary, error) {
	var (
		s                domain.Summary
		strategy         string
		shortSummary     sql.NullString
		detailedSummary  sql.NullString
		documentType     sql.NullString
		tagsRaw          []byte
		processingTimeMs sql.NullInt64
		inputTokens      sql.NullInt64
		outputTokens     sql.NullInt64
		totalTokens      sql.NullInt64
		cost             sql.NullFloat64
		status           string
		errorMessage     sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.DocumentID, &strategy, &s.ModelID, &s.ModelName, &shortSummary, &detailedSummary,
		&documentType, &tagsRaw, &processingTimeMs, &inputTokens, &outputTokens, &totalTokens, &cost,
		&status, &errorMessage, &s.CreatedAt,
	); err != nil {
		return domain.Summary{}, err
	}

	s.Strategy = domain.Strategy(strategy)
	s.Status = domain.SummaryStatus(status)
	s.ShortSummary = nullString(shortSummary)
	s.DetailedSummary = nullString(detailedSummary)
	s.DocumentType = nullString(documentType)
	s.ProcessingTimeMs = nullInt64(processingTimeMs)
	s.InputTokens = nullInt(inputTokens)
	s.OutputTokens = nullInt(outputTokens)
	s.TotalTokens = nullInt(totalTokens)
	s.EstimatedCostUSD = nullFloat(cost)
	s.ErrorMessage = nullString(errorMessage)

	s.Tags = []domain.Tag{}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &s.Tags); err != nil {
			return domain.Summary{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return s, nil
}
