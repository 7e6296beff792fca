package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const evaluationColumns = `id, summary_id, completeness_score, completeness_rationale, confidence_score,
	confidence_rationale, specificity_score, specificity_rationale, overall_score, overall_rationale,
	input_tokens, output_tokens, total_tokens, estimated_cost_usd, created_at`

type EvaluationRepository struct {
	db *sql.DB
}

func NewEvaluationRepository(db *sql.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) Create(ctx context.Context, e *domain.Evaluation) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO evaluations (`+evaluationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		e.ID, e.SummaryID,
		e.Completeness.Score, e.Completeness.Rationale,
		e.Confidence.Score, e.Confidence.Rationale,
		e.Specificity.Score, e.Specificity.Rationale,
		e.Overall.Score, e.Overall.Rationale,
		e.InputTokens, e.OutputTokens, e.TotalTokens, e.EstimatedCostUSD, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (r *EvaluationRepository) ListBySummaryIDs(ctx context.Context, summaryIDs []string) ([]domain.Evaluation, error) {
	if len(summaryIDs) == 0 {
		return []domain.Evaluation{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+evaluationColumns+`
FROM evaluations
WHERE summary_id = ANY($1)
`, summaryIDs)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Evaluation, 0)
	for rows.Next() {
		var e domain.Evaluation
		if err := rows.Scan(
			&e.ID, &e.SummaryID,
			&e.Completeness.Score, &e.Completeness.Rationale,
			&e.Confidence.Score, &e.Confidence.Rationale,
			&e.Specificity.Score, &e.Specificity.Rationale,
			&e.Overall.Score, &e.Overall.Rationale,
			&e.InputTokens, &e.OutputTokens, &e.TotalTokens, &e.EstimatedCostUSD, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}
