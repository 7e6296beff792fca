package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Upsert writes feedback keyed by summary id. On conflict the stored id and
// created_at win and are copied back into feedback.
func (r *FeedbackRepository) Upsert(ctx context.Context, feedback *domain.Feedback) error {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO feedback (id, summary_id, rating, comment, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (summary_id) DO UPDATE
SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at
`,
		feedback.ID, feedback.SummaryID, string(feedback.Rating), feedback.Comment,
		feedback.CreatedAt, feedback.UpdatedAt,
	)
	if err := row.Scan(&feedback.ID, &feedback.CreatedAt, &feedback.UpdatedAt); err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) ListBySummaryIDs(ctx context.Context, summaryIDs []string) ([]domain.Feedback, error) {
	if len(summaryIDs) == 0 {
		return []domain.Feedback{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, summary_id, rating, comment, created_at, updated_at
FROM feedback
WHERE summary_id = ANY($1)
`, summaryIDs)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Feedback, 0)
	for rows.Next() {
		var (
			f       domain.Feedback
			rating  string
			comment sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.SummaryID, &rating, &comment, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.Rating = domain.FeedbackRating(rating)
		f.Comment = nullString(comment)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}
