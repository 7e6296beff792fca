package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

type FeedbackUseCase struct {
	summaries ports.SummaryRepository
	feedback  ports.FeedbackRepository
}

func NewFeedbackUseCase(summaries ports.SummaryRepository, feedback ports.FeedbackRepository) *FeedbackUseCase {
	return &FeedbackUseCase{summaries: summaries, feedback: feedback}
}

// Submit records or replaces the single feedback entry of a summary.
func (uc *FeedbackUseCase) Submit(ctx context.Context, req domain.FeedbackRequest) (*domain.Feedback, error) {
	if req.Rating != domain.RatingThumbsUp && req.Rating != domain.RatingThumbsDown {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", errors.New("rating must be thumbs_up or thumbs_down"))
	}
	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > domain.MaxFeedbackCommentLength {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"submit feedback",
			fmt.Errorf("comment must be %d characters or fewer", domain.MaxFeedbackCommentLength),
		)
	}
	if strings.TrimSpace(req.SummaryID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", errors.New("summary id is required"))
	}

	if _, err := uc.summaries.GetByID(ctx, req.SummaryID); err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}

	now := time.Now().UTC()
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		SummaryID: req.SummaryID,
		Rating:    req.Rating,
		Comment:   domain.StringPtr(comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.feedback.Upsert(ctx, fb); err != nil {
		return nil, fmt.Errorf("upsert feedback: %w", err)
	}
	return fb, nil
}
