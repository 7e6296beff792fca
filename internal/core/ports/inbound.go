package ports

import (
	"context"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// DocumentIngestor is the inbound contract for PDF upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the polling read model: documents joined with summaries,
// evaluations and feedback.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*domain.DocumentView, error)
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.DocumentView, error)
	StrategyStats(ctx context.Context) ([]domain.StrategyStats, error)
	RelatedDocuments(ctx context.Context, id string, limit int) ([]domain.RelatedDocument, error)
}

// FeedbackService records end-user ratings of summaries.
type FeedbackService interface {
	Submit(ctx context.Context, req domain.FeedbackRequest) (*domain.Feedback, error)
}
