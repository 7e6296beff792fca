package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	// ClaimForProcessing moves uploading -> processing and reports whether this caller won.
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	SaveExtraction(ctx context.Context, id string, extraction domain.TextExtraction) error
	SetPageCount(ctx context.Context, id string, pageCount int) error
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// SummaryRepository persists one summary per (document, strategy) attempt.
type SummaryRepository interface {
	Create(ctx context.Context, summary *domain.Summary) error
	GetByID(ctx context.Context, id string) (*domain.Summary, error)
	MarkCompleted(ctx context.Context, id string, out domain.SummaryOutput) error
	MarkFailed(ctx context.Context, id string, errMessage string) error
	ListByDocumentIDs(ctx context.Context, documentIDs []string) ([]domain.Summary, error)
}

type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *domain.Evaluation) error
	ListBySummaryIDs(ctx context.Context, summaryIDs []string) ([]domain.Evaluation, error)
}

type FeedbackRepository interface {
	// Upsert inserts or replaces the feedback keyed by summary id.
	Upsert(ctx context.Context, feedback *domain.Feedback) error
	ListBySummaryIDs(ctx context.Context, summaryIDs []string) ([]domain.Feedback, error)
}

// ObjectStorage stores source documents. Open returns domain.ErrObjectNotFound for missing keys.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes document processing tasks.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
	PublishDeadLetter(ctx context.Context, documentID string, reason string) error
}

// TextExtractor never fails: every failure is classified in the result.
type TextExtractor interface {
	Extract(ctx context.Context, filePath string) domain.TextExtraction
}

// ImageRenderer rasterizes up to maxPages pages; failures are reported in the result.
type ImageRenderer interface {
	Render(ctx context.Context, filePath string, maxPages int) domain.ImageRendering
}

// ModelProvider is one summarization backend (text-only or vision capable).
type ModelProvider interface {
	Model() domain.ModelInfo
	GenerateSummary(ctx context.Context, input domain.SummaryInput) (domain.SummaryOutput, error)
	EvaluateSummary(ctx context.Context, input domain.EvaluationInput) (domain.EvaluationOutput, error)
}

type CostCalculator interface {
	Cost(modelID string, inputTokens, outputTokens int) (float64, error)
	Usage(modelID string, inputTokens, outputTokens int) (domain.TokenUsage, error)
}

// TagIndexer projects completed summaries into a tag graph.
type TagIndexer interface {
	IndexSummary(ctx context.Context, doc domain.Document, summary domain.Summary) error
	RelatedDocuments(ctx context.Context, documentID string, limit int) ([]domain.RelatedDocument, error)
}

// ProcessingObserver receives pipeline measurements (metrics).
type ProcessingObserver interface {
	ObserveStrategy(strategy domain.Strategy, status domain.SummaryStatus, elapsed time.Duration)
	ObserveUsage(modelID, operation string, usage domain.TokenUsage)
}
