package domain

import "time"

type Strategy string

const (
	StrategyTextExtraction Strategy = "text_extraction"
	StrategyMultimodal     Strategy = "multimodal"
)

type SummaryStatus string

const (
	SummaryProcessing SummaryStatus = "processing"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryFailed     SummaryStatus = "failed"
)

type TagCategory string

const (
	TagTopic        TagCategory = "topic"
	TagDocumentType TagCategory = "document_type"
	TagEntity       TagCategory = "entity"
	TagMethodology  TagCategory = "methodology"
	TagDomain       TagCategory = "domain"
)

type Tag struct {
	Label      string      `json:"label"`
	Category   TagCategory `json:"category"`
	Confidence float64     `json:"confidence"`
}

type Summary struct {
	ID               string        `json:"id"`
	DocumentID       string        `json:"document_id"`
	Strategy         Strategy      `json:"strategy"`
	ModelID          string        `json:"model_id"`
	ModelName        string        `json:"model_name"`
	ShortSummary     *string       `json:"summary_short"`
	DetailedSummary  *string       `json:"summary_detailed"`
	DocumentType     *string       `json:"document_type"`
	Tags             []Tag         `json:"tags"`
	ProcessingTimeMs *int64        `json:"processing_time_ms"`
	InputTokens      *int          `json:"input_tokens"`
	OutputTokens     *int          `json:"output_tokens"`
	TotalTokens      *int          `json:"total_tokens"`
	EstimatedCostUSD *float64      `json:"estimated_cost_usd"`
	Status           SummaryStatus `json:"status"`
	ErrorMessage     *string       `json:"error_message"`
	CreatedAt        time.Time     `json:"created_at"`
}

type Score struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

type Evaluation struct {
	ID               string    `json:"id"`
	SummaryID        string    `json:"summary_id"`
	Completeness     Score     `json:"completeness"`
	Confidence       Score     `json:"confidence"`
	Specificity      Score     `json:"specificity"`
	Overall          Score     `json:"overall"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

type FeedbackRating string

const (
	RatingThumbsUp   FeedbackRating = "thumbs_up"
	RatingThumbsDown FeedbackRating = "thumbs_down"
)

// MaxFeedbackCommentLength is counted in characters, not bytes.
const MaxFeedbackCommentLength = 500

type Feedback struct {
	ID        string         `json:"id"`
	SummaryID string         `json:"summary_id"`
	Rating    FeedbackRating `json:"rating"`
	Comment   *string        `json:"comment"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
