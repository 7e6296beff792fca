package domain

import "time"

type ModelInfo struct {
	ID             string `json:"model_id"`
	Name           string `json:"model_name"`
	SupportsVision bool   `json:"supports_vision"`
}

type TokenUsage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// SummaryInput carries either Text (ContentText) or base64 PNG pages (ContentImage).
type SummaryInput struct {
	ContentType    ContentType
	Text           string
	Images         []string
	ProjectContext string
}

type SummaryOutput struct {
	ShortSummary    string        `json:"shortSummary"`
	DetailedSummary string        `json:"detailedSummary"`
	DocumentType    string        `json:"documentType"`
	Tags            []Tag         `json:"tags"`
	TokenUsage      TokenUsage    `json:"-"`
	ProcessingTime  time.Duration `json:"-"`
}

// CombinedText is the text handed to self-evaluation.
func (o SummaryOutput) CombinedText() string {
	return o.ShortSummary + "\n\n" + o.DetailedSummary
}

type EvaluationInput struct {
	OriginalContent string
	Summary         string
}

type EvaluationOutput struct {
	Completeness Score      `json:"completeness"`
	Confidence   Score      `json:"confidence"`
	Specificity  Score      `json:"specificity"`
	Overall      Score      `json:"overall"`
	TokenUsage   TokenUsage `json:"-"`
}
