package domain

import (
	"io"
	"time"
)

type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether no further pipeline stage will touch the document.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type DocumentSource string

const (
	SourceThread        DocumentSource = "thread"
	SourceKnowledgeBase DocumentSource = "knowledge_base"
)

func ParseDocumentSource(raw string) (DocumentSource, bool) {
	switch DocumentSource(raw) {
	case "":
		return SourceThread, true
	case SourceThread, SourceKnowledgeBase:
		return DocumentSource(raw), true
	default:
		return "", false
	}
}

type Document struct {
	ID                string               `json:"id"`
	Filename          string               `json:"filename"`
	FilePath          string               `json:"file_path"`
	FileSize          int64                `json:"file_size"`
	MimeType          string               `json:"mime_type"`
	PageCount         *int                 `json:"page_count"`
	ExtractedText     *string              `json:"extracted_text"`
	ExtractionSuccess bool                 `json:"extraction_success"`
	Status            DocumentStatus       `json:"status"`
	ErrorMessage      *string              `json:"error_message"`
	ErrorType         *ExtractionErrorType `json:"error_type"`
	ProjectContext    *string              `json:"project_context"`
	Source            DocumentSource       `json:"source"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

type DocumentFilter struct {
	Source DocumentSource
	Status DocumentStatus
	Limit  int
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns nil for zero.
func IntPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// UploadRequest is what the upload entry point accepts.
type UploadRequest struct {
	Filename       string
	MimeType       string
	Size           int64
	Body           io.Reader
	Source         DocumentSource
	ProjectContext string
}

type FeedbackRequest struct {
	SummaryID string
	Rating    FeedbackRating
	Comment   string
}
