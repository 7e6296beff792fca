package domain

type ExtractionErrorType string

const (
	ErrorTypePasswordProtected ExtractionErrorType = "password_protected"
	ErrorTypeCorrupted         ExtractionErrorType = "corrupted"
	ErrorTypeNoText            ExtractionErrorType = "no_text"
	ErrorTypeStorage           ExtractionErrorType = "storage_error"
	ErrorTypeUnknown           ExtractionErrorType = "unknown"
)

// MinTextLength is the shortest extracted text considered usable.
const MinTextLength = 50

// DefaultMaxRenderPages caps how many pages are rasterized for the vision strategy.
const DefaultMaxRenderPages = 5

// TextExtraction is the outcome of pulling plain text out of a stored PDF.
// Success implies len(Text) >= MinTextLength.
type TextExtraction struct {
	Text      string
	PageCount int
	Success   bool
	Error     string
	ErrorType ExtractionErrorType
}

// ImageRendering holds base64 PNG pages in page order. PageCount is the
// total page count of the source, not the number of rendered pages.
type ImageRendering struct {
	Images    []string
	PageCount int
	Success   bool
	Error     string
}
