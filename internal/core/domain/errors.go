package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSummaryNotFound  = errors.New("summary not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrFeatureDisabled  = errors.New("feature disabled")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// SchemaValidationError reports a model response that does not match the
// declared JSON schema. Fields holds the offending instance locations.
type SchemaValidationError struct {
	Schema string
	Fields []string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s response failed schema validation: %v", e.Schema, e.Err)
	}
	return fmt.Sprintf("%s response failed schema validation at %s", e.Schema, strings.Join(e.Fields, ", "))
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// UnknownModelError means a model identifier has no registered pricing.
type UnknownModelError struct {
	ModelID string
}

func (e *UnknownModelError) Error() string {
	return "unknown model: " + e.ModelID
}

type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %dms", e.Operation, e.After.Milliseconds())
}

// RateLimitError is the provider's "too many requests" signal.
type RateLimitError struct {
	Operation string
	Body      string
}

func (e *RateLimitError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s: rate limited", e.Operation)
	}
	return fmt.Sprintf("%s: rate limited: %s", e.Operation, strings.TrimSpace(e.Body))
}

func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
