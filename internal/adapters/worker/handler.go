// Package worker adapts queue deliveries to the document processor.
package worker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, documentID string, reason string) error
}

type Recorder interface {
	StartDocument()
	FinishDocument(duration time.Duration, err error)
	RecordDeadLetter()
}

// Handler runs at most one processing task per document id at a time in
// this process and dead-letters tasks whose processing returned an error.
type Handler struct {
	processor   ports.DocumentProcessor
	deadLetters DeadLetterPublisher
	metrics     Recorder
	timeout     time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewHandler(processor ports.DocumentProcessor, deadLetters DeadLetterPublisher, metrics Recorder, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor:   processor,
		deadLetters: deadLetters,
		metrics:     metrics,
		timeout:     timeout,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
	}
}

func (h *Handler) Handle(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		h.logger.Warn("document_task_empty")
		return nil
	}
	if !h.acquire(documentID) {
		h.logger.Warn("document_task_duplicate", "document_id", documentID)
		return nil
	}
	defer h.release(documentID)

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	if h.metrics != nil {
		h.metrics.StartDocument()
	}
	h.logger.Info("document_process_start", "document_id", documentID)
	err := h.processor.ProcessByID(processCtx, documentID)
	elapsed := time.Since(start)
	if h.metrics != nil {
		h.metrics.FinishDocument(elapsed, err)
	}
	if err == nil {
		h.logger.Info("document_process_done", "document_id", documentID, "duration_ms", elapsed.Milliseconds())
		return nil
	}

	h.logger.Error("document_process_error", "document_id", documentID, "error", err)
	if h.deadLetters != nil {
		if dlErr := h.deadLetters.PublishDeadLetter(context.WithoutCancel(ctx), documentID, err.Error()); dlErr != nil {
			h.logger.Error("dead_letter_publish_failed", "document_id", documentID, "error", dlErr)
		} else if h.metrics != nil {
			h.metrics.RecordDeadLetter()
		}
	}
	return err
}

func (h *Handler) acquire(documentID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[documentID]; busy {
		return false
	}
	h.inFlight[documentID] = struct{}{}
	return true
}

func (h *Handler) release(documentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, documentID)
}
