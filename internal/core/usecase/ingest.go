package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	PDFMimeType           = "application/pdf"
	DefaultMaxUploadBytes = 20 << 20
)

type IngestDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	maxBytes int64
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	maxBytes int64,
) *IngestDocumentUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &IngestDocumentUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		maxBytes: maxBytes,
	}
}

// Upload stores the PDF, records it as uploading, claims it for processing
// and enqueues exactly one processing task. It does not wait for processing.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.Document, error) {
	source, ok := domain.ParseDocumentSource(string(req.Source))
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("unknown source %q", req.Source))
	}
	payload, err := uc.validate(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("documents/%s/%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:             id,
		Filename:       req.Filename,
		FilePath:       storageKey,
		FileSize:       int64(len(payload)),
		MimeType:       PDFMimeType,
		Status:         domain.StatusUploading,
		ProjectContext: domain.StringPtr(strings.TrimSpace(req.ProjectContext)),
		Source:         source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		if rmErr := uc.storage.Remove(ctx, storageKey); rmErr != nil {
			slog.Warn("upload_cleanup_failed", "document_id", id, "key", storageKey, "error", rmErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	claimed, err := uc.repo.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("claim document for processing: %w", err)
	}
	if !claimed {
		return nil, domain.WrapError(domain.ErrTemporary, "claim document for processing", errors.New("document already claimed"))
	}
	doc.Status = domain.StatusProcessing

	if err := uc.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		message := "Failed to enqueue processing: " + err.Error()
		if failErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, message); failErr != nil {
			return nil, fmt.Errorf("publish processing task: %w; mark failed status: %v", err, failErr)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "publish processing task", err)
	}

	slog.Info("document_uploaded",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"file_size", doc.FileSize,
		"source", doc.Source,
	)
	return doc, nil
}

func (uc *IngestDocumentUseCase) validate(req domain.UploadRequest) ([]byte, error) {
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("no file provided"))
	}
	if req.MimeType != PDFMimeType {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("only PDF files are accepted"))
	}
	if req.Size > uc.maxBytes {
		return nil, uc.tooLarge()
	}

	payload, err := io.ReadAll(io.LimitReader(req.Body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(payload)) > uc.maxBytes {
		return nil, uc.tooLarge()
	}
	if len(payload) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("no file provided"))
	}
	return payload, nil
}

func (uc *IngestDocumentUseCase) tooLarge() error {
	return domain.WrapError(
		domain.ErrInvalidInput,
		"upload",
		fmt.Errorf("file must be %dMB or smaller", uc.maxBytes>>20),
	)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.pdf"
	}
	return base
}
