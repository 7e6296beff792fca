package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

type StrategyExecution string

const (
	ExecutionSequential StrategyExecution = "sequential"
	ExecutionParallel   StrategyExecution = "parallel"
)

const (
	allStrategiesFailedMessage   = "All summarization strategies failed"
	processingInterruptedMessage = "Processing did not finish"
)

type ProcessOptions struct {
	MaxRenderPages int
	Execution      StrategyExecution
}

type ProcessDocumentUseCase struct {
	repo     ports.DocumentRepository
	text     ports.TextExtractor
	renderer ports.ImageRenderer
	textLLM  ports.ModelProvider
	vision   ports.ModelProvider
	runner   *StrategyRunner
	opts     ProcessOptions
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	text ports.TextExtractor,
	renderer ports.ImageRenderer,
	textLLM ports.ModelProvider,
	vision ports.ModelProvider,
	runner *StrategyRunner,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.MaxRenderPages <= 0 {
		opts.MaxRenderPages = domain.DefaultMaxRenderPages
	}
	if opts.Execution != ExecutionParallel {
		opts.Execution = ExecutionSequential
	}
	return &ProcessDocumentUseCase{
		repo:     repo,
		text:     text,
		renderer: renderer,
		textLLM:  textLLM,
		vision:   vision,
		runner:   runner,
		opts:     opts,
	}
}

// ProcessByID runs the whole pipeline for one document. Strategy and
// extraction failures end up on the records; the returned error is reserved
// for persistence failures and for ctx ending before the pipeline finished.
// In both cases the document is marked failed so it never stays processing.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			slog.Error("document_process_missing", "document_id", documentID, "error", err)
			return nil
		}
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status.Terminal() {
		slog.Warn("document_process_skipped", "document_id", documentID, "status", doc.Status)
		return nil
	}

	slog.Info("document_process_start", "document_id", doc.ID, "filename", doc.Filename)

	if err := uc.process(ctx, doc); err != nil {
		uc.abandon(ctx, doc.ID, err)
		return err
	}
	return nil
}

func (uc *ProcessDocumentUseCase) process(ctx context.Context, doc *domain.Document) error {
	extraction := uc.text.Extract(ctx, doc.FilePath)
	if err := uc.repo.SaveExtraction(ctx, doc.ID, extraction); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}

	if extraction.ErrorType == domain.ErrorTypeCorrupted {
		slog.Warn("document_corrupted", "document_id", doc.ID, "error", extraction.Error)
		return uc.markStatus(ctx, doc.ID, domain.StatusFailed, extraction.Error)
	}

	rendering := uc.renderer.Render(ctx, doc.FilePath, uc.opts.MaxRenderPages)

	hasText := strings.TrimSpace(extraction.Text) != ""
	hasImages := len(rendering.Images) > 0
	if !hasText && !hasImages {
		message := mostInformativeError(extraction, rendering)
		slog.Warn("document_no_content", "document_id", doc.ID, "error", message)
		return uc.markStatus(ctx, doc.ID, domain.StatusFailed, message)
	}

	if extraction.PageCount == 0 && rendering.PageCount > 0 {
		if err := uc.repo.SetPageCount(ctx, doc.ID, rendering.PageCount); err != nil {
			return fmt.Errorf("backfill page count: %w", err)
		}
	}

	jobs := uc.eligibleJobs(*doc, extraction, rendering, hasText, hasImages)
	succeeded, err := uc.runJobs(ctx, *doc, jobs)
	if err != nil {
		return err
	}

	if succeeded {
		slog.Info("document_process_completed", "document_id", doc.ID, "strategies", len(jobs))
		return uc.markStatus(ctx, doc.ID, domain.StatusCompleted, "")
	}
	slog.Warn("document_process_failed", "document_id", doc.ID, "strategies", len(jobs))
	return uc.markStatus(ctx, doc.ID, domain.StatusFailed, allStrategiesFailedMessage)
}

// eligibleJobs returns the text strategy before the multimodal one.
func (uc *ProcessDocumentUseCase) eligibleJobs(
	doc domain.Document,
	extraction domain.TextExtraction,
	rendering domain.ImageRendering,
	hasText, hasImages bool,
) []strategyJob {
	projectContext := ""
	if doc.ProjectContext != nil {
		projectContext = *doc.ProjectContext
	}

	jobs := make([]strategyJob, 0, 2)
	skipText := extraction.ErrorType == domain.ErrorTypePasswordProtected
	if hasText && !skipText {
		jobs = append(jobs, strategyJob{
			strategy: domain.StrategyTextExtraction,
			provider: uc.textLLM,
			input: domain.SummaryInput{
				ContentType:    domain.ContentText,
				Text:           extraction.Text,
				ProjectContext: projectContext,
			},
			originalContent: extraction.Text,
		})
	}
	if hasImages {
		original := extraction.Text
		if !hasText {
			original = describeRenderedPages(doc, rendering)
		}
		jobs = append(jobs, strategyJob{
			strategy: domain.StrategyMultimodal,
			provider: uc.vision,
			input: domain.SummaryInput{
				ContentType:    domain.ContentImage,
				Images:         rendering.Images,
				ProjectContext: projectContext,
			},
			originalContent: original,
		})
	}
	return jobs
}

func (uc *ProcessDocumentUseCase) runJobs(ctx context.Context, doc domain.Document, jobs []strategyJob) (bool, error) {
	if uc.opts.Execution == ExecutionParallel {
		return uc.runParallel(ctx, doc, jobs)
	}

	succeeded := false
	for _, job := range jobs {
		ok, err := uc.runner.Run(ctx, doc, job)
		if err != nil {
			return false, err
		}
		succeeded = succeeded || ok
	}
	return succeeded, nil
}

func (uc *ProcessDocumentUseCase) runParallel(ctx context.Context, doc domain.Document, jobs []strategyJob) (bool, error) {
	oks := make([]bool, len(jobs))

	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			ok, err := uc.runner.Run(ctx, doc, job)
			oks[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, ok := range oks {
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// abandon marks the document failed after the pipeline stopped early.
func (uc *ProcessDocumentUseCase) abandon(ctx context.Context, documentID string, cause error) {
	message := processingInterruptedMessage + ": " + cause.Error()
	if err := uc.markStatus(ctx, documentID, domain.StatusFailed, message); err != nil {
		slog.Error("document_mark_failed_error", "document_id", documentID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	if err := uc.repo.UpdateStatus(context.WithoutCancel(ctx), documentID, status, errMessage); err != nil {
		return fmt.Errorf("set status=%s: %w", status, err)
	}
	return nil
}

func mostInformativeError(extraction domain.TextExtraction, rendering domain.ImageRendering) string {
	switch {
	case extraction.Error != "" && rendering.Error != "":
		return extraction.Error + "; " + rendering.Error
	case extraction.Error != "":
		return extraction.Error
	case rendering.Error != "":
		return rendering.Error
	default:
		return "No content could be extracted from the document"
	}
}

// describeRenderedPages stands in for the original content when only page
// images are available, so evaluation stays text-only.
func describeRenderedPages(doc domain.Document, rendering domain.ImageRendering) string {
	return fmt.Sprintf(
		"PDF document %q with %d page(s); %d page image(s) were summarized. No extractable text is available.",
		doc.Filename, rendering.PageCount, len(rendering.Images),
	)
}
