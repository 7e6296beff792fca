package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// strategyJob is one eligible (content form, provider) pairing for a document.
type strategyJob struct {
	strategy        domain.Strategy
	provider        ports.ModelProvider
	input           domain.SummaryInput
	originalContent string
}

// StrategyRunner drives one strategy through processing -> completed|failed
// and attaches a self-evaluation when the summary succeeds.
type StrategyRunner struct {
	summaries   ports.SummaryRepository
	evaluations ports.EvaluationRepository
	tags        ports.TagIndexer
	observer    ports.ProcessingObserver
	timeout     time.Duration
	now         func() time.Time
}

func NewStrategyRunner(
	summaries ports.SummaryRepository,
	evaluations ports.EvaluationRepository,
	tags ports.TagIndexer,
	observer ports.ProcessingObserver,
	timeout time.Duration,
) *StrategyRunner {
	if timeout <= 0 {
		timeout = DefaultStrategyTimeout
	}
	return &StrategyRunner{
		summaries:   summaries,
		evaluations: evaluations,
		tags:        tags,
		observer:    observer,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run reports whether the strategy produced a usable summary. Evaluation
// failures do not change the result. A non-nil error means the summary
// record itself could not be written.
//
// Summary writes use a context that outlives ctx, so a summary always
// reaches completed or failed; a cancelled ctx fails the provider call.
func (r *StrategyRunner) Run(ctx context.Context, doc domain.Document, job strategyJob) (bool, error) {
	model := job.provider.Model()
	persistCtx := context.WithoutCancel(ctx)
	summary := &domain.Summary{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Strategy:   job.strategy,
		ModelID:    model.ID,
		ModelName:  model.Name,
		Tags:       []domain.Tag{},
		Status:     domain.SummaryProcessing,
		CreatedAt:  r.now(),
	}
	if err := r.summaries.Create(persistCtx, summary); err != nil {
		return false, fmt.Errorf("create %s summary: %w", job.strategy, err)
	}

	started := time.Now()
	out, err := withTimeout(ctx, "summary generation", r.timeout, func(callCtx context.Context) (domain.SummaryOutput, error) {
		return job.provider.GenerateSummary(callCtx, job.input)
	})
	if err != nil {
		slog.Error("strategy_failed",
			"document_id", doc.ID,
			"summary_id", summary.ID,
			"strategy", job.strategy,
			"model_id", model.ID,
			"error", err,
		)
		r.observeStrategy(job.strategy, domain.SummaryFailed, time.Since(started))
		if markErr := r.summaries.MarkFailed(persistCtx, summary.ID, err.Error()); markErr != nil {
			return false, fmt.Errorf("mark %s summary failed: %w", job.strategy, markErr)
		}
		return false, nil
	}

	if err := r.summaries.MarkCompleted(persistCtx, summary.ID, out); err != nil {
		return false, fmt.Errorf("mark %s summary completed: %w", job.strategy, err)
	}
	r.observeStrategy(job.strategy, domain.SummaryCompleted, time.Since(started))
	r.observeUsage(model.ID, "summary", out.TokenUsage)
	slog.Info("strategy_completed",
		"document_id", doc.ID,
		"summary_id", summary.ID,
		"strategy", job.strategy,
		"model_id", model.ID,
		"processing_time_ms", out.ProcessingTime.Milliseconds(),
		"total_tokens", out.TokenUsage.TotalTokens,
	)

	applySummaryOutput(summary, out)
	r.indexTags(ctx, doc, *summary)
	r.evaluate(ctx, summary.ID, job, model, out)
	return true, nil
}

func (r *StrategyRunner) evaluate(ctx context.Context, summaryID string, job strategyJob, model domain.ModelInfo, out domain.SummaryOutput) {
	input := domain.EvaluationInput{
		OriginalContent: job.originalContent,
		Summary:         out.CombinedText(),
	}
	eval, err := withTimeout(ctx, "summary evaluation", r.timeout, func(callCtx context.Context) (domain.EvaluationOutput, error) {
		return job.provider.EvaluateSummary(callCtx, input)
	})
	if err != nil {
		slog.Warn("evaluation_failed",
			"summary_id", summaryID,
			"strategy", job.strategy,
			"model_id", model.ID,
			"error", err,
		)
		return
	}

	record := &domain.Evaluation{
		ID:               uuid.NewString(),
		SummaryID:        summaryID,
		Completeness:     eval.Completeness,
		Confidence:       eval.Confidence,
		Specificity:      eval.Specificity,
		Overall:          eval.Overall,
		InputTokens:      eval.TokenUsage.InputTokens,
		OutputTokens:     eval.TokenUsage.OutputTokens,
		TotalTokens:      eval.TokenUsage.TotalTokens,
		EstimatedCostUSD: eval.TokenUsage.EstimatedCostUSD,
		CreatedAt:        r.now(),
	}
	if err := r.evaluations.Create(context.WithoutCancel(ctx), record); err != nil {
		slog.Warn("evaluation_persist_failed", "summary_id", summaryID, "error", err)
		return
	}
	r.observeUsage(model.ID, "evaluation", eval.TokenUsage)
}

func (r *StrategyRunner) indexTags(ctx context.Context, doc domain.Document, summary domain.Summary) {
	if r.tags == nil {
		return
	}
	if err := r.tags.IndexSummary(ctx, doc, summary); err != nil {
		slog.Warn("tag_index_failed", "document_id", doc.ID, "summary_id", summary.ID, "error", err)
	}
}

func (r *StrategyRunner) observeStrategy(strategy domain.Strategy, status domain.SummaryStatus, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveStrategy(strategy, status, elapsed)
	}
}

func (r *StrategyRunner) observeUsage(modelID, operation string, usage domain.TokenUsage) {
	if r.observer != nil {
		r.observer.ObserveUsage(modelID, operation, usage)
	}
}

func applySummaryOutput(summary *domain.Summary, out domain.SummaryOutput) {
	elapsed := out.ProcessingTime.Milliseconds()
	cost := out.TokenUsage.EstimatedCostUSD
	in, outTokens, total := out.TokenUsage.InputTokens, out.TokenUsage.OutputTokens, out.TokenUsage.TotalTokens

	summary.ShortSummary = &out.ShortSummary
	summary.DetailedSummary = &out.DetailedSummary
	summary.DocumentType = &out.DocumentType
	summary.Tags = out.Tags
	summary.ProcessingTimeMs = &elapsed
	summary.InputTokens = &in
	summary.OutputTokens = &outTokens
	summary.TotalTokens = &total
	summary.EstimatedCostUSD = &cost
	summary.Status = domain.SummaryCompleted
}
