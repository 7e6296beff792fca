package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const longText = "ACME Corp quarterly report. Revenue grew twelve percent year over year driven by hardware."

type pipeline struct {
	docs      *docRepoFake
	summaries *summaryRepoFake
	evals     *evaluationRepoFake
	extractor *extractorFake
	renderer  *rendererFake
	text      *providerFake
	vision    *providerFake
	tags      *tagIndexerFake
	observer  *observerFake
	uc        *ProcessDocumentUseCase
}

func newPipeline(extraction domain.TextExtraction, rendering domain.ImageRendering, opts ProcessOptions, timeout time.Duration) *pipeline {
	p := &pipeline{
		docs: newDocRepoFake(domain.Document{
			ID:       "doc-1",
			Filename: "report.pdf",
			FilePath: "documents/doc-1/report.pdf",
			Status:   domain.StatusProcessing,
		}),
		summaries: newSummaryRepoFake(),
		evals:     &evaluationRepoFake{},
		extractor: &extractorFake{result: extraction},
		renderer:  &rendererFake{result: rendering},
		text:      textProviderFake(),
		vision:    visionProviderFake(),
		tags:      &tagIndexerFake{},
		observer:  &observerFake{},
	}
	runner := NewStrategyRunner(p.summaries, p.evals, p.tags, p.observer, timeout)
	p.uc = NewProcessDocumentUseCase(p.docs, p.extractor, p.renderer, p.text, p.vision, runner, opts)
	return p
}

func textOK() domain.TextExtraction {
	return domain.TextExtraction{Text: longText, PageCount: 3, Success: true}
}

func imagesOK() domain.ImageRendering {
	return domain.ImageRendering{Images: []string{"cGFnZTE=", "cGFnZTI=", "cGFnZTM="}, PageCount: 3, Success: true}
}

func (p *pipeline) summariesByStrategy() map[domain.Strategy]domain.Summary {
	out := map[domain.Strategy]domain.Summary{}
	for _, s := range p.summaries.all() {
		out[s.Strategy] = s
	}
	return out
}

func (p *pipeline) assertSummaryInvariants(t *testing.T) {
	t.Helper()
	completed := map[string]bool{}
	for _, s := range p.summaries.all() {
		if (s.Status == domain.SummaryFailed) != (s.ErrorMessage != nil) {
			t.Fatalf("summary %s: failed status and error message disagree: %+v", s.ID, s)
		}
		if s.Status == domain.SummaryCompleted {
			completed[s.ID] = true
		}
	}
	for _, e := range p.evals.evaluations {
		if !completed[e.SummaryID] {
			t.Fatalf("evaluation %s attached to a summary that is not completed", e.ID)
		}
	}
}

func TestProcessBothStrategiesSucceed(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if got := p.docs.finalStatus(); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	all := p.summaries.all()
	if len(all) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(all))
	}
	if all[0].Strategy != domain.StrategyTextExtraction || all[1].Strategy != domain.StrategyMultimodal {
		t.Fatalf("expected text strategy first, got %s then %s", all[0].Strategy, all[1].Strategy)
	}
	for _, s := range all {
		if s.Status != domain.SummaryCompleted {
			t.Fatalf("expected completed summary, got %+v", s)
		}
	}
	if len(p.evals.evaluations) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(p.evals.evaluations))
	}
	if p.renderer.maxPages != domain.DefaultMaxRenderPages {
		t.Fatalf("expected default render cap, got %d", p.renderer.maxPages)
	}
	if len(p.vision.evalInputs) != 1 || p.vision.evalInputs[0].OriginalContent != longText {
		t.Fatalf("multimodal evaluation should use extracted text, got %+v", p.vision.evalInputs)
	}
	if len(p.tags.indexed) != 2 {
		t.Fatalf("expected both summaries indexed, got %v", p.tags.indexed)
	}
	p.assertSummaryInvariants(t)
}

func TestProcessPasswordProtectedRunsOnlyMultimodal(t *testing.T) {
	extraction := domain.TextExtraction{
		Text:      "garbled",
		Error:     "PDF is password-protected and cannot be parsed",
		ErrorType: domain.ErrorTypePasswordProtected,
	}
	p := newPipeline(extraction, imagesOK(), ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if got := p.docs.finalStatus(); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	all := p.summaries.all()
	if len(all) != 1 || all[0].Strategy != domain.StrategyMultimodal {
		t.Fatalf("expected only multimodal summary, got %+v", all)
	}
	if len(p.text.inputs) != 0 {
		t.Fatalf("text provider should not be called")
	}
	if p.docs.extraction == nil || p.docs.extraction.ErrorType != domain.ErrorTypePasswordProtected {
		t.Fatalf("expected password_protected extraction to be persisted, got %+v", p.docs.extraction)
	}
	if p.docs.pageCount != 3 {
		t.Fatalf("expected page count backfilled from renderer, got %d", p.docs.pageCount)
	}
	p.assertSummaryInvariants(t)
}

func TestProcessCorruptedFailsImmediately(t *testing.T) {
	extraction := domain.TextExtraction{
		Error:     "Failed to parse PDF: malformed xref",
		ErrorType: domain.ErrorTypeCorrupted,
	}
	p := newPipeline(extraction, imagesOK(), ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if got := p.docs.finalStatus(); got != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if len(p.summaries.all()) != 0 {
		t.Fatalf("expected zero summaries for corrupted file")
	}
	if p.renderer.calls != 0 {
		t.Fatalf("renderer must not run for corrupted file")
	}
	if p.docs.extraction == nil || p.docs.extraction.ErrorType != domain.ErrorTypeCorrupted {
		t.Fatalf("expected corrupted extraction to be persisted")
	}
}

func TestProcessTextTimeoutStillCompletesWithMultimodal(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, 30*time.Millisecond)
	p.text.delay = time.Second

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	byStrategy := p.summariesByStrategy()
	text := byStrategy[domain.StrategyTextExtraction]
	if text.Status != domain.SummaryFailed || text.ErrorMessage == nil {
		t.Fatalf("expected failed text summary, got %+v", text)
	}
	if !strings.Contains(*text.ErrorMessage, "timed out") {
		t.Fatalf("expected timeout message, got %q", *text.ErrorMessage)
	}
	if byStrategy[domain.StrategyMultimodal].Status != domain.SummaryCompleted {
		t.Fatalf("expected multimodal completed")
	}
	if got := p.docs.finalStatus(); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if len(p.evals.evaluations) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(p.evals.evaluations))
	}
	p.assertSummaryInvariants(t)
}

func TestProcessEvaluationFailureKeepsSummaryCompleted(t *testing.T) {
	p := newPipeline(textOK(), domain.ImageRendering{Error: "Failed to render any pages from the PDF", PageCount: 3}, ProcessOptions{}, time.Second)
	p.text.evalErr = errors.New("upstream 500")

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	all := p.summaries.all()
	if len(all) != 1 || all[0].Status != domain.SummaryCompleted {
		t.Fatalf("expected one completed summary, got %+v", all)
	}
	if len(p.evals.evaluations) != 0 {
		t.Fatalf("expected no evaluation records")
	}
	if got := p.docs.finalStatus(); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestProcessFailsWhenNoTextAndNoImages(t *testing.T) {
	extraction := domain.TextExtraction{
		Error:     "No text could be extracted (likely a scanned PDF)",
		ErrorType: domain.ErrorTypeNoText,
	}
	rendering := domain.ImageRendering{Error: "Failed to render any pages from the PDF"}
	p := newPipeline(extraction, rendering, ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	last := p.docs.statusCalls[len(p.docs.statusCalls)-1]
	if last.status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", last.status)
	}
	if !strings.Contains(last.errMsg, "No text could be extracted") {
		t.Fatalf("expected extraction message, got %q", last.errMsg)
	}
	if len(p.summaries.all()) != 0 {
		t.Fatalf("expected zero summaries")
	}
}

func TestProcessScannedPDFUsesPageDescriptionForEvaluation(t *testing.T) {
	extraction := domain.TextExtraction{
		Error:     "No text could be extracted (likely a scanned PDF)",
		ErrorType: domain.ErrorTypeNoText,
	}
	p := newPipeline(extraction, imagesOK(), ProcessOptions{MaxRenderPages: 2}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if p.renderer.maxPages != 2 {
		t.Fatalf("expected configured render cap, got %d", p.renderer.maxPages)
	}
	if len(p.vision.evalInputs) != 1 || !strings.Contains(p.vision.evalInputs[0].OriginalContent, "report.pdf") {
		t.Fatalf("expected page description for evaluation, got %+v", p.vision.evalInputs)
	}
}

func TestProcessAllStrategiesFail(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)
	p.text.summaryErr = errors.New("bad request")
	p.vision.summaryErr = &domain.SchemaValidationError{Schema: "summary", Fields: []string{"/tags"}}

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	if got := p.docs.finalStatus(); got != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if len(p.evals.evaluations) != 0 {
		t.Fatalf("no evaluations expected when summaries fail")
	}
	p.assertSummaryInvariants(t)
}

func TestProcessParallelExecution(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{Execution: ExecutionParallel}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(p.summaries.all()) != 2 {
		t.Fatalf("expected 2 summaries")
	}
	if got := p.docs.finalStatus(); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	p.assertSummaryInvariants(t)
}

func TestProcessMissingDocumentIsSilent(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "missing"); err != nil {
		t.Fatalf("expected nil error for missing document, got %v", err)
	}
	if p.extractor.calls != 0 || len(p.docs.statusCalls) != 0 {
		t.Fatalf("no work expected for missing document")
	}
}

func TestProcessSkipsTerminalDocument(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)
	p.docs.docs["doc-1"].Status = domain.StatusCompleted

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if p.extractor.calls != 0 {
		t.Fatalf("terminal document must not be reprocessed")
	}
}

func TestProcessReturnsPersistenceErrors(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)
	p.docs.saveErr = errors.New("db down")

	err := p.uc.ProcessByID(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "save extraction") {
		t.Fatalf("expected save extraction error, got %v", err)
	}
	if got := p.docs.finalStatus(); got != domain.StatusFailed {
		t.Fatalf("expected document marked failed, got %q", got)
	}
}

func TestProcessDeadlineLeavesNothingProcessing(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)
	p.text.delay = 500 * time.Millisecond
	p.vision.delay = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := p.uc.ProcessByID(ctx, "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	all := p.summaries.all()
	if len(all) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(all))
	}
	for _, s := range all {
		if s.Status != domain.SummaryFailed || s.ErrorMessage == nil {
			t.Fatalf("expected failed summary with a message, got %+v", s)
		}
	}
	if got := p.docs.finalStatus(); got != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	p.assertSummaryInvariants(t)
}

func TestProcessCancelledContextMarksDocumentFailed(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.uc.ProcessByID(ctx, "doc-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	last := p.docs.statusCalls[len(p.docs.statusCalls)-1]
	if last.status != domain.StatusFailed || !strings.HasPrefix(last.errMsg, processingInterruptedMessage) {
		t.Fatalf("expected interrupted failure, got %+v", last)
	}
	if len(p.summaries.all()) != 0 {
		t.Fatalf("no summaries expected")
	}
}

func TestProcessShortNoTextStillRunsTextStrategy(t *testing.T) {
	extraction := domain.TextExtraction{
		Text:      "Invoice 42 total",
		PageCount: 1,
		Error:     "Extracted text is too short to be useful",
		ErrorType: domain.ErrorTypeNoText,
	}
	p := newPipeline(extraction, imagesOK(), ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	byStrategy := p.summariesByStrategy()
	if len(byStrategy) != 2 {
		t.Fatalf("expected both strategies, got %+v", byStrategy)
	}
	if len(p.text.inputs) != 1 || p.text.inputs[0].Text != "Invoice 42 total" {
		t.Fatalf("text strategy should summarize the short text, got %+v", p.text.inputs)
	}
	if len(p.vision.evalInputs) != 1 || p.vision.evalInputs[0].OriginalContent != "Invoice 42 total" {
		t.Fatalf("multimodal evaluation should use the short text, got %+v", p.vision.evalInputs)
	}
	if got := p.docs.finalStatus(); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestProcessStorageErrorFromBothExtractors(t *testing.T) {
	extraction := domain.TextExtraction{
		Error:     "Failed to download file from storage: object not found",
		ErrorType: domain.ErrorTypeStorage,
	}
	rendering := domain.ImageRendering{Error: "Failed to download file from storage: object not found"}
	p := newPipeline(extraction, rendering, ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	last := p.docs.statusCalls[len(p.docs.statusCalls)-1]
	if last.status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", last.status)
	}
	want := extraction.Error + "; " + rendering.Error
	if last.errMsg != want {
		t.Fatalf("error message = %q, want %q", last.errMsg, want)
	}
	if len(p.summaries.all()) != 0 || len(p.text.inputs) != 0 || len(p.vision.inputs) != 0 {
		t.Fatalf("no strategy should run without content")
	}
}

func TestStrategyRunnerObservesOutcomes(t *testing.T) {
	p := newPipeline(textOK(), imagesOK(), ProcessOptions{}, time.Second)

	if err := p.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(p.observer.outcomes) != 2 {
		t.Fatalf("expected 2 strategy observations, got %v", p.observer.outcomes)
	}
	want := []string{"gpt-4.1-mini:summary", "gpt-4.1-mini:evaluation", "gpt-4o:summary", "gpt-4o:evaluation"}
	if strings.Join(p.observer.usage, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected usage observations %v", p.observer.usage)
	}
}

func TestWithTimeoutFirstToSettleWins(t *testing.T) {
	got, err := withTimeout(context.Background(), "op", time.Second, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %d err=%v", got, err)
	}

	cancelled := make(chan struct{})
	_, err = withTimeout(context.Background(), "summary generation", 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})
	if !domain.IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if err.Error() != "summary generation timed out after 20ms" {
		t.Fatalf("unexpected timeout message %q", err.Error())
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("losing call was not cancelled")
	}
}
