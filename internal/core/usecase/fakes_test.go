package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

// Write methods of the repository fakes fail on a done ctx the way
// database/sql does.
type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	createErr   error
	getErr      error
	claimErr    error
	saveErr     error
	statusErr   error
	claimed     map[string]bool
	statusCalls []statusCall
	extraction  *domain.TextExtraction
	pageCount   int
}

func newDocRepoFake(docs ...domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}, claimed: map[string]bool{}}
	for _, d := range docs {
		doc := d
		f.docs[doc.ID] = &doc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0, len(f.docs))
	for _, d := range f.docs {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.Source != "" && d.Source != filter.Source {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *docRepoFake) ClaimForProcessing(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	doc, ok := f.docs[id]
	if !ok || doc.Status != domain.StatusUploading {
		return false, nil
	}
	doc.Status = domain.StatusProcessing
	f.claimed[id] = true
	return true, nil
}

func (f *docRepoFake) SaveExtraction(ctx context.Context, id string, extraction domain.TextExtraction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	copyExtraction := extraction
	f.extraction = &copyExtraction
	if doc, ok := f.docs[id]; ok {
		doc.ExtractionSuccess = extraction.Success
		doc.ExtractedText = domain.StringPtr(extraction.Text)
		doc.PageCount = domain.IntPtr(extraction.PageCount)
		doc.ErrorMessage = domain.StringPtr(extraction.Error)
		if extraction.ErrorType != "" {
			t := extraction.ErrorType
			doc.ErrorType = &t
		}
	}
	return nil
}

func (f *docRepoFake) SetPageCount(ctx context.Context, id string, pageCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCount = pageCount
	if doc, ok := f.docs[id]; ok {
		doc.PageCount = domain.IntPtr(pageCount)
	}
	return nil
}

func (f *docRepoFake) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if f.statusErr != nil {
		return f.statusErr
	}
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		if errMessage != "" {
			doc.ErrorMessage = &errMessage
		}
	}
	return nil
}

func (f *docRepoFake) finalStatus() domain.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusCalls) == 0 {
		return ""
	}
	return f.statusCalls[len(f.statusCalls)-1].status
}

type summaryRepoFake struct {
	mu        sync.Mutex
	order     []string
	summaries map[string]*domain.Summary
	createErr error
	markErr   error
}

func newSummaryRepoFake(items ...domain.Summary) *summaryRepoFake {
	f := &summaryRepoFake{summaries: map[string]*domain.Summary{}}
	for _, s := range items {
		item := s
		f.summaries[item.ID] = &item
		f.order = append(f.order, item.ID)
	}
	return f
}

func (f *summaryRepoFake) Create(ctx context.Context, s *domain.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copySummary := *s
	f.summaries[s.ID] = &copySummary
	f.order = append(f.order, s.ID)
	return nil
}

func (f *summaryRepoFake) GetByID(_ context.Context, id string) (*domain.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSummaryNotFound, "get summary", fmt.Errorf("id=%s", id))
	}
	copySummary := *s
	return &copySummary, nil
}

func (f *summaryRepoFake) MarkCompleted(ctx context.Context, id string, out domain.SummaryOutput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	s, ok := f.summaries[id]
	if !ok {
		return domain.ErrSummaryNotFound
	}
	applySummaryOutput(s, out)
	return nil
}

func (f *summaryRepoFake) MarkFailed(ctx context.Context, id string, errMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	s, ok := f.summaries[id]
	if !ok {
		return domain.ErrSummaryNotFound
	}
	s.Status = domain.SummaryFailed
	s.ErrorMessage = &errMessage
	return nil
}

func (f *summaryRepoFake) ListByDocumentIDs(_ context.Context, ids []string) ([]domain.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	out := []domain.Summary{}
	for _, id := range f.order {
		s := f.summaries[id]
		if wanted[s.DocumentID] {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *summaryRepoFake) all() []domain.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Summary, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.summaries[id])
	}
	return out
}

type evaluationRepoFake struct {
	mu          sync.Mutex
	evaluations []domain.Evaluation
	err         error
}

func (f *evaluationRepoFake) Create(ctx context.Context, e *domain.Evaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.evaluations = append(f.evaluations, *e)
	return nil
}

func (f *evaluationRepoFake) ListBySummaryIDs(_ context.Context, ids []string) ([]domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	out := []domain.Evaluation{}
	for _, e := range f.evaluations {
		if wanted[e.SummaryID] {
			out = append(out, e)
		}
	}
	return out, nil
}

type feedbackRepoFake struct {
	items map[string]domain.Feedback
	err   error
}

func (f *feedbackRepoFake) Upsert(_ context.Context, fb *domain.Feedback) error {
	if f.err != nil {
		return f.err
	}
	if f.items == nil {
		f.items = map[string]domain.Feedback{}
	}
	if existing, ok := f.items[fb.SummaryID]; ok {
		fb.ID = existing.ID
		fb.CreatedAt = existing.CreatedAt
	}
	f.items[fb.SummaryID] = *fb
	return nil
}

func (f *feedbackRepoFake) ListBySummaryIDs(_ context.Context, ids []string) ([]domain.Feedback, error) {
	out := []domain.Feedback{}
	for _, id := range ids {
		if fb, ok := f.items[id]; ok {
			out = append(out, fb)
		}
	}
	return out, nil
}

type extractorFake struct {
	result domain.TextExtraction
	calls  int
}

func (f *extractorFake) Extract(context.Context, string) domain.TextExtraction {
	f.calls++
	return f.result
}

type rendererFake struct {
	result   domain.ImageRendering
	calls    int
	maxPages int
}

func (f *rendererFake) Render(_ context.Context, _ string, maxPages int) domain.ImageRendering {
	f.calls++
	f.maxPages = maxPages
	return f.result
}

type providerFake struct {
	mu         sync.Mutex
	model      domain.ModelInfo
	summary    domain.SummaryOutput
	summaryErr error
	eval       domain.EvaluationOutput
	evalErr    error
	delay      time.Duration
	inputs     []domain.SummaryInput
	evalInputs []domain.EvaluationInput
}

func (f *providerFake) Model() domain.ModelInfo { return f.model }

func (f *providerFake) GenerateSummary(ctx context.Context, in domain.SummaryInput) (domain.SummaryOutput, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.SummaryOutput{}, ctx.Err()
		}
	}
	if f.summaryErr != nil {
		return domain.SummaryOutput{}, f.summaryErr
	}
	return f.summary, nil
}

func (f *providerFake) EvaluateSummary(_ context.Context, in domain.EvaluationInput) (domain.EvaluationOutput, error) {
	f.mu.Lock()
	f.evalInputs = append(f.evalInputs, in)
	f.mu.Unlock()
	if f.evalErr != nil {
		return domain.EvaluationOutput{}, f.evalErr
	}
	return f.eval, nil
}

type storageFake struct {
	saved     map[string]string
	removed   []string
	saveErr   error
	removeErr error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(raw)), nil
}

func (f *storageFake) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	delete(f.saved, key)
	return f.removeErr
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentUploaded(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeDocumentUploaded(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func (f *queueFake) PublishDeadLetter(context.Context, string, string) error { return nil }

type tagIndexerFake struct {
	mu      sync.Mutex
	indexed []string
	err     error
	related []domain.RelatedDocument
}

func (f *tagIndexerFake) IndexSummary(_ context.Context, _ domain.Document, s domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, s.ID)
	return f.err
}

func (f *tagIndexerFake) RelatedDocuments(context.Context, string, int) ([]domain.RelatedDocument, error) {
	return f.related, f.err
}

type observerFake struct {
	mu       sync.Mutex
	outcomes []domain.SummaryStatus
	usage    []string
}

func (f *observerFake) ObserveStrategy(_ domain.Strategy, status domain.SummaryStatus, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, status)
}

func (f *observerFake) ObserveUsage(modelID, operation string, _ domain.TokenUsage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, modelID+":"+operation)
}

func sampleSummaryOutput() domain.SummaryOutput {
	return domain.SummaryOutput{
		ShortSummary:    "Quarterly revenue report for ACME.",
		DetailedSummary: "Revenue grew 12% on strong hardware sales.",
		DocumentType:    "report",
		Tags:            []domain.Tag{{Label: "finance", Category: domain.TagDomain, Confidence: 0.9}},
		TokenUsage:      domain.TokenUsage{InputTokens: 1000, OutputTokens: 200, TotalTokens: 1200, EstimatedCostUSD: 0.00072},
		ProcessingTime:  1500 * time.Millisecond,
	}
}

func sampleEvaluationOutput(overall int) domain.EvaluationOutput {
	return domain.EvaluationOutput{
		Completeness: domain.Score{Score: 8, Rationale: "covers main points"},
		Confidence:   domain.Score{Score: 9, Rationale: "accurate"},
		Specificity:  domain.Score{Score: 7, Rationale: "specific"},
		Overall:      domain.Score{Score: overall, Rationale: "good"},
		TokenUsage:   domain.TokenUsage{InputTokens: 500, OutputTokens: 100, TotalTokens: 600, EstimatedCostUSD: 0.00036},
	}
}

func textProviderFake() *providerFake {
	return &providerFake{
		model:   domain.ModelInfo{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini"},
		summary: sampleSummaryOutput(),
		eval:    sampleEvaluationOutput(8),
	}
}

func visionProviderFake() *providerFake {
	return &providerFake{
		model:   domain.ModelInfo{ID: "gpt-4o", Name: "GPT-4o", SupportsVision: true},
		summary: sampleSummaryOutput(),
		eval:    sampleEvaluationOutput(7),
	}
}
