package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	defaultListLimit    = 50
	maxListLimit        = 200
	defaultRelatedLimit = 10
)

// DocumentQueryUseCase is the polling read model.
type DocumentQueryUseCase struct {
	docs        ports.DocumentRepository
	summaries   ports.SummaryRepository
	evaluations ports.EvaluationRepository
	feedback    ports.FeedbackRepository
	tags        ports.TagIndexer
}

func NewDocumentQueryUseCase(
	docs ports.DocumentRepository,
	summaries ports.SummaryRepository,
	evaluations ports.EvaluationRepository,
	feedback ports.FeedbackRepository,
	tags ports.TagIndexer,
) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{
		docs:        docs,
		summaries:   summaries,
		evaluations: evaluations,
		feedback:    feedback,
		tags:        tags,
	}
}

func (uc *DocumentQueryUseCase) GetDocument(ctx context.Context, id string) (*domain.DocumentView, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", fmt.Errorf("document id is required"))
	}
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	views, err := uc.assemble(ctx, []domain.Document{*doc})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListDocuments returns views newest first.
func (uc *DocumentQueryUseCase) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.DocumentView, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	docs, err := uc.docs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return uc.assemble(ctx, docs)
}

// StrategyStats aggregates completed summaries of completed documents per strategy.
func (uc *DocumentQueryUseCase) StrategyStats(ctx context.Context) ([]domain.StrategyStats, error) {
	docs, err := uc.docs.List(ctx, domain.DocumentFilter{Status: domain.StatusCompleted})
	if err != nil {
		return nil, fmt.Errorf("list completed documents: %w", err)
	}
	views, err := uc.assemble(ctx, docs)
	if err != nil {
		return nil, err
	}
	return AggregateStrategyStats(views), nil
}

func (uc *DocumentQueryUseCase) RelatedDocuments(ctx context.Context, id string, limit int) ([]domain.RelatedDocument, error) {
	if uc.tags == nil {
		return nil, domain.WrapError(domain.ErrFeatureDisabled, "related documents", fmt.Errorf("tag graph is not configured"))
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultRelatedLimit
	}
	if _, err := uc.docs.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	related, err := uc.tags.RelatedDocuments(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("query tag graph: %w", err)
	}
	return related, nil
}

func (uc *DocumentQueryUseCase) assemble(ctx context.Context, docs []domain.Document) ([]domain.DocumentView, error) {
	views := make([]domain.DocumentView, len(docs))
	if len(docs) == 0 {
		return views, nil
	}

	docIDs := make([]string, len(docs))
	for i, doc := range docs {
		docIDs[i] = doc.ID
	}
	summaries, err := uc.summaries.ListByDocumentIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	summaryIDs := make([]string, len(summaries))
	for i, s := range summaries {
		summaryIDs[i] = s.ID
	}
	evaluations, feedback, err := uc.enrichments(ctx, summaryIDs)
	if err != nil {
		return nil, err
	}

	byDocument := make(map[string][]domain.SummaryView, len(docs))
	for _, s := range summaries {
		view := domain.SummaryView{Summary: s}
		if e, ok := evaluations[s.ID]; ok {
			view.Evaluation = &e
		}
		if f, ok := feedback[s.ID]; ok {
			view.Feedback = &f
		}
		byDocument[s.DocumentID] = append(byDocument[s.DocumentID], view)
	}

	for i, doc := range docs {
		views[i] = domain.DocumentView{
			Document:  doc,
			Summaries: byDocument[doc.ID],
		}
		if views[i].Summaries == nil {
			views[i].Summaries = []domain.SummaryView{}
		}
		views[i].Comparison = CompareStrategies(views[i])
	}
	return views, nil
}

func (uc *DocumentQueryUseCase) enrichments(ctx context.Context, summaryIDs []string) (map[string]domain.Evaluation, map[string]domain.Feedback, error) {
	evaluations := make(map[string]domain.Evaluation)
	feedback := make(map[string]domain.Feedback)
	if len(summaryIDs) == 0 {
		return evaluations, feedback, nil
	}

	evals, err := uc.evaluations.ListBySummaryIDs(ctx, summaryIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("list evaluations: %w", err)
	}
	for _, e := range evals {
		evaluations[e.SummaryID] = e
	}

	fbs, err := uc.feedback.ListBySummaryIDs(ctx, summaryIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("list feedback: %w", err)
	}
	for _, f := range fbs {
		feedback[f.SummaryID] = f
	}
	return evaluations, feedback, nil
}
