package usecase

import (
	"testing"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func completedView(strategy domain.Strategy, cost float64, overall int, elapsedMs int64) domain.SummaryView {
	return domain.SummaryView{
		Summary: domain.Summary{
			Strategy:         strategy,
			Status:           domain.SummaryCompleted,
			EstimatedCostUSD: &cost,
			ProcessingTimeMs: &elapsedMs,
		},
		Evaluation: &domain.Evaluation{Overall: domain.Score{Score: overall}, EstimatedCostUSD: 0.001},
	}
}

func TestCompareStrategiesPicksWinners(t *testing.T) {
	view := domain.DocumentView{Summaries: []domain.SummaryView{
		completedView(domain.StrategyTextExtraction, 0.002, 7, 3000),
		completedView(domain.StrategyMultimodal, 0.010, 9, 8000),
	}}

	got := CompareStrategies(view)
	if got == nil {
		t.Fatalf("expected comparison")
	}
	want := domain.Comparison{
		OverallScore:   domain.WinnerMultimodal,
		TotalCost:      domain.WinnerText,
		ProcessingTime: domain.WinnerText,
		CostPerPoint:   domain.WinnerText,
	}
	if *got != want {
		t.Fatalf("CompareStrategies() = %+v, want %+v", *got, want)
	}
}

func TestCompareStrategiesNeedsBothCompleted(t *testing.T) {
	failed := completedView(domain.StrategyMultimodal, 0, 0, 0)
	failed.Status = domain.SummaryFailed
	view := domain.DocumentView{Summaries: []domain.SummaryView{
		completedView(domain.StrategyTextExtraction, 0.002, 7, 3000),
		failed,
	}}
	if got := CompareStrategies(view); got != nil {
		t.Fatalf("expected no comparison, got %+v", got)
	}
}

func TestCompareStrategiesMissingEvaluationIsTie(t *testing.T) {
	text := completedView(domain.StrategyTextExtraction, 0.002, 7, 3000)
	text.Evaluation = nil
	view := domain.DocumentView{Summaries: []domain.SummaryView{
		text,
		completedView(domain.StrategyMultimodal, 0.010, 9, 8000),
	}}

	got := CompareStrategies(view)
	if got.OverallScore != domain.WinnerTie || got.CostPerPoint != domain.WinnerTie {
		t.Fatalf("expected ties without a text evaluation, got %+v", got)
	}
}
