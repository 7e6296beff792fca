package usecase

import (
	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

// CompareStrategies returns nil unless both strategies completed.
func CompareStrategies(view domain.DocumentView) *domain.Comparison {
	text, ok := view.Summary(domain.StrategyTextExtraction)
	if !ok || text.Status != domain.SummaryCompleted {
		return nil
	}
	multi, ok := view.Summary(domain.StrategyMultimodal)
	if !ok || multi.Status != domain.SummaryCompleted {
		return nil
	}

	textScore, multiScore := overallScore(text), overallScore(multi)
	textCost, multiCost := text.TotalCostUSD(), multi.TotalCostUSD()

	return &domain.Comparison{
		OverallScore:   pickWinner(textScore, multiScore, true),
		TotalCost:      pickWinner(&textCost, &multiCost, false),
		ProcessingTime: pickWinner(processingTime(text), processingTime(multi), false),
		CostPerPoint:   pickWinner(costPerPoint(textCost, textScore), costPerPoint(multiCost, multiScore), false),
	}
}

// AggregateStrategyStats expects views of completed documents.
func AggregateStrategyStats(views []domain.DocumentView) []domain.StrategyStats {
	order := []domain.Strategy{domain.StrategyTextExtraction, domain.StrategyMultimodal}

	type acc struct {
		count      int
		costSum    float64
		scoreSum   float64
		scoreCount int
	}
	totals := make(map[domain.Strategy]*acc, len(order))
	for _, s := range order {
		totals[s] = &acc{}
	}

	for _, view := range views {
		if view.Status != domain.StatusCompleted {
			continue
		}
		for _, s := range view.Summaries {
			if s.Status != domain.SummaryCompleted {
				continue
			}
			a, ok := totals[s.Strategy]
			if !ok {
				continue
			}
			a.count++
			a.costSum += s.TotalCostUSD()
			if s.Evaluation != nil {
				a.scoreSum += float64(s.Evaluation.Overall.Score)
				a.scoreCount++
			}
		}
	}

	out := make([]domain.StrategyStats, 0, len(order))
	for _, strategy := range order {
		a := totals[strategy]
		stats := domain.StrategyStats{Strategy: strategy, Count: a.count}
		if a.count > 0 {
			stats.AvgCostUSD = a.costSum / float64(a.count)
		}
		if a.scoreCount > 0 {
			avg := a.scoreSum / float64(a.scoreCount)
			stats.AvgOverallScore = &avg
		}
		out = append(out, stats)
	}
	return out
}

func overallScore(v domain.SummaryView) *float64 {
	if v.Evaluation == nil {
		return nil
	}
	score := float64(v.Evaluation.Overall.Score)
	return &score
}

func processingTime(v domain.SummaryView) *float64 {
	if v.ProcessingTimeMs == nil {
		return nil
	}
	ms := float64(*v.ProcessingTimeMs)
	return &ms
}

func costPerPoint(cost float64, score *float64) *float64 {
	if score == nil || *score <= 0 {
		return nil
	}
	v := cost / *score
	return &v
}

// pickWinner treats a missing value on either side as a tie.
func pickWinner(text, multi *float64, higherIsBetter bool) domain.Winner {
	if text == nil || multi == nil || *text == *multi {
		return domain.WinnerTie
	}
	if (*text > *multi) == higherIsBetter {
		return domain.WinnerText
	}
	return domain.WinnerMultimodal
}
