package domain

// SummaryView is a summary with its optional evaluation and feedback, as polled by the UI.
type SummaryView struct {
	Summary
	Evaluation *Evaluation `json:"evaluation"`
	Feedback   *Feedback   `json:"feedback"`
}

// TotalCostUSD sums generation and evaluation cost.
func (v SummaryView) TotalCostUSD() float64 {
	total := 0.0
	if v.EstimatedCostUSD != nil {
		total += *v.EstimatedCostUSD
	}
	if v.Evaluation != nil {
		total += v.Evaluation.EstimatedCostUSD
	}
	return total
}

type DocumentView struct {
	Document
	Summaries  []SummaryView `json:"summaries"`
	Comparison *Comparison   `json:"comparison,omitempty"`
}

// Summary returns the view for a strategy, if one was attempted.
func (v DocumentView) Summary(strategy Strategy) (SummaryView, bool) {
	for _, s := range v.Summaries {
		if s.Strategy == strategy {
			return s, true
		}
	}
	return SummaryView{}, false
}

type Winner string

const (
	WinnerText       Winner = "text"
	WinnerMultimodal Winner = "multimodal"
	WinnerTie        Winner = "tie"
)

type Comparison struct {
	OverallScore   Winner `json:"overall_score"`
	TotalCost      Winner `json:"total_cost"`
	ProcessingTime Winner `json:"processing_time"`
	CostPerPoint   Winner `json:"cost_per_point"`
}

type StrategyStats struct {
	Strategy        Strategy `json:"strategy"`
	Count           int      `json:"count"`
	AvgOverallScore *float64 `json:"avg_overall_score"`
	AvgCostUSD      float64  `json:"avg_cost_usd"`
}

type RelatedDocument struct {
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	SharedTags []string `json:"shared_tags"`
}
