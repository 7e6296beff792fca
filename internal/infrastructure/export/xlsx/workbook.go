// Package xlsx renders the strategy comparison report as an Excel workbook.
package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const (
	SummariesSheet = "Summaries"
	StatsSheet     = "Strategy Stats"
	ContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var summaryHeaders = []string{
	"Document ID",
	"Filename",
	"Source",
	"Strategy",
	"Model",
	"Status",
	"Overall Score",
	"Total Tokens",
	"Total Cost (USD)",
	"Processing Time (ms)",
	"Feedback",
	"Error",
}

var statsHeaders = []string{
	"Strategy",
	"Completed Summaries",
	"Avg Overall Score",
	"Avg Cost (USD)",
}

// Build returns the workbook bytes: one row per summary, then aggregates.
func Build(views []domain.DocumentView, stats []domain.StrategyStats) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummariesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(StatsSheet); err != nil {
		return nil, fmt.Errorf("create stats sheet: %w", err)
	}

	if err := writeRow(f, SummariesSheet, 1, toAny(summaryHeaders)); err != nil {
		return nil, err
	}
	row := 2
	for _, view := range views {
		for _, s := range view.Summaries {
			if err := writeRow(f, SummariesSheet, row, summaryRow(view.Document, s)); err != nil {
				return nil, err
			}
			row++
		}
	}

	if err := writeRow(f, StatsSheet, 1, toAny(statsHeaders)); err != nil {
		return nil, err
	}
	for i, st := range stats {
		var avgScore any = ""
		if st.AvgOverallScore != nil {
			avgScore = *st.AvgOverallScore
		}
		if err := writeRow(f, StatsSheet, i+2, []any{string(st.Strategy), st.Count, avgScore, st.AvgCostUSD}); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(SummariesSheet, "A", "A", 38)
	_ = f.SetColWidth(SummariesSheet, "B", "B", 32)
	_ = f.SetColWidth(SummariesSheet, "C", "F", 16)
	_ = f.SetColWidth(SummariesSheet, "G", "K", 14)
	_ = f.SetColWidth(SummariesSheet, "L", "L", 60)
	_ = f.SetColWidth(StatsSheet, "A", "D", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func summaryRow(doc domain.Document, s domain.SummaryView) []any {
	var (
		score    any = ""
		tokens   any = ""
		elapsed  any = ""
		feedback     = ""
		errText      = ""
	)
	if s.Evaluation != nil {
		score = s.Evaluation.Overall.Score
	}
	if s.TotalTokens != nil {
		tokens = *s.TotalTokens
	}
	if s.ProcessingTimeMs != nil {
		elapsed = *s.ProcessingTimeMs
	}
	if s.Feedback != nil {
		feedback = string(s.Feedback.Rating)
	}
	if s.ErrorMessage != nil {
		errText = *s.ErrorMessage
	}
	return []any{
		doc.ID,
		doc.Filename,
		string(doc.Source),
		string(s.Strategy),
		s.ModelName,
		string(s.Status),
		score,
		tokens,
		s.TotalCostUSD(),
		elapsed,
		feedback,
		errText,
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
