package openai

import (
	"strings"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const summaryInstructions = `1. A SHORT SUMMARY (2-3 sentences) suitable for inline display. Be specific to THIS document, avoid generic descriptions.
2. A DETAILED SUMMARY (2-4 paragraphs) covering main topics, key findings, and notable details.
3. TAGS: array of relevant tags, each with:
   - label: the tag text
   - category: one of "topic", "document_type", "entity", "methodology", "domain"
   - confidence: 0.0-1.0
4. DOCUMENT TYPE: classify as one of: report, research_paper, invoice, contract, letter, manual, presentation, spreadsheet_export, form, other

Respond with a JSON object using exactly these keys: "shortSummary", "detailedSummary", "tags", "documentType".`

const evaluationPrompt = `You are an evaluation assistant. Given an original document and an AI-generated summary, evaluate the summary on these dimensions:

1. COMPLETENESS (1-10): Does it capture all main points?
2. CONFIDENCE (1-10): How confident are you in its accuracy?
3. SPECIFICITY (1-10): Is it specific to this document or generic?
4. OVERALL (1-10): Holistic quality assessment.

For each, provide the score AND a brief rationale (1-2 sentences).
Respond with a JSON object using exactly these keys:
{
  "completeness": {"score": 1-10, "rationale": "..."},
  "confidence": {"score": 1-10, "rationale": "..."},
  "specificity": {"score": 1-10, "rationale": "..."},
  "overall": {"score": 1-10, "rationale": "..."}
}`

func buildSummarySystemPrompt(vision bool, projectContext string) string {
	var b strings.Builder
	if vision {
		b.WriteString("You are a document analysis assistant. You will be shown images of document pages. Based on the visual content, generate:\n\n")
	} else {
		b.WriteString("You are a document analysis assistant. Given the contents of a document, generate:\n\n")
	}
	b.WriteString(summaryInstructions)

	if ctx := strings.TrimSpace(projectContext); ctx != "" {
		b.WriteString("\n\nThe document belongs to a project with this context: ")
		b.WriteString(ctx)
		b.WriteString("\nConsider relevance to this project in your analysis.")
	}
	return b.String()
}

func buildSummaryMessages(input domain.SummaryInput, vision bool, imageDetail string) []chatMessage {
	system := chatMessage{Role: "system", Content: buildSummarySystemPrompt(vision, input.ProjectContext)}

	if input.ContentType != domain.ContentImage {
		return []chatMessage{system, {Role: "user", Content: input.Text}}
	}

	parts := make([]contentPart, 0, len(input.Images)+1)
	parts = append(parts, contentPart{Type: "text", Text: "Analyze the following document pages:"})
	for _, img := range input.Images {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL:    "data:image/png;base64," + img,
				Detail: imageDetail,
			},
		})
	}
	return []chatMessage{system, {Role: "user", Content: parts}}
}

func buildEvaluationMessages(input domain.EvaluationInput) []chatMessage {
	user := "ORIGINAL DOCUMENT:\n" + input.OriginalContent + "\n\nAI-GENERATED SUMMARY:\n" + input.Summary
	return []chatMessage{
		{Role: "system", Content: evaluationPrompt},
		{Role: "user", Content: user},
	}
}
