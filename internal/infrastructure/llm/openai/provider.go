package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	DefaultTextModelID     = "gpt-4.1-mini"
	DefaultTextModelName   = "GPT-4.1 Mini"
	DefaultVisionModelID   = "gpt-4o"
	DefaultVisionModelName = "GPT-4o"

	visionImageDetail = "low"
)

// Provider is one model variant over the shared client. The vision variant
// sends page images; evaluation is text-only for both.
type Provider struct {
	client  *Client
	model   domain.ModelInfo
	pricing ports.CostCalculator
}

func NewTextProvider(client *Client, modelID, modelName string, pricing ports.CostCalculator) *Provider {
	if modelID == "" {
		modelID, modelName = DefaultTextModelID, DefaultTextModelName
	}
	return &Provider{
		client:  client,
		model:   domain.ModelInfo{ID: modelID, Name: modelName},
		pricing: pricing,
	}
}

func NewVisionProvider(client *Client, modelID, modelName string, pricing ports.CostCalculator) *Provider {
	if modelID == "" {
		modelID, modelName = DefaultVisionModelID, DefaultVisionModelName
	}
	return &Provider{
		client:  client,
		model:   domain.ModelInfo{ID: modelID, Name: modelName, SupportsVision: true},
		pricing: pricing,
	}
}

func (p *Provider) Model() domain.ModelInfo { return p.model }

func (p *Provider) GenerateSummary(ctx context.Context, input domain.SummaryInput) (domain.SummaryOutput, error) {
	if input.ContentType == domain.ContentImage && !p.model.SupportsVision {
		return domain.SummaryOutput{}, domain.WrapError(
			domain.ErrInvalidInput,
			"generate summary",
			fmt.Errorf("model %s does not accept images", p.model.ID),
		)
	}

	started := time.Now()
	resp, err := p.client.completeJSON(ctx, p.model.ID, buildSummaryMessages(input, p.model.SupportsVision, visionImageDetail))
	elapsed := time.Since(started)
	if err != nil {
		return domain.SummaryOutput{}, err
	}

	var out domain.SummaryOutput
	if err := decodeValidated("summary", summarySchema, resp.content, &out); err != nil {
		return domain.SummaryOutput{}, err
	}
	if out.Tags == nil {
		out.Tags = []domain.Tag{}
	}

	usage, err := p.pricing.Usage(p.model.ID, resp.inputTokens, resp.outputTokens)
	if err != nil {
		return domain.SummaryOutput{}, err
	}
	out.TokenUsage = usage
	out.ProcessingTime = elapsed
	return out, nil
}

func (p *Provider) EvaluateSummary(ctx context.Context, input domain.EvaluationInput) (domain.EvaluationOutput, error) {
	resp, err := p.client.completeJSON(ctx, p.model.ID, buildEvaluationMessages(input))
	if err != nil {
		return domain.EvaluationOutput{}, err
	}

	var out domain.EvaluationOutput
	if err := decodeValidated("evaluation", evaluationSchema, resp.content, &out); err != nil {
		return domain.EvaluationOutput{}, err
	}

	usage, err := p.pricing.Usage(p.model.ID, resp.inputTokens, resp.outputTokens)
	if err != nil {
		return domain.EvaluationOutput{}, err
	}
	out.TokenUsage = usage
	return out, nil
}
