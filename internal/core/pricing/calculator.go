package pricing

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const perMillion = 1_000_000.0

// Price is expressed in USD per million tokens.
type Price struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

type Table map[string]Price

func DefaultTable() Table {
	return Table{
		"gpt-4.1-mini": {InputPerMillion: 0.4, OutputPerMillion: 1.6},
		"gpt-4o":       {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	}
}

// Calculator maps (model, token counts) to an estimated USD cost.
type Calculator struct {
	table Table
}

func NewCalculator(table Table) *Calculator {
	if len(table) == 0 {
		table = DefaultTable()
	}
	copied := make(Table, len(table))
	for model, price := range table {
		copied[model] = price
	}
	return &Calculator{table: copied}
}

func (c *Calculator) Cost(modelID string, inputTokens, outputTokens int) (float64, error) {
	price, ok := c.table[modelID]
	if !ok {
		return 0, &domain.UnknownModelError{ModelID: modelID}
	}
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	return float64(inputTokens)*price.InputPerMillion/perMillion +
		float64(outputTokens)*price.OutputPerMillion/perMillion, nil
}

// Usage builds a TokenUsage with the estimated cost filled in.
func (c *Calculator) Usage(modelID string, inputTokens, outputTokens int) (domain.TokenUsage, error) {
	cost, err := c.Cost(modelID, inputTokens, outputTokens)
	if err != nil {
		return domain.TokenUsage{}, err
	}
	return domain.TokenUsage{
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		TotalTokens:      inputTokens + outputTokens,
		EstimatedCostUSD: cost,
	}, nil
}

type tableFile struct {
	Models Table `yaml:"models"`
}

// LoadTable reads a YAML pricing table and merges it over the defaults.
//
//	models:
//	  gpt-4o:
//	    input_per_million: 2.5
//	    output_per_million: 10
func LoadTable(r io.Reader) (Table, error) {
	var file tableFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode pricing yaml: %w", err)
	}
	table := DefaultTable()
	for model, price := range file.Models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if price.InputPerMillion < 0 || price.OutputPerMillion < 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load pricing", fmt.Errorf("negative price for %s", model))
		}
		table[model] = price
	}
	return table, nil
}

// LoadTableFile returns the default table when path is empty.
func LoadTableFile(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pricing file: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}
