package openai

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

const summarySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["shortSummary", "detailedSummary", "tags", "documentType"],
  "properties": {
    "shortSummary": {"type": "string", "minLength": 1},
    "detailedSummary": {"type": "string", "minLength": 1},
    "documentType": {
      "enum": ["report", "research_paper", "invoice", "contract", "letter", "manual",
               "presentation", "spreadsheet_export", "form", "other"]
    },
    "tags": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "category", "confidence"],
        "properties": {
          "label": {"type": "string", "minLength": 1},
          "category": {"enum": ["topic", "document_type", "entity", "methodology", "domain"]},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

const evaluationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "score": {
      "type": "object",
      "required": ["score", "rationale"],
      "properties": {
        "score": {"type": "integer", "minimum": 1, "maximum": 10},
        "rationale": {"type": "string"}
      }
    }
  },
  "type": "object",
  "required": ["completeness", "confidence", "specificity", "overall"],
  "properties": {
    "completeness": {"$ref": "#/$defs/score"},
    "confidence": {"$ref": "#/$defs/score"},
    "specificity": {"$ref": "#/$defs/score"},
    "overall": {"$ref": "#/$defs/score"}
  }
}`

var (
	summarySchema    = jsonschema.MustCompileString("summary.json", summarySchemaJSON)
	evaluationSchema = jsonschema.MustCompileString("evaluation.json", evaluationSchemaJSON)
)

// decodeValidated checks raw against schema before decoding it into out.
func decodeValidated(name string, schema *jsonschema.Schema, raw string, out any) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return &domain.SchemaValidationError{Schema: name, Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return &domain.SchemaValidationError{Schema: name, Fields: violatedFields(err), Err: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &domain.SchemaValidationError{Schema: name, Err: err}
	}
	return nil
}

func violatedFields(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	seen := map[string]bool{}
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			seen[loc] = true
			return
		}
		for _, cause := range v.Causes {
			walk(cause)
		}
	}
	walk(verr)

	fields := make([]string, 0, len(seen))
	for loc := range seen {
		fields = append(fields, loc)
	}
	sort.Strings(fields)
	return fields
}
