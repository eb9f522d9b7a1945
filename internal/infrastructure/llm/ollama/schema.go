package ollama

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

const simplifySchema = `{
	"type": "object",
	"required": ["clauses"],
	"properties": {
		"clauses": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["clause_id", "original_text", "simplified_text"],
				"properties": {
					"clause_id": {"type": "integer"},
					"original_text": {"type": "string"},
					"simplified_text": {"type": "string"}
				}
			}
		}
	}
}`

const translationItems = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["clause_id", "translated_text"],
		"properties": {
			"clause_id": {"type": "integer"},
			"translated_text": {"type": "string"}
		}
	}
}`

const translateSchema = `{
	"type": "object",
	"properties": {
		"hindi": ` + translationItems + `,
		"bengali": ` + translationItems + `
	}
}`

const risksSchema = `{
	"type": "object",
	"properties": {
		"risks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["clause_id", "severity"],
				"properties": {
					"clause_id": {"type": "integer"},
					"risk_type": {"type": "string"},
					"severity": {"type": "string"},
					"description": {"type": "string"},
					"recommendation": {"type": "string"}
				}
			}
		},
		"summary": {"type": "string"}
	}
}`

const metadataSchema = `{
	"type": "object",
	"properties": {
		"category": {"type": ["string", "null"]},
		"expiry_date": {"type": ["string", "null"]}
	}
}`

// stageSchema pairs the raw schema sent as the generate format with its
// compiled form used to validate the reply.
type stageSchema struct {
	raw      string
	compiled *jsonschema.Schema
}

func compileSchemas() (map[domain.Stage]stageSchema, error) {
	sources := map[domain.Stage]string{
		domain.StageSimplify:  simplifySchema,
		domain.StageTranslate: translateSchema,
		domain.StageRisks:     risksSchema,
		domain.StageMetadata:  metadataSchema,
	}

	out := make(map[domain.Stage]stageSchema, len(sources))
	for stage, raw := range sources {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://contracts.schemas.local/analysis/%s.schema.json", stage)
		if err := c.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load %s schema: %w", stage, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", stage, err)
		}
		out[stage] = stageSchema{raw: raw, compiled: compiled}
	}
	return out, nil
}
