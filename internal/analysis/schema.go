package analysis

import (
	"encoding/json"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
)

// detectionSchema gates clean detection parses. Repaired payloads skip the
// gate and are flagged instead.
const detectionSchema = `{
	"type": "object",
	"required": ["verses"],
	"properties": {
		"verses": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["verse", "rationale"],
				"properties": {
					"verse": {"type": "integer", "minimum": 1},
					"rationale": {"type": "string"},
					"instances": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["english_excerpt", "facets"],
							"properties": {
								"hebrew_excerpt": {"type": "string"},
								"english_excerpt": {"type": "string"},
								"confidence": {"type": "number", "minimum": 0, "maximum": 1},
								"facets": {
									"type": "array",
									"items": {"type": "string"}
								},
								"tag": {
									"type": "object",
									"properties": {
										"subject": {"type": "array", "items": {"type": "string"}},
										"comparison_image": {"type": "array", "items": {"type": "string"}},
										"shared_quality": {"type": "array", "items": {"type": "string"}},
										"stance": {"type": "array", "items": {"type": "string"}}
									}
								},
								"explanation": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

const validationSchema = `{
	"type": "object",
	"required": ["validations"],
	"properties": {
		"validations": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["instance_id", "verdicts"],
				"properties": {
					"instance_id": {"type": "string"},
					"verdicts": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["facet", "verdict"],
							"properties": {
								"facet": {"type": "string"},
								"verdict": {"type": "string", "enum": ["VALID", "INVALID", "RECLASSIFIED"]},
								"reclassified_to": {"type": "string"},
								"rationale": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

// DetectionShape describes the expected detection payload for a batch of
// verseCount verses.
func DetectionShape(verseCount int) extract.Shape {
	return extract.Shape{
		Name:          "detection",
		RecordKey:     "verses",
		Schema:        json.RawMessage(detectionSchema),
		ExpectedCount: verseCount,
	}
}

// ValidationShape describes the expected validation payload for
// instanceCount instances.
func ValidationShape(instanceCount int) extract.Shape {
	return extract.Shape{
		Name:          "validation",
		RecordKey:     "validations",
		Schema:        json.RawMessage(validationSchema),
		ExpectedCount: instanceCount,
	}
}
