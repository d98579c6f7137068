// Package extract recovers structured record sets from raw analyzer output.
// Responses may be clean JSON, JSON wrapped in narrative prose, truncated
// mid-payload, or carry minor syntax defects. The extractor applies a
// strictly ordered cascade of strategies, returning on first success, and
// never discards a partially-good response without trying to salvage it.
package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Strategy identifies which cascade step produced an extraction.
type Strategy string

const (
	StrategyFencedBlock      Strategy = "fenced_block"
	StrategyDelimitedBlock   Strategy = "delimited_block"
	StrategyDepthScan        Strategy = "depth_scan"
	StrategyGreedyBounds     Strategy = "greedy_bounds"
	StrategyTruncationRepair Strategy = "truncation_repair"
	StrategyRecordScan       Strategy = "record_scan"
	StrategyEscapeRepair     Strategy = "escape_repair"
	StrategySanitize         Strategy = "sanitize"
	StrategyProgressive      Strategy = "progressive"
	StrategyPlaceholder      Strategy = "placeholder"
)

// cascade is the strict strategy order. Placeholder is the last resort and
// always succeeds, so the extractor never returns a structurally untyped
// result to the pipeline.
var cascade = []Strategy{
	StrategyFencedBlock,
	StrategyDelimitedBlock,
	StrategyDepthScan,
	StrategyGreedyBounds,
	StrategyTruncationRepair,
	StrategyRecordScan,
	StrategyEscapeRepair,
	StrategySanitize,
	StrategyProgressive,
	StrategyPlaceholder,
}

// Shape declares what record set a response is expected to contain.
type Shape struct {
	// Name keys schema compilation and strategy stats ("detection", "validation").
	Name string

	// RecordKey is the top-level array field holding the records. A bare
	// top-level array is also accepted.
	RecordKey string

	// Schema optionally validates fully-parsed payloads (strategies that
	// recover a complete document). Repaired or partial recoveries are
	// flagged instead of schema-checked.
	Schema json.RawMessage

	// ExpectedCount is the number of records a complete response would
	// carry (0 = unknown). Recovering fewer sets PossibleDataLoss.
	ExpectedCount int
}

// Extraction is the outcome of one Extract call.
type Extraction struct {
	Records  []json.RawMessage
	Strategy Strategy

	// Repaired is set when the payload needed automatic repair; callers
	// should verify completeness downstream.
	Repaired bool

	// PossibleDataLoss is set whenever the extraction may carry fewer
	// records than the raw text contained.
	PossibleDataLoss bool

	// SkippedRecords counts individually malformed records dropped during
	// record-level recovery.
	SkippedRecords int

	ExpectedCount int
	FoundCount    int
}

// Extractor runs the recovery cascade. Safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
	stats  *Stats
}

// New creates an extractor.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		logger: logger.With("component", "extract"),
		stats:  newStats(),
	}
}

// Stats returns the per-strategy success counters.
func (e *Extractor) Stats() StatsSnapshot {
	return e.stats.snapshot()
}

// Extract recovers the record set for shape from raw analyzer output.
// The error return is non-nil only for an unusable shape; response defects
// are absorbed by the cascade and reported via Extraction flags.
func (e *Extractor) Extract(raw string, shape Shape) (*Extraction, error) {
	if shape.RecordKey == "" {
		return nil, fmt.Errorf("extract: shape %q has no record key", shape.Name)
	}

	for _, strategy := range cascade {
		ext, ok := e.attempt(strategy, raw, shape)
		if !ok {
			continue
		}

		ext.Strategy = strategy
		ext.ExpectedCount = shape.ExpectedCount
		ext.FoundCount = len(ext.Records)
		if shape.ExpectedCount > 0 && ext.FoundCount < shape.ExpectedCount {
			ext.PossibleDataLoss = true
		}
		if ext.SkippedRecords > 0 {
			ext.PossibleDataLoss = true
		}

		e.stats.recordSuccess(shape.Name, strategy)
		if strategy != StrategyFencedBlock && strategy != StrategyDelimitedBlock {
			e.logger.Info("recovered structured payload",
				"shape", shape.Name,
				"strategy", string(strategy),
				"records", ext.FoundCount,
				"expected", shape.ExpectedCount,
				"possible_data_loss", ext.PossibleDataLoss)
		}
		return ext, nil
	}

	// Unreachable: the placeholder strategy always succeeds.
	return nil, fmt.Errorf("extract: cascade exhausted for shape %q", shape.Name)
}

// attempt runs a single strategy. ok=false means fall through to the next.
func (e *Extractor) attempt(strategy Strategy, raw string, shape Shape) (*Extraction, bool) {
	switch strategy {
	case StrategyFencedBlock:
		candidate := fencedBlock(raw)
		if candidate == "" {
			return nil, false
		}
		return e.parseWhole(candidate, shape, false)

	case StrategyDelimitedBlock:
		candidate := delimitedBlock(raw)
		if candidate == "" {
			return nil, false
		}
		return e.parseWhole(candidate, shape, false)

	case StrategyDepthScan:
		candidate := depthScan(raw)
		if candidate == "" {
			return nil, false
		}
		return e.parseWhole(candidate, shape, false)

	case StrategyGreedyBounds:
		candidate := greedyBounds(raw)
		if candidate == "" {
			return nil, false
		}
		return e.parseWhole(candidate, shape, false)

	case StrategyTruncationRepair:
		if !looksTruncated(raw) {
			return nil, false
		}
		candidate := repairTruncation(raw)
		if candidate == "" {
			return nil, false
		}
		ext, ok := e.parseWhole(candidate, shape, true)
		if !ok {
			return nil, false
		}
		ext.Repaired = true
		ext.PossibleDataLoss = true
		return ext, true

	case StrategyRecordScan:
		records, skipped := scanRecords(raw, shape.RecordKey)
		if len(records) == 0 {
			return nil, false
		}
		return &Extraction{
			Records:        records,
			Repaired:       true,
			SkippedRecords: skipped,
		}, true

	case StrategyEscapeRepair:
		candidate := fixStringEscapes(bestCandidate(raw))
		if candidate == "" {
			return nil, false
		}
		ext, ok := e.parseWhole(candidate, shape, true)
		if !ok {
			return nil, false
		}
		ext.Repaired = true
		return ext, true

	case StrategySanitize:
		candidate := sanitize(bestCandidate(raw))
		if candidate == "" {
			return nil, false
		}
		ext, ok := e.parseWhole(candidate, shape, true)
		if !ok {
			return nil, false
		}
		ext.Repaired = true
		return ext, true

	case StrategyProgressive:
		records := progressiveRecords(sanitize(raw), shape.RecordKey)
		if len(records) == 0 {
			return nil, false
		}
		return &Extraction{
			Records:          records,
			Repaired:         true,
			PossibleDataLoss: true,
		}, true

	case StrategyPlaceholder:
		// Minimal well-typed empty record set: the pipeline always
		// receives something structurally sound, and the flag forces
		// downstream code to decide whether to request a redo.
		return &Extraction{
			Records:          nil,
			Repaired:         true,
			PossibleDataLoss: true,
		}, true
	}

	return nil, false
}

// parseWhole parses candidate as the complete payload document, optionally
// validates it against the shape schema, and collects the record array.
func (e *Extractor) parseWhole(candidate string, shape Shape, repaired bool) (*Extraction, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, false
	}

	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, false
	}

	// Schema validation only gates clean parses; repaired payloads are
	// already flagged for downstream verification.
	if !repaired && len(shape.Schema) > 0 {
		if err := validateSchema(shape.Name, shape.Schema, doc); err != nil {
			e.logger.Debug("payload failed schema validation",
				"shape", shape.Name, "error", err)
			return nil, false
		}
	}

	records, ok := collectRecords(doc, shape.RecordKey)
	if !ok {
		return nil, false
	}
	return &Extraction{Records: records}, true
}

// collectRecords pulls the record array out of a parsed document: either
// the array under key, or the document itself when it is a bare array.
func collectRecords(doc any, key string) ([]json.RawMessage, bool) {
	var arr []any
	switch d := doc.(type) {
	case map[string]any:
		inner, ok := d[key]
		if !ok {
			return nil, false
		}
		arr, ok = inner.([]any)
		if !ok {
			return nil, false
		}
	case []any:
		arr = d
	default:
		return nil, false
	}

	records := make([]json.RawMessage, 0, len(arr))
	for _, item := range arr {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, false
		}
		records = append(records, b)
	}
	return records, true
}
