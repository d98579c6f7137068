package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/tanakh"
)

// DetectorOptions tunes the detection stage.
type DetectorOptions struct {
	Temperature float64
	MaxTokens   int

	// PromptRuneBudget caps the verse text batched into one request.
	// Chapters over budget are split into sub-batches, each its own
	// request, and merged afterward.
	PromptRuneBudget int
}

func (o *DetectorOptions) setDefaults() {
	if o.Temperature == 0 {
		o.Temperature = 0.2
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 16000
	}
	if o.PromptRuneBudget == 0 {
		o.PromptRuneBudget = 12000
	}
}

// Detector runs the detection stage: one batched request per chapter (or
// sub-batch), mapped back onto per-verse records.
type Detector struct {
	client    providers.Client
	extractor *extract.Extractor
	logger    *slog.Logger
	opts      DetectorOptions
}

func NewDetector(client providers.Client, extractor *extract.Extractor, logger *slog.Logger, opts DetectorOptions) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	opts.setDefaults()
	return &Detector{
		client:    client,
		extractor: extractor,
		logger:    logger.With("component", "detect"),
		opts:      opts,
	}
}

type detectionRecord struct {
	Verse     int                 `json:"verse"`
	Rationale string              `json:"rationale"`
	Instances []detectionInstance `json:"instances"`
}

type detectionInstance struct {
	HebrewExcerpt  string   `json:"hebrew_excerpt"`
	EnglishExcerpt string   `json:"english_excerpt"`
	Confidence     float64  `json:"confidence"`
	Facets         []string `json:"facets"`
	Tag            Tag      `json:"tag"`
	Explanation    string   `json:"explanation"`
}

// DetectChapter analyzes every verse of one chapter. A chapter fails only
// when the analyzer itself is unreachable; response defects degrade to
// flagged verses instead.
func (d *Detector) DetectChapter(ctx context.Context, job ChapterJob) (*ChapterAnalysis, error) {
	if len(job.Verses) == 0 {
		return nil, fmt.Errorf("detect %s %d: no verses", job.Book, job.Chapter)
	}

	analysis := &ChapterAnalysis{
		Book:    job.Book,
		Chapter: job.Chapter,
	}

	batches := splitVerses(job.Verses, d.opts.PromptRuneBudget)
	analysis.Meta.SubBatches = len(batches)
	if len(batches) > 1 {
		d.logger.Info("splitting oversized chapter",
			"book", job.Book, "chapter", job.Chapter, "sub_batches", len(batches))
	}

	for _, batch := range batches {
		if err := d.detectBatch(ctx, job, batch, analysis); err != nil {
			return nil, err
		}
	}

	return analysis, nil
}

func (d *Detector) detectBatch(ctx context.Context, job ChapterJob, batch []tanakh.Verse, analysis *ChapterAnalysis) error {
	req := &providers.Request{
		System:      DetectionSystemPrompt(),
		Prompt:      DetectionUserPrompt(job.Book, job.Chapter, batch),
		Temperature: d.opts.Temperature,
		MaxTokens:   d.opts.MaxTokens,
		RequestID:   uuid.NewString(),
	}

	result, err := d.client.Analyze(ctx, req)
	if err != nil {
		return fmt.Errorf("detect %s %d: %w", job.Book, job.Chapter, err)
	}

	ext, err := d.extractor.Extract(result.Content, DetectionShape(len(batch)))
	if err != nil {
		return fmt.Errorf("detect %s %d: %w", job.Book, job.Chapter, err)
	}

	byVerse := make(map[int]detectionRecord, len(ext.Records))
	for _, raw := range ext.Records {
		var rec detectionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		byVerse[rec.Verse] = rec
	}

	now := time.Now().UTC()
	for _, v := range batch {
		vr := VerseRecord{
			Ref:        v.Ref,
			Book:       job.Book,
			Chapter:    job.Chapter,
			Number:     v.Number,
			Hebrew:     v.Hebrew,
			English:    v.English,
			Provider:   result.Provider,
			Model:      result.ModelUsed,
			AnalyzedAt: now,
			Truncated:  result.Truncated,
			Recovered:  ext.Repaired,
		}

		rec, addressed := byVerse[v.Number]
		if !addressed {
			// The analyzer never spoke to this verse. Zero instances is
			// only trustworthy when the rationale says so.
			vr.NeedsFollowUp = true
			analysis.Meta.FollowUpVerses = append(analysis.Meta.FollowUpVerses, v.Number)
		} else {
			vr.Rationale = rec.Rationale
			for i, di := range rec.Instances {
				analysis.Instances = append(analysis.Instances,
					buildInstance(job.Book, job.Chapter, v, i, di))
			}
		}
		analysis.Verses = append(analysis.Verses, vr)
	}

	analysis.Meta.Provider = result.Provider
	analysis.Meta.Model = result.ModelUsed
	analysis.Meta.Strategy = ext.Strategy
	if ext.PossibleDataLoss {
		analysis.Meta.PossibleDataLoss = true
	}
	return nil
}

func buildInstance(book string, chapter int, v tanakh.Verse, idx int, di detectionInstance) FigurativeInstance {
	detected := make(FacetSet)
	for _, name := range di.Facets {
		f := Facet(strings.ToLower(strings.TrimSpace(name)))
		if f != "" {
			detected[f] = true
		}
	}

	return FigurativeInstance{
		ID:             fmt.Sprintf("%s.%d.%d.%d", book, chapter, v.Number, idx+1),
		VerseRef:       v.Ref,
		HebrewExcerpt:  di.HebrewExcerpt,
		EnglishExcerpt: di.EnglishExcerpt,
		Confidence:     di.Confidence,
		Tag:            di.Tag,
		Explanation:    di.Explanation,
		Detected:       detected,
	}
}

// splitVerses packs verses into batches whose combined text stays under
// budget runes. Every batch holds at least one verse.
func splitVerses(verses []tanakh.Verse, budget int) [][]tanakh.Verse {
	var batches [][]tanakh.Verse
	var current []tanakh.Verse
	size := 0

	for _, v := range verses {
		cost := utf8.RuneCountInString(v.Hebrew) + utf8.RuneCountInString(v.English)
		if len(current) > 0 && size+cost > budget {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, v)
		size += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
