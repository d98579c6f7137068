package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
)

// ValidatorOptions tunes the validation stage.
type ValidatorOptions struct {
	Temperature float64
	MaxTokens   int
}

func (o *ValidatorOptions) setDefaults() {
	if o.Temperature == 0 {
		o.Temperature = 0.1
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 16000
	}
}

// Validator runs the validation stage: one bulk request covering every
// detected instance of a chapter.
type Validator struct {
	client    providers.Client
	extractor *extract.Extractor
	logger    *slog.Logger
	opts      ValidatorOptions
}

func NewValidator(client providers.Client, extractor *extract.Extractor, logger *slog.Logger, opts ValidatorOptions) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	opts.setDefaults()
	return &Validator{
		client:    client,
		extractor: extractor,
		logger:    logger.With("component", "validate"),
		opts:      opts,
	}
}

type validationRecord struct {
	InstanceID string `json:"instance_id"`
	Verdicts   []struct {
		Facet          string `json:"facet"`
		Verdict        string `json:"verdict"`
		ReclassifiedTo string `json:"reclassified_to"`
		Rationale      string `json:"rationale"`
	} `json:"verdicts"`
}

// ValidateChapter returns per-instance, per-facet verdicts. On failure it
// returns a *ValidationError carrying full context; it never returns an
// empty map for a non-empty instance list.
func (v *Validator) ValidateChapter(ctx context.Context, book string, chapter int, instances []FigurativeInstance) (VerdictMap, error) {
	if len(instances) == 0 {
		return VerdictMap{}, nil
	}

	req := &providers.Request{
		System:      ValidationSystemPrompt(),
		Prompt:      ValidationUserPrompt(book, chapter, instances),
		Temperature: v.opts.Temperature,
		MaxTokens:   v.opts.MaxTokens,
		RequestID:   uuid.NewString(),
	}

	result, err := v.client.Analyze(ctx, req)
	if err != nil {
		return nil, &ValidationError{Book: book, Chapter: chapter, InstanceCount: len(instances), Cause: err}
	}

	ext, err := v.extractor.Extract(result.Content, ValidationShape(len(instances)))
	if err != nil {
		return nil, &ValidationError{Book: book, Chapter: chapter, InstanceCount: len(instances), Cause: err}
	}

	verdicts := make(VerdictMap)
	for _, raw := range ext.Records {
		var rec validationRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.InstanceID == "" {
			continue
		}
		byFacet := make(map[Facet]FacetVerdict, len(rec.Verdicts))
		for _, fv := range rec.Verdicts {
			facet := Facet(strings.ToLower(strings.TrimSpace(fv.Facet)))
			if facet == "" {
				continue
			}
			byFacet[facet] = FacetVerdict{
				Verdict:   Verdict(strings.ToUpper(strings.TrimSpace(fv.Verdict))),
				NewFacet:  Facet(strings.ToLower(strings.TrimSpace(fv.ReclassifiedTo))),
				Rationale: fv.Rationale,
			}
		}
		if len(byFacet) > 0 {
			verdicts[rec.InstanceID] = byFacet
		}
	}

	if len(verdicts) == 0 {
		// The whole payload was unusable; an empty map here would read
		// downstream as "validated, no corrections".
		return nil, &ValidationError{
			Book:          book,
			Chapter:       chapter,
			InstanceCount: len(instances),
			Cause:         errNoUsableVerdicts,
		}
	}

	if len(verdicts) < len(instances) {
		v.logger.Warn("validation covered a subset of instances",
			"book", book, "chapter", chapter,
			"validated", len(verdicts), "detected", len(instances))
	}

	return verdicts, nil
}

var errNoUsableVerdicts = &noVerdictsError{}

type noVerdictsError struct{}

func (*noVerdictsError) Error() string { return "no usable verdicts in analyzer response" }

// Reconcile folds verdicts into each instance's validated facet set:
// VALID keeps the facet yes, INVALID flips it to no, RECLASSIFIED moves it
// to the named facet and carries the rationale. Instances without any
// verdict are left unvalidated for the reconciliation pass. The figurative
// summary flag is yes iff any validated facet is yes.
func Reconcile(instances []FigurativeInstance, verdicts VerdictMap) []FigurativeInstance {
	out := make([]FigurativeInstance, len(instances))
	for i, inst := range instances {
		out[i] = inst

		byFacet, ok := verdicts[inst.ID]
		if !ok {
			out[i].Validated = nil
			out[i].Figurative = false
			continue
		}

		validated := inst.Detected.Clone()
		if validated == nil {
			validated = make(FacetSet)
		}

		// Apply verdicts in vocabulary order, reclassification targets
		// last: a reclassification into a facet wins over a direct
		// INVALID on that same facet, no matter how the analyzer
		// ordered its verdicts.
		var rationales []string
		for _, facet := range Facets {
			fv, ok := byFacet[facet]
			if !ok {
				continue
			}
			switch fv.Verdict {
			case VerdictValid:
				validated[facet] = true
			case VerdictInvalid:
				validated[facet] = false
				if fv.Rationale != "" {
					rationales = append(rationales, fv.Rationale)
				}
			case VerdictReclassified:
				validated[facet] = false
				if fv.Rationale != "" {
					rationales = append(rationales, fv.Rationale)
				}
			}
		}
		for _, facet := range Facets {
			fv, ok := byFacet[facet]
			if !ok || fv.Verdict != VerdictReclassified || fv.NewFacet == "" {
				continue
			}
			validated[fv.NewFacet] = true
		}

		out[i].Validated = validated
		out[i].Figurative = validated.AnyYes()
		out[i].ValidationRationale = strings.Join(rationales, "; ")
	}
	return out
}
