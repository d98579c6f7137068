// Package analysis implements the two-phase chapter protocol: detection of
// figurative language instances across a chapter, then bulk validation of
// every detected instance.
package analysis

import (
	"fmt"
	"time"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/tanakh"
)

// Facet is one named classification of figurative language. An instance
// may carry several facets simultaneously.
type Facet string

const (
	FacetMetaphor        Facet = "metaphor"
	FacetSimile          Facet = "simile"
	FacetPersonification Facet = "personification"
	FacetIdiom           Facet = "idiom"
	FacetHyperbole       Facet = "hyperbole"
	FacetMetonymy        Facet = "metonymy"
)

// Facets is the allowed vocabulary in stable order.
var Facets = []Facet{
	FacetMetaphor,
	FacetSimile,
	FacetPersonification,
	FacetIdiom,
	FacetHyperbole,
	FacetMetonymy,
}

// KnownFacet reports whether f is in the allowed vocabulary.
func KnownFacet(f Facet) bool {
	for _, known := range Facets {
		if f == known {
			return true
		}
	}
	return false
}

// FacetSet maps facet name to yes/no.
type FacetSet map[Facet]bool

// AnyYes reports whether at least one facet is set.
func (s FacetSet) AnyYes() bool {
	for _, yes := range s {
		if yes {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s FacetSet) Clone() FacetSet {
	if s == nil {
		return nil
	}
	out := make(FacetSet, len(s))
	for f, yes := range s {
		out[f] = yes
	}
	return out
}

// Tag is the four-part structured description of an instance. Each part is
// an ordered specific-to-general list.
type Tag struct {
	Subject         []string `json:"subject"`
	ComparisonImage []string `json:"comparison_image"`
	SharedQuality   []string `json:"shared_quality"`
	Stance          []string `json:"stance"`
}

// ChapterJob is one unit of work: every verse of one chapter, processed as
// one detection request and one validation request. Read-only after
// creation.
type ChapterJob struct {
	Book    string
	Chapter int
	Verses  []tanakh.Verse
	Key     string
}

// JobKey derives the stable job key for a chapter.
func JobKey(book string, chapter int) string {
	return fmt.Sprintf("%s.%d", book, chapter)
}

// VerseRecord is one verse's analysis state. Durable only once the owning
// chapter commits.
type VerseRecord struct {
	Ref       string
	Book      string
	Chapter   int
	Number    int
	Hebrew    string
	English   string
	Rationale string

	Provider   string
	Model      string
	AnalyzedAt time.Time

	// Truncated records that the analyzer response hit its output limit;
	// Recovered that the payload needed extraction repair.
	Truncated bool
	Recovered bool

	// NeedsFollowUp marks a verse the analyzer never addressed. The
	// reconciliation pass picks these up instead of failing the chapter.
	NeedsFollowUp bool
}

// FigurativeInstance is one detected phenomenon within a verse. The
// validated facet set is computed fully in memory before any write; it is
// nil until validation has run for this instance.
type FigurativeInstance struct {
	ID       string
	VerseRef string

	HebrewExcerpt  string
	EnglishExcerpt string
	Confidence     float64
	Tag            Tag
	Explanation    string

	Detected  FacetSet
	Validated FacetSet

	// Figurative is the post-validation summary: true iff any validated
	// facet is yes.
	Figurative bool

	ValidationRationale string
}

// ChapterAnalysis is the in-memory outcome of DetectionStage for one
// chapter.
type ChapterAnalysis struct {
	Book      string
	Chapter   int
	Verses    []VerseRecord
	Instances []FigurativeInstance
	Meta      JobMeta
}

// JobMeta carries processing metadata for the run summary.
type JobMeta struct {
	Provider         string
	Model            string
	Strategy         extract.Strategy
	SubBatches       int
	PossibleDataLoss bool
	FollowUpVerses   []int
}

// Verdict is a per-facet validation decision.
type Verdict string

const (
	VerdictValid        Verdict = "VALID"
	VerdictInvalid      Verdict = "INVALID"
	VerdictReclassified Verdict = "RECLASSIFIED"
)

// FacetVerdict is one facet's validation outcome for one instance.
type FacetVerdict struct {
	Verdict   Verdict
	NewFacet  Facet // set when Verdict is RECLASSIFIED
	Rationale string
}

// VerdictMap holds validation outcomes keyed by instance ID, then facet.
type VerdictMap map[string]map[Facet]FacetVerdict

// ValidationError is the structured failure for a chapter whose validation
// could not be completed. Callers receive this instead of an empty verdict
// map, which would be indistinguishable from "validated with no
// corrections".
type ValidationError struct {
	Book          string
	Chapter       int
	InstanceCount int
	Cause         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s %d (%d instances): %v",
		e.Book, e.Chapter, e.InstanceCount, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }
