package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
)

func detectedInstances() []FigurativeInstance {
	return []FigurativeInstance{
		{
			ID:             "Genesis.1.2.1",
			VerseRef:       "Genesis 1:2",
			EnglishExcerpt: "the earth was unformed",
			Detected:       FacetSet{FacetPersonification: true},
		},
		{
			ID:             "Genesis.1.3.1",
			VerseRef:       "Genesis 1:3",
			EnglishExcerpt: "And God said",
			Detected:       FacetSet{FacetMetaphor: true},
		},
	}
}

func newTestValidator(mock *providers.MockClient) *Validator {
	return NewValidator(mock, extract.New(nil), nil, ValidatorOptions{})
}

func TestValidateChapter(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Script(`{"validations": [
		{"instance_id": "Genesis.1.2.1", "verdicts": [
			{"facet": "personification", "verdict": "VALID", "reclassified_to": "", "rationale": ""}
		]},
		{"instance_id": "Genesis.1.3.1", "verdicts": [
			{"facet": "metaphor", "verdict": "RECLASSIFIED", "reclassified_to": "metonymy", "rationale": "speech stands for creative act"}
		]}
	]}`)

	v := newTestValidator(mock)
	verdicts, err := v.ValidateChapter(context.Background(), "Genesis", 1, detectedInstances())
	if err != nil {
		t.Fatalf("ValidateChapter: %v", err)
	}

	if len(verdicts) != 2 {
		t.Fatalf("verdict entries = %d, want 2", len(verdicts))
	}
	if fv := verdicts["Genesis.1.2.1"][FacetPersonification]; fv.Verdict != VerdictValid {
		t.Errorf("personification verdict = %q", fv.Verdict)
	}
	fv := verdicts["Genesis.1.3.1"][FacetMetaphor]
	if fv.Verdict != VerdictReclassified || fv.NewFacet != FacetMetonymy {
		t.Errorf("reclassification = %+v", fv)
	}
	if fv.Rationale == "" {
		t.Error("reclassification rationale dropped")
	}
}

func TestValidateChapterEmptyInstanceList(t *testing.T) {
	v := newTestValidator(providers.NewMockClient())
	verdicts, err := v.ValidateChapter(context.Background(), "Genesis", 1, nil)
	if err != nil {
		t.Fatalf("ValidateChapter: %v", err)
	}
	if len(verdicts) != 0 {
		t.Errorf("verdicts = %d, want 0", len(verdicts))
	}
}

func TestValidateChapterBackendFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ShouldFail = true

	v := newTestValidator(mock)
	_, err := v.ValidateChapter(context.Background(), "Genesis", 1, detectedInstances())

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Book != "Genesis" || verr.Chapter != 1 || verr.InstanceCount != 2 {
		t.Errorf("failure context = %+v", verr)
	}
	if verr.Cause == nil {
		t.Error("failure must carry the underlying cause")
	}
}

func TestValidateChapterUnusableResponse(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = "I cannot produce verdicts for these instances."

	v := newTestValidator(mock)
	_, err := v.ValidateChapter(context.Background(), "Genesis", 1, detectedInstances())

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError (never an empty map)", err)
	}
}

func TestReconcile(t *testing.T) {
	instances := []FigurativeInstance{
		{ID: "a", Detected: FacetSet{FacetMetaphor: true}},
		{ID: "b", Detected: FacetSet{FacetSimile: true}},
		{ID: "c", Detected: FacetSet{FacetIdiom: true, FacetHyperbole: true}},
		{ID: "d", Detected: FacetSet{FacetMetonymy: true}},
	}
	verdicts := VerdictMap{
		"a": {FacetMetaphor: {Verdict: VerdictValid}},
		"b": {FacetSimile: {Verdict: VerdictInvalid, Rationale: "plain comparison of quantities"}},
		"c": {
			FacetIdiom:     {Verdict: VerdictReclassified, NewFacet: FacetMetonymy, Rationale: "fixed phrase stands in for its referent"},
			FacetHyperbole: {Verdict: VerdictValid},
		},
		// "d" has no verdict: validation never covered it.
	}

	out := Reconcile(instances, verdicts)

	a := out[0]
	if !a.Validated[FacetMetaphor] || !a.Figurative {
		t.Errorf("VALID must keep the facet: %+v", a)
	}

	b := out[1]
	if b.Validated[FacetSimile] {
		t.Error("INVALID must flip the facet to no")
	}
	if b.Figurative {
		t.Error("instance with no validated facet must not be figurative")
	}
	if b.ValidationRationale == "" {
		t.Error("rejection rationale dropped")
	}

	c := out[2]
	if c.Validated[FacetIdiom] {
		t.Error("RECLASSIFIED must clear the original facet")
	}
	if !c.Validated[FacetMetonymy] {
		t.Error("RECLASSIFIED must set the target facet")
	}
	if !c.Validated[FacetHyperbole] {
		t.Error("unrelated VALID facet lost")
	}
	if !c.Figurative {
		t.Error("instance with a validated facet must be figurative")
	}

	d := out[3]
	if d.Validated != nil {
		t.Error("uncovered instance must stay unvalidated for reconciliation")
	}

	// Inputs are never mutated.
	if instances[2].Validated != nil {
		t.Error("Reconcile mutated its input")
	}
}

func TestReconcileReclassificationWinsOverInvalid(t *testing.T) {
	// A reclassification into metaphor and a direct INVALID on metaphor
	// collide on the same facet. The outcome must not depend on map
	// iteration order: the reclassification target stays yes.
	instances := []FigurativeInstance{
		{ID: "a", Detected: FacetSet{FacetSimile: true, FacetMetaphor: true}},
	}
	verdicts := VerdictMap{
		"a": {
			FacetSimile:   {Verdict: VerdictReclassified, NewFacet: FacetMetaphor},
			FacetMetaphor: {Verdict: VerdictInvalid, Rationale: "literal statement"},
		},
	}

	for i := 0; i < 100; i++ {
		out := Reconcile(instances, verdicts)
		a := out[0]
		if a.Validated[FacetSimile] {
			t.Fatal("RECLASSIFIED must clear the original facet")
		}
		if !a.Validated[FacetMetaphor] {
			t.Fatal("reclassification target must stay yes despite a direct INVALID")
		}
		if !a.Figurative {
			t.Fatal("instance with a validated facet must be figurative")
		}
	}
}
