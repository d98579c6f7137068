package store

import (
	"fmt"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
)

// checkFacetVocabulary rejects payloads carrying facet names outside the
// allowed vocabulary. Acts as the domain constraint the sanitized retry
// pass coerces away.
func checkFacetVocabulary(payload *ChapterPayload) error {
	for _, inst := range payload.Instances {
		for _, set := range []analysis.FacetSet{inst.Detected, inst.Validated} {
			for facet := range set {
				if !analysis.KnownFacet(facet) {
					return fmt.Errorf("instance %s: facet %q outside vocabulary", inst.ID, facet)
				}
			}
		}
	}
	return nil
}

// sanitizePayload returns a copy of payload with out-of-vocabulary facets
// dropped, plus a description of each coercion.
func sanitizePayload(payload *ChapterPayload) (*ChapterPayload, []string) {
	out := *payload
	out.Instances = make([]analysis.FigurativeInstance, len(payload.Instances))

	var anomalies []string
	for i, inst := range payload.Instances {
		out.Instances[i] = inst

		clean, dropped := dropUnknownFacets(inst.Detected)
		out.Instances[i].Detected = clean
		for _, f := range dropped {
			anomalies = append(anomalies, fmt.Sprintf("%s: detected facet %q", inst.ID, f))
		}

		if inst.Validated != nil {
			clean, dropped = dropUnknownFacets(inst.Validated)
			out.Instances[i].Validated = clean
			out.Instances[i].Figurative = clean.AnyYes()
			for _, f := range dropped {
				anomalies = append(anomalies, fmt.Sprintf("%s: validated facet %q", inst.ID, f))
			}
		}
	}
	return &out, anomalies
}

func dropUnknownFacets(set analysis.FacetSet) (analysis.FacetSet, []analysis.Facet) {
	clean := make(analysis.FacetSet, len(set))
	var dropped []analysis.Facet
	for facet, yes := range set {
		if analysis.KnownFacet(facet) {
			clean[facet] = yes
		} else {
			dropped = append(dropped, facet)
		}
	}
	return clean, dropped
}
