package analysis

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/tanakh"
)

//go:embed detection_system.tmpl
var detectionSystemPrompt string

//go:embed detection_user.tmpl
var detectionUserTmpl string

//go:embed validation_system.tmpl
var validationSystemPrompt string

//go:embed validation_user.tmpl
var validationUserTmpl string

var (
	detectionUserTemplate  = template.Must(template.New("detection_user").Parse(detectionUserTmpl))
	validationUserTemplate = template.Must(template.New("validation_user").Parse(validationUserTmpl))
)

// Prompt keys
const (
	DetectionSystemPromptKey  = "stages.detection.system"
	DetectionUserPromptKey    = "stages.detection.user"
	ValidationSystemPromptKey = "stages.validation.system"
	ValidationUserPromptKey   = "stages.validation.user"
)

// DetectionSystemPrompt returns the system prompt for chapter detection.
func DetectionSystemPrompt() string {
	return detectionSystemPrompt
}

// DetectionUserPrompt builds the batched user prompt covering every verse
// of one detection request.
func DetectionUserPrompt(book string, chapter int, verses []tanakh.Verse) string {
	var buf bytes.Buffer
	data := struct {
		Book    string
		Chapter int
		Verses  []tanakh.Verse
	}{Book: book, Chapter: chapter, Verses: verses}
	if err := detectionUserTemplate.Execute(&buf, data); err != nil {
		return detectionUserTmpl
	}
	return buf.String()
}

// ValidationSystemPrompt returns the system prompt for bulk validation.
func ValidationSystemPrompt() string {
	return validationSystemPrompt
}

type validationPromptInstance struct {
	ID             string
	VerseRef       string
	HebrewExcerpt  string
	EnglishExcerpt string
	Facets         []Facet
	Explanation    string
}

// ValidationUserPrompt builds the bulk user prompt listing every detected
// instance of one validation request.
func ValidationUserPrompt(book string, chapter int, instances []FigurativeInstance) string {
	items := make([]validationPromptInstance, 0, len(instances))
	for _, inst := range instances {
		items = append(items, validationPromptInstance{
			ID:             inst.ID,
			VerseRef:       inst.VerseRef,
			HebrewExcerpt:  inst.HebrewExcerpt,
			EnglishExcerpt: inst.EnglishExcerpt,
			Facets:         detectedFacets(inst),
			Explanation:    inst.Explanation,
		})
	}

	var buf bytes.Buffer
	data := struct {
		Book      string
		Chapter   int
		Instances []validationPromptInstance
	}{Book: book, Chapter: chapter, Instances: items}
	if err := validationUserTemplate.Execute(&buf, data); err != nil {
		return validationUserTmpl
	}
	return buf.String()
}

// detectedFacets lists an instance's yes facets in vocabulary order.
func detectedFacets(inst FigurativeInstance) []Facet {
	var out []Facet
	for _, f := range Facets {
		if inst.Detected[f] {
			out = append(out, f)
		}
	}
	return out
}
