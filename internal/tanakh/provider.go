// Package tanakh fetches biblical source text, verse by verse, from a
// Sefaria-compatible texts API.
package tanakh

import "context"

// Verse is one verse of source text with its translation.
type Verse struct {
	// Ref is the canonical reference, e.g. "Genesis 1:3".
	Ref     string
	Number  int
	Hebrew  string
	English string
}

// Provider supplies the verses of one chapter.
type Provider interface {
	FetchChapter(ctx context.Context, book string, chapter int) ([]Verse, error)
}
