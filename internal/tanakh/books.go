package tanakh

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Book is one canonical book of the corpus.
type Book struct {
	ID       string
	Chapters int
}

// Torah lists the supported books in canonical order.
var Torah = []Book{
	{ID: "Genesis", Chapters: 50},
	{ID: "Exodus", Chapters: 40},
	{ID: "Leviticus", Chapters: 27},
	{ID: "Numbers", Chapters: 36},
	{ID: "Deuteronomy", Chapters: 34},
}

// LookupBook resolves a book ID case-insensitively.
func LookupBook(id string) (Book, error) {
	needle := strings.ToLower(strings.TrimSpace(id))
	for _, b := range Torah {
		if strings.ToLower(b.ID) == needle {
			return b, nil
		}
	}
	return Book{}, fmt.Errorf("unknown book %q", id)
}

// ParseChapterSelector expands a chapter selector against a book's chapter
// count. Accepted forms: "all", "3", "1-5", and comma lists of those.
func ParseChapterSelector(selector string, book Book) ([]int, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.EqualFold(selector, "all") {
		chapters := make([]int, book.Chapters)
		for i := range chapters {
			chapters[i] = i + 1
		}
		return chapters, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > book.Chapters {
			return nil, fmt.Errorf("chapter range %q outside %s 1-%d", part, book.ID, book.Chapters)
		}
		for ch := lo; ch <= hi; ch++ {
			seen[ch] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("empty chapter selector %q", selector)
	}

	chapters := make([]int, 0, len(seen))
	for ch := range seen {
		chapters = append(chapters, ch)
	}
	sort.Ints(chapters)
	return chapters, nil
}

func parseRange(part string) (int, int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, 0, fmt.Errorf("bad chapter range %q", part)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, fmt.Errorf("bad chapter range %q", part)
		}
		if end < start {
			return 0, 0, fmt.Errorf("inverted chapter range %q", part)
		}
		return start, end, nil
	}

	ch, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("bad chapter %q", part)
	}
	return ch, ch, nil
}
