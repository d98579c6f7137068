package extract

import (
	"encoding/json"
	"strings"
	"unicode"
)

// fencedBlock returns the contents of the first markdown code fence, if any.
func fencedBlock(raw string) string {
	idx := strings.Index(raw, "```")
	if idx < 0 {
		return ""
	}
	rest := raw[idx+3:]

	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || tag == "json" || tag == "JSON" {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		// Unterminated fence: take what's there, later strategies will
		// deal with any truncation.
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// delimitedBlock returns the span from the first opening delimiter to the
// matching last closing delimiter of the same kind.
func delimitedBlock(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	objStart := strings.IndexByte(trimmed, '{')
	arrStart := strings.IndexByte(trimmed, '[')

	start := -1
	closeChar := byte(0)
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		closeChar = '}'
	case arrStart >= 0:
		start = arrStart
		closeChar = ']'
	default:
		return ""
	}

	end := strings.LastIndexByte(trimmed, closeChar)
	if end <= start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// depthScan walks character-by-character counting container depth, aware of
// quoted-string boundaries, and returns the outermost complete structure
// even when no fences exist.
func depthScan(raw string) string {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	end, ok := scanBalanced(raw, start)
	if !ok {
		return ""
	}
	return raw[start : end+1]
}

// scanBalanced finds the end index of the complete JSON value opening at
// start. ok=false when the text ends before the structure closes.
func scanBalanced(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

// greedyBounds takes the widest span between any opener and any closer when
// depth counting came up imbalanced, letting the parser be the judge.
func greedyBounds(raw string) string {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(raw, "}]")
	if end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}

// bestCandidate narrows raw to its most plausible payload span, falling
// back to the raw text when no delimiters are found.
func bestCandidate(raw string) string {
	if c := delimitedBlock(raw); c != "" {
		return c
	}
	if c := fencedBlock(raw); c != "" {
		return c
	}
	return strings.TrimSpace(raw)
}

// looksTruncated reports whether the text appears cut off mid-payload:
// containers opened but never closed, or an unterminated string.
func looksTruncated(raw string) bool {
	candidate := bestCandidate(raw)
	if candidate == "" {
		return false
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return depth > 0 || inString
}

const maxRepairPasses = 50

// repairTruncation heuristically closes open strings and containers. If the
// closed text does not parse, it backs up to the previous record boundary
// and tries again, shedding at most the trailing partial record each pass.
func repairTruncation(raw string) string {
	candidate := bestCandidate(raw)
	if candidate == "" {
		return ""
	}

	for pass := 0; pass < maxRepairPasses; pass++ {
		repaired := closeOpenStructures(candidate)
		if json.Valid([]byte(repaired)) {
			return repaired
		}

		// Shed the trailing partial segment back to the previous comma
		// at any depth, then re-close.
		cut := strings.LastIndexByte(candidate, ',')
		if cut <= 0 {
			return ""
		}
		candidate = strings.TrimRight(candidate[:cut], " \t\r\n")
	}
	return ""
}

// closeOpenStructures appends the closers needed to balance the text.
func closeOpenStructures(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}

	// Trailing comma or bare key would still break the parse.
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	out = strings.TrimSuffix(out, ":")

	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// scanRecords reconstructs records object-by-object from the record array
// region, skipping only individually malformed records. Returns the
// recovered records and the count skipped.
func scanRecords(raw string, recordKey string) ([]json.RawMessage, int) {
	region := recordRegion(raw, recordKey)
	if region == "" {
		return nil, 0
	}

	var records []json.RawMessage
	skipped := 0

	i := 0
	for i < len(region) {
		start := strings.IndexByte(region[i:], '{')
		if start < 0 {
			break
		}
		start += i

		end, ok := scanBalanced(region, start)
		if !ok {
			// Trailing incomplete record.
			skipped++
			break
		}

		rec := region[start : end+1]
		if json.Valid([]byte(rec)) {
			records = append(records, json.RawMessage(rec))
		} else {
			skipped++
		}
		i = end + 1
	}

	return records, skipped
}

// recordRegion locates the text span holding the record array: everything
// after `"<key>":` when present, otherwise the whole best candidate.
func recordRegion(raw string, key string) string {
	candidate := bestCandidate(raw)
	if candidate == "" {
		return ""
	}
	marker := `"` + key + `"`
	if idx := strings.Index(candidate, marker); idx >= 0 {
		rest := candidate[idx+len(marker):]
		if arr := strings.IndexByte(rest, '['); arr >= 0 {
			return rest[arr:]
		}
	}
	return candidate
}

// fixStringEscapes applies targeted fixes for the most common analyzer
// output defect: literal control characters and unescaped quotes inside
// free-text fields.
func fixStringEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}

		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			// A quote inside a string is a terminator only when followed
			// by structural syntax; otherwise treat it as unescaped text.
			if quoteTerminates(s, i) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// quoteTerminates reports whether the quote at index i plausibly ends a
// JSON string: the next non-space character must be structural.
func quoteTerminates(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\r', '\n':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	// End of text: treat as terminator.
	return true
}

// sanitize strips control characters outside strings, drops invalid UTF-8,
// and removes a leading BOM.
func sanitize(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToValidUTF8(s, "")

	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			// Escape stray control characters instead of dropping
			// content from free-text fields.
			if r == '\n' {
				b.WriteString(`\n`)
				continue
			}
			if r != '\r' && unicode.IsControl(r) && r != '\t' {
				continue
			}
			b.WriteRune(r)
			continue
		}

		if r == '"' {
			inString = true
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// progressiveRecords parses left-to-right, accepting every prefix that
// forms a complete well-typed record and discarding the unparseable
// remainder. Recovers most data even from heavily corrupted tails.
func progressiveRecords(raw string, recordKey string) []json.RawMessage {
	region := recordRegion(raw, recordKey)
	if region == "" {
		return nil
	}

	var records []json.RawMessage
	i := 0
	for i < len(region) {
		start := strings.IndexByte(region[i:], '{')
		if start < 0 {
			break
		}
		start += i

		end, ok := scanBalanced(region, start)
		if !ok {
			break
		}

		rec := region[start : end+1]
		if !json.Valid([]byte(rec)) {
			// First corrupt record ends the salvageable prefix.
			break
		}
		records = append(records, json.RawMessage(rec))
		i = end + 1
	}
	return records
}
