package tanakh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	// DefaultBaseURL is the public Sefaria texts API.
	DefaultBaseURL = "https://www.sefaria.org/api"

	fetchAttempts = 4
	fetchDelay    = 2 * time.Second
)

// Client fetches chapter text over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewClient creates a text client. baseURL defaults to the public API.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "tanakh"),
		retryDelay: fetchDelay,
	}
}

type textsResponse struct {
	Ref  string `json:"ref"`
	Text []any  `json:"text"`
	He   []any  `json:"he"`
}

// FetchChapter retrieves one chapter's verses, retrying transient failures.
func (c *Client) FetchChapter(ctx context.Context, book string, chapter int) ([]Verse, error) {
	url := fmt.Sprintf("%s/texts/%s.%d?context=0&commentary=0", c.baseURL, book, chapter)

	var payload textsResponse
	err := retry.Do(
		func() error {
			return c.fetchOnce(ctx, url, &payload)
		},
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %d: %w", book, chapter, err)
	}

	english := flattenText(payload.Text)
	hebrew := flattenText(payload.He)
	count := len(english)
	if len(hebrew) > count {
		count = len(hebrew)
	}
	if count == 0 {
		return nil, fmt.Errorf("fetch %s %d: empty chapter text", book, chapter)
	}

	verses := make([]Verse, 0, count)
	for i := 0; i < count; i++ {
		v := Verse{
			Ref:    fmt.Sprintf("%s %d:%d", book, chapter, i+1),
			Number: i + 1,
		}
		if i < len(hebrew) {
			v.Hebrew = stripMarkup(hebrew[i])
		}
		if i < len(english) {
			v.English = stripMarkup(english[i])
		}
		verses = append(verses, v)
	}

	c.logger.Debug("fetched chapter", "book", book, "chapter", chapter, "verses", len(verses))
	return verses, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string, out *textsResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("texts API status %d", resp.StatusCode)
	default:
		return retry.Unrecoverable(fmt.Errorf("texts API status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode texts response: %w", err))
	}
	return nil
}

// flattenText coerces the API's loosely-typed text array to strings,
// skipping non-string entries.
func flattenText(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, "")
		}
	}
	return out
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&thinsp;", " ",
)

// stripMarkup removes the inline HTML the texts API embeds in verse text
// (italics, footnote markers) and decodes common entities. Footnote
// superscripts are dropped whole: their inner text is a marker, not part
// of the verse.
func stripMarkup(s string) string {
	var b, tag strings.Builder
	b.Grow(len(s))

	inTag := false
	supDepth := 0
	for _, r := range s {
		switch {
		case inTag:
			if r == '>' {
				inTag = false
				name, _, _ := strings.Cut(strings.ToLower(tag.String()), " ")
				switch name {
				case "sup":
					supDepth++
				case "/sup":
					if supDepth > 0 {
						supDepth--
					}
				}
			} else {
				tag.WriteRune(r)
			}
		case r == '<':
			inTag = true
			tag.Reset()
		case supDepth > 0:
			// footnote marker text
		default:
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(strings.Join(strings.Fields(entityReplacer.Replace(b.String())), " "))
}
