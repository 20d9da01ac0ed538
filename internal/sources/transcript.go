package sources

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTranscript means no caption track exists in any of the requested languages.
var ErrNoTranscript = errors.New("sources: no transcript")

const timedTextURL = "https://www.youtube.com/api/timedtext"

// TranscriptSource fetches the caption text for an item.
type TranscriptSource interface {
	Fetch(ctx context.Context, itemID string) (string, error)
}

// TimedText reads caption tracks from the timedtext endpoint, trying each language in order.
type TimedText struct {
	client    *http.Client
	baseURL   string
	languages []string
}

func NewTimedText(client *http.Client, languages ...string) *TimedText {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if len(languages) == 0 {
		languages = []string{"ko", "en"}
	}
	return &TimedText{client: client, baseURL: timedTextURL, languages: languages}
}

func (t *TimedText) Fetch(ctx context.Context, itemID string) (string, error) {
	for _, lang := range t.languages {
		text, err := t.fetchLang(ctx, itemID, lang)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoTranscript, itemID)
}

func (t *TimedText) fetchLang(ctx context.Context, itemID, lang string) (string, error) {
	q := url.Values{"v": {itemID}, "lang": {lang}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("timedtext %s: %w", itemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("timedtext %s: status %d: %s", itemID, resp.StatusCode, b)
	}
	return parseTimedText(resp.Body)
}

// parseTimedText joins the <text> cues of a caption track into one paragraph.
// Cue text is often entity-encoded twice.
func parseTimedText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse timedtext: %w", err)
	}
	var parts []string
	doc.Find("text").Each(func(_ int, sel *goquery.Selection) {
		line := strings.Join(strings.Fields(html.UnescapeString(sel.Text())), " ")
		if line != "" {
			parts = append(parts, line)
		}
	})
	return strings.Join(parts, " "), nil
}
