// Package sources lists new videos per channel and fetches their captions.
package sources

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"market_briefing/internal/logger"
	"market_briefing/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	youtubeFeedURL  = "https://www.youtube.com/feeds/videos.xml?channel_id="
	youtubeWatchURL = "https://www.youtube.com/watch?v="
)

// VideoSource lists a channel's items published inside [start, end], newest first.
type VideoSource interface {
	ListItems(ctx context.Context, ch models.Channel, start, end time.Time) ([]models.Item, error)
}

// YouTubeFeed reads the public per-channel Atom feed. The feed carries no
// running time, so each in-window item's watch page is read for it.
type YouTubeFeed struct {
	parser   *gofeed.Parser
	client   *http.Client
	baseURL  string
	watchURL string
}

func NewYouTubeFeed(client *http.Client) *YouTubeFeed {
	if client == nil {
		client = http.DefaultClient
	}
	p := gofeed.NewParser()
	p.UserAgent = "market-briefing/1.0"
	p.Client = client
	return &YouTubeFeed{parser: p, client: client, baseURL: youtubeFeedURL, watchURL: youtubeWatchURL}
}

func (y *YouTubeFeed) ListItems(ctx context.Context, ch models.Channel, start, end time.Time) ([]models.Item, error) {
	feed, err := y.parser.ParseURLWithContext(y.baseURL+ch.ID, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", ch.Name, err)
	}

	items := make([]models.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi.PublishedParsed == nil {
			continue
		}
		published := *fi.PublishedParsed
		if published.Before(start) || published.After(end) {
			continue
		}
		id := videoID(fi)
		if id == "" {
			continue
		}
		desc, thumb := mediaGroup(fi.Extensions)
		if desc == "" {
			desc = fi.Description
		}
		link := fi.Link
		if link == "" {
			link = youtubeWatchURL + id
		}
		items = append(items, models.Item{
			ID:          id,
			Title:       strings.TrimSpace(fi.Title),
			Source:      ch.Name,
			Duration:    y.duration(ctx, id, fi.Extensions),
			PublishedAt: published,
			Description: cleanHTML(desc),
			Thumbnail:   thumb,
			URL:         link,
		})
	}

	SortNewestFirst(items)
	return items, nil
}

// SortNewestFirst orders items by publish time, newest first, ID breaking ties.
func SortNewestFirst(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func videoID(fi *gofeed.Item) string {
	if v := extValue(fi.Extensions, "yt", "videoId"); v != "" {
		return v
	}
	// Atom ids look like "yt:video:<id>".
	if i := strings.LastIndex(fi.GUID, ":"); i >= 0 && strings.HasPrefix(fi.GUID, "yt:video:") {
		return fi.GUID[i+1:]
	}
	return ""
}

func extValue(exts ext.Extensions, ns, name string) string {
	if vals := exts[ns][name]; len(vals) > 0 {
		return strings.TrimSpace(vals[0].Value)
	}
	return ""
}

func mediaGroup(exts ext.Extensions) (desc, thumb string) {
	groups := exts["media"]["group"]
	if len(groups) == 0 {
		return "", ""
	}
	g := groups[0]
	if d := g.Children["description"]; len(d) > 0 {
		desc = d[0].Value
	}
	if th := g.Children["thumbnail"]; len(th) > 0 {
		thumb = th[0].Attrs["url"]
	}
	return desc, thumb
}

// duration is best effort: a missing running time leaves the item at zero.
func (y *YouTubeFeed) duration(ctx context.Context, id string, exts ext.Extensions) time.Duration {
	if groups := exts["media"]["group"]; len(groups) > 0 {
		if c := groups[0].Children["content"]; len(c) > 0 {
			if secs, err := strconv.Atoi(c[0].Attrs["duration"]); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.watchURL+id, nil)
	if err != nil {
		return 0
	}
	resp, err := y.client.Do(req)
	if err != nil {
		logger.Debugf("Duration lookup %s failed: %v", id, err)
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Debugf("Duration lookup %s: HTTP %d", id, resp.StatusCode)
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0
	}
	content, _ := doc.Find(`meta[itemprop="duration"]`).Attr("content")
	return ParseISODuration(content)
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration reads the PT#H#M#S form used by schema.org metadata; anything else is zero.
func ParseISODuration(s string) time.Duration {
	m := isoDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	var d time.Duration
	for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second} {
		if n, err := strconv.Atoi(m[i+1]); err == nil {
			d += time.Duration(n) * unit
		}
	}
	return d
}

// cleanHTML strips markup from feed text.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
