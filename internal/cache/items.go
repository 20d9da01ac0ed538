package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"market_briefing/internal/models"
)

// ErrItemNotCached is returned when a detail is stored for an item with no live item record.
var ErrItemNotCached = errors.New("cache: item record absent or expired")

// DefaultTTL applies to item, transcript and detail records alike.
const DefaultTTL = 24 * time.Hour

// ItemRecord is what the pipeline leaves behind for each processed item.
type ItemRecord struct {
	Item          models.Item `json:"item"`
	HasTranscript bool        `json:"has_transcript"`
}

type transcriptRecord struct {
	Text string `json:"text"`
}

func itemKey(id string) string       { return "item:" + id }
func transcriptKey(id string) string { return "transcript:" + id }
func detailKey(id string) string     { return "detail:" + id }

// ItemCache is the typed view over a Store used by the pipeline and the callback handler.
type ItemCache struct {
	store Store
	ttl   time.Duration
}

func NewItemCache(store Store, ttl time.Duration) *ItemCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ItemCache{store: store, ttl: ttl}
}

// DetailRef is the opaque button payload referencing an item's detail.
func DetailRef(id string) string { return detailKey(id) }

// ParseDetailRef reverses DetailRef.
func ParseDetailRef(ref string) (string, bool) {
	const p = "detail:"
	if len(ref) <= len(p) || ref[:len(p)] != p {
		return "", false
	}
	return ref[len(p):], true
}

func (c *ItemCache) PutItem(ctx context.Context, item models.Item, hasTranscript bool) error {
	return c.put(ctx, itemKey(item.ID), ItemRecord{Item: item, HasTranscript: hasTranscript})
}

func (c *ItemCache) GetItem(ctx context.Context, id string) (ItemRecord, bool, error) {
	var rec ItemRecord
	ok, err := c.get(ctx, itemKey(id), &rec)
	return rec, ok, err
}

func (c *ItemCache) PutTranscript(ctx context.Context, id, text string) error {
	return c.put(ctx, transcriptKey(id), transcriptRecord{Text: text})
}

func (c *ItemCache) GetTranscript(ctx context.Context, id string) (string, bool, error) {
	var rec transcriptRecord
	ok, err := c.get(ctx, transcriptKey(id), &rec)
	return rec.Text, ok, err
}

// PutDetail memoizes a detailed analysis. The item record must still be live.
func (c *ItemCache) PutDetail(ctx context.Context, id string, d models.DetailedAnalysis) error {
	if _, ok, err := c.GetItem(ctx, id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotCached, id)
	}
	return c.put(ctx, detailKey(id), d)
}

func (c *ItemCache) GetDetail(ctx context.Context, id string) (models.DetailedAnalysis, bool, error) {
	var d models.DetailedAnalysis
	ok, err := c.get(ctx, detailKey(id), &d)
	return d, ok, err
}

func (c *ItemCache) put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := c.store.Put(ctx, key, b, c.ttl); err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

func (c *ItemCache) get(ctx context.Context, key string, v any) (bool, error) {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}
