package models

import "time"

// Item is one piece of source video content. Immutable once fetched.
type Item struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Source      string        `json:"source"` // channel display name
	Duration    time.Duration `json:"duration"`
	PublishedAt time.Time     `json:"published_at"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	URL         string        `json:"url"`
}

// Channel is a configured video source.
type Channel struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// RunKind distinguishes the morning briefing from the intraday update.
type RunKind string

const (
	RunFull   RunKind = "full"
	RunUpdate RunKind = "update"
)

// ProcessedItem pairs an item with its brief analysis.
type ProcessedItem struct {
	Item          Item          `json:"item"`
	Analysis      BriefAnalysis `json:"analysis"`
	HasTranscript bool          `json:"has_transcript"`
}

// DeliveryPlan is everything one pipeline run hands to the delivery channel.
type DeliveryPlan struct {
	Kind    RunKind         `json:"kind"`
	Date    time.Time       `json:"date"`
	Market  *MarketSnapshot `json:"market"`
	Items   []ProcessedItem `json:"items"`
	Insight string          `json:"insight"`
}
