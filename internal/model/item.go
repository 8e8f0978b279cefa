// Package model defines the core types for earlywire.
//
// Items arrive from ingestion already tagged with a source, a credibility
// tier, a region and a timestamp. This package owns the shared vocabulary;
// the activity, anomaly and cascade packages operate on it.
package model

import "time"

// Region identifies one of the fixed monitored regions.
type Region string

const (
	RegionUkraine    Region = "ukraine"
	RegionMiddleEast Region = "middle_east"
	RegionTaiwan     Region = "taiwan_strait"
	RegionKorea      Region = "korean_peninsula"
	RegionCaucasus   Region = "caucasus"
	RegionSahel      Region = "sahel"

	// RegionAll is the pseudo-region whose activity rows aggregate every
	// real region and carry the per-region breakdown maps.
	RegionAll Region = "all"
)

// Regions lists every real (non-pseudo) region.
func Regions() []Region {
	return []Region{
		RegionUkraine,
		RegionMiddleEast,
		RegionTaiwan,
		RegionKorea,
		RegionCaucasus,
		RegionSahel,
	}
}

// AlertStatus is the cascade badge attached to an item per evaluation.
// It is recomputed from scratch on every batch and never persisted.
type AlertStatus string

const (
	StatusNone       AlertStatus = ""
	StatusFirst      AlertStatus = "first"
	StatusDeveloping AlertStatus = "developing"
	StatusConfirmed  AlertStatus = "confirmed"
)

// Item is a single post flowing through the pipeline.
//
// Everything except the decoration fields is read-only to this engine:
// Status, ConfirmedBy and Anomaly are attached by the cascade classifier
// and the anomaly detector and are not persisted.
type Item struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Body      string      `json:"body,omitempty"`
	Published time.Time   `json:"published"`
	Region    Region      `json:"region"`
	Source    *SourceRef  `json:"source"`
	Platform  string      `json:"platform"` // "bluesky", "telegram", "mastodon", ...

	// Decorations, attached per batch.
	Status      AlertStatus            `json:"status,omitempty"`
	ConfirmedBy string                 `json:"confirmed_by,omitempty"`
	Anomaly     *SourceActivityProfile `json:"anomaly,omitempty"`
}

// Text returns the searchable text of an item (title plus body).
func (it Item) Text() string {
	if it.Body == "" {
		return it.Title
	}
	return it.Title + " " + it.Body
}

// Age returns how long before now the item was published.
// Future-dated items report zero age.
func (it Item) Age(now time.Time) time.Duration {
	age := now.Sub(it.Published)
	if age < 0 {
		return 0
	}
	return age
}

// SourceActivityProfile is the per-source posting-rate verdict for one
// evaluation window. Computed fresh for every batch, never stored.
type SourceActivityProfile struct {
	SourceID          string  `json:"source_id"`
	EffectiveBaseline float64 `json:"effective_baseline"` // posts/day
	Observed          int     `json:"observed"`
	Expected          float64 `json:"expected"`
	Ratio             float64 `json:"ratio"` // observed/expected, one decimal
	Anomalous         bool    `json:"anomalous"`
}
