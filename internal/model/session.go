// Package model defines the core session data types.
package model

import "time"

// GeoSample is one timestamped position from a track log.
type GeoSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Elevation *float64  `json:"elevation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemState tracks a queue item through a grouping pass.
// Pending items are eligible for grouping, Claimed items belong to an
// uncommitted candidate, Committed items are consumed for good.
type ItemState int

const (
	Pending ItemState = iota
	Claimed
	Committed
)

func (s ItemState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Claimed:
		return "claimed"
	case Committed:
		return "committed"
	}
	return "unknown"
}

// MediaItem is one photo awaiting matching. The GPS and location fields are
// filled in once the photo has been matched against a track.
type MediaItem struct {
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
	State      ItemState `json:"-"`

	Latitude        float64  `json:"latitude,omitempty"`
	Longitude       float64  `json:"longitude,omitempty"`
	Elevation       *float64 `json:"elevation,omitempty"`
	Location        string   `json:"location,omitempty"`
	TimeDiffSeconds float64  `json:"time_diff_seconds,omitempty"`
}

// TrackItem is one pending track log or remote activity record.
// Source is a file path for GPX logs, or "strava:<id>" for remote activities
// whose samples are preloaded from the API streams.
type TrackItem struct {
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	State      ItemState `json:"-"`

	Samples []GeoSample `json:"-"`
}

// TrackMetrics holds activity metrics derived from a sample sequence.
// Always recomputed from samples; only cached inside a Session.
type TrackMetrics struct {
	DistanceMeters      float64   `json:"distance_meters"`
	DurationSeconds     float64   `json:"duration_seconds"`
	AverageSpeedKmh     float64   `json:"average_speed_kmh"`
	ElevationGainMeters float64   `json:"elevation_gain_meters"`
	StartTime           time.Time `json:"start_time,omitzero"`
	EndTime             time.Time `json:"end_time,omitzero"`
}

// CaptionResult is one generated caption for a matched photo.
type CaptionResult struct {
	MediaPath string `json:"media_path"`
	Text      string `json:"text"`
	Category  string `json:"category"`
}

// Session bundles one track with its matched media and derived outputs.
type Session struct {
	ID        string          `json:"id"`
	Track     TrackItem       `json:"track"`
	Media     []MediaItem     `json:"media"`
	Metrics   TrackMetrics    `json:"metrics"`
	Captions  []CaptionResult `json:"captions,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Caption categories, in decision-table priority order.
const (
	CategoryScenic      = "scenic"
	CategoryChallenging = "challenging"
	CategoryCasual      = "casual"
	CategoryMorning     = "morning"
	CategoryEvening     = "evening"
	CategoryBusiness    = "business"
)

// ValidCategories are the allowed caption categories.
var ValidCategories = map[string]bool{
	CategoryScenic:      true,
	CategoryChallenging: true,
	CategoryCasual:      true,
	CategoryMorning:     true,
	CategoryEvening:     true,
	CategoryBusiness:    true,
}
