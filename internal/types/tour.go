package types

import (
	"time"

	"github.com/google/uuid"
)

// Category is an interest category a tour can focus on.
type Category string

const (
	CategoryHistory      Category = "history"
	CategoryCulture      Category = "cultural"
	CategoryArchitecture Category = "architecture"
	CategoryArt          Category = "art"
	CategoryNature       Category = "nature"
)

// CategoryPlaceTypes maps a tour category to the place types the POI
// provider understands.
var CategoryPlaceTypes = map[Category][]string{
	CategoryHistory: {
		"historical_place", "monument", "historical_landmark", "cultural_landmark",
		"courthouse", "city_hall", "government_office", "embassy",
		"cultural_center", "museum",
	},
	CategoryCulture: {
		"art_gallery", "museum", "performing_arts_theater", "cultural_center",
		"tourist_attraction", "cultural_landmark", "historical_landmark",
		"market", "community_center", "event_venue", "historical_place", "plaza",
	},
	CategoryArt: {
		"art_gallery", "art_studio", "sculpture", "museum", "cultural_center",
		"performing_arts_theater", "opera_house", "concert_hall",
		"philharmonic_hall", "cultural_landmark",
	},
	CategoryArchitecture: {
		"cultural_landmark", "monument", "church", "hindu_temple",
		"mosque", "synagogue", "stadium", "opera_house", "university",
		"city_hall", "courthouse", "concert_hall", "convention_center",
		"amphitheatre", "historical_landmark",
	},
	CategoryNature: {
		"park", "national_park", "state_park", "botanical_garden",
		"garden", "wildlife_park", "zoo", "aquarium", "beach", "hiking_area",
		"wildlife_refuge", "observation_deck", "marina", "picnic_ground",
	},
}

// PlaceTypesFor returns the provider place types for a category, falling
// back to tourist_attraction for unknown categories.
func PlaceTypesFor(c Category) []string {
	if types, ok := CategoryPlaceTypes[c]; ok {
		return types
	}
	return []string{"tourist_attraction"}
}

// Mode distinguishes guest from authenticated callers. The upstream gateway
// validates the caller and supplies the mode; it is never inferred here.
type Mode string

const (
	ModeGuest         Mode = "guest"
	ModeAuthenticated Mode = "authenticated"
)

// TourRequest is the immutable input of a pipeline run.
type TourRequest struct {
	Lat             float64    `json:"lat"`
	Lon             float64    `json:"lon"`
	PlaceHint       string     `json:"place_hint,omitempty"`
	RadiusMeters    int        `json:"radius_meters"`
	DurationMinutes int        `json:"duration_minutes"`
	Categories      []Category `json:"categories"`
	Language        string     `json:"language"`
	Mode            Mode       `json:"mode"`
}

// Location is a canonical location descriptor produced by the geolocation
// resolver.
type Location struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	PlaceName string  `json:"place_name,omitempty"`
}

// PointOfInterest is one candidate stop, immutable after retrieval. Position
// is the geographic visiting order assigned by the places retriever.
type PointOfInterest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Category  Category `json:"category"`
	Address   string   `json:"address,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	PhotoRefs []string `json:"photo_refs,omitempty"`
	Position  int      `json:"position"`
}

// SegmentStatus tracks a per-POI sub-task through script and audio
// generation.
type SegmentStatus string

const (
	SegmentScriptPending SegmentStatus = "SCRIPT_PENDING"
	SegmentScriptDone    SegmentStatus = "SCRIPT_DONE"
	SegmentAudioPending  SegmentStatus = "AUDIO_PENDING"
	SegmentAudioDone     SegmentStatus = "AUDIO_DONE"
	SegmentFailed        SegmentStatus = "SEGMENT_FAILED"
)

// Terminal reports whether the sub-task has finished, successfully or not.
func (s SegmentStatus) Terminal() bool {
	return s == SegmentAudioDone || s == SegmentFailed
}

// Segment is one POI's narration and audio unit within a tour.
type Segment struct {
	POIID                    string        `json:"poi_id"`
	POIName                  string        `json:"poi_name"`
	Position                 int           `json:"position"`
	ScriptText               string        `json:"script_text,omitempty"`
	AudioAssetRef            string        `json:"audio_asset_ref,omitempty"`
	EstimatedDurationSeconds int           `json:"estimated_duration_seconds"`
	Status                   SegmentStatus `json:"status"`
	FailureReason            string        `json:"failure_reason,omitempty"`
}

// DroppedPOI records why a POI was excluded from the assembled tour.
type DroppedPOI struct {
	POIID  string `json:"poi_id"`
	Reason string `json:"reason"`
}

type TourStatus string

const TourReady TourStatus = "READY"

// Tour is the assembled result for one fingerprint. Owned by the pipeline
// run that builds it; read-only for everyone else once READY.
type Tour struct {
	ID            uuid.UUID    `json:"id"`
	Fingerprint   string       `json:"fingerprint"`
	Segments      []Segment    `json:"segments"`
	OverallStatus TourStatus   `json:"overall_status"`
	Degraded      bool         `json:"degraded"`
	DroppedPOIs   []DroppedPOI `json:"dropped_pois,omitempty"`
	TotalSeconds  int          `json:"total_seconds"`
	CreatedAt     time.Time    `json:"created_at"`
}

// TourPreview is the truncated guest-facing projection of a Tour.
type TourPreview struct {
	TourID            uuid.UUID `json:"tour_id"`
	Fingerprint       string    `json:"fingerprint"`
	Preview           bool      `json:"preview"`
	Segments          []Segment `json:"segments"`
	RemainingSegments int       `json:"remaining_segments"`
}
