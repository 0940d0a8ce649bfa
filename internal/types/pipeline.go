package types

import (
	"time"
)

// RunState is a pipeline run's position in the stage machine.
type RunState string

const (
	StateReceived           RunState = "RECEIVED"
	StateLocating           RunState = "LOCATING"
	StateFetchingPlaces     RunState = "FETCHING_PLACES"
	StateGeneratingSegments RunState = "GENERATING_SEGMENTS"
	StateAssembling         RunState = "ASSEMBLING"
	StateReady              RunState = "READY"
	StateRetrying           RunState = "RETRYING"
	StateFailed             RunState = "FAILED"
)

// Terminal reports whether the run can no longer make progress.
func (s RunState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// StageEvent advances a run through the transition table.
type StageEvent string

const (
	EventStart          StageEvent = "START"
	EventLocated        StageEvent = "LOCATED"
	EventPlacesFetched  StageEvent = "PLACES_FETCHED"
	EventSegmentsDone   StageEvent = "SEGMENTS_DONE"
	EventAssembled      StageEvent = "ASSEMBLED"
	EventStageFailed    StageEvent = "STAGE_FAILED"
	EventAbort          StageEvent = "ABORT"
)

// Checkpoint is the last fully completed stage and its outputs, persisted
// after every transition so a restart resumes instead of recomputing.
type Checkpoint struct {
	Stage    RunState          `json:"stage"`
	Location *Location         `json:"location,omitempty"`
	POIs     []PointOfInterest `json:"pois,omitempty"`
	Segments []Segment         `json:"segments,omitempty"`
}

// StatusRecord is the externally visible status persisted per fingerprint.
type StatusRecord struct {
	Fingerprint string    `json:"fingerprint"`
	State       RunState  `json:"state"`
	Degraded    bool      `json:"degraded"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}
