package tracking

import (
	"time"

	"backend-touchgrass/internal/walk"
)

const (
	SubmissionPending   = "pending"
	SubmissionSubmitted = "submitted"
	SubmissionFailed    = "failed"
)

// WalkRecord is a finished walk as stored in walk_records.
type WalkRecord struct {
	ID                string    `json:"id"`
	Address           string    `json:"address"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	DurationMs        int64     `json:"duration_ms"`
	DistanceM         float64   `json:"distance_m"`
	PointCount        int       `json:"point_count"`
	Photos            []string  `json:"photos"`
	SubmissionStatus  string    `json:"submission_status"`
	SubmissionMessage string    `json:"submission_message,omitempty"`
	ExplorerURL       string    `json:"explorer_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type StartRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
}

type SamplesRequest struct {
	Samples []walk.LocationSample `json:"samples"`
}

type PhotoRequest struct {
	Ref string `json:"ref"`
}

type StopResponse struct {
	Record  WalkRecord   `json:"record"`
	Payload walk.Payload `json:"payload"`
}

// Event is the message pushed to stream subscribers of an address.
type Event struct {
	Type     string         `json:"type"`
	Snapshot *walk.Snapshot `json:"snapshot,omitempty"`
	Elapsed  string         `json:"elapsed,omitempty"`
	Record   *WalkRecord    `json:"record,omitempty"`
}

const (
	EventSnapshot   = "snapshot"
	EventSubmission = "submission"
)
