package walk

import (
	"fmt"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StateActive, StatePaused, StateEnded} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("%w: unknown state %q", ErrValidation, text)
}

// LocationSample is a single reading from the location provider. Timestamp
// is milliseconds since the Unix epoch as reported by the provider.
type LocationSample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Snapshot is a point-in-time copy of a session handed to observers.
type Snapshot struct {
	SessionID         string          `json:"session_id,omitempty"`
	State             State           `json:"state"`
	SubmitterIdentity string          `json:"submitter_identity,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	DistanceKm        float64         `json:"distance_km"`
	Duration          time.Duration   `json:"-"`
	DurationMs        int64           `json:"duration_ms"`
	SampleCount       int             `json:"sample_count"`
	LastSample        *LocationSample `json:"last_sample,omitempty"`
	PhotoRefs         []string        `json:"photo_refs"`
}

// Payload is the finalized record of a completed walk. JSON names match the
// verify-mint endpoint.
type Payload struct {
	SessionID         string           `json:"-"`
	StartTime         int64            `json:"startTime"`
	EndTime           int64            `json:"endTime"`
	DurationMs        int64            `json:"duration"`
	DistanceMeters    float64          `json:"distance"`
	SubmitterIdentity string           `json:"userAddress"`
	Path              []LocationSample `json:"path"`
	PhotoRefs         []string         `json:"photos"`
}
