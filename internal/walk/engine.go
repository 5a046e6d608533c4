package walk

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Observer receives a snapshot after every mutation. It runs inside the
// engine's mutation boundary and must not call back into the Engine.
type Observer func(Snapshot)

type Option func(*Engine)

func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithDistanceModel(model DistanceModel) Option {
	return func(e *Engine) {
		if model != nil {
			e.model = model
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// Engine owns at most one walk session at a time. All mutations are
// serialized by a single mutex; rejected calls leave the session untouched.
type Engine struct {
	mu       sync.Mutex
	clock    Clock
	model    DistanceModel
	observer Observer
	current  *session
}

type session struct {
	id         string
	state      State
	identity   string
	startTime  time.Time
	endTime    time.Time
	distanceKm float64
	duration   time.Duration
	path       []LocationSample
	photos     []string
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock: SystemClock{},
		model: Haversine{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a session for identity. seed, when non-nil, becomes the first
// path sample.
func (e *Engine) Start(identity string, seed *LocationSample) (Snapshot, error) {
	if strings.TrimSpace(identity) == "" {
		return Snapshot{}, fmt.Errorf("%w: submitter identity required", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return Snapshot{}, fmt.Errorf("%w: session %s is already %s", ErrValidation, e.current.id, e.current.state)
	}

	s := &session{
		id:        uuid.NewString(),
		state:     StateActive,
		identity:  identity,
		startTime: e.clock.Now(),
	}
	if seed != nil {
		s.path = append(s.path, *seed)
	}
	e.current = s
	return e.emit(s), nil
}

// Ingest appends a sample to the active session's path. Append order is
// authoritative; timestamps are never used to reorder.
func (e *Engine) Ingest(sample LocationSample) (Snapshot, error) {
	return e.ingest("", sample)
}

func (e *Engine) ingest(id string, sample LocationSample) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.require("ingest sample", id, StateActive)
	if err != nil {
		return Snapshot{}, err
	}

	if n := len(s.path); n > 0 {
		s.distanceKm += nonNegative(e.model.Between(s.path[n-1], sample))
	}
	s.path = append(s.path, sample)
	s.duration = e.elapsed(s)
	return e.emit(s), nil
}

// Tick recomputes the running duration. It is a no-op while paused.
func (e *Engine) Tick() (Snapshot, error) {
	return e.tick("")
}

func (e *Engine) tick(id string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.require("tick", id, StateActive, StatePaused)
	if err != nil {
		return Snapshot{}, err
	}
	if s.state == StatePaused {
		return s.snapshot(), nil
	}

	s.duration = e.elapsed(s)
	s.distanceKm += nonNegative(e.model.OnTick())
	return e.emit(s), nil
}

func (e *Engine) Pause() (Snapshot, error) {
	return e.pause("")
}

func (e *Engine) pause(id string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.require("pause", id, StateActive)
	if err != nil {
		return Snapshot{}, err
	}
	s.duration = e.elapsed(s)
	s.state = StatePaused
	return e.emit(s), nil
}

// Resume reactivates a paused session. The start time is kept, so the next
// tick measures from the original start.
func (e *Engine) Resume() (Snapshot, error) {
	return e.resume("")
}

func (e *Engine) resume(id string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.require("resume", id, StatePaused)
	if err != nil {
		return Snapshot{}, err
	}
	s.state = StateActive
	return e.emit(s), nil
}

func (e *Engine) AddPhoto(ref string) (Snapshot, error) {
	return e.addPhoto("", ref)
}

func (e *Engine) addPhoto(id, ref string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.require("add photo", id, StateActive, StatePaused)
	if err != nil {
		return Snapshot{}, err
	}
	if strings.TrimSpace(ref) == "" {
		return Snapshot{}, fmt.Errorf("%w: photo reference required", ErrValidation)
	}
	s.photos = append(s.photos, ref)
	return e.emit(s), nil
}

// Stop finalizes the live session and returns its payload. The engine is
// idle again once Stop returns.
func (e *Engine) Stop() (Payload, error) {
	return e.stop("")
}

func (e *Engine) stop(id string) (Payload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.require("stop", id, StateActive, StatePaused)
	if err != nil {
		return Payload{}, err
	}

	end := e.clock.Now()
	if end.Before(s.startTime) {
		end = s.startTime
	}
	s.endTime = end
	s.duration = end.Sub(s.startTime)
	s.state = StateEnded
	e.emit(s)

	payload := s.payload()
	e.current = nil
	return payload, nil
}

// Abort discards the live session without producing a payload. It reports
// whether a session was discarded.
func (e *Engine) Abort() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abortLocked()
}

// abortSession discards the live session only if it is the one identified by
// id, so a late cleanup cannot kill a newer session.
func (e *Engine) abortSession(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.id != id {
		return false
	}
	return e.abortLocked()
}

func (e *Engine) abortLocked() bool {
	s := e.current
	if s == nil {
		return false
	}
	e.current = nil
	s.state = StateIdle
	e.emit(s)
	return true
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return Snapshot{State: StateIdle, PhotoRefs: []string{}}
	}
	return e.current.snapshot()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return StateIdle
	}
	return e.current.state
}

// require returns the live session if it is in one of the allowed states.
// A non-empty id additionally pins the call to that session.
func (e *Engine) require(op, id string, allowed ...State) (*session, error) {
	if e.current == nil {
		return nil, fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, StateIdle)
	}
	if id != "" && e.current.id != id {
		return nil, fmt.Errorf("%w: session %s is no longer live", ErrInvalidState, id)
	}
	for _, st := range allowed {
		if e.current.state == st {
			return e.current, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, e.current.state)
}

func (e *Engine) elapsed(s *session) time.Duration {
	d := e.clock.Now().Sub(s.startTime)
	if d < s.duration {
		return s.duration
	}
	return d
}

func (e *Engine) emit(s *session) Snapshot {
	snap := s.snapshot()
	if e.observer != nil {
		e.observer(snap)
	}
	return snap
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:         s.id,
		State:             s.state,
		SubmitterIdentity: s.identity,
		StartTime:         s.startTime,
		EndTime:           s.endTime,
		DistanceKm:        s.distanceKm,
		Duration:          s.duration,
		DurationMs:        s.duration.Milliseconds(),
		SampleCount:       len(s.path),
		PhotoRefs:         append([]string{}, s.photos...),
	}
	if n := len(s.path); n > 0 {
		last := s.path[n-1]
		snap.LastSample = &last
	}
	return snap
}

func (s *session) payload() Payload {
	start := s.startTime.UnixMilli()
	end := s.endTime.UnixMilli()
	return Payload{
		SessionID:         s.id,
		StartTime:         start,
		EndTime:           end,
		DurationMs:        end - start,
		DistanceMeters:    s.distanceKm * 1000,
		SubmitterIdentity: s.identity,
		Path:              append([]LocationSample{}, s.path...),
		PhotoRefs:         append([]string{}, s.photos...),
	}
}

func nonNegative(km float64) float64 {
	if math.IsNaN(km) || km < 0 {
		return 0
	}
	return km
}
