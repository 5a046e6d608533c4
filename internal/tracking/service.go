package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-touchgrass/internal/db"
	"backend-touchgrass/internal/submit"
	"backend-touchgrass/internal/walk"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const defaultHistoryLimit = 20

var errNoStore = errors.New("walk store unavailable")

// Broadcaster fans a message out to the stream subscribers of an address.
type Broadcaster interface {
	Broadcast(address string, msg []byte)
}

type Submitter interface {
	Submit(ctx context.Context, payload walk.Payload) (submit.Result, error)
}

// Service hosts one walk engine per submitter address.
type Service struct {
	db        db.TxBeginner
	hub       Broadcaster
	submitter Submitter
	interval  time.Duration
	newModel  func() walk.DistanceModel
	clock     walk.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	walks map[string]*liveWalk
}

type liveWalk struct {
	engine   *walk.Engine
	provider *pushProvider
	tracker  *walk.Tracker
}

type Option func(*Service)

func WithTickInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithDistanceModel sets the factory used for each address's engine.
func WithDistanceModel(fn func() walk.DistanceModel) Option {
	return func(s *Service) { s.newModel = fn }
}

func WithClock(clock walk.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(db db.TxBeginner, hub Broadcaster, submitter Submitter, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		db:        db,
		hub:       hub,
		submitter: submitter,
		interval:  walk.DefaultTickInterval,
		newModel:  func() walk.DistanceModel { return walk.Haversine{} },
		clock:     walk.SystemClock{},
		ctx:       ctx,
		cancel:    cancel,
		walks:     make(map[string]*liveWalk),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a walk for address. seed is the location at start time; without
// one the walk begins with an empty path.
func (s *Service) Start(address string, seed *walk.LocationSample) (walk.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lw, ok := s.walks[address]
	if !ok {
		lw = s.newLiveWalk(address)
		s.walks[address] = lw
	}
	if st := lw.engine.State(); st != walk.StateIdle {
		return walk.Snapshot{}, fmt.Errorf("%w: a walk is already %s", walk.ErrValidation, st)
	}
	// a fix left over from an earlier walk is not the current location
	lw.provider.Reset(seed)

	tracker, err := walk.Begin(s.ctx, lw.engine, lw.provider, address, s.interval)
	if err != nil {
		return walk.Snapshot{}, err
	}
	lw.tracker = tracker
	log.Printf("tracking: walk %s started for %s", tracker.SessionID(), address)
	return lw.engine.Snapshot(), nil
}

// PushSamples feeds device samples to the address's walk and returns the
// snapshot once they are ingested. If the walk stops taking samples part way
// through, the error reports how many were recorded.
func (s *Service) PushSamples(address string, samples []walk.LocationSample) (walk.Snapshot, error) {
	if len(samples) == 0 {
		return walk.Snapshot{}, fmt.Errorf("%w: no samples", walk.ErrValidation)
	}
	lw, err := s.live(address)
	if err != nil {
		return walk.Snapshot{}, err
	}

	lw.provider.feed.Lock()
	defer lw.provider.feed.Unlock()

	before := lw.engine.Snapshot()
	if before.State != walk.StateActive {
		return walk.Snapshot{}, fmt.Errorf("%w: cannot ingest samples while %s", walk.ErrInvalidState, before.State)
	}

batches:
	for start := 0; start < len(samples); start += sampleBuffer {
		end := min(start+sampleBuffer, len(samples))
		for _, sample := range samples[start:end] {
			if lw.provider.Push(sample) == 0 {
				break batches
			}
		}
		lw.tracker.Flush()
	}
	lw.tracker.Flush()

	snap := lw.engine.Snapshot()
	recorded := 0
	if snap.SessionID == before.SessionID {
		recorded = snap.SampleCount - before.SampleCount
	}
	if recorded < len(samples) {
		return snap, fmt.Errorf("%w: walk is %s, recorded %d of %d samples", walk.ErrInvalidState, snap.State, recorded, len(samples))
	}
	return snap, nil
}

func (s *Service) Pause(address string) (walk.Snapshot, error) {
	lw, err := s.live(address)
	if err != nil {
		return walk.Snapshot{}, err
	}
	return lw.tracker.Pause()
}

func (s *Service) Resume(address string) (walk.Snapshot, error) {
	lw, err := s.live(address)
	if err != nil {
		return walk.Snapshot{}, err
	}
	return lw.tracker.Resume()
}

func (s *Service) AddPhoto(address, ref string) (walk.Snapshot, error) {
	lw, err := s.live(address)
	if err != nil {
		return walk.Snapshot{}, err
	}
	return lw.tracker.AddPhoto(ref)
}

// Stop finalizes the walk, stores it and hands the payload to the submitter
// in the background. The payload is returned even when storing fails.
func (s *Service) Stop(ctx context.Context, address string) (WalkRecord, walk.Payload, error) {
	lw, err := s.live(address)
	if err != nil {
		return WalkRecord{}, walk.Payload{}, err
	}
	payload, err := lw.tracker.Stop()
	if err != nil {
		return WalkRecord{}, walk.Payload{}, err
	}

	record := recordFromPayload(address, payload)
	saveErr := s.saveWalk(ctx, &record, payload)
	if saveErr != nil {
		log.Printf("tracking: storing walk %s: %v", record.ID, saveErr)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.submitWalk(record, payload, saveErr == nil)
	}()

	if saveErr != nil {
		return record, payload, fmt.Errorf("store walk: %w", saveErr)
	}
	return record, payload, nil
}

// Abort discards the live walk for address. It reports whether one existed.
func (s *Service) Abort(address string) bool {
	lw, err := s.live(address)
	if err != nil {
		return false
	}
	live := lw.engine.State() != walk.StateIdle
	lw.tracker.Close()
	return live
}

func (s *Service) Current(address string) walk.Snapshot {
	s.mu.Lock()
	lw, ok := s.walks[address]
	s.mu.Unlock()
	if !ok {
		return walk.Snapshot{State: walk.StateIdle, PhotoRefs: []string{}}
	}
	return lw.engine.Snapshot()
}

func (s *Service) History(ctx context.Context, address string, limit int) ([]WalkRecord, error) {
	if s.db == nil {
		return nil, errNoStore
	}
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, address, started_at, ended_at, duration_ms, distance_m, point_count, photos,
		       submission_status, COALESCE(submission_message,''), COALESCE(explorer_url,''), created_at
		FROM walk_records
		WHERE address=$1
		ORDER BY started_at DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []WalkRecord{}
	for rows.Next() {
		var r WalkRecord
		if err := rows.Scan(&r.ID, &r.Address, &r.StartedAt, &r.EndedAt, &r.DurationMs, &r.DistanceM, &r.PointCount, &r.Photos,
			&r.SubmissionStatus, &r.SubmissionMessage, &r.ExplorerURL, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Points returns the stored path of one of address's walks in append order.
func (s *Service) Points(ctx context.Context, address, walkID string) ([]walk.LocationSample, error) {
	if s.db == nil {
		return nil, errNoStore
	}
	rows, err := s.db.Query(ctx, `
		SELECT p.lat, p.lng, p.recorded_ms
		FROM walk_points p
		JOIN walk_records r ON r.id = p.walk_id
		WHERE p.walk_id=$1 AND r.address=$2
		ORDER BY p.seq
	`, walkID, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []walk.LocationSample{}
	for rows.Next() {
		var p walk.LocationSample
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.Timestamp); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Shutdown aborts every live walk and waits for pending submissions.
func (s *Service) Shutdown() {
	s.cancel()

	s.mu.Lock()
	trackers := make([]*walk.Tracker, 0, len(s.walks))
	for _, lw := range s.walks {
		if lw.tracker != nil {
			trackers = append(trackers, lw.tracker)
		}
	}
	s.mu.Unlock()

	for _, t := range trackers {
		t.Close()
	}
	s.wg.Wait()
}

func (s *Service) newLiveWalk(address string) *liveWalk {
	lw := &liveWalk{provider: newPushProvider()}
	lw.engine = walk.NewEngine(
		walk.WithClock(s.clock),
		walk.WithDistanceModel(s.newModel()),
		walk.WithObserver(func(snap walk.Snapshot) {
			s.publish(address, Event{Type: EventSnapshot, Snapshot: &snap, Elapsed: walk.FormatDuration(snap.Duration)})
		}),
	)
	return lw
}

// live returns a copy of address's walk taken under the lock.
func (s *Service) live(address string) (liveWalk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lw, ok := s.walks[address]
	if !ok || lw.tracker == nil {
		return liveWalk{}, fmt.Errorf("%w: no walk in progress", walk.ErrInvalidState)
	}
	return *lw, nil
}

func (s *Service) saveWalk(ctx context.Context, record *WalkRecord, payload walk.Payload) error {
	if s.db == nil {
		return errNoStore
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO walk_records (id, address, started_at, ended_at, duration_ms, distance_m, point_count, photos, submission_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, record.ID, record.Address, record.StartedAt, record.EndedAt, record.DurationMs, record.DistanceM,
		record.PointCount, record.Photos, record.SubmissionStatus)
	if err := row.Scan(&record.CreatedAt); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if len(payload.Path) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"walk_points"},
			[]string{"walk_id", "seq", "lat", "lng", "recorded_ms"},
			pgx.CopyFromSlice(len(payload.Path), func(i int) ([]any, error) {
				p := payload.Path[i]
				return []any{record.ID, i, p.Latitude, p.Longitude, p.Timestamp}, nil
			}))
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Service) submitWalk(record WalkRecord, payload walk.Payload, stored bool) {
	if s.submitter == nil {
		return
	}
	// submissions outlive Shutdown's cancel; the client bounds each attempt
	result, err := s.submitter.Submit(context.Background(), payload)
	if err != nil {
		record.SubmissionStatus = SubmissionFailed
		record.SubmissionMessage = err.Error()
		var terr *submit.TransportError
		if errors.As(err, &terr) && terr.StatusCode != 0 {
			log.Printf("tracking: walk %s rejected with status %d", record.ID, terr.StatusCode)
		} else {
			log.Printf("tracking: submitting walk %s: %v", record.ID, err)
		}
	} else {
		record.SubmissionStatus = SubmissionSubmitted
		record.SubmissionMessage = result.Message
		record.ExplorerURL = result.ExplorerURL
		log.Printf("tracking: walk %s submitted", record.ID)
	}

	if stored {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.db.Exec(ctx, `
			UPDATE walk_records
			SET submission_status=$2, submission_message=$3, explorer_url=$4
			WHERE id=$1
		`, record.ID, record.SubmissionStatus, record.SubmissionMessage, record.ExplorerURL); err != nil {
			log.Printf("tracking: recording submission of walk %s: %v", record.ID, err)
		}
	}
	s.publish(record.Address, Event{Type: EventSubmission, Record: &record})
}

func (s *Service) publish(address string, ev Event) {
	if s.hub == nil {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("tracking: encoding %s event: %v", ev.Type, err)
		return
	}
	s.hub.Broadcast(address, msg)
}

func recordFromPayload(address string, payload walk.Payload) WalkRecord {
	id := payload.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	return WalkRecord{
		ID:               id,
		Address:          address,
		StartedAt:        time.UnixMilli(payload.StartTime).UTC(),
		EndedAt:          time.UnixMilli(payload.EndTime).UTC(),
		DurationMs:       payload.DurationMs,
		DistanceM:        payload.DistanceMeters,
		PointCount:       len(payload.Path),
		Photos:           append([]string{}, payload.PhotoRefs...),
		SubmissionStatus: SubmissionPending,
	}
}
