package walk

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const DefaultTickInterval = time.Second

// LocationProvider is the device-side source of samples. Current is a pull of
// the latest fix; Subscribe opens a push stream.
type LocationProvider interface {
	Current(ctx context.Context) (LocationSample, error)
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	Samples() <-chan LocationSample
	Close() error
}

// Tracker ties one session to its location subscription and duration ticker.
// Both resources are released when the session stops, when Close is called
// and when the context passed to Begin is cancelled, whichever comes first.
type Tracker struct {
	engine    *Engine
	provider  LocationProvider
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc
	swap   chan (<-chan LocationSample)
	flush  chan chan struct{}
	done   chan struct{}

	// opMu orders Pause, Resume, AddPhoto and Stop.
	opMu sync.Mutex

	subMu sync.Mutex
	sub   Subscription

	releaseOnce sync.Once
}

// Begin starts a session for identity on engine, seeding the path with the
// provider's current sample when one is available, then acquires the
// location subscription and starts ticking every interval.
func Begin(ctx context.Context, engine *Engine, provider LocationProvider, identity string, interval time.Duration) (t *Tracker, err error) {
	if strings.TrimSpace(identity) == "" {
		return nil, fmt.Errorf("%w: submitter identity required", ErrValidation)
	}
	if st := engine.State(); st != StateIdle {
		return nil, fmt.Errorf("%w: a session is already %s", ErrValidation, st)
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	var seed *LocationSample
	if current, cerr := provider.Current(ctx); cerr == nil {
		seed = &current
	} else {
		log.Printf("walk: starting without a current location: %v", cerr)
	}

	snap, err := engine.Start(identity, seed)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer func() {
		if err != nil {
			cancel()
			engine.abortSession(snap.SessionID)
		}
	}()

	sub, err := provider.Subscribe(loopCtx)
	if err != nil {
		return nil, fmt.Errorf("subscribe location: %w", err)
	}

	t = &Tracker{
		engine:    engine,
		provider:  provider,
		sessionID: snap.SessionID,
		ctx:       loopCtx,
		cancel:    cancel,
		swap:      make(chan (<-chan LocationSample)),
		flush:     make(chan chan struct{}),
		done:      make(chan struct{}),
		sub:       sub,
	}
	go t.run(time.NewTicker(interval), sub.Samples())
	return t, nil
}

func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Done is closed once the tracker has released its resources.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) Pause() (Snapshot, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	snap, err := t.engine.pause(t.sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	t.setSamples(nil)
	t.closeSubscription()
	return snap, nil
}

func (t *Tracker) Resume() (Snapshot, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if st := t.engine.State(); st != StatePaused {
		return Snapshot{}, fmt.Errorf("%w: cannot resume while %s", ErrInvalidState, st)
	}
	sub, err := t.provider.Subscribe(t.ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("subscribe location: %w", err)
	}
	snap, err := t.engine.resume(t.sessionID)
	if err != nil {
		_ = sub.Close()
		return Snapshot{}, err
	}

	t.subMu.Lock()
	t.sub = sub
	t.subMu.Unlock()
	t.setSamples(sub.Samples())

	select {
	case <-t.done:
		// cancelled while resuming
		t.closeSubscription()
	default:
	}
	return snap, nil
}

func (t *Tracker) AddPhoto(ref string) (Snapshot, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	return t.engine.addPhoto(t.sessionID, ref)
}

// Flush blocks until every sample already delivered on the subscription has
// been ingested.
func (t *Tracker) Flush() {
	reply := make(chan struct{})
	select {
	case t.flush <- reply:
		<-reply
	case <-t.done:
	}
}

// Stop ingests pending samples, finalizes the session and releases the
// subscription and ticker.
func (t *Tracker) Stop() (Payload, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.Flush()
	payload, err := t.engine.stop(t.sessionID)
	if err != nil {
		return Payload{}, err
	}
	t.release()
	return payload, nil
}

// Close abandons the session if it is still live and releases everything.
// It is safe to call more than once and after Stop.
func (t *Tracker) Close() {
	t.release()
}

func (t *Tracker) run(ticker *time.Ticker, samples <-chan LocationSample) {
	defer close(t.done)
	defer ticker.Stop()

	// lost is set when the provider closed the stream on its own
	lost := false
	for {
		select {
		case <-t.ctx.Done():
			t.engine.abortSession(t.sessionID)
			t.closeSubscription()
			return
		case ch := <-t.swap:
			samples, lost = ch, false
		case reply := <-t.flush:
			if samples != nil {
				if samples = t.drain(samples); samples == nil {
					lost = true
				}
			}
			close(reply)
		case sample, ok := <-samples:
			if !ok {
				samples, lost = nil, true
				continue
			}
			t.ingest(sample)
		case <-ticker.C:
			if _, err := t.engine.tick(t.sessionID); err != nil {
				// session ended outside the tracker
				t.cancel()
				continue
			}
			if lost {
				if ch := t.resubscribe(); ch != nil {
					samples, lost = ch, false
				}
			}
		}
	}
}

// resubscribe reopens the location stream after the provider suspended it.
// It returns nil while the session is paused or the provider still refuses.
func (t *Tracker) resubscribe() <-chan LocationSample {
	if t.engine.State() != StateActive {
		return nil
	}
	sub, err := t.provider.Subscribe(t.ctx)
	if err != nil {
		log.Printf("walk: resubscribing location for session %s: %v", t.sessionID, err)
		return nil
	}

	t.subMu.Lock()
	old := t.sub
	t.sub = sub
	t.subMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	log.Printf("walk: location stream resumed for session %s", t.sessionID)
	return sub.Samples()
}

func (t *Tracker) ingest(sample LocationSample) {
	if _, err := t.engine.ingest(t.sessionID, sample); err != nil {
		log.Printf("walk: dropped sample for session %s: %v", t.sessionID, err)
	}
}

// drain ingests whatever is buffered on samples without blocking. It returns
// nil once the channel is closed.
func (t *Tracker) drain(samples <-chan LocationSample) <-chan LocationSample {
	for {
		select {
		case sample, ok := <-samples:
			if !ok {
				return nil
			}
			t.ingest(sample)
		default:
			return samples
		}
	}
}

func (t *Tracker) setSamples(ch <-chan LocationSample) {
	select {
	case t.swap <- ch:
	case <-t.done:
	}
}

func (t *Tracker) closeSubscription() {
	t.subMu.Lock()
	sub := t.sub
	t.sub = nil
	t.subMu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			log.Printf("walk: closing location subscription: %v", err)
		}
	}
}

func (t *Tracker) release() {
	t.releaseOnce.Do(func() {
		t.cancel()
		<-t.done
		t.closeSubscription()
	})
}
