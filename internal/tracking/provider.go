package tracking

import (
	"context"
	"errors"
	"log"
	"sync"

	"backend-touchgrass/internal/walk"
)

const sampleBuffer = 256

var errNoFix = errors.New("no location reported yet")

// pushProvider is a walk.LocationProvider fed by samples the device posts
// over HTTP.
type pushProvider struct {
	// feed serializes batches so each one fits the subscription buffer.
	feed sync.Mutex

	mu     sync.Mutex
	latest *walk.LocationSample
	subs   map[*pushSub]struct{}
}

type pushSub struct {
	provider *pushProvider
	ch       chan walk.LocationSample
	once     sync.Once
}

func newPushProvider() *pushProvider {
	return &pushProvider{subs: make(map[*pushSub]struct{})}
}

func (p *pushProvider) Current(context.Context) (walk.LocationSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return walk.LocationSample{}, errNoFix
	}
	return *p.latest, nil
}

// Reset replaces the current fix without notifying subscriptions. A nil fix
// forgets the last known location.
func (p *pushProvider) Reset(fix *walk.LocationSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fix == nil {
		p.latest = nil
		return
	}
	current := *fix
	p.latest = &current
}

func (p *pushProvider) Subscribe(context.Context) (walk.Subscription, error) {
	sub := &pushSub{provider: p, ch: make(chan walk.LocationSample, sampleBuffer)}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	return sub, nil
}

// Push records sample as the latest fix and hands it to open subscriptions.
// It returns how many subscriptions took it.
func (p *pushProvider) Push(sample walk.LocationSample) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest = &sample
	delivered := 0
	for sub := range p.subs {
		select {
		case sub.ch <- sample:
			delivered++
		default:
			log.Printf("tracking: sample buffer full, dropping sample at %d", sample.Timestamp)
		}
	}
	return delivered
}

func (s *pushSub) Samples() <-chan walk.LocationSample {
	return s.ch
}

func (s *pushSub) Close() error {
	s.once.Do(func() {
		s.provider.mu.Lock()
		delete(s.provider.subs, s)
		close(s.ch)
		s.provider.mu.Unlock()
	})
	return nil
}
