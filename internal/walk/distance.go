package walk

import (
	"math/rand"
	"sync"

	"backend-touchgrass/internal/shared/geo"
)

// DistanceModel decides how much distance, in kilometers, a session accrues.
// Between is applied to each consecutive pair of ingested samples and OnTick
// to each duration tick while the session is active.
type DistanceModel interface {
	Between(prev, next LocationSample) float64
	OnTick() float64
}

// Haversine accrues the great-circle distance between consecutive samples
// and nothing on ticks.
type Haversine struct{}

func (Haversine) Between(prev, next LocationSample) float64 {
	return geo.HaversineKm(prev.Latitude, prev.Longitude, next.Latitude, next.Longitude)
}

func (Haversine) OnTick() float64 {
	return 0
}

// DefaultSimulatedStepKm is the upper bound of a simulated per-tick step.
const DefaultSimulatedStepKm = 0.01

// Simulated ignores coordinates and accrues a pseudo-random step in
// [0, MaxStepKm) on every tick. Identical seeds yield identical sequences.
type Simulated struct {
	maxStepKm float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulated(seed int64, maxStepKm float64) *Simulated {
	if maxStepKm <= 0 {
		maxStepKm = DefaultSimulatedStepKm
	}
	return &Simulated{
		maxStepKm: maxStepKm,
		rnd:       rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) Between(_, _ LocationSample) float64 {
	return 0
}

func (s *Simulated) OnTick() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() * s.maxStepKm
}

// ModelByName resolves a configured model name. Unknown names fall back to
// Haversine.
func ModelByName(name string, seed int64) DistanceModel {
	if name == "simulated" {
		return NewSimulated(seed, DefaultSimulatedStepKm)
	}
	return Haversine{}
}
