package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineKmOneDegreeAtEquator(t *testing.T) {
	d := HaversineKm(0, 0, 0, 1)
	if math.Abs(d-111.19)/111.19 > 0.005 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineKmSamePoint(t *testing.T) {
	if d := HaversineKm(37.0, -122.0, 37.0, -122.0); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestHaversineKmSymmetric(t *testing.T) {
	a := HaversineKm(37.0, -122.0, 37.0009, -122.0)
	b := HaversineKm(37.0009, -122.0, 37.0, -122.0)
	if math.Abs(a-b) > 1e-12 {
		t.Fatalf("expected symmetric distance: %v vs %v", a, b)
	}
}
