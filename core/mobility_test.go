package core

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

func testBounds(t *testing.T, radiusKm float64) model.Geofence {
	t.Helper()
	g, err := model.CircleKm(model.Location{}, radiusKm)
	if err != nil {
		t.Fatalf("CircleKm: %v", err)
	}
	return g
}

func TestEngineNextStaysInsideBounds(t *testing.T) {
	bounds := testBounds(t, 5)
	e := NewEngine(bounds, DistanceRangeStep{Km: model.Range{Min: 0.1, Max: 2}}, nil)
	rng := rand.New(rand.NewPCG(7, 7))

	loc := bounds.Center
	for i := 0; i < 2000; i++ {
		m := e.Next(context.Background(), rng, loc, rng.Float64()*360, 1)
		if !bounds.Contains(m.Location) {
			t.Fatalf("step %d: %v left the bounds", i, m.Location)
		}
		if m.GaveUp {
			if m.Location != loc || m.DistanceKm != 0 {
				t.Fatalf("step %d: give-up moved the client", i)
			}
			continue
		}
		if m.DistanceKm < 0.1 || m.DistanceKm >= 2 {
			t.Fatalf("step %d: DistanceKm = %v, want within [0.1, 2)", i, m.DistanceKm)
		}
		if d := loc.DistanceKmTo(m.Location); math.Abs(d-m.DistanceKm) > 1e-6 {
			t.Fatalf("step %d: moved %v km, reported %v km", i, d, m.DistanceKm)
		}
		loc = m.Location
	}
}

func TestEngineNextGivesUp(t *testing.T) {
	bounds := testBounds(t, 1)
	e := NewEngine(bounds, DistanceRangeStep{Km: model.Range{Min: 0.01, Max: 0.01}}, nil)
	rng := rand.New(rand.NewPCG(1, 1))

	// Far outside the bounds, so no candidate can be accepted.
	from := model.Location{Lat: 10, Lon: 10}
	m := e.Next(context.Background(), rng, from, 90, 1)
	if !m.GaveUp {
		t.Fatalf("GaveUp = false, want true")
	}
	if m.Attempts != giveUpAfterRejections+1 {
		t.Fatalf("Attempts = %d, want %d", m.Attempts, giveUpAfterRejections+1)
	}
	if m.Location != from {
		t.Fatalf("Location = %v, want %v", m.Location, from)
	}
	if m.DistanceKm != 0 {
		t.Fatalf("DistanceKm = %v, want 0", m.DistanceKm)
	}
}

func TestEngineNextGivesUpAtTheCentre(t *testing.T) {
	// Every step is longer than the radius, so even the centre has no
	// reachable neighbour.
	bounds := testBounds(t, 0.5)
	e := NewEngine(bounds, DistanceRangeStep{Km: model.Range{Min: 1, Max: 2}}, nil)

	for seed := uint64(0); seed < 5; seed++ {
		rng := rand.New(rand.NewPCG(seed, 2))
		m := e.Next(context.Background(), rng, bounds.Center, rng.Float64()*360, 1)
		if !m.GaveUp {
			t.Fatalf("seed %d: GaveUp = false, want true", seed)
		}
		if m.Location != bounds.Center {
			t.Fatalf("seed %d: Location = %v, want the centre", seed, m.Location)
		}
		if m.DistanceKm != 0 {
			t.Fatalf("seed %d: DistanceKm = %v, want 0", seed, m.DistanceKm)
		}
		if m.Attempts < 33 {
			t.Fatalf("seed %d: Attempts = %d, want >= 33", seed, m.Attempts)
		}
	}
}

func TestEngineNextTurnsAroundAtTheEdge(t *testing.T) {
	bounds := testBounds(t, 1)
	e := NewEngine(bounds, DistanceRangeStep{Km: model.Range{Min: 0.5, Max: 0.5}}, nil)
	rng := rand.New(rand.NewPCG(3, 4))

	// 10 m from the eastern edge, heading east.
	from := LocationInDistance(bounds.Center, 0.99, 90)
	m := e.Next(context.Background(), rng, from, 90, 1)
	if m.GaveUp {
		t.Fatalf("GaveUp = true, want a reversed step")
	}
	if m.Attempts != reverseAfterRejections+2 {
		t.Fatalf("Attempts = %d, want %d", m.Attempts, reverseAfterRejections+2)
	}
	if m.Location.Lon >= from.Lon {
		t.Fatalf("reversed step went east: %v -> %v", from, m.Location)
	}
}

func TestSpeedRangeStep(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	step := NewStepModel(model.Mobility{Speed: &model.Range{Min: 4, Max: 4}}, model.Seconds)
	if got := step.StepKm(rng, 1800); math.Abs(got-2) > 1e-12 {
		t.Fatalf("StepKm(1800s at 4 km/h) = %v, want 2", got)
	}

	msStep := NewStepModel(model.Mobility{Speed: &model.Range{Min: 4, Max: 4}}, model.Milliseconds)
	if got := msStep.StepKm(rng, 1800*1000); math.Abs(got-2) > 1e-12 {
		t.Fatalf("StepKm(1800000ms at 4 km/h) = %v, want 2", got)
	}
}

func TestNewStepModel(t *testing.T) {
	if _, ok := NewStepModel(model.Mobility{Distance: &model.Range{Min: 1, Max: 2}}, model.Seconds).(DistanceRangeStep); !ok {
		t.Fatalf("distance mobility did not produce DistanceRangeStep")
	}
	if _, ok := NewStepModel(model.Mobility{Speed: &model.Range{Min: 1, Max: 2}}, model.Seconds).(SpeedRangeStep); !ok {
		t.Fatalf("speed mobility did not produce SpeedRangeStep")
	}
	rng := rand.New(rand.NewPCG(1, 1))
	if got := NewStepModel(model.Mobility{}, model.Seconds).StepKm(rng, 100); got != 0 {
		t.Fatalf("StepKm without mobility range = %v, want 0", got)
	}
}
