package core

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

func TestLocationInDistanceTravelsRequestedDistance(t *testing.T) {
	from := model.Location{Lat: 52.5, Lon: 13.4}
	for _, heading := range []float64{0, 45, 90, 180, 270, 359} {
		to := LocationInDistance(from, 2.5, heading)
		if d := from.DistanceKmTo(to); math.Abs(d-2.5) > 1e-6 {
			t.Fatalf("heading %v: distance = %v km, want 2.5", heading, d)
		}
	}
}

func TestLocationInDistanceHeadingNorth(t *testing.T) {
	to := LocationInDistance(model.Location{}, model.DegToKm, 0)
	if math.Abs(to.Lat-1) > 1e-9 || math.Abs(to.Lon) > 1e-9 {
		t.Fatalf("north by one degree = %v, want (1, 0)", to)
	}
}

func TestLocationInDistanceWrapsLongitude(t *testing.T) {
	to := LocationInDistance(model.Location{Lat: 0, Lon: 179.9}, 0.2*model.DegToKm, 90)
	if !to.Valid() {
		t.Fatalf("projected location %v out of range", to)
	}
	if math.Abs(to.Lon-(-179.9)) > 1e-6 {
		t.Fatalf("Lon = %v, want -179.9", to.Lon)
	}
}

func TestRandomLocationInStaysInside(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	g := model.MustCircle(model.Location{Lat: 48.1, Lon: 11.6}, 5*model.KmToDeg)
	for i := 0; i < 1000; i++ {
		if loc := RandomLocationIn(rng, g); !g.Contains(loc) {
			t.Fatalf("RandomLocationIn returned %v outside %v", loc, g)
		}
	}
}

func TestOverlapCount(t *testing.T) {
	areas := []model.Geofence{
		model.MustCircle(model.Location{Lat: 0, Lon: 0}, 1),
		model.MustCircle(model.Location{Lat: 0, Lon: 3}, 1),
		model.MustCircle(model.Location{Lat: 0, Lon: 10}, 1),
	}

	// Reaches the first two areas.
	candidate := model.MustCircle(model.Location{Lat: 0, Lon: 1.5}, 1)
	if got := OverlapCount(candidate, areas); got != 1 {
		t.Fatalf("OverlapCount = %d, want 1", got)
	}

	inside := model.MustCircle(model.Location{Lat: 0, Lon: 0}, 0.1)
	if got := OverlapCount(inside, areas); got != 0 {
		t.Fatalf("OverlapCount inside own broker = %d, want 0", got)
	}

	nowhere := model.MustCircle(model.Location{Lat: 40, Lon: 40}, 0.1)
	if got := OverlapCount(nowhere, areas); got != -1 {
		t.Fatalf("OverlapCount outside every broker = %d, want -1", got)
	}
}

func TestBrokersDisjoint(t *testing.T) {
	disjoint := []model.Geofence{
		model.MustCircle(model.Location{Lat: 0, Lon: 0}, 1),
		model.MustCircle(model.Location{Lat: 0, Lon: 5}, 1),
	}
	if !BrokersDisjoint(disjoint) {
		t.Fatalf("BrokersDisjoint = false for areas 5 degrees apart")
	}

	overlapping := append(disjoint, model.MustCircle(model.Location{Lat: 0, Lon: 4}, 1))
	if BrokersDisjoint(overlapping) {
		t.Fatalf("BrokersDisjoint = true for overlapping areas")
	}
	if err := CheckBrokersDisjoint(overlapping); !errors.Is(err, ErrBrokersOverlap) {
		t.Fatalf("CheckBrokersDisjoint err = %v, want ErrBrokersOverlap", err)
	}

	if !BrokersDisjoint(nil) {
		t.Fatalf("BrokersDisjoint(nil) = false, want true")
	}
}
