package core

import (
	"fmt"
	"math"
	"math/rand/v2"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

// LocationInDistance projects from along a great circle for distanceKm with
// the given initial heading (degrees clockwise from north).
func LocationInDistance(from model.Location, distanceKm, headingDeg float64) model.Location {
	start := satellite.LatLong{
		Latitude:  from.Lat * satellite.DEG2RAD,
		Longitude: from.Lon * satellite.DEG2RAD,
	}
	delta := distanceKm / model.EarthRadiusKm
	theta := headingDeg * satellite.DEG2RAD

	sinLat := math.Sin(start.Latitude)*math.Cos(delta) +
		math.Cos(start.Latitude)*math.Sin(delta)*math.Cos(theta)
	lat := math.Asin(clampUnit(sinLat))
	lon := start.Longitude + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(start.Latitude),
		math.Cos(delta)-math.Sin(start.Latitude)*math.Sin(lat),
	)

	return model.Location{
		Lat: lat * satellite.RAD2DEG,
		Lon: normalizeLon(lon * satellite.RAD2DEG),
	}
}

// RandomLocationIn returns a location drawn uniformly by area from g.
func RandomLocationIn(rng *rand.Rand, g model.Geofence) model.Location {
	// sqrt: uniform over the disc area, not over the radius.
	distanceKm := g.RadiusKm() * math.Sqrt(rng.Float64())
	loc := LocationInDistance(g.Center, distanceKm, rng.Float64()*360)
	if !g.Contains(loc) {
		return g.Center
	}
	return loc
}

// OverlapCount returns how many of areas intersect candidate, minus one for
// the candidate's home broker. The result is negative when candidate does
// not reach its own broker area.
func OverlapCount(candidate model.Geofence, areas []model.Geofence) int {
	intersects := -1 // own broker
	for _, area := range areas {
		if candidate.Intersects(area) {
			intersects++
		}
	}
	return intersects
}

// BrokersDisjoint reports whether no two broker areas intersect.
func BrokersDisjoint(areas []model.Geofence) bool {
	return CheckBrokersDisjoint(areas) == nil
}

// CheckBrokersDisjoint returns an ErrBrokersOverlap error naming the first
// pair of intersecting areas, or nil.
func CheckBrokersDisjoint(areas []model.Geofence) error {
	for i := range areas {
		for j := i + 1; j < len(areas); j++ {
			if areas[i].Intersects(areas[j]) {
				return fmt.Errorf("%w: areas %d and %d intersect", ErrBrokersOverlap, i, j)
			}
		}
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return v
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+540, 360) - 180
	if lon == -180 {
		return 180
	}
	return lon
}
