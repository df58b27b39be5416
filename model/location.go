package model

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by every distance and
// projection calculation in the generator (kilometres).
const EarthRadiusKm = 6371.0087714

// DegToKm is the length of one degree of arc on the Earth's surface.
const DegToKm = EarthRadiusKm * math.Pi / 180.0

// KmToDeg converts kilometres into degrees of arc. Geofence radii are stored
// in degrees, so every call site that thinks in kilometres goes through it.
const KmToDeg = 1.0 / DegToKm

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// DistanceDegTo returns the great-circle distance to other in degrees of arc.
func (l Location) DistanceDegTo(other Location) float64 {
	lat1 := l.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Lon - l.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return c * 180 / math.Pi
}

// DistanceKmTo returns the great-circle distance to other in kilometres.
func (l Location) DistanceKmTo(other Location) float64 {
	return l.DistanceDegTo(other) * DegToKm
}

// Valid reports whether the coordinates are within the WGS84 ranges.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

func (l Location) String() string {
	return fmt.Sprintf("(%g, %g)", l.Lat, l.Lon)
}
