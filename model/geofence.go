package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidGeofence is returned when a geofence is constructed with a
// non-positive radius.
var ErrInvalidGeofence = errors.New("invalid geofence")

// Geofence is a circular region on the sphere. Radius is expressed in
// degrees of arc; use CircleKm when the caller thinks in kilometres.
type Geofence struct {
	Center Location `json:"center" yaml:"center"`
	Radius float64  `json:"radius_deg" yaml:"radius_deg"`
}

// Circle constructs a geofence around center with a radius in degrees.
func Circle(center Location, radiusDeg float64) (Geofence, error) {
	if !(radiusDeg > 0) {
		return Geofence{}, fmt.Errorf("%w: radius %v must be > 0", ErrInvalidGeofence, radiusDeg)
	}
	return Geofence{Center: center, Radius: radiusDeg}, nil
}

// CircleKm constructs a geofence around center with a radius in kilometres.
func CircleKm(center Location, radiusKm float64) (Geofence, error) {
	if !(radiusKm > 0) {
		return Geofence{}, fmt.Errorf("%w: radius %vkm must be > 0", ErrInvalidGeofence, radiusKm)
	}
	return Geofence{Center: center, Radius: radiusKm * KmToDeg}, nil
}

// MustCircle is Circle for static tables; it panics on a bad radius.
func MustCircle(center Location, radiusDeg float64) Geofence {
	g, err := Circle(center, radiusDeg)
	if err != nil {
		panic(err)
	}
	return g
}

// RadiusKm returns the radius converted to kilometres.
func (g Geofence) RadiusKm() float64 {
	return g.Radius * DegToKm
}

// Contains reports whether loc lies inside or on the boundary of g.
func (g Geofence) Contains(loc Location) bool {
	return g.Center.DistanceDegTo(loc) <= g.Radius
}

// Intersects reports whether the two circles share at least one point.
func (g Geofence) Intersects(other Geofence) bool {
	return g.Center.DistanceDegTo(other.Center) <= g.Radius+other.Radius
}

// WKT renders the geofence the way the broker under test parses circles:
// BUFFER (POINT (lon lat), radius).
func (g Geofence) WKT() string {
	return "BUFFER (POINT (" +
		strconv.FormatFloat(g.Center.Lon, 'f', -1, 64) + " " +
		strconv.FormatFloat(g.Center.Lat, 'f', -1, 64) + "), " +
		strconv.FormatFloat(g.Radius, 'f', -1, 64) + ")"
}
