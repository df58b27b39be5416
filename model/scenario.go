package model

import "math/rand/v2"

// TimeUnit is the unit of a scenario's virtual clock.
type TimeUnit string

const (
	Seconds      TimeUnit = "s"
	Milliseconds TimeUnit = "ms"
)

// UnitsPerHour returns how many clock units make up one hour, or 0 for an
// unknown unit.
func (u TimeUnit) UnitsPerHour() float64 {
	switch u {
	case Seconds:
		return 3600
	case Milliseconds:
		return 3600 * 1000
	default:
		return 0
	}
}

// ClientRole selects the state machine that drives a client's trace.
type ClientRole string

const (
	RolePublisher  ClientRole = "publisher"
	RoleSubscriber ClientRole = "subscriber"
	// RoleRoaming clients ping, subscribe and publish while moving every tick.
	RoleRoaming ClientRole = "roaming"
)

// FileTag is the short role marker used in trace file names.
func (r ClientRole) FileTag() string {
	switch r {
	case RolePublisher:
		return "Pub"
	case RoleSubscriber:
		return "Sub"
	case RoleRoaming:
		return "Roam"
	default:
		return string(r)
	}
}

// Roles lists every role in the order the runner generates them.
func Roles() []ClientRole {
	return []ClientRole{RolePublisher, RoleSubscriber, RoleRoaming}
}

// Range is a half-open float interval [Min, Max). Min == Max is a constant.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Draw returns a uniform sample from the range.
func (r Range) Draw(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// IntRange is a half-open integer interval [Min, Max). Min == Max is a constant.
type IntRange struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// Fixed returns a constant range.
func Fixed(v int64) IntRange { return IntRange{Min: v, Max: v} }

// Draw returns a uniform sample from the range.
func (r IntRange) Draw(rng *rand.Rand) int64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Int64N(r.Max-r.Min)
}

// Broker is one broker area and the client population generated for it.
type Broker struct {
	Name        string   `json:"name"`
	Area        Geofence `json:"area"`
	Publishers  int      `json:"publishers"`
	Subscribers int      `json:"subscribers"`
	Roamers     int      `json:"roamers"`
	// WorkloadMachines splits the broker's clients across load generators;
	// zero skips the broker.
	WorkloadMachines int `json:"workload_machines"`
}

// Clients returns the configured population for role.
func (b Broker) Clients(role ClientRole) int {
	switch role {
	case RolePublisher:
		return b.Publishers
	case RoleSubscriber:
		return b.Subscribers
	case RoleRoaming:
		return b.Roamers
	default:
		return 0
	}
}

// Topic describes how one topic is subscribed to and published on.
type Topic struct {
	Name string `json:"name"`
	// PublicationProbability is the per-tick chance (0-100) of a publish.
	PublicationProbability int      `json:"publication_probability"`
	Payload                IntRange `json:"payload_bytes"`
	// SubscriptionGeofence is the radius range (degrees) of subscription
	// geofences; nil subscribes without a geofence.
	SubscriptionGeofence *Range `json:"subscription_geofence_deg,omitempty"`
	// StaticSubscriptionGeofence draws the subscription geofence once per
	// client around its start location.
	StaticSubscriptionGeofence bool `json:"static_subscription_geofence,omitempty"`
	// MessageGeofence is the radius range (degrees) of message geofences;
	// nil publishes without a geofence.
	MessageGeofence *Range `json:"message_geofence_deg,omitempty"`
}

// Mobility configures the random walk. Exactly one of Distance (km per
// step) and Speed (km/h, multiplied by the elapsed gap) is set.
type Mobility struct {
	Probability   int    `json:"probability"`
	Distance      *Range `json:"distance_km,omitempty"`
	Speed         *Range `json:"speed_kmh,omitempty"`
	FixedHeading  bool   `json:"fixed_heading"`
	StartAtCenter bool   `json:"start_at_center"`
}

// RoleTiming drives one role's clock.
type RoleTiming struct {
	StartOffset IntRange `json:"start_offset"`
	// InitialPause is added after the initial subscription set.
	InitialPause int64    `json:"initial_pause"`
	Gap          IntRange `json:"gap"`
	PingOnStart  bool     `json:"ping_on_start,omitempty"`
	// MobilityProbability overrides Mobility.Probability for this role.
	MobilityProbability *int `json:"mobility_probability,omitempty"`
}

// Renewal configures when subscriptions are re-issued. Interval deadlines
// are absolute clock values; DistanceMeters triggers on movement since the
// last renewal. Either or both may be set.
type Renewal struct {
	Interval       IntRange `json:"interval"`
	DistanceMeters float64  `json:"distance_m,omitempty"`
}

// TimeBased reports whether interval renewal is configured.
func (r Renewal) TimeBased() bool { return r.Interval.Min > 0 || r.Interval.Max > 0 }

// DistanceBased reports whether distance renewal is configured.
func (r Renewal) DistanceBased() bool { return r.DistanceMeters > 0 }

// Scenario is the complete, enumerated configuration of one generator run.
type Scenario struct {
	Name     string   `json:"name"`
	TimeUnit TimeUnit `json:"time_unit"`
	// TimestampScale multiplies the clock when stamping actions, e.g. 1000
	// for a seconds clock that emits millisecond timestamps.
	TimestampScale int64      `json:"timestamp_scale"`
	Duration       int64      `json:"duration"`
	Brokers        []Broker   `json:"brokers"`
	Topics         []Topic    `json:"topics"`
	Mobility       Mobility   `json:"mobility"`
	Publisher      RoleTiming `json:"publisher"`
	Subscriber     RoleTiming `json:"subscriber"`
	Roaming        RoleTiming `json:"roaming"`
	Renewal        Renewal    `json:"renewal"`
}

// Timing returns the clock configuration for role.
func (s Scenario) Timing(role ClientRole) RoleTiming {
	switch role {
	case RoleSubscriber:
		return s.Subscriber
	case RoleRoaming:
		return s.Roaming
	default:
		return s.Publisher
	}
}

// MobilityProbability returns the chance in percent that a client of role
// moves on a tick.
func (s Scenario) MobilityProbability(role ClientRole) int {
	if p := s.Timing(role).MobilityProbability; p != nil {
		return *p
	}
	return s.Mobility.Probability
}

// Percent returns a pointer to p, for optional probabilities.
func Percent(p int) *int { return &p }

// BrokerAreas returns every broker geofence in configuration order.
func (s Scenario) BrokerAreas() []Geofence {
	areas := make([]Geofence, 0, len(s.Brokers))
	for _, b := range s.Brokers {
		areas = append(areas, b.Area)
	}
	return areas
}

// Clients returns the total configured population for role.
func (s Scenario) Clients(role ClientRole) int {
	total := 0
	for _, b := range s.Brokers {
		total += b.Clients(role)
	}
	return total
}

// Scale returns TimestampScale, treating zero as 1.
func (s Scenario) Scale() int64 {
	if s.TimestampScale <= 0 {
		return 1
	}
	return s.TimestampScale
}
