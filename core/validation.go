package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

var (
	// ErrInvalidScenario marks a configuration error. Generation never
	// starts for a scenario that fails validation.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrBrokersOverlap is returned when two broker areas intersect.
	ErrBrokersOverlap = errors.New("broker areas overlap")
)

// ValidateScenario checks every range, probability and radius of s and
// that broker areas are pairwise disjoint. The first problem found is
// returned wrapped in ErrInvalidScenario (or ErrBrokersOverlap).
func ValidateScenario(s model.Scenario) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.TimeUnit.UnitsPerHour() == 0 {
		return fmt.Errorf("%w: unknown time unit %q", ErrInvalidScenario, s.TimeUnit)
	}
	if s.TimestampScale < 0 {
		return fmt.Errorf("%w: timestamp_scale %d must be >= 0", ErrInvalidScenario, s.TimestampScale)
	}
	if s.Duration <= 0 {
		return fmt.Errorf("%w: duration %d must be > 0", ErrInvalidScenario, s.Duration)
	}
	if len(s.Brokers) == 0 {
		return fmt.Errorf("%w: at least one broker is required", ErrInvalidScenario)
	}
	if err := validateBrokers(s.Brokers); err != nil {
		return err
	}
	if err := validateTopics(s.Topics); err != nil {
		return err
	}
	if err := validateMobility(s); err != nil {
		return err
	}
	if s.Renewal.TimeBased() {
		if err := validateIntRange("renewal.interval", s.Renewal.Interval, 1); err != nil {
			return err
		}
	}
	if s.Renewal.DistanceMeters < 0 {
		return fmt.Errorf("%w: renewal.distance_m must be >= 0", ErrInvalidScenario)
	}

	maxOffset := int64(2 * len(s.Topics))
	for _, role := range model.Roles() {
		if s.Clients(role) == 0 {
			continue
		}
		if len(s.Topics) == 0 {
			return fmt.Errorf("%w: %s clients need at least one topic", ErrInvalidScenario, role)
		}
		if err := validateTiming(role, s.Timing(role), s.Scale(), maxOffset); err != nil {
			return err
		}
		if role != model.RolePublisher && !s.Renewal.TimeBased() && !s.Renewal.DistanceBased() {
			return fmt.Errorf("%w: %s clients need a renewal interval or distance", ErrInvalidScenario, role)
		}
	}
	return nil
}

func validateBrokers(brokers []model.Broker) error {
	seen := make(map[string]struct{}, len(brokers))
	for _, b := range brokers {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("%w: broker name is required", ErrInvalidScenario)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("%w: duplicate broker %q", ErrInvalidScenario, b.Name)
		}
		seen[b.Name] = struct{}{}

		if !(b.Area.Radius > 0) {
			return fmt.Errorf("%w: broker %q: %w", ErrInvalidScenario, b.Name, model.ErrInvalidGeofence)
		}
		if !b.Area.Center.Valid() {
			return fmt.Errorf("%w: broker %q centre %s out of range", ErrInvalidScenario, b.Name, b.Area.Center)
		}
		if b.Publishers < 0 || b.Subscribers < 0 || b.Roamers < 0 {
			return fmt.Errorf("%w: broker %q client counts must be >= 0", ErrInvalidScenario, b.Name)
		}
		if b.WorkloadMachines < 0 {
			return fmt.Errorf("%w: broker %q workload_machines must be >= 0", ErrInvalidScenario, b.Name)
		}
	}

	areas := make([]model.Geofence, 0, len(brokers))
	for _, b := range brokers {
		areas = append(areas, b.Area)
	}
	return CheckBrokersDisjoint(areas)
}

func validateTopics(topics []model.Topic) error {
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: topic name is required", ErrInvalidScenario)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: duplicate topic %q", ErrInvalidScenario, t.Name)
		}
		seen[t.Name] = struct{}{}

		if err := validateProbability("topic "+t.Name+" publication_probability", t.PublicationProbability); err != nil {
			return err
		}
		if err := validateIntRange("topic "+t.Name+" payload", t.Payload, 0); err != nil {
			return err
		}
		if t.SubscriptionGeofence != nil {
			if err := validateRadius("topic "+t.Name+" subscription geofence", *t.SubscriptionGeofence); err != nil {
				return err
			}
		}
		if t.MessageGeofence != nil {
			if err := validateRadius("topic "+t.Name+" message geofence", *t.MessageGeofence); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMobility(s model.Scenario) error {
	m := s.Mobility
	if err := validateProbability("mobility.probability", m.Probability); err != nil {
		return err
	}
	moves := m.Probability > 0
	for _, role := range model.Roles() {
		p := s.Timing(role).MobilityProbability
		if p == nil {
			continue
		}
		if err := validateProbability(string(role)+".mobility_probability", *p); err != nil {
			return err
		}
		if *p > 0 && s.Clients(role) > 0 {
			moves = true
		}
	}
	if m.Distance != nil && m.Speed != nil {
		return fmt.Errorf("%w: mobility takes either distance or speed, not both", ErrInvalidScenario)
	}
	if moves && m.Distance == nil && m.Speed == nil {
		return fmt.Errorf("%w: mobility probability > 0 needs a distance or speed range", ErrInvalidScenario)
	}
	if m.Distance != nil {
		if err := validateRange("mobility.distance_km", *m.Distance); err != nil {
			return err
		}
	}
	if m.Speed != nil {
		if err := validateRange("mobility.speed_kmh", *m.Speed); err != nil {
			return err
		}
	}
	return nil
}

func validateTiming(role model.ClientRole, t model.RoleTiming, scale, maxOffset int64) error {
	name := string(role)
	if err := validateIntRange(name+".start_offset", t.StartOffset, 0); err != nil {
		return err
	}
	if err := validateIntRange(name+".gap", t.Gap, 1); err != nil {
		return err
	}
	// Offsets of one tick must stay below the next tick's stamp.
	if t.Gap.Min*scale <= maxOffset {
		return fmt.Errorf("%w: %s.gap min %d x scale %d must exceed the per-tick offset %d",
			ErrInvalidScenario, name, t.Gap.Min, scale, maxOffset)
	}
	if role != model.RolePublisher && t.InitialPause*scale <= maxOffset/2 {
		return fmt.Errorf("%w: %s.initial_pause %d x scale %d must exceed the subscribe offset %d",
			ErrInvalidScenario, name, t.InitialPause, scale, maxOffset/2)
	}
	return nil
}

func validateProbability(name string, p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("%w: %s %d must be within [0, 100]", ErrInvalidScenario, name, p)
	}
	return nil
}

func validateIntRange(name string, r model.IntRange, minAllowed int64) error {
	if r.Min < minAllowed {
		return fmt.Errorf("%w: %s min %d must be >= %d", ErrInvalidScenario, name, r.Min, minAllowed)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%w: %s max %d must be >= min %d", ErrInvalidScenario, name, r.Max, r.Min)
	}
	return nil
}

func validateRange(name string, r model.Range) error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%w: %s [%v, %v] must satisfy 0 <= min <= max", ErrInvalidScenario, name, r.Min, r.Max)
	}
	if !(r.Max > 0) {
		return fmt.Errorf("%w: %s max must be > 0", ErrInvalidScenario, name)
	}
	return nil
}

func validateRadius(name string, r model.Range) error {
	if !(r.Min > 0) || r.Max < r.Min {
		return fmt.Errorf("%w: %s radius [%v, %v]: %w", ErrInvalidScenario, name, r.Min, r.Max, model.ErrInvalidGeofence)
	}
	return nil
}
