package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

func TestValidateScenarioAcceptsValidScenarios(t *testing.T) {
	for _, s := range []model.Scenario{hikingScenario(t), cityScenario(t)} {
		if err := ValidateScenario(s); err != nil {
			t.Fatalf("ValidateScenario(%s): %v", s.Name, err)
		}
	}
}

func TestValidateScenarioRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Scenario)
	}{
		{"empty name", func(s *model.Scenario) { s.Name = " " }},
		{"unknown time unit", func(s *model.Scenario) { s.TimeUnit = "min" }},
		{"zero duration", func(s *model.Scenario) { s.Duration = 0 }},
		{"negative scale", func(s *model.Scenario) { s.TimestampScale = -1 }},
		{"no brokers", func(s *model.Scenario) { s.Brokers = nil }},
		{"unnamed broker", func(s *model.Scenario) { s.Brokers[0].Name = "" }},
		{"zero broker radius", func(s *model.Scenario) { s.Brokers[0].Area.Radius = 0 }},
		{"negative clients", func(s *model.Scenario) { s.Brokers[0].Subscribers = -1 }},
		{"negative machines", func(s *model.Scenario) { s.Brokers[0].WorkloadMachines = -1 }},
		{"duplicate topic", func(s *model.Scenario) { s.Topics = append(s.Topics, s.Topics[0]) }},
		{"probability above 100", func(s *model.Scenario) { s.Topics[0].PublicationProbability = 101 }},
		{"inverted payload", func(s *model.Scenario) { s.Topics[0].Payload = model.IntRange{Min: 10, Max: 5} }},
		{"zero subscription radius", func(s *model.Scenario) { s.Topics[1].SubscriptionGeofence = &model.Range{} }},
		{"mobility without range", func(s *model.Scenario) { s.Mobility.Distance = nil }},
		{"distance and speed", func(s *model.Scenario) { s.Mobility.Speed = &model.Range{Min: 1, Max: 2} }},
		{"negative mobility probability", func(s *model.Scenario) { s.Mobility.Probability = -1 }},
		{"role mobility above 100", func(s *model.Scenario) { s.Subscriber.MobilityProbability = model.Percent(101) }},
		{"role mobility without range", func(s *model.Scenario) {
			s.Mobility = model.Mobility{}
			s.Subscriber.MobilityProbability = model.Percent(10)
		}},
		{"zero gap", func(s *model.Scenario) { s.Subscriber.Gap = model.IntRange{} }},
		{"gap below offsets", func(s *model.Scenario) { s.Publisher.Gap = model.IntRange{Min: 4, Max: 10} }},
		{"pause below offsets", func(s *model.Scenario) { s.Subscriber.InitialPause = 2 }},
		{"negative start offset", func(s *model.Scenario) { s.Publisher.StartOffset = model.IntRange{Min: -1, Max: 5} }},
		{"no renewal", func(s *model.Scenario) { s.Renewal = model.Renewal{} }},
		{"no topics", func(s *model.Scenario) { s.Topics = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := cityScenario(t)
			tc.mutate(&s)
			if err := ValidateScenario(s); !errors.Is(err, ErrInvalidScenario) {
				t.Fatalf("ValidateScenario err = %v, want ErrInvalidScenario", err)
			}
		})
	}
}

func TestValidateScenarioRejectsOverlappingBrokers(t *testing.T) {
	s := cityScenario(t)
	second := s.Brokers[0]
	second.Name = "suburb"
	second.Area.Center = LocationInDistance(second.Area.Center, 4, 0)
	s.Brokers = append(s.Brokers, second)

	if err := ValidateScenario(s); !errors.Is(err, ErrBrokersOverlap) {
		t.Fatalf("ValidateScenario err = %v, want ErrBrokersOverlap", err)
	}

	s.Brokers[1].Area.Center = LocationInDistance(s.Brokers[0].Area.Center, 10, 0)
	if err := ValidateScenario(s); err != nil {
		t.Fatalf("ValidateScenario with 10 km between 3 km brokers: %v", err)
	}
}

func TestValidateScenarioAllowsIdleRoles(t *testing.T) {
	s := cityScenario(t)
	// No roaming clients, so the zero roaming timing is never checked.
	s.Roaming = model.RoleTiming{}
	s.Brokers[0].Subscribers = 0
	s.Renewal = model.Renewal{}
	if err := ValidateScenario(s); err != nil {
		t.Fatalf("ValidateScenario: %v", err)
	}
}
