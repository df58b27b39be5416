package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

// ErrUnknownPreset is returned when no built-in scenario has the given name.
var ErrUnknownPreset = errors.New("unknown scenario preset")

var (
	columbus  = model.Location{Lat: 39.961332, Lon: -82.999083}
	frankfurt = model.Location{Lat: 50.106732, Lon: 8.663124}
	paris     = model.Location{Lat: 48.877366, Lon: 2.359708}
	norfolk   = model.Location{Lat: 36.843381, Lon: -76.275892}
)

var presets = map[string]func() model.Scenario{
	"hiking":               hiking,
	"environmental":        environmental,
	"data-distribution":    dataDistribution,
	"context-distribution": contextDistribution,
}

// PresetNames lists the built-in scenarios in lexical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Presets returns a fresh copy of every built-in scenario.
func Presets() []model.Scenario {
	out := make([]model.Scenario, 0, len(presets))
	for _, name := range PresetNames() {
		out = append(out, presets[name]())
	}
	return out
}

// Preset returns the built-in scenario called name.
func Preset(name string) (model.Scenario, error) {
	build, ok := presets[name]
	if !ok {
		return model.Scenario{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return build(), nil
}

// hiking: roamers walking around trail areas, broadcasting road conditions
// and free text to hikers nearby.
func hiking() model.Scenario {
	return model.Scenario{
		Name:           "hiking",
		TimeUnit:       model.Seconds,
		TimestampScale: 1000,
		Duration:       1800,
		Brokers: []model.Broker{
			{Name: "Columbus", Area: model.MustCircle(columbus, 5.0), Roamers: 100, WorkloadMachines: 2},
			{Name: "Frankfurt", Area: model.MustCircle(frankfurt, 2.1), Roamers: 100, WorkloadMachines: 2},
			{Name: "Paris", Area: model.MustCircle(paris, 2.1), Roamers: 100, WorkloadMachines: 2},
		},
		Topics: []model.Topic{
			{
				Name:                   "road",
				PublicationProbability: 10,
				Payload:                model.Fixed(100),
				SubscriptionGeofence:   kmRange(0.5, 0.5),
				MessageGeofence:        kmRange(0.5, 0.5),
			},
			{
				Name:                       "text",
				PublicationProbability:     50,
				Payload:                    model.IntRange{Min: 10, Max: 1000},
				SubscriptionGeofence:       kmRange(1, 50),
				StaticSubscriptionGeofence: true,
				MessageGeofence:            kmRange(1, 50),
			},
		},
		Mobility: model.Mobility{
			Probability:  100,
			Speed:        &model.Range{Min: 2, Max: 8},
			FixedHeading: true,
		},
		Roaming: model.RoleTiming{
			Gap:          model.IntRange{Min: 5, Max: 10},
			InitialPause: 1,
		},
		Renewal: model.Renewal{DistanceMeters: 50},
	}
}

// environmental: stationary-ish sensors publishing readings to subscribers
// interested in their surroundings.
func environmental() model.Scenario {
	return model.Scenario{
		Name:     "environmental",
		TimeUnit: model.Milliseconds,
		Duration: 1800000,
		Brokers: []model.Broker{
			{Name: "Frankfurt", Area: model.MustCircle(frankfurt, 2.1), Publishers: 3, Subscribers: 2, WorkloadMachines: 1},
			{Name: "Paris", Area: model.MustCircle(paris, 2.1), Publishers: 3, Subscribers: 2, WorkloadMachines: 1},
			{Name: "Norfolk", Area: model.MustCircle(norfolk, 5.0), Publishers: 3, Subscribers: 2, WorkloadMachines: 1},
		},
		Topics: []model.Topic{
			{
				Name:                   "temperature",
				PublicationProbability: 100,
				Payload:                model.Fixed(100),
				SubscriptionGeofence:   kmRange(1, 500),
			},
			{
				Name:                   "humidity",
				PublicationProbability: 100,
				Payload:                model.IntRange{Min: 50, Max: 150},
				SubscriptionGeofence:   kmRange(1, 500),
			},
			{
				Name:                   "barometric_pressure",
				PublicationProbability: 100,
				Payload:                model.IntRange{Min: 10, Max: 75},
				SubscriptionGeofence:   kmRange(1, 500),
			},
		},
		Mobility: model.Mobility{
			Probability: 10,
			Distance:    &model.Range{Min: 20, Max: 80},
		},
		Publisher: model.RoleTiming{
			StartOffset: model.IntRange{Min: 0, Max: 2000},
			Gap:         model.IntRange{Min: 2000, Max: 15000},
			PingOnStart: true,
			// sensors are fixed
			MobilityProbability: model.Percent(0),
		},
		Subscriber: model.RoleTiming{
			StartOffset:  model.IntRange{Min: 0, Max: 3000},
			InitialPause: 1000,
			Gap:          model.IntRange{Min: 3000, Max: 12000},
		},
		Renewal: model.Renewal{Interval: model.IntRange{Min: 300000, Max: 900000}},
	}
}

// dataDistribution: publishers attach message geofences so that only nearby
// subscribers receive their data.
func dataDistribution() model.Scenario {
	return model.Scenario{
		Name:     "data-distribution",
		TimeUnit: model.Milliseconds,
		Duration: 1800000,
		Brokers: []model.Broker{
			{Name: "Columbus", Area: model.MustCircle(columbus, 5.0), Publishers: 3, Subscribers: 2, WorkloadMachines: 3},
			{Name: "Frankfurt", Area: model.MustCircle(frankfurt, 2.1), Publishers: 3, Subscribers: 2, WorkloadMachines: 3},
			{Name: "Paris", Area: model.MustCircle(paris, 2.1), Publishers: 3, Subscribers: 2, WorkloadMachines: 3},
		},
		Topics: []model.Topic{
			{
				Name:                   "temperature",
				PublicationProbability: 100,
				Payload:                model.Fixed(100),
				MessageGeofence:        kmRange(1, 10),
			},
			{
				Name:                   "humidity",
				PublicationProbability: 100,
				Payload:                model.IntRange{Min: 50, Max: 150},
				MessageGeofence:        kmRange(1, 10),
			},
			{
				Name:                   "public_announcement",
				PublicationProbability: 100,
				Payload:                model.IntRange{Min: 10, Max: 75},
				MessageGeofence:        kmRange(40, 120),
			},
		},
		Mobility: model.Mobility{
			Probability: 50,
			Distance:    &model.Range{Min: 1, Max: 20},
		},
		Publisher: model.RoleTiming{
			StartOffset: model.IntRange{Min: 0, Max: 2000},
			Gap:         model.IntRange{Min: 2000, Max: 70000},
		},
		Subscriber: model.RoleTiming{
			StartOffset:  model.IntRange{Min: 0, Max: 3000},
			InitialPause: 1000,
			Gap:          model.IntRange{Min: 3000, Max: 12000},
			// subscribers move and ping every tick
			MobilityProbability: model.Percent(100),
		},
		Renewal: model.Renewal{Interval: model.IntRange{Min: 300000, Max: 3600000}},
	}
}

// contextDistribution is data-distribution with rarer publications and less
// publisher movement.
func contextDistribution() model.Scenario {
	s := dataDistribution()
	s.Name = "context-distribution"
	s.Publisher.Gap = model.IntRange{Min: 2000, Max: 150000}
	s.Mobility.Probability = 40
	return s
}

func kmRange(minKm, maxKm float64) *model.Range {
	return &model.Range{Min: minKm * model.KmToDeg, Max: maxKm * model.KmToDeg}
}
