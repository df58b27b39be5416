package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/iot-trace-generator/core"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

// ErrScenarioFile is returned when a scenario file cannot be decoded.
var ErrScenarioFile = errors.New("invalid scenario file")

// scenarioFile mirrors the on-disk YAML layout.
type scenarioFile struct {
	Name           string       `yaml:"name"`
	TimeUnit       string       `yaml:"time_unit"`
	TimestampScale int64        `yaml:"timestamp_scale"`
	Duration       int64        `yaml:"duration"`
	Brokers        []brokerFile `yaml:"brokers"`
	Topics         []topicFile  `yaml:"topics"`
	Mobility       mobilityFile `yaml:"mobility"`
	Publisher      timingFile   `yaml:"publisher"`
	Subscriber     timingFile   `yaml:"subscriber"`
	Roaming        timingFile   `yaml:"roaming"`
	Renewal        renewalFile  `yaml:"renewal"`
}

type brokerFile struct {
	Name             string         `yaml:"name"`
	Center           model.Location `yaml:"center"`
	RadiusKm         float64        `yaml:"radius_km"`
	RadiusDeg        float64        `yaml:"radius_deg"`
	Publishers       int            `yaml:"publishers"`
	Subscribers      int            `yaml:"subscribers"`
	Roamers          int            `yaml:"roamers"`
	WorkloadMachines *int           `yaml:"workload_machines"`
}

type topicFile struct {
	Name                       string           `yaml:"name"`
	PublicationProbability     int              `yaml:"publication_probability"`
	Payload                    model.IntRange   `yaml:"payload_bytes"`
	SubscriptionGeofence       *radiusRangeFile `yaml:"subscription_geofence"`
	StaticSubscriptionGeofence bool             `yaml:"static_subscription_geofence"`
	MessageGeofence            *radiusRangeFile `yaml:"message_geofence"`
}

// radiusRangeFile accepts either kilometres or degrees.
type radiusRangeFile struct {
	MinKm  float64 `yaml:"min_km"`
	MaxKm  float64 `yaml:"max_km"`
	MinDeg float64 `yaml:"min_deg"`
	MaxDeg float64 `yaml:"max_deg"`
}

type mobilityFile struct {
	Probability   int          `yaml:"probability"`
	DistanceKm    *model.Range `yaml:"distance_km"`
	SpeedKmh      *model.Range `yaml:"speed_kmh"`
	FixedHeading  bool         `yaml:"fixed_heading"`
	StartAtCenter bool         `yaml:"start_at_center"`
}

type timingFile struct {
	StartOffset  model.IntRange `yaml:"start_offset"`
	InitialPause int64          `yaml:"initial_pause"`
	Gap          model.IntRange `yaml:"gap"`
	PingOnStart  bool           `yaml:"ping_on_start"`
	Mobility     *int           `yaml:"mobility_probability"`
}

type renewalFile struct {
	Interval       model.IntRange `yaml:"interval"`
	DistanceMeters float64        `yaml:"distance_m"`
}

// LoadScenario decodes a YAML scenario and validates it.
func LoadScenario(r io.Reader) (model.Scenario, error) {
	var f scenarioFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return model.Scenario{}, fmt.Errorf("%w: %w", ErrScenarioFile, err)
	}

	s, err := f.toScenario()
	if err != nil {
		return model.Scenario{}, err
	}
	if err := core.ValidateScenario(s); err != nil {
		return model.Scenario{}, err
	}
	return s, nil
}

// LoadScenarioFile reads and validates the scenario at path.
func LoadScenarioFile(path string) (model.Scenario, error) {
	fh, err := os.Open(path)
	if err != nil {
		return model.Scenario{}, fmt.Errorf("open scenario %s: %w", path, err)
	}
	defer fh.Close()
	return LoadScenario(fh)
}

func (f scenarioFile) toScenario() (model.Scenario, error) {
	s := model.Scenario{
		Name:           f.Name,
		TimeUnit:       model.TimeUnit(f.TimeUnit),
		TimestampScale: f.TimestampScale,
		Duration:       f.Duration,
		Mobility: model.Mobility{
			Probability:   f.Mobility.Probability,
			Distance:      f.Mobility.DistanceKm,
			Speed:         f.Mobility.SpeedKmh,
			FixedHeading:  f.Mobility.FixedHeading,
			StartAtCenter: f.Mobility.StartAtCenter,
		},
		Publisher:  f.Publisher.toTiming(),
		Subscriber: f.Subscriber.toTiming(),
		Roaming:    f.Roaming.toTiming(),
		Renewal: model.Renewal{
			Interval:       f.Renewal.Interval,
			DistanceMeters: f.Renewal.DistanceMeters,
		},
	}
	if s.TimeUnit == "" {
		s.TimeUnit = model.Milliseconds
	}

	for _, b := range f.Brokers {
		area, err := b.area()
		if err != nil {
			return model.Scenario{}, fmt.Errorf("%w: broker %q: %w", ErrScenarioFile, b.Name, err)
		}
		machines := 1
		if b.WorkloadMachines != nil {
			machines = *b.WorkloadMachines
		}
		s.Brokers = append(s.Brokers, model.Broker{
			Name:             b.Name,
			Area:             area,
			Publishers:       b.Publishers,
			Subscribers:      b.Subscribers,
			Roamers:          b.Roamers,
			WorkloadMachines: machines,
		})
	}

	for _, t := range f.Topics {
		s.Topics = append(s.Topics, model.Topic{
			Name:                       t.Name,
			PublicationProbability:     t.PublicationProbability,
			Payload:                    t.Payload,
			SubscriptionGeofence:       t.SubscriptionGeofence.toDegrees(),
			StaticSubscriptionGeofence: t.StaticSubscriptionGeofence,
			MessageGeofence:            t.MessageGeofence.toDegrees(),
		})
	}
	return s, nil
}

func (b brokerFile) area() (model.Geofence, error) {
	if b.RadiusKm != 0 && b.RadiusDeg != 0 {
		return model.Geofence{}, errors.New("set radius_km or radius_deg, not both")
	}
	if b.RadiusKm != 0 {
		return model.CircleKm(b.Center, b.RadiusKm)
	}
	return model.Circle(b.Center, b.RadiusDeg)
}

func (r *radiusRangeFile) toDegrees() *model.Range {
	if r == nil {
		return nil
	}
	if r.MinKm != 0 || r.MaxKm != 0 {
		return &model.Range{Min: r.MinKm * model.KmToDeg, Max: r.MaxKm * model.KmToDeg}
	}
	return &model.Range{Min: r.MinDeg, Max: r.MaxDeg}
}

func (t timingFile) toTiming() model.RoleTiming {
	return model.RoleTiming{
		StartOffset:  t.StartOffset,
		InitialPause: t.InitialPause,
		Gap:          t.Gap,
		PingOnStart:  t.PingOnStart,

		MobilityProbability: t.Mobility,
	}
}
