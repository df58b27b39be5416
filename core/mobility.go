package core

import (
	"context"
	"math/rand/v2"

	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

const (
	// headingJitterDeg spreads each step around the preferred heading.
	headingJitterDeg = 10.0
	// After this many rejected candidates the walk turns around.
	reverseAfterRejections = 30
	// After this many rejected candidates the walk stays put.
	giveUpAfterRejections = 32
)

// StepModel draws the length of one mobility step.
type StepModel interface {
	// StepKm returns a distance in kilometres for a step that spans elapsed
	// clock units.
	StepKm(rng *rand.Rand, elapsed int64) float64
}

// DistanceRangeStep draws a step length uniformly from a km range,
// independent of elapsed time.
type DistanceRangeStep struct {
	Km model.Range
}

// StepKm implements StepModel.
func (s DistanceRangeStep) StepKm(rng *rand.Rand, _ int64) float64 {
	return s.Km.Draw(rng)
}

// SpeedRangeStep draws a speed in km/h and converts it to a distance using
// the elapsed clock units.
type SpeedRangeStep struct {
	Kmh          model.Range
	UnitsPerHour float64
}

// StepKm implements StepModel.
func (s SpeedRangeStep) StepKm(rng *rand.Rand, elapsed int64) float64 {
	speed := s.Kmh.Draw(rng)
	if s.UnitsPerHour <= 0 {
		return 0
	}
	return speed * float64(elapsed) / s.UnitsPerHour
}

// stationaryStep never moves. Used when a scenario has no mobility range.
type stationaryStep struct{}

func (stationaryStep) StepKm(*rand.Rand, int64) float64 { return 0 }

// NewStepModel chooses a StepModel for the mobility configuration. Speed is
// converted with the scenario's clock unit.
func NewStepModel(m model.Mobility, unit model.TimeUnit) StepModel {
	switch {
	case m.Distance != nil:
		return DistanceRangeStep{Km: *m.Distance}
	case m.Speed != nil:
		return SpeedRangeStep{Kmh: *m.Speed, UnitsPerHour: unit.UnitsPerHour()}
	default:
		return stationaryStep{}
	}
}

// Move is the outcome of one mobility step.
type Move struct {
	Location   model.Location
	DistanceKm float64
	// Attempts counts projected candidates, including the accepted one.
	Attempts int
	// GaveUp is set when no candidate fell inside the bounds; Location is
	// then the starting point and DistanceKm is zero.
	GaveUp bool
}

// Engine walks clients inside a bounding geofence by rejection sampling.
type Engine struct {
	bounds model.Geofence
	step   StepModel
	log    logging.Logger
}

// NewEngine returns an engine confined to bounds. A nil logger drops logs.
func NewEngine(bounds model.Geofence, step StepModel, log logging.Logger) *Engine {
	if step == nil {
		step = stationaryStep{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{bounds: bounds, step: step, log: log}
}

// Bounds returns the geofence every accepted location lies in.
func (e *Engine) Bounds() model.Geofence { return e.bounds }

// Next draws a step from `from` roughly along heading (degrees). Candidates
// outside the bounds are rejected; after reverseAfterRejections the heading
// is turned around and after giveUpAfterRejections the engine returns the
// starting location. Next always terminates after at most
// giveUpAfterRejections+1 attempts.
func (e *Engine) Next(ctx context.Context, rng *rand.Rand, from model.Location, heading float64, elapsed int64) Move {
	rejections := 0
	for {
		distance := e.step.StepKm(rng, elapsed)
		direction := heading - headingJitterDeg + rng.Float64()*2*headingJitterDeg
		if rejections > reverseAfterRejections {
			direction += 180
		}

		candidate := LocationInDistance(from, distance, direction)
		if e.bounds.Contains(candidate) {
			e.log.Debug(ctx, "mobility step accepted",
				logging.Float("distance_km", distance),
				logging.Float("heading", direction),
				logging.Int("attempts", rejections+1),
			)
			return Move{Location: candidate, DistanceKm: distance, Attempts: rejections + 1}
		}

		rejections++
		if rejections > giveUpAfterRejections {
			e.log.Warn(ctx, "no location inside bounds, staying put",
				logging.String("location", from.String()),
				logging.Int("attempts", rejections),
			)
			return Move{Location: from, Attempts: rejections, GaveUp: true}
		}
	}
}
