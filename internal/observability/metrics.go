package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GeneratorCollector bundles Prometheus metrics for trace generation runs
// and exposes them over HTTP.
type GeneratorCollector struct {
	gatherer prometheus.Gatherer

	Actions         *prometheus.CounterVec
	Clients         *prometheus.CounterVec
	MobilityGiveUps *prometheus.CounterVec
	DistanceKm      *prometheus.CounterVec
	PayloadBytes    *prometheus.CounterVec
	ClientDurations *prometheus.HistogramVec
	RunsInProgress  prometheus.Gauge
}

// ClientObservation is the per-client outcome recorded after a trace has
// been written.
type ClientObservation struct {
	Scenario     string
	Broker       string
	Role         string
	Pings        int64
	Subscribes   int64
	Publishes    int64
	PayloadBytes int64
	DistanceKm   float64
	GiveUps      int64
	Elapsed      time.Duration
}

// NewGeneratorCollector registers generator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewGeneratorCollector(reg prometheus.Registerer) (*GeneratorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	actions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_actions_total",
		Help: "Generated trace actions, labeled by scenario, broker and action kind.",
	}, []string{"scenario", "broker", "kind"}), "tracegen_actions_total")
	if err != nil {
		return nil, err
	}

	clients, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_clients_total",
		Help: "Generated client traces, labeled by scenario, broker and role.",
	}, []string{"scenario", "broker", "role"}), "tracegen_clients_total")
	if err != nil {
		return nil, err
	}

	giveUps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_mobility_giveups_total",
		Help: "Mobility steps that found no location inside the broker area.",
	}, []string{"scenario"}), "tracegen_mobility_giveups_total")
	if err != nil {
		return nil, err
	}

	distance, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_distance_km_total",
		Help: "Distance travelled by generated clients in kilometres.",
	}, []string{"scenario"}), "tracegen_distance_km_total")
	if err != nil {
		return nil, err
	}

	payload, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_payload_bytes_total",
		Help: "Payload bytes of generated publish actions.",
	}, []string{"scenario"}), "tracegen_payload_bytes_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracegen_client_generation_seconds",
		Help:    "Wall time to generate and write one client trace.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"role"}), "tracegen_client_generation_seconds")
	if err != nil {
		return nil, err
	}

	inProgress, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracegen_runs_in_progress",
		Help: "Generator runs currently executing.",
	}), "tracegen_runs_in_progress")
	if err != nil {
		return nil, err
	}

	return &GeneratorCollector{
		gatherer:        gatherer,
		Actions:         actions,
		Clients:         clients,
		MobilityGiveUps: giveUps,
		DistanceKm:      distance,
		PayloadBytes:    payload,
		ClientDurations: durations,
		RunsInProgress:  inProgress,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *GeneratorCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GeneratorCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveClient records one finished client trace.
func (c *GeneratorCollector) ObserveClient(o ClientObservation) {
	if c == nil {
		return
	}
	c.Actions.WithLabelValues(o.Scenario, o.Broker, "ping").Add(float64(o.Pings))
	c.Actions.WithLabelValues(o.Scenario, o.Broker, "subscribe").Add(float64(o.Subscribes))
	c.Actions.WithLabelValues(o.Scenario, o.Broker, "publish").Add(float64(o.Publishes))
	c.Clients.WithLabelValues(o.Scenario, o.Broker, o.Role).Inc()
	c.MobilityGiveUps.WithLabelValues(o.Scenario).Add(float64(o.GiveUps))
	c.DistanceKm.WithLabelValues(o.Scenario).Add(o.DistanceKm)
	c.PayloadBytes.WithLabelValues(o.Scenario).Add(float64(o.PayloadBytes))
	c.ClientDurations.WithLabelValues(o.Role).Observe(o.Elapsed.Seconds())
}

// RunStarted increments the in-progress gauge and returns a func that
// decrements it.
func (c *GeneratorCollector) RunStarted() (done func()) {
	if c == nil || c.RunsInProgress == nil {
		return func() {}
	}
	c.RunsInProgress.Inc()
	return c.RunsInProgress.Dec
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
