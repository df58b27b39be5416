package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SinkCollector exposes trace sink Prometheus metrics.
type SinkCollector struct {
	gatherer prometheus.Gatherer

	WriteDuration  *prometheus.HistogramVec
	ActionsWritten *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	ThrottleWait   prometheus.Histogram
}

// NewSinkCollector registers sink metrics against the provided registerer.
func NewSinkCollector(reg prometheus.Registerer) (*SinkCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	writeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracegen_sink_write_duration_seconds",
		Help:    "Duration of writing one client trace to a sink.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"sink"})
	writeDuration, err := registerHistogramVec(reg, writeDuration, "tracegen_sink_write_duration_seconds")
	if err != nil {
		return nil, err
	}

	written := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_sink_actions_written_total",
		Help: "Actions accepted by a sink.",
	}, []string{"sink"})
	written, err = registerCounterVec(reg, written, "tracegen_sink_actions_written_total")
	if err != nil {
		return nil, err
	}

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracegen_sink_errors_total",
		Help: "Client traces a sink failed to write.",
	}, []string{"sink"})
	errs, err = registerCounterVec(reg, errs, "tracegen_sink_errors_total")
	if err != nil {
		return nil, err
	}

	throttle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracegen_sink_throttle_wait_seconds",
		Help:    "Time a rate-limited sink waited before publishing.",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
	})
	throttle, err = registerHistogram(reg, throttle, "tracegen_sink_throttle_wait_seconds")
	if err != nil {
		return nil, err
	}

	return &SinkCollector{
		gatherer:       gatherer,
		WriteDuration:  writeDuration,
		ActionsWritten: written,
		Errors:         errs,
		ThrottleWait:   throttle,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SinkCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveWrite records one client trace handed to sink.
func (c *SinkCollector) ObserveWrite(sink string, actions int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.WriteDuration.WithLabelValues(sink).Observe(d.Seconds())
	c.ActionsWritten.WithLabelValues(sink).Add(float64(actions))
	if err != nil {
		c.Errors.WithLabelValues(sink).Inc()
	}
}

// ObserveThrottle records how long a rate limiter held a publish back.
func (c *SinkCollector) ObserveThrottle(d time.Duration) {
	if c == nil || c.ThrottleWait == nil {
		return
	}
	c.ThrottleWait.Observe(d.Seconds())
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
