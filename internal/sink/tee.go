package sink

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/signalsfoundry/iot-trace-generator/internal/config"
	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

// Tee fans every trace out to several sinks. Traces are single-use
// sequences, so Tee buffers each one before replaying it.
type Tee struct {
	sinks []Sink
}

// NewTee returns a sink writing to all of sinks in order.
func NewTee(sinks ...Sink) *Tee {
	return &Tee{sinks: sinks}
}

// WriteTrace returns the count reported by the first sink.
func (t *Tee) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	buffered := slices.Collect(actions)
	written := 0
	for i, s := range t.sinks {
		n, err := s.WriteTrace(ctx, meta, slices.Values(buffered))
		if err != nil {
			return written, err
		}
		if i == 0 {
			written = n
		}
	}
	return written, nil
}

func (t *Tee) WriteSummary(ctx context.Context, scenario string, summary []byte) error {
	for _, s := range t.sinks {
		if sw, ok := s.(SummaryWriter); ok {
			if err := sw.WriteSummary(ctx, scenario, summary); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tee) Close() error {
	var errs []error
	for _, s := range t.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Open builds the sinks named by a comma-separated list such as
// "csv,kafka", each instrumented under its own name.
func Open(ctx context.Context, names string, cfg config.Config, log logging.Logger, metrics *observability.SinkCollector) (Sink, error) {
	var opened []Sink
	for _, name := range strings.Split(names, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		s, err := openOne(ctx, name, cfg, log, metrics)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, err
		}
		opened = append(opened, Instrument(s, name, metrics))
	}
	switch len(opened) {
	case 0:
		return nil, fmt.Errorf("%w: empty sink list", ErrUnknownSink)
	case 1:
		return opened[0], nil
	default:
		return NewTee(opened...), nil
	}
}

func openOne(ctx context.Context, name string, cfg config.Config, log logging.Logger, metrics *observability.SinkCollector) (Sink, error) {
	switch name {
	case "csv":
		return NewCSVSink(ctx, cfg.OutputDir, log)
	case "memory":
		return NewMemorySink(), nil
	case "discard":
		return NewDiscardSink(), nil
	case "kafka":
		return NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case "postgres":
		return NewPostgresSink(ctx, cfg.Postgres.DSN)
	case "mqtt":
		return NewMQTTSink(MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    "tracegen-" + uuid.NewString(),
			TopicPrefix: cfg.MQTT.TopicPrefix,
			RatePerSec:  cfg.MQTT.RatePerSec,
			Metrics:     metrics,
		})
	case "redis":
		return NewRedisSink(ctx, cfg.Redis.Addr, cfg.Redis.StreamPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
	}
}
