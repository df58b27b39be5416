// Package sink delivers generated client traces to their destination: a
// CSV directory, memory, or an external system (Kafka, Postgres, MQTT,
// Redis streams).
package sink

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

var (
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("sink closed")
	// ErrUnknownSink is returned by the factory for unsupported sink names.
	ErrUnknownSink = errors.New("unknown sink")
	// ErrConnectTimeout is returned when a broker connection does not
	// complete in time.
	ErrConnectTimeout = errors.New("connect timed out")
)

var json = jsoniter.ConfigFastest

// ClientMeta identifies the client a trace belongs to.
type ClientMeta struct {
	Scenario string           `json:"scenario"`
	Broker   string           `json:"broker"`
	Machine  int              `json:"machine"`
	Role     model.ClientRole `json:"role"`
	ClientID string           `json:"client_id"`
}

// FileName is the per-client trace file name
// <broker>-<machine>-<Role>-<client>.csv.
func (m ClientMeta) FileName() string {
	return fmt.Sprintf("%s-%d-%s-%s.csv", m.Broker, m.Machine, m.Role.FileTag(), m.ClientID)
}

// Sink consumes client traces. WriteTrace drains actions and returns how
// many were written. Implementations must be safe for concurrent use.
type Sink interface {
	WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error)
	Close() error
}

// SummaryWriter is implemented by sinks that persist the run summary.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, scenario string, summary []byte) error
}

// actionMessage is the JSON form of one action on message-oriented sinks.
type actionMessage struct {
	ClientMeta
	Type        model.ActionType `json:"action_type"`
	Timestamp   int64            `json:"timestamp"`
	Lat         float64          `json:"lat"`
	Lon         float64          `json:"lon"`
	Topic       string           `json:"topic,omitempty"`
	Geofence    string           `json:"geofence,omitempty"`
	PayloadSize int              `json:"payload_size,omitempty"`
}

func newActionMessage(meta ClientMeta, a model.Action) actionMessage {
	msg := actionMessage{
		ClientMeta:  meta,
		Type:        a.Type,
		Timestamp:   a.Timestamp,
		Lat:         a.Location.Lat,
		Lon:         a.Location.Lon,
		Topic:       a.Topic,
		PayloadSize: a.PayloadSize,
	}
	if a.Geofence != nil {
		msg.Geofence = a.Geofence.WKT()
	}
	return msg
}

func encodeAction(meta ClientMeta, a model.Action) ([]byte, error) {
	data, err := json.Marshal(newActionMessage(meta, a))
	if err != nil {
		return nil, fmt.Errorf("encode %s action: %w", a.Type, err)
	}
	return data, nil
}

type instrumented struct {
	Sink
	name    string
	metrics *observability.SinkCollector
}

// Instrument records write latency, written actions and errors of s under
// name. A nil collector returns s unchanged.
func Instrument(s Sink, name string, metrics *observability.SinkCollector) Sink {
	if metrics == nil {
		return s
	}
	return &instrumented{Sink: s, name: name, metrics: metrics}
}

func (i *instrumented) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	start := time.Now()
	n, err := i.Sink.WriteTrace(ctx, meta, actions)
	i.metrics.ObserveWrite(i.name, n, time.Since(start), err)
	return n, err
}

func (i *instrumented) WriteSummary(ctx context.Context, scenario string, summary []byte) error {
	if sw, ok := i.Sink.(SummaryWriter); ok {
		return sw.WriteSummary(ctx, scenario, summary)
	}
	return nil
}
