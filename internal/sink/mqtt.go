package sink

import (
	"context"
	"fmt"
	"iter"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// mqttPublisher is the part of mqtt.Client the sink uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink replays each action as a JSON message on
// <prefix>/<broker>/<client>. A positive rate paces publishing.
type MQTTSink struct {
	client  mqttPublisher
	prefix  string
	limiter *rate.Limiter
	metrics *observability.SinkCollector
}

// MQTTOptions configures NewMQTTSink.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	RatePerSec  float64
	Metrics     *observability.SinkCollector
}

// NewMQTTSink connects to the broker.
func NewMQTTSink(opts MQTTOptions) (*MQTTSink, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true)
	c := mqtt.NewClient(clientOpts)
	if err := awaitConnect(c.Connect(), opts.Broker, mqttConnectTimeout); err != nil {
		return nil, err
	}
	return newMQTTSinkWithClient(c, opts), nil
}

// awaitConnect blocks until the connect token completes. A token still
// pending after timeout is an error.
func awaitConnect(token mqtt.Token, broker string, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connect mqtt %s: %w", broker, ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect mqtt %s: %w", broker, err)
	}
	return nil
}

func newMQTTSinkWithClient(c mqttPublisher, opts MQTTOptions) *MQTTSink {
	s := &MQTTSink{client: c, prefix: opts.TopicPrefix, metrics: opts.Metrics}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec * 2)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return s
}

// Topic returns the MQTT topic a client's actions are published on.
func (s *MQTTSink) Topic(meta ClientMeta) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, meta.Broker, meta.ClientID)
}

func (s *MQTTSink) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	topic := s.Topic(meta)
	n := 0
	for a := range actions {
		if err := s.wait(ctx); err != nil {
			return n, err
		}
		data, err := encodeAction(meta, a)
		if err != nil {
			return n, err
		}
		token := s.client.Publish(topic, mqttQoS, false, data)
		if !token.WaitTimeout(mqttPublishTimeout) {
			return n, fmt.Errorf("mqtt publish to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return n, fmt.Errorf("mqtt publish to %s: %w", topic, err)
		}
		n++
	}
	return n, nil
}

func (s *MQTTSink) wait(ctx context.Context) error {
	if s.limiter == nil {
		return ctx.Err()
	}
	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.metrics.ObserveThrottle(time.Since(start))
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
