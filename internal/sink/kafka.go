package sink

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

const kafkaBatch = 100

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces one JSON message per action, keyed by client id so a
// client's actions stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a batching producer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    kafkaBatch,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: w}
}

func newKafkaSinkWithWriter(w messageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	key := []byte(meta.ClientID)
	batch := make([]kafka.Message, 0, kafkaBatch)
	written := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := k.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("kafka write for client %s: %w", meta.ClientID, err)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for a := range actions {
		data, err := encodeAction(meta, a)
		if err != nil {
			return written, err
		}
		batch = append(batch, kafka.Message{
			Key:   key,
			Value: data,
			Headers: []kafka.Header{
				{Key: "scenario", Value: []byte(meta.Scenario)},
				{Key: "action_type", Value: []byte(a.Type)},
			},
		})
		if len(batch) == kafkaBatch {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

// Close flushes pending messages and closes the connection.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
