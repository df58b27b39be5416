package sink

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

// streamClient is the part of *redis.Client the sink uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisSink appends actions to one stream per scenario and broker,
// <prefix>:<scenario>:<broker>.
type RedisSink struct {
	client streamClient
	prefix string
}

// NewRedisSink connects to addr and checks the connection.
func NewRedisSink(ctx context.Context, addr, prefix string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisSinkWithClient(client, prefix), nil
}

func newRedisSinkWithClient(c streamClient, prefix string) *RedisSink {
	return &RedisSink{client: c, prefix: prefix}
}

// Stream returns the stream key for meta.
func (r *RedisSink) Stream(meta ClientMeta) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, meta.Scenario, meta.Broker)
}

func (r *RedisSink) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	stream := r.Stream(meta)
	n := 0
	for a := range actions {
		data, err := encodeAction(meta, a)
		if err != nil {
			return n, err
		}
		err = r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{
				"client_id":   meta.ClientID,
				"action_type": string(a.Type),
				"timestamp":   a.Timestamp,
				"action":      data,
			},
		}).Err()
		if err != nil {
			return n, fmt.Errorf("xadd %s: %w", stream, err)
		}
		n++
	}
	return n, nil
}

// WriteSummary stores the summary under <prefix>:<scenario>:summary.
func (r *RedisSink) WriteSummary(ctx context.Context, scenario string, summary []byte) error {
	key := fmt.Sprintf("%s:%s:summary", r.prefix, scenario)
	if err := r.client.Set(ctx, key, summary, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
