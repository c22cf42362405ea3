package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream records are published to.
const DefaultStream = "auditsim:records"

// RedisRecorder publishes records to a Redis stream and keeps per-outcome
// counters in a hash next to it.
type RedisRecorder struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisRecorder publishes to stream, trimming it to maxLen entries when
// maxLen > 0.
func NewRedisRecorder(client *redis.Client, stream string, maxLen int64) *RedisRecorder {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisRecorder{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisRecorder) countsKey() string {
	return fmt.Sprintf("%s:outcomes", r.stream)
}

// Record implements Recorder.
func (r *RedisRecorder) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			MaxLen: r.maxLen,
			Values: map[string]any{
				"agent_id": rec.AgentID,
				"outcome":  rec.Outcome,
				"record":   body,
			},
		})
		p.HIncrBy(ctx, r.countsKey(), rec.Outcome, 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish record %s: %w", rec.ID, err)
	}
	return nil
}

// Read returns up to count records from the start of the stream.
func (r *RedisRecorder) Read(ctx context.Context, count int64) ([]Record, error) {
	msgs, err := r.client.XRangeN(ctx, r.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	out := make([]Record, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["record"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no record", m.ID)
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("stream entry %s: %w", m.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Outcomes returns the per-outcome counters.
func (r *RedisRecorder) Outcomes(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.countsKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			return nil, fmt.Errorf("outcome %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// Close closes the client.
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
