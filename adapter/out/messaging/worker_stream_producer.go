// Package messaging provides Redis stream adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"leadestate_server/core/port/out"
)

// Stream names
const (
	StreamEvents     = "leadestate:events"
	StreamJobTrigger = "jobs:trigger"
)

// eventStreamMaxLen caps the events stream (approximate trim).
const eventStreamMaxLen = 10000

// RedisProducer publishes pipeline events and job triggers to Redis streams.
type RedisProducer struct {
	client *redis.Client
}

var (
	_ out.EventPublisher      = (*RedisProducer)(nil)
	_ out.JobTriggerPublisher = (*RedisProducer)(nil)
)

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// Publish appends a pipeline event.
func (p *RedisProducer) Publish(ctx context.Context, event *out.Event) error {
	return p.publish(ctx, StreamEvents, eventStreamMaxLen, map[string]interface{}{"type": event.Type}, event)
}

// PublishJobTrigger enqueues an out-of-schedule job run.
func (p *RedisProducer) PublishJobTrigger(ctx context.Context, trigger *out.JobTrigger) error {
	return p.publish(ctx, StreamJobTrigger, 0, map[string]interface{}{"job": trigger.Job}, trigger)
}

// publish publishes a payload to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream string, maxLen int64, fields map[string]interface{}, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	fields["data"] = string(data)

	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: fields,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// NopPublisher drops events. Used when Redis is not configured.
type NopPublisher struct{}

var _ out.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(ctx context.Context, event *out.Event) error { return nil }
