package out

import (
	"context"
	"time"
)

// Event types published by the pipeline.
const (
	EventEmailReplied      = "email.replied"
	EventEmailFailed       = "email.failed"
	EventScheduleCancelled = "schedule.cancelled"
	EventJobCompleted      = "job.completed"
	EventJobFailed         = "job.failed"
)

// Event is a pipeline notification.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	RunID      string         `json:"run_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// EventPublisher publishes pipeline events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// JobTrigger requests an out-of-schedule run.
type JobTrigger struct {
	Job         string    `json:"job"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// JobTriggerPublisher enqueues job triggers for the worker.
type JobTriggerPublisher interface {
	PublishJobTrigger(ctx context.Context, trigger *JobTrigger) error
}
