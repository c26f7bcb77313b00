package domain

import (
	"errors"
	"time"
)

// Job names.
const (
	JobInboundCheck  = "inbound_check"
	JobEmailObserver = "email_observer"
)

// Job is a scheduled job record. Running doubles as the lock flag.
type Job struct {
	Name      string
	Cron      string
	Running   bool
	Enabled   bool
	LastRun   *time.Time
	NextRun   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobRun describes a finished run.
type JobRun struct {
	RunID     string         `json:"run_id"`
	Job       string         `json:"job"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Counters  map[string]int `json:"counters,omitempty"`
	Error     string         `json:"error,omitempty"`
}

var (
	// ErrJobLocked means another run holds the job's lock.
	ErrJobLocked = errors.New("job is already running")
	// ErrUnknownJob means no handler is registered under that name.
	ErrUnknownJob = errors.New("unknown job")
	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by stores on unique key conflicts.
	ErrDuplicate = errors.New("duplicate key")
)
