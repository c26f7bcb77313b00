package out

import (
	"context"
	"time"

	"leadestate_server/core/domain"
)

// JobLock is a per-job-name compare-and-swap. Acquire succeeds only when
// the job is not already marked running.
type JobLock interface {
	TryAcquire(ctx context.Context, name string) (bool, error)
	// Release clears the running flag after a failed run.
	Release(ctx context.Context, name string) error
	// Complete clears the running flag and records run times.
	Complete(ctx context.Context, name string, lastRun time.Time, nextRun *time.Time) error
}

// JobRepository stores job definitions.
type JobRepository interface {
	// Seed inserts the job if missing, leaving existing records untouched.
	Seed(ctx context.Context, job *domain.Job) error
	FindAll(ctx context.Context) ([]*domain.Job, error)
	FindByName(ctx context.Context, name string) (*domain.Job, error)
}
