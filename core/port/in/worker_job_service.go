package in

import (
	"context"

	"leadestate_server/core/domain"
)

// JobService runs named jobs under their lock.
type JobService interface {
	Run(ctx context.Context, name string) (*domain.JobRun, error)
	List(ctx context.Context) ([]*domain.Job, error)
	Has(name string) bool
}
