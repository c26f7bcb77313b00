package out

import (
	"context"

	"leadestate_server/core/domain"
)

// ScheduleRepository exposes the bookings the observer may cancel.
type ScheduleRepository interface {
	// FindDetail loads a schedule with its lead and contact. Returns
	// nil, nil when the schedule does not exist.
	FindDetail(ctx context.Context, scheduleID string) (*domain.ScheduleDetail, error)
	// MarkCancelled flips the status to cancelled unless it already is.
	// It reports whether this call performed the transition.
	MarkCancelled(ctx context.Context, scheduleID string) (bool, error)
}

// LeadRepository applies the denormalized lead bookkeeping.
type LeadRepository interface {
	FindByID(ctx context.Context, leadID string) (*domain.Lead, error)
	ApplyCancellation(ctx context.Context, leadID string, c domain.LeadCancellation) error
}
