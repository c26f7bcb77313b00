package job

import (
	"context"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/in"
)

// Default schedules.
const (
	DefaultInboundCheckCron  = "*/5 * * * *"
	DefaultEmailObserverCron = "*/10 * * * *"
)

// InboundCheck wraps the sync engine as a job.
func InboundCheck(svc in.InboundSyncService, cron string) Definition {
	if cron == "" {
		cron = DefaultInboundCheckCron
	}
	return Definition{
		Name: domain.JobInboundCheck,
		Cron: cron,
		Handler: func(ctx context.Context) (map[string]int, error) {
			result, err := svc.RunInboundSync(ctx)
			return result.Counters(), err
		},
	}
}

// EmailObserver wraps the cancellation observer as a job.
func EmailObserver(svc in.CancellationObserverService, cron string) Definition {
	if cron == "" {
		cron = DefaultEmailObserverCron
	}
	return Definition{
		Name: domain.JobEmailObserver,
		Cron: cron,
		Handler: func(ctx context.Context) (map[string]int, error) {
			result, err := svc.RunCancellationObserver(ctx)
			return result.Counters(), err
		},
	}
}
