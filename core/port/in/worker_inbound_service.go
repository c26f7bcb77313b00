package in

import (
	"context"

	"leadestate_server/core/domain"
)

// InboundSyncService ingests new mailbox messages and answers new leads.
type InboundSyncService interface {
	RunInboundSync(ctx context.Context) (domain.SyncResult, error)
}

// CancellationObserverService scans booking replies for cancellations.
type CancellationObserverService interface {
	RunCancellationObserver(ctx context.Context) (domain.CancellationResult, error)
}
