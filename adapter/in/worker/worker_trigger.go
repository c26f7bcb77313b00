package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"leadestate_server/adapter/out/messaging"
	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/logger"
)

// TriggerHandler runs jobs requested on the trigger stream.
type TriggerHandler struct {
	runner JobRunner
}

var _ messaging.Handler = (*TriggerHandler)(nil)

func NewTriggerHandler(runner JobRunner) *TriggerHandler {
	return &TriggerHandler{runner: runner}
}

// Handle runs the named job once. Only a malformed payload is returned as an
// error, so it ends up in the dead letter stream; a locked or failed run is
// acknowledged because the next scheduled run covers it.
func (h *TriggerHandler) Handle(ctx context.Context, stream string, data []byte) error {
	var trigger out.JobTrigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		return fmt.Errorf("failed to decode job trigger: %w", err)
	}
	if !h.runner.Has(trigger.Job) {
		logger.Warn("[Trigger] Unknown job %q requested by %s", trigger.Job, trigger.RequestedBy)
		return nil
	}

	logger.Info("[Trigger] Running %s (requested by %s)", trigger.Job, trigger.RequestedBy)
	// a started batch is drained even if the consumer is stopping
	run, err := h.runner.Run(context.WithoutCancel(ctx), trigger.Job)
	switch {
	case errors.Is(err, domain.ErrJobLocked):
		logger.Info("[Trigger] %s already running, trigger dropped", trigger.Job)
	case err != nil:
		logger.Error("[Trigger] %s failed: %v", trigger.Job, err)
	default:
		logger.Info("[Trigger] %s done: %v", trigger.Job, run.Counters)
	}
	return nil
}
