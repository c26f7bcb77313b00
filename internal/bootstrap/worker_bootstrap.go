package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leadestate_server/adapter/in/worker"
	"leadestate_server/adapter/out/messaging"
	"leadestate_server/config"
	"leadestate_server/pkg/logger"
)

const triggerConsumerGroup = "leadestate-workers"

// Worker runs the job scheduler and the trigger stream consumer.
type Worker struct {
	deps      *Dependencies
	scheduler *worker.Scheduler
	consumer  *messaging.Consumer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   logger.Component("worker"),
	}

	if cfg.SchedulerEnabled {
		w.scheduler = worker.NewScheduler(deps.JobRunner)
	} else {
		logger.Info("Scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	// Redis Stream Consumer (only with Redis)
	if deps.Redis != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:                triggerConsumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              []string{messaging.StreamJobTrigger},
			Handler:              worker.NewTriggerHandler(deps.JobRunner),
			Logger:               logger.Component("trigger-consumer"),
			Block:                time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
			PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
			MaxRetries:           cfg.ConsumerMaxRetries,
		})
		logger.Info("Redis Stream Consumer configured for %s", messaging.StreamJobTrigger)
	} else {
		logger.Warn("Redis not available, jobs run on schedule only")
	}

	return w
}

// Start launches the scheduler and consumer, then blocks until Stop.
func (w *Worker) Start() {
	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	if w.scheduler != nil {
		w.scheduler.Start()
		w.zlog.Info().Msg("Started job scheduler")
	}

	<-w.ctx.Done()
}

// Stop stops scheduling new runs and waits for the consumer to exit.
func (w *Worker) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
