package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadestate_server/core/domain"
	"leadestate_server/core/service/job"
	"leadestate_server/pkg/logger"
)

// JobRunner is the part of job.Runner the worker needs.
type JobRunner interface {
	Names() []string
	Has(name string) bool
	List(ctx context.Context) ([]*domain.Job, error)
	ScheduleFor(ctx context.Context, name string) (job.Schedule, error)
	Run(ctx context.Context, name string) (*domain.JobRun, error)
}

var _ JobRunner = (*job.Runner)(nil)

// =============================================================================
// Scheduler - one loop per enabled job
// =============================================================================
//
// Each loop sleeps until the schedule's next fire time and calls Run. Run
// takes the job lock, so a tick that lands on a running job is skipped.

type Scheduler struct {
	runner JobRunner
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(runner JobRunner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches a loop for every registered job whose record is enabled.
// Jobs with an invalid schedule are logged and left out.
func (s *Scheduler) Start() {
	logger.Info("[Scheduler] Starting...")

	disabled := s.disabledJobs()
	for _, name := range s.runner.Names() {
		if disabled[name] {
			logger.Info("[Scheduler] %s is disabled, not scheduling", name)
			continue
		}
		sched, err := s.runner.ScheduleFor(s.ctx, name)
		if err != nil {
			logger.WithError(err).Error("[Scheduler] Invalid schedule for %s", name)
			continue
		}

		logger.Info("[Scheduler] Scheduled %s every %s", name, sched.Interval())
		s.wg.Add(1)
		go s.loop(name, sched)
	}
}

// Stop ends the loops. A run already in progress finishes its batch.
func (s *Scheduler) Stop() {
	logger.Info("[Scheduler] Stopping...")
	s.cancel()
	s.wg.Wait()
	logger.Info("[Scheduler] Stopped")
}

func (s *Scheduler) disabledJobs() map[string]bool {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	disabled := make(map[string]bool)
	jobs, err := s.runner.List(ctx)
	if err != nil {
		logger.Warn("[Scheduler] Failed to load job records, scheduling all: %v", err)
		return disabled
	}
	for _, j := range jobs {
		if !j.Enabled {
			disabled[j.Name] = true
		}
	}
	return disabled
}

func (s *Scheduler) loop(name string, sched job.Schedule) {
	defer s.wg.Done()

	for {
		wait := sched.Next(s.now()).Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runOnce(name)
	}
}

// runOnce detaches from the scheduler context so Stop does not cut a batch short.
func (s *Scheduler) runOnce(name string) {
	ctx := context.WithoutCancel(s.ctx)

	run, err := s.runner.Run(ctx, name)
	switch {
	case errors.Is(err, domain.ErrJobLocked):
		logger.Debug("[Scheduler] %s still running, tick skipped", name)
	case err != nil:
		logger.Error("[Scheduler] %s failed: %v", name, err)
	case run != nil:
		logger.WithField("job", name).WithDuration(run.Duration).Info("[Scheduler] %s done: %v", name, run.Counters)
	}
}
