package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/in"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/metrics"
)

// =============================================================================
// Runner - named jobs behind a per-name lock
// =============================================================================
//
// An overlapping trigger for a running job is skipped, never queued.

// Handler runs one job and returns its counters.
type Handler func(ctx context.Context) (map[string]int, error)

// Definition registers a job with its default schedule.
type Definition struct {
	Name    string
	Cron    string
	Handler Handler
}

type Runner struct {
	lock    out.JobLock
	jobs    out.JobRepository
	metrics *metrics.JobRegistry
	events  out.EventPublisher

	mu       sync.RWMutex
	handlers map[string]Definition

	now      func() time.Time
	newRunID func() string
}

func NewRunner(
	lock out.JobLock,
	jobs out.JobRepository,
	registry *metrics.JobRegistry,
	events out.EventPublisher,
) *Runner {
	if registry == nil {
		registry = metrics.NewJobRegistry(100)
	}
	return &Runner{
		lock:     lock,
		jobs:     jobs,
		metrics:  registry,
		events:   events,
		handlers: make(map[string]Definition),
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
}

var _ in.JobService = (*Runner)(nil)

// Register adds a job. The cron expression is validated here.
func (r *Runner) Register(def Definition) error {
	if def.Name == "" || def.Handler == nil {
		return apperr.ConfigError("job name and handler are required")
	}
	if _, err := ParseSchedule(def.Cron); err != nil {
		return err
	}
	r.mu.Lock()
	r.handlers[def.Name] = def
	r.mu.Unlock()
	return nil
}

// Has reports whether a handler is registered.
func (r *Runner) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered job names, sorted.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics exposes the run registry.
func (r *Runner) Metrics() *metrics.JobRegistry {
	return r.metrics
}

// SeedJobs writes a record for every registered job that has none yet.
func (r *Runner) SeedJobs(ctx context.Context) error {
	if r.jobs == nil {
		return nil
	}
	for _, name := range r.Names() {
		def := r.definition(name)
		now := r.now().UTC()
		err := r.jobs.Seed(ctx, &domain.Job{
			Name:      def.Name,
			Cron:      def.Cron,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed job %s: %w", name, err)
		}
	}
	return nil
}

// List returns the stored job records.
func (r *Runner) List(ctx context.Context) ([]*domain.Job, error) {
	if r.jobs == nil {
		return nil, nil
	}
	return r.jobs.FindAll(ctx)
}

// ScheduleFor resolves the effective schedule: the stored cron, falling back
// to the registered default.
func (r *Runner) ScheduleFor(ctx context.Context, name string) (Schedule, error) {
	def := r.definition(name)
	expr := def.Cron
	if r.jobs != nil {
		if stored, err := r.jobs.FindByName(ctx, name); err == nil && stored != nil && stored.Cron != "" {
			expr = stored.Cron
		}
	}
	return ParseSchedule(expr)
}

// Run executes the named job once under its lock.
func (r *Runner) Run(ctx context.Context, name string) (*domain.JobRun, error) {
	if !r.Has(name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}
	def := r.definition(name)

	acquired, err := r.lock.TryAcquire(ctx, name)
	if err != nil {
		return nil, apperr.DatabaseError("acquire job lock", err)
	}
	if !acquired {
		logger.Info("[JobRunner] %s already running, skipping", name)
		r.metrics.RecordRun(name, 0, metrics.OutcomeSkipped, nil, nil)
		return nil, domain.ErrJobLocked
	}

	run := &domain.JobRun{
		RunID:     r.newRunID(),
		Job:       name,
		StartedAt: r.now().UTC(),
	}
	runCtx := logger.WithRunID(ctx, run.RunID)
	log := logger.WithContext(runCtx).WithField("job", name)
	log.Info("[JobRunner] Starting %s", name)

	counters, runErr := r.execute(runCtx, def)
	run.Duration = r.now().Sub(run.StartedAt)
	run.Counters = counters

	// lock bookkeeping must not be skipped when the caller's context ends
	lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if runErr != nil {
		run.Error = runErr.Error()
		if err := r.lock.Release(lockCtx, name); err != nil {
			log.WithError(err).Error("[JobRunner] Failed to release lock")
		}
		r.metrics.RecordRun(name, run.Duration, metrics.OutcomeFailure, counters, runErr)
		r.publish(runCtx, out.EventJobFailed, run)
		log.WithDuration(run.Duration).WithError(runErr).Error("[JobRunner] %s failed", name)
		return run, runErr
	}

	var nextRun *time.Time
	if sched, err := r.ScheduleFor(lockCtx, name); err == nil {
		next := sched.Next(r.now()).UTC()
		nextRun = &next
	}
	if err := r.lock.Complete(lockCtx, name, r.now().UTC(), nextRun); err != nil {
		log.WithError(err).Error("[JobRunner] Failed to complete lock")
	}

	r.metrics.RecordRun(name, run.Duration, metrics.OutcomeSuccess, counters, nil)
	r.publish(runCtx, out.EventJobCompleted, run)
	log.WithDuration(run.Duration).WithFields(toFields(counters)).Info("[JobRunner] %s completed", name)
	return run, nil
}

// execute calls the handler, turning a panic into an error so the lock is
// always released.
func (r *Runner) execute(ctx context.Context, def Definition) (counters map[string]int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperr.Internal(fmt.Sprintf("job %s panicked: %v", def.Name, rec))
		}
	}()
	return def.Handler(ctx)
}

func (r *Runner) definition(name string) Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

func (r *Runner) publish(ctx context.Context, eventType string, run *domain.JobRun) {
	if r.events == nil {
		return
	}
	data := map[string]any{
		"job":         run.Job,
		"duration_ms": run.Duration.Milliseconds(),
	}
	if len(run.Counters) > 0 {
		data["counters"] = run.Counters
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	event := &out.Event{
		Type:       eventType,
		OccurredAt: r.now().UTC(),
		RunID:      run.RunID,
		Data:       data,
	}
	if err := r.events.Publish(ctx, event); err != nil {
		logger.Warn("[JobRunner] Failed to publish %s: %v", eventType, err)
	}
}

func toFields(counters map[string]int) map[string]any {
	fields := make(map[string]any, len(counters))
	for k, v := range counters {
		fields[k] = v
	}
	return fields
}

// IsSkipped reports whether err means the run was skipped because the lock is held.
func IsSkipped(err error) bool {
	return errors.Is(err, domain.ErrJobLocked)
}
