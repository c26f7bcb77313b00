package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Job Run Registry
// =============================================================================

// Outcome of a single job run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped" // lock held by another run
)

type jobEntry struct {
	latency   *LatencyTracker
	outcomes  map[Outcome]int64
	counters  map[string]int64
	lastRunAt time.Time
	lastError string
}

// JobRegistry aggregates per-job run metrics.
type JobRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	window int
}

// NewJobRegistry creates a new registry.
func NewJobRegistry(windowSize int) *JobRegistry {
	return &JobRegistry{
		jobs:   make(map[string]*jobEntry),
		window: windowSize,
	}
}

func (r *JobRegistry) entry(job string) *jobEntry {
	r.mu.RLock()
	e, ok := r.jobs[job]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.jobs[job]; !ok {
		e = &jobEntry{
			latency:  NewLatencyTracker(r.window),
			outcomes: make(map[Outcome]int64),
			counters: make(map[string]int64),
		}
		r.jobs[job] = e
	}
	return e
}

// RecordRun records one run. counters holds the run's result counters
// (inserted, skipped, processed, cancelled...) and is accumulated.
func (r *JobRegistry) RecordRun(job string, d time.Duration, outcome Outcome, counters map[string]int, runErr error) {
	e := r.entry(job)
	if outcome != OutcomeSkipped {
		e.latency.Record(d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.outcomes[outcome]++
	for k, v := range counters {
		e.counters[k] += int64(v)
	}
	e.lastRunAt = time.Now().UTC()
	if runErr != nil {
		e.lastError = runErr.Error()
	} else if outcome == OutcomeSuccess {
		e.lastError = ""
	}
}

// JobStats is a snapshot for one job.
type JobStats struct {
	Job       string           `json:"job"`
	Latency   map[string]any   `json:"latency"`
	Outcomes  map[string]int64 `json:"outcomes"`
	Counters  map[string]int64 `json:"counters"`
	LastRunAt *time.Time       `json:"last_run_at,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// Snapshot returns stats for every job, ordered by name.
func (r *JobRegistry) Snapshot() []JobStats {
	r.mu.RLock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	result := make([]JobStats, 0, len(names))
	for _, name := range names {
		e := r.entry(name)
		stats := JobStats{
			Job:      name,
			Latency:  e.latency.Stats().ToMap(),
			Outcomes: make(map[string]int64),
			Counters: make(map[string]int64),
		}

		r.mu.RLock()
		for k, v := range e.outcomes {
			stats.Outcomes[string(k)] = v
		}
		for k, v := range e.counters {
			stats.Counters[k] = v
		}
		if !e.lastRunAt.IsZero() {
			t := e.lastRunAt
			stats.LastRunAt = &t
		}
		stats.LastError = e.lastError
		r.mu.RUnlock()

		result = append(result, stats)
	}
	return result
}
