package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
	"leadestate_server/core/service/job"
)

type fastSchedule time.Duration

func (s fastSchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(s)) }
func (s fastSchedule) Interval() time.Duration    { return time.Duration(s) }

type fakeRunner struct {
	mu       sync.Mutex
	names    []string
	records  []*domain.Job
	runs     map[string]int
	runErr   error
	schedErr map[string]error
}

func newFakeRunner(names ...string) *fakeRunner {
	return &fakeRunner{names: names, runs: make(map[string]int), schedErr: make(map[string]error)}
}

func (f *fakeRunner) Names() []string { return f.names }

func (f *fakeRunner) Has(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

func (f *fakeRunner) List(ctx context.Context) ([]*domain.Job, error) { return f.records, nil }

func (f *fakeRunner) ScheduleFor(ctx context.Context, name string) (job.Schedule, error) {
	if err := f.schedErr[name]; err != nil {
		return nil, err
	}
	return fastSchedule(5 * time.Millisecond), nil
}

func (f *fakeRunner) Run(ctx context.Context, name string) (*domain.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[name]++
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &domain.JobRun{Job: name, Counters: map[string]int{"inserted": 1}}, nil
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[name]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_RunsEnabledJobs(t *testing.T) {
	runner := newFakeRunner(domain.JobInboundCheck, domain.JobEmailObserver)
	runner.records = []*domain.Job{
		{Name: domain.JobInboundCheck, Enabled: true},
		{Name: domain.JobEmailObserver, Enabled: false},
	}

	s := NewScheduler(runner)
	s.Start()
	waitFor(t, func() bool { return runner.count(domain.JobInboundCheck) >= 2 })
	s.Stop()

	if got := runner.count(domain.JobEmailObserver); got != 0 {
		t.Errorf("expected disabled job not to run, got %d runs", got)
	}

	after := runner.count(domain.JobInboundCheck)
	time.Sleep(30 * time.Millisecond)
	if got := runner.count(domain.JobInboundCheck); got != after {
		t.Errorf("expected no runs after Stop, got %d more", got-after)
	}
}

func TestScheduler_InvalidScheduleIsSkipped(t *testing.T) {
	runner := newFakeRunner(domain.JobInboundCheck, domain.JobEmailObserver)
	runner.schedErr[domain.JobEmailObserver] = errors.New("bad cron")

	s := NewScheduler(runner)
	s.Start()
	waitFor(t, func() bool { return runner.count(domain.JobInboundCheck) >= 1 })
	s.Stop()

	if got := runner.count(domain.JobEmailObserver); got != 0 {
		t.Errorf("expected 0 runs, got %d", got)
	}
}

func TestScheduler_LockedRunKeepsLooping(t *testing.T) {
	runner := newFakeRunner(domain.JobInboundCheck)
	runner.runErr = domain.ErrJobLocked

	s := NewScheduler(runner)
	s.Start()
	waitFor(t, func() bool { return runner.count(domain.JobInboundCheck) >= 3 })
	s.Stop()
}

func TestTriggerHandler(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		runErr    error
		expectRun int
		expectErr bool
	}{
		{"known job", `{"job":"inbound_check","requested_by":"api"}`, nil, 1, false},
		{"locked job is acked", `{"job":"inbound_check"}`, domain.ErrJobLocked, 1, false},
		{"failed job is acked", `{"job":"inbound_check"}`, errors.New("mailbox down"), 1, false},
		{"unknown job", `{"job":"reindex"}`, nil, 0, false},
		{"malformed payload", `{"job":`, nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner(domain.JobInboundCheck)
			runner.runErr = tt.runErr
			h := NewTriggerHandler(runner)

			err := h.Handle(context.Background(), "jobs:trigger", []byte(tt.payload))
			if (err != nil) != tt.expectErr {
				t.Errorf("expected error %v, got %v", tt.expectErr, err)
			}
			if got := runner.count(domain.JobInboundCheck); got != tt.expectRun {
				t.Errorf("expected %d runs, got %d", tt.expectRun, got)
			}
		})
	}
}

func TestTriggerHandler_DecodesPublishedTrigger(t *testing.T) {
	data, err := json.Marshal(&out.JobTrigger{Job: domain.JobEmailObserver, RequestedBy: "cli", RequestedAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runner := newFakeRunner(domain.JobEmailObserver)
	if err := NewTriggerHandler(runner).Handle(context.Background(), "jobs:trigger", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := runner.count(domain.JobEmailObserver); got != 1 {
		t.Errorf("expected 1 run, got %d", got)
	}
}
