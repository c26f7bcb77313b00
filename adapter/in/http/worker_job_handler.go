package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"leadestate_server/core/agent/llm"
	"leadestate_server/core/domain"
	"leadestate_server/core/port/in"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/metrics"
)

// JobMetrics exposes per-job run stats.
type JobMetrics interface {
	Snapshot() []metrics.JobStats
}

// OracleStats exposes LLM usage and breaker state.
type OracleStats interface {
	Usage() *llm.UsageTracker
	BreakerState() string
}

// JobHandler is the operational surface over the job runner.
type JobHandler struct {
	jobs     in.JobService
	triggers out.JobTriggerPublisher
	metrics  JobMetrics
	oracle   OracleStats
	secret   string
}

// NewJobHandler wires the handler. triggers, metrics and oracle may be nil.
// With a non-empty secret, run requests need "Authorization: Bearer <secret>".
func NewJobHandler(
	jobs in.JobService,
	triggers out.JobTriggerPublisher,
	jobMetrics JobMetrics,
	oracle OracleStats,
	secret string,
) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		triggers: triggers,
		metrics:  jobMetrics,
		oracle:   oracle,
		secret:   secret,
	}
}

func (h *JobHandler) Register(app fiber.Router) {
	api := app.Group("/api/v1")

	jobs := api.Group("/jobs")
	jobs.Get("/", h.List)
	jobs.Post("/:name/run", h.requireSecret, h.Run)

	api.Get("/metrics", h.Metrics)
}

type jobView struct {
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	Running   bool       `json:"running"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.jobs.List(c.UserContext())
	if err != nil {
		return AppErrorResponse(c, apperr.DatabaseError("list jobs", err))
	}

	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView{
			Name:      j.Name,
			Cron:      j.Cron,
			Running:   j.Running,
			Enabled:   j.Enabled,
			LastRun:   j.LastRun,
			NextRun:   j.NextRun,
			UpdatedAt: j.UpdatedAt,
		})
	}
	return SuccessResponse(c, views)
}

// Run triggers a job. With ?wait=true the run happens inline and the result
// is returned; otherwise it is queued on the trigger stream, or started in
// the background when there is no stream.
func (h *JobHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")
	if !h.jobs.Has(name) {
		return AppErrorResponse(c, apperr.NotFound("job "+name))
	}

	if c.QueryBool("wait", false) {
		run, err := h.jobs.Run(c.UserContext(), name)
		switch {
		case errors.Is(err, domain.ErrJobLocked):
			return AppErrorResponse(c, apperr.JobLocked(name))
		case err != nil:
			if apperr.IsAppError(err) {
				return AppErrorResponse(c, err)
			}
			return AppErrorResponse(c, apperr.InternalWithError(err))
		}
		return SuccessResponse(c, run)
	}

	if h.triggers != nil {
		trigger := &out.JobTrigger{
			Job:         name,
			RequestedBy: "api:" + c.IP(),
			RequestedAt: time.Now().UTC(),
		}
		if err := h.triggers.PublishJobTrigger(c.UserContext(), trigger); err != nil {
			return AppErrorResponse(c, apperr.ExternalError("redis", err))
		}
		return AcceptedResponse(c, fiber.Map{"job": name, "queued": true})
	}

	go h.runDetached(name)
	return AcceptedResponse(c, fiber.Map{"job": name, "queued": false})
}

func (h *JobHandler) runDetached(name string) {
	run, err := h.jobs.Run(context.Background(), name)
	switch {
	case errors.Is(err, domain.ErrJobLocked):
		logger.Info("[JobHandler] %s already running", name)
	case err != nil:
		logger.Error("[JobHandler] %s failed: %v", name, err)
	default:
		logger.Info("[JobHandler] %s done: %v", name, run.Counters)
	}
}

func (h *JobHandler) Metrics(c *fiber.Ctx) error {
	resp := fiber.Map{}
	if h.metrics != nil {
		resp["jobs"] = h.metrics.Snapshot()
	}
	if h.oracle != nil {
		usage := h.oracle.Usage()
		resp["llm"] = fiber.Map{
			"breaker":    h.oracle.BreakerState(),
			"operations": usage.Stats(),
			"cost_today": usage.CostToday(),
		}
	}
	return SuccessResponse(c, resp)
}

func (h *JobHandler) requireSecret(c *fiber.Ctx) error {
	if h.secret == "" {
		return c.Next()
	}
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		return AppErrorResponse(c, apperr.Unauthorized("invalid cron secret"))
	}
	return c.Next()
}
