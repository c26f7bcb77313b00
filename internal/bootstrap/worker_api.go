package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"leadestate_server/adapter/in/http"
	"leadestate_server/config"
	"leadestate_server/infra/middleware"
	"leadestate_server/pkg/logger"
)

// NewAPI builds the fiber app on shared dependencies.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		// go-json for fiber's encoder and decoder
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          1 * 1024 * 1024,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())       // 1. Panic recovery
	app.Use(middleware.RequestID())     // 2. Request ID
	app.Use(middleware.RequestLogger()) // 3. Request logging
	app.Use(middleware.APIHeaders())    // 4. Response headers
	app.Use(middleware.NoCache())

	http.NewHealthHandler(deps.MongoDB, deps.Redis).Register(app)

	http.NewJobHandler(
		deps.JobRunner,
		deps.Triggers,
		deps.JobRunner.Metrics(),
		deps.LLMClient,
		cfg.CronSecret,
	).Register(app)

	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set: job run endpoint is unauthenticated")
	}
	return app
}
