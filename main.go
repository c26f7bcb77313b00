package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"leadestate_server/config"
	"leadestate_server/core/domain"
	"leadestate_server/internal/bootstrap"
	"leadestate_server/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	runJob := flag.String("run", "", "Run one job once and exit: inbound_check, email_observer")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "leadestate",
		Console: cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	switch *mode {
	case "api", "worker", "all":
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}

	if *runJob != "" {
		code := runOnce(deps, *runJob)
		cleanup()
		os.Exit(code)
	}

	run(cfg, deps, *mode)
	cleanup()
}

func run(cfg *config.Config, deps *bootstrap.Dependencies, mode string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		app *fiber.App
		w   *bootstrap.Worker
	)

	if mode == "worker" || mode == "all" {
		w = bootstrap.NewWorker(cfg, deps)
		logger.Info("Starting worker...")
		go w.Start()
	}

	if mode == "api" || mode == "all" {
		app = bootstrap.NewAPI(cfg, deps)
		addr := ":" + cfg.Port
		go func() {
			logger.Info("Starting API server on %s", addr)
			if err := app.Listen(addr); err != nil {
				logger.Fatal("Failed to start server: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if app != nil {
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				logger.Error("Error shutting down API: %v", err)
			}
		}
		// a running job finishes its current batch first
		if w != nil {
			w.Stop()
		}
	}()

	select {
	case <-done:
		logger.Info("Shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

// runOnce runs a job through the runner, lock included, and prints the run.
func runOnce(deps *bootstrap.Dependencies, name string) int {
	run, err := deps.JobRunner.Run(context.Background(), name)
	switch {
	case errors.Is(err, domain.ErrJobLocked):
		logger.Warn("%s is already running", name)
		return 2
	case errors.Is(err, domain.ErrUnknownJob):
		logger.Error("Unknown job %s", name)
		return 2
	}

	if run != nil {
		out, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		logger.Error("%s failed: %v", name, err)
		return 1
	}
	return 0
}
