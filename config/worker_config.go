package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"leadestate_server/pkg/apperr"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Job lock backends
const (
	LockBackendMongo = "mongo"
	LockBackendRedis = "redis"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	MongoDBURL  string
	MongoDBName string
	RedisURL    string
	RedisPool   int

	// Mailbox (IMAP)
	IMAPUser     string
	IMAPPassword string
	IMAPHost     string
	IMAPPort     int
	IMAPMailbox  string

	// Outgoing mail (SMTP)
	SMTPUser     string
	SMTPPassword string
	SMTPHost     string
	SMTPPort     int

	OperatorEmail         string
	ScheduleMessageDomain string

	// OpenAI
	OpenAIAPIKey  string
	LLMModel      string
	LLMTimeoutSec int
	LLMMaxRetries int

	// Jobs
	WorkerID          string
	JobLockBackend    string
	JobLockTTL        time.Duration
	InboundCheckCron  string
	EmailObserverCron string
	SchedulerEnabled  bool
	CronSecret        string

	// Consumer (Redis Stream)
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
}

func Load() (*Config, error) {
	smtpUser := getEnv("SMTP_MAIL", "")
	smtpPassword := getEnv("SMTP_MAIL_PASSWORD", "")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "leadestate"),
		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPool:   getEnvInt("REDIS_POOL_SIZE", 10),

		// IMAP falls back to the SMTP account
		IMAPUser:     getEnv("IMAP_MAIL", smtpUser),
		IMAPPassword: getEnv("IMAP_MAIL_PASSWORD", smtpPassword),
		IMAPHost:     getEnv("IMAP_MAIL_HOST", "imap.gmail.com"),
		IMAPPort:     getEnvInt("IMAP_EMAIL_PORT", 993),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),

		SMTPUser:     smtpUser,
		SMTPPassword: smtpPassword,
		SMTPHost:     getEnv("SMTP_MAIL_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvInt("SMTP_MAIL_PORT", 587),

		OperatorEmail:         getEnv("OPERATOR_EMAIL", ""),
		ScheduleMessageDomain: getEnv("SCHEDULE_MESSAGE_DOMAIN", "leadestate.local"),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 30),
		LLMMaxRetries: getEnvInt("LLM_MAX_RETRIES", 2),

		// Jobs
		WorkerID:          getEnv("WORKER_ID", generateWorkerID()),
		JobLockBackend:    strings.ToLower(getEnv("JOB_LOCK_BACKEND", LockBackendMongo)),
		JobLockTTL:        time.Duration(getEnvInt("JOB_LOCK_TTL_MIN", 30)) * time.Minute,
		InboundCheckCron:  getEnv("INBOUND_CHECK_CRON", "*/5 * * * *"),
		EmailObserverCron: getEnv("EMAIL_OBSERVER_CRON", "*/10 * * * *"),
		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		CronSecret:        getEnv("CRON_SECRET", ""),

		// Consumer
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),
	}

	// the operator is whoever owns the watched inbox
	if cfg.OperatorEmail == "" {
		cfg.OperatorEmail = cfg.IMAPUser
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings nothing can run without.
func (c *Config) Validate() error {
	if c.MongoDBURL == "" {
		return apperr.ConfigError("MONGODB_URL is required")
	}
	switch c.JobLockBackend {
	case LockBackendMongo:
	case LockBackendRedis:
		if c.RedisURL == "" {
			return apperr.ConfigError("JOB_LOCK_BACKEND=redis requires REDIS_URL")
		}
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown JOB_LOCK_BACKEND %q", c.JobLockBackend))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// MailboxConfigured reports whether IMAP credentials resolved.
func (c *Config) MailboxConfigured() bool {
	return c.IMAPUser != "" && c.IMAPPassword != ""
}
