package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"leadestate_server/adapter/out/imap"
	"leadestate_server/adapter/out/messaging"
	"leadestate_server/adapter/out/mongodb"
	"leadestate_server/adapter/out/persistence"
	"leadestate_server/adapter/out/smtp"
	"leadestate_server/config"
	"leadestate_server/core/agent/llm"
	"leadestate_server/core/port/out"
	"leadestate_server/core/service/cancellation"
	"leadestate_server/core/service/inbound"
	"leadestate_server/core/service/job"
	"leadestate_server/infra/database"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/mailheader"
	"leadestate_server/pkg/metrics"
)

type Dependencies struct {
	Config  *config.Config
	MongoDB *mongo.Client
	DB      *mongo.Database
	Redis   *redis.Client

	// Repositories
	EmailRepo    *mongodb.EmailAdapter
	ContactRepo  *mongodb.ContactAdapter
	PropertyRepo *mongodb.PropertyAdapter
	ScheduleRepo *mongodb.ScheduleAdapter
	LeadRepo     *mongodb.LeadAdapter
	JobRepo      *mongodb.JobAdapter

	// Mail
	Mailbox *imap.Client
	Sender  *smtp.Sender

	// Messaging
	Events   out.EventPublisher
	Triggers out.JobTriggerPublisher // nil without Redis

	// Agent
	LLMClient *llm.Client

	// Services
	InboundSync *inbound.SyncService
	Observer    *cancellation.Observer
	JobRunner   *job.Runner
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// MongoDB
	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	cleanups = append(cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	})
	deps.MongoDB = mongoClient
	deps.DB = mongoClient.Database(cfg.MongoDBName)
	logger.Info("MongoDB connected (%s)", cfg.MongoDBName)

	// Redis (optional)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(context.Background(), cfg.RedisURL, database.RedisOptions{
			PoolSize:    cfg.RedisPool,
			StreamBlock: time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		})
		if err != nil {
			if cfg.JobLockBackend == config.LockBackendRedis {
				cleanup()
				return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			logger.Warn("Redis unavailable, continuing without streams: %v", err)
		} else {
			cleanups = append(cleanups, func() { redisClient.Close() })
			deps.Redis = redisClient
			logger.Info("Redis connected")
		}
	}

	deps.initRepositories()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mongodb.EnsureIndexes(ctx,
		deps.EmailRepo, deps.ContactRepo, deps.PropertyRepo,
		deps.ScheduleRepo, deps.LeadRepo, deps.JobRepo,
	); err != nil {
		cleanup()
		return nil, nil, err
	}

	deps.initMail()
	deps.initMessaging()
	deps.initAgent()
	deps.initServices()

	if err := deps.initJobs(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	return deps, cleanup, nil
}

func (d *Dependencies) initRepositories() {
	d.EmailRepo = mongodb.NewEmailAdapter(d.DB)
	d.ContactRepo = mongodb.NewContactAdapter(d.DB)
	d.PropertyRepo = mongodb.NewPropertyAdapter(d.DB)
	d.LeadRepo = mongodb.NewLeadAdapter(d.DB)
	d.ScheduleRepo = mongodb.NewScheduleAdapter(d.DB, d.LeadRepo, d.ContactRepo)
	d.JobRepo = mongodb.NewJobAdapter(d.DB)
}

func (d *Dependencies) initMail() {
	cfg := d.Config
	d.Mailbox = imap.NewClient(imap.Config{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.IMAPUser,
		Password: cfg.IMAPPassword,
	})
	d.Sender = smtp.NewSender(smtp.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	})

	if !d.Mailbox.Configured() {
		logger.Warn("IMAP not configured: set IMAP_MAIL/IMAP_MAIL_PASSWORD or SMTP_MAIL/SMTP_MAIL_PASSWORD")
	}
	if !d.Sender.Configured() {
		logger.Warn("SMTP not configured: replies will be dropped")
	}
}

func (d *Dependencies) initMessaging() {
	if d.Redis == nil {
		d.Events = messaging.NopPublisher{}
		return
	}
	producer := messaging.NewRedisProducer(d.Redis)
	d.Events = producer
	d.Triggers = producer
}

func (d *Dependencies) initAgent() {
	cfg := d.Config
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set: classification and replies will fail")
	}
	d.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    time.Duration(cfg.LLMTimeoutSec) * time.Second,
		MaxRetries: cfg.LLMMaxRetries,
	})
}

func (d *Dependencies) initServices() {
	cfg := d.Config

	responder := inbound.NewLeadResponder(
		d.EmailRepo,
		d.ContactRepo,
		d.PropertyRepo,
		d.LLMClient,
		d.LLMClient,
		d.LLMClient,
		d.Sender,
		d.Events,
	)
	d.InboundSync = inbound.NewSyncService(d.Mailbox, d.EmailRepo, responder, inbound.SyncConfig{
		Mailbox:       cfg.IMAPMailbox,
		OperatorEmail: cfg.OperatorEmail,
	})

	cancelHandler := cancellation.NewCancelHandler(d.ScheduleRepo, d.LeadRepo, d.Sender, d.Events)
	d.Observer = cancellation.NewObserver(
		d.Mailbox,
		d.LLMClient,
		cancelHandler,
		mailheader.NewParser(cfg.ScheduleMessageDomain),
		cancellation.ObserverConfig{Mailbox: cfg.IMAPMailbox},
	)
}

func (d *Dependencies) initJobs(ctx context.Context) error {
	cfg := d.Config

	var lock out.JobLock = d.JobRepo
	if cfg.JobLockBackend == config.LockBackendRedis && d.Redis != nil {
		lock = persistence.NewRedisJobLock(d.Redis, cfg.WorkerID, cfg.JobLockTTL, d.JobRepo)
		logger.Info("Job lock: redis (ttl %v)", cfg.JobLockTTL)
	} else {
		logger.Info("Job lock: mongo")
	}

	d.JobRunner = job.NewRunner(lock, d.JobRepo, metrics.NewJobRegistry(100), d.Events)
	for _, def := range []job.Definition{
		job.InboundCheck(d.InboundSync, cfg.InboundCheckCron),
		job.EmailObserver(d.Observer, cfg.EmailObserverCron),
	} {
		if err := d.JobRunner.Register(def); err != nil {
			return err
		}
	}

	if err := d.JobRunner.SeedJobs(ctx); err != nil {
		return err
	}
	return nil
}
