// Package main runs the background worker: email delivery, reminder sweeps
// and release of unpaid registration holds.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/admissions/config"
	"github.com/aura-webinar/admissions/internal/auth"
	"github.com/aura-webinar/admissions/internal/emaillogs"
	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/notify"
	"github.com/aura-webinar/admissions/internal/registrations"
	"github.com/aura-webinar/admissions/internal/reminders"
	"github.com/aura-webinar/admissions/internal/webinars"
	"github.com/aura-webinar/admissions/internal/worker"
	"github.com/aura-webinar/admissions/pkg/database"
	"github.com/aura-webinar/admissions/pkg/mailer"
	"github.com/aura-webinar/admissions/pkg/queue"
	"github.com/aura-webinar/admissions/pkg/redis"
	"github.com/aura-webinar/admissions/pkg/telemetry"
)

const expireEvery = time.Minute

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Endpoint != "",
		ServiceName:    cfg.Telemetry.ServiceName + "-worker",
		Environment:    cfg.Telemetry.Environment,
		CollectorAddr:  cfg.Telemetry.Endpoint,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MaxConnLifetime: time.Hour,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var publisher registrations.EventPublisher
	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = producer
	}

	if cfg.Email.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; email jobs will fail and move to the DLQ")
	}
	smtp := mailer.NewSMTP(mailer.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUser,
		Password: cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	})

	jobQueue := queue.NewQueue(rdb.Client, logger)
	registrationRepo := registrations.NewRepository(pool)
	sender := notify.NewQueueSender(jobQueue, auth.NewRepository(pool), logger)

	emails := worker.NewEmailProcessor(jobQueue, smtp, emaillogs.NewRepository(pool), logger)
	scheduler := reminders.NewScheduler(webinars.NewRepository(pool), registrationRepo, sender, cfg.Registration.NotifyTimeout, logger)
	expirer := registrations.NewExpirer(registrationRepo, publisher, cfg.Registration.PendingHold, logger)

	tasks := append(scheduler.Tasks(), worker.Task{
		Name:     "registrations:expire",
		Interval: expireEvery,
		Run: func(ctx context.Context) error {
			_, err := expirer.Sweep(ctx)
			return err
		},
	})
	periodic := worker.NewPeriodic(rdb, logger, tasks...)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); emails.Run(workerCtx) }()
	go func() { defer wg.Done(); periodic.Run(workerCtx) }()
	logger.Info("worker started", zap.Int("periodic_tasks", len(tasks)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := producer.Close(); err != nil {
		logger.Warn("close event producer", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
