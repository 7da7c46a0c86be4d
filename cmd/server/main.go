// Package main runs the webinar registration HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/admissions/config"
	"github.com/aura-webinar/admissions/internal/auth"
	"github.com/aura-webinar/admissions/internal/dashboard"
	"github.com/aura-webinar/admissions/internal/emaillogs"
	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/middleware"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/notify"
	"github.com/aura-webinar/admissions/internal/payments"
	"github.com/aura-webinar/admissions/internal/registrations"
	"github.com/aura-webinar/admissions/internal/webinars"
	"github.com/aura-webinar/admissions/pkg/database"
	"github.com/aura-webinar/admissions/pkg/queue"
	"github.com/aura-webinar/admissions/pkg/redis"
	"github.com/aura-webinar/admissions/pkg/response"
	"github.com/aura-webinar/admissions/pkg/storage"
	"github.com/aura-webinar/admissions/pkg/telemetry"
)

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
		ServiceName:    cfg.Telemetry.ServiceName + "-api",
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var exports registrations.ExportStore
	if cfg.AWS.ExportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
			Endpoint:             cfg.AWS.S3Endpoint,
		}, logger)
		if err != nil {
			logger.Warn("attendee export disabled", zap.Error(err))
		} else {
			exports = s3Client
		}
	}

	// A nil publisher disables events; never store a nil *Producer in it.
	var publisher registrations.EventPublisher
	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = producer
		logger.Info("registration events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Razorpay.KeyID == "" {
		logger.Warn("razorpay credentials not set; paid registrations will fail at order creation")
	}
	gateway := payments.NewRazorpay(payments.RazorpayConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
	}, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	sender := notify.NewQueueSender(jobQueue, authRepo, logger)

	webinarRepo := webinars.NewRepository(pool)
	webinarHandler := webinars.NewHandler(webinarRepo, logger)

	registrationRepo := registrations.NewRepository(pool)
	deps := registrations.Deps{
		Catalog: webinarRepo,
		Store:   registrationRepo,
		Gateway: gateway,
		Sender:  sender,
		Events:  publisher,
		Logger:  logger,
	}
	opts := registrations.Options{
		GatewayTimeout: cfg.Registration.GatewayTimeout,
		NotifyTimeout:  cfg.Registration.NotifyTimeout,
		PublicKeyID:    cfg.Razorpay.KeyID,
	}
	registrationHandler := registrations.NewHandler(
		registrations.NewController(deps, opts),
		registrations.NewReconciler(deps, opts),
		registrationRepo, webinarRepo, exports, logger,
	)

	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool), logger)
	dashboardHandler := dashboard.NewHandler(dashboard.NewRepository(pool), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public, guests allowed; a valid token makes the caller an authenticated attendee.
	public := router.Group("")
	public.Use(middleware.OptionalJWT(jwtService))
	{
		public.GET("/webinars", webinarHandler.List)
		public.GET("/webinars/:id", webinarHandler.GetByID)
		public.POST("/webinars/register", registrationHandler.Register)
		public.POST("/verify-payment", registrationHandler.VerifyPayment)
		public.GET("/registrations/:id/status", registrationHandler.Status)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me/registrations", registrationHandler.Mine)
		api.POST("/registrations/:id/cancel", registrationHandler.Cancel)
		api.GET("/dashboard", dashboardHandler.Get)

		api.POST("/webinars", middleware.RequireRole(models.RoleAdmin, models.RoleHost), webinarHandler.Create)

		host := api.Group("/webinars/:id", webinars.RequireWebinarHost(webinarRepo))
		host.PATCH("", webinarHandler.Update)
		host.DELETE("", webinarHandler.Delete)
		host.GET("/attendees", registrationHandler.Attendees)
		host.POST("/attendees/export", registrationHandler.ExportAttendees)
		host.GET("/emails", emailLogsHandler.ListByWebinar)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		logger.Warn("close event producer", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
