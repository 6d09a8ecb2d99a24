package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shenikar/incident_dispatch/internal/audit"
	"github.com/shenikar/incident_dispatch/internal/config"
	"github.com/shenikar/incident_dispatch/internal/dispatch"
	v1 "github.com/shenikar/incident_dispatch/internal/handler/http/v1"
	"github.com/shenikar/incident_dispatch/internal/metrics"
	"github.com/shenikar/incident_dispatch/internal/notification"
	"github.com/shenikar/incident_dispatch/internal/repository"
	"github.com/shenikar/incident_dispatch/internal/service"
	"github.com/shenikar/incident_dispatch/internal/webhook"
	"github.com/shenikar/incident_dispatch/pkg/logger"
	"github.com/shenikar/incident_dispatch/pkg/postgres"
	redisclient "github.com/shenikar/incident_dispatch/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/incident_dispatch/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Incident Dispatch API
// @version 1.0
// @description Reports emergencies and dispatches them to the nearest eligible responders.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// buildChannels assembles the delivery channels enabled by configuration.
func buildChannels(cfg *config.Config, notificationRepo *repository.NotificationRepository, realtime notification.RealtimePublisher, log *logrus.Logger) []notification.Channel {
	channels := []notification.Channel{
		notification.NewInAppChannel(notificationRepo, realtime, log),
	}
	if cfg.SMTPEnabled() {
		sender := notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFromEmail, cfg.SMTPFromName)
		channels = append(channels, notification.NewEmailChannel(sender))
		log.WithField("host", cfg.SMTPHost).Info("Email channel enabled")
	} else {
		log.Warn("SMTP is not configured, email channel disabled")
	}
	return channels
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	// Repositories
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.IncidentCacheTTL)
	responderRepo := repository.NewResponderRepository(dbpool)
	notificationRepo := repository.NewNotificationRepository(dbpool)
	auditRepo := repository.NewAuditRepository(dbpool)

	// Notification fan-out
	var realtime notification.RealtimePublisher
	if cfg.NotificationPushEnabled {
		realtime = notification.NewRedisRealtimePublisher(redisClient)
	}
	fanout := notification.NewFanout(buildChannels(cfg, notificationRepo, realtime, log), cfg.FanoutMaxConcurrency, log, appMetrics)

	// Dispatch
	recorder := audit.NewRecorder(auditRepo, cfg.AuditWriteTimeout, log)
	matcher := dispatch.NewGeoMatcher(dispatch.NewEligibilityFilter(responderRepo))
	escalation := dispatch.NewEscalationNotifier(responderRepo, fanout, log)

	opts := []dispatch.Option{dispatch.WithMetrics(appMetrics)}
	if cfg.DispatchDedupPolicy == config.DedupPolicyOnce {
		opts = append(opts, dispatch.WithGuard(repository.NewRedisDispatchGuard(redisClient, cfg.DispatchDedupTTL)))
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, dispatch.WithEventPublisher(webhook.NewRedisWebhookPublisher(redisClient)))
		webhook.NewWebhookWorker(redisClient, log, cfg).Start(ctx)
	}

	settings := dispatch.Settings{RadiusKm: cfg.DispatchRadiusKm, TopK: cfg.DispatchTopK}
	orchestrator := dispatch.NewOrchestrator(matcher, fanout, escalation, recorder, settings, log, opts...)

	incidentService := service.NewIncidentService(incidentRepo, orchestrator, log, cfg)
	handler := v1.NewHandler(incidentService, log, cfg)

	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	v1.RegisterMetrics(router, prometheus.DefaultGatherer)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.WithFields(logrus.Fields{
		"port":           cfg.HTTPPort,
		"radius_km":      cfg.DispatchRadiusKm,
		"top_k":          cfg.DispatchTopK,
		"dedup_policy":   cfg.DispatchDedupPolicy,
		"email_enabled":  cfg.SMTPEnabled(),
		"webhook_target": cfg.WebhookURL != "",
	}).Info("HTTP server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	cancel()

	log.Info("Server gracefully stopped")
}
