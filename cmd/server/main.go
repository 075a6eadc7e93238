// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/javajoker/idea-market/internal/config"
	"github.com/javajoker/idea-market/internal/database"
	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/metrics"
	"github.com/javajoker/idea-market/internal/router"
	"github.com/javajoker/idea-market/internal/services"
)

func main() {
	logger := logrus.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(logger, cfg.Environment)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logger.WithError(err).Fatal("Failed to initialize i18n")
	}

	settlement, closers, err := buildSettlement(cfg, db, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize settlement")
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := router.Initialize(ctx, router.Dependencies{
		Config:     cfg,
		DB:         db,
		Settlement: settlement,
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Let in-flight notifications and archive uploads finish before their
	// clients are closed.
	settlement.Drain()

	var closeErr error
	for _, c := range closers {
		closeErr = multierr.Append(closeErr, c.Close())
	}
	closeErr = multierr.Append(closeErr, database.Close(db))
	if closeErr != nil {
		logger.WithError(closeErr).Error("Errors while releasing resources")
	}

	logger.Info("Server exited")
}

func configureLogger(logger *logrus.Logger, environment string) {
	if environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
}

// buildSettlement wires the gateways and optional infrastructure once per
// process. Optional components fall back to no-op implementations.
func buildSettlement(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (*services.SettlementService, []io.Closer, error) {
	var closers []io.Closer

	calculator, err := services.NewCommissionCalculator(cfg.Payment.PlatformFeeRate)
	if err != nil {
		return nil, nil, err
	}

	params := services.SettlementParams{
		Ledger:     services.NewGormLedger(db),
		Ideas:      services.NewGormIdeaStore(db),
		Calculator: calculator,
		Metrics:    metrics.NewRecorder(prometheus.DefaultRegisterer),
		Currency:   cfg.Payment.Currency,
		Logger:     logger,
	}

	if card, err := services.NewStripeCardGateway(cfg.Payment, logger); err != nil {
		logger.WithError(err).Warn("Card payments disabled")
	} else {
		params.Card = card
	}

	if redirectGateway, err := services.NewHTTPRedirectGateway(cfg.Payment); err != nil {
		logger.WithError(err).Warn("Redirect payments disabled")
	} else {
		params.Redirect = redirectGateway
		logger.WithField("test_mode", redirectGateway.IsTest()).Info("Redirect payments enabled")
	}

	if cfg.Kafka.Enabled() {
		notifier := services.NewKafkaNotificationService(cfg.Kafka)
		params.Notifier = notifier
		closers = append(closers, notifier)
	} else {
		logger.Info("Kafka not configured, purchase notifications are logged only")
	}

	if cfg.AWS.Enabled() {
		archive, err := services.NewS3WebhookArchive(cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		params.Archive = archive
	} else {
		logger.Info("Webhook archive disabled")
	}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		guard, err := services.NewRedisWebhookGuard(client, time.Duration(cfg.Redis.WebhookTTL)*time.Second)
		if err != nil {
			return nil, nil, err
		}
		params.Guard = guard
		closers = append(closers, client)
	} else {
		logger.Info("Redis not configured, webhook deduplication relies on the ledger only")
	}

	settlement, err := services.NewSettlementService(params)
	if err != nil {
		return nil, nil, err
	}
	return settlement, closers, nil
}
