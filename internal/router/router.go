// internal/router/router.go
package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/idea-market/internal/config"
	"github.com/javajoker/idea-market/internal/handlers"
	"github.com/javajoker/idea-market/internal/middleware"
	"github.com/javajoker/idea-market/internal/services"
	"github.com/javajoker/idea-market/internal/utils"
)

const version = "1.0.0"

// Dependencies are built once in main and shared by every request.
type Dependencies struct {
	Config     *config.Config
	DB         *gorm.DB
	Settlement *services.SettlementService
	Gatherer   prometheus.Gatherer
	Logger     *logrus.Logger
}

// Initialize builds the engine. Background work started here (rate limiter
// cleanup) stops when ctx is cancelled.
func Initialize(ctx context.Context, deps Dependencies) *gin.Engine {
	cfg := deps.Config

	paymentHandler := handlers.NewPaymentHandler(deps.Settlement)
	webhookHandler := handlers.NewWebhookHandler(deps.Settlement)
	transactionHandler := handlers.NewTransactionHandler(deps.Settlement)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	generalLimiter := middleware.NewRateLimiter(ctx, middleware.GeneralRate, middleware.GeneralBurst)
	paymentLimiter := middleware.NewRateLimiter(ctx, middleware.PaymentRate, middleware.PaymentBurst)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.I18nMiddleware())

	r.GET("/health", healthHandler(deps.DB))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Gateway callbacks authenticate by signature and are never rate limited.
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/card", webhookHandler.CardWebhook)
		if cfg.Payment.RedirectWebhookSecret != "" {
			webhooks.POST("/redirect", webhookHandler.RedirectWebhook)
		}
	}

	api := r.Group("")
	api.Use(generalLimiter.Middleware(), middleware.AuthRequired())
	{
		api.POST("/payment-intents", paymentLimiter.Middleware(), paymentHandler.CreatePaymentIntent)
		api.POST("/payment-orders/redirect", paymentLimiter.Middleware(), paymentHandler.CreateRedirectOrder)
		api.POST("/payment-confirmations/redirect", paymentHandler.ConfirmRedirectPayment)

		api.GET("/transactions", transactionHandler.ListTransactions)
		api.GET("/transactions/:id", transactionHandler.GetTransaction)
	}

	return r
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				status = "unhealthy"
				code = http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":  status,
			"version": version,
		})
	}
}
