// Package routes defines the API routing configuration. It wires the
// repositories, services and handlers together and groups routes by
// functionality.
package routes

import (
	"peza/internal/config"
	"peza/internal/handlers"
	"peza/internal/middleware"
	"peza/internal/models"
	"peza/internal/processor"
	"peza/internal/repositories"
	"peza/internal/repositories/cache"
	"peza/internal/services/funding"
	"peza/internal/services/ledger"
	"peza/internal/services/notification"
	"peza/internal/services/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the dependency graph and registers all routes.
func SetupRoutes(app *fiber.App, db *repositories.Database, cacheService *cache.CacheService) {
	walletRepo := repositories.NewWalletRepository(db.Gorm)

	metrics := ledger.NewPrometheusCollector(prometheus.DefaultRegisterer)

	ledgerService := ledger.NewService(
		walletRepo,
		cacheService,
		ledger.LedgerConfig{DefaultCurrency: config.GetEnv("WALLET_CURRENCY", "NGN")},
		metrics,
		notification.NewService(),
	)

	processorClient := processor.NewClient(processor.Config{
		BaseURL:   config.GetEnv("PROCESSOR_BASE_URL", "https://api.processor.local/v3"),
		SecretKey: config.GetEnv("PROCESSOR_SECRET_KEY", ""),
	})

	verifierCfg := funding.DefaultVerifierConfig()
	verifier := funding.NewVerifier(processorClient, ledgerService, walletRepo, metrics, verifierCfg)
	fundingService := funding.NewService(walletRepo, ledgerService, processorClient, verifier, verifierCfg)

	dispatcher := webhook.NewDispatcher(ledgerService, metrics)
	eventVerifier := processor.NewHMACVerifier(config.GetEnv("PROCESSOR_WEBHOOK_SECRET", ""))

	walletHandler := handlers.NewWalletHandler(ledgerService)
	fundingHandler := handlers.NewFundingHandler(fundingService)
	webhookHandler := handlers.NewWebhookHandler(dispatcher, eventVerifier)
	healthHandler := handlers.NewHealthHandler(db, cacheService)

	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// The processor authenticates with a signature, not a bearer token.
	api.Post("/webhooks/processor", webhookHandler.HandleEvent)

	authMiddleware := middleware.NewAuthMiddleware()
	protected := api.Use(authMiddleware.Handler)

	wallet := protected.Group("/wallet")
	wallet.Get("/", middleware.HasPermission(models.PermissionWalletRead), walletHandler.GetWallet)
	wallet.Post("/spend", middleware.HasPermission(models.PermissionWalletWrite), walletHandler.Spend)
	wallet.Post("/fund", middleware.HasPermission(models.PermissionWalletWrite), fundingHandler.Fund)
	wallet.Post("/fund/verify", middleware.HasPermission(models.PermissionWalletWrite), fundingHandler.VerifyFunding)
	wallet.Get("/pending", middleware.HasPermission(models.PermissionWalletRead), fundingHandler.PendingRetries)
}
