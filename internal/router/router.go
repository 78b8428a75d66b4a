package router

import (
	"log"
	"strconv"
	"time"

	"atelier/config"
	"atelier/internal/handler"
	"atelier/internal/middleware"
	"atelier/internal/repository"
	"atelier/internal/service"
	"atelier/pkg/cryptorail"
	"atelier/pkg/gateway"
	"atelier/pkg/reference"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers onto the engine. The
// sweeper is returned so main can run it on its own schedule.
func Setup(cfg *config.Config, db *gorm.DB) (*gin.Engine, *service.Sweeper) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Repositories
	clientRepo := repository.NewClientRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	if err := settingRepo.SeedDefaults(map[string]string{
		repository.SettingDiscountPercent: strconv.Itoa(cfg.Payment.DiscountPercent),
	}); err != nil {
		log.Printf("[Router] seeding settings: %v", err)
	}

	// Rail adapters
	gw := gateway.NewClient(cfg.Payment.GatewayBaseURL, cfg.Payment.GatewaySecretKey, cfg.Payment.WebhookSecret)
	crypto := cryptorail.NewAdapter(cfg.Crypto.Addresses, cfg.Crypto.PriceBaseURL, cfg.Crypto.InvoiceExpiry)
	refs := reference.NewGenerator()

	// Services
	authSvc := service.NewAuthService(cfg, adminRepo)
	lifecycle := service.NewLifecycle(db, paymentRepo, requestRepo)
	sweeper := service.NewSweeper(&cfg.Payment, paymentRepo, requestRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, adminRepo)
	requestHandler := handler.NewRequestHandler(cfg, requestRepo, clientRepo, paymentRepo, settingRepo, auditRepo)
	paymentHandler := handler.NewPaymentHandler(cfg, requestRepo, paymentRepo, lifecycle, gw, crypto, refs)
	webhookHandler := handler.NewWebhookHandler(gw, lifecycle, auditRepo)
	cryptoHandler := handler.NewCryptoHandler(lifecycle, cfg.Crypto.Addresses)
	adminPaymentHandler := handler.NewAdminPaymentHandler(paymentRepo, lifecycle, sweeper, gw, auditRepo)
	adminHandler := handler.NewAdminHandler(adminRepo, paymentRepo, requestRepo, settingRepo, auditRepo, gw)

	authMw := middleware.AuthRequired(&cfg.JWT)
	publicLimit := middleware.RateLimit(middleware.NewInMemoryRateLimiter(60, time.Minute))

	api := r.Group("/api/v1")
	{
		api.POST("/requests", publicLimit, requestHandler.Submit)

		pay := api.Group("/pay/:token")
		pay.Use(publicLimit)
		{
			pay.GET("", paymentHandler.GetPage)
			pay.GET("/quote", paymentHandler.Quote)
			pay.POST("/checkout", paymentHandler.Checkout)
			pay.GET("/status", paymentHandler.Status)
			pay.GET("/verify/:reference", paymentHandler.VerifyReference)
		}

		api.GET("/crypto/networks", cryptoHandler.ListNetworks)
		api.POST("/payments/:id/crypto-hash", publicLimit, cryptoHandler.SubmitHash)

		// the webhook stays unmounted without a secret so unverifiable
		// events can never reach the lifecycle
		if gw.HasWebhookSecret() {
			api.POST("/webhooks/gateway", webhookHandler.HandleGateway)
		} else {
			log.Printf("[Router] gateway webhook disabled: GATEWAY_WEBHOOK_SECRET not set")
		}

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.GET("/me", authMw, authHandler.Me)
			authGroup.PATCH("/change-password", authMw, authHandler.ChangePassword)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/fx-rates", adminHandler.FXRates)
			admin.GET("/audit-log", adminHandler.AuditTrail)
			admin.GET("/settings", adminHandler.ListSettings)
			admin.PUT("/settings", adminHandler.UpdateSetting)

			admin.GET("/clients", requestHandler.ListClients)
			admin.DELETE("/clients/:id", requestHandler.DeleteClient)

			admin.GET("/requests", requestHandler.List)
			admin.GET("/requests/:id", requestHandler.Get)
			admin.PATCH("/requests/:id/pricing", requestHandler.SetPricing)
			admin.PATCH("/requests/:id/status", requestHandler.UpdateStatus)
			admin.POST("/requests/:id/payment-link", requestHandler.IssuePaymentLink)

			admin.GET("/payments", adminPaymentHandler.List)
			admin.GET("/payments/:id", adminPaymentHandler.Get)
			admin.POST("/payments/:id/approve", adminPaymentHandler.Approve)
			admin.POST("/payments/:id/decline", adminPaymentHandler.Decline)
			admin.DELETE("/payments/:id", adminPaymentHandler.Delete)
			admin.POST("/payments/manual", adminPaymentHandler.RecordManual)
			admin.POST("/payments/:id/verify-crypto", adminPaymentHandler.VerifyCrypto)
			admin.POST("/payments/:id/verify-gateway", adminPaymentHandler.VerifyGateway)
			admin.GET("/gateway/transactions", adminPaymentHandler.GatewayTransactions)
			admin.POST("/cleanup", adminPaymentHandler.Cleanup)
			admin.GET("/cleanup/stats", adminPaymentHandler.CleanupStats)
		}
	}

	return r, sweeper
}
