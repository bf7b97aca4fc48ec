package controller

import (
	"wallet-recovery-system/conf"
	"wallet-recovery-system/controller/handler"
	"wallet-recovery-system/controller/respond"
	recoveryDocs "wallet-recovery-system/docs/recovery"
	"wallet-recovery-system/service/audit_service"
	"wallet-recovery-system/service/guardian_service"
	"wallet-recovery-system/service/recovery_service"
	"wallet-recovery-system/service/wallet_service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRecoveryRouter setup recovery service router
func SetupRecoveryRouter(
	walletService *wallet_service.WalletService,
	guardianService *guardian_service.GuardianService,
	recoveryService *recovery_service.RecoveryService,
	auditService *audit_service.AuditService,
) *gin.Engine {
	// Set Swagger host from config
	recoveryDocs.SwaggerInforecovery.Host = conf.Cfg.Recovery.SwaggerBaseUrl

	// Create Gin engine
	r := gin.Default()

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all origins, can be configured to specific domains
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", "Accept", "Cache-Control", "X-Requested-With", "X-User-Id"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * 3600, // 12 hours
	}))

	// Add timing middleware
	r.Use(respond.TimingMiddleware())

	// Create handler
	recoveryHandler := handler.NewRecoveryHandler(walletService, guardianService, recoveryService, auditService)

	// API v1 route group
	v1 := r.Group("/api/v1")
	{
		wallets := v1.Group("/wallets")
		{
			// Register wallet
			wallets.POST("", recoveryHandler.RegisterWallet)

			// Get wallet
			wallets.GET("/:walletId", recoveryHandler.GetWallet)

			// Guardian roster
			wallets.POST("/:walletId/guardians", recoveryHandler.AddGuardian)
			wallets.GET("/:walletId/guardians", recoveryHandler.ListGuardians)
			wallets.DELETE("/:walletId/guardians/:guardianId", recoveryHandler.RemoveGuardian)

			// Recovery lifecycle
			wallets.POST("/:walletId/recovery", recoveryHandler.InitiateRecovery)
			wallets.GET("/:walletId/recovery", recoveryHandler.GetRecoveryStatus)
			wallets.DELETE("/:walletId/recovery", recoveryHandler.CancelRecovery)
			wallets.POST("/:walletId/recovery/approve", recoveryHandler.ApproveRecovery)

			// Audit trail
			wallets.GET("/:walletId/audit", recoveryHandler.ListAuditEntries)
		}

		guardians := v1.Group("/guardians")
		{
			// Accept an invitation
			guardians.POST("/:guardianId/accept", recoveryHandler.AcceptGuardianship)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "recovery",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.InstanceName("recovery")))

	return r
}
