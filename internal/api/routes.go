package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/config"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/core"
	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/middleware"
)

// SetupRoutes registers every route of the relay. Global middleware (request id, logging,
// recovery, CORS, metrics) is expected to be installed on router by the caller.
// metricsHandler may be nil, in which case /metrics is not served.
func SetupRoutes(
	router *gin.Engine,
	appConfig *config.Config,
	logger *zap.Logger,
	authMW *middleware.AuthMiddleware,
	limiter *middleware.RateLimiter,
	gatewayService core.GatewayService,
	ledger core.CreditLedger,
	metricsHandler http.Handler,
) {
	gatewayHandler := NewGatewayHandler(gatewayService)
	userHandler := NewUserHandler(ledger)
	adminHandler := NewAdminHandler(ledger)

	llmRoutes := router.Group("/")
	if limiter != nil {
		llmRoutes.Use(limiter.Middleware())
	}
	llmRoutes.Use(authMW.ForMode(appConfig.AuthMode))
	{
		llmRoutes.POST("/translate", gatewayHandler.Text(core.OpTranslate))
		llmRoutes.POST("/explain", gatewayHandler.Text(core.OpExplain))
		llmRoutes.POST("/enhance", gatewayHandler.Text(core.OpEnhance))
		llmRoutes.POST("/summarize", gatewayHandler.Text(core.OpSummarize))
		llmRoutes.POST("/translate_webpage", gatewayHandler.TranslateWebpage)
	}

	userRoutes := router.Group("/api", authMW.RequireAuth())
	{
		userRoutes.POST("/user", userHandler.SyncUser)
		userRoutes.GET("/user/me", userHandler.GetCurrentUser)
		userRoutes.POST("/consume", userHandler.Consume)
	}

	adminRoutes := router.Group("/admin", middleware.AdminSecret(appConfig.AdminSecret, logger))
	{
		adminRoutes.POST("/rolling_refresh", adminHandler.RollingRefresh)
		adminRoutes.POST("/monthly_reset", adminHandler.MonthlyReset)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	logger.Info("Routes configured",
		zap.String("auth_mode", appConfig.AuthMode),
		zap.Bool("metering", appConfig.MeteringEnabled),
	)
}
