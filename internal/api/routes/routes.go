package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p2ramp/settlement_service/internal/api/handlers"
	"github.com/p2ramp/settlement_service/internal/api/middleware"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

// SetupRouter wires the HTTP surface: health probes, the rail webhook
// endpoint, metrics, and the read/withdrawal API.
func SetupRouter(
	environment string,
	log *logger.Logger,
	healthHandler *handlers.HealthHandler,
	webhookHandler *handlers.RailWebhookHandler,
	settlementHandler *handlers.SettlementHandler,
) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestSizeLimit(),
		middleware.Logger(log),
		middleware.Recovery(log),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	health := router.Group("/health")
	{
		health.GET("/liveness", healthHandler.Liveness)
		health.GET("/readiness", healthHandler.Readiness)
		health.GET("/config", healthHandler.ConfigValidation)
	}

	router.POST("/webhooks/rail", webhookHandler.HandleWebhook)

	api := router.Group("/api/v1")
	{
		api.GET("/transactions/:hash", settlementHandler.GetTransaction)
		api.GET("/merchants/:id/balance", settlementHandler.GetMerchantBalance)
		api.GET("/merchants/:id/withdrawals", settlementHandler.ListMerchantWithdrawals)
		api.POST("/withdrawals", settlementHandler.CreateWithdrawal)
		api.GET("/withdrawals/:id", settlementHandler.GetWithdrawal)
		api.POST("/reconciliation/run", settlementHandler.RunReconciliation)
	}

	return router
}
