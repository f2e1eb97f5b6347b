package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/p2ramp/settlement_service/internal/infrastructure/cache"
	"github.com/p2ramp/settlement_service/internal/infrastructure/database"
	"github.com/p2ramp/settlement_service/pkg/logger"
)

// ChainHeadReader reports the node's current head for the readiness probe
type ChainHeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// HealthHandler handles health and config-validation endpoints
type HealthHandler struct {
	db             *sqlx.DB
	cache          cache.RedisClient
	chain          ChainHeadReader
	webhookHandler *RailWebhookHandler
	railMockMode   bool
	logger         *logger.Logger
	version        string
	startTime      time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	db *sqlx.DB,
	redisClient cache.RedisClient,
	chain ChainHeadReader,
	webhookHandler *RailWebhookHandler,
	railMockMode bool,
	logger *logger.Logger,
	version string,
) *HealthHandler {
	return &HealthHandler{
		db:             db,
		cache:          redisClient,
		chain:          chain,
		webhookHandler: webhookHandler,
		railMockMode:   railMockMode,
		logger:         logger,
		version:        version,
		startTime:      time.Now(),
	}
}

// Liveness handles the liveness probe
// GET /health/liveness
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "alive",
		"version": h.version,
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness handles the readiness probe: database, cache, and chain node
// GET /health/readiness
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if head, err := h.chain.BlockNumber(ctx); err != nil {
		checks["chain"] = err.Error()
		healthy = false
	} else {
		checks["chain"] = gin.H{"head": head}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":  map[bool]string{true: "ready", false: "unhealthy"}[healthy],
		"version": h.version,
		"checks":  checks,
	})
}

// ConfigValidation surfaces security-relevant configuration state: whether
// webhook signature verification is active and whether the rail is mocked.
// GET /health/config
func (h *HealthHandler) ConfigValidation(c *gin.Context) {
	warnings := []string{}
	if !h.webhookHandler.SignatureVerificationEnabled() {
		warnings = append(warnings, "webhook signature verification is DISABLED (no secret configured)")
	}
	if h.railMockMode {
		warnings = append(warnings, "payment rail is in MOCK mode (no credentials configured)")
	}

	c.JSON(http.StatusOK, gin.H{
		"webhookSignatureVerification": h.webhookHandler.SignatureVerificationEnabled(),
		"railMockMode":                 h.railMockMode,
		"warnings":                     warnings,
	})
}
