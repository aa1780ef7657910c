package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"order-ingest/internal/ingest"
	"order-ingest/internal/util"
	"order-ingest/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HeaderCronSecret carries the shared secret of the scheduler
const HeaderCronSecret = "X-Cron-Secret"

// Ingester runs one tenant ingest
type Ingester interface {
	Ingest(ctx context.Context, tenantID string) (*ingest.Result, error)
}

// AllTenantsRunner ingests every tenant
type AllTenantsRunner interface {
	RunAll(ctx context.Context) ([]worker.TenantOutcome, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// IngestRequest is the body of the ingest trigger
type IngestRequest struct {
	TenantID string `json:"tenant_id"`
}

// Handler contains HTTP handlers
type Handler struct {
	ingester   Ingester
	pool       AllTenantsRunner
	db         Pinger
	cronSecret string
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(ingester Ingester, pool AllTenantsRunner, db Pinger, cronSecret string) *Handler {
	return &Handler{
		ingester:   ingester,
		pool:       pool,
		db:         db,
		cronSecret: cronSecret,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", h.requireCronSecret)
	{
		v1.POST("/ingest/shopify", h.ingestTenant)
		v1.POST("/ingest/shopify/all", h.ingestAll)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) requireCronSecret(c *gin.Context) {
	got := c.GetHeader(HeaderCronSecret)
	if h.cronSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	c.Next()
}

// ingestTenant runs a synchronous ingest for one tenant
func (h *Handler) ingestTenant(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), req.TenantID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrLockHeld) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":   "Ingest failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"accounts": len(result.Accounts),
	})
}

// ingestAll runs every tenant through the pool
func (h *Handler) ingestAll(c *gin.Context) {
	outcomes, err := h.pool.RunAll(c.Request.Context())

	failed := make([]gin.H, 0)
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, gin.H{"tenant_id": o.TenantID, "error": o.Err.Error()})
		}
	}

	if err != nil {
		h.logger.Error("All-tenant ingest failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"tenants": len(outcomes),
			"failed":  failed,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"tenants": len(outcomes),
		"failed":  failed,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
