package operator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bpofinanceiro/reconciliation-service/internal/operator/handler"
	"github.com/bpofinanceiro/reconciliation-service/internal/operator/middleware"
)

// setupRouter configures API routes and middleware for the operator API
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	operatorHandler *handler.OperatorHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Tenant-scoped review operations
		review := v1.Group("", middleware.TenantID())
		{
			review.GET("/ambiguous", operatorHandler.ListAmbiguous)
			review.POST("/matches/confirm", operatorHandler.ConfirmMatch)
			review.GET("/audit", operatorHandler.ListAuditEvents)
		}

		// Queue operations span tenants; each job carries its own tenant id
		jobs := v1.Group("/jobs")
		{
			jobs.GET("/failed", operatorHandler.ListFailedJobs)
			jobs.POST("/:id/requeue", operatorHandler.RequeueJob)
			jobs.DELETE("/:id", operatorHandler.CancelJob)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
