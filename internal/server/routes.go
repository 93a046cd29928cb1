package server

import (
	"github.com/gin-gonic/gin"

	"github.com/zynkhq/zynk/internal/metrics"
	"github.com/zynkhq/zynk/internal/server/handlers"
)

// setupRoutes registers the process-level endpoints.
func setupRoutes(r *gin.Engine) {
	// Health endpoints stay at the root so load balancers need no prefix.
	r.GET("/health", handlers.HandleHealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	cfg := r.Group("/api/config")
	{
		cfg.GET("", handlers.GetConfig)
		cfg.GET("/:section", handlers.GetConfigSection)
		cfg.POST("/reload", handlers.ReloadConfig)
	}
}
