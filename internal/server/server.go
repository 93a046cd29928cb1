// Package server wires the HTTP surface: middleware, health endpoints,
// metrics and the routes of every registered module.
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/logger"
	"github.com/zynkhq/zynk/internal/middleware"
	"github.com/zynkhq/zynk/internal/modules/modulemanager"
)

// SetupRouter configures and returns the main router. Modules must be
// loaded before it is called.
func SetupRouter(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.ErrorLogger(),
		middleware.CORS(cfg.Security.AllowedOrigins),
	)

	setupRoutes(r)
	modulemanager.RegisterRoutes(r)

	logger.Info("router configured", "routes", len(r.Routes()))
	return r
}

// NewHTTPServer builds the listener for handler. There is no write timeout
// on upgraded connections; the websocket writer sets its own deadlines.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
