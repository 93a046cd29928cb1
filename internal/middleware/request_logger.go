package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zynkhq/zynk/internal/logger"
)

var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger logs every HTTP request at debug level, except health checks.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()

		logger.Debug("HTTP Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"ip", c.ClientIP(),
			"upgrade", c.GetHeader("Upgrade"),
		)

		c.Next()

		// Upgraded websocket requests return here only after the session ends.
		logger.Debug("HTTP Response",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"size", c.Writer.Size(),
		)
	}
}

// ErrorLogger logs errors with context
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, err := range c.Errors {
			logger.Error("Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error(),
				"type", err.Type,
			)
		}
	}
}

// CORS allows the configured browser origins. An entry of "*" allows any.
func CORS(allowed []string) gin.HandlerFunc {
	allowAll := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || set[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
