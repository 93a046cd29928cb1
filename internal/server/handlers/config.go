package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zynkhq/zynk/internal/config"
	apierrors "github.com/zynkhq/zynk/internal/errors"
)

// GetConfig handles GET /api/config
// Returns the active configuration. Credentials are never serialized.
func GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, config.Get())
}

// GetConfigSection handles GET /api/config/:section
func GetConfigSection(c *gin.Context) {
	section, ok := apierrors.RequireParam(c, "section")
	if !ok {
		return
	}

	cfg := config.Get()
	sections := map[string]interface{}{
		"server":    cfg.Server,
		"database":  cfg.Database,
		"session":   cfg.Session,
		"encoder":   cfg.Encoder,
		"inference": cfg.Inference,
		"storage":   cfg.Storage,
		"logging":   cfg.Logging,
		"security":  cfg.Security,
	}

	value, exists := sections[section]
	if !exists {
		apierrors.HandleNotFound(c, "config section", section)
		return
	}
	c.JSON(http.StatusOK, gin.H{"section": section, "config": value})
}

// ReloadConfig handles POST /api/config/reload
// Re-reads the config file. Live sessions keep their snapshot.
func ReloadConfig(c *gin.Context) {
	manager := config.GetConfigManager()
	if err := manager.LoadConfig(manager.ConfigPath()); err != nil {
		apierrors.NewValidationError("Failed to reload configuration: "+err.Error(), "config").ToGinResponse(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "path": manager.ConfigPath()})
}
