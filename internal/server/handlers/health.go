// Package handlers provides the process-level HTTP handlers: health checks
// and configuration inspection.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/modules/modulemanager"
	"github.com/zynkhq/zynk/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

var startedAt = time.Now()

// HealthReporter returns per-module health. It is a variable so tests can
// supply a fixed report.
var HealthReporter = modulemanager.HealthReport

// HandleHealthCheck handles GET /health
// Reports module health, temp directory disk usage and host memory.
func HandleHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	modules := HealthReporter(ctx)
	status := modulemanager.HealthStateHealthy
	for _, m := range modules {
		switch m.Status {
		case modulemanager.HealthStateUnhealthy:
			status = modulemanager.HealthStateUnhealthy
		case modulemanager.HealthStateDegraded:
			if status == modulemanager.HealthStateHealthy {
				status = modulemanager.HealthStateDegraded
			}
		}
	}

	system := gin.H{
		"goroutines": runtime.NumGoroutine(),
	}
	if usage, err := utils.GetDiskUsage(config.Get().Session.TempDir); err == nil {
		system["disk"] = usage
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		system["memory"] = gin.H{
			"total_bytes":     vm.Total,
			"available_bytes": vm.Available,
			"used_percent":    vm.UsedPercent,
		}
	}

	code := http.StatusOK
	if status == modulemanager.HealthStateUnhealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":         status,
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
		"modules":        modules,
		"system":         system,
	})
}
