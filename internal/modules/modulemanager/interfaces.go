// Package modulemanager provides interfaces for the module system
package modulemanager

import (
	"context"
	"time"
)

// HealthChecker is an optional interface for modules that can report health status
type HealthChecker interface {
	// HealthCheck returns the current health status of the module
	HealthCheck(ctx context.Context) HealthStatus
}

// Shutdowner is an optional interface for modules that hold resources
type Shutdowner interface {
	// Shutdown stops background work and releases resources
	Shutdown(ctx context.Context) error
}

// HealthStatus represents the health of a module
type HealthStatus struct {
	Status      HealthState            `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// HealthState represents the state of a module's health
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateUnknown   HealthState = "unknown"
)
