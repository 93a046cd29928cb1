// Package sessionmodule provides the live presentation session pipeline.
// It accepts media over a websocket, returns periodic coaching feedback and
// saves the recording and its feedback when the session stops.
package sessionmodule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/database"
	"github.com/zynkhq/zynk/internal/logger"
	"github.com/zynkhq/zynk/internal/modules/modulemanager"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/api"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/audio"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/encoder"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/ffmpeg"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/layout"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/session"
	"github.com/zynkhq/zynk/internal/services"
	"github.com/zynkhq/zynk/internal/utils"
)

const (
	// ModuleID is the module identifier
	ModuleID = "session"

	sweepInterval = 30 * time.Minute
	orphanMaxAge  = 6 * time.Hour
)

// Module represents the session module.
type Module struct {
	logger hclog.Logger

	// Core components
	registry *session.Registry
	pool     *utils.WorkerPool
	handler  *api.Handler
	deps     session.Deps

	// Dependencies
	inference services.InferenceService
	storage   services.StorageService
	segments  services.SegmentService

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ID returns the module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the human-readable module name
func (m *Module) Name() string {
	return "Session Module"
}

// Migrate performs database migrations for the module
func (m *Module) Migrate(db *gorm.DB) error {
	return database.Migrate(db)
}

// Init resolves collaborators from the service registry and builds the
// shared session components.
func (m *Module) Init(ctx context.Context) error {
	cfg := config.Get()
	m.logger = logger.Named("session-module")

	m.inference = optionalService[services.InferenceService](services.InferenceServiceName, m.logger)
	m.storage = optionalService[services.StorageService](services.StorageServiceName, m.logger)
	m.segments = optionalService[services.SegmentService](services.SegmentServiceName, m.logger)

	runner := ffmpeg.NewExecRunner(cfg.Encoder.FFmpegPath, cfg.Encoder.ProcessTimeout, cfg.Encoder.KillGrace, m.logger)

	m.registry = session.NewRegistry()
	m.pool = utils.NewWorkerPool("inference", cfg.Inference.Workers, m.logger)
	m.pool.Start()

	m.deps = session.Deps{
		Registry:  m.registry,
		Encoder:   encoder.New(runner, m.logger),
		Inference: m.inference,
		Audio:     audio.NewCharacterizer(runner, m.logger),
		Storage:   m.storage,
		Segments:  m.segments,
		Pool:      m.pool,
		Logger:    m.logger,
	}

	// Nothing is live yet, so every leftover session directory is an orphan.
	if _, err := layout.SweepOrphans(cfg.Session.TempDir, 0, nil, m.logger); err != nil {
		m.logger.Warn("startup sweep failed", "error", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.handler = api.NewHandler(m.ctx, api.Config{
		NewSession: m.newSession,
		Registry:   m.registry,
		Storage:    m.storage,
		Segments:   m.segments,
		Transport: api.TransportOptions{
			InboundQueue:    cfg.Session.InboundQueue,
			OutboundQueue:   cfg.Session.OutboundQueue,
			MaxMessageBytes: cfg.Session.MaxMessageBytes,
			AllowedOrigins:  cfg.Security.AllowedOrigins,
		},
		Logger: m.logger.Named("api"),
	})

	m.wg.Add(1)
	go m.sweepLoop()

	m.logger.Info("session module initialized",
		"temp_dir", cfg.Session.TempDir,
		"inference_workers", cfg.Inference.Workers,
		"inference_available", m.inference != nil && m.inference.Available(),
		"storage_configured", m.storage != nil && m.storage.Configured())
	return nil
}

// newSession builds a controller from the current config snapshot. Live
// sessions keep the snapshot they started with across reloads.
func (m *Module) newSession(requestedID string, notifier session.Notifier) *session.Controller {
	return session.New(requestedID, session.OptionsFromConfig(config.Get()), m.deps, notifier)
}

func (m *Module) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			dir := config.Get().Session.TempDir
			if _, err := layout.SweepOrphans(dir, orphanMaxAge, m.registry.IsActive, m.logger); err != nil {
				m.logger.Warn("orphan sweep failed", "error", err)
			}
		}
	}
}

// RegisterRoutes registers HTTP routes for the session module
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api.RegisterRoutes(router, m.handler)
}

// Registry returns the live session registry.
func (m *Module) Registry() *session.Registry {
	return m.registry
}

// HealthCheck reports live sessions and collaborator availability.
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	status := modulemanager.HealthStatus{
		Status:      modulemanager.HealthStateHealthy,
		LastChecked: time.Now(),
		Details: map[string]interface{}{
			"active_sessions":     m.registry.Len(),
			"inference_queue":     m.pool.QueueDepth(),
			"inference_available": m.inference != nil && m.inference.Available(),
			"storage_configured":  m.storage != nil && m.storage.Configured(),
		},
	}

	if usage, err := utils.GetDiskUsage(config.Get().Session.TempDir); err == nil {
		status.Details["temp_dir_free_bytes"] = usage.FreeBytes
	}

	if m.segments == nil || m.storage == nil || !m.storage.Configured() {
		status.Status = modulemanager.HealthStateDegraded
		status.Message = "sessions run but recordings or feedback will not be saved"
	}
	return status
}

// Shutdown aborts live sessions and stops the inference pool.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	live := m.registry.Len()
	m.logger.Info("shutting down session module", "active_sessions", live)
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.handler.Wait()
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("sessions still open at shutdown deadline: %w", ctx.Err())
	}

	m.pool.Stop()
	return nil
}

func optionalService[T any](name string, log hclog.Logger) T {
	svc, err := services.GetService[T](name)
	if err != nil {
		log.Warn("service not registered, continuing without it", "service", name, "error", err)
	}
	return svc
}
