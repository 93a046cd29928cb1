package modulemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zynkhq/zynk/internal/logger"
)

// Module defines the interface that all modules must implement
type Module interface {
	ID() string                     // Unique identifier for the module
	Name() string                   // Display name for the module
	Migrate(db *gorm.DB) error      // Run database migrations
	Init(ctx context.Context) error // Initialize the module
}

// RouteRegistrar is an optional interface for modules that need to register routes
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// ModuleRegistry manages module registration and initialization
type ModuleRegistry struct {
	mu          sync.RWMutex
	modules     []Module
	initialized bool
}

// Registry is the global module registry
var Registry = &ModuleRegistry{}

// Register adds a module to the registry
func Register(m Module) {
	Registry.Register(m)
}

// Register adds a module to the registry. Modules are initialized in
// registration order.
func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("module registered after initialization", "module", m.ID())
	}
	for i, existing := range r.modules {
		if existing.ID() == m.ID() {
			r.modules[i] = m
			logger.Warn("module re-registered", "module", m.ID())
			return
		}
	}

	r.modules = append(r.modules, m)
	logger.Debug("module registered", "module", m.ID(), "name", m.Name())
}

// LoadAll initializes all registered modules
func LoadAll(ctx context.Context, db *gorm.DB) error {
	return Registry.LoadAll(ctx, db)
}

// LoadAll migrates and initializes every module. A failing module stops the
// load.
func (r *ModuleRegistry) LoadAll(ctx context.Context, db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("module system already initialized")
		return nil
	}

	for i, module := range r.modules {
		logger.Info("initializing module", "module", module.ID(), "step", fmt.Sprintf("%d/%d", i+1, len(r.modules)))

		if db != nil {
			if err := module.Migrate(db); err != nil {
				return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
			}
		}
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}
	}

	r.initialized = true
	logger.Info("module system initialized", "modules", len(r.modules))
	return nil
}

// GetModule returns a module by ID
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

// GetModule returns a module by ID
func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}

// ListModules returns all registered modules
func ListModules() []Module {
	return Registry.ListModules()
}

// ListModules returns all registered modules in registration order
func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Module(nil), r.modules...)
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	for _, module := range r.ListModules() {
		if routeRegistrar, ok := module.(RouteRegistrar); ok {
			logger.Debug("registering module routes", "module", module.ID())
			routeRegistrar.RegisterRoutes(router)
		}
	}
}

// HealthReport collects the status of every module that implements
// HealthChecker.
func HealthReport(ctx context.Context) map[string]HealthStatus {
	return Registry.HealthReport(ctx)
}

// HealthReport collects the status of every module that implements
// HealthChecker.
func (r *ModuleRegistry) HealthReport(ctx context.Context) map[string]HealthStatus {
	report := make(map[string]HealthStatus)
	for _, module := range r.ListModules() {
		if checker, ok := module.(HealthChecker); ok {
			report[module.ID()] = checker.HealthCheck(ctx)
		}
	}
	return report
}

// ShutdownAll shuts modules down in reverse registration order and returns
// the joined errors.
func ShutdownAll(ctx context.Context) error {
	return Registry.ShutdownAll(ctx)
}

// ShutdownAll shuts modules down in reverse registration order and returns
// the joined errors.
func (r *ModuleRegistry) ShutdownAll(ctx context.Context) error {
	modules := r.ListModules()

	var errs []error
	for i := len(modules) - 1; i >= 0; i-- {
		s, ok := modules[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			logger.Error("module shutdown failed", "module", modules[i].ID(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", modules[i].ID(), err))
		}
	}
	return errors.Join(errs...)
}
