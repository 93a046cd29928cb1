package services

import (
	"fmt"
	"sync"
)

// ServiceRegistry holds the process-wide collaborator instances.
//
// main registers implementations during startup and modules resolve them by
// name during Init, so modules never construct their own backends.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]interface{}
}

var globalRegistry = &ServiceRegistry{
	services: make(map[string]interface{}),
}

// RegisterService registers a service with the given name
func RegisterService[T any](name string, service T) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	globalRegistry.services[name] = service
}

// GetService retrieves a service by name with type safety
func GetService[T any](name string) (T, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	var zero T

	service, exists := globalRegistry.services[name]
	if !exists {
		return zero, fmt.Errorf("service '%s' not found", name)
	}

	typedService, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service '%s' has wrong type", name)
	}

	return typedService, nil
}

// UnregisterService removes a service, used when tests swap implementations
func UnregisterService(name string) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	delete(globalRegistry.services, name)
}

