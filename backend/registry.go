package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/scrim/gpucore"
)

// Backend name constants.
const (
	// BackendNative is the gogpu/wgpu HAL backend.
	BackendNative = "native"
	// BackendSoftware is the CPU kernel backend.
	BackendSoftware = "software"
)

// ErrBackendNotAvailable is returned when no registered backend can be opened.
var ErrBackendNotAvailable = errors.New("backend: not available")

// Factory opens a new adapter.
type Factory func() (gpucore.GPUAdapter, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)

	// Priority order for automatic selection (first that opens wins).
	backendPriority = []string{BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens the named backend. The name "auto" or "" selects the first
// backend in priority order that opens successfully.
func Open(name string) (gpucore.GPUAdapter, error) {
	if name == "" || name == "auto" {
		return Default()
	}
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}
	a, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", name, err)
	}
	return a, nil
}

// Default opens the best available backend based on priority.
func Default() (gpucore.GPUAdapter, error) {
	registryMu.RLock()
	ordered := make([]Factory, 0, len(backendPriority))
	for _, name := range backendPriority {
		if f, ok := factories[name]; ok {
			ordered = append(ordered, f)
		}
	}
	registryMu.RUnlock()

	var errs []error
	for _, f := range ordered {
		a, err := f()
		if err == nil {
			return a, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}
