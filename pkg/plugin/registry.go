package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/flat/internal/core"
)

// ReporterFactory creates a fresh, uninitialized reporter.
type ReporterFactory func() Reporter

// Registry maps reporter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ReporterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ReporterFactory)}
}

// Register adds a factory. Registering a name twice is a programming error
// and panics.
func (r *Registry) Register(name string, f ReporterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("plugin: reporter %q already registered", name))
	}
	r.factories[name] = f
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (ReporterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("reporter %q: %w", name, core.ErrPluginNotFound)
	}
	return f, nil
}

// New creates a reporter instance by name.
func (r *Registry) New(name string) (Reporter, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]ReporterFactory)
}

var reporterReg = NewRegistry()

// RegisterReporter registers a factory in the default registry.
func RegisterReporter(name string, f ReporterFactory) {
	reporterReg.Register(name, f)
}

// GetReporterFactory looks up a factory in the default registry.
func GetReporterFactory(name string) (ReporterFactory, error) {
	return reporterReg.Get(name)
}

// NewReporter creates a reporter from the default registry.
func NewReporter(name string) (Reporter, error) {
	return reporterReg.New(name)
}

// ListReporters returns the names in the default registry.
func ListReporters() []string {
	return reporterReg.List()
}
