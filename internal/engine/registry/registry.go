// Package registry replaces the source's dynamic import-by-fully-qualified-name
// lookup (spec.md section 9) with an explicit table populated at process
// startup: string name -> constructor.
package registry

import (
	"fmt"
	"sync"
)

// Constructor builds a fresh, zero-valued runtime instance for an
// activity class. The engine never holds onto the returned value across
// job boundaries — it is always reconstructed from a Constructor and
// rehydrated from a snapshot (domain/workflow.ActivitySnapshot).
type Constructor func() any

// Registry is the engine's only name -> class binding. It mirrors
// jobs/runtime.Registry's concurrency and duplicate-registration
// discipline, applied to activity classes instead of job handlers.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds name to ctor. Re-registering the same name is a fatal
// wiring error, not a silent overwrite — exactly like a duplicate
// job_type handler would be.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("registry: empty activity class name")
	}
	if ctor == nil {
		return fmt.Errorf("registry: nil constructor for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("registry: class %q already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// MustRegister panics on a wiring error. Intended for package-level
// init()/main() registration where a duplicate or nil constructor means
// the binary itself is misconfigured.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// New constructs a fresh instance for name. This is the "import stage"
// of spec.md section 4.6's initiate job: a miss here is an
// ImportException equivalent, reported to the caller so it can archive
// the activity with StatusImportFailure.
func (r *Registry) New(name string) (any, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: no class registered for %q", name)
	}
	return ctor(), nil
}

// Names returns every registered class name, primarily for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	return out
}
