// Package registry provides named lookup of importer and processor
// transforms. Importers turn a source file into raw bytes; processors turn
// raw bytes into processed bytes. Both are opaque to the engine, which only
// ever resolves them by name and calls them per item.
package registry

import (
	"fmt"
	"sync"
)

// ImporterFunc reads a source asset into raw bytes
type ImporterFunc func(sourcePath string, args map[string]string) ([]byte, error)

// ProcessorFunc transforms imported bytes into processed output bytes
type ProcessorFunc func(input []byte, args map[string]string) ([]byte, error)

// Registry holds the named importers and processors available to a build.
// Registration happens before the engine starts; Lookup is safe for
// concurrent use by workers.
type Registry struct {
	mu         sync.RWMutex
	importers  map[string]ImporterFunc
	processors map[string]ProcessorFunc
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		importers:  make(map[string]ImporterFunc),
		processors: make(map[string]ProcessorFunc),
	}
}

// NewWithBuiltins creates a registry pre-populated with the built-in
// importers and processors.
func NewWithBuiltins() *Registry {
	r := New()
	registerBuiltins(r)
	return r
}

// RegisterImporter registers an importer under the given name,
// replacing any previous registration.
func (r *Registry) RegisterImporter(name string, fn ImporterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.importers[name] = fn
}

// RegisterProcessor registers a processor under the given name,
// replacing any previous registration.
func (r *Registry) RegisterProcessor(name string, fn ProcessorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = fn
}

// Importer resolves an importer by name
func (r *Registry) Importer(name string) (ImporterFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.importers[name]
	if !ok {
		return nil, fmt.Errorf("unknown importer: %s", name)
	}
	return fn, nil
}

// Processor resolves a processor by name
func (r *Registry) Processor(name string) (ProcessorFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor: %s", name)
	}
	return fn, nil
}

// ImporterNames returns the registered importer names
func (r *Registry) ImporterNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.importers))
	for name := range r.importers {
		names = append(names, name)
	}
	return names
}

// ProcessorNames returns the registered processor names
func (r *Registry) ProcessorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	return names
}
