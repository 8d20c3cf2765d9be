package processors

import (
	"fmt"
	"sync"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
)

// Registry maps import types to their processor.
type Registry struct {
	mu         sync.RWMutex
	processors map[models.ImportType]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[models.ImportType]Processor)}
	for _, p := range processors {
		r.Register(p)
	}
	return r
}

// Register adds a processor.
// Panics if the type is already registered or is not a concrete import type.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !p.Type().IsValid() {
		panic(fmt.Sprintf("cannot register processor for import type %q", p.Type()))
	}
	if _, exists := r.processors[p.Type()]; exists {
		panic(fmt.Sprintf("processor already registered: %s", p.Type()))
	}
	r.processors[p.Type()] = p
}

func (r *Registry) Get(t models.ImportType) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.processors[t]
	return p, ok
}

// Types returns the registered types in canonical order.
func (r *Registry) Types() []models.ImportType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var types []models.ImportType
	for _, t := range models.AllImportTypes() {
		if _, ok := r.processors[t]; ok {
			types = append(types, t)
		}
	}
	return types
}
