package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vk/flowgrid/internal/model"
)

// Module is the interface that all node modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the node type definitions of a single application instance.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register stores def under its type identifier. Registering a type again
// replaces the earlier definition.
func (r *Registry) Register(def *Definition) {
	if def == nil || def.Type == "" {
		panic("registry: definition without a type identifier")
	}
	if def.Behavior == nil {
		panic(fmt.Sprintf("registry: node type '%s' has no behavior", def.Type))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Type]; exists {
		slog.Warn("Overwriting node type definition.", "type", def.Type)
	} else {
		slog.Debug("Registering node type.", "type", def.Type, "category", def.Category)
	}
	r.defs[def.Type] = def
}

// Get returns the definition registered for nodeType.
func (r *Registry) Get(nodeType string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[nodeType]
	return def, ok
}

// Lookup is Get returning model.ErrUnknownNodeType for a missing type.
func (r *Registry) Lookup(nodeType string) (*Definition, error) {
	def, ok := r.Get(nodeType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownNodeType, nodeType)
	}
	return def, nil
}

// Types returns all registered type identifiers, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Definitions returns all definitions ordered by type identifier.
func (r *Registry) Definitions() []*Definition {
	types := r.Types()
	out := make([]*Definition, 0, len(types))
	for _, t := range types {
		if def, ok := r.Get(t); ok {
			out = append(out, def)
		}
	}
	return out
}

// ByCategory returns the definitions of one category ordered by type identifier.
func (r *Registry) ByCategory(c Category) []*Definition {
	var out []*Definition
	for _, def := range r.Definitions() {
		if def.Category == c {
			out = append(out, def)
		}
	}
	return out
}
