package tool

import (
	"fmt"
	"iter"
	"sync"
)

// DuplicateToolError is returned by Registry.Register when the name is
// already taken. Registration rejects rather than overwrites so a tool can
// never be silently shadowed.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// UnknownToolError is returned by Registry.Get for an unregistered name.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Registry is the process-wide catalog of tools. Registration happens during
// startup before any run begins; afterwards the registry is read-only and
// safe for concurrent lookups across runs.
//
// Insertion order is preserved so the manifest, and therefore tool ordering
// in prompts, is deterministic across runs.
type Registry struct {
	mu    sync.RWMutex
	names []string
	tools map[string]Tool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the catalog, failing with *DuplicateToolError if
// the name is already present.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return &DuplicateToolError{Name: t.Name()}
	}
	r.tools[t.Name()] = t
	r.names = append(r.names, t.Name())
	return nil
}

// MustRegister registers tools and panics on duplicates. Intended for static
// startup wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the tool registered under name or *UnknownToolError.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Manifest yields (name, description, schema) triples in insertion order.
// The sequence is restartable; each range re-reads the catalog.
func (r *Registry) Manifest() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, name := range r.names {
			t := r.tools[name]
			def := Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
			if !yield(def) {
				return
			}
		}
	}
}

// Definitions collects the manifest into a slice, in insertion order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, r.Len())
	for def := range r.Manifest() {
		defs = append(defs, def)
	}
	return defs
}

// Callables returns a name-to-tool snapshot handed to the dispatch node.
// Mutating the returned map does not affect the registry.
func (r *Registry) Callables() map[string]Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	callables := make(map[string]Tool, len(r.tools))
	for name, t := range r.tools {
		callables[name] = t
	}
	return callables
}
