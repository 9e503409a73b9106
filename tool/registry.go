package tool

import (
	"fmt"
	"sort"
	"sync"
)

// DuplicatePolicy controls how the registry handles a second registration
// under an existing tool name.
type DuplicatePolicy int

const (
	// DuplicateReject fails the registration of a name already present.
	DuplicateReject DuplicatePolicy = iota
	// DuplicateOverwrite replaces the existing definition.
	DuplicateOverwrite
)

// Registry holds the set of invokable tool definitions. Registration
// validates definitions before admitting them; lookups return copies so
// callers cannot mutate registered state.
type Registry struct {
	mu     sync.RWMutex
	policy DuplicatePolicy
	tools  map[string]ToolDefinition
	order  []string
}

// NewRegistry creates an empty registry with the given duplicate policy.
func NewRegistry(policy DuplicatePolicy) *Registry {
	return &Registry{
		policy: policy,
		tools:  make(map[string]ToolDefinition),
	}
}

// Register validates and admits a single tool definition.
func (r *Registry) Register(def ToolDefinition) error {
	if diags := ValidateDefinition(def, def.Name); HasErrors(diags) {
		return fmt.Errorf("tool %q failed validation: %s", def.Name, diags[0].Message)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		if r.policy == DuplicateReject {
			return fmt.Errorf("tool %q is already registered", def.Name)
		}
	} else {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// RegisterManifest admits every tool in a manifest. Registration is
// all-or-nothing: a validation or duplicate failure leaves the registry
// unchanged.
func (r *Registry) RegisterManifest(m Manifest) error {
	if diags := ValidateManifest(m); HasErrors(diags) {
		return fmt.Errorf("manifest failed validation: %s", diags[0].Message)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.policy == DuplicateReject {
		seen := make(map[string]struct{}, len(m.Tools))
		for _, def := range m.Tools {
			if _, exists := r.tools[def.Name]; exists {
				return fmt.Errorf("tool %q is already registered", def.Name)
			}
			if _, dup := seen[def.Name]; dup {
				return fmt.Errorf("manifest declares tool %q more than once", def.Name)
			}
			seen[def.Name] = struct{}{}
		}
	}
	for _, def := range m.Tools {
		if _, exists := r.tools[def.Name]; !exists {
			r.order = append(r.order, def.Name)
		}
		r.tools[def.Name] = def
	}
	return nil
}

// Unregister removes a tool by name. It reports whether the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all registered definitions in registration order.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
