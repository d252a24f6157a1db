package backend

import "sort"

// Registry maps backend names to implementations.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its own name. Later registrations with the
// same name win.
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// Select returns the named backend. An unknown name is a configuration
// failure, not a programming error: it comes straight from user input.
func (r *Registry) Select(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, &Failure{
			Category: CategoryConfiguration,
			Step:     "backend selection",
			ExitCode: -1,
			Detail:   "unknown backend " + name,
		}
	}
	return b, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
