package modules

import (
	"fmt"
	"sort"
)

// Factory constructs a Module.
type Factory func() Module

// Registry maps module names to their factory constructors.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a Registry pre-registered with all shipped modules.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["bcr"] = func() Module { return &BCR{} }
	r.factories["oemunlockonboot"] = func() Module { return &OEMUnlockOnBoot{} }
	return r
}

// New creates a single module by name.
func (r *Registry) New(name string) (Module, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no module registered under %q", name)
	}
	return factory(), nil
}

// Names returns all registered module names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
