package permissions

import (
	"fmt"
	"sort"
	"sync"
)

// Object type names the service ships with.
const (
	ObjectTypeCase     = "case"
	ObjectTypeDocument = "document"
)

// ObjectType couples a permission object type name to the factory that
// validates raw policy data into a Blueprint for that type.
type ObjectType struct {
	Name         string
	NewBlueprint func(policy map[string]any) (Blueprint, error)
}

// Registry maps object type names to their ObjectType. It is built once
// at startup, frozen, and then passed to the evaluator and the search
// filter builder; it is never reachable as package state.
type Registry struct {
	mu     sync.Mutex
	types  map[string]ObjectType
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ObjectType)}
}

func (r *Registry) Register(objectType ObjectType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register object type '%s': registry is frozen", objectType.Name)
	}
	if objectType.Name == "" {
		return fmt.Errorf("object type needs a name")
	}
	if objectType.NewBlueprint == nil {
		return fmt.Errorf("object type '%s' needs a blueprint factory", objectType.Name)
	}
	if _, ok := r.types[objectType.Name]; ok {
		return fmt.Errorf("object type '%s' is already registered", objectType.Name)
	}

	r.types[objectType.Name] = objectType
	return nil
}

func (r *Registry) MustRegister(objectType ObjectType) {
	if err := r.Register(objectType); err != nil {
		panic(err)
	}
}

// Freeze closes the registry for further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Get(name string) (ObjectType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	objectType, ok := r.types[name]
	if !ok {
		return ObjectType{}, fmt.Errorf("%w: '%s'", ErrUnknownObjectType, name)
	}
	return objectType, nil
}

// Names returns the registered object type names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
