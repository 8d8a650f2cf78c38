// Package depend provides a type-safe, thread-safe dependency container.
// Dependencies are registered by type and resolved by value or struct field injection.
// Both unnamed and named dependencies are supported.
//
// A Container is created by its owner and handed to whoever needs it; there is no
// package-level registry.
package depend

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cleitonmarx/initgate/internal/reflectx"
)

const tagName = "resolve"

// Container stores registered dependencies, organized by type and name.
type Container struct {
	mu   sync.RWMutex
	deps map[reflect.Type]map[string]any
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{deps: make(map[reflect.Type]map[string]any)}
}

// RegisterNamed registers a dependency with an optional name.
// Multiple dependencies of the same type can be registered with different names.
func RegisterNamed[T any](c *Container, dependency T, name string) {
	typeOfT := reflect.TypeFor[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exist := c.deps[typeOfT]; !exist {
		c.deps[typeOfT] = make(map[string]any)
	}
	c.deps[typeOfT][name] = dependency
}

// Register registers an unnamed dependency by type.
// Only one unnamed dependency per type can be registered; use RegisterNamed for multiple instances.
func Register[T any](c *Container, dependency T) {
	RegisterNamed(c, dependency, "")
}

// RegisterNamedOnce registers a named dependency, returning an error if already registered.
func RegisterNamedOnce[T any](c *Container, dependency T, name string) error {
	typeOfT := reflect.TypeFor[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exist := c.deps[typeOfT]; !exist {
		c.deps[typeOfT] = make(map[string]any)
	}
	if _, exists := c.deps[typeOfT][name]; exists {
		if name == "" {
			return fmt.Errorf("depend: dependency already registered for type %s", reflectx.GetTypeName(typeOfT))
		}
		return fmt.Errorf("depend: dependency already registered for type %s and name %q", reflectx.GetTypeName(typeOfT), name)
	}
	c.deps[typeOfT][name] = dependency
	return nil
}

// RegisterOnce registers an unnamed dependency, returning an error if already registered.
func RegisterOnce[T any](c *Container, dependency T) error {
	return RegisterNamedOnce(c, dependency, "")
}

// ResolveNamed retrieves a registered dependency by type and name.
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var emptyType T
	typeOfT := reflect.TypeFor[T]()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if dependenciesByName, exist := c.deps[typeOfT]; exist {
		if dependency, exist := dependenciesByName[name]; exist {
			return dependency.(T), nil
		}
		return emptyType, fmt.Errorf("depend: the dependency '%s' of type '%s' was not registered", name, reflectx.GetTypeName(typeOfT))
	}
	return emptyType, fmt.Errorf("depend: the dependency type '%s' was not registered", reflectx.GetTypeName(typeOfT))
}

// Resolve retrieves the unnamed registered dependency of the specified type.
func Resolve[T any](c *Container) (T, error) {
	return ResolveNamed[T](c, "")
}

// ResolveStruct injects dependencies into all struct fields tagged with resolve:"name".
func ResolveStruct[T any](c *Container, target *T) error {
	return reflectx.IterateStructFields(target, c.ResolveStructFieldValue)
}

// ResolveStructFieldValue injects a dependency into a single struct field based on its resolve tag.
// Fields without the tag are left untouched.
func (c *Container) ResolveStructFieldValue(fieldValue reflect.Value, structField reflect.StructField, _ reflect.Type) error {
	dependencyName, ok := structField.Tag.Lookup(tagName)
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	dependenciesByName, typeExist := c.deps[fieldValue.Type()]
	if !typeExist {
		return fmt.Errorf("depend: the dependency type '%s' was not registered", reflectx.GetTypeName(fieldValue.Type()))
	}
	dependency, nameExist := dependenciesByName[dependencyName]
	if !nameExist {
		return fmt.Errorf("depend: the dependency '%s' of type '%s' was not registered", dependencyName, reflectx.GetTypeName(fieldValue.Type()))
	}
	if err := reflectx.SetFieldValue(fieldValue, structField, dependency); err != nil {
		return fmt.Errorf("depend: %s", err)
	}
	return nil
}
