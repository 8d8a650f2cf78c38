// Package config provides configuration lookups through pluggable providers.
// It supports struct field injection via tags and includes built-in parsers for common types.
package config

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/cleitonmarx/initgate/internal/reflectx"
)

const (
	// tagName is the struct tag key for configuration value names
	tagName = "config"
	// defaultTagName is the struct tag key for default values
	defaultTagName = "default"
)

var (
	parsersMu sync.RWMutex
	// parserRegistry maps types to their parsing functions for string value conversion
	parserRegistry = map[reflect.Type]func(value string) (any, error){
		reflect.TypeFor[string]():        func(value string) (any, error) { return value, nil },
		reflect.TypeFor[bool]():          func(value string) (any, error) { return strconv.ParseBool(value) },
		reflect.TypeFor[int]():           func(value string) (any, error) { return strconv.Atoi(value) },
		reflect.TypeFor[int64]():         func(value string) (any, error) { return strconv.ParseInt(value, 10, 64) },
		reflect.TypeFor[float64]():       func(value string) (any, error) { return strconv.ParseFloat(value, 64) },
		reflect.TypeFor[time.Duration](): func(value string) (any, error) { return time.ParseDuration(value) },
	}
)

// Provider retrieves configuration values by key.
// Implementations can read from environment variables, files, remote services, etc.
type Provider interface {
	// Get retrieves the configuration value for the given key.
	Get(ctx context.Context, name string) (string, error)
}

// ParseFunc is a function that parses a string value into type T.
type ParseFunc[T any] func(value string) (T, error)

// RegisterParser registers a custom parser for type T.
// Built-in parsers exist for string, bool, int, int64, float64, and time.Duration.
func RegisterParser[T any](parser ParseFunc[T]) {
	parsersMu.Lock()
	defer parsersMu.Unlock()
	parserRegistry[reflect.TypeFor[T]()] = func(value string) (any, error) {
		return parser(value)
	}
}

func parserFor(t reflect.Type) (func(string) (any, error), bool) {
	parsersMu.RLock()
	defer parsersMu.RUnlock()
	p, ok := parserRegistry[t]
	return p, ok
}

// Get retrieves and parses a configuration value by key and type.
// Returns an error if the key is not found or parsing fails.
func Get[T any](ctx context.Context, p Provider, name string) (T, error) {
	var emptyType T
	typeOfT := reflect.TypeFor[T]()
	parser, exist := parserFor(typeOfT)
	if !exist {
		return emptyType, fmt.Errorf("config: parser for type '%s' does not exist", reflectx.GetTypeName(typeOfT))
	}
	configValue, err := lookup(ctx, p, name, false, nil)
	if err != nil {
		return emptyType, fmt.Errorf("config: %s", err)
	}
	value, err := parser(configValue)
	if err != nil {
		return emptyType, fmt.Errorf("config: %s", err)
	}
	return value.(T), nil
}

// GetWithDefault retrieves a configuration value or returns the default if not found.
// No error is returned; the default is used for any lookup or parse failure.
func GetWithDefault[T any](ctx context.Context, p Provider, name string, defaultValue T) T {
	parser, exist := parserFor(reflect.TypeFor[T]())
	if !exist {
		return defaultValue
	}
	configValue, err := lookup(ctx, p, name, true, nil)
	if err != nil {
		return defaultValue
	}
	value, err := parser(configValue)
	if err != nil {
		return defaultValue
	}
	return value.(T)
}

// LoadStruct injects configuration values into all struct fields tagged with config:"key".
// Supports default values via the default tag. Returns error if a required key is not found.
func LoadStruct[T any](ctx context.Context, p Provider, target *T) error {
	return reflectx.IterateStructFields(target, loadStructFieldValue(ctx, p))
}

// LoadStructFieldValue returns a function that injects a single struct field's configuration value.
// It lets callers combine configuration loading with other field iterators.
func LoadStructFieldValue(ctx context.Context, p Provider) reflectx.StructFieldIteratorFunc {
	return loadStructFieldValue(ctx, p)
}

func loadStructFieldValue(ctx context.Context, p Provider) reflectx.StructFieldIteratorFunc {
	return func(fieldValue reflect.Value, structField reflect.StructField, targetType reflect.Type) error {
		configName, ok := structField.Tag.Lookup(tagName)
		if !ok {
			return nil
		}

		defaultValue := structField.Tag.Get(defaultTagName)
		parser, exists := parserFor(structField.Type)
		if !exists {
			return fmt.Errorf("config: parser for type '%s' does not exist", reflectx.GetTypeName(structField.Type))
		}

		var (
			valueStr string
			err      error
		)
		if defaultValue != "" {
			valueStr, err = lookup(ctx, p, configName, true, targetType)
			if err != nil {
				valueStr = defaultValue
			}
		} else {
			valueStr, err = lookup(ctx, p, configName, false, targetType)
			if err != nil {
				return fmt.Errorf("config: error getting value for field '%s': %s", structField.Name, err)
			}
		}

		value, parseErr := parser(valueStr)
		if parseErr != nil {
			return fmt.Errorf("config: error parsing value for field '%s': %s", structField.Name, parseErr)
		}

		if err := reflectx.SetFieldValue(fieldValue, structField, value); err != nil {
			return fmt.Errorf("config: %s", err)
		}
		return nil
	}
}

// lookup reads a key, recording the access when p is an Inspector.
func lookup(ctx context.Context, p Provider, key string, hasDefault bool, component reflect.Type) (string, error) {
	if i, ok := p.(*Inspector); ok {
		return i.get(ctx, key, hasDefault, component)
	}
	return p.Get(ctx, key)
}
