package config

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/cleitonmarx/initgate/internal/reflectx"
)

// ProviderWithSource is an optional interface that providers can implement to report their source.
// For example, CompositeProvider reports which sub-provider supplied the value.
type ProviderWithSource interface {
	// GetWithSource retrieves a configuration value and reports its provider source.
	GetWithSource(ctx context.Context, key string) (string, string, error)
}

// KeyAccess records one configuration key lookup.
type KeyAccess struct {
	Key       string
	Provider  string
	Default   bool
	Component string
}

// Inspector wraps a Provider, caches values and records every key that was read.
type Inspector struct {
	provider     Provider
	providerName string

	mu       sync.Mutex
	cache    map[string]cachedValue
	accesses []KeyAccess
}

type cachedValue struct {
	value    string
	provider string
}

// NewInspector wraps p.
func NewInspector(p Provider) *Inspector {
	return &Inspector{
		provider:     p,
		providerName: reflectx.TypeNameOf(p),
		cache:        make(map[string]cachedValue),
	}
}

// Get implements Provider.
func (i *Inspector) Get(ctx context.Context, key string) (string, error) {
	return i.get(ctx, key, false, nil)
}

func (i *Inspector) get(ctx context.Context, key string, hasDefault bool, component reflect.Type) (string, error) {
	i.mu.Lock()
	cached, ok := i.cache[key]
	i.mu.Unlock()
	if ok {
		i.record(key, cached.provider, false, component)
		return cached.value, nil
	}

	var (
		val          string
		providerName string
		err          error
	)
	if srp, ok := i.provider.(ProviderWithSource); ok {
		val, providerName, err = srp.GetWithSource(ctx, key)
	} else {
		val, err = i.provider.Get(ctx, key)
		providerName = i.providerName
	}
	if err != nil {
		if hasDefault {
			i.record(key, "", true, component)
		}
		return "", err
	}

	i.mu.Lock()
	i.cache[key] = cachedValue{value: val, provider: providerName}
	i.mu.Unlock()
	i.record(key, providerName, false, component)
	return val, nil
}

func (i *Inspector) record(key, provider string, usedDefault bool, component reflect.Type) {
	access := KeyAccess{Key: key, Provider: provider, Default: usedDefault}
	if component != nil {
		if component.Kind() == reflect.Pointer {
			component = component.Elem()
		}
		access.Component = reflectx.GetTypeName(component)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.accesses = append(i.accesses, access)
}

// Accesses returns every recorded lookup, sorted by key. Lookups of the same key keep
// their order.
func (i *Inspector) Accesses() []KeyAccess {
	i.mu.Lock()
	out := append([]KeyAccess(nil), i.accesses...)
	i.mu.Unlock()
	sort.SliceStable(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}
