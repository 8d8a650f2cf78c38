package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cleitonmarx/initgate/internal/reflectx"
)

// ErrKeyNotSet is wrapped by the built-in providers for keys they do not hold.
var ErrKeyNotSet = errors.New("config: key not set")

var keyReplacer = strings.NewReplacer(".", "_", "-", "_")

// normalizeKey maps a key to the form providers store it under: upper case, with dots
// and dashes turned into underscores. "initgate.health-interval" and
// INITGATE_HEALTH_INTERVAL name the same value.
func normalizeKey(name string) string {
	return strings.ToUpper(keyReplacer.Replace(name))
}

// EnvVarProvider serves configuration values from environment variables.
// It is the App's provider unless another one is set.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an environment variable provider.
func NewEnvVarProvider() EnvVarProvider {
	return EnvVarProvider{}
}

// Get returns the value of the environment variable named by the normalized key.
func (EnvVarProvider) Get(_ context.Context, name string) (string, error) {
	key := normalizeKey(name)
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s", ErrKeyNotSet, key)
	}
	return value, nil
}

type namedProvider struct {
	provider Provider
	name     string
}

// CompositeProvider asks each of its providers in turn and returns the first value
// found, e.g. environment variables overriding a settings file.
type CompositeProvider struct {
	providers []namedProvider
}

// NewCompositeProvider chains providers in priority order.
func NewCompositeProvider(providers ...Provider) CompositeProvider {
	named := make([]namedProvider, 0, len(providers))
	for _, p := range providers {
		named = append(named, namedProvider{provider: p, name: reflectx.TypeNameOf(p)})
	}
	return CompositeProvider{providers: named}
}

// Get implements Provider.
func (p CompositeProvider) Get(ctx context.Context, name string) (string, error) {
	value, _, err := p.GetWithSource(ctx, name)
	return value, err
}

// GetWithSource also reports the type name of the provider that held the key. When no
// provider holds it, the error joins every provider's error.
func (p CompositeProvider) GetWithSource(ctx context.Context, name string) (string, string, error) {
	if len(p.providers) == 0 {
		return "", "", fmt.Errorf("%w: %s", ErrKeyNotSet, name)
	}
	errs := make([]error, 0, len(p.providers))
	for _, np := range p.providers {
		value, err := np.provider.Get(ctx, name)
		if err == nil {
			return value, np.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", np.name, err))
	}
	return "", "", errors.Join(errs...)
}
