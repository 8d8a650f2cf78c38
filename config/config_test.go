package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider map[string]string

func (s stubProvider) Get(_ context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok {
		return "", fmt.Errorf("key '%s' does not exist", name)
	}
	return value, nil
}

type failingProvider struct{ err error }

func (f failingProvider) Get(context.Context, string) (string, error) { return "", f.err }

func TestGet(t *testing.T) {
	RegisterParser(func(value string) ([]string, error) {
		return strings.Split(value, ","), nil
	})
	provider := stubProvider{
		"string":   "value",
		"bool":     "true",
		"int":      "42",
		"int64":    "64",
		"float":    "3.14",
		"duration": "1h",
		"slice":    "1,2,3",
		"bad_int":  "string_value",
	}
	ctx := context.Background()

	tests := map[string]struct {
		get         func() (any, error)
		expected    any
		expectedErr string
	}{
		"string":   {get: func() (any, error) { return Get[string](ctx, provider, "string") }, expected: "value"},
		"bool":     {get: func() (any, error) { return Get[bool](ctx, provider, "bool") }, expected: true},
		"int":      {get: func() (any, error) { return Get[int](ctx, provider, "int") }, expected: 42},
		"int64":    {get: func() (any, error) { return Get[int64](ctx, provider, "int64") }, expected: int64(64)},
		"float64":  {get: func() (any, error) { return Get[float64](ctx, provider, "float") }, expected: 3.14},
		"duration": {get: func() (any, error) { return Get[time.Duration](ctx, provider, "duration") }, expected: time.Hour},
		"custom_parser": {
			get:      func() (any, error) { return Get[[]string](ctx, provider, "slice") },
			expected: []string{"1", "2", "3"},
		},
		"parse_error": {
			get:         func() (any, error) { return Get[int](ctx, provider, "bad_int") },
			expected:    0,
			expectedErr: "config: strconv.Atoi: parsing \"string_value\": invalid syntax",
		},
		"no_parser": {
			get:         func() (any, error) { return Get[uint](ctx, provider, "int") },
			expected:    uint(0),
			expectedErr: "config: parser for type 'uint' does not exist",
		},
		"missing_key": {
			get:         func() (any, error) { return Get[string](ctx, provider, "missing") },
			expected:    "",
			expectedErr: "config: key 'missing' does not exist",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			value, err := tt.get()
			if tt.expectedErr != "" {
				require.EqualError(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestGetWithDefault(t *testing.T) {
	ctx := context.Background()
	provider := stubProvider{"interval": "5s", "bad": "soon"}

	assert.Equal(t, 5*time.Second, GetWithDefault(ctx, provider, "interval", time.Second))
	assert.Equal(t, time.Second, GetWithDefault(ctx, provider, "missing", time.Second))
	assert.Equal(t, time.Second, GetWithDefault(ctx, provider, "bad", time.Second))
	assert.Equal(t, uint(7), GetWithDefault(ctx, provider, "interval", uint(7)))
}

type settings struct {
	Level    string        `config:"LOG_LEVEL" default:"info"`
	Interval time.Duration `config:"INTERVAL" default:"1s"`
	Workers  int           `config:"WORKERS"`
	ignored  string
}

func TestLoadStruct(t *testing.T) {
	tests := map[string]struct {
		provider    Provider
		expected    settings
		expectedErr string
	}{
		"all_values": {
			provider: stubProvider{"LOG_LEVEL": "debug", "INTERVAL": "250ms", "WORKERS": "4"},
			expected: settings{Level: "debug", Interval: 250 * time.Millisecond, Workers: 4},
		},
		"defaults": {
			provider: stubProvider{"WORKERS": "2"},
			expected: settings{Level: "info", Interval: time.Second, Workers: 2},
		},
		"missing_required": {
			provider:    stubProvider{},
			expectedErr: "config: error getting value for field 'Workers': key 'WORKERS' does not exist",
		},
		"parse_error": {
			provider:    stubProvider{"WORKERS": "many"},
			expectedErr: "config: error parsing value for field 'Workers': strconv.Atoi: parsing \"many\": invalid syntax",
		},
		"provider_error": {
			provider:    failingProvider{err: errors.New("vault sealed")},
			expectedErr: "config: error getting value for field 'Workers': vault sealed",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var s settings
			err := LoadStruct(context.Background(), tt.provider, &s)
			if tt.expectedErr != "" {
				require.EqualError(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}
}

func TestLoadStruct_NotAStructPointer(t *testing.T) {
	value := 1
	require.Error(t, LoadStruct(context.Background(), stubProvider{}, &value))
}
