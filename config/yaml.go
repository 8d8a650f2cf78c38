package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLProvider serves configuration values from a YAML document. Nested mappings are
// flattened into keys joined with an underscore and upper-cased, so
//
//	initgate:
//	  log_level: debug
//
// is served as INITGATE_LOG_LEVEL, the same key the environment provider uses.
type YAMLProvider struct {
	values map[string]string
}

// NewYAMLProvider parses a YAML document.
func NewYAMLProvider(data []byte) (*YAMLProvider, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	p := &YAMLProvider{values: make(map[string]string)}
	p.flatten("", doc)
	return p, nil
}

// NewYAMLFileProvider reads and parses the YAML file at path.
func NewYAMLFileProvider(path string) (*YAMLProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return NewYAMLProvider(data)
}

// Get returns the value stored under the normalized name.
func (p *YAMLProvider) Get(_ context.Context, name string) (string, error) {
	value, ok := p.values[normalizeKey(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotSet, name)
	}
	return value, nil
}

func (p *YAMLProvider) flatten(prefix string, node map[string]any) {
	for k, v := range node {
		key := normalizeKey(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			p.flatten(key, val)
		case []any:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}
			p.values[key] = strings.Join(items, ",")
		case nil:
			p.values[key] = ""
		default:
			p.values[key] = fmt.Sprint(val)
		}
	}
}
