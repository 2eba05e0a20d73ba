package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourcesConfig overrides the market-data source priority order.
type SourcesConfig struct {
	// Priority lists live source names in resolution order. Names not
	// listed keep their default relative order after the listed ones.
	Priority []string `yaml:"priority"`
	// Disabled lists source names to skip entirely.
	Disabled []string `yaml:"disabled"`
}

// LoadSourcesConfig loads a source-priority override from path.
func LoadSourcesConfig(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources config: %w", err)
	}
	return &cfg, nil
}

// LoadSourcesConfigOrDefault loads the override or returns an empty config
// when no file is configured or readable.
func LoadSourcesConfigOrDefault(path string) *SourcesConfig {
	if path == "" {
		return &SourcesConfig{}
	}
	cfg, err := LoadSourcesConfig(path)
	if err != nil {
		return &SourcesConfig{}
	}
	return cfg
}

// Apply reorders names per the override: disabled names are dropped and
// listed names move to the front in the listed order.
func (c *SourcesConfig) Apply(names []string) []string {
	if c == nil || (len(c.Priority) == 0 && len(c.Disabled) == 0) {
		return names
	}

	disabled := make(map[string]bool, len(c.Disabled))
	for _, name := range c.Disabled {
		disabled[name] = true
	}

	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}

	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range c.Priority {
		if present[name] && !disabled[name] && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	for _, name := range names {
		if !disabled[name] && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}
