// Package roles maps role names to validated, typed presets. The directory
// is the only component that inspects raw role configuration; everything
// downstream works with Config values that are known to be complete.
package roles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"chatcrew/internal/config"
	"chatcrew/internal/logger"
)

const defaultMaxTokens = 1000

// Config is a validated role preset.
type Config struct {
	Name        string
	Prompt      string
	Engine      string
	Temperature float32
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// Loader supplies the raw role table, typically by re-reading the
// configuration files.
type Loader func() (map[string]config.RoleConfig, error)

// Directory resolves role names to presets. Lookups are case-insensitive
// (the YAML layer does not preserve key case) and read-only between
// reloads, so concurrent dispatch units may resolve freely.
type Directory struct {
	mu    sync.RWMutex
	roles map[string]Config
	load  Loader
}

// NewDirectory builds a directory from the loader's current role table.
func NewDirectory(load Loader) (*Directory, error) {
	d := &Directory{load: load}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the role table. On failure the previous table stays in
// effect.
func (d *Directory) Reload() error {
	raw, err := d.load()
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}

	roles := make(map[string]Config, len(raw))
	for name, rc := range raw {
		cfg, err := validate(name, rc)
		if err != nil {
			logger.L.Warn("skipping invalid role", "role", name, "error", err)
			continue
		}
		roles[strings.ToLower(name)] = cfg
	}
	if _, ok := roles["default"]; !ok {
		logger.L.Warn("no Default role configured; unaddressed messages will not resolve")
	}

	d.mu.Lock()
	d.roles = roles
	d.mu.Unlock()
	return nil
}

// Resolve returns the preset for name, if one is configured.
func (d *Directory) Resolve(name string) (Config, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.roles[strings.ToLower(name)]
	return cfg, ok
}

// List returns all presets sorted by name.
func (d *Directory) List() []Config {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Config, 0, len(d.roles))
	for _, cfg := range d.roles {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Description returns the first sentence of the role's prompt, for listings.
func (c Config) Description() string {
	s := c.Prompt
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func validate(name string, rc config.RoleConfig) (Config, error) {
	if strings.TrimSpace(rc.Prompt) == "" {
		return Config{}, fmt.Errorf("role %q has no prompt", name)
	}
	if strings.TrimSpace(rc.Model.Engine) == "" {
		return Config{}, fmt.Errorf("role %q has no model engine", name)
	}
	maxTokens := rc.Model.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return Config{
		Name:        name,
		Prompt:      rc.Prompt,
		Engine:      rc.Model.Engine,
		Temperature: rc.Model.Temperature,
		MaxTokens:   maxTokens,
		APIKey:      rc.Model.APIKey,
		BaseURL:     rc.Model.BaseURL,
	}, nil
}
