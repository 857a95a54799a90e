// Package config loads the application configuration from YAML.
//
// A single config.yaml carries the global settings and the role table.
// Additional role files may live in a directory named by roles_dir; they are
// merged over the main table in filename order, so later files can refine
// roles declared earlier (the same layering the role presets shipped with).
package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	LogLevel string                `mapstructure:"log_level"`
	OpenAI   OpenAIConfig          `mapstructure:"openai"`
	History  HistoryConfig         `mapstructure:"history"`
	Dispatch DispatchConfig        `mapstructure:"dispatch"`
	RolesDir string                `mapstructure:"roles_dir"`
	Roles    map[string]RoleConfig `mapstructure:"roles"`
}

// OpenAIConfig holds the default completion API credentials. Individual
// roles may override either field.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// HistoryConfig bounds the conversation log and names its storage.
type HistoryConfig struct {
	MaxMessages   int    `mapstructure:"max_messages"`
	ContextWindow int    `mapstructure:"context_window"`
	DBPath        string `mapstructure:"db_path"`
}

// DispatchConfig holds the orchestrator timing knobs.
type DispatchConfig struct {
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds"`
	GraceSeconds       int `mapstructure:"grace_seconds"`
}

// RoleConfig describes one conversational role.
type RoleConfig struct {
	Prompt string      `mapstructure:"prompt"`
	Model  ModelConfig `mapstructure:"model"`
}

// ModelConfig holds the model parameters for a role. APIKey and BaseURL are
// optional per-role overrides of the global OpenAI settings.
type ModelConfig struct {
	Engine      string  `mapstructure:"engine"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("history.max_messages", 100)
	v.SetDefault("history.context_window", 50)
	v.SetDefault("history.db_path", "chatcrew.db")
	v.SetDefault("dispatch.call_timeout_seconds", 30)
	v.SetDefault("dispatch.grace_seconds", 5)
}

// Load loads the configuration from config.yaml in the working directory,
// or from the file named by the CONFIG_PATH environment variable.
func Load() (*Config, error) {
	v := viper.New()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Roles == nil {
		cfg.Roles = make(map[string]RoleConfig)
	}

	if cfg.RolesDir != "" {
		dir := cfg.RolesDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(v.ConfigFileUsed()), dir)
		}
		if err := mergeRoleDir(&cfg, dir); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// mergeRoleDir layers role definitions from every YAML file in dir, sorted
// by filename, over cfg.Roles. A missing directory is not an error.
func mergeRoleDir(cfg *Config, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		rv := viper.New()
		rv.SetConfigFile(f)
		if err := rv.ReadInConfig(); err != nil {
			return err
		}
		var roles map[string]RoleConfig
		if err := rv.Unmarshal(&roles); err != nil {
			return err
		}
		for name, rc := range roles {
			cfg.Roles[name] = mergeRole(cfg.Roles[name], rc)
		}
	}
	return nil
}

// mergeRole overlays the non-zero fields of b onto a.
func mergeRole(a, b RoleConfig) RoleConfig {
	if b.Prompt != "" {
		a.Prompt = b.Prompt
	}
	if b.Model.Engine != "" {
		a.Model.Engine = b.Model.Engine
	}
	if b.Model.Temperature != 0 {
		a.Model.Temperature = b.Model.Temperature
	}
	if b.Model.MaxTokens != 0 {
		a.Model.MaxTokens = b.Model.MaxTokens
	}
	if b.Model.APIKey != "" {
		a.Model.APIKey = b.Model.APIKey
	}
	if b.Model.BaseURL != "" {
		a.Model.BaseURL = b.Model.BaseURL
	}
	return a
}
