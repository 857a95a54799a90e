package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
log_level: debug
openai:
  api_key: dummy
  base_url: https://api.example.com/v1
history:
  max_messages: 25
  context_window: 10
dispatch:
  call_timeout_seconds: 12
  grace_seconds: 2
roles:
  Default:
    prompt: You are a helpful assistant.
    model:
      engine: gpt-4o-mini
      temperature: 0.7
      max_tokens: 800
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()
	return tmp.Name()
}

// TestLoad verifies that Load unmarshals the full configuration tree.
func TestLoad(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
	if cfg.OpenAI.APIKey != "dummy" {
		t.Fatalf("unexpected api key: %s", cfg.OpenAI.APIKey)
	}
	if cfg.History.MaxMessages != 25 || cfg.History.ContextWindow != 10 {
		t.Fatalf("unexpected history config: %+v", cfg.History)
	}
	if cfg.Dispatch.CallTimeoutSeconds != 12 {
		t.Fatalf("unexpected dispatch config: %+v", cfg.Dispatch)
	}

	// viper lowercases map keys
	role, ok := cfg.Roles["default"]
	if !ok {
		t.Fatalf("default role missing: %v", cfg.Roles)
	}
	if role.Model.Engine != "gpt-4o-mini" {
		t.Fatalf("unexpected engine: %s", role.Model.Engine)
	}
	if role.Model.MaxTokens != 800 {
		t.Fatalf("unexpected max_tokens: %d", role.Model.MaxTokens)
	}
}

// TestLoadDefaults verifies that omitted settings fall back to defaults.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "roles: {}\n"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.History.MaxMessages != 100 {
		t.Fatalf("expected default max_messages, got %d", cfg.History.MaxMessages)
	}
	if cfg.Dispatch.CallTimeoutSeconds != 30 || cfg.Dispatch.GraceSeconds != 5 {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
}

// TestLoadMergesRoleDirectory verifies that role files layer over the main
// table in filename order.
func TestLoadMergesRoleDirectory(t *testing.T) {
	dir := t.TempDir()
	rolesDir := filepath.Join(dir, "roles.d")
	if err := os.Mkdir(rolesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	main := `
roles_dir: roles.d
roles:
  Default:
    prompt: Base prompt.
    model:
      engine: gpt-4o-mini
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(main), 0o644); err != nil {
		t.Fatalf("write main config: %v", err)
	}

	base := `
Tech:
  prompt: You are a technical expert.
  model:
    engine: gpt-4o
    temperature: 0.2
`
	override := `
Tech:
  model:
    temperature: 0.5
`
	if err := os.WriteFile(filepath.Join(rolesDir, "10-base.yaml"), []byte(base), 0o644); err != nil {
		t.Fatalf("write role file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(rolesDir, "20-override.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write role file: %v", err)
	}

	t.Setenv("CONFIG_PATH", filepath.Join(dir, "config.yaml"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	tech, ok := cfg.Roles["tech"]
	if !ok {
		t.Fatalf("tech role missing: %v", cfg.Roles)
	}
	if tech.Prompt != "You are a technical expert." {
		t.Fatalf("base prompt lost: %q", tech.Prompt)
	}
	if tech.Model.Engine != "gpt-4o" {
		t.Fatalf("base engine lost: %q", tech.Model.Engine)
	}
	if tech.Model.Temperature != 0.5 {
		t.Fatalf("override not applied: %v", tech.Model.Temperature)
	}
	if _, ok := cfg.Roles["default"]; !ok {
		t.Fatalf("main-table role lost")
	}
}
