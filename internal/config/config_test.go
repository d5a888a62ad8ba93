package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Anthropic.MaxIterations != 25 {
		t.Errorf("expected max_iterations 25, got %d", cfg.Anthropic.MaxIterations)
	}
	if cfg.Anthropic.MaxTokens != 8192 {
		t.Errorf("expected max_tokens 8192, got %d", cfg.Anthropic.MaxTokens)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected 2 default providers, got %d", len(cfg.Providers))
	}
	if cfg.Providers[0].Name != "data-modeling" || cfg.Providers[1].Name != "cypher" {
		t.Errorf("unexpected providers: %+v", cfg.Providers)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("expected addr :8000, got %q", cfg.Server.Addr)
	}
	if cfg.Server.RequestTimeout != 10*time.Minute {
		t.Errorf("expected request timeout 10m, got %v", cfg.Server.RequestTimeout)
	}
	if !cfg.Journal.Enabled {
		t.Error("expected journal to be enabled")
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("TEST_NEO4J_PASSWORD", "s3cret")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-5-20250929
  max_iterations: 10
providers:
  - name: modeling
    command: uvx
    args: ["mcp-neo4j-data-modeling@0.1.1", "--transport", "stdio"]
    env:
      LOG_LEVEL: debug
neo4j:
  uri: neo4j://localhost:7687
  password: ${TEST_NEO4J_PASSWORD}
server:
  addr: 127.0.0.1:9000
  allowed_origins: ["http://localhost:3000"]
  request_timeout: 90s
journal:
  enabled: false
templates:
  path: /etc/graphseed/prompts.yaml
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.MaxIterations != 10 {
		t.Errorf("expected max_iterations 10, got %d", cfg.Anthropic.MaxIterations)
	}
	if cfg.Anthropic.MaxTokens != 8192 {
		t.Errorf("expected default max_tokens, got %d", cfg.Anthropic.MaxTokens)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(cfg.Providers))
	}
	p := cfg.Providers[0]
	if p.Name != "modeling" || p.Command != "uvx" || len(p.Args) != 3 {
		t.Errorf("unexpected provider: %+v", p)
	}
	if p.Env["LOG_LEVEL"] != "debug" {
		t.Errorf("expected upper-case env key, got %v", p.Env)
	}
	if cfg.Neo4j.URI != "neo4j://localhost:7687" {
		t.Errorf("unexpected neo4j uri %q", cfg.Neo4j.URI)
	}
	if cfg.Neo4j.Password != "s3cret" {
		t.Errorf("expected expanded password, got %q", cfg.Neo4j.Password)
	}
	if cfg.Neo4j.Username != "neo4j" {
		t.Errorf("expected default username, got %q", cfg.Neo4j.Username)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("expected request timeout 90s, got %v", cfg.Server.RequestTimeout)
	}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Journal.Enabled {
		t.Error("expected journal to be disabled")
	}
	if cfg.Templates.Path != "/etc/graphseed/prompts.yaml" {
		t.Errorf("unexpected templates path %q", cfg.Templates.Path)
	}
}

func TestLoadFromPath_DefaultProviders(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("neo4j:\n  uri: bolt://db:7687\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[1].Command != "uvx" {
		t.Errorf("expected default providers, got %+v", cfg.Providers)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NEO4J_URI", "neo4j://env:7687")
	t.Setenv("NEO4J_PASSWORD", "from-env")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Neo4j.URI != "neo4j://env:7687" {
		t.Errorf("expected env uri, got %q", cfg.Neo4j.URI)
	}
	if cfg.Neo4j.Password != "from-env" {
		t.Errorf("expected env password, got %q", cfg.Neo4j.Password)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := Default()
	cfg.Neo4j.URI = "neo4j://saved:7687"
	cfg.Server.Addr = ":9999"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromPath(filepath.Join(dir, "graphseed", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Neo4j.URI != "neo4j://saved:7687" || loaded.Server.Addr != ":9999" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if len(loaded.Providers) != 2 {
		t.Errorf("expected providers to be saved, got %d", len(loaded.Providers))
	}
}

func TestCleanupConfig(t *testing.T) {
	cfg := Default()
	cfg.Neo4j = Neo4jConfig{URI: "neo4j://x", Username: "u", Password: "p", Database: "graph"}

	cc := cfg.CleanupConfig()
	if cc.URI != "neo4j://x" || cc.Username != "u" || cc.Password != "p" || cc.Database != "graph" {
		t.Errorf("CleanupConfig() = %+v", cc)
	}
}

func TestProviderSpecs(t *testing.T) {
	cfg := Default()
	cfg.Neo4j.URI = "neo4j://db:7687"
	cfg.Providers[1].Env = map[string]string{"NEO4J_URI": "neo4j://override:7687"}

	specs := cfg.ProviderSpecs()
	if got := specs[0].Env["NEO4J_URI"]; got != "neo4j://db:7687" {
		t.Errorf("spec 0 NEO4J_URI = %q", got)
	}
	if got := specs[1].Env["NEO4J_URI"]; got != "neo4j://override:7687" {
		t.Errorf("spec 1 NEO4J_URI = %q, want provider override", got)
	}
	if got := specs[0].Env["NEO4J_USERNAME"]; got != "neo4j" {
		t.Errorf("spec 0 NEO4J_USERNAME = %q", got)
	}
	if _, ok := specs[0].Env["NEO4J_DATABASE"]; ok {
		t.Error("empty values should not be exported")
	}

	specs[0].Args[0] = "mutated"
	if cfg.Providers[0].Args[0] == "mutated" {
		t.Error("ProviderSpecs should copy args")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if got := expandEnv("prefix-${TEST_VAR}-suffix"); got != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/graphseed" {
		t.Errorf("expected /custom/config/graphseed, got %q", dir)
	}
}
