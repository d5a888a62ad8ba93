// Package config handles configuration loading and management for graphseed.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/graphseed/internal/cleanup"
	"github.com/ShayCichocki/graphseed/internal/provider"
)

// Config holds all configuration for graphseed.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Providers []provider.Spec `mapstructure:"providers"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Server    ServerConfig    `mapstructure:"server"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Templates TemplatesConfig `mapstructure:"templates"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxIterations int    `mapstructure:"max_iterations"`
	MaxTokens     int64  `mapstructure:"max_tokens"`
	UseBedrock    bool   `mapstructure:"use_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// Neo4jConfig holds the graph database connection used by cleanup and
// passed to the cypher provider.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JournalConfig holds run journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TemplatesConfig points at an optional prompt override file.
type TemplatesConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, NEO4J_*)
// 2. Project config (.graphseed.yaml in current directory or parent)
// 3. User config (~/.config/graphseed/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Neo4j.Password = expandEnv(cfg.Neo4j.Password)
	// viper lower-cases map keys; environment variable names are upper case.
	for i, p := range cfg.Providers {
		if len(p.Env) == 0 {
			continue
		}
		env := make(map[string]string, len(p.Env))
		for k, val := range p.Env {
			env[strings.ToUpper(k)] = expandEnv(val)
		}
		cfg.Providers[i].Env = env
	}

	return cfg, nil
}

// bindEnv maps the conventional environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "GRAPHSEED_MODEL")
	v.BindEnv("neo4j.uri", "NEO4J_URI")
	v.BindEnv("neo4j.username", "NEO4J_USERNAME")
	v.BindEnv("neo4j.password", "NEO4J_PASSWORD")
	v.BindEnv("neo4j.database", "NEO4J_DATABASE")
	v.BindEnv("server.addr", "GRAPHSEED_ADDR")
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_iterations", cfg.Anthropic.MaxIterations)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("providers", providerMaps(cfg.Providers))
	v.Set("neo4j.uri", cfg.Neo4j.URI)
	v.Set("neo4j.username", cfg.Neo4j.Username)
	v.Set("neo4j.password", cfg.Neo4j.Password)
	v.Set("neo4j.database", cfg.Neo4j.Database)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.Set("server.request_timeout", cfg.Server.RequestTimeout.String())
	v.Set("journal.enabled", cfg.Journal.Enabled)
	v.Set("journal.path", cfg.Journal.Path)
	v.Set("templates.path", cfg.Templates.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// CleanupConfig returns the explicit connection settings for the cleanup
// service.
func (c *Config) CleanupConfig() cleanup.Config {
	return cleanup.Config{
		URI:      c.Neo4j.URI,
		Username: c.Neo4j.Username,
		Password: c.Neo4j.Password,
		Database: c.Neo4j.Database,
	}
}

// ProviderSpecs returns the provider launch descriptors with the Neo4j
// connection added to each provider's environment. Values a provider sets
// explicitly are kept.
func (c *Config) ProviderSpecs() []provider.Spec {
	conn := map[string]string{
		"NEO4J_URI":      c.Neo4j.URI,
		"NEO4J_USERNAME": c.Neo4j.Username,
		"NEO4J_PASSWORD": c.Neo4j.Password,
		"NEO4J_DATABASE": c.Neo4j.Database,
	}

	specs := make([]provider.Spec, len(c.Providers))
	for i, p := range c.Providers {
		env := make(map[string]string, len(p.Env)+len(conn))
		for k, v := range conn {
			if v != "" {
				env[k] = v
			}
		}
		for k, v := range p.Env {
			env[k] = v
		}
		p.Args = append([]string(nil), p.Args...)
		p.Env = env
		specs[i] = p
	}
	return specs
}

// DefaultProviders returns the data-modeling and cypher providers.
func DefaultProviders() []provider.Spec {
	return []provider.Spec{
		{
			Name:    "data-modeling",
			Command: "uvx",
			Args:    []string{"mcp-neo4j-data-modeling@0.1.1", "--transport", "stdio"},
		},
		{
			Name:    "cypher",
			Command: "uvx",
			Args:    []string{"mcp-neo4j-cypher"},
		},
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_iterations", 25)
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("providers", providerMaps(DefaultProviders()))

	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "10m")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")

	v.SetDefault("templates.path", "")
}

func providerMaps(specs []provider.Spec) []map[string]any {
	out := make([]map[string]any, len(specs))
	for i, s := range specs {
		m := map[string]any{
			"name":    s.Name,
			"command": s.Command,
			"args":    append([]string(nil), s.Args...),
		}
		if len(s.Env) > 0 {
			m["env"] = s.Env
		}
		out[i] = m
	}
	return out
}

// getUserConfigDir returns the XDG config directory for graphseed.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "graphseed")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "graphseed")
	}
	return filepath.Join(home, ".config", "graphseed")
}

// findProjectConfig searches for .graphseed.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".graphseed.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			MaxIterations: 25,
			MaxTokens:     8192,
		},
		Providers: DefaultProviders(),
		Neo4j: Neo4jConfig{
			Username: "neo4j",
		},
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"},
			RequestTimeout: 10 * time.Minute,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}
