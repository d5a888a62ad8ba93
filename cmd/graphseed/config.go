package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/graphseed/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify graphseed configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/graphseed/config.yaml
Project-specific overrides can be placed in .graphseed.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s\n", args[0])
			return nil
		}
	},
}

// configKeys lists the keys shown by 'graphseed config'.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.max_iterations",
	"anthropic.max_tokens",
	"anthropic.use_bedrock",
	"anthropic.aws_region",
	"anthropic.aws_profile",
	"neo4j.uri",
	"neo4j.username",
	"neo4j.password",
	"neo4j.database",
	"server.addr",
	"server.allowed_origins",
	"server.request_timeout",
	"journal.enabled",
	"journal.path",
	"templates.path",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
	for _, p := range cfg.Providers {
		fmt.Fprintf(w, "providers.%s: %s %s\n", p.Name, p.Command, strings.Join(p.Args, " "))
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
// Secrets are masked.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskSecret(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.max_iterations":
		return strconv.Itoa(cfg.Anthropic.MaxIterations), nil
	case "anthropic.max_tokens":
		return strconv.FormatInt(cfg.Anthropic.MaxTokens, 10), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "neo4j.uri":
		return cfg.Neo4j.URI, nil
	case "neo4j.username":
		return cfg.Neo4j.Username, nil
	case "neo4j.password":
		return config.MaskSecret(cfg.Neo4j.Password), nil
	case "neo4j.database":
		return cfg.Neo4j.Database, nil
	case "server.addr":
		return cfg.Server.Addr, nil
	case "server.allowed_origins":
		return strings.Join(cfg.Server.AllowedOrigins, ","), nil
	case "server.request_timeout":
		return cfg.Server.RequestTimeout.String(), nil
	case "journal.enabled":
		return strconv.FormatBool(cfg.Journal.Enabled), nil
	case "journal.path":
		return cfg.Journal.Path, nil
	case "templates.path":
		return cfg.Templates.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid value for max_iterations: %q", value)
		}
		cfg.Anthropic.MaxIterations = n
	case "anthropic.max_tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid value for max_tokens: %q", value)
		}
		cfg.Anthropic.MaxTokens = n
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "neo4j.uri":
		cfg.Neo4j.URI = value
	case "neo4j.username":
		cfg.Neo4j.Username = value
	case "neo4j.password":
		cfg.Neo4j.Password = value
	case "neo4j.database":
		cfg.Neo4j.Database = value
	case "server.addr":
		cfg.Server.Addr = value
	case "server.allowed_origins":
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	case "server.request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for request_timeout: %w", err)
		}
		cfg.Server.RequestTimeout = d
	case "journal.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for journal.enabled: %w", err)
		}
		cfg.Journal.Enabled = b
	case "journal.path":
		cfg.Journal.Path = value
	case "templates.path":
		cfg.Templates.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
