package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/graphseed/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "graphseed",
	Short: "Synthetic Neo4j graph dataset generator",
	Long: `graphseed drives an LLM through Neo4j MCP tool providers to design graph
data models and populate a Neo4j database with synthetic data.

Workflows:
  schema create   Propose a Mermaid graph diagram for a usecase
  schema edit     Apply natural-language edits to a diagram
  data generate   Upload a dataset for an existing diagram
  data usecase    Model a usecase and upload a dataset for it
  data expand     Extend the existing graph for a new usecase

Provider processes, the Neo4j connection and the model are configured in
~/.config/graphseed/config.yaml (see 'graphseed config').`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/graphseed/config.yaml)")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads --config when given, the layered configuration otherwise.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
