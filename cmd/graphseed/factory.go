package main

import (
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/graphseed/internal/api"
	"github.com/ShayCichocki/graphseed/internal/cleanup"
	"github.com/ShayCichocki/graphseed/internal/config"
	"github.com/ShayCichocki/graphseed/internal/journal"
	"github.com/ShayCichocki/graphseed/internal/provider"
	"github.com/ShayCichocki/graphseed/internal/version"
	"github.com/ShayCichocki/graphseed/internal/workflow"
)

// runtime bundles the engine with the resources that must be closed after
// use.
type runtime struct {
	engine  *workflow.Engine
	journal *journal.DB
}

func (r *runtime) Close() {
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			log.Printf("[journal] warning: close: %v", err)
		}
	}
}

// newRuntime wires the engine from cfg: MCP providers, the Anthropic client,
// the Neo4j cleanup service and, when enabled, the run journal.
func newRuntime(cfg *config.Config) (*runtime, error) {
	catalog, err := workflow.DefaultCatalog(cfg.Templates.Path)
	if err != nil {
		return nil, fmt.Errorf("load workflow catalog: %w", err)
	}

	key, _, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        key,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	registry := provider.NewRegistry(&provider.MCPLauncher{
		ClientName:    version.Name,
		ClientVersion: version.Get(),
		InheritEnv:    true,
	})

	rt := &runtime{}
	engineCfg := workflow.EngineConfig{
		Registry:  registry,
		Providers: cfg.ProviderSpecs(),
		Invoker:   api.NewStageInvoker(client, cfg.Anthropic.MaxIterations),
		Cleaner:   cleanup.New(cfg.CleanupConfig()),
		Catalog:   catalog,
	}

	if cfg.Journal.Enabled {
		db, err := journal.OpenDefault(cfg.Journal.Path)
		if err != nil {
			// The journal is diagnostics only; runs proceed without it.
			log.Printf("[journal] warning: disabled: %v", err)
		} else {
			rt.journal = db
			engineCfg.Recorder = db
		}
	}

	rt.engine, err = workflow.NewEngine(engineCfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}
