package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/graphseed/internal/httpapi"
	"github.com/ShayCichocki/graphseed/internal/workflow"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workflows over HTTP",
	Long: `Start the HTTP API:

  GET   /                     Liveness message
  GET   /v1/schema            CreateSchema (usecase, entities, relationships)
  PATCH /v1/schema            EditSchema (diagram as base64, instructions)
  POST  /v1/data              GenerateData (diagram as base64)
  POST  /v1/data/usecase      GenerateDataForUsecase (usecase)
  POST  /v1/data/usecase/expand  ExpandDataForUsecase (usecase)
  GET   /v1/runs[/:id]        Journaled runs (when the journal is enabled)

When templates.path is configured, edits to the prompt file are picked up
without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Templates.Path != "" {
		err := workflow.WatchTemplates(ctx, cfg.Templates.Path, func(c *workflow.Catalog) {
			rt.engine.SetCatalog(c)
			log.Printf("[server] reloaded prompt templates from %s", cfg.Templates.Path)
		})
		if err != nil {
			log.Printf("[server] warning: template reload disabled: %v", err)
		}
	}

	opts := httpapi.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if rt.journal != nil {
		opts.Runs = rt.journal
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	fmt.Printf("graphseed listening on %s\n", addr)
	return httpapi.Serve(ctx, addr, httpapi.New(rt.engine, opts))
}
