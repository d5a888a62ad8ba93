// Package httpapi exposes the workflow catalog over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ShayCichocki/graphseed/internal/workflow"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

// StatusMessage is returned by GET /.
const StatusMessage = "graphseed synthetic graph data generator running"

// Runner executes workflows. *workflow.Engine implements it.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Outcome, error)
}

// RunStore lists journaled runs. *journal.DB implements it.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
}

// Options configures the router.
type Options struct {
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// RequestTimeout bounds each workflow run. Zero means no limit.
	RequestTimeout time.Duration
	// Runs enables the /v1/runs endpoints when set.
	Runs RunStore
}

// New returns the HTTP handler for runner.
func New(runner Runner, opts Options) *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery(), requestTiming())
	attachRoutes(g, runner, opts)
	return g
}

func attachRoutes(r *gin.Engine, runner Runner, opts Options) {
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	h := &Handlers{runner: runner, timeout: opts.RequestTimeout}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": StatusMessage})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/schema", h.CreateSchema)
		v1.PATCH("/schema", h.EditSchema)
		v1.POST("/data", h.GenerateData)
		v1.POST("/data/usecase", h.GenerateDataForUsecase)
		v1.POST("/data/usecase/expand", h.ExpandDataForUsecase)
	}

	if opts.Runs != nil {
		runs := Runs{store: opts.Runs}
		v1.GET("/runs", runs.List)
		v1.GET("/runs/:id", runs.Get)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
