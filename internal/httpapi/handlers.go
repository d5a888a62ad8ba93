package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShayCichocki/graphseed/internal/cleanup"
	"github.com/ShayCichocki/graphseed/internal/pipeline"
	"github.com/ShayCichocki/graphseed/internal/provider"
	"github.com/ShayCichocki/graphseed/internal/workflow"
)

// Handlers serves the workflow endpoints.
type Handlers struct {
	runner  Runner
	timeout time.Duration
}

// CreateSchema proposes a diagram for a usecase. Query: usecase (required),
// entities and relationships (repeatable).
func (h *Handlers) CreateSchema(c *gin.Context) {
	usecase, ok := requireQuery(c, "usecase")
	if !ok {
		return
	}
	out, ok := h.run(c, workflow.Request{
		Workflow: workflow.CreateSchema,
		Inputs: pipeline.Inputs{
			Usecase:       usecase,
			Entities:      listQuery(c, "entities"),
			Relationships: listQuery(c, "relationships"),
		},
	})
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out.Result.Output))
}

// EditSchema applies instructions to a base64-encoded diagram.
func (h *Handlers) EditSchema(c *gin.Context) {
	diagram, ok := decodeDiagram(c)
	if !ok {
		return
	}
	out, ok := h.run(c, workflow.Request{
		Workflow: workflow.EditSchema,
		Inputs: pipeline.Inputs{
			Diagram:      diagram,
			Instructions: c.Query("instructions"),
		},
	})
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out.Result.Output))
}

// GenerateData uploads a dataset for a base64-encoded diagram.
func (h *Handlers) GenerateData(c *gin.Context) {
	diagram, ok := decodeDiagram(c)
	if !ok {
		return
	}
	h.upload(c, workflow.Request{
		Workflow: workflow.GenerateData,
		Inputs:   pipeline.Inputs{Diagram: diagram},
	})
}

// GenerateDataForUsecase models a usecase and uploads a dataset for it.
func (h *Handlers) GenerateDataForUsecase(c *gin.Context) {
	h.usecase(c, workflow.GenerateDataForUsecase)
}

// ExpandDataForUsecase extends the existing graph for a usecase.
func (h *Handlers) ExpandDataForUsecase(c *gin.Context) {
	h.usecase(c, workflow.ExpandDataForUsecase)
}

func (h *Handlers) usecase(c *gin.Context, name workflow.Name) {
	usecase, ok := requireQuery(c, "usecase")
	if !ok {
		return
	}
	h.upload(c, workflow.Request{
		Workflow: name,
		Inputs:   pipeline.Inputs{Usecase: usecase},
	})
}

func (h *Handlers) upload(c *gin.Context, req workflow.Request) {
	out, ok := h.run(c, req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, out.UploadStatus())
}

// run executes req and writes the error response on failure.
func (h *Handlers) run(c *gin.Context, req workflow.Request) (*workflow.Outcome, bool) {
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	out, err := h.runner.Run(ctx, req)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return out, true
}

// writeError maps workflow errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	c.Error(err)

	var ce *workflow.CleanupError
	var se *pipeline.StageError
	switch {
	case errors.As(err, &ce):
		body := gin.H{"error": err.Error()}
		if ce.Result != nil {
			body["output"] = ce.Result.Output
		}
		c.JSON(http.StatusInternalServerError, body)
	case errors.Is(err, context.DeadlineExceeded):
		body := gin.H{"error": err.Error()}
		if errors.As(err, &se) {
			body["stage"] = se.Stage
		}
		c.JSON(http.StatusGatewayTimeout, body)
	case errors.As(err, &se):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "stage": se.Stage})
	case errors.Is(err, provider.ErrCapabilityUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cleanup.ErrCleanup):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func requireQuery(c *gin.Context, key string) (string, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing required query parameter %q", key)})
		return "", false
	}
	return v, true
}

// listQuery accepts both repeated parameters and comma-separated values.
func listQuery(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func decodeDiagram(c *gin.Context) (string, bool) {
	raw, ok := requireQuery(c, "diagram_base64")
	if !ok {
		return "", false
	}
	diagram, err := DecodeDiagram(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return diagram, true
}

// DecodeDiagram decodes a base64 diagram in standard or URL-safe encoding,
// padded or not.
func DecodeDiagram(s string) (string, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), nil
		}
	}
	return "", errors.New("diagram_base64 is not valid base64")
}
