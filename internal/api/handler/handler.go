// Package handler implements the HTTP endpoints of the customer intelligence
// API on top of the pipeline manager.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/pipeline"
	"go-customer-intel/internal/store"
	"go-customer-intel/pkg/utils"
)

// TableCatalog lists the tables held by the analytics warehouse.
type TableCatalog interface {
	Tables(ctx context.Context) ([]store.TableInfo, error)
}

// Handler serves every /api/v1 endpoint.
type Handler struct {
	manager *pipeline.Manager
	outputs *utils.OutputManager
	catalog TableCatalog
	version string
	started time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithCatalog enables the warehouse endpoint.
func WithCatalog(c TableCatalog) Option {
	return func(hd *Handler) { hd.catalog = c }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(hd *Handler) { hd.version = v }
}

func New(manager *pipeline.Manager, outputs *utils.OutputManager, opts ...Option) *Handler {
	h := &Handler{
		manager: manager,
		outputs: outputs,
		version: "dev",
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataBody is the success envelope.
type DataBody struct {
	Data interface{} `json:"data"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, DataBody{Data: data})
}

func fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Named("api").Errorw("Request failed",
			"path", c.FullPath(),
			"error", err,
			"stack", errors.Stack(err),
		)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Code: errors.Kind(err), Message: err.Error()}})
}

// Health reports service liveness
// @Summary Health check
// @Description Report service status, uptime, the active dataset and the pipeline state
// @Tags service
// @Produce json
// @Success 200 {object} DataBody
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"status":          "healthy",
		"version":         h.version,
		"timestamp":       time.Now().UTC(),
		"uptime_seconds":  utils.Round(time.Since(h.started).Seconds(), 0),
		"active_dataset":  h.manager.ActiveDataset(),
		"pipeline_status": h.manager.Status().Status,
	})
}
