package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

const heartbeatInterval = 15 * time.Second

// StartRun launches a full pipeline run in the background
// @Summary Start pipeline run
// @Description Start all twelve stages on the active dataset. Only one run may be active at a time.
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body model.RunRequest false "Parameter overrides"
// @Success 202 {object} DataBody
// @Failure 400 {object} ErrorBody
// @Failure 409 {object} ErrorBody "A run is already in progress"
// @Router /pipeline/run [post]
func (h *Handler) StartRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, errors.InvalidParameter("invalid run request: %v", err))
		return
	}

	runID, err := h.manager.Start(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusAccepted, gin.H{
		"run_id":     runID,
		"status":     model.RunStarting,
		"status_url": "/api/v1/pipeline/status",
		"events_url": "/api/v1/pipeline/events",
	})
}

// CancelRun requests cancellation of the active run
// @Summary Cancel pipeline run
// @Description The current stage finishes; every later stage is marked skipped
// @Tags pipeline
// @Produce json
// @Success 202 {object} DataBody
// @Failure 409 {object} ErrorBody "No run is active"
// @Router /pipeline/cancel [post]
func (h *Handler) CancelRun(c *gin.Context) {
	if err := h.manager.Cancel(); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusAccepted, gin.H{"run_id": h.manager.Status().RunID, "cancelling": true})
}

// GetStatus returns the live or last run status
// @Summary Pipeline status
// @Tags pipeline
// @Produce json
// @Success 200 {object} DataBody{data=model.PipelineRun}
// @Router /pipeline/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	respond(c, http.StatusOK, h.manager.Status())
}

// GetResults returns the results of the live or last run
// @Summary Pipeline results
// @Description Results of the running pipeline, or the cached results of the last one
// @Tags pipeline
// @Produce json
// @Success 200 {object} DataBody
// @Failure 404 {object} ErrorBody "No results yet"
// @Router /pipeline/results [get]
func (h *Handler) GetResults(c *gin.Context) {
	result, cached, err := h.manager.Results()
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{
		"status":  result.Status,
		"results": result.Results,
		"cached":  cached,
	}
	if ts := h.manager.LastUpdated(); !ts.IsZero() {
		body["last_updated"] = ts.UTC()
	}
	respond(c, http.StatusOK, body)
}

// StreamEvents streams progress events as server-sent events
// @Summary Progress stream
// @Description Sends the current status, then one "progress" event per stage transition. The stream ends after the completion marker.
// @Tags pipeline
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /pipeline/events [get]
func (h *Handler) StreamEvents(c *gin.Context) {
	events := h.manager.Subscribe()
	defer h.manager.Unsubscribe(events)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("status", h.manager.Status())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	done := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return ev.Stage != model.StageCompleteMarker
		case t := <-heartbeat.C:
			c.SSEvent("ping", t.Unix())
			return true
		case <-done:
			return false
		}
	})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.InvalidParameter("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}
