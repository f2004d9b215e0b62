package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-customer-intel/internal/analytics/clv"
	"go-customer-intel/internal/analytics/forecast"
	"go-customer-intel/internal/analytics/rfm"
	"go-customer-intel/internal/analytics/segment"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

// Report serves one engine report, from the cache or computed on demand
// @Summary Engine report
// @Description One of rfm, segmentation, clv, forecast, kpis, eda or performance. Computed on the active dataset when no run has cached it.
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody
// @Failure 404 {object} ErrorBody
// @Failure 409 {object} ErrorBody
// @Failure 422 {object} ErrorBody
// @Router /rfm [get]
// @Router /segmentation [get]
// @Router /clv [get]
// @Router /forecast [get]
// @Router /kpis [get]
// @Router /eda [get]
// @Router /performance [get]
func (h *Handler) Report(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.manager.EngineReport(c.Request.Context(), name)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, report)
	}
}

func reportAs[T any](h *Handler, c *gin.Context, name string) (T, bool) {
	var zero T
	report, err := h.manager.EngineReport(c.Request.Context(), name)
	if err != nil {
		fail(c, err)
		return zero, false
	}
	r, ok := report.(T)
	if !ok {
		fail(c, errors.Newf("unexpected %s report type %T", name, report))
		return zero, false
	}
	return r, true
}

// RFMSegments returns the per-segment RFM summary
// @Summary RFM segment summary
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody{data=[]rfm.SegmentSummary}
// @Router /rfm/segments [get]
func (h *Handler) RFMSegments(c *gin.Context) {
	if r, ok := reportAs[rfm.Report](h, c, model.ResultRFM); ok {
		respond(c, http.StatusOK, r.SegmentSummary)
	}
}

// Clusters returns the cluster profiles
// @Summary Cluster profiles
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody{data=[]segment.Profile}
// @Router /segmentation/clusters [get]
func (h *Handler) Clusters(c *gin.Context) {
	if r, ok := reportAs[segment.Report](h, c, model.ResultSegment); ok {
		respond(c, http.StatusOK, r.Profiles)
	}
}

// Elbow returns inertia and silhouette per candidate k
// @Summary Elbow analysis
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody{data=segment.ElbowAnalysis}
// @Router /segmentation/elbow [get]
func (h *Handler) Elbow(c *gin.Context) {
	if r, ok := reportAs[segment.Report](h, c, model.ResultSegment); ok {
		respond(c, http.StatusOK, r.Elbow)
	}
}

// TopCustomers returns the highest-CLV customers
// @Summary Top customers by CLV
// @Tags analytics
// @Produce json
// @Param limit query int false "Number of customers" default(20)
// @Success 200 {object} DataBody{data=[]clv.CustomerCLV}
// @Failure 400 {object} ErrorBody
// @Router /clv/top-customers [get]
func (h *Handler) TopCustomers(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		fail(c, err)
		return
	}
	if r, ok := reportAs[clv.Report](h, c, model.ResultCLV); ok {
		top := r.TopCustomers
		if len(top) > limit {
			top = top[:limit]
		}
		respond(c, http.StatusOK, top)
	}
}

// AtRisk returns high-value customers at risk of churn
// @Summary At-risk customers
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody{data=[]clv.CustomerCLV}
// @Router /clv/at-risk [get]
func (h *Handler) AtRisk(c *gin.Context) {
	if r, ok := reportAs[clv.Report](h, c, model.ResultCLV); ok {
		respond(c, http.StatusOK, r.AtRiskCustomers)
	}
}

// Seasonal returns the monthly seasonal indices
// @Summary Seasonal analysis
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody{data=forecast.SeasonalAnalysis}
// @Router /forecast/seasonal [get]
func (h *Handler) Seasonal(c *gin.Context) {
	if r, ok := reportAs[forecast.Report](h, c, model.ResultForecast); ok {
		respond(c, http.StatusOK, r.Seasonal)
	}
}

// Comparison compares the forecasting methods
// @Summary Forecast method comparison
// @Tags analytics
// @Produce json
// @Success 200 {object} DataBody{data=forecast.Comparison}
// @Router /forecast/comparison [get]
func (h *Handler) Comparison(c *gin.Context) {
	if r, ok := reportAs[forecast.Report](h, c, model.ResultForecast); ok {
		respond(c, http.StatusOK, r.Comparison)
	}
}
