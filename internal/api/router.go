package api

import (
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-customer-intel/internal/api/docs"
	"go-customer-intel/internal/api/handler"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/router"
)

// NewRouter builds a router in the given gin mode with every route registered.
func NewRouter(mode string, h *handler.Handler) *router.Router {
	r := router.New(mode)
	RegisterRoutes(r, h)
	return r
}

// @title Customer Intelligence API
// @version 1.0
// @BasePath /api/v1
func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/swagger/*any", gin.WrapH(httpSwagger.WrapHandler))

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health)

	data := v1.Group("/data")
	data.GET("/datasets", h.ListDatasets)
	data.POST("/upload", h.UploadDataset)
	data.POST("/activate/:filename", h.ActivateDataset)
	data.GET("/validate", h.ValidateDataset)

	p := v1.Group("/pipeline")
	p.POST("/run", h.StartRun)
	p.POST("/cancel", h.CancelRun)
	p.GET("/status", h.GetStatus)
	p.GET("/results", h.GetResults)
	p.GET("/events", h.StreamEvents)

	for _, name := range []string{
		model.ResultRFM, model.ResultSegment, model.ResultCLV, model.ResultForecast,
		model.ResultKPI, model.ResultEDA, model.ResultPerformance,
	} {
		v1.GET("/"+name, h.Report(name))
	}
	v1.GET("/rfm/segments", h.RFMSegments)
	v1.GET("/segmentation/clusters", h.Clusters)
	v1.GET("/segmentation/elbow", h.Elbow)
	v1.GET("/clv/top-customers", h.TopCustomers)
	v1.GET("/clv/at-risk", h.AtRisk)
	v1.GET("/forecast/seasonal", h.Seasonal)
	v1.GET("/forecast/comparison", h.Comparison)

	v1.GET("/exports", h.ListExports)
	v1.GET("/exports/:run/:file", h.DownloadExport)
	v1.GET("/warehouse/tables", h.WarehouseTables)
}
