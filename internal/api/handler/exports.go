package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-customer-intel/internal/errors"
	"go-customer-intel/pkg/utils"
)

// ListExports lists the files produced by every run
// @Summary List exports
// @Tags exports
// @Produce json
// @Success 200 {object} DataBody{data=[]utils.OutputFile}
// @Router /exports [get]
func (h *Handler) ListExports(c *gin.Context) {
	files, err := h.outputs.ListOutputs()
	if err != nil {
		fail(c, err)
		return
	}
	if files == nil {
		files = []utils.OutputFile{}
	}
	respond(c, http.StatusOK, files)
}

// DownloadExport sends one output file as an attachment
// @Summary Download export
// @Tags exports
// @Produce octet-stream
// @Param run path string true "Run ID"
// @Param file path string true "File name"
// @Success 200 {file} file
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Router /exports/{run}/{file} [get]
func (h *Handler) DownloadExport(c *gin.Context) {
	path, err := h.outputs.ResolveFile(c.Param("run"), c.Param("file"))
	if err != nil {
		fail(c, err)
		return
	}
	c.FileAttachment(path, c.Param("file"))
}

// WarehouseTables lists the tables written to the analytics warehouse
// @Summary Warehouse tables
// @Description Derived tables of the latest export, with their columns and row counts
// @Tags exports
// @Produce json
// @Success 200 {object} DataBody{data=[]store.TableInfo}
// @Failure 404 {object} ErrorBody "Warehouse disabled"
// @Router /warehouse/tables [get]
func (h *Handler) WarehouseTables(c *gin.Context) {
	if h.catalog == nil {
		fail(c, errors.NotFound("analytics warehouse is disabled"))
		return
	}
	tables, err := h.catalog.Tables(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, tables)
}
