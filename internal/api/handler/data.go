package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"go-customer-intel/internal/errors"
)

// ListDatasets returns the dataset files available for activation
// @Summary List datasets
// @Description List supported dataset files in the data directory, newest first
// @Tags data
// @Produce json
// @Success 200 {object} DataBody{data=[]model.DatasetInfo}
// @Failure 500 {object} ErrorBody
// @Router /data/datasets [get]
func (h *Handler) ListDatasets(c *gin.Context) {
	list, err := h.manager.Datasets()
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

// UploadDataset stores and activates an uploaded dataset
// @Summary Upload dataset
// @Description Upload a CSV, Excel or JSON file; it is validated and becomes the active dataset
// @Tags data
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Dataset file"
// @Success 201 {object} DataBody{data=model.DatasetValidation}
// @Failure 400 {object} ErrorBody
// @Failure 409 {object} ErrorBody
// @Failure 422 {object} ErrorBody
// @Router /data/upload [post]
func (h *Handler) UploadDataset(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, errors.InvalidParameter("multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, errors.Wrap(err, "failed to open upload"))
		return
	}
	defer f.Close()

	v, err := h.manager.Upload(c.Request.Context(), filepath.Base(fh.Filename), f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, v)
}

// ActivateDataset switches the active dataset
// @Summary Activate dataset
// @Description Validate a file in the data directory and make it the active dataset; cached results are discarded
// @Tags data
// @Produce json
// @Param filename path string true "Dataset file name"
// @Success 200 {object} DataBody{data=model.DatasetValidation}
// @Failure 400 {object} ErrorBody
// @Failure 404 {object} ErrorBody
// @Failure 409 {object} ErrorBody
// @Failure 422 {object} ErrorBody
// @Router /data/activate/{filename} [post]
func (h *Handler) ActivateDataset(c *gin.Context) {
	v, err := h.manager.Activate(c.Request.Context(), c.Param("filename"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, v)
}

// ValidateDataset re-checks the active dataset
// @Summary Validate active dataset
// @Tags data
// @Produce json
// @Success 200 {object} DataBody{data=model.DatasetValidation}
// @Failure 409 {object} ErrorBody
// @Failure 422 {object} ErrorBody
// @Router /data/validate [get]
func (h *Handler) ValidateDataset(c *gin.Context) {
	v, err := h.manager.ValidateActive(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, v)
}
