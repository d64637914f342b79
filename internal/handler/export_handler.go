package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aneeshlingala/grade-melon-nsd/internal/dto"
	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	"github.com/aneeshlingala/grade-melon-nsd/internal/service"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/response"
)

type exportService interface {
	Create(ctx context.Context, studentID, gradebookID string, format models.ExportFormat) (*models.ExportJob, error)
	Status(studentID, jobID string) (*service.ExportStatusView, error)
	Download(token string) (*service.ExportDownload, error)
}

// ExportHandler exposes grade report export endpoints.
type ExportHandler struct {
	service   exportService
	validator *validator.Validate
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(service exportService, validate *validator.Validate) *ExportHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ExportHandler{service: service, validator: validate}
}

// Create godoc
// @Summary Queue a grade report export
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param payload body dto.CreateExportRequest true "Export format"
// @Success 202 {object} response.Envelope
// @Router /gradebooks/{id}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	studentID, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	job, err := h.service.Create(c.Request.Context(), studentID, c.Param("id"), req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.ExportJobResponse{ID: job.ID, Status: job.Status})
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param jobId path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{jobId} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	studentID, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.service.Status(studentID, c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := dto.ExportStatusResponse{
		ID:          view.Job.ID,
		GradebookID: view.Job.GradebookID,
		Format:      view.Job.Format,
		Status:      view.Job.Status,
		ExpiresAt:   view.ExpiresAt,
		Error:       view.Job.ErrorMessage,
	}
	if view.DownloadURL != "" {
		resp.DownloadURL = &view.DownloadURL
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	download, err := h.service.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", download.ContentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, download.File)
}
