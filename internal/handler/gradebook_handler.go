package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aneeshlingala/grade-melon-nsd/internal/dto"
	"github.com/aneeshlingala/grade-melon-nsd/internal/middleware"
	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	"github.com/aneeshlingala/grade-melon-nsd/internal/service"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
	"github.com/aneeshlingala/grade-melon-nsd/pkg/response"
)

type gradebookService interface {
	Ingest(ctx context.Context, studentID string, snapshot *models.Snapshot) (*models.Gradebook, error)
	Get(ctx context.Context, studentID, id string) (*models.Gradebook, bool, error)
	List(ctx context.Context, studentID string, page, size int) ([]models.GradebookSummary, *models.Pagination, error)
	AddAssignment(ctx context.Context, studentID, id string, courseIndex int) (*models.Gradebook, error)
	DeleteAssignment(ctx context.Context, studentID, id string, courseIndex, assignmentIndex int) (*models.Gradebook, error)
	UpdatePoints(ctx context.Context, studentID, id string, courseIndex, assignmentIndex int, field service.PointsField, value float64) (*models.Gradebook, error)
	UpdateCategory(ctx context.Context, studentID, id string, courseIndex, assignmentIndex, categoryIndex int) (*models.Gradebook, error)
	Recalculate(ctx context.Context, studentID, id string, courseIndex int) (*models.Gradebook, error)
	SetWeighted(ctx context.Context, studentID, id string, courseIndex int, weighted bool) (*models.Gradebook, error)
	Project(ctx context.Context, studentID, id string, req service.ProjectionRequest) (*service.ProjectionResult, error)
}

// GradebookHandler exposes gradebook ingestion, editing and what-if endpoints.
type GradebookHandler struct {
	service   gradebookService
	validator *validator.Validate
}

// NewGradebookHandler constructs a GradebookHandler.
func NewGradebookHandler(service gradebookService, validate *validator.Validate) *GradebookHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &GradebookHandler{service: service, validator: validate}
}

// Ingest godoc
// @Summary Ingest a gradebook snapshot
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param payload body dto.IngestGradebookRequest true "Raw snapshot"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /gradebooks [post]
func (h *GradebookHandler) Ingest(c *gin.Context) {
	studentID, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.IngestGradebookRequest
	if !h.bind(c, &req, "invalid gradebook payload") {
		return
	}
	book, err := h.service.Ingest(c.Request.Context(), studentID, req.Snapshot)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// List godoc
// @Summary List own gradebooks
// @Tags Gradebooks
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /gradebooks [get]
func (h *GradebookHandler) List(c *gin.Context) {
	studentID, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.GradebookListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), studentID, query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get gradebook
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /gradebooks/{id} [get]
func (h *GradebookHandler) Get(c *gin.Context) {
	studentID, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	book, hit, err := h.service.Get(c.Request.Context(), studentID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, book, nil, middleware.ExtractMeta(c))
}

// AddAssignment godoc
// @Summary Add a placeholder assignment
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/assignments [post]
func (h *GradebookHandler) AddAssignment(c *gin.Context) {
	studentID, course, ok := h.courseScope(c)
	if !ok {
		return
	}
	h.respond(c)(h.service.AddAssignment(c.Request.Context(), studentID, c.Param("id"), course))
}

// DeleteAssignment godoc
// @Summary Delete an assignment
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Param assignment path int true "Assignment index"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/assignments/{assignment} [delete]
func (h *GradebookHandler) DeleteAssignment(c *gin.Context) {
	studentID, course, assignment, ok := h.assignmentScope(c)
	if !ok {
		return
	}
	h.respond(c)(h.service.DeleteAssignment(c.Request.Context(), studentID, c.Param("id"), course, assignment))
}

// UpdatePoints godoc
// @Summary Edit earned or possible points
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Param assignment path int true "Assignment index"
// @Param payload body dto.UpdatePointsRequest true "Points edit"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/assignments/{assignment}/points [patch]
func (h *GradebookHandler) UpdatePoints(c *gin.Context) {
	studentID, course, assignment, ok := h.assignmentScope(c)
	if !ok {
		return
	}
	var req dto.UpdatePointsRequest
	if !h.bind(c, &req, "invalid points payload") {
		return
	}
	h.respond(c)(h.service.UpdatePoints(c.Request.Context(), studentID, c.Param("id"), course, assignment, service.PointsField(req.Field), *req.Value))
}

// UpdateCategory godoc
// @Summary Move an assignment to another category
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Param assignment path int true "Assignment index"
// @Param payload body dto.UpdateCategoryRequest true "Target category"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/assignments/{assignment}/category [patch]
func (h *GradebookHandler) UpdateCategory(c *gin.Context) {
	studentID, course, assignment, ok := h.assignmentScope(c)
	if !ok {
		return
	}
	var req dto.UpdateCategoryRequest
	if !h.bind(c, &req, "invalid category payload") {
		return
	}
	h.respond(c)(h.service.UpdateCategory(c.Request.Context(), studentID, c.Param("id"), course, assignment, *req.CategoryIndex))
}

// Recalculate godoc
// @Summary Recompute one course
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/recalculate [post]
func (h *GradebookHandler) Recalculate(c *gin.Context) {
	studentID, course, ok := h.courseScope(c)
	if !ok {
		return
	}
	h.respond(c)(h.service.Recalculate(c.Request.Context(), studentID, c.Param("id"), course))
}

// SetWeighted godoc
// @Summary Toggle weighted GPA for a course
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Param payload body dto.SetWeightedRequest true "Weighted flag"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/weighted [patch]
func (h *GradebookHandler) SetWeighted(c *gin.Context) {
	studentID, course, ok := h.courseScope(c)
	if !ok {
		return
	}
	var req dto.SetWeightedRequest
	if !h.bind(c, &req, "invalid weighted payload") {
		return
	}
	h.respond(c)(h.service.SetWeighted(c.Request.Context(), studentID, c.Param("id"), course, *req.Weighted))
}

// WhatIf godoc
// @Summary Project point allocations reaching a target grade
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Gradebook ID"
// @Param course path int true "Course index"
// @Param payload body dto.WhatIfRequest true "Target and remaining points per category"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/courses/{course}/what-if [post]
func (h *GradebookHandler) WhatIf(c *gin.Context) {
	studentID, course, ok := h.courseScope(c)
	if !ok {
		return
	}
	var req dto.WhatIfRequest
	if !h.bind(c, &req, "invalid what-if payload") {
		return
	}
	result, err := h.service.Project(c.Request.Context(), studentID, c.Param("id"), service.ProjectionRequest{
		CourseIndex: course,
		Desired:     *req.Desired,
		Remaining:   req.Remaining,
		Minimal:     req.Minimal,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "nodes_visited", result.NodesVisited)
	middleware.SetMeta(c, "truncated", result.Truncated)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

func (h *GradebookHandler) bind(c *gin.Context, req interface{}, message string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func (h *GradebookHandler) courseScope(c *gin.Context) (string, int, bool) {
	studentID, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return "", 0, false
	}
	course, err := indexParam(c, "course")
	if err != nil {
		response.Error(c, err)
		return "", 0, false
	}
	return studentID, course, true
}

func (h *GradebookHandler) assignmentScope(c *gin.Context) (string, int, int, bool) {
	studentID, course, ok := h.courseScope(c)
	if !ok {
		return "", 0, 0, false
	}
	assignment, err := indexParam(c, "assignment")
	if err != nil {
		response.Error(c, err)
		return "", 0, 0, false
	}
	return studentID, course, assignment, true
}

func (h *GradebookHandler) respond(c *gin.Context) func(*models.Gradebook, error) {
	return func(book *models.Gradebook, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, book, nil)
	}
}
