package dto

import (
	"time"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
)

// IngestGradebookRequest carries a raw student-information-system snapshot for POST /gradebooks.
type IngestGradebookRequest struct {
	Snapshot *models.Snapshot `json:"snapshot" validate:"required"`
}

// UpdatePointsRequest edits one side of an assignment's points.
type UpdatePointsRequest struct {
	Field string   `json:"field" validate:"required,oneof=earned possible"`
	Value *float64 `json:"value" validate:"required"`
}

// UpdateCategoryRequest moves an assignment to another category.
type UpdateCategoryRequest struct {
	CategoryIndex *int `json:"category_index" validate:"required,gte=0"`
}

// SetWeightedRequest toggles the weighted flag of a course.
type SetWeightedRequest struct {
	Weighted *bool `json:"weighted" validate:"required"`
}

// WhatIfRequest asks which point allocations reach a desired course percentage.
type WhatIfRequest struct {
	Desired   *float64 `json:"desired" validate:"required,gte=0,lte=1000"`
	Remaining []int    `json:"remaining" validate:"required,dive,gte=0,lte=1000"`
	Minimal   bool     `json:"minimal"`
}

// CreateExportRequest selects the export format.
type CreateExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// GradebookListQuery mirrors supported listing parameters.
type GradebookListQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes export progress and the download link once finished.
type ExportStatusResponse struct {
	ID          string              `json:"id"`
	GradebookID string              `json:"gradebook_id"`
	Format      models.ExportFormat `json:"format"`
	Status      models.ExportStatus `json:"status"`
	DownloadURL *string             `json:"download_url,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
