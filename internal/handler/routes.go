package handler

import "github.com/gin-gonic/gin"

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Gradebooks *GradebookHandler
	Exports    *ExportHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts ops endpoints at the root and the gradebook API under prefix. auth guards every
// API route except the signed export download.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth gin.HandlerFunc) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	if h.Exports != nil {
		api.GET("/exports/download", h.Exports.Download)
	}

	secured := api.Group("")
	secured.Use(auth)

	if g := h.Gradebooks; g != nil {
		books := secured.Group("/gradebooks")
		books.POST("", g.Ingest)
		books.GET("", g.List)
		books.GET("/:id", g.Get)

		course := books.Group("/:id/courses/:course")
		course.POST("/assignments", g.AddAssignment)
		course.DELETE("/assignments/:assignment", g.DeleteAssignment)
		course.PATCH("/assignments/:assignment/points", g.UpdatePoints)
		course.PATCH("/assignments/:assignment/category", g.UpdateCategory)
		course.POST("/recalculate", g.Recalculate)
		course.PATCH("/weighted", g.SetWeighted)
		course.POST("/what-if", g.WhatIf)
	}

	if e := h.Exports; e != nil {
		secured.POST("/gradebooks/:id/exports", e.Create)
		secured.GET("/exports/:jobId", e.Status)
	}
}
