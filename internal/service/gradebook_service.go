package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

type gradebookStore interface {
	Create(ctx context.Context, book *models.Gradebook, snapshot []byte) error
	FindByID(ctx context.Context, id string) (*models.Gradebook, error)
	UpdateGrades(ctx context.Context, book *models.Gradebook) error
	ListByStudent(ctx context.Context, filter models.GradebookFilter) ([]models.GradebookSummary, int, error)
}

// GradebookConfig tunes GradebookService.
type GradebookConfig struct {
	CacheTTL      time.Duration
	WhatIfTimeout time.Duration
}

// ProjectionRequest describes a what-if search on one course.
type ProjectionRequest struct {
	CourseIndex int     `validate:"gte=0"`
	Desired     float64 `validate:"gte=0,lte=1000"`
	Remaining   []int   `validate:"required,dive,gte=0,lte=1000"`
	Minimal     bool
}

// GradebookService owns stored gradebooks: ingestion, edits, and what-if projections.
type GradebookService struct {
	store      gradebookStore
	cache      *CacheService
	normalizer *Normalizer
	recalc     *Recalculator
	projector  *Projector
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        GradebookConfig
	locks      *keyedMutex
}

// NewGradebookService constructs a GradebookService.
func NewGradebookService(store gradebookStore, cache *CacheService, normalizer *Normalizer, recalc *Recalculator, projector *Projector, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg GradebookConfig) *GradebookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recalc == nil {
		recalc = NewRecalculator(nil)
	}
	if normalizer == nil {
		normalizer = NewNormalizer(recalc, logger)
	}
	if projector == nil {
		projector = NewProjector(ProjectorConfig{}, logger)
	}
	if cfg.WhatIfTimeout <= 0 {
		cfg.WhatIfTimeout = 2 * time.Second
	}
	return &GradebookService{
		store:      store,
		cache:      cache,
		normalizer: normalizer,
		recalc:     recalc,
		projector:  projector,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		locks:      newKeyedMutex(),
	}
}

// Ingest normalizes a snapshot and stores it as a new gradebook for the student.
func (s *GradebookService) Ingest(ctx context.Context, studentID string, snapshot *models.Snapshot) (*models.Gradebook, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student identity missing")
	}
	grades, err := s.normalizer.Normalize(snapshot)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "snapshot is not serializable")
	}

	book := &models.Gradebook{StudentID: studentID, Grades: *grades}
	start := time.Now()
	err = s.store.Create(ctx, book, raw)
	s.metrics.ObserveDBQuery("gradebook_create", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store gradebook")
	}

	s.refreshCache(ctx, book)
	s.logger.Info("gradebook ingested",
		zap.String("gradebook_id", book.ID),
		zap.String("student_id", studentID),
		zap.Int("courses", len(book.Grades.Courses)))
	return book, nil
}

// Get returns a gradebook owned by the student and whether it came from cache.
func (s *GradebookService) Get(ctx context.Context, studentID, id string) (*models.Gradebook, bool, error) {
	var cached models.Gradebook
	if hit, _ := s.cache.Get(ctx, GradebookCacheKey(id), &cached); hit {
		if err := checkOwner(&cached, studentID); err != nil {
			return nil, false, err
		}
		return &cached, true, nil
	}

	book, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := checkOwner(book, studentID); err != nil {
		return nil, false, err
	}
	s.refreshCache(ctx, book)
	return book, false, nil
}

// List returns the student's gradebooks, newest first.
func (s *GradebookService) List(ctx context.Context, studentID string, page, size int) ([]models.GradebookSummary, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := time.Now()
	items, total, err := s.store.ListByStudent(ctx, models.GradebookFilter{StudentID: studentID, Page: page, PageSize: size})
	s.metrics.ObserveDBQuery("gradebook_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list gradebooks")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AddAssignment prepends a placeholder assignment to a course.
func (s *GradebookService) AddAssignment(ctx context.Context, studentID, id string, courseIndex int) (*models.Gradebook, error) {
	return s.edit(ctx, studentID, id, "add_assignment", func(g *models.Grades) error {
		course, err := courseAt(g, courseIndex)
		if err != nil {
			return err
		}
		s.recalc.AddAssignment(course)
		return nil
	})
}

// DeleteAssignment removes an assignment from a course.
func (s *GradebookService) DeleteAssignment(ctx context.Context, studentID, id string, courseIndex, assignmentIndex int) (*models.Gradebook, error) {
	return s.edit(ctx, studentID, id, "delete_assignment", func(g *models.Grades) error {
		course, err := courseAt(g, courseIndex)
		if err != nil {
			return err
		}
		return s.recalc.DeleteAssignment(course, assignmentIndex)
	})
}

// UpdatePoints edits earned or possible points on an assignment.
func (s *GradebookService) UpdatePoints(ctx context.Context, studentID, id string, courseIndex, assignmentIndex int, field PointsField, value float64) (*models.Gradebook, error) {
	return s.edit(ctx, studentID, id, "update_points", func(g *models.Grades) error {
		course, err := courseAt(g, courseIndex)
		if err != nil {
			return err
		}
		return s.recalc.UpdatePoints(course, assignmentIndex, field, value)
	})
}

// UpdateCategory moves an assignment to another category of the same course.
func (s *GradebookService) UpdateCategory(ctx context.Context, studentID, id string, courseIndex, assignmentIndex, categoryIndex int) (*models.Gradebook, error) {
	return s.edit(ctx, studentID, id, "update_category", func(g *models.Grades) error {
		course, err := courseAt(g, courseIndex)
		if err != nil {
			return err
		}
		return s.recalc.UpdateCategory(course, assignmentIndex, categoryIndex)
	})
}

// Recalculate recomputes every category and the grade of one course.
func (s *GradebookService) Recalculate(ctx context.Context, studentID, id string, courseIndex int) (*models.Gradebook, error) {
	return s.edit(ctx, studentID, id, "recalculate", func(g *models.Grades) error {
		course, err := courseAt(g, courseIndex)
		if err != nil {
			return err
		}
		s.recalc.RecalculateCourse(course)
		return nil
	})
}

// SetWeighted overrides whether a course counts as weighted for GPA.
func (s *GradebookService) SetWeighted(ctx context.Context, studentID, id string, courseIndex int, weighted bool) (*models.Gradebook, error) {
	return s.edit(ctx, studentID, id, "set_weighted", func(g *models.Grades) error {
		return s.recalc.UpdateGPA(g, courseIndex, weighted)
	})
}

// Project runs a what-if search against a copy of one course. Hitting the configured time budget
// returns the partial result marked truncated.
func (s *GradebookService) Project(ctx context.Context, studentID, id string, req ProjectionRequest) (*ProjectionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid projection payload")
	}
	book, _, err := s.Get(ctx, studentID, id)
	if err != nil {
		return nil, err
	}
	course, err := courseAt(&book.Grades, req.CourseIndex)
	if err != nil {
		return nil, err
	}
	snapshot := course.Clone()

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.WhatIfTimeout)
	defer cancel()

	result, err := s.projector.Project(searchCtx, &snapshot, req.Desired, req.Remaining)
	if err != nil {
		if result == nil || ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Warn("what-if search hit time budget", zap.String("gradebook_id", id), zap.Int("nodes", result.NodesVisited))
	}
	s.metrics.ObserveProjection(result.NodesVisited, len(result.Allocations), result.Truncated)

	if req.Minimal {
		result.Allocations = MinimalAllocations(result.Allocations)
	}
	return result, nil
}

func (s *GradebookService) edit(ctx context.Context, studentID, id, operation string, apply func(*models.Grades) error) (*models.Gradebook, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	book, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(book, studentID); err != nil {
		return nil, err
	}

	if err := apply(&book.Grades); err != nil {
		return nil, err
	}
	s.recalc.CalculateGPA(&book.Grades)

	start := time.Now()
	err = s.store.UpdateGrades(ctx, book)
	s.metrics.ObserveDBQuery("gradebook_update", time.Since(start))
	if err != nil {
		_ = s.cache.Invalidate(ctx, GradebookCacheKey(id))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save gradebook")
	}

	s.metrics.RecordEdit(operation)
	s.refreshCache(ctx, book)
	return book, nil
}

func (s *GradebookService) load(ctx context.Context, id string) (*models.Gradebook, error) {
	start := time.Now()
	book, err := s.store.FindByID(ctx, id)
	s.metrics.ObserveDBQuery("gradebook_get", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "gradebook not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load gradebook")
	}
	return book, nil
}

func (s *GradebookService) refreshCache(ctx context.Context, book *models.Gradebook) {
	if err := s.cache.Set(ctx, GradebookCacheKey(book.ID), book, s.cfg.CacheTTL); err != nil {
		s.logger.Debug("gradebook cache refresh skipped", zap.String("gradebook_id", book.ID), zap.Error(err))
	}
}

func checkOwner(book *models.Gradebook, studentID string) error {
	if book.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "gradebook belongs to another student")
	}
	return nil
}

func courseAt(g *models.Grades, index int) (*models.Course, error) {
	if err := checkIndex("course", index, len(g.Courses)); err != nil {
		return nil, err
	}
	return &g.Courses[index], nil
}
