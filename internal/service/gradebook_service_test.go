package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	"github.com/aneeshlingala/grade-melon-nsd/internal/repository"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

type gradebookStoreFake struct {
	mu      sync.Mutex
	books   map[string]*models.Gradebook
	updates int
	updErr  error
	seq     int
}

func newGradebookStoreFake() *gradebookStoreFake {
	return &gradebookStoreFake{books: map[string]*models.Gradebook{}}
}

func (f *gradebookStoreFake) Create(ctx context.Context, book *models.Gradebook, snapshot []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if book.ID == "" {
		f.seq++
		book.ID = fmt.Sprintf("gb-%d", f.seq)
	}
	f.books[book.ID] = book.Clone()
	return nil
}

func (f *gradebookStoreFake) FindByID(ctx context.Context, id string) (*models.Gradebook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	book, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("find gradebook %s: %w", id, sql.ErrNoRows)
	}
	return book.Clone(), nil
}

func (f *gradebookStoreFake) UpdateGrades(ctx context.Context, book *models.Gradebook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	f.updates++
	f.books[book.ID] = book.Clone()
	return nil
}

func (f *gradebookStoreFake) ListByStudent(ctx context.Context, filter models.GradebookFilter) ([]models.GradebookSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.GradebookSummary
	for _, book := range f.books {
		if book.StudentID == filter.StudentID {
			items = append(items, models.GradebookSummary{ID: book.ID, StudentID: book.StudentID})
		}
	}
	return items, len(items), nil
}

func seededGradebookService(t *testing.T, cache *CacheService) (*GradebookService, *gradebookStoreFake) {
	t.Helper()
	store := newGradebookStoreFake()
	recalc := NewRecalculator(nil)
	course := sampleCourse()
	recalc.RecalculateCourse(course)
	grades := models.Grades{Courses: []models.Course{*course}}
	recalc.CalculateGPA(&grades)
	store.books["gb-1"] = &models.Gradebook{ID: "gb-1", StudentID: "stu-1", Grades: grades}

	svc := NewGradebookService(store, cache, nil, recalc, nil, NewMetricsService(), nil, nil, GradebookConfig{WhatIfTimeout: time.Second})
	return svc, store
}

func TestGradebookServiceIngest(t *testing.T) {
	store := newGradebookStoreFake()
	svc := NewGradebookService(store, nil, nil, nil, nil, nil, nil, nil, GradebookConfig{})

	snapshot := &models.Snapshot{Courses: []models.SnapshotCourse{chemistrySnapshot()}}
	book, err := svc.Ingest(context.Background(), "stu-1", snapshot)
	require.NoError(t, err)
	assert.Equal(t, "gb-1", book.ID)
	assert.Equal(t, "stu-1", book.StudentID)
	require.Len(t, book.Grades.Courses, 1)
	assert.Len(t, book.Grades.Courses[0].Categories, 2)
	assert.Contains(t, store.books, "gb-1")
}

func TestGradebookServiceIngestRequiresStudent(t *testing.T) {
	svc := NewGradebookService(newGradebookStoreFake(), nil, nil, nil, nil, nil, nil, nil, GradebookConfig{})

	_, err := svc.Ingest(context.Background(), "", &models.Snapshot{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Ingest(context.Background(), "stu-1", nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestGradebookServiceGetOwnership(t *testing.T) {
	svc, _ := seededGradebookService(t, nil)
	ctx := context.Background()

	book, hit, err := svc.Get(ctx, "stu-1", "gb-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, models.Score(84), book.Grades.Courses[0].Grade.Raw)

	_, _, err = svc.Get(ctx, "stu-2", "gb-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, _, err = svc.Get(ctx, "stu-1", "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGradebookServiceGetUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCacheService(repository.NewCacheRepository(client), nil, time.Minute, nil, true)

	svc, _ := seededGradebookService(t, cache)
	ctx := context.Background()

	_, hit, err := svc.Get(ctx, "stu-1", "gb-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, mr.Exists(GradebookCacheKey("gb-1")))

	book, hit, err := svc.Get(ctx, "stu-1", "gb-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "gb-1", book.ID)

	_, _, err = svc.Get(ctx, "stu-2", "gb-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestGradebookServiceUpdatePointsPersists(t *testing.T) {
	svc, store := seededGradebookService(t, nil)
	ctx := context.Background()

	book, err := svc.UpdatePoints(ctx, "stu-1", "gb-1", 0, 0, PointsEarned, 10)
	require.NoError(t, err)
	assert.Equal(t, models.Score(88), book.Grades.Courses[0].Grade.Raw)
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, models.Score(88), store.books["gb-1"].Grades.Courses[0].Grade.Raw)
	assert.True(t, book.Grades.GPA.Defined())
}

func TestGradebookServiceEditRejectsBadIndex(t *testing.T) {
	svc, store := seededGradebookService(t, nil)
	ctx := context.Background()

	_, err := svc.AddAssignment(ctx, "stu-1", "gb-1", 5)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))

	_, err = svc.DeleteAssignment(ctx, "stu-1", "gb-1", 0, 9)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))
	assert.Equal(t, 0, store.updates)
}

func TestGradebookServiceEditForeignGradebook(t *testing.T) {
	svc, store := seededGradebookService(t, nil)

	_, err := svc.Recalculate(context.Background(), "stu-2", "gb-1", 0)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 0, store.updates)
}

func TestGradebookServiceEditStoreFailure(t *testing.T) {
	svc, store := seededGradebookService(t, nil)
	store.updErr = errors.New("disk full")

	_, err := svc.SetWeighted(context.Background(), "stu-1", "gb-1", 0, true)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.False(t, store.books["gb-1"].Grades.Courses[0].Weighted)
}

func TestGradebookServiceConcurrentEditsSerialize(t *testing.T) {
	svc, store := seededGradebookService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddAssignment(ctx, "stu-1", "gb-1", 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.books["gb-1"].Grades.Courses[0].Assignments, 3+8)
	assert.Equal(t, 0, svc.locks.size())
}

func TestGradebookServiceProject(t *testing.T) {
	svc, store := seededGradebookService(t, nil)
	ctx := context.Background()

	result, err := svc.Project(ctx, "stu-1", "gb-1", ProjectionRequest{CourseIndex: 0, Desired: 80, Remaining: []int{2, 10}})
	require.NoError(t, err)
	require.NotEmpty(t, result.Allocations)
	for _, allocation := range result.Allocations {
		assert.GreaterOrEqual(t, allocation.Percentage, 80.0)
	}

	minimal, err := svc.Project(ctx, "stu-1", "gb-1", ProjectionRequest{CourseIndex: 0, Desired: 80, Remaining: []int{2, 10}, Minimal: true})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(minimal.Allocations), len(result.Allocations))
	assert.NotEmpty(t, minimal.Allocations)

	assert.Equal(t, models.Score(84), store.books["gb-1"].Grades.Courses[0].Grade.Raw)
	assert.Equal(t, 0, store.updates)
}

func TestGradebookServiceProjectValidation(t *testing.T) {
	svc, _ := seededGradebookService(t, nil)
	ctx := context.Background()

	_, err := svc.Project(ctx, "stu-1", "gb-1", ProjectionRequest{CourseIndex: 0, Desired: 80, Remaining: []int{-1, 2}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Project(ctx, "stu-1", "gb-1", ProjectionRequest{CourseIndex: 0, Desired: 80, Remaining: []int{1}})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))

	_, err = svc.Project(ctx, "stu-1", "gb-1", ProjectionRequest{CourseIndex: 3, Desired: 80, Remaining: []int{1, 1}})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))
}

func TestGradebookServiceList(t *testing.T) {
	svc, _ := seededGradebookService(t, nil)

	items, pagination, err := svc.List(context.Background(), "stu-1", 0, 500)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
