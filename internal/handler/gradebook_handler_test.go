package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/aneeshlingala/grade-melon-nsd/internal/middleware"
	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	"github.com/aneeshlingala/grade-melon-nsd/internal/service"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

type gradebookServiceMock struct {
	book       *models.Gradebook
	cacheHit   bool
	err        error
	projection *service.ProjectionResult

	lastField   service.PointsField
	lastValue   float64
	lastCourse  int
	lastRequest service.ProjectionRequest
}

func (m *gradebookServiceMock) Ingest(ctx context.Context, studentID string, snapshot *models.Snapshot) (*models.Gradebook, error) {
	return m.book, m.err
}

func (m *gradebookServiceMock) Get(ctx context.Context, studentID, id string) (*models.Gradebook, bool, error) {
	return m.book, m.cacheHit, m.err
}

func (m *gradebookServiceMock) List(ctx context.Context, studentID string, page, size int) ([]models.GradebookSummary, *models.Pagination, error) {
	return []models.GradebookSummary{{ID: "gb-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, m.err
}

func (m *gradebookServiceMock) AddAssignment(ctx context.Context, studentID, id string, courseIndex int) (*models.Gradebook, error) {
	m.lastCourse = courseIndex
	return m.book, m.err
}

func (m *gradebookServiceMock) DeleteAssignment(ctx context.Context, studentID, id string, courseIndex, assignmentIndex int) (*models.Gradebook, error) {
	return m.book, m.err
}

func (m *gradebookServiceMock) UpdatePoints(ctx context.Context, studentID, id string, courseIndex, assignmentIndex int, field service.PointsField, value float64) (*models.Gradebook, error) {
	m.lastField, m.lastValue = field, value
	return m.book, m.err
}

func (m *gradebookServiceMock) UpdateCategory(ctx context.Context, studentID, id string, courseIndex, assignmentIndex, categoryIndex int) (*models.Gradebook, error) {
	return m.book, m.err
}

func (m *gradebookServiceMock) Recalculate(ctx context.Context, studentID, id string, courseIndex int) (*models.Gradebook, error) {
	return m.book, m.err
}

func (m *gradebookServiceMock) SetWeighted(ctx context.Context, studentID, id string, courseIndex int, weighted bool) (*models.Gradebook, error) {
	return m.book, m.err
}

func (m *gradebookServiceMock) Project(ctx context.Context, studentID, id string, req service.ProjectionRequest) (*service.ProjectionResult, error) {
	m.lastRequest = req
	return m.projection, m.err
}

func withStudent(studentID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if studentID != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.StudentClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: studentID}})
		}
		c.Next()
	}
}

func newGradebookRouter(svc gradebookService, studentID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(internalmiddleware.WithResponseMeta())
	RegisterRoutes(router, "/api/v1", Handlers{Gradebooks: NewGradebookHandler(svc, nil)}, withStudent(studentID))
	return router
}

func performRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGradebookHandlerRequiresStudent(t *testing.T) {
	router := newGradebookRouter(&gradebookServiceMock{}, "")

	rec := performRequest(router, http.MethodGet, "/api/v1/gradebooks/gb-1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGradebookHandlerGetReportsCacheHit(t *testing.T) {
	mock := &gradebookServiceMock{book: &models.Gradebook{ID: "gb-1", StudentID: "stu-1", Grades: models.Grades{GPA: models.Undefined()}}, cacheHit: true}
	router := newGradebookRouter(mock, "stu-1")

	rec := performRequest(router, http.MethodGet, "/api/v1/gradebooks/gb-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			ID     string `json:"id"`
			Grades struct {
				GPA *float64 `json:"gpa"`
			} `json:"grades"`
		} `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gb-1", body.Data.ID)
	assert.Nil(t, body.Data.Grades.GPA)
	assert.Equal(t, true, body.Meta["cache_hit"])
}

func TestGradebookHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"forbidden", appErrors.Clone(appErrors.ErrForbidden, "not yours"), http.StatusForbidden},
		{"missing", appErrors.Clone(appErrors.ErrNotFound, "gone"), http.StatusNotFound},
		{"bad index", appErrors.Clone(appErrors.ErrInvalidArgument, "course index 4 out of range"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newGradebookRouter(&gradebookServiceMock{err: tc.err}, "stu-1")
			rec := performRequest(router, http.MethodPost, "/api/v1/gradebooks/gb-1/courses/0/recalculate", "")
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestGradebookHandlerRejectsBadIndices(t *testing.T) {
	router := newGradebookRouter(&gradebookServiceMock{book: &models.Gradebook{}}, "stu-1")

	rec := performRequest(router, http.MethodPost, "/api/v1/gradebooks/gb-1/courses/x/assignments", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = performRequest(router, http.MethodDelete, "/api/v1/gradebooks/gb-1/courses/0/assignments/-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradebookHandlerUpdatePoints(t *testing.T) {
	mock := &gradebookServiceMock{book: &models.Gradebook{ID: "gb-1"}}
	router := newGradebookRouter(mock, "stu-1")

	rec := performRequest(router, http.MethodPatch, "/api/v1/gradebooks/gb-1/courses/0/assignments/1/points", `{"field":"earned","value":9.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.PointsEarned, mock.lastField)
	assert.Equal(t, 9.5, mock.lastValue)

	rec = performRequest(router, http.MethodPatch, "/api/v1/gradebooks/gb-1/courses/0/assignments/1/points", `{"field":"bonus","value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = performRequest(router, http.MethodPatch, "/api/v1/gradebooks/gb-1/courses/0/assignments/1/points", `{"field":"earned"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradebookHandlerCategoryAndWeighted(t *testing.T) {
	router := newGradebookRouter(&gradebookServiceMock{book: &models.Gradebook{ID: "gb-1"}}, "stu-1")

	rec := performRequest(router, http.MethodPatch, "/api/v1/gradebooks/gb-1/courses/0/assignments/0/category", `{"category_index":0}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(router, http.MethodPatch, "/api/v1/gradebooks/gb-1/courses/0/assignments/0/category", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = performRequest(router, http.MethodPatch, "/api/v1/gradebooks/gb-1/courses/0/weighted", `{"weighted":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGradebookHandlerWhatIf(t *testing.T) {
	mock := &gradebookServiceMock{projection: &service.ProjectionResult{
		Allocations:  []service.Allocation{{Points: []int{1, 0}, Percentage: 90}},
		NodesVisited: 7,
	}}
	router := newGradebookRouter(mock, "stu-1")

	rec := performRequest(router, http.MethodPost, "/api/v1/gradebooks/gb-1/courses/2/what-if", `{"desired":90,"remaining":[1,3],"minimal":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, mock.lastRequest.CourseIndex)
	assert.Equal(t, []int{1, 3}, mock.lastRequest.Remaining)
	assert.True(t, mock.lastRequest.Minimal)
	assert.Contains(t, rec.Body.String(), `"nodes_visited":7`)

	rec = performRequest(router, http.MethodPost, "/api/v1/gradebooks/gb-1/courses/2/what-if", `{"remaining":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradebookHandlerList(t *testing.T) {
	router := newGradebookRouter(&gradebookServiceMock{}, "stu-1")

	rec := performRequest(router, http.MethodGet, "/api/v1/gradebooks?page=1&page_size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":1`)
}
