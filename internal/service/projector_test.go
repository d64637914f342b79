package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

func projectionCourse(weights, earned, possible []float64) *models.Course {
	course := &models.Course{}
	for i := range weights {
		course.Categories = append(course.Categories, models.Category{
			Weight: weights[i],
			Points: models.Points{Earned: models.Score(earned[i]), Possible: models.Score(possible[i])},
		})
	}
	return course
}

// exhaustiveSearch is a direct recursive enumeration without bounds or budgets.
func exhaustiveSearch(weights, earned, possible []float64, sols, remaining []int, start int, desired float64, out *[]Allocation) {
	grade := 0.0
	for i := range weights {
		if weights[i] == 0 {
			continue
		}
		grade += (earned[i] + float64(sols[i])) / (possible[i] + float64(sols[i]) + float64(remaining[i])) * weights[i]
	}
	if grade*100 >= desired {
		*out = append(*out, Allocation{Points: sols, Percentage: grade * 100})
		return
	}
	for i := start; i < len(weights); i++ {
		if remaining[i] < 1 {
			continue
		}
		nextSols := append([]int(nil), sols...)
		nextSols[i]++
		nextRemaining := append([]int(nil), remaining...)
		nextRemaining[i]--
		exhaustiveSearch(weights, earned, possible, nextSols, nextRemaining, i, desired, out)
	}
}

func allocationPoints(allocations []Allocation) [][]int {
	out := make([][]int, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, a.Points)
	}
	return out
}

func TestProjectSingleCategoryBoundary(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{1}, []float64{80}, []float64{100})

	result, err := projector.Project(context.Background(), course, 81, []int{1})
	require.NoError(t, err)
	assert.Empty(t, result.Allocations)
	assert.False(t, result.Truncated)

	result, err = projector.Project(context.Background(), course, 80, []int{1})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	assert.Equal(t, []int{1}, result.Allocations[0].Points)
	assert.InDelta(t, 8100.0/101, result.Allocations[0].Percentage, 1e-9)

	result, err = projector.Project(context.Background(), course, 101, []int{1})
	require.NoError(t, err)
	assert.Empty(t, result.Allocations)
}

func TestProjectAlreadyMeetingTarget(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{1}, []float64{95}, []float64{100})

	result, err := projector.Project(context.Background(), course, 90, []int{5})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}}, allocationPoints(result.Allocations))
	assert.Equal(t, 1, result.NodesVisited)
}

func TestProjectDiscoveryOrder(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{0.5, 0.5}, []float64{0, 0}, []float64{0, 0})

	result, err := projector.Project(context.Background(), course, 50, []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{2, 0}, {1, 1}, {0, 2}}, allocationPoints(result.Allocations))
}

func TestProjectMatchesExhaustiveSearch(t *testing.T) {
	cases := []struct {
		name      string
		weights   []float64
		earned    []float64
		possible  []float64
		remaining []int
		desired   float64
	}{
		{"two categories", []float64{0.4, 0.6}, []float64{9.5, 40}, []float64{12, 50}, []int{3, 4}, 80},
		{"three categories", []float64{0.2, 0.3, 0.5}, []float64{18, 27, 40}, []float64{20, 30, 50}, []int{2, 3, 2}, 84},
		{"zero weight middle", []float64{0.5, 0, 0.5}, []float64{5, 0, 5}, []float64{10, 0, 10}, []int{2, 2, 2}, 55},
		{"unreachable", []float64{0.5, 0.5}, []float64{10, 10}, []float64{20, 20}, []int{3, 3}, 99},
		{"empty budget", []float64{1}, []float64{7}, []float64{10}, []int{0}, 70},
	}

	projector := NewProjector(ProjectorConfig{}, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var want []Allocation
			exhaustiveSearch(tc.weights, tc.earned, tc.possible, make([]int, len(tc.weights)), append([]int(nil), tc.remaining...), 0, tc.desired, &want)

			course := projectionCourse(tc.weights, tc.earned, tc.possible)
			got, err := projector.Project(context.Background(), course, tc.desired, tc.remaining)
			require.NoError(t, err)

			assert.Equal(t, allocationPoints(want), allocationPoints(got.Allocations))
			for i := range want {
				assert.InDelta(t, want[i].Percentage, got.Allocations[i].Percentage, 1e-9)
			}
		})
	}
}

func TestProjectDoesNotMutateInputs(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{0.4, 0.6}, []float64{9.5, 40}, []float64{12, 50})
	before := course.Clone()
	remaining := []int{3, 4}

	_, err := projector.Project(context.Background(), course, 85, remaining)
	require.NoError(t, err)

	assert.Equal(t, before, *course)
	assert.Equal(t, []int{3, 4}, remaining)
}

func TestProjectUndefinedCategory(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{0.5, 0.5}, []float64{8, 0}, []float64{10, 0})

	result, err := projector.Project(context.Background(), course, 50, []int{1, 0})
	require.NoError(t, err)
	assert.True(t, result.Undefined)
	assert.Empty(t, result.Allocations)

	course.Categories[1].Weight = 0
	result, err = projector.Project(context.Background(), course, 30, []int{1, 0})
	require.NoError(t, err)
	assert.False(t, result.Undefined)
	assert.Equal(t, [][]int{{0, 0}}, allocationPoints(result.Allocations))
}

func TestProjectNodeBudget(t *testing.T) {
	projector := NewProjector(ProjectorConfig{MaxNodes: 2}, nil)
	course := projectionCourse([]float64{0.5, 0.5}, []float64{0, 0}, []float64{0, 0})

	result, err := projector.Project(context.Background(), course, 50, []int{2, 2})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 2, result.NodesVisited)
	assert.Empty(t, result.Allocations)
}

func TestProjectResultBudget(t *testing.T) {
	projector := NewProjector(ProjectorConfig{MaxResults: 1}, nil)
	course := projectionCourse([]float64{0.5, 0.5}, []float64{0, 0}, []float64{0, 0})

	result, err := projector.Project(context.Background(), course, 50, []int{2, 2})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, [][]int{{2, 0}}, allocationPoints(result.Allocations))
}

func TestProjectResultBudgetOnExhaustedSearch(t *testing.T) {
	projector := NewProjector(ProjectorConfig{MaxResults: 1}, nil)
	course := projectionCourse([]float64{0.9, 0.1}, []float64{0, 0}, []float64{0, 0})

	result, err := projector.Project(context.Background(), course, 85, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 0}}, allocationPoints(result.Allocations))
	assert.False(t, result.Truncated)
}

func TestProjectCancelled(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{0.5, 0.5}, []float64{0, 0}, []float64{0, 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := projector.Project(ctx, course, 50, []int{2, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, appErrors.ErrTimeout))
	require.NotNil(t, result)
	assert.True(t, result.Truncated)
}

func TestProjectValidation(t *testing.T) {
	projector := NewProjector(ProjectorConfig{}, nil)
	course := projectionCourse([]float64{1}, []float64{8}, []float64{10})

	_, err := projector.Project(context.Background(), course, 90, []int{1, 2})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))

	_, err = projector.Project(context.Background(), course, 90, []int{-1})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))

	_, err = projector.Project(context.Background(), nil, 90, nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestMinimalAllocations(t *testing.T) {
	allocations := []Allocation{
		{Points: []int{3, 0}},
		{Points: []int{1, 1}},
		{Points: []int{0, 4}},
		{Points: []int{0, 2}},
	}
	assert.Equal(t, [][]int{{1, 1}, {0, 2}}, allocationPoints(MinimalAllocations(allocations)))
	assert.Empty(t, MinimalAllocations(nil))
}
