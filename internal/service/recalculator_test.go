package service

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

func graded(name, categoryID string, earned, possible float64) models.Assignment {
	return models.Assignment{
		Name:       name,
		CategoryID: categoryID,
		Points:     models.Points{Earned: models.Score(earned), Possible: models.Score(possible)},
	}
}

func sampleCourse() *models.Course {
	return &models.Course{
		Name: "AP Chemistry",
		Categories: []models.Category{
			{ID: "hw", Name: "Homework", Weight: 0.4},
			{ID: "tests", Name: "Tests", Weight: 0.6},
		},
		Assignments: []models.Assignment{
			graded("HW 1", "hw", 9, 10),
			graded("Test 1", "tests", 40, 50),
			{Name: "Ungraded", CategoryID: "tests", Points: models.Points{Earned: models.Undefined(), Possible: 20}},
		},
	}
}

func TestCalculateCategoryIsIdempotent(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()

	require.NoError(t, r.CalculateCategory(course, 1))
	first := course.Categories[1]
	require.NoError(t, r.CalculateCategory(course, 1))

	assert.Equal(t, first, course.Categories[1])
	assert.Equal(t, models.Score(40), first.Points.Earned)
	assert.Equal(t, models.Score(50), first.Points.Possible)
	assert.Equal(t, models.Score(80), first.Grade.Raw)
	assert.Equal(t, "B-", first.Grade.Letter)
}

func TestCalculateGradeRenormalizesWeights(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	r.RecalculateCourse(course)

	assert.Equal(t, models.Score(84), course.Grade.Raw)
	assert.Equal(t, "B", course.Grade.Letter)
	assert.Equal(t, "lime", course.Grade.Color)
}

func TestCalculateGradeExcludesUndefinedCategories(t *testing.T) {
	r := NewRecalculator(nil)
	course := &models.Course{
		Categories: []models.Category{
			{ID: "a", Weight: 0.3},
			{ID: "b", Weight: 0.7},
		},
		Assignments: []models.Assignment{graded("only", "a", 45, 50)},
	}
	r.RecalculateCourse(course)

	assert.False(t, course.Categories[1].Grade.Raw.Defined())
	assert.Equal(t, models.Score(90), course.Grade.Raw)
}

func TestDeleteOnlyAssignmentUndefinesGrades(t *testing.T) {
	r := NewRecalculator(nil)
	course := &models.Course{
		Categories:  []models.Category{{ID: "a", Name: "Labs", Weight: 1}},
		Assignments: []models.Assignment{graded("Lab", "a", 10, 10)},
	}
	r.RecalculateCourse(course)
	require.Equal(t, models.Score(100), course.Grade.Raw)

	require.NoError(t, r.DeleteAssignment(course, 0))

	assert.Empty(t, course.Assignments)
	assert.False(t, course.Categories[0].Grade.Raw.Defined())
	assert.Equal(t, "N/A", course.Categories[0].Grade.Letter)
	assert.False(t, course.Grade.Raw.Defined())
	assert.Equal(t, "gray", course.Grade.Color)
}

func TestAddAssignmentPrependsPlaceholder(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	r := NewRecalculator(func() time.Time { return now })
	course := sampleCourse()
	r.RecalculateCourse(course)
	before := course.Grade

	r.AddAssignment(course)

	require.Len(t, course.Assignments, 4)
	added := course.Assignments[0]
	assert.Equal(t, "New Assignment", added.Name)
	assert.Equal(t, "hw", added.CategoryID)
	assert.Equal(t, "Homework", added.Category)
	assert.Equal(t, now, added.Date.Due)
	assert.Equal(t, "N/A", added.Grade.Letter)
	assert.Equal(t, before, course.Grade)

	empty := &models.Course{}
	r.AddAssignment(empty)
	assert.Equal(t, "N/A", empty.Assignments[0].Category)
	assert.Empty(t, empty.Assignments[0].CategoryID)
}

func TestUpdatePointsRecomputesOwnCategory(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	r.RecalculateCourse(course)

	require.NoError(t, r.UpdatePoints(course, 2, PointsEarned, 20))

	assert.Equal(t, models.Score(100), course.Assignments[2].Grade.Raw)
	assert.Equal(t, models.Score(60), course.Categories[1].Points.Earned)
	assert.Equal(t, models.Score(70), course.Categories[1].Points.Possible)
	assert.Equal(t, models.Score(85.71), course.Categories[1].Grade.Raw)
	assert.Equal(t, models.Score(87.43), course.Grade.Raw)
}

func TestUpdatePointsClampsNegative(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	r.RecalculateCourse(course)

	require.NoError(t, r.UpdatePoints(course, 0, PointsEarned, -5))

	assert.Equal(t, models.Score(0), course.Assignments[0].Points.Earned)
	assert.Equal(t, models.Score(0), course.Categories[0].Grade.Raw)
	assert.Equal(t, "F", course.Assignments[0].Grade.Letter)
}

func TestUpdatePointsZeroPossibleIsUndefined(t *testing.T) {
	r := NewRecalculator(nil)
	course := &models.Course{
		Categories:  []models.Category{{ID: "a", Weight: 1}},
		Assignments: []models.Assignment{graded("x", "a", 5, 10)},
	}
	require.NoError(t, r.UpdatePoints(course, 0, PointsPossible, 0))
	require.NoError(t, r.UpdatePoints(course, 0, PointsEarned, 0))

	assert.False(t, course.Assignments[0].Grade.Raw.Defined())
	assert.False(t, course.Categories[0].Grade.Raw.Defined())
	assert.False(t, course.Grade.Raw.Defined())
}

func TestUpdatePointsUncategorizedOnlyTouchesCourse(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	r.RecalculateCourse(course)
	course.Assignments = append(course.Assignments, models.Assignment{Name: "loose", Category: "N/A"})

	require.NoError(t, r.UpdatePoints(course, 3, PointsPossible, 10))
	assert.Equal(t, models.Score(84), course.Grade.Raw)
}

func TestUpdateCategoryMovesAssignment(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	r.RecalculateCourse(course)

	require.NoError(t, r.UpdateCategory(course, 0, 1))

	assert.Equal(t, "tests", course.Assignments[0].CategoryID)
	assert.Equal(t, "Tests", course.Assignments[0].Category)
	assert.False(t, course.Categories[0].Grade.Raw.Defined())
	assert.Equal(t, models.Score(81.67), course.Categories[1].Grade.Raw)
	assert.Equal(t, models.Score(81.67), course.Grade.Raw)
}

func TestCategoryLookupSurvivesRename(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	course.Categories[0].Name = "Practice"
	course.Categories[0], course.Categories[1] = course.Categories[1], course.Categories[0]

	r.RecalculateCourse(course)

	assert.Equal(t, models.Score(80), course.Categories[0].Grade.Raw)
	assert.Equal(t, models.Score(90), course.Categories[1].Grade.Raw)
}

func TestInvalidIndicesAreRejected(t *testing.T) {
	r := NewRecalculator(nil)
	course := sampleCourse()
	course.Assignments = course.Assignments[:2]
	snapshot := course.Clone()

	for _, err := range []error{
		r.CalculateCategory(course, 5),
		r.DeleteAssignment(course, -1),
		r.UpdateCategory(course, 0, 2),
		r.UpdateCategory(course, 2, 0),
		r.UpdatePoints(course, 9, PointsEarned, 1),
		r.UpdatePoints(course, 0, "bonus", 1),
		r.UpdatePoints(course, 0, PointsEarned, math.Inf(1)),
	} {
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument))
	}
	assert.Equal(t, snapshot, *course)
}

func TestCalculateGPA(t *testing.T) {
	r := NewRecalculator(nil)
	grades := &models.Grades{Courses: []models.Course{
		{Name: "AP Bio", Weighted: true, Grade: models.Grade{Raw: 95}},
		{Name: "PE", Grade: models.Grade{Raw: 85}},
	}}

	r.CalculateGPA(grades)
	assert.Equal(t, models.Score(3.5), grades.GPA)
	assert.Equal(t, models.Score(4.0), grades.WeightedGPA)

	require.NoError(t, r.UpdateGPA(grades, 1, true))
	assert.Equal(t, models.Score(4.5), grades.WeightedGPA)
	assert.Error(t, r.UpdateGPA(grades, 2, true))

	grades.Courses = append(grades.Courses, models.Course{Grade: models.Grade{Raw: models.Undefined()}})
	r.CalculateGPA(grades)
	assert.False(t, grades.GPA.Defined())

	empty := &models.Grades{}
	r.CalculateGPA(empty)
	assert.False(t, empty.GPA.Defined())
	assert.False(t, empty.WeightedGPA.Defined())
}
