package service

import (
	"fmt"
	"math"
	"time"

	"github.com/aneeshlingala/grade-melon-nsd/internal/gradecalc"
	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

// PointsField selects which side of an assignment's points an edit targets.
type PointsField string

const (
	PointsEarned   PointsField = "earned"
	PointsPossible PointsField = "possible"
)

const newAssignmentName = "New Assignment"

// Recalculator keeps derived category, course and GPA fields consistent after edits.
// Every method mutates its argument in place.
type Recalculator struct {
	now func() time.Time
}

// NewRecalculator constructs a Recalculator. A nil clock falls back to time.Now.
func NewRecalculator(now func() time.Time) *Recalculator {
	if now == nil {
		now = time.Now
	}
	return &Recalculator{now: now}
}

// CalculateCategory recomputes points and grade of one category from its fully graded assignments.
func (r *Recalculator) CalculateCategory(course *models.Course, categoryIndex int) error {
	if err := checkIndex("category", categoryIndex, len(course.Categories)); err != nil {
		return err
	}
	category := &course.Categories[categoryIndex]

	var earned, possible float64
	for _, assignment := range course.Assignments {
		if !belongsTo(assignment, *category) {
			continue
		}
		if !assignment.Points.Earned.Defined() || !assignment.Points.Possible.Defined() {
			continue
		}
		earned += assignment.Points.Earned.Float()
		possible += assignment.Points.Possible.Float()
	}

	category.Points = models.Points{Earned: models.Score(earned), Possible: models.Score(possible)}
	category.Grade = gradeFor(gradecalc.Round2(gradecalc.Percentage(earned, possible)))
	return nil
}

// CalculateGrade recomputes the course grade as the weight-renormalized mean of defined category grades.
func (r *Recalculator) CalculateGrade(course *models.Course) {
	var totalWeight, sum float64
	defined := 0
	for _, category := range course.Categories {
		if !category.Grade.Raw.Defined() {
			continue
		}
		defined++
		totalWeight += category.Weight
		sum += category.Grade.Raw.Float() * category.Weight
	}

	raw := math.NaN()
	if defined > 0 && totalWeight > 0 {
		raw = gradecalc.Round2(sum / totalWeight)
	}
	course.Grade = gradeFor(raw)
}

// RecalculateCourse recomputes every category and then the course grade.
func (r *Recalculator) RecalculateCourse(course *models.Course) {
	for i := range course.Categories {
		_ = r.CalculateCategory(course, i)
	}
	r.CalculateGrade(course)
}

// AddAssignment prepends an ungraded placeholder assignment. It does not recalculate.
func (r *Recalculator) AddAssignment(course *models.Course) {
	now := r.now()
	assignment := models.Assignment{
		Name:     newAssignmentName,
		Grade:    models.Grade{Letter: gradecalc.NotAvailable, Raw: models.Undefined(), Color: gradecalc.LetterColor(gradecalc.NotAvailable)},
		Points:   models.Points{Earned: 0, Possible: 0},
		Date:     models.AssignmentDate{Due: now, Assigned: now},
		Category: gradecalc.NotAvailable,
	}
	if len(course.Categories) > 0 {
		assignment.Category = course.Categories[0].Name
		assignment.CategoryID = course.Categories[0].ID
	}
	course.Assignments = append([]models.Assignment{assignment}, course.Assignments...)
}

// DeleteAssignment removes an assignment and recomputes the whole course.
func (r *Recalculator) DeleteAssignment(course *models.Course, assignmentIndex int) error {
	if err := checkIndex("assignment", assignmentIndex, len(course.Assignments)); err != nil {
		return err
	}
	course.Assignments = append(course.Assignments[:assignmentIndex], course.Assignments[assignmentIndex+1:]...)
	r.RecalculateCourse(course)
	return nil
}

// UpdateCategory moves an assignment to the category at categoryIndex and recomputes the whole course.
func (r *Recalculator) UpdateCategory(course *models.Course, assignmentIndex, categoryIndex int) error {
	if err := checkIndex("assignment", assignmentIndex, len(course.Assignments)); err != nil {
		return err
	}
	if err := checkIndex("category", categoryIndex, len(course.Categories)); err != nil {
		return err
	}
	assignment := &course.Assignments[assignmentIndex]
	assignment.Category = course.Categories[categoryIndex].Name
	assignment.CategoryID = course.Categories[categoryIndex].ID
	r.RecalculateCourse(course)
	return nil
}

// UpdatePoints sets earned or possible points on one assignment, clamping negatives to zero, then
// recomputes that assignment, its own category and the course grade.
func (r *Recalculator) UpdatePoints(course *models.Course, assignmentIndex int, field PointsField, value float64) error {
	if err := checkIndex("assignment", assignmentIndex, len(course.Assignments)); err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return appErrors.Clone(appErrors.ErrInvalidArgument, "points must be a finite number")
	}
	if value < 0 {
		value = 0
	}

	assignment := &course.Assignments[assignmentIndex]
	switch field {
	case PointsEarned:
		assignment.Points.Earned = models.Score(value)
	case PointsPossible:
		assignment.Points.Possible = models.Score(value)
	default:
		return appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("unknown points field %q", field))
	}

	assignment.Grade = gradeFor(gradecalc.Round2(gradecalc.Percentage(assignment.Points.Earned.Float(), assignment.Points.Possible.Float())))

	if idx := categoryIndexOf(course, *assignment); idx >= 0 {
		_ = r.CalculateCategory(course, idx)
	}
	r.CalculateGrade(course)
	return nil
}

// CalculateGPA recomputes plain and weighted GPA as the mean of per-course grade points.
// Any ungraded course, or an empty course list, leaves the GPA undefined.
func (r *Recalculator) CalculateGPA(grades *models.Grades) {
	if len(grades.Courses) == 0 {
		grades.GPA = models.Undefined()
		grades.WeightedGPA = models.Undefined()
		return
	}
	var gpa, wgpa float64
	for _, course := range grades.Courses {
		letter := gradecalc.LetterGrade(course.Grade.Raw.Float())
		gpa += gradecalc.LetterGPA(letter, false)
		wgpa += gradecalc.LetterGPA(letter, course.Weighted)
	}
	n := float64(len(grades.Courses))
	grades.GPA = models.Score(gpa / n)
	grades.WeightedGPA = models.Score(wgpa / n)
}

// UpdateGPA overrides the weighted flag of one course and recomputes GPA.
func (r *Recalculator) UpdateGPA(grades *models.Grades, courseIndex int, weighted bool) error {
	if err := checkIndex("course", courseIndex, len(grades.Courses)); err != nil {
		return err
	}
	grades.Courses[courseIndex].Weighted = weighted
	r.CalculateGPA(grades)
	return nil
}

func gradeFor(raw float64) models.Grade {
	letter := gradecalc.LetterGrade(raw)
	return models.Grade{Letter: letter, Raw: models.Score(raw), Color: gradecalc.LetterColor(letter)}
}

func belongsTo(assignment models.Assignment, category models.Category) bool {
	if assignment.CategoryID != "" {
		return assignment.CategoryID == category.ID
	}
	return assignment.Category == category.Name
}

func categoryIndexOf(course *models.Course, assignment models.Assignment) int {
	for i, category := range course.Categories {
		if belongsTo(assignment, category) {
			return i
		}
	}
	return -1
}

func checkIndex(kind string, index, length int) error {
	if index < 0 || index >= length {
		return appErrors.Clone(appErrors.ErrInvalidArgument, fmt.Sprintf("%s index %d out of range [0,%d)", kind, index, length))
	}
	return nil
}
