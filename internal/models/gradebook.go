package models

import "time"

// Grade is a letter grade with its numeric percentage and display color.
type Grade struct {
	Letter string `json:"letter"`
	Raw    Score  `json:"raw"`
	Color  string `json:"color"`
}

// Points holds earned and possible points; either may be undefined for ungraded work.
type Points struct {
	Earned   Score `json:"earned"`
	Possible Score `json:"possible"`
}

// AssignmentDate holds an assignment's due and assigned dates.
type AssignmentDate struct {
	Due      time.Time `json:"due"`
	Assigned time.Time `json:"assigned"`
}

// Assignment is a single graded item in a course.
type Assignment struct {
	Name       string         `json:"name"`
	Grade      Grade          `json:"grade"`
	Points     Points         `json:"points"`
	Date       AssignmentDate `json:"date"`
	Category   string         `json:"category"`
	CategoryID string         `json:"category_id,omitempty"`
}

// Category is a weighted grouping of assignments. Points and grade are derived from its assignments.
type Category struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Grade  Grade   `json:"grade"`
	Points Points  `json:"points"`
}

// Teacher identifies the course instructor.
type Teacher struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Course is one class in a gradebook.
type Course struct {
	Name        string       `json:"name"`
	Period      int          `json:"period"`
	Room        string       `json:"room"`
	Weighted    bool         `json:"weighted"`
	Grade       Grade        `json:"grade"`
	Reported    Score        `json:"reported"`
	Teacher     Teacher      `json:"teacher"`
	Categories  []Category   `json:"categories"`
	Assignments []Assignment `json:"assignments"`
}

// ReportingPeriod is a named grading window.
type ReportingPeriod struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Grades is the normalized gradebook for one reporting period.
type Grades struct {
	Courses     []Course          `json:"courses"`
	GPA         Score             `json:"gpa"`
	WeightedGPA Score             `json:"wgpa"`
	Period      ReportingPeriod   `json:"period"`
	Periods     []ReportingPeriod `json:"periods"`
}

// Gradebook is a stored Grades document owned by a student.
type Gradebook struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Grades    Grades    `json:"grades"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GradebookSummary is a list row without the course payload.
type GradebookSummary struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	PeriodIndex int       `db:"period_index" json:"period_index"`
	PeriodName  string    `db:"period_name" json:"period_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GradebookFilter scopes list queries.
type GradebookFilter struct {
	StudentID string
	Page      int
	PageSize  int
}

// Clone returns a deep copy of the course.
func (c Course) Clone() Course {
	out := c
	if c.Categories != nil {
		out.Categories = append([]Category(nil), c.Categories...)
	}
	if c.Assignments != nil {
		out.Assignments = append([]Assignment(nil), c.Assignments...)
	}
	return out
}

// Clone returns a deep copy of the grades.
func (g Grades) Clone() Grades {
	out := g
	if g.Courses != nil {
		out.Courses = make([]Course, len(g.Courses))
		for i := range g.Courses {
			out.Courses[i] = g.Courses[i].Clone()
		}
	}
	if g.Periods != nil {
		out.Periods = append([]ReportingPeriod(nil), g.Periods...)
	}
	return out
}

// Clone returns a deep copy of the gradebook.
func (g *Gradebook) Clone() *Gradebook {
	if g == nil {
		return nil
	}
	out := *g
	out.Grades = g.Grades.Clone()
	return &out
}
