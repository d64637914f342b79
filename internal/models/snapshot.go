package models

import "time"

// Snapshot is the raw gradebook payload pulled from the district student information system.
type Snapshot struct {
	ReportingPeriod SnapshotReportingPeriods `json:"reportingPeriod"`
	Courses         []SnapshotCourse         `json:"courses"`
}

// SnapshotReportingPeriods lists the current and available grading windows.
type SnapshotReportingPeriods struct {
	Current   SnapshotReportingPeriod   `json:"current"`
	Available []SnapshotReportingPeriod `json:"available"`
}

// SnapshotReportingPeriod is a single grading window.
type SnapshotReportingPeriod struct {
	Name  string        `json:"name"`
	Index int           `json:"index"`
	Date  SnapshotRange `json:"date"`
}

// SnapshotRange is a start/end pair.
type SnapshotRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SnapshotCourse is a raw course entry.
type SnapshotCourse struct {
	Title  string         `json:"title"`
	Period int            `json:"period"`
	Room   string         `json:"room"`
	Staff  SnapshotStaff  `json:"staff"`
	Marks  []SnapshotMark `json:"marks"`
}

// SnapshotStaff is the course teacher.
type SnapshotStaff struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SnapshotMark is one mark (grading snapshot) of a course; only the first is used.
type SnapshotMark struct {
	Name               string                     `json:"name"`
	CalculatedScore    SnapshotScore              `json:"calculatedScore"`
	WeightedCategories []SnapshotWeightedCategory `json:"weightedCategories"`
	Assignments        []SnapshotAssignment       `json:"assignments"`
}

// SnapshotScore is the district-calculated course score.
type SnapshotScore struct {
	Raw    *float64 `json:"raw"`
	String string   `json:"string"`
}

// SnapshotWeightedCategory is a raw assignment category.
type SnapshotWeightedCategory struct {
	Type   string         `json:"type"`
	Weight SnapshotWeight `json:"weight"`
	Points SnapshotPoints `json:"points"`
}

// SnapshotWeight carries weights as percentage strings such as "40%".
type SnapshotWeight struct {
	Standard  string `json:"standard"`
	Evaluated string `json:"evaluated"`
}

// SnapshotPoints is a raw points pair.
type SnapshotPoints struct {
	Current  float64 `json:"current"`
	Possible float64 `json:"possible"`
}

// SnapshotAssignment is a raw assignment. Points is free text such as "8 / 10" or "10 Points Possible".
type SnapshotAssignment struct {
	Name   string             `json:"name"`
	Date   SnapshotAssignDate `json:"date"`
	Points string             `json:"points"`
	Type   string             `json:"type"`
}

// SnapshotAssignDate is a raw assignment date pair.
type SnapshotAssignDate struct {
	Start time.Time `json:"start"`
	Due   time.Time `json:"due"`
}
