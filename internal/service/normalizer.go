package service

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/aneeshlingala/grade-melon-nsd/internal/gradecalc"
	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

const (
	day            = 24 * time.Hour
	totalsCategory = "total"
)

var (
	pointsPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+) / (\d+\.?\d*|\.\d+)$`)
	leadingFloat  = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	parenthesised = regexp.MustCompile(`\(([^)]+)\)`)
)

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock sets the clock used for reporting period descriptions.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithIDGenerator sets the category ID generator.
func WithIDGenerator(gen func() string) NormalizerOption {
	return func(n *Normalizer) {
		if gen != nil {
			n.newID = gen
		}
	}
}

// WithDecodePasses sets how many times assignment names are decoded as HTML text.
func WithDecodePasses(passes int) NormalizerOption {
	return func(n *Normalizer) {
		if passes >= 0 {
			n.decodePasses = passes
		}
	}
}

// Normalizer shapes a raw district snapshot into the Grades model with every derived field computed.
type Normalizer struct {
	recalc       *Recalculator
	policy       *bluemonday.Policy
	decodePasses int
	now          func() time.Time
	newID        func() string
	logger       *zap.Logger
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(recalc *Recalculator, logger *zap.Logger, opts ...NormalizerOption) *Normalizer {
	if recalc == nil {
		recalc = NewRecalculator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{
		recalc:       recalc,
		policy:       bluemonday.StrictPolicy(),
		decodePasses: 2,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts a snapshot into Grades. Malformed points never fail the pass.
func (n *Normalizer) Normalize(snapshot *models.Snapshot) (*models.Grades, error) {
	if snapshot == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "snapshot is required")
	}

	grades := &models.Grades{
		Courses: make([]models.Course, 0, len(snapshot.Courses)),
		Period: models.ReportingPeriod{
			Name:  snapshot.ReportingPeriod.Current.Name,
			Index: snapshot.ReportingPeriod.Current.Index,
		},
		Periods: make([]models.ReportingPeriod, 0, len(snapshot.ReportingPeriod.Available)),
	}

	for i, raw := range snapshot.Courses {
		course := n.course(i, raw)
		n.recalc.RecalculateCourse(&course)
		grades.Courses = append(grades.Courses, course)
	}

	now := n.now()
	for _, period := range snapshot.ReportingPeriod.Available {
		name := period.Name
		if desc := describePeriod(period.Date.Start, period.Date.End, now); desc != "" {
			name = fmt.Sprintf("%s (%s)", name, desc)
		}
		grades.Periods = append(grades.Periods, models.ReportingPeriod{Name: name, Index: period.Index})
	}

	n.recalc.CalculateGPA(grades)
	n.logger.Debug("snapshot normalized", zap.Int("courses", len(grades.Courses)), zap.Int("periods", len(grades.Periods)))
	return grades, nil
}

func (n *Normalizer) course(position int, raw models.SnapshotCourse) models.Course {
	period := raw.Period
	if period == 0 {
		period = position + 1
	}

	course := models.Course{
		Name:        StripParens(raw.Title),
		Period:      period,
		Room:        raw.Room,
		Weighted:    gradecalc.IsWeighted(raw.Title),
		Reported:    models.Undefined(),
		Teacher:     models.Teacher{Name: raw.Staff.Name, Email: raw.Staff.Email},
		Categories:  []models.Category{},
		Assignments: []models.Assignment{},
	}
	if len(raw.Marks) == 0 {
		return course
	}

	mark := raw.Marks[0]
	if mark.CalculatedScore.Raw != nil {
		course.Reported = models.Score(*mark.CalculatedScore.Raw)
	}

	for _, category := range mark.WeightedCategories {
		if strings.Contains(strings.ToLower(category.Type), totalsCategory) {
			continue
		}
		weight := ParseLeadingFloat(category.Weight.Standard) / 100
		if math.IsNaN(weight) {
			weight = 0
		}
		course.Categories = append(course.Categories, models.Category{
			ID:     n.newID(),
			Name:   category.Type,
			Weight: weight,
			Points: models.Points{Earned: models.Score(category.Points.Current), Possible: models.Score(category.Points.Possible)},
		})
	}

	for _, assignment := range mark.Assignments {
		points := ParsePoints(assignment.Points)
		pct := gradecalc.Round2(points.Grade)
		letter := gradecalc.LetterGrade(pct)
		item := models.Assignment{
			Name:     n.DecodeName(assignment.Name),
			Grade:    models.Grade{Letter: letter, Raw: models.Score(pct), Color: gradecalc.LetterColor(letter)},
			Points:   models.Points{Earned: models.Score(points.Earned), Possible: models.Score(points.Possible)},
			Date:     models.AssignmentDate{Due: assignment.Date.Due, Assigned: assignment.Date.Start},
			Category: assignment.Type,
		}
		for _, category := range course.Categories {
			if category.Name == assignment.Type {
				item.CategoryID = category.ID
				break
			}
		}
		course.Assignments = append(course.Assignments, item)
	}

	return course
}

// DecodeName extracts the text content of an HTML-escaped assignment name, once per configured pass.
// Script and style elements are dropped along with their content.
func (n *Normalizer) DecodeName(name string) string {
	for i := 0; i < n.decodePasses; i++ {
		name = html.UnescapeString(n.policy.Sanitize(name))
	}
	return name
}

// ParsedPoints is the result of parsing an "earned / possible" string.
type ParsedPoints struct {
	Grade    float64
	Earned   float64
	Possible float64
}

// ParsePoints parses "8 / 10" style strings. Anything else yields an undefined grade and earned value
// with possible taken from the leading number, if any.
func ParsePoints(points string) ParsedPoints {
	if m := pointsPattern.FindStringSubmatch(points); m != nil {
		earned, _ := strconv.ParseFloat(m[1], 64)
		possible, _ := strconv.ParseFloat(m[2], 64)
		return ParsedPoints{Grade: gradecalc.Percentage(earned, possible), Earned: earned, Possible: possible}
	}
	return ParsedPoints{Grade: math.NaN(), Earned: math.NaN(), Possible: ParseLeadingFloat(points)}
}

// ParseLeadingFloat parses the numeric prefix of s, returning NaN if there is none.
func ParseLeadingFloat(s string) float64 {
	m := leadingFloat.FindString(s)
	if m == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// StripParens removes parenthesised segments from a course title.
func StripParens(title string) string {
	return strings.TrimSpace(parenthesised.ReplaceAllString(title, ""))
}

func describePeriod(start, end, now time.Time) string {
	daysLeft := int(math.Ceil(float64(end.Sub(now)) / float64(day)))
	daysToStart := int(math.Floor(float64(start.Sub(now)) / float64(day)))
	daysAgo := int(math.Floor(float64(now.Sub(end)) / float64(day)))

	switch {
	case daysLeft > 0 && daysToStart < 0:
		return "ends in " + pluralDays(daysLeft)
	case daysToStart > 0:
		return "starts in " + pluralDays(daysToStart)
	case daysAgo > 0:
		return "ended " + pluralDays(daysAgo) + " ago"
	case daysAgo == 0:
		return "ends today"
	default:
		return ""
	}
}

func pluralDays(n int) string {
	if n > 1 {
		return fmt.Sprintf("%d days", n)
	}
	return fmt.Sprintf("%d day", n)
}
