// Package gradecalc holds the NSD grading policy: letter bands, GPA points and weighted-course detection.
package gradecalc

import (
	"math"
	"strings"
)

// NotAvailable is the letter used for ungraded or invalid percentages.
const NotAvailable = "N/A"

type band struct {
	min    float64
	letter string
}

var bands = []band{
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{60, "D"},
	{0, "F"},
}

var gpaPoints = map[string]float64{
	"A":  4.0,
	"A-": 3.7,
	"B+": 3.3,
	"B":  3.0,
	"B-": 2.7,
	"C+": 2.3,
	"C":  2.0,
	"C-": 1.7,
	"D+": 1.3,
	"D":  1.0,
	"F":  0.0,
}

var weightedMarkers = []string{"AP", "Hon", "IB", "Mag"}

// LetterGrade maps a percentage to an NSD letter. Extra credit above 100 stays an "A".
func LetterGrade(percentage float64) string {
	if math.IsNaN(percentage) || percentage < 0 {
		return NotAvailable
	}
	for _, b := range bands {
		if percentage >= b.min {
			return b.letter
		}
	}
	return NotAvailable
}

// LetterGPA maps a letter to grade points, adding one point for weighted courses.
// Unknown letters, including N/A, yield NaN.
func LetterGPA(letter string, weighted bool) float64 {
	points, ok := gpaPoints[letter]
	if !ok {
		return math.NaN()
	}
	if weighted {
		points++
	}
	return points
}

// IsWeighted reports whether a course title marks an AP, honors, IB or magnet course.
// The match is a case-sensitive substring test, so "Biology" does not match but "HAPpy" does.
func IsWeighted(name string) bool {
	for _, marker := range weightedMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// LetterColor returns the display color for a letter grade.
func LetterColor(letter string) string {
	if letter == "" {
		return "gray"
	}
	switch letter[0] {
	case 'A':
		return "green"
	case 'B':
		return "lime"
	case 'C':
		return "yellow"
	case 'D':
		return "orange"
	case 'F':
		return "red"
	default:
		return "gray"
	}
}

// Round2 rounds to two decimals, half away from zero. NaN stays NaN.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*100) / 100
}

// Percentage returns earned/possible*100; a zero denominator yields NaN.
func Percentage(earned, possible float64) float64 {
	if possible == 0 || math.IsNaN(earned) || math.IsNaN(possible) {
		return math.NaN()
	}
	return earned / possible * 100
}
