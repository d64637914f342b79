package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Score is a numeric grade value where NaN means "not graded". It encodes NaN as JSON null.
type Score float64

// Undefined returns the not-graded score.
func Undefined() Score {
	return Score(math.NaN())
}

// Defined reports whether the score holds a real number.
func (s Score) Defined() bool {
	f := float64(s)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float returns the underlying float64.
func (s Score) Float() float64 {
	return float64(s)
}

// MarshalJSON implements json.Marshaler.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Defined() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(s), 'f', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Score) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Undefined()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode score: %w", err)
	}
	*s = Score(f)
	return nil
}
