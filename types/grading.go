package types

import (
	"fmt"
	"sort"
)

// GradeRange is an inclusive numeric band of a grading scale.
type GradeRange [2]float64

// GradingScale maps letter grades to inclusive numeric ranges. A valid
// scale partitions [0,100] without overlap. Bounds are inclusive on the
// lower side for every band and inclusive on the upper side only for the
// top band; fractional values falling between two integer bands grade
// into the higher band.
type GradingScale map[string]GradeRange

// sortedBands returns the letters ordered by ascending lower bound.
func (s GradingScale) sortedBands() []string {
	letters := make([]string, 0, len(s))
	for l := range s {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool {
		return s[letters[i]][0] < s[letters[j]][0]
	})
	return letters
}

// Validate checks that the bands partition [0,100]: the lowest band
// starts at 0, the highest ends at 100, and consecutive integer bounds
// leave no gap wider than one.
func (s GradingScale) Validate() error {
	if len(s) == 0 {
		return nil // a recipe without a scale grades to null
	}
	letters := s.sortedBands()
	for _, l := range letters {
		r := s[l]
		if r[0] > r[1] {
			return &ValidationError{Field: "grading_scale", Message: fmt.Sprintf("band %s has lower bound above upper bound", l)}
		}
	}
	first := s[letters[0]]
	if first[0] != 0 {
		return &ValidationError{Field: "grading_scale", Message: "lowest band must start at 0"}
	}
	last := s[letters[len(letters)-1]]
	if last[1] != 100 {
		return &ValidationError{Field: "grading_scale", Message: "highest band must end at 100"}
	}
	for i := 1; i < len(letters); i++ {
		prev := s[letters[i-1]]
		cur := s[letters[i]]
		gap := cur[0] - prev[1]
		if gap < 0 {
			return &ValidationError{Field: "grading_scale", Message: fmt.Sprintf("bands %s and %s overlap", letters[i-1], letters[i])}
		}
		if gap > 1 {
			return &ValidationError{Field: "grading_scale", Message: fmt.Sprintf("gap between bands %s and %s", letters[i-1], letters[i])}
		}
	}
	return nil
}

// Grade maps a numeric value in [0,100] to its letter. Values that fall
// strictly between the upper bound of one band and the lower bound of
// the next (fractional averages over integer scales) tie-break toward
// the higher grade. The second return is false when the scale is empty
// or the value is out of range.
func (s GradingScale) Grade(value float64) (string, bool) {
	if len(s) == 0 || value < 0 || value > 100 {
		return "", false
	}
	letters := s.sortedBands()
	for i, l := range letters {
		r := s[l]
		upper := r[1]
		if i == len(letters)-1 {
			// top band: upper bound inclusive
			if value >= r[0] && value <= upper {
				return l, true
			}
			continue
		}
		next := s[letters[i+1]][0]
		// the band owns [lower, min(upper, nextLower)); anything at or
		// above the next band's lower bound belongs to the next band,
		// and values in the (upper, nextLower) gap round up
		if value >= r[0] && value < next {
			if value > upper {
				return letters[i+1], true
			}
			return l, true
		}
	}
	return "", false
}
