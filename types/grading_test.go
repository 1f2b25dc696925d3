package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveBandScale() GradingScale {
	return GradingScale{
		"A": {80, 100},
		"B": {60, 79},
		"C": {40, 59},
		"D": {20, 39},
		"E": {0, 19},
	}
}

func TestGradingScaleValidate(t *testing.T) {
	tests := []struct {
		name    string
		scale   GradingScale
		wantErr bool
	}{
		{"five bands", fiveBandScale(), false},
		{"empty scale ok", GradingScale{}, false},
		{"single band", GradingScale{"A": {0, 100}}, false},
		{"missing zero start", GradingScale{"A": {50, 100}, "B": {10, 49}}, true},
		{"missing hundred end", GradingScale{"A": {50, 90}, "B": {0, 49}}, true},
		{"overlap", GradingScale{"A": {40, 100}, "B": {0, 50}}, true},
		{"wide gap", GradingScale{"A": {60, 100}, "B": {0, 40}}, true},
		{"inverted band", GradingScale{"A": {100, 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scale.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGradeLookup(t *testing.T) {
	scale := fiveBandScale()
	require.NoError(t, scale.Validate())

	tests := []struct {
		value float64
		want  string
	}{
		{0, "E"},
		{19, "E"},
		{19.5, "D"}, // fractional gap value grades upward
		{20, "D"},
		{39, "D"},
		{40, "C"},
		{59.9, "B"},
		{60, "B"},
		{79.01, "A"},
		{80, "A"},
		{100, "A"},
	}

	for _, tt := range tests {
		got, ok := scale.Grade(tt.value)
		require.True(t, ok, "value %v must grade", tt.value)
		assert.Equal(t, tt.want, got, "value %v", tt.value)
	}
}

func TestGradeRoundTrip(t *testing.T) {
	// every value in [0,100] maps to exactly one letter
	scale := fiveBandScale()
	for v := 0.0; v <= 100.0; v += 0.25 {
		_, ok := scale.Grade(v)
		assert.True(t, ok, "value %v did not map", v)
	}
}

func TestGradeEdges(t *testing.T) {
	scale := fiveBandScale()

	_, ok := scale.Grade(-1)
	assert.False(t, ok)
	_, ok = scale.Grade(100.1)
	assert.False(t, ok)

	_, ok = GradingScale{}.Grade(50)
	assert.False(t, ok, "empty scale grades to null")
}
