package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		count      int64
		population *int64
		want       *float64
	}{
		{name: "nil population", count: 100, population: nil, want: nil},
		{name: "zero population", count: 100, population: ptr(0), want: nil},
		{name: "negative population treated as invalid", count: 100, population: ptr(-5), want: nil},
		{name: "zero count with valid population is zero, not nil", count: 0, population: ptr(50000), want: floatPtr(0)},
		{name: "departmental scale", count: 15234, population: ptr(2133111), want: floatPtr(714.1682)},
		{name: "small count large population", count: 5, population: ptr(2000000), want: floatPtr(0.25)},
		{name: "count equal to population", count: 1000, population: ptr(1000), want: floatPtr(100000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.count, tt.population)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestNormalize_FourDecimalPlaces(t *testing.T) {
	// 1/3 × 100000 = 33333.3333... must be stored at exactly 4dp.
	got := Normalize(1, ptr(3))
	require.NotNil(t, got)
	assert.Equal(t, 33333.3333, *got)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 714.14, Round(714.1447, 2))
	assert.Equal(t, 714.1, Round(714.1447, 1))
	assert.Equal(t, -6.94, Round(-6.944444, 2))
	assert.Equal(t, 2.5, Round(2.45, 1)) // half away from zero
}

func TestPctChange(t *testing.T) {
	t.Run("zero baseline is undefined", func(t *testing.T) {
		assert.Nil(t, PctChange(0, 42))
	})

	t.Run("decrease", func(t *testing.T) {
		got := PctChange(72, 67)
		require.NotNil(t, got)
		assert.Equal(t, -6.94, *got)
	})

	t.Run("rate decrease", func(t *testing.T) {
		got := PctChange(3.38, 3.14)
		require.NotNil(t, got)
		assert.Equal(t, -7.1, *got)
	})

	t.Run("increase", func(t *testing.T) {
		got := PctChange(50, 75)
		require.NotNil(t, got)
		assert.Equal(t, 50.0, *got)
	})

	t.Run("asymmetry between orderings", func(t *testing.T) {
		ab := PctChange(100, 150)
		ba := PctChange(150, 100)
		require.NotNil(t, ab)
		require.NotNil(t, ba)
		// Percentage change is baseline-relative: +50% one way, -33.33% back.
		assert.Equal(t, 50.0, *ab)
		assert.Equal(t, -33.33, *ba)
	})
}

func floatPtr(v float64) *float64 { return &v }
