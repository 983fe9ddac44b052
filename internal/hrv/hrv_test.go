package hrv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	t.Run("filters out-of-range and non-finite", func(t *testing.T) {
		raw := []float64{
			800, 810, 150, 820, 2500, 830, math.NaN(), 840,
			math.Inf(1), 850, 200, 2000, 860, 870, 880, 890,
		}
		cleaned, err := c.Clean(raw)
		require.NoError(t, err)
		assert.Equal(t, []float64{800, 810, 820, 830, 840, 850, 860, 870, 880, 890}, cleaned)
	})

	t.Run("boundary values excluded", func(t *testing.T) {
		raw := []float64{200, 200.1, 1999.9, 2000}
		cleaned, err := c.Clean(raw)
		require.ErrorIs(t, err, ErrInsufficientData)
		assert.Nil(t, cleaned)
	})

	t.Run("too few survivors", func(t *testing.T) {
		raw := []float64{800, 810, 820, 830, 840, 850, 860, 870, 880} // 9
		_, err := c.Clean(raw)
		require.ErrorIs(t, err, ErrInsufficientData)
		assert.Contains(t, err.Error(), "9 of 9")
	})
}

func TestComputeTimeDomain(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	// Ten alternating intervals: mean 810, diffs all ±20.
	rr := []float64{800, 820, 800, 820, 800, 820, 800, 820, 800, 820}
	m, err := c.Compute(rr)
	require.NoError(t, err)

	assert.Equal(t, 10, m.CountRR)
	assert.Equal(t, 810.0, m.MeanRR)
	assert.InDelta(t, 10.54, m.SDNN, 0.005)
	assert.Equal(t, 20.0, m.RMSSD)
	assert.Equal(t, 0.0, m.PNN50, "no successive diff exceeds 50 ms")
	assert.InDelta(t, 1.30, m.CVRR, 0.005)
	assert.InDelta(t, 74.07, m.MeanHR, 0.005)
}

func TestComputePNN50(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	// Nine diffs, alternating magnitude 60 and 40; five exceed 50 ms.
	rr := []float64{800, 860, 820, 880, 840, 900, 860, 920, 880, 940}
	m, err := c.Compute(rr)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/9.0*100, m.PNN50, 0.005)
}

func TestComputeIdenticalIntervals(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	rr := make([]float64, 12)
	for i := range rr {
		rr[i] = 1000
	}
	m, err := c.Compute(rr)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, m.MeanRR)
	assert.Equal(t, 0.0, m.SDNN)
	assert.Equal(t, 0.0, m.RMSSD)
	assert.Equal(t, 0.0, m.CVRR)
	assert.Equal(t, 60.0, m.MeanHR)
	// Zero variance means SD1 is zero; both nonlinear paths degrade.
	assert.Equal(t, 2.0, m.SD2SD1)
	assert.True(t, m.SD2SD1Fallback)
	assert.Equal(t, 1.0, m.DFA)
	assert.True(t, m.DFAFallback)
}

func TestComputeInsufficient(t *testing.T) {
	c := NewCalculator(DefaultConfig())
	_, err := c.Compute([]float64{800, 810, 820})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestSampleStd(t *testing.T) {
	assert.Equal(t, 0.0, sampleStd(nil))
	assert.Equal(t, 0.0, sampleStd([]float64{5}))
	// Variance of {2,4,4,4,5,5,7,9} is 32/7 with the n-1 denominator.
	assert.InDelta(t, math.Sqrt(32.0/7.0), sampleStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}
