package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEmptySeries(t *testing.T) {
	e := New(DefaultConfig())
	_, err := e.Analyze("rmssd", nil, true)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestAnalyzeFewPointsOmitsBands(t *testing.T) {
	e := New(DefaultConfig())

	report, err := e.Analyze("rmssd", []float64{42.1, 38.5, 45.0}, true)
	require.NoError(t, err)

	fb := report.Fixed
	assert.Equal(t, 3, fb.Count)
	require.NotNil(t, fb.Mean)
	require.NotNil(t, fb.Median)
	require.NotNil(t, fb.SD)

	// Below the 5-point gate every band field must be absent, not zero.
	assert.Nil(t, fb.MeanMinus1SD)
	assert.Nil(t, fb.MeanPlus1SD)
	assert.Nil(t, fb.MeanMinus2SD)
	assert.Nil(t, fb.MeanPlus2SD)
	assert.Nil(t, fb.MedianMinus1SD)
	assert.Nil(t, fb.MedianPlus2SD)
	assert.Nil(t, report.Percentile10)
	assert.Nil(t, report.Percentile90)
	assert.NotEmpty(t, report.Warnings)
}

func TestAnalyzeFullSeries(t *testing.T) {
	e := New(Config{
		FixedWindow:         14,
		RollingWindow:       3,
		MinBandPoints:       5,
		MinPercentilePoints: 5,
	})

	values := []float64{40, 42, 38, 45, 41, 39, 44, 43, 40}
	report, err := e.Analyze("rmssd", values, true)
	require.NoError(t, err)

	fb := report.Fixed
	assert.Equal(t, 9, fb.Count)
	require.NotNil(t, fb.Mean)
	assert.InDelta(t, 41.333, *fb.Mean, 0.001)
	require.NotNil(t, fb.Median)
	assert.Equal(t, 41.0, *fb.Median)
	require.NotNil(t, fb.MeanPlus1SD)
	require.NotNil(t, fb.MeanMinus2SD)
	assert.Greater(t, *fb.MeanPlus1SD, *fb.Mean)
	assert.Less(t, *fb.MeanMinus2SD, *fb.Mean)
	require.NotNil(t, fb.Min)
	require.NotNil(t, fb.Max)
	require.NotNil(t, fb.Range)
	assert.Equal(t, 38.0, *fb.Min)
	assert.Equal(t, 45.0, *fb.Max)
	assert.Equal(t, 7.0, *fb.Range)

	require.Len(t, report.Points, 9)
	// Rolling stats appear exactly from index n-1 onward.
	assert.Nil(t, report.Points[0].Rolling)
	assert.Nil(t, report.Points[1].Rolling)
	for i := 2; i < 9; i++ {
		require.NotNil(t, report.Points[i].Rolling, "index %d", i)
		assert.Equal(t, 3, report.Points[i].Rolling.WindowSize)
	}
	assert.InDelta(t, 40.0, report.Points[2].Rolling.Mean, 1e-9)

	require.NotNil(t, report.Percentile10)
	require.NotNil(t, report.Percentile90)
	assert.LessOrEqual(t, *report.Percentile10, *report.Percentile90)
}

func TestAnalyzeMaxSessionsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 5
	e := New(cfg)

	values := []float64{100, 100, 100, 10, 11, 12, 13, 14}
	report, err := e.Analyze("rmssd", values, true)
	require.NoError(t, err)

	// Only the most recent five points survive the cap.
	assert.Len(t, report.Points, 5)
	assert.Equal(t, 10.0, report.Points[0].Value)
	require.NotNil(t, report.Fixed.Max)
	assert.Equal(t, 14.0, *report.Fixed.Max)
}

func TestClassifyAtBaselineMean(t *testing.T) {
	e := New(DefaultConfig())

	// Last value equals the series mean by construction.
	values := []float64{40, 44, 40, 44, 40, 44, 42}
	report, err := e.Analyze("rmssd", values, true)
	require.NoError(t, err)

	last := report.Points[len(report.Points)-1].Trend
	require.NotNil(t, last.ZFixed)
	assert.InDelta(t, 0.0, *last.ZFixed, 1e-9)
	assert.Equal(t, DirectionFlat, last.Direction)
	assert.Equal(t, SignificanceNone, last.Significance)
}

func TestClassifySignificanceThresholdsAreStrict(t *testing.T) {
	sd := 2.0
	mn := 10.0
	fixed := FixedBaseline{Count: 5, Mean: &mn, SD: &sd}

	cases := []struct {
		name  string
		value float64
		dir   string
		sig   string
	}{
		{"exactly one sd", 12.0, DirectionUp, SignificanceNone},
		{"just above one sd", 12.1, DirectionUp, SignificanceNotable},
		{"exactly two sd below", 6.0, DirectionDown, SignificanceNotable},
		{"beyond two sd", 5.8, DirectionDown, SignificanceSignificant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trend := classify(tc.value, fixed, nil)
			assert.Equal(t, tc.dir, trend.Direction)
			assert.Equal(t, tc.sig, trend.Significance)
		})
	}
}

func TestNonNegativeClamping(t *testing.T) {
	e := New(DefaultConfig())

	// Wide spread around a small mean drives the -2SD band negative.
	values := []float64{1, 2, 1, 30, 2, 1, 25}
	report, err := e.Analyze("rmssd", values, true)
	require.NoError(t, err)

	require.NotNil(t, report.Fixed.MeanMinus2SD)
	assert.Equal(t, 0.0, *report.Fixed.MeanMinus2SD)
	require.NotNil(t, report.Fixed.MeanMinus1SD)
	assert.GreaterOrEqual(t, *report.Fixed.MeanMinus1SD, 0.0)

	// Without the clamp the band goes negative.
	unclamped, err := e.Analyze("rmssd", values, false)
	require.NoError(t, err)
	require.NotNil(t, unclamped.Fixed.MeanMinus2SD)
	assert.Less(t, *unclamped.Fixed.MeanMinus2SD, 0.0)
}

func TestStats(t *testing.T) {
	t.Run("median odd and even", func(t *testing.T) {
		assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
		assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	})

	t.Run("mad", func(t *testing.T) {
		// Median 5, absolute deviations {4,1,0,1,4}, MAD 1.
		assert.Equal(t, 1.0, mad([]float64{1, 4, 5, 6, 9}))
	})

	t.Run("percentile interpolates", func(t *testing.T) {
		xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		assert.InDelta(t, 1.9, Percentile(xs, 10), 1e-9)
		assert.InDelta(t, 9.1, Percentile(xs, 90), 1e-9)
		assert.Equal(t, 1.0, Percentile(xs, 0))
		assert.Equal(t, 10.0, Percentile(xs, 100))
	})
}

func TestMetricInfoFor(t *testing.T) {
	info, ok := MetricInfoFor("rmssd")
	require.True(t, ok)
	assert.Equal(t, "ms", info.Unit)
	assert.True(t, info.NonNegative)

	_, ok = MetricInfoFor("unknown")
	assert.False(t, ok)
	assert.True(t, KnownMetric("defa"))
}
