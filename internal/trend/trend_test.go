package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dayPoints(values []float64) []Point {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{Timestamp: base.AddDate(0, 0, i), Value: v}
	}
	return pts
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"rest":           ModeStandalone,
		"standalone":     ModeStandalone,
		"sleep_interval": ModeSleepInterval,
		"sleep_event":    ModeSleepEventAggregate,
	}
	for s, want := range cases {
		got, err := ParseMode(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseMode("nap")
	require.Error(t, err)

	assert.Equal(t, "rest", ModeStandalone.String())
	assert.Equal(t, "sleep_interval", ModeSleepInterval.String())
	assert.Equal(t, "sleep_event", ModeSleepEventAggregate.String())
}

func TestRollingAverage(t *testing.T) {
	a := New(DefaultConfig())

	values := []float64{12.14, 5.86, 3.81, 6.23, 5.28, 1.95, 2.47, 7.10, 4.38}
	report, err := a.Analyze(ModeStandalone, dayPoints(values))
	require.NoError(t, err)

	// Window 3 over 9 points yields exactly 7, the first being the mean of
	// the first three values.
	require.Len(t, report.RollingAvg, 7)
	assert.InDelta(t, 7.27, report.RollingAvg[0].Value, 0.005)
	assert.Equal(t, report.Raw[2].Timestamp, report.RollingAvg[0].Timestamp)
	for i, p := range report.RollingAvg {
		window := values[i : i+3]
		assert.InDelta(t, (window[0]+window[1]+window[2])/3, p.Value, 1e-9)
	}
}

func TestStandaloneModeOmitsBaseline(t *testing.T) {
	a := New(DefaultConfig())

	report, err := a.Analyze(ModeStandalone, dayPoints([]float64{40, 42, 38, 45, 41, 39}))
	require.NoError(t, err)

	assert.Nil(t, report.Baseline)
	assert.Nil(t, report.SDBand)
	require.NotNil(t, report.Percentile10)
	require.NotNil(t, report.Percentile90)
	assert.LessOrEqual(t, *report.Percentile10, *report.Percentile90)
}

func TestStandaloneVsSleepIntervalDifferOnlyInOptionalFields(t *testing.T) {
	a := New(DefaultConfig())
	points := dayPoints([]float64{40, 42, 38, 45, 41, 39})

	rest, err := a.Analyze(ModeStandalone, points)
	require.NoError(t, err)
	sleep, err := a.Analyze(ModeSleepInterval, points)
	require.NoError(t, err)

	// Shared fields agree.
	assert.Equal(t, rest.Raw, sleep.Raw)
	assert.Equal(t, rest.RollingAvg, sleep.RollingAvg)
	assert.Equal(t, rest.Percentile10, sleep.Percentile10)
	assert.Equal(t, rest.Percentile90, sleep.Percentile90)

	// Only the sleep report carries a baseline and band.
	assert.Nil(t, rest.Baseline)
	assert.Nil(t, rest.SDBand)
	require.NotNil(t, sleep.Baseline)
	require.NotNil(t, sleep.SDBand)
	assert.Greater(t, sleep.SDBand.Upper, *sleep.Baseline)
	assert.Less(t, sleep.SDBand.Lower, *sleep.Baseline)
}

func TestSleepIntervalBaselineWindow(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2025, 6, 20, 23, 0, 0, 0, time.UTC)

	// Two old points fall outside the trailing 7 days and must not move the
	// baseline; the newest event has three intervals.
	points := []Point{
		{Timestamp: base.AddDate(0, 0, -20), Value: 100, EventID: "ev-old"},
		{Timestamp: base.AddDate(0, 0, -15), Value: 100, EventID: "ev-old"},
		{Timestamp: base.AddDate(0, 0, -3), Value: 40, EventID: "ev-a"},
		{Timestamp: base.Add(-2 * time.Hour), Value: 44, EventID: "ev-b"},
		{Timestamp: base.Add(-1 * time.Hour), Value: 46, EventID: "ev-b"},
		{Timestamp: base, Value: 42, EventID: "ev-b"},
	}

	report, err := a.Analyze(ModeSleepInterval, points)
	require.NoError(t, err)

	// Raw holds only the most recent event's intervals.
	require.Len(t, report.Raw, 3)
	for _, p := range report.Raw {
		assert.Equal(t, "ev-b", p.EventID)
	}

	// Baseline is the mean of the four in-window points (40, 44, 46, 42).
	require.NotNil(t, report.Baseline)
	assert.InDelta(t, 43.0, *report.Baseline, 1e-9)
	require.NotNil(t, report.SDBand)
}

func TestSleepEventAggregate(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)

	var points []Point
	// Eight events, each with two intervals averaging 40+i.
	for i := 0; i < 8; i++ {
		start := base.AddDate(0, 0, i)
		id := string(rune('a' + i))
		points = append(points,
			Point{Timestamp: start, Value: float64(40 + i - 1), EventID: id},
			Point{Timestamp: start.Add(time.Hour), Value: float64(40 + i + 1), EventID: id},
		)
	}

	report, err := a.Analyze(ModeSleepEventAggregate, points)
	require.NoError(t, err)

	// One aggregated point per event, at the event's first timestamp.
	require.Len(t, report.Raw, 8)
	for i, p := range report.Raw {
		assert.InDelta(t, float64(40+i), p.Value, 1e-9)
		assert.Equal(t, base.AddDate(0, 0, i), p.Timestamp)
	}

	// Baseline is the mean of the last 7 event means: 41..47.
	require.NotNil(t, report.Baseline)
	assert.InDelta(t, 44.0, *report.Baseline, 1e-9)
	require.NotNil(t, report.SDBand)
	require.NotNil(t, report.Percentile10)
}

func TestSleepEventAggregateTooFewEvents(t *testing.T) {
	a := New(DefaultConfig())

	points := []Point{
		{Timestamp: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC), Value: 40, EventID: "a"},
		{Timestamp: time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC), Value: 42, EventID: "b"},
	}
	report, err := a.Analyze(ModeSleepEventAggregate, points)
	require.NoError(t, err)

	assert.Nil(t, report.Baseline)
	assert.Nil(t, report.SDBand)
	assert.Nil(t, report.Percentile10)
	assert.NotEmpty(t, report.Warnings)
}

func TestAnalyzeSortsUnsortedInput(t *testing.T) {
	a := New(DefaultConfig())
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	points := []Point{
		{Timestamp: base.AddDate(0, 0, 2), Value: 3},
		{Timestamp: base, Value: 1},
		{Timestamp: base.AddDate(0, 0, 1), Value: 2},
	}
	report, err := a.Analyze(ModeStandalone, points)
	require.NoError(t, err)

	require.Len(t, report.Raw, 3)
	assert.Equal(t, 1.0, report.Raw[0].Value)
	assert.Equal(t, 2.0, report.Raw[1].Value)
	assert.Equal(t, 3.0, report.Raw[2].Value)
	// Input slice order is untouched.
	assert.Equal(t, 3.0, points[0].Value)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := New(DefaultConfig())
	for _, mode := range []Mode{ModeStandalone, ModeSleepInterval, ModeSleepEventAggregate} {
		report, err := a.Analyze(mode, nil)
		require.NoError(t, err, mode)
		assert.NotNil(t, report.Raw, mode)
		assert.Empty(t, report.Raw, mode)
		assert.Nil(t, report.Baseline, mode)
	}
}

func TestUnknownModeRejected(t *testing.T) {
	a := New(DefaultConfig())
	_, err := a.Analyze(Mode(99), dayPoints([]float64{1, 2, 3}))
	require.Error(t, err)
}
