// Package baseline computes fixed-window and rolling-window reference
// statistics over a chronological series of per-session metric values:
// mean/median baselines, sample and robust standard deviations, ±1/±2 SD
// bands, per-point z-scores with direction and significance labels, and
// 10th/90th percentile bands.
//
// The engine is pure and deterministic. Missing preconditions degrade to
// omitted fields plus a warning; the only hard failure is an empty series.
package baseline

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when the input metric series is empty.
var ErrInsufficientData = errors.New("baseline: empty metric series")

// Config holds the window sizes and sample-count gates.
type Config struct {
	// FixedWindow is m, the number of most recent points in the fixed
	// baseline. Fewer available points are used as-is with a warning.
	FixedWindow int
	// RollingWindow is n, the trailing window recomputed at each index.
	RollingWindow int
	// MinBandPoints gates the SD band fields on the fixed baseline.
	MinBandPoints int
	// MinPercentilePoints gates the 10/90 percentile bands.
	MinPercentilePoints int
	// MaxSessions truncates the series to the most recent N points before
	// analysis. Zero means no cap.
	MaxSessions int
}

// DefaultConfig returns the standard analysis windows: m=14, n=7, both
// sample-count gates at 5.
func DefaultConfig() Config {
	return Config{
		FixedWindow:         14,
		RollingWindow:       7,
		MinBandPoints:       5,
		MinPercentilePoints: 5,
	}
}

// robustSDFactor scales the median absolute deviation to estimate the
// standard deviation of a normal distribution.
const robustSDFactor = 1.4826

// FixedBaseline is the reference block computed once over the most recent
// FixedWindow points. Band fields are nil below MinBandPoints.
type FixedBaseline struct {
	Count    int      `json:"count"`
	Mean     *float64 `json:"mean"`
	SD       *float64 `json:"sd"`
	Median   *float64 `json:"median"`
	SDMedian *float64 `json:"sd_median"`

	MeanMinus1SD *float64 `json:"mean_minus_1sd,omitempty"`
	MeanPlus1SD  *float64 `json:"mean_plus_1sd,omitempty"`
	MeanMinus2SD *float64 `json:"mean_minus_2sd,omitempty"`
	MeanPlus2SD  *float64 `json:"mean_plus_2sd,omitempty"`

	MedianMinus1SD *float64 `json:"median_minus_1sd,omitempty"`
	MedianPlus1SD  *float64 `json:"median_plus_1sd,omitempty"`
	MedianMinus2SD *float64 `json:"median_minus_2sd,omitempty"`
	MedianPlus2SD  *float64 `json:"median_plus_2sd,omitempty"`

	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Range *float64 `json:"range"`
}

// RollingStats is the trailing-window block attached to each point at index
// i >= n-1.
type RollingStats struct {
	WindowSize   int     `json:"window_size"`
	Mean         float64 `json:"mean"`
	SD           float64 `json:"sd"`
	MeanMinus1SD float64 `json:"mean_minus_1sd"`
	MeanPlus1SD  float64 `json:"mean_plus_1sd"`
	MeanMinus2SD float64 `json:"mean_minus_2sd"`
	MeanPlus2SD  float64 `json:"mean_plus_2sd"`
}

// Direction labels for per-point trend classification.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionFlat = "flat"
)

// Significance labels, strict thresholds: |z| > 2 significant, |z| > 1
// notable. Equality resolves to the lower bucket.
const (
	SignificanceSignificant = "significant"
	SignificanceNotable     = "notable"
	SignificanceNone        = "not significant"
)

// Trend compares one point against the fixed and rolling baselines.
// Comparison fields are nil when the corresponding baseline or its SD is
// unavailable.
type Trend struct {
	DeltaVsFixed   *float64 `json:"delta_vs_fixed"`
	PctVsFixed     *float64 `json:"pct_vs_fixed"`
	DeltaVsRolling *float64 `json:"delta_vs_rolling"`
	PctVsRolling   *float64 `json:"pct_vs_rolling"`
	ZFixed         *float64 `json:"z_fixed"`
	ZRolling       *float64 `json:"z_rolling"`
	Direction      string   `json:"direction"`
	Significance   string   `json:"significance"`
}

// PointReport is the per-point output: the value, the trailing-window stats
// when the window is full, and the trend classification.
type PointReport struct {
	Index   int           `json:"session_index"`
	Value   float64       `json:"value"`
	Rolling *RollingStats `json:"rolling_stats,omitempty"`
	Trend   Trend         `json:"trends"`
}

// SeriesReport is the full analysis of one metric's series.
type SeriesReport struct {
	Fixed        FixedBaseline `json:"fixed_baseline"`
	Points       []PointReport `json:"points"`
	Percentile10 *float64      `json:"percentile_10,omitempty"`
	Percentile90 *float64      `json:"percentile_90,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Engine computes SeriesReports under a fixed Config. Stateless and safe for
// concurrent use.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Analyze computes the full baseline report for one metric's chronological
// value series. nonNegative clamps SD band lower bounds at zero, for metrics
// that cannot go below it.
func (e *Engine) Analyze(metric string, values []float64, nonNegative bool) (SeriesReport, error) {
	if len(values) == 0 {
		return SeriesReport{}, fmt.Errorf("%w: metric %s", ErrInsufficientData, metric)
	}

	var warnings []string
	if e.cfg.MaxSessions > 0 && len(values) > e.cfg.MaxSessions {
		values = values[len(values)-e.cfg.MaxSessions:]
	}

	fixed, fixedWarnings := e.fixedBaseline(metric, values, nonNegative)
	warnings = append(warnings, fixedWarnings...)

	report := SeriesReport{
		Fixed:  fixed,
		Points: make([]PointReport, len(values)),
	}

	for i, v := range values {
		pt := PointReport{Index: i, Value: v}
		if n := e.cfg.RollingWindow; n > 0 && i >= n-1 {
			pt.Rolling = rollingStats(values[i-n+1:i+1], nonNegative)
		}
		pt.Trend = classify(v, fixed, pt.Rolling)
		report.Points[i] = pt
	}

	if len(values) >= e.cfg.MinPercentilePoints {
		p10 := Percentile(values, 10)
		p90 := Percentile(values, 90)
		report.Percentile10 = &p10
		report.Percentile90 = &p90
	} else {
		warnings = append(warnings, fmt.Sprintf(
			"%s: %d sessions below percentile minimum %d, percentile bands omitted",
			metric, len(values), e.cfg.MinPercentilePoints))
	}

	report.Warnings = warnings
	return report, nil
}

// fixedBaseline computes the reference block over the most recent FixedWindow
// points.
func (e *Engine) fixedBaseline(metric string, values []float64, nonNegative bool) (FixedBaseline, []string) {
	var warnings []string

	window := values
	if m := e.cfg.FixedWindow; m > 0 && len(values) > m {
		window = values[len(values)-m:]
	} else if m > 0 && len(values) < m {
		warnings = append(warnings, fmt.Sprintf(
			"%s: only %d sessions available for fixed baseline, requested %d",
			metric, len(values), m))
	}

	fb := FixedBaseline{Count: len(window)}

	mn := Mean(window)
	md := median(window)
	lo, hi := minMax(window)
	rng := hi - lo
	fb.Mean = &mn
	fb.Median = &md
	fb.Min = &lo
	fb.Max = &hi
	fb.Range = &rng

	if len(window) >= 2 {
		sd := SampleStd(window)
		sdMed := mad(window) * robustSDFactor
		fb.SD = &sd
		fb.SDMedian = &sdMed
	}

	if len(window) < e.cfg.MinBandPoints {
		warnings = append(warnings, fmt.Sprintf(
			"%s: %d sessions below band minimum %d, SD bands omitted",
			metric, len(window), e.cfg.MinBandPoints))
		return fb, warnings
	}

	fb.MeanMinus1SD = bandPtr(mn-*fb.SD, nonNegative)
	fb.MeanPlus1SD = ptr(mn + *fb.SD)
	fb.MeanMinus2SD = bandPtr(mn-2**fb.SD, nonNegative)
	fb.MeanPlus2SD = ptr(mn + 2**fb.SD)
	fb.MedianMinus1SD = bandPtr(md-*fb.SDMedian, nonNegative)
	fb.MedianPlus1SD = ptr(md + *fb.SDMedian)
	fb.MedianMinus2SD = bandPtr(md-2**fb.SDMedian, nonNegative)
	fb.MedianPlus2SD = ptr(md + 2**fb.SDMedian)
	return fb, warnings
}

func rollingStats(window []float64, nonNegative bool) *RollingStats {
	mn := Mean(window)
	sd := SampleStd(window)
	return &RollingStats{
		WindowSize:   len(window),
		Mean:         mn,
		SD:           sd,
		MeanMinus1SD: clampBand(mn-sd, nonNegative),
		MeanPlus1SD:  mn + sd,
		MeanMinus2SD: clampBand(mn-2*sd, nonNegative),
		MeanPlus2SD:  mn + 2*sd,
	}
}

// classify builds the per-point trend block. Direction and significance use
// the fixed z-score when available, otherwise the rolling one.
func classify(v float64, fixed FixedBaseline, rolling *RollingStats) Trend {
	t := Trend{Direction: DirectionFlat, Significance: SignificanceNone}

	if fixed.Mean != nil {
		t.DeltaVsFixed = ptr(v - *fixed.Mean)
		if *fixed.Mean != 0 {
			t.PctVsFixed = ptr((v - *fixed.Mean) / *fixed.Mean * 100)
		}
		if fixed.SD != nil && *fixed.SD > 0 {
			t.ZFixed = ptr((v - *fixed.Mean) / *fixed.SD)
		}
	}
	if rolling != nil {
		t.DeltaVsRolling = ptr(v - rolling.Mean)
		if rolling.Mean != 0 {
			t.PctVsRolling = ptr((v - rolling.Mean) / rolling.Mean * 100)
		}
		if rolling.SD > 0 {
			t.ZRolling = ptr((v - rolling.Mean) / rolling.SD)
		}
	}

	z := t.ZFixed
	if z == nil {
		z = t.ZRolling
	}
	if z == nil {
		return t
	}

	switch {
	case *z > 0:
		t.Direction = DirectionUp
	case *z < 0:
		t.Direction = DirectionDown
	}
	switch {
	case math.Abs(*z) > 2:
		t.Significance = SignificanceSignificant
	case math.Abs(*z) > 1:
		t.Significance = SignificanceNotable
	}
	return t
}

func ptr(v float64) *float64 { return &v }

func bandPtr(v float64, nonNegative bool) *float64 {
	return ptr(clampBand(v, nonNegative))
}

func clampBand(v float64, nonNegative bool) float64 {
	if nonNegative && v < 0 {
		return 0
	}
	return v
}
