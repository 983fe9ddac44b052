// Package trend builds longitudinal trend reports from per-session metric
// points. Three analysis modes exist: standalone (rest) sessions, the
// intervals of the most recent sleep event, and one aggregated point per
// sleep event. All modes share a trailing rolling average and percentile
// bands; the sleep modes add a reference baseline with a ±1 SD band.
//
// Optional report fields are pointers with omitempty so that "insufficient
// data" serializes as an absent key, never a null or zero.
package trend

import (
	"fmt"
	"sort"
	"time"

	"github.com/mirzafarangi/hrvbrain/internal/baseline"
)

// Mode selects the analysis strategy. It is a closed set; Analyze rejects
// values outside it.
type Mode int

const (
	// ModeStandalone analyzes independent rest sessions with no baseline.
	ModeStandalone Mode = iota
	// ModeSleepInterval analyzes the intervals of the most recent sleep
	// event against a trailing 7-day sleep baseline.
	ModeSleepInterval
	// ModeSleepEventAggregate analyzes one mean point per sleep event
	// against a baseline of the last 7 events.
	ModeSleepEventAggregate
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStandalone:
		return "rest"
	case ModeSleepInterval:
		return "sleep_interval"
	case ModeSleepEventAggregate:
		return "sleep_event"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a wire name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "rest", "standalone":
		return ModeStandalone, nil
	case "sleep_interval":
		return ModeSleepInterval, nil
	case "sleep_event", "sleep_event_aggregate":
		return ModeSleepEventAggregate, nil
	default:
		return 0, fmt.Errorf("trend: unknown mode %q", s)
	}
}

// Point is one metric value on the timeline. EventID groups interval points
// belonging to one sleep event; empty means standalone.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	EventID   string    `json:"event_id,omitempty"`
}

// Band is a symmetric interval around a baseline.
type Band struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// Report is the mode-dependent trend output. Raw is always present (possibly
// empty); every other field is omitted when its preconditions are unmet.
type Report struct {
	Raw          []Point  `json:"raw"`
	RollingAvg   []Point  `json:"rolling_avg,omitempty"`
	Baseline     *float64 `json:"baseline,omitempty"`
	SDBand       *Band    `json:"sd_band,omitempty"`
	Percentile10 *float64 `json:"percentile_10,omitempty"`
	Percentile90 *float64 `json:"percentile_90,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Config holds the window sizes shared by all modes.
type Config struct {
	// RollingWindow is the trailing average window.
	RollingWindow int
	// MinPercentileSessions gates the percentile bands.
	MinPercentileSessions int
	// BaselineDays is the trailing window for the sleep-interval baseline.
	BaselineDays int
	// BaselineEvents is the event count for the sleep-event baseline.
	BaselineEvents int
}

// DefaultConfig returns the standard windows: rolling 3, percentile gate 5,
// 7-day and 7-event baselines.
func DefaultConfig() Config {
	return Config{
		RollingWindow:         3,
		MinPercentileSessions: 5,
		BaselineDays:          7,
		BaselineEvents:        7,
	}
}

// Aggregator routes point series through the mode-specific analysis.
// Stateless and safe for concurrent use.
type Aggregator struct {
	cfg Config
}

// New creates an Aggregator.
func New(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Config returns the aggregator's configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Analyze produces the trend report for the given mode. Points are sorted by
// timestamp before any windowed computation; the input slice is not modified.
func (a *Aggregator) Analyze(mode Mode, points []Point) (Report, error) {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	switch mode {
	case ModeStandalone:
		return a.analyzeStandalone(sorted), nil
	case ModeSleepInterval:
		return a.analyzeSleepInterval(sorted), nil
	case ModeSleepEventAggregate:
		return a.analyzeSleepEvents(sorted), nil
	default:
		return Report{}, fmt.Errorf("trend: unknown mode %d", int(mode))
	}
}

// analyzeStandalone has no baseline and no SD band by design: rest sessions
// are independent measurements, not intervals of one physiological episode.
func (a *Aggregator) analyzeStandalone(points []Point) Report {
	report := Report{Raw: points}
	if report.Raw == nil {
		report.Raw = []Point{}
	}
	report.RollingAvg = a.rollingAvg(points)
	a.addPercentiles(&report, values(points))
	return report
}

func (a *Aggregator) analyzeSleepInterval(points []Point) Report {
	report := Report{Raw: []Point{}}
	if len(points) == 0 {
		return report
	}

	newest := points[len(points)-1]

	// Raw series: intervals of the most recent event only.
	for _, p := range points {
		if p.EventID == newest.EventID {
			report.Raw = append(report.Raw, p)
		}
	}
	report.RollingAvg = a.rollingAvg(report.Raw)

	// Baseline window: all sleep points within the trailing BaselineDays,
	// anchored at the newest point so reports are reproducible.
	cutoff := newest.Timestamp.AddDate(0, 0, -a.cfg.BaselineDays)
	var window []float64
	for _, p := range points {
		if !p.Timestamp.Before(cutoff) {
			window = append(window, p.Value)
		}
	}
	if len(window) > 0 {
		b := baseline.Mean(window)
		report.Baseline = &b
		if len(window) >= 2 {
			sd := baseline.SampleStd(window)
			report.SDBand = &Band{Upper: b + sd, Lower: b - sd}
		} else {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("fewer than 2 sleep points in trailing %d days, sd band omitted", a.cfg.BaselineDays))
		}
	}

	a.addPercentiles(&report, values(report.Raw))
	return report
}

func (a *Aggregator) analyzeSleepEvents(points []Point) Report {
	report := Report{Raw: aggregateEvents(points)}
	if len(report.Raw) == 0 {
		return report
	}
	report.RollingAvg = a.rollingAvg(report.Raw)

	eventValues := values(report.Raw)
	if len(eventValues) >= a.cfg.BaselineEvents {
		window := eventValues[len(eventValues)-a.cfg.BaselineEvents:]
		b := baseline.Mean(window)
		sd := baseline.SampleStd(window)
		report.Baseline = &b
		report.SDBand = &Band{Upper: b + sd, Lower: b - sd}
	} else {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d events below baseline minimum %d, baseline omitted",
				len(eventValues), a.cfg.BaselineEvents))
	}

	a.addPercentiles(&report, eventValues)
	return report
}

// rollingAvg computes the trailing-window mean series: for input length L and
// window w it yields exactly L-w+1 points, each stamped with the timestamp of
// the window's last point.
func (a *Aggregator) rollingAvg(points []Point) []Point {
	w := a.cfg.RollingWindow
	if w <= 0 || len(points) < w {
		return nil
	}
	out := make([]Point, 0, len(points)-w+1)
	for i := w - 1; i < len(points); i++ {
		var sum float64
		for j := i - w + 1; j <= i; j++ {
			sum += points[j].Value
		}
		out = append(out, Point{
			Timestamp: points[i].Timestamp,
			Value:     sum / float64(w),
			EventID:   points[i].EventID,
		})
	}
	return out
}

func (a *Aggregator) addPercentiles(report *Report, vals []float64) {
	if len(vals) >= a.cfg.MinPercentileSessions {
		p10 := baseline.Percentile(vals, 10)
		p90 := baseline.Percentile(vals, 90)
		report.Percentile10 = &p10
		report.Percentile90 = &p90
		return
	}
	report.Warnings = append(report.Warnings,
		fmt.Sprintf("%d points below percentile minimum %d, percentile bands omitted",
			len(vals), a.cfg.MinPercentileSessions))
}

// aggregateEvents collapses interval points into one point per event: the
// event mean, stamped with the event's first timestamp. Points without an
// event id each count as their own event. Event order follows the first
// appearance of each event in the sorted input.
func aggregateEvents(points []Point) []Point {
	if len(points) == 0 {
		return []Point{}
	}

	type acc struct {
		first time.Time
		sum   float64
		n     int
	}
	var order []string
	byEvent := make(map[string]*acc)
	var singles []Point

	for _, p := range points {
		if p.EventID == "" {
			singles = append(singles, p)
			continue
		}
		a, ok := byEvent[p.EventID]
		if !ok {
			a = &acc{first: p.Timestamp}
			byEvent[p.EventID] = a
			order = append(order, p.EventID)
		}
		a.sum += p.Value
		a.n++
	}

	out := make([]Point, 0, len(order)+len(singles))
	for _, id := range order {
		a := byEvent[id]
		out = append(out, Point{Timestamp: a.first, Value: a.sum / float64(a.n), EventID: id})
	}
	out = append(out, singles...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
