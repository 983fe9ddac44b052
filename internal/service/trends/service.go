// Package trends composes stored metric series with the baseline and trend
// engines to build the analytics reports served over HTTP.
//
// Concurrent identical report requests are collapsed with singleflight: the
// report is deterministic for a given parameter set until the next upload, so
// duplicate in-flight work is wasted work.
package trends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/mirzafarangi/hrvbrain/internal/baseline"
	"github.com/mirzafarangi/hrvbrain/internal/model"
	"github.com/mirzafarangi/hrvbrain/internal/storage"
	"github.com/mirzafarangi/hrvbrain/internal/telemetry"
	"github.com/mirzafarangi/hrvbrain/internal/trend"
)

// ErrUnknownMetric is returned when a requested metric is not analyzable.
var ErrUnknownMetric = errors.New("trends: unknown metric")

// MetricSource provides chronological metric series. *storage.DB satisfies it.
type MetricSource interface {
	MetricSeries(ctx context.Context, userID uuid.UUID, tag model.Tag, metric string) ([]storage.MetricPoint, error)
}

// Config carries the default analysis windows. Request parameters override
// the windows per call; zero values fall back to these.
type Config struct {
	FixedWindow        int // m
	RollingWindow      int // n
	TrendWindow        int
	MinPercentilePoints int
	MaxSessionsDefault int
}

// Service builds baseline and trend reports from stored sessions.
type Service struct {
	store  MetricSource
	cfg    Config
	logger *slog.Logger

	group          singleflight.Group
	reportDuration metric.Float64Histogram
}

// New creates a trends Service.
func New(store MetricSource, cfg Config, logger *slog.Logger) *Service {
	meter := telemetry.Meter("hrvbrain/trends")
	dur, _ := meter.Float64Histogram("hrvbrain.report.duration",
		metric.WithDescription("Time to build an analytics report (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		store:          store,
		cfg:            cfg,
		logger:         logger,
		reportDuration: dur,
	}
}

// BaselineParams selects the series and windows for a baseline report.
// Zero window values use the service defaults.
type BaselineParams struct {
	Tag         model.Tag
	Metrics     []string
	FixedWindow int
	RollingWindow int
	MaxSessions int
}

// Baseline builds the fixed + per-session rolling baseline report for the
// requested metrics. Concurrent identical requests share one computation.
func (s *Service) Baseline(ctx context.Context, userID uuid.UUID, params BaselineParams) (model.BaselineReport, error) {
	m := params.FixedWindow
	if m <= 0 {
		m = s.cfg.FixedWindow
	}
	n := params.RollingWindow
	if n <= 0 {
		n = s.cfg.RollingWindow
	}
	maxSessions := params.MaxSessions
	if maxSessions <= 0 {
		maxSessions = s.cfg.MaxSessionsDefault
	}

	key := fmt.Sprintf("baseline:%s:%s:%s:%d:%d:%d",
		userID, params.Tag, strings.Join(params.Metrics, ","), m, n, maxSessions)

	start := time.Now()
	v, err, shared := s.group.Do(key, func() (any, error) {
		// singleflight reuses the first caller's context; a canceled
		// duplicate must not abort the shared computation.
		return s.buildBaseline(context.WithoutCancel(ctx), userID, params.Tag, params.Metrics, m, n, maxSessions)
	})
	s.reportDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return model.BaselineReport{}, err
	}
	if shared {
		s.logger.Debug("baseline report shared across concurrent requests", "key", key)
	}
	return v.(model.BaselineReport), nil
}

// metricBlock is the per-metric fixed baseline entry on the wire.
type metricBlock struct {
	baseline.FixedBaseline
	Percentile10 *float64 `json:"percentile_10,omitempty"`
	Percentile90 *float64 `json:"percentile_90,omitempty"`
	Label        string   `json:"label"`
	Unit         string   `json:"unit,omitempty"`
}

func (s *Service) buildBaseline(ctx context.Context, userID uuid.UUID, tag model.Tag, metrics []string, m, n, maxSessions int) (model.BaselineReport, error) {
	report := model.BaselineReport{
		UserID:           userID,
		Tag:              tag,
		Metrics:          metrics,
		MPointsRequested: m,
		NPointsRequested: n,
		UpdatedAt:        time.Now().UTC(),
		FixedBaseline:    map[string]any{},
		DynamicBaseline:  []model.BaselineSessionEntry{},
		Warnings:         []string{},
		Notes: model.BaselineNotes{
			Method:               "mean and median baselines with sample SD and MAD-based robust SD",
			Bands:                "±1 and ±2 SD around mean and median",
			InsufficientBandRule: "band fields omitted below 5 sessions",
		},
	}

	eng := baseline.New(baseline.Config{
		FixedWindow:         m,
		RollingWindow:       n,
		MinBandPoints:       baseline.DefaultConfig().MinBandPoints,
		MinPercentilePoints: s.minPercentilePoints(),
	})

	var entries []model.BaselineSessionEntry
	for _, name := range metrics {
		info, ok := baseline.MetricInfoFor(name)
		if !ok {
			return model.BaselineReport{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}

		points, err := s.store.MetricSeries(ctx, userID, tag, name)
		if err != nil {
			return model.BaselineReport{}, fmt.Errorf("trends: load series for %s: %w", name, err)
		}

		report.TotalSessions = len(points)
		if maxSessions > 0 && len(points) > maxSessions {
			points = points[len(points)-maxSessions:]
			report.MaxSessionsApplied = &maxSessions
		}

		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}

		series, err := eng.Analyze(name, values, info.NonNegative)
		if err != nil {
			return model.BaselineReport{}, fmt.Errorf("trends: %w", err)
		}

		report.FixedBaseline[name] = metricBlock{
			FixedBaseline: series.Fixed,
			Percentile10:  series.Percentile10,
			Percentile90:  series.Percentile90,
			Label:         info.Label,
			Unit:          info.Unit,
		}
		report.Warnings = append(report.Warnings, series.Warnings...)

		if report.MPointsActual == 0 {
			report.MPointsActual = series.Fixed.Count
			report.NPointsActual = n
			if len(values) < n {
				report.NPointsActual = len(values)
			}
		}

		// All metric series come from the same WHERE clause, so they share
		// session identity and ordering. Rows are created from the first
		// metric and annotated by the rest.
		if entries == nil {
			entries = make([]model.BaselineSessionEntry, len(points))
			for i, p := range points {
				entries[i] = model.BaselineSessionEntry{
					SessionID:       p.SessionID,
					Timestamp:       p.RecordedAt,
					DurationMinutes: p.DurationMinutes,
					SessionIndex:    i,
					Metrics:         map[string]float64{},
					RollingStats:    map[string]any{},
					Trends:          map[string]any{},
					Flags:           []string{},
					Tags:            []string{string(tag)},
				}
			}
		}
		for i, pt := range series.Points {
			if i >= len(entries) {
				break
			}
			entries[i].Metrics[name] = pt.Value
			if pt.Rolling != nil {
				entries[i].RollingStats[name] = pt.Rolling
			}
			entries[i].Trends[name] = pt.Trend
			if pt.Trend.Significance == baseline.SignificanceSignificant {
				entries[i].Flags = append(entries[i].Flags,
					fmt.Sprintf("%s %s (%s)", name, pt.Trend.Direction, pt.Trend.Significance))
			}
		}
	}

	if entries != nil {
		report.DynamicBaseline = entries
	}
	return report, nil
}

// TrendParams selects the series and mode for a trend report.
type TrendParams struct {
	Metric string
	Mode   trend.Mode
}

// Trend builds the mode-dependent trend report for one metric. Rest mode
// reads rest sessions; both sleep modes read sleep sessions.
func (s *Service) Trend(ctx context.Context, userID uuid.UUID, params TrendParams) (trend.Report, error) {
	if !baseline.KnownMetric(params.Metric) {
		return trend.Report{}, fmt.Errorf("%w: %q", ErrUnknownMetric, params.Metric)
	}

	tag := model.TagRest
	if params.Mode == trend.ModeSleepInterval || params.Mode == trend.ModeSleepEventAggregate {
		tag = model.TagSleep
	}

	key := fmt.Sprintf("trend:%s:%s:%s", userID, params.Metric, params.Mode)

	start := time.Now()
	v, err, _ := s.group.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		points, err := s.store.MetricSeries(ctx, userID, tag, params.Metric)
		if err != nil {
			return nil, fmt.Errorf("trends: load series for %s: %w", params.Metric, err)
		}

		agg := trend.New(trend.Config{
			RollingWindow:         s.trendWindow(),
			MinPercentileSessions: s.minPercentilePoints(),
			BaselineDays:          trend.DefaultConfig().BaselineDays,
			BaselineEvents:        trend.DefaultConfig().BaselineEvents,
		})
		return agg.Analyze(params.Mode, toTrendPoints(points))
	})
	s.reportDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return trend.Report{}, err
	}
	return v.(trend.Report), nil
}

func (s *Service) minPercentilePoints() int {
	if s.cfg.MinPercentilePoints > 0 {
		return s.cfg.MinPercentilePoints
	}
	return baseline.DefaultConfig().MinPercentilePoints
}

func (s *Service) trendWindow() int {
	if s.cfg.TrendWindow > 0 {
		return s.cfg.TrendWindow
	}
	return trend.DefaultConfig().RollingWindow
}

func toTrendPoints(points []storage.MetricPoint) []trend.Point {
	out := make([]trend.Point, len(points))
	for i, p := range points {
		tp := trend.Point{Timestamp: p.RecordedAt, Value: p.Value}
		if p.EventID != nil {
			tp.EventID = p.EventID.String()
		}
		out[i] = tp
	}
	return out
}
