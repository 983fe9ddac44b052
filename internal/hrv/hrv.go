// Package hrv computes the canonical heart-rate-variability metric set for a
// single recording of RR intervals (beat-to-beat times, milliseconds).
//
// The metric set has nine fields: count_rr, mean_rr, sdnn, rmssd, pnn50,
// cv_rr, mean_hr, defa (DFA α1) and sd2_sd1 (Poincaré ratio). Time-domain
// metrics are computed or not at all: a recording with fewer than ten valid
// intervals fails with ErrInsufficientData. The nonlinear metrics never fail —
// below their sample thresholds or on numerical instability they degrade to
// documented fallback constants, flagged on the metric set so a consumer can
// tell a computed value from a default.
package hrv

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a cleaned RR series has too few
// intervals for trustworthy time-domain metrics.
var ErrInsufficientData = errors.New("hrv: insufficient valid RR intervals")

// Config holds validation bounds and nonlinear fallback constants.
// The fallbacks are engineering placeholders for "cannot compute", not
// physiological claims.
type Config struct {
	// MinIntervals is the minimum cleaned series length for any computation.
	MinIntervals int
	// MinRR and MaxRR bound plausible intervals, exclusive on both ends.
	// 200 ms ≈ 300 bpm, 2000 ms ≈ 30 bpm.
	MinRR float64
	MaxRR float64

	// DFAMinIntervals is the minimum series length for DFA α1.
	DFAMinIntervals int
	// DFAFallback is substituted when DFA cannot be computed.
	DFAFallback float64
	// DFAClampMin and DFAClampMax bound the reported exponent.
	DFAClampMin float64
	DFAClampMax float64

	// PoincareMinIntervals is the minimum series length for SD2/SD1.
	PoincareMinIntervals int
	// PoincareFallback is substituted when the ratio cannot be computed.
	PoincareFallback float64
	// PoincareClampMin and PoincareClampMax bound the reported ratio.
	PoincareClampMin float64
	PoincareClampMax float64
}

// DefaultConfig returns the standard analysis configuration.
func DefaultConfig() Config {
	return Config{
		MinIntervals:         10,
		MinRR:                200,
		MaxRR:                2000,
		DFAMinIntervals:      50,
		DFAFallback:          1.0,
		DFAClampMin:          0.3,
		DFAClampMax:          2.0,
		PoincareMinIntervals: 10,
		PoincareFallback:     2.0,
		PoincareClampMin:     0.5,
		PoincareClampMax:     10.0,
	}
}

// MetricSet is the canonical nine-metric record for one recording.
// Values are rounded for presentation stability: time-domain metrics and the
// Poincaré ratio to 2 decimals, DFA α1 to 4.
type MetricSet struct {
	CountRR int     `json:"count_rr"`
	MeanRR  float64 `json:"mean_rr"`  // ms
	SDNN    float64 `json:"sdnn"`     // ms
	RMSSD   float64 `json:"rmssd"`    // ms
	PNN50   float64 `json:"pnn50"`    // %
	CVRR    float64 `json:"cv_rr"`    // %
	MeanHR  float64 `json:"mean_hr"`  // bpm
	DFA     float64 `json:"defa"`     // α1, unitless
	SD2SD1  float64 `json:"sd2_sd1"`  // unitless

	// DFAFallback and SD2SD1Fallback are true when the corresponding value is
	// the configured fallback constant rather than a computed result.
	DFAFallback    bool `json:"defa_fallback"`
	SD2SD1Fallback bool `json:"sd2_sd1_fallback"`
}

// Calculator computes metric sets under a fixed Config.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a Calculator with the given configuration.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Config returns the calculator's configuration.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Compute validates raw RR intervals and assembles the full metric set.
// The only error path is validation: once a series passes Clean, the
// nonlinear analyzers degrade to fallbacks instead of failing.
func (c *Calculator) Compute(raw []float64) (MetricSet, error) {
	rr, err := c.Clean(raw)
	if err != nil {
		return MetricSet{}, err
	}

	m := c.timeDomain(rr)
	m.DFA, m.DFAFallback = c.dfaAlpha1(rr)
	m.SD2SD1, m.SD2SD1Fallback = c.poincareRatio(rr)
	return m, nil
}

// Clean discards non-finite values and values outside (MinRR, MaxRR),
// preserving the relative order of survivors. It fails when fewer than
// MinIntervals values survive.
func (c *Calculator) Clean(raw []float64) ([]float64, error) {
	cleaned := make([]float64, 0, len(raw))
	for _, v := range raw {
		if !isFinite(v) || v <= c.cfg.MinRR || v >= c.cfg.MaxRR {
			continue
		}
		cleaned = append(cleaned, v)
	}
	if len(cleaned) < c.cfg.MinIntervals {
		return nil, fmt.Errorf("%w: %d of %d intervals valid, need %d",
			ErrInsufficientData, len(cleaned), len(raw), c.cfg.MinIntervals)
	}
	return cleaned, nil
}
