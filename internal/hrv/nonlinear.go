package hrv

import (
	"math"
	"sort"
)

// dfaAlpha1 computes the short-term detrended fluctuation exponent over box
// sizes 4..min(n/4, 64). The second return is true when the configured
// fallback was substituted; the exponent itself is clamped to the configured
// range and rounded to 4 decimals.
func (c *Calculator) dfaAlpha1(rr []float64) (float64, bool) {
	n := len(rr)
	if n < c.cfg.DFAMinIntervals {
		return c.cfg.DFAFallback, true
	}

	// Integrated, mean-centered profile.
	m := mean(rr)
	profile := make([]float64, n)
	var cum float64
	for i, v := range rr {
		cum += v - m
		profile[i] = cum
	}

	nMax := n / 4
	if nMax > 64 {
		nMax = 64
	}
	const nMin = 4
	if nMax <= nMin {
		return c.cfg.DFAFallback, true
	}

	var logScales, logFlucts []float64
	for _, scale := range logSpacedInts(nMin, nMax, 10) {
		boxes := n / scale
		if boxes < 2 {
			continue
		}
		var sum float64
		for b := 0; b < boxes; b++ {
			sum += detrendRMS(profile[b*scale : (b+1)*scale])
		}
		f := sum / float64(boxes)
		ls, lf := math.Log10(float64(scale)), math.Log10(f)
		if !isFinite(ls) || !isFinite(lf) {
			continue
		}
		logScales = append(logScales, ls)
		logFlucts = append(logFlucts, lf)
	}
	if len(logFlucts) < 3 {
		return c.cfg.DFAFallback, true
	}

	alpha, ok := regressionSlope(logScales, logFlucts)
	if !ok || !isFinite(alpha) {
		return c.cfg.DFAFallback, true
	}
	return round4(clamp(alpha, c.cfg.DFAClampMin, c.cfg.DFAClampMax)), false
}

// poincareRatio computes SD2/SD1 from the Poincaré plot of successive
// interval pairs. SD1 captures short-term variability (difference axis),
// SD2 long-term (sum axis).
func (c *Calculator) poincareRatio(rr []float64) (float64, bool) {
	if len(rr) < c.cfg.PoincareMinIntervals {
		return c.cfg.PoincareFallback, true
	}

	diffs := make([]float64, len(rr)-1)
	sums := make([]float64, len(rr)-1)
	for i := 1; i < len(rr); i++ {
		diffs[i-1] = rr[i] - rr[i-1]
		sums[i-1] = rr[i] + rr[i-1]
	}

	sd1 := sampleStd(diffs) / math.Sqrt2
	sd2 := sampleStd(sums) / math.Sqrt2
	if sd1 <= 0 || !isFinite(sd1) || !isFinite(sd2) {
		return c.cfg.PoincareFallback, true
	}
	return round2(clamp(sd2/sd1, c.cfg.PoincareClampMin, c.cfg.PoincareClampMax)), false
}

// logSpacedInts returns count log-spaced integers in [lo, hi], truncated and
// deduplicated. Truncation of the first point can land just below lo on some
// platforms; it is pinned back to lo.
func logSpacedInts(lo, hi, count int) []int {
	logLo, logHi := math.Log10(float64(lo)), math.Log10(float64(hi))
	seen := make(map[int]struct{}, count)
	out := make([]int, 0, count)
	for i := 0; i < count; i++ {
		exp := logLo + (logHi-logLo)*float64(i)/float64(count-1)
		v := int(math.Pow(10, exp))
		// Truncation can miss the exact endpoints by one ulp.
		switch {
		case i == 0 || v < lo:
			v = lo
		case i == count-1:
			v = hi
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// detrendRMS fits a least-squares line to the segment and returns the RMS of
// the residuals.
func detrendRMS(seg []float64) float64 {
	n := float64(len(seg))
	var sx, sy, sxx, sxy float64
	for i, v := range seg {
		x := float64(i)
		sx += x
		sy += v
		sxx += x * x
		sxy += x * v
	}
	den := n*sxx - sx*sx
	var slope, intercept float64
	if den != 0 {
		slope = (n*sxy - sx*sy) / den
		intercept = (sy - slope*sx) / n
	} else {
		intercept = sy / n
	}
	var ss float64
	for i, v := range seg {
		r := v - (intercept + slope*float64(i))
		ss += r * r
	}
	return math.Sqrt(ss / n)
}

// regressionSlope returns the least-squares slope of y on x, failing when the
// x values are degenerate.
func regressionSlope(x, y []float64) (float64, bool) {
	n := float64(len(x))
	var sx, sy, sxx, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, false
	}
	return (n*sxy - sx*sy) / den, true
}
