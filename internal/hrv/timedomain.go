package hrv

import "math"

// timeDomain computes the seven time-domain metrics over a cleaned series.
// The caller guarantees len(rr) >= MinIntervals.
func (c *Calculator) timeDomain(rr []float64) MetricSet {
	meanRR := mean(rr)
	sdnn := sampleStd(rr)

	diffs := successiveDiffs(rr)
	var sumSq float64
	var nn50 int
	for _, d := range diffs {
		sumSq += d * d
		if math.Abs(d) > 50 {
			nn50++
		}
	}
	var rmssd, pnn50 float64
	if len(diffs) > 0 {
		rmssd = math.Sqrt(sumSq / float64(len(diffs)))
		pnn50 = float64(nn50) / float64(len(diffs)) * 100
	}

	var cvRR, meanHR float64
	if meanRR != 0 {
		cvRR = sdnn / meanRR * 100
		meanHR = 60000 / meanRR
	}

	return MetricSet{
		CountRR: len(rr),
		MeanRR:  round2(meanRR),
		SDNN:    round2(sdnn),
		RMSSD:   round2(rmssd),
		PNN50:   round2(pnn50),
		CVRR:    round2(cvRR),
		MeanHR:  round2(meanHR),
	}
}

func successiveDiffs(rr []float64) []float64 {
	if len(rr) < 2 {
		return nil
	}
	out := make([]float64, len(rr)-1)
	for i := 1; i < len(rr); i++ {
		out[i-1] = rr[i] - rr[i-1]
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// sampleStd is the sample standard deviation (n-1 denominator).
// Series shorter than two return 0.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, v := range xs {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
