package baseline

// MetricInfo describes a metric for baseline analysis and presentation.
type MetricInfo struct {
	Name        string
	Label       string
	Unit        string
	NonNegative bool
}

// metricTable is the closed set of analyzable metrics. It is populated once
// and never mutated; callers get copies through MetricInfoFor.
var metricTable = map[string]MetricInfo{
	"mean_rr": {Name: "mean_rr", Label: "Mean RR", Unit: "ms", NonNegative: true},
	"sdnn":    {Name: "sdnn", Label: "SDNN", Unit: "ms", NonNegative: true},
	"rmssd":   {Name: "rmssd", Label: "RMSSD", Unit: "ms", NonNegative: true},
	"pnn50":   {Name: "pnn50", Label: "pNN50", Unit: "%", NonNegative: true},
	"cv_rr":   {Name: "cv_rr", Label: "CV RR", Unit: "%", NonNegative: true},
	"mean_hr": {Name: "mean_hr", Label: "Mean HR", Unit: "bpm", NonNegative: true},
	"defa":    {Name: "defa", Label: "DFA α1", Unit: "", NonNegative: true},
	"sd2_sd1": {Name: "sd2_sd1", Label: "SD2/SD1", Unit: "", NonNegative: true},
}

// MetricInfoFor returns the metadata for a metric name. The second return is
// false for unknown metrics.
func MetricInfoFor(name string) (MetricInfo, bool) {
	info, ok := metricTable[name]
	return info, ok
}

// KnownMetric reports whether name is an analyzable metric.
func KnownMetric(name string) bool {
	_, ok := metricTable[name]
	return ok
}
