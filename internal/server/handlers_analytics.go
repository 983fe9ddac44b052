package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mirzafarangi/hrvbrain/internal/baseline"
	"github.com/mirzafarangi/hrvbrain/internal/ctxutil"
	"github.com/mirzafarangi/hrvbrain/internal/model"
	"github.com/mirzafarangi/hrvbrain/internal/service/trends"
	"github.com/mirzafarangi/hrvbrain/internal/trend"
)

// defaultBaselineMetrics is the metric set analyzed when the request omits
// the metrics parameter.
var defaultBaselineMetrics = []string{"rmssd", "sdnn", "sd2_sd1", "mean_hr"}

// HandleBaseline handles GET /v1/analytics/baseline.
//
// Query parameters: metrics (comma-separated), tag (default rest), m, n,
// max_sessions (window overrides, service defaults when omitted).
func (h *Handlers) HandleBaseline(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	q := r.URL.Query()

	metrics := defaultBaselineMetrics
	if raw := q.Get("metrics"); raw != "" {
		metrics = nil
		for _, m := range strings.Split(raw, ",") {
			m = strings.TrimSpace(m)
			if m != "" {
				metrics = append(metrics, m)
			}
		}
	}
	if len(metrics) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "metrics must not be empty")
		return
	}

	tag := model.TagRest
	if t := q.Get("tag"); t != "" {
		tag = model.Tag(t)
		if !model.ValidTag(tag) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown tag "+t)
			return
		}
	}

	report, err := h.trendsSvc.Baseline(r.Context(), userID, trends.BaselineParams{
		Tag:           tag,
		Metrics:       metrics,
		FixedWindow:   queryInt(r, "m", 0),
		RollingWindow: queryInt(r, "n", 0),
		MaxSessions:   queryInt(r, "max_sessions", 0),
	})
	if err != nil {
		switch {
		case errors.Is(err, trends.ErrUnknownMetric):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		case errors.Is(err, baseline.ErrInsufficientData):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no processed sessions for the requested tag and metrics")
		default:
			h.writeInternalError(w, r, "failed to build baseline report", err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// HandleTrend handles GET /v1/analytics/trend.
//
// Query parameters: metric (required), mode (rest, sleep_interval,
// sleep_event).
func (h *Handlers) HandleTrend(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())
	q := r.URL.Query()

	metric := q.Get("metric")
	if metric == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "metric is required")
		return
	}

	modeName := q.Get("mode")
	if modeName == "" {
		modeName = "rest"
	}
	mode, err := trend.ParseMode(modeName)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	report, err := h.trendsSvc.Trend(r.Context(), userID, trends.TrendParams{
		Metric: metric,
		Mode:   mode,
	})
	if err != nil {
		if errors.Is(err, trends.ErrUnknownMetric) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeInternalError(w, r, "failed to build trend report", err)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}
