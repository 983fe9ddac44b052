package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxRRIntervals caps one upload's interval count. A multi-hour recording at
// high heart rate stays well under this; anything larger is caller error.
const MaxRRIntervals = 50000

// MinRRWarningCount is the threshold below which an upload is accepted with a
// quality warning. The hard minimum lives in the metrics engine.
const MinRRWarningCount = 30

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// CreateSessionRequest is the request body for POST /v1/sessions.
type CreateSessionRequest struct {
	SessionID       uuid.UUID  `json:"session_id"`
	UserID          uuid.UUID  `json:"-"` // Set from JWT claims, not from request body.
	Tag             Tag        `json:"tag"`
	Subtag          string     `json:"subtag,omitempty"`
	EventID         *uuid.UUID `json:"event_id,omitempty"`
	RecordedAt      time.Time  `json:"recorded_at"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	RRIntervals     []float64  `json:"rr_intervals"`
}

// Validate checks structural requirements and returns non-fatal quality
// warnings. A low interval count is a warning here; the hard gate belongs to
// the metrics engine.
func (r *CreateSessionRequest) Validate() ([]string, error) {
	if r.SessionID == uuid.Nil {
		return nil, fmt.Errorf("session_id is required")
	}
	if !ValidTag(r.Tag) {
		return nil, fmt.Errorf("invalid tag %q", r.Tag)
	}
	if r.Tag == TagSleep && r.EventID == nil {
		return nil, fmt.Errorf("event_id is required for sleep sessions")
	}
	if r.RecordedAt.IsZero() {
		return nil, fmt.Errorf("recorded_at is required")
	}
	if len(r.RRIntervals) == 0 {
		return nil, fmt.Errorf("rr_intervals must not be empty")
	}
	if len(r.RRIntervals) > MaxRRIntervals {
		return nil, fmt.Errorf("rr_intervals exceeds maximum of %d values", MaxRRIntervals)
	}
	if r.DurationMinutes < 0 {
		return nil, fmt.Errorf("duration_minutes must not be negative")
	}

	var warnings []string
	if len(r.RRIntervals) < MinRRWarningCount {
		warnings = append(warnings, fmt.Sprintf(
			"low RR interval count (%d < %d), metrics may be unreliable",
			len(r.RRIntervals), MinRRWarningCount))
	}
	return warnings, nil
}

// CreateSessionResponse is the response for POST /v1/sessions. Idempotent
// replays return the stored response unchanged.
type CreateSessionResponse struct {
	Session Session `json:"session"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BaselineReport is the response for GET /v1/analytics/baseline. Per-metric
// blocks are keyed by metric name.
type BaselineReport struct {
	UserID            uuid.UUID                  `json:"user_id"`
	Tag               Tag                        `json:"tag"`
	Metrics           []string                   `json:"metrics"`
	MPointsRequested  int                        `json:"m_points_requested"`
	MPointsActual     int                        `json:"m_points_actual"`
	NPointsRequested  int                        `json:"n_points_requested"`
	NPointsActual     int                        `json:"n_points_actual"`
	TotalSessions     int                        `json:"total_sessions"`
	MaxSessionsApplied *int                      `json:"max_sessions_applied"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	FixedBaseline     map[string]any             `json:"fixed_baseline"`
	DynamicBaseline   []BaselineSessionEntry     `json:"dynamic_baseline"`
	Warnings          []string                   `json:"warnings"`
	Notes             BaselineNotes              `json:"notes"`
}

// BaselineSessionEntry is one session's row in the dynamic baseline.
type BaselineSessionEntry struct {
	SessionID       uuid.UUID          `json:"session_id"`
	Timestamp       time.Time          `json:"timestamp"`
	DurationMinutes int                `json:"duration_minutes"`
	SessionIndex    int                `json:"session_index"`
	Metrics         map[string]float64 `json:"metrics"`
	RollingStats    map[string]any     `json:"rolling_stats"`
	Trends          map[string]any     `json:"trends"`
	Flags           []string           `json:"flags"`
	Tags            []string           `json:"tags"`
}

// BaselineNotes documents the statistical method on the wire.
type BaselineNotes struct {
	Method               string `json:"method"`
	Bands                string `json:"bands"`
	InsufficientBandRule string `json:"insufficient_band_rule"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}
