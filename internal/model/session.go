// Package model defines the core domain types for the HRV analytics service.
//
// Types correspond directly to database tables and API payloads. Strong
// typing (UUIDs, time.Time, enums) is used throughout; optional fields are
// pointers so absence survives serialization.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/mirzafarangi/hrvbrain/internal/hrv"
)

// Tag categorizes a recording session. The set matches the sessions_tag_check
// database constraint.
type Tag string

const (
	TagRest                Tag = "rest"
	TagSleep               Tag = "sleep"
	TagExperimentPairedPre Tag = "experiment_paired_pre"
	TagExperimentPairedPost Tag = "experiment_paired_post"
	TagExperimentDuration  Tag = "experiment_duration"
	TagBreathWorkout       Tag = "breath_workout"
)

// ValidTag reports whether t is one of the known session tags.
func ValidTag(t Tag) bool {
	switch t {
	case TagRest, TagSleep, TagExperimentPairedPre, TagExperimentPairedPost,
		TagExperimentDuration, TagBreathWorkout:
		return true
	}
	return false
}

// SessionStatus is the processing state of an uploaded recording.
type SessionStatus string

const (
	SessionStatusProcessed SessionStatus = "processed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is one processed recording: the raw RR intervals plus the computed
// metric set. Immutable once stored.
type Session struct {
	ID              uuid.UUID     `json:"session_id"`
	UserID          uuid.UUID     `json:"user_id"`
	Tag             Tag           `json:"tag"`
	Subtag          string        `json:"subtag,omitempty"`
	EventID         *uuid.UUID    `json:"event_id,omitempty"`
	Status          SessionStatus `json:"status"`
	RecordedAt      time.Time     `json:"recorded_at"`
	DurationMinutes int           `json:"duration_minutes"`
	RRIntervals     []float64     `json:"rr_intervals,omitempty"`
	Metrics         hrv.MetricSet `json:"metrics"`
	Warnings        []string      `json:"warnings,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// SessionStatistics summarizes a user's stored sessions.
type SessionStatistics struct {
	TotalSessions   int            `json:"total_sessions"`
	SessionsByTag   map[string]int `json:"sessions_by_tag"`
	SleepEventCount int            `json:"sleep_event_count"`
	FirstRecordedAt *time.Time     `json:"first_recorded_at,omitempty"`
	LastRecordedAt  *time.Time     `json:"last_recorded_at,omitempty"`
}

// User is an account that uploads sessions. The API key is stored as an
// argon2id hash, never in the clear.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
