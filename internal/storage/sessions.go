package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mirzafarangi/hrvbrain/internal/model"
)

// metricColumns maps API metric names to their sessions table columns.
// Only names in this map may be interpolated into SQL.
var metricColumns = map[string]string{
	"count_rr": "count_rr",
	"mean_rr":  "mean_rr",
	"sdnn":     "sdnn",
	"rmssd":    "rmssd",
	"pnn50":    "pnn50",
	"cv_rr":    "cv_rr",
	"mean_hr":  "mean_hr",
	"defa":     "defa",
	"sd2_sd1":  "sd2_sd1",
}

// MetricPoint is one session's value for a single metric, as consumed by the
// baseline and trend engines.
type MetricPoint struct {
	SessionID       uuid.UUID
	RecordedAt      time.Time
	DurationMinutes int
	Value           float64
	EventID         *uuid.UUID
}

// CreateSession inserts a processed session. The session ID is
// client-supplied; a duplicate insert fails with a unique violation.
func (db *DB) CreateSession(ctx context.Context, s model.Session) (model.Session, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sessions (
		     id, user_id, tag, subtag, event_id, status, recorded_at,
		     duration_minutes, rr_intervals,
		     count_rr, mean_rr, sdnn, rmssd, pnn50, cv_rr, mean_hr,
		     defa, defa_fallback, sd2_sd1, sd2_sd1_fallback,
		     warnings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		         $10, $11, $12, $13, $14, $15, $16,
		         $17, $18, $19, $20, $21, $22)`,
		s.ID, s.UserID, string(s.Tag), s.Subtag, s.EventID, string(s.Status),
		s.RecordedAt, s.DurationMinutes, s.RRIntervals,
		s.Metrics.CountRR, s.Metrics.MeanRR, s.Metrics.SDNN, s.Metrics.RMSSD,
		s.Metrics.PNN50, s.Metrics.CVRR, s.Metrics.MeanHR,
		s.Metrics.DFA, s.Metrics.DFAFallback, s.Metrics.SD2SD1, s.Metrics.SD2SD1Fallback,
		s.Warnings, s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return model.Session{}, fmt.Errorf("storage: create session %s: %w", s.ID, ErrDuplicate)
		}
		return model.Session{}, fmt.Errorf("storage: create session: %w", err)
	}
	return s, nil
}

// GetSession retrieves a session by ID, scoped to the given user.
func (db *DB) GetSession(ctx context.Context, userID, id uuid.UUID) (model.Session, error) {
	var s model.Session
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, tag, subtag, event_id, status, recorded_at,
		        duration_minutes, rr_intervals,
		        count_rr, mean_rr, sdnn, rmssd, pnn50, cv_rr, mean_hr,
		        defa, defa_fallback, sd2_sd1, sd2_sd1_fallback,
		        warnings, created_at
		 FROM sessions WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(
		&s.ID, &s.UserID, &s.Tag, &s.Subtag, &s.EventID, &s.Status, &s.RecordedAt,
		&s.DurationMinutes, &s.RRIntervals,
		&s.Metrics.CountRR, &s.Metrics.MeanRR, &s.Metrics.SDNN, &s.Metrics.RMSSD,
		&s.Metrics.PNN50, &s.Metrics.CVRR, &s.Metrics.MeanHR,
		&s.Metrics.DFA, &s.Metrics.DFAFallback, &s.Metrics.SD2SD1, &s.Metrics.SD2SD1Fallback,
		&s.Warnings, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, fmt.Errorf("storage: get session %s: %w", id, ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("storage: get session: %w", err)
	}
	return s, nil
}

// ListSessions returns a user's sessions ordered by recorded_at DESC, with an
// optional tag filter. RR intervals are not loaded for lists.
func (db *DB) ListSessions(ctx context.Context, userID uuid.UUID, tag model.Tag, limit, offset int) ([]model.Session, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := `WHERE user_id = $1`
	args := []any{userID}
	if tag != "" {
		where += ` AND tag = $2`
		args = append(args, string(tag))
	}

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count sessions: %w", err)
	}

	n := len(args) + 1
	query := fmt.Sprintf(
		`SELECT id, user_id, tag, subtag, event_id, status, recorded_at,
		        duration_minutes,
		        count_rr, mean_rr, sdnn, rmssd, pnn50, cv_rr, mean_hr,
		        defa, defa_fallback, sd2_sd1, sd2_sd1_fallback,
		        warnings, created_at
		 FROM sessions %s
		 ORDER BY recorded_at DESC
		 LIMIT $%d OFFSET $%d`, where, n, n+1)
	args = append(args, limit, offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Tag, &s.Subtag, &s.EventID, &s.Status, &s.RecordedAt,
			&s.DurationMinutes,
			&s.Metrics.CountRR, &s.Metrics.MeanRR, &s.Metrics.SDNN, &s.Metrics.RMSSD,
			&s.Metrics.PNN50, &s.Metrics.CVRR, &s.Metrics.MeanHR,
			&s.Metrics.DFA, &s.Metrics.DFAFallback, &s.Metrics.SD2SD1, &s.Metrics.SD2SD1Fallback,
			&s.Warnings, &s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

// DeleteSession removes a session. Returns ErrNotFound when no row matched.
func (db *DB) DeleteSession(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: delete session %s: %w", id, ErrNotFound)
	}
	return nil
}

// SessionStatistics summarizes a user's stored sessions: totals, per-tag
// counts, distinct sleep events, and the recording time range.
func (db *DB) SessionStatistics(ctx context.Context, userID uuid.UUID) (model.SessionStatistics, error) {
	stats := model.SessionStatistics{SessionsByTag: map[string]int{}}

	rows, err := db.pool.Query(ctx,
		`SELECT tag, COUNT(*) FROM sessions WHERE user_id = $1 GROUP BY tag`, userID,
	)
	if err != nil {
		return stats, fmt.Errorf("storage: session statistics by tag: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		var count int
		if err := rows.Scan(&tag, &count); err != nil {
			return stats, fmt.Errorf("storage: scan tag count: %w", err)
		}
		stats.SessionsByTag[tag] = count
		stats.TotalSessions += count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage: session statistics rows: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT event_id),
		        MIN(recorded_at), MAX(recorded_at)
		 FROM sessions WHERE user_id = $1`, userID,
	).Scan(&stats.SleepEventCount, &stats.FirstRecordedAt, &stats.LastRecordedAt)
	if err != nil {
		return stats, fmt.Errorf("storage: session statistics range: %w", err)
	}
	return stats, nil
}

// MetricSeries returns the chronological series of one metric's values for a
// user and tag, oldest first. The metric name must be one of the nine known
// columns.
func (db *DB) MetricSeries(ctx context.Context, userID uuid.UUID, tag model.Tag, metric string) ([]MetricPoint, error) {
	col, ok := metricColumns[metric]
	if !ok {
		return nil, fmt.Errorf("storage: unknown metric %q", metric)
	}

	query := fmt.Sprintf(
		`SELECT id, recorded_at, duration_minutes, %s, event_id
		 FROM sessions
		 WHERE user_id = $1 AND tag = $2 AND status = 'processed'
		 ORDER BY recorded_at ASC`, col)

	rows, err := db.pool.Query(ctx, query, userID, string(tag))
	if err != nil {
		return nil, fmt.Errorf("storage: metric series: %w", err)
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.SessionID, &p.RecordedAt, &p.DurationMinutes, &p.Value, &p.EventID); err != nil {
			return nil, fmt.Errorf("storage: scan metric point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CleanupSessions deletes failed sessions older than the TTL. Processed
// sessions are never touched. The delete can deadlock against concurrent
// uploads, so it runs under WithRetry.
func (db *DB) CleanupSessions(ctx context.Context, failedTTL time.Duration) (int64, error) {
	var deleted int64
	err := WithRetry(ctx, 2, 100*time.Millisecond, func() error {
		tag, err := db.pool.Exec(ctx,
			`DELETE FROM sessions
			 WHERE status = 'failed'
			   AND created_at < now() - ($1 * interval '1 microsecond')`,
			failedTTL.Microseconds(),
		)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: cleanup sessions: %w", err)
	}
	return deleted, nil
}
