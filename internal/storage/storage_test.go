package storage_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirzafarangi/hrvbrain/internal/hrv"
	"github.com/mirzafarangi/hrvbrain/internal/model"
	"github.com/mirzafarangi/hrvbrain/internal/storage"
	"github.com/mirzafarangi/hrvbrain/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func mustCreateUser(t *testing.T) model.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(), model.User{
		Email:      fmt.Sprintf("%s@example.com", uuid.New()),
		Role:       "user",
		APIKeyHash: "unused",
	})
	require.NoError(t, err)
	return u
}

func newSession(userID uuid.UUID, tag model.Tag, recordedAt time.Time, rmssd float64) model.Session {
	return model.Session{
		ID:              uuid.New(),
		UserID:          userID,
		Tag:             tag,
		Status:          model.SessionStatusProcessed,
		RecordedAt:      recordedAt,
		DurationMinutes: 5,
		RRIntervals:     []float64{800, 810, 820, 790, 805},
		Metrics: hrv.MetricSet{
			CountRR: 5,
			MeanRR:  805,
			SDNN:    11.51,
			RMSSD:   rmssd,
			PNN50:   0,
			CVRR:    1.43,
			MeanHR:  74.53,
			DFA:     1.0,
			SD2SD1:  2.0,
		},
	}
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)

	in := newSession(user.ID, model.TagRest, time.Now().UTC().Truncate(time.Millisecond), 24.5)
	in.Warnings = []string{"low RR interval count (5 < 30), metrics may be unreliable"}

	created, err := testDB.CreateSession(ctx, in)
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := testDB.GetSession(ctx, user.ID, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, model.TagRest, got.Tag)
	assert.Equal(t, model.SessionStatusProcessed, got.Status)
	assert.InDelta(t, 24.5, got.Metrics.RMSSD, 1e-9)
	assert.Equal(t, in.RRIntervals, got.RRIntervals)
	assert.Equal(t, in.Warnings, got.Warnings)
}

func TestCreateSessionDuplicate(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)

	s := newSession(user.ID, model.TagRest, time.Now().UTC(), 30)
	_, err := testDB.CreateSession(ctx, s)
	require.NoError(t, err)

	_, err = testDB.CreateSession(ctx, s)
	require.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestGetSessionScopedToUser(t *testing.T) {
	ctx := context.Background()
	owner := mustCreateUser(t)
	other := mustCreateUser(t)

	s := newSession(owner.ID, model.TagRest, time.Now().UTC(), 30)
	_, err := testDB.CreateSession(ctx, s)
	require.NoError(t, err)

	_, err = testDB.GetSession(ctx, other.ID, s.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)
	base := time.Now().UTC().Add(-24 * time.Hour)

	for i := 0; i < 3; i++ {
		s := newSession(user.ID, model.TagRest, base.Add(time.Duration(i)*time.Hour), 30)
		_, err := testDB.CreateSession(ctx, s)
		require.NoError(t, err)
	}
	eventID := uuid.New()
	sleep := newSession(user.ID, model.TagSleep, base.Add(10*time.Hour), 40)
	sleep.EventID = &eventID
	_, err := testDB.CreateSession(ctx, sleep)
	require.NoError(t, err)

	t.Run("all tags, newest first", func(t *testing.T) {
		sessions, total, err := testDB.ListSessions(ctx, user.ID, "", 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, sessions, 4)
		assert.Equal(t, sleep.ID, sessions[0].ID)
		// List rows omit the raw interval payload.
		assert.Nil(t, sessions[0].RRIntervals)
	})

	t.Run("tag filter", func(t *testing.T) {
		sessions, total, err := testDB.ListSessions(ctx, user.ID, model.TagSleep, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, sessions, 1)
		require.NotNil(t, sessions[0].EventID)
		assert.Equal(t, eventID, *sessions[0].EventID)
	})

	t.Run("pagination", func(t *testing.T) {
		page, total, err := testDB.ListSessions(ctx, user.ID, model.TagRest, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page, 1)
	})
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)

	s := newSession(user.ID, model.TagRest, time.Now().UTC(), 30)
	_, err := testDB.CreateSession(ctx, s)
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteSession(ctx, user.ID, s.ID))

	_, err = testDB.GetSession(ctx, user.ID, s.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = testDB.DeleteSession(ctx, user.ID, s.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionStatistics(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)
	base := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Millisecond)

	for i := 0; i < 2; i++ {
		s := newSession(user.ID, model.TagRest, base.Add(time.Duration(i)*time.Hour), 30)
		_, err := testDB.CreateSession(ctx, s)
		require.NoError(t, err)
	}
	eventID := uuid.New()
	for i := 0; i < 3; i++ {
		s := newSession(user.ID, model.TagSleep, base.Add(time.Duration(10+i)*time.Hour), 40)
		s.EventID = &eventID
		_, err := testDB.CreateSession(ctx, s)
		require.NoError(t, err)
	}

	stats, err := testDB.SessionStatistics(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalSessions)
	assert.Equal(t, 2, stats.SessionsByTag["rest"])
	assert.Equal(t, 3, stats.SessionsByTag["sleep"])
	assert.Equal(t, 1, stats.SleepEventCount)
	require.NotNil(t, stats.FirstRecordedAt)
	require.NotNil(t, stats.LastRecordedAt)
	assert.True(t, stats.LastRecordedAt.After(*stats.FirstRecordedAt))
}

func TestMetricSeries(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)
	base := time.Now().UTC().Add(-24 * time.Hour)

	values := []float64{22, 28, 25}
	for i, v := range values {
		s := newSession(user.ID, model.TagRest, base.Add(time.Duration(i)*time.Hour), v)
		_, err := testDB.CreateSession(ctx, s)
		require.NoError(t, err)
	}
	// Failed sessions are excluded from series.
	failed := newSession(user.ID, model.TagRest, base.Add(5*time.Hour), 99)
	failed.Status = model.SessionStatusFailed
	_, err := testDB.CreateSession(ctx, failed)
	require.NoError(t, err)

	points, err := testDB.MetricSeries(ctx, user.ID, model.TagRest, "rmssd")
	require.NoError(t, err)
	require.Len(t, points, 3)
	for i, p := range points {
		assert.InDelta(t, values[i], p.Value, 1e-9)
	}

	_, err = testDB.MetricSeries(ctx, user.ID, model.TagRest, "heartbeats; DROP TABLE sessions")
	require.Error(t, err)
}

func TestIdempotencyLifecycle(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)
	const endpoint = "POST:/v1/sessions"
	key := uuid.NewString()

	lookup, err := testDB.BeginIdempotency(ctx, user.ID, endpoint, key, "hash-a")
	require.NoError(t, err)
	assert.False(t, lookup.Completed)

	// Concurrent retry while the first request is processing.
	_, err = testDB.BeginIdempotency(ctx, user.ID, endpoint, key, "hash-a")
	require.ErrorIs(t, err, storage.ErrIdempotencyInProgress)

	// Same key, different payload.
	_, err = testDB.BeginIdempotency(ctx, user.ID, endpoint, key, "hash-b")
	require.ErrorIs(t, err, storage.ErrIdempotencyPayloadMismatch)

	require.NoError(t, testDB.CompleteIdempotency(ctx, user.ID, endpoint, key, 201, map[string]any{"ok": true}))

	replay, err := testDB.BeginIdempotency(ctx, user.ID, endpoint, key, "hash-a")
	require.NoError(t, err)
	assert.True(t, replay.Completed)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(replay.ResponseData))

	// The same key under a different user is an independent reservation.
	other := mustCreateUser(t)
	lookup, err = testDB.BeginIdempotency(ctx, other.ID, endpoint, key, "hash-a")
	require.NoError(t, err)
	assert.False(t, lookup.Completed)
	require.NoError(t, testDB.ClearInProgressIdempotency(ctx, other.ID, endpoint, key))

	lookup, err = testDB.BeginIdempotency(ctx, other.ID, endpoint, key, "hash-c")
	require.NoError(t, err)
	assert.False(t, lookup.Completed)
}

func TestCleanupSessions(t *testing.T) {
	ctx := context.Background()
	user := mustCreateUser(t)

	old := newSession(user.ID, model.TagRest, time.Now().UTC().Add(-48*time.Hour), 30)
	old.Status = model.SessionStatusFailed
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	_, err := testDB.CreateSession(ctx, old)
	require.NoError(t, err)

	processed := newSession(user.ID, model.TagRest, time.Now().UTC().Add(-48*time.Hour), 30)
	processed.CreatedAt = old.CreatedAt
	_, err = testDB.CreateSession(ctx, processed)
	require.NoError(t, err)

	deleted, err := testDB.CleanupSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = testDB.GetSession(ctx, user.ID, old.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Processed sessions survive regardless of age.
	_, err = testDB.GetSession(ctx, user.ID, processed.ID)
	require.NoError(t, err)
}

func TestUpsertAdminUser(t *testing.T) {
	ctx := context.Background()
	email := fmt.Sprintf("admin-%s@example.com", uuid.New())

	first, err := testDB.UpsertAdminUser(ctx, email, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", first.Role)

	// Re-seeding rotates the key hash but keeps the identity.
	second, err := testDB.UpsertAdminUser(ctx, email, "hash-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := testDB.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.APIKeyHash)
}
