package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mirzafarangi/hrvbrain/internal/ctxutil"
	"github.com/mirzafarangi/hrvbrain/internal/hrv"
	"github.com/mirzafarangi/hrvbrain/internal/model"
	"github.com/mirzafarangi/hrvbrain/internal/storage"
)

const createSessionEndpoint = "POST:/v1/sessions"

// HandleCreateSession handles POST /v1/sessions: validates the upload,
// computes the metric set, and persists the session. An Idempotency-Key
// header makes retries replay the stored response.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	var req model.CreateSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.UserID = userID

	warnings, err := req.Validate()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	idem, proceed := h.beginIdempotentWrite(w, r, userID, createSessionEndpoint, req)
	if !proceed {
		return
	}

	session := model.Session{
		ID:              req.SessionID,
		UserID:          userID,
		Tag:             req.Tag,
		Subtag:          req.Subtag,
		EventID:         req.EventID,
		Status:          model.SessionStatusProcessed,
		RecordedAt:      req.RecordedAt,
		DurationMinutes: req.DurationMinutes,
		RRIntervals:     req.RRIntervals,
		Warnings:        warnings,
		CreatedAt:       time.Now().UTC(),
	}

	metrics, err := h.calc.Compute(req.RRIntervals)
	if err != nil {
		if errors.Is(err, hrv.ErrInsufficientData) {
			// Store the failed session so the retention loop can account for
			// it, then reject the upload.
			session.Status = model.SessionStatusFailed
			session.Warnings = append(session.Warnings, err.Error())
			if _, sErr := h.store.CreateSession(r.Context(), session); sErr != nil && !errors.Is(sErr, storage.ErrDuplicate) {
				h.logger.Warn("failed to record rejected session", "error", sErr, "session_id", session.ID)
			}
			h.clearIdempotentWrite(r, idem)
			writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.clearIdempotentWrite(r, idem)
		h.writeInternalError(w, r, "metric computation failed", err)
		return
	}
	session.Metrics = metrics

	stored, err := h.store.CreateSession(r.Context(), session)
	if err != nil {
		h.clearIdempotentWrite(r, idem)
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "session already exists")
			return
		}
		h.writeInternalError(w, r, "failed to store session", err)
		return
	}

	resp := model.CreateSessionResponse{Session: stored}
	h.completeIdempotentWriteBestEffort(r, idem, http.StatusCreated, resp)
	writeJSON(w, r, http.StatusCreated, resp)
}

// HandleGetSession handles GET /v1/sessions/{session_id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "session_id must be a UUID")
		return
	}

	session, err := h.store.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
			return
		}
		h.writeInternalError(w, r, "failed to load session", err)
		return
	}

	writeJSON(w, r, http.StatusOK, session)
}

// HandleListSessions handles GET /v1/sessions with optional tag filter and
// limit/offset pagination.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	var tag model.Tag
	if t := r.URL.Query().Get("tag"); t != "" {
		tag = model.Tag(t)
		if !model.ValidTag(tag) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown tag "+strconv.Quote(t))
			return
		}
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sessions, total, err := h.store.ListSessions(r.Context(), userID, tag, limit, offset)
	if err != nil {
		h.writeInternalError(w, r, "failed to list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}

	writeList(w, r, sessions, total, limit, offset)
}

// HandleDeleteSession handles DELETE /v1/sessions/{session_id}.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "session_id must be a UUID")
		return
	}

	if err := h.store.DeleteSession(r.Context(), userID, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
			return
		}
		h.writeInternalError(w, r, "failed to delete session", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"deleted": sessionID.String()})
}

// HandleSessionStatistics handles GET /v1/sessions/statistics.
func (h *Handlers) HandleSessionStatistics(w http.ResponseWriter, r *http.Request) {
	userID := ctxutil.UserIDFromContext(r.Context())

	stats, err := h.store.SessionStatistics(r.Context(), userID)
	if err != nil {
		h.writeInternalError(w, r, "failed to compute session statistics", err)
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
