package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mirzafarangi/hrvbrain/internal/auth"
	"github.com/mirzafarangi/hrvbrain/internal/hrv"
	"github.com/mirzafarangi/hrvbrain/internal/model"
	"github.com/mirzafarangi/hrvbrain/internal/service/trends"
	"github.com/mirzafarangi/hrvbrain/internal/storage"
)

// Store is the persistence surface the handlers need. *storage.DB satisfies
// it; tests substitute a fake.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	CreateSession(ctx context.Context, s model.Session) (model.Session, error)
	GetSession(ctx context.Context, userID, id uuid.UUID) (model.Session, error)
	ListSessions(ctx context.Context, userID uuid.UUID, tag model.Tag, limit, offset int) ([]model.Session, int, error)
	DeleteSession(ctx context.Context, userID, id uuid.UUID) error
	SessionStatistics(ctx context.Context, userID uuid.UUID) (model.SessionStatistics, error)
	BeginIdempotency(ctx context.Context, userID uuid.UUID, endpoint, key, requestHash string) (storage.IdempotencyLookup, error)
	CompleteIdempotency(ctx context.Context, userID uuid.UUID, endpoint, key string, statusCode int, responseData any) error
	ClearInProgressIdempotency(ctx context.Context, userID uuid.UUID, endpoint, key string) error
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	jwtMgr              *auth.JWTManager
	trendsSvc           *trends.Service
	calc                *hrv.Calculator
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store               Store
	JWTMgr              *auth.JWTManager
	TrendsSvc           *trends.Service
	Calculator          *hrv.Calculator
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	calc := d.Calculator
	if calc == nil {
		calc = hrv.NewCalculator(hrv.DefaultConfig())
	}
	return &Handlers{
		store:               d.Store,
		jwtMgr:              d.JWTMgr,
		trendsSvc:           d.TrendsSvc,
		calc:                calc,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token: exchanges a user ID and API key
// for a signed JWT. Unknown users burn a dummy argon2id verification so the
// response time does not reveal account existence.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "user_id must be a UUID")
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			auth.DummyVerify()
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.writeInternalError(w, r, "user lookup failed", err)
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, user.APIKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user.ID, user.Role)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleHealthDetailed handles GET /health/detailed: includes a database ping.
func (h *Handlers) HandleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	} else {
		resp.Postgres = "healthy"
	}

	writeJSON(w, r, status, resp)
}

// writeInternalError logs the error with the request ID and returns an opaque
// 500 to the client.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
}
