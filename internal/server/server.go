package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mirzafarangi/hrvbrain/internal/auth"
	"github.com/mirzafarangi/hrvbrain/internal/ctxutil"
	"github.com/mirzafarangi/hrvbrain/internal/hrv"
	"github.com/mirzafarangi/hrvbrain/internal/ratelimit"
	"github.com/mirzafarangi/hrvbrain/internal/service/trends"
)

// Server is the HRV analytics HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// The limiters are optional; nil disables that class of rate limiting.
type ServerConfig struct {
	Store      Store
	JWTMgr     *auth.JWTManager
	TrendsSvc  *trends.Service
	Calculator *hrv.Calculator
	Logger     *slog.Logger

	UploadLimiter    ratelimit.Limiter
	AnalyticsLimiter ratelimit.Limiter
	AuthLimiter      ratelimit.Limiter

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		JWTMgr:              cfg.JWTMgr,
		TrendsSvc:           cfg.TrendsSvc,
		Calculator:          cfg.Calculator,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	uploadRL := ratelimit.Middleware(cfg.UploadLimiter, userKeyFunc, reqIDFunc, cfg.Logger)
	analyticsRL := ratelimit.Middleware(cfg.AnalyticsLimiter, userKeyFunc, reqIDFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.AuthLimiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Auth endpoint (no bearer token required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Session endpoints (authenticated, upload rate limit on the write path).
	mux.Handle("POST /v1/sessions", uploadRL(http.HandlerFunc(h.HandleCreateSession)))
	mux.Handle("GET /v1/sessions", http.HandlerFunc(h.HandleListSessions))
	mux.Handle("GET /v1/sessions/statistics", http.HandlerFunc(h.HandleSessionStatistics))
	mux.Handle("GET /v1/sessions/{session_id}", http.HandlerFunc(h.HandleGetSession))
	mux.Handle("DELETE /v1/sessions/{session_id}", http.HandlerFunc(h.HandleDeleteSession))

	// Analytics endpoints (authenticated, analytics rate limit).
	mux.Handle("GET /v1/analytics/baseline", analyticsRL(http.HandlerFunc(h.HandleBaseline)))
	mux.Handle("GET /v1/analytics/trend", analyticsRL(http.HandlerFunc(h.HandleTrend)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /health/detailed", h.HandleHealthDetailed)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the user ID from the request context for rate
// limiting. Admin users are exempt.
func userKeyFunc(r *http.Request) string {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Role == "admin" {
		return ""
	}
	return claims.UserID.String()
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
