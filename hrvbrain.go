// Package hrvbrain is the public API for embedding the HRV analytics server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := hrvbrain.New(
//	    hrvbrain.WithVersion(version),
//	    hrvbrain.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: hrvbrain (root) imports
// internal/*, but internal/* never imports hrvbrain (root).
package hrvbrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/mirzafarangi/hrvbrain/internal/auth"
	"github.com/mirzafarangi/hrvbrain/internal/config"
	"github.com/mirzafarangi/hrvbrain/internal/ratelimit"
	"github.com/mirzafarangi/hrvbrain/internal/server"
	"github.com/mirzafarangi/hrvbrain/internal/service/trends"
	"github.com/mirzafarangi/hrvbrain/internal/storage"
	"github.com/mirzafarangi/hrvbrain/internal/telemetry"
	"github.com/mirzafarangi/hrvbrain/migrations"
)

// App is the server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	limiters     []ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the server. It connects to the database, runs migrations,
// wires all subsystems, and returns a ready-to-run App. It does NOT start any
// goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("hrvbrain starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	db.RegisterPoolMetrics()

	// Run embedded migrations, then any extra migration filesystems.
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Analytics engine.
	trendsSvc := trends.New(db, trends.Config{
		FixedWindow:         cfg.BaselineFixedWindow,
		RollingWindow:       cfg.BaselineRollingWindow,
		TrendWindow:         cfg.TrendRollingWindow,
		MinPercentilePoints: cfg.MinPercentileSessions,
		MaxSessionsDefault:  cfg.MaxSessionsDefault,
	}, logger)

	// Per-class rate limiters. Rates are configured per minute; the token
	// bucket refills per second.
	uploadLim := newMinuteLimiter(cfg.UploadRatePerMinute)
	analyticsLim := newMinuteLimiter(cfg.AnalyticsRatePerMin)
	authLim := newMinuteLimiter(cfg.AuthRatePerMinute)
	logger.Info("rate limiting: memory (in-process token bucket)",
		"upload_per_minute", cfg.UploadRatePerMinute,
		"analytics_per_minute", cfg.AnalyticsRatePerMin,
		"auth_per_minute", cfg.AuthRatePerMinute,
	)

	// Create HTTP server.
	srv := server.New(server.ServerConfig{
		Store:               db,
		JWTMgr:              jwtMgr,
		TrendsSvc:           trendsSvc,
		Logger:              logger,
		UploadLimiter:       uploadLim,
		AnalyticsLimiter:    analyticsLim,
		AuthLimiter:         authLim,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Seed admin user.
	if cfg.AdminAPIKey != "" {
		hash, err := auth.HashAPIKey(cfg.AdminAPIKey)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("admin seed: %w", err)
		}
		admin, err := db.UpsertAdminUser(context.Background(), "admin@hrvbrain.local", hash)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("admin seed: %w", err)
		}
		logger.Info("admin user seeded", "user_id", admin.ID)
	} else {
		logger.Warn("HRVBRAIN_ADMIN_API_KEY not set — no admin user seeded")
	}

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		limiters:     []ratelimit.Limiter{uploadLim, analyticsLim, authLim},
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the background cleanup loop and the HTTP server, then blocks
// until ctx is cancelled or a fatal server error occurs. On return, Shutdown
// is called automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	go a.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the rate limiters,
// the database pool, and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("hrvbrain shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	for _, lim := range a.limiters {
		_ = lim.Close()
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("hrvbrain stopped")
	return nil
}

// cleanupLoop periodically deletes failed sessions past their retention TTL
// and expired idempotency records.
func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)

			if deleted, err := a.db.CleanupSessions(opCtx, a.cfg.FailedSessionTTL); err != nil {
				a.logger.Warn("session cleanup failed", "error", err)
			} else if deleted > 0 {
				a.logger.Info("session cleanup deleted failed sessions", "deleted", deleted)
			}

			if deleted, err := a.db.CleanupIdempotencyKeys(opCtx, a.cfg.IdempotencyTTL, a.cfg.IdempotencyStuckTTL); err != nil {
				a.logger.Warn("idempotency cleanup failed", "error", err)
			} else if deleted > 0 {
				a.logger.Info("idempotency cleanup deleted rows", "deleted", deleted)
			}

			cancel()
		}
	}
}

// newMinuteLimiter builds a token bucket from a per-minute quota. The burst
// equals the quota so a quiet client can spend a full minute's allowance at
// once.
func newMinuteLimiter(perMinute int) ratelimit.Limiter {
	if perMinute <= 0 {
		return ratelimit.NoopLimiter{}
	}
	return ratelimit.NewMemoryLimiter(float64(perMinute)/60.0, perMinute)
}
