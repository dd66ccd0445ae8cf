// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, API-key auth, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID before logging before recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Everything except /health and /metrics behind the X-API-Key gate
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-commitlog-backend/internal/config"
	"github.com/tbourn/go-commitlog-backend/internal/domain"
	"github.com/tbourn/go-commitlog-backend/internal/http/handlers"
	"github.com/tbourn/go-commitlog-backend/internal/http/middleware"
	"github.com/tbourn/go-commitlog-backend/internal/notify"
	"github.com/tbourn/go-commitlog-backend/internal/repo"
	"github.com/tbourn/go-commitlog-backend/internal/services"
)

// commitmentRepoShim adapts the repository free functions to the
// services.CommitmentRepo interface. This keeps services decoupled from the
// concrete repo package while reusing existing functions.
type commitmentRepoShim struct{}

func (commitmentRepoShim) CreateCommitment(ctx context.Context, db *gorm.DB, c *domain.Commitment) (*domain.Commitment, error) {
	return repo.CreateCommitment(ctx, db, c)
}

func (commitmentRepoShim) GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	return repo.GetCommitment(ctx, db, id)
}

func (commitmentRepoShim) GetOpenCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	return repo.GetOpenCommitment(ctx, db, id)
}

func (commitmentRepoShim) FindOpenByTitle(ctx context.Context, db *gorm.DB, title, person string) ([]domain.Commitment, error) {
	return repo.FindOpenByTitle(ctx, db, title, person)
}

func (commitmentRepoShim) SaveCommitment(ctx context.Context, db *gorm.DB, c *domain.Commitment) error {
	return repo.SaveCommitment(ctx, db, c)
}

func (commitmentRepoShim) ListOpenCommitments(ctx context.Context, db *gorm.DB) ([]domain.Commitment, error) {
	return repo.ListOpenCommitments(ctx, db)
}

func (commitmentRepoShim) QueryCommitments(ctx context.Context, db *gorm.DB, f repo.CommitmentFilter) ([]domain.Commitment, error) {
	return repo.QueryCommitments(ctx, db, f)
}

func (commitmentRepoShim) DeleteCommitment(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteCommitment(ctx, db, id)
}

// reminderRepoShim adapts the repository free functions to the
// services.ReminderRepo interface.
type reminderRepoShim struct{}

func (reminderRepoShim) CreateReminder(ctx context.Context, db *gorm.DB, r *domain.Reminder) (*domain.Reminder, error) {
	return repo.CreateReminder(ctx, db, r)
}

func (reminderRepoShim) GetCommitment(ctx context.Context, db *gorm.DB, id string) (*domain.Commitment, error) {
	return repo.GetCommitment(ctx, db, id)
}

func (reminderRepoShim) ListDueReminders(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Reminder, error) {
	return repo.ListDueReminders(ctx, db, now)
}

func (reminderRepoShim) MarkReminderSent(ctx context.Context, db *gorm.DB, id string, sentAt time.Time) error {
	return repo.MarkReminderSent(ctx, db, id, sentAt)
}

// NewReminderService builds the reminder service used by both the HTTP layer
// and the background worker, so dispatch semantics stay identical between
// the two drivers.
func NewReminderService(db *gorm.DB, sender notify.Sender, cfg config.Config) *services.ReminderService {
	return services.NewReminderService(db, reminderRepoShim{}, sender, cfg.DefaultDeliveryTarget)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing (masks X-API-Key)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics and the /metrics endpoint
//  7. Rate limiter (per client IP)
//  8. CORS and security headers, gzip
//  9. API-key auth on the API group (health and metrics stay open)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, sender notify.Sender, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction; the API key must never be logged
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.APIKeyHeader},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all when none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.APIKeyHeader},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.APIKeyHeader},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Compress JSON responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health (unauthenticated)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	// Dependency injection: services from repo shims and the injected sender
	commitSvc := services.NewCommitmentService(db, commitmentRepoShim{})
	remSvc := NewReminderService(db, sender, cfg)
	h := handlers.New(commitSvc, remSvc)

	// 9) Authenticated API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.APIKeyAuth(cfg.APIKey))
	{
		// Commitments
		api.POST("/commitments/open", h.OpenCommitment)
		api.POST("/commitments/close", h.CloseCommitment)
		api.POST("/commitments/update", h.UpdateCommitment)
		api.GET("/commitments/open", h.ListOpenCommitments)
		api.GET("/commitments/query", h.QueryCommitments)
		api.GET("/commitments/:id", h.GetCommitment)
		api.DELETE("/commitments/:id", h.DeleteCommitment)

		// Reminders
		api.POST("/reminders/create", h.CreateReminder)
		api.GET("/reminders/due", h.ListDueReminders)
		api.POST("/reminders/dispatch_due", h.DispatchDueReminders)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
