// Package api provides the HTTP API for the Quillbooks server.
package api

import (
	"crypto/ed25519"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/quillbooks/quillbooks/internal/api/handlers"
	"github.com/quillbooks/quillbooks/internal/api/middleware"
	"github.com/quillbooks/quillbooks/internal/archive"
	"github.com/quillbooks/quillbooks/internal/auth"
	"github.com/quillbooks/quillbooks/internal/db"
	"github.com/quillbooks/quillbooks/internal/events"
	"github.com/quillbooks/quillbooks/internal/license"
	"github.com/quillbooks/quillbooks/internal/metrics"

	_ "github.com/quillbooks/quillbooks/docs/api"
)

// Config holds configuration for the API router.
type Config struct {
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// TrialDays is the length of the trial window for new tenants.
	TrialDays int
	// LicensePublicKey verifies signed license keys. Nil disables them.
	LicensePublicKey ed25519.PublicKey
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{},
		RateLimitRequests: 300,
		RateLimitPeriod:   "1m",
		TrialDays:         30,
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Deps bundles the services the router depends on. Archiver, Hub, and Redis
// are optional.
type Deps struct {
	DB       *db.DB
	Issuer   *auth.TokenIssuer
	Revoker  *auth.Revoker
	Gate     *license.Gate
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Archiver *archive.Archiver
	Hub      *events.Hub
	Redis    *goredis.Client
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Deps, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.SecurityHeaders())
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod, deps.Redis)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Public endpoints
	healthHandler := handlers.NewHealthHandler(deps.DB, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	r.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	r.Engine.GET("/api/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/api/docs/doc.json"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))

	r.Engine.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{"version": cfg.Version, "commit": cfg.Commit, "build_date": cfg.BuildDate})
	})

	// Auth endpoints (no token required)
	authHandler := handlers.NewAuthHandler(deps.DB, deps.Issuer, deps.Revoker, logger)
	authHandler.RegisterRoutes(r.Engine.Group("/api/v1/auth"))

	// Tenant-scoped endpoints
	syncHandler := handlers.NewSyncHandler(deps.DB, deps.Gate, deps.Metrics, deps.Hub, logger)
	purgeHandler := handlers.NewPurgeHandler(deps.DB, archiverOrNil(deps.Archiver), deps.Metrics, deps.Hub, logger)

	tenantAPI := r.Engine.Group("/api/v1")
	tenantAPI.Use(middleware.TenantAuth(deps.Issuer, logger))
	syncHandler.RegisterRoutes(tenantAPI)
	tenantAPI.GET("/sync/events", syncHandler.ServeEvents)

	tenantAdmin := tenantAPI.Group("")
	tenantAdmin.Use(middleware.RequireAdmin())
	purgeHandler.RegisterRoutes(tenantAdmin)

	// Operator endpoints
	tenantHandler := handlers.NewTenantHandler(deps.DB, deps.Gate, deps.Hub, cfg.TrialDays, cfg.LicensePublicKey, logger)

	operatorAPI := r.Engine.Group("/api/v1/operator")
	operatorAPI.Use(middleware.OperatorAuth(deps.Issuer, deps.Revoker, logger))
	tenantHandler.RegisterRoutes(operatorAPI)
	authHandler.RegisterOperatorRoutes(operatorAPI)

	return r, nil
}

// archiverOrNil keeps a typed nil *archive.Archiver from masquerading as a
// non-nil interface value inside the purge handler.
func archiverOrNil(a *archive.Archiver) handlers.SnapshotArchiver {
	if a == nil {
		return nil
	}
	return a
}
