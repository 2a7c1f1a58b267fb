// Package main is the entrypoint for the Quillbooks server.
//
// @title           Quillbooks API
// @version         1.0
// @description     Multi-tenant business records synchronization service.
//
// @host      localhost:8080
// @BasePath  /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token authentication. Tenant tokens also require the X-Tenant-ID header.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/quillbooks/quillbooks/internal/api"
	"github.com/quillbooks/quillbooks/internal/archive"
	"github.com/quillbooks/quillbooks/internal/auth"
	"github.com/quillbooks/quillbooks/internal/config"
	"github.com/quillbooks/quillbooks/internal/db"
	"github.com/quillbooks/quillbooks/internal/events"
	"github.com/quillbooks/quillbooks/internal/license"
	"github.com/quillbooks/quillbooks/internal/metrics"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Quillbooks server")

	cfg := config.LoadServerConfig()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable is required")
		return 1
	}
	if cfg.TokenSecret == "" {
		logger.Fatal().Msg("TOKEN_SECRET environment variable is required")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Redis is optional; without it revocation checks and rate limits fall
	// back to Postgres and per-process memory.
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, continuing without it")
			rdb = nil
		}
	}

	issuer, err := auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL, cfg.OperatorTokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token issuer")
		return 1
	}
	revoker := auth.NewRevoker(database, rdb, cfg.OperatorTokenTTL, logger)
	gate := license.NewGate(database, logger)

	var licPubKey ed25519.PublicKey
	if cfg.LicensePublicKey != "" {
		decoded, err := hex.DecodeString(cfg.LicensePublicKey)
		if err != nil || len(decoded) != ed25519.PublicKeySize {
			logger.Fatal().Msg("LICENSE_PUBLIC_KEY must be a hex-encoded Ed25519 public key")
			return 1
		}
		licPubKey = decoded
	}

	var archiver *archive.Archiver
	if cfg.ArchiveEnabled {
		archiver, err = archive.New(ctx, archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize purge archiver")
			return 1
		}
		logger.Info().Str("bucket", cfg.ArchiveBucket).Msg("Pre-purge archiving enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := events.NewHub(events.DefaultConfig(), logger)
	hub.Start()
	defer hub.Stop()

	sweeper := license.NewSweeper(database, cfg.LicenseSweepSpec, logger)
	if cfg.LicenseSweepSpec != "" {
		if err := sweeper.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start license sweeper")
			return 1
		}
		defer sweeper.Stop()
	}

	apiCfg := api.Config{
		AllowedOrigins:    cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitPeriod:   cfg.RateLimitPeriod,
		TrialDays:         cfg.TrialDays,
		LicensePublicKey:  licPubKey,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	}
	router, err := api.NewRouter(apiCfg, api.Deps{
		DB:       database,
		Issuer:   issuer,
		Revoker:  revoker,
		Gate:     gate,
		Metrics:  m,
		Registry: registry,
		Archiver: archiver,
		Hub:      hub,
		Redis:    rdb,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build API router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		return 1
	}

	logger.Info().Msg("Server stopped")
	return 0
}
