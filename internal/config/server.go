// Package config provides configuration management for Quillbooks.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment     Environment
	ListenAddr      string
	DatabaseURL     string
	RedisAddr       string
	TokenSecret     string
	TokenTTL        time.Duration
	OperatorTokenTTL time.Duration
	TrialDays       int
	// License sweep schedule in cron syntax. Empty disables the sweep.
	LicenseSweepSpec string

	// Purge archive settings. Archiving uploads the rows a purge deletes to
	// object storage before the transaction commits.
	ArchiveEnabled   bool
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string

	CORSOrigins       []string
	RateLimitRequests int64
	RateLimitPeriod   string

	// LicensePublicKey is a hex-encoded Ed25519 public key used to verify
	// signed license keys. Empty disables key-based license activation.
	LicensePublicKey string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	trialDays := getEnvInt("TRIAL_DAYS", 30)
	if trialDays < 1 {
		trialDays = 30
	}

	return ServerConfig{
		Environment:      env,
		ListenAddr:       getEnvString("LISTEN_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        getEnvString("REDIS_ADDR", "localhost:6379"),
		TokenSecret:      os.Getenv("TOKEN_SECRET"),
		TokenTTL:         getEnvDuration("TOKEN_TTL", 24*time.Hour),
		OperatorTokenTTL: getEnvDuration("OPERATOR_TOKEN_TTL", 8*time.Hour),
		TrialDays:        trialDays,
		LicenseSweepSpec: getEnvString("LICENSE_SWEEP_SPEC", "@every 5m"),
		ArchiveEnabled:   getEnvBool("ARCHIVE_ENABLED", false),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchiveRegion:    getEnvString("ARCHIVE_REGION", "us-east-1"),
		ArchiveEndpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveAccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
		CORSOrigins:      splitCommaList(os.Getenv("CORS_ORIGINS")),
		RateLimitRequests: int64(getEnvInt("RATE_LIMIT_REQUESTS", 300)),
		RateLimitPeriod:  getEnvString("RATE_LIMIT_PERIOD", "1m"),
		LicensePublicKey: os.Getenv("LICENSE_PUBLIC_KEY"),
	}
}

// splitCommaList splits a comma-separated list, dropping empty entries.
func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvString reads a string from an environment variable, returning the default if unset.
func getEnvString(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration from an environment variable, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
