// Package config loads server configuration from the environment
// (spec.md §6 "Configuration (environment)").
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the server.
type Config struct {
	// Server
	BindAddr    string
	Environment string

	// TLS (spec.md §6: "TLS termination inside the process using PEM
	// cert/key files"). Both empty disables TLS termination, useful
	// behind a reverse proxy in development.
	TLSCertPath string
	TLSKeyPath  string

	// Database
	DatabaseURL string

	// Database pool settings, reused verbatim from the connection-pool
	// tuning knobs this config already carried before the expansion.
	DBMaxConns          int32
	DBMinConns          int32
	DBMaxConnLifetime   int // minutes
	DBMaxConnIdleTime   int // minutes
	DBHealthCheckPeriod int // seconds
	DBConnectTimeout    int // seconds
	DBAcquireTimeout    int // seconds

	// Redis (the geospatial cache, spec.md §1)
	RedisURL string

	// Security
	JWTSecret      []byte
	TokenDuration  int      // hours
	AllowedOrigins []string // CORS allowed origins (empty = allow all)

	// Cluster index zoom bounds (spec.md §4.B, default zmin=3, zmax=5)
	ZMin int
	ZMax int

	// Hour of day (0-23) the nightly reconciliation job runs at
	// (spec.md §4.E).
	ReconcileHour int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BindAddr:    getEnv("BIND_ADDR", "0.0.0.0:5000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		TLSCertPath: getEnv("TLS_CERT_PATH", ""),
		TLSKeyPath:  getEnv("TLS_KEY_PATH", ""),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/nearmap?sslmode=disable"),

		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 50)),
		DBMinConns:          int32(getEnvInt("DB_MIN_CONNS", 10)),
		DBMaxConnLifetime:   getEnvInt("DB_MAX_CONN_LIFETIME", 60),
		DBMaxConnIdleTime:   getEnvInt("DB_MAX_CONN_IDLE_TIME", 15),
		DBHealthCheckPeriod: getEnvInt("DB_HEALTH_CHECK_PERIOD", 30),
		DBConnectTimeout:    getEnvInt("DB_CONNECT_TIMEOUT", 10),
		DBAcquireTimeout:    getEnvInt("DB_ACQUIRE_TIMEOUT", 5),

		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		TokenDuration: getEnvInt("TOKEN_DURATION_HOURS", 720),

		ZMin:          getEnvInt("ZMIN", 3),
		ZMax:          getEnvInt("ZMAX", 5),
		ReconcileHour: getEnvInt("RECONCILE_HOUR", 3),
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - generate with: openssl rand -base64 32")
	}
	if len(jwtSecret) < 16 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	cfg.JWTSecret = []byte(jwtSecret)

	corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsOrigins != "" {
		cfg.AllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.AllowedOrigins {
			cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}
	// Empty AllowedOrigins = permissive CORS, per spec.md §6.

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
