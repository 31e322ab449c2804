// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	PublicURL   string // external base URL, used for file links and OAuth redirects
	Environment string // "development" or "production"

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// Sessions
	SessionSecret string // HS256 signing key for session secrets

	// Storage backend ("local" or "s3", default: "local")
	StorageBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// TLS (optional — if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// OIDC (optional — enables the OAuth sign-in bridge)
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string

	// SMTP (optional — OTP codes are logged when unset)
	SMTPAddr string
	SMTPFrom string
	SMTPUser string
	SMTPPass string

	// Limits
	MaxFileSize     int64 // single upload ceiling
	MaxTotalStorage int64 // per-user storage ceiling
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		PublicURL:        envOr("PUBLIC_URL", "http://localhost:8080"),
		Environment:      envOr("ENVIRONMENT", "development"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		SessionSecret:    envOr("SESSION_SECRET", ""),
		StorageBackend:   envOr("STORAGE_BACKEND", "local"),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:       envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:         envOr("S3_BUCKET", "storeit"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		TLSCertFile:      envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:       envOr("TLS_KEY_FILE", ""),
		OIDCIssuerURL:    envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:     envOr("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: envOr("OIDC_CLIENT_SECRET", ""),
		SMTPAddr:         envOr("SMTP_ADDR", ""),
		SMTPFrom:         envOr("SMTP_FROM", "no-reply@storeit.local"),
		SMTPUser:         envOr("SMTP_USER", ""),
		SMTPPass:         envOr("SMTP_PASS", ""),
		MaxFileSize:      envInt64("MAX_FILE_SIZE", 50*1024*1024),         // 50MB
		MaxTotalStorage:  envInt64("MAX_TOTAL_STORAGE", 2*1024*1024*1024), // 2GB per user
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

// Production reports whether the server runs in production mode.
// Controls the Secure attribute on session cookies.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
