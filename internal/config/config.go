// package config provides the environment-backed configuration loader used
// by the veralogd bootstrap (cmd/veralogd/main.go).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime config values consumed by main.go.
type Config struct {
	DatabaseURL string // DATABASE_URL (empty -> file store fallback)
	ArchiveDir  string // ARCHIVE_DIR (file store location, default ./audit-archive)

	SigningKey    string // AUDIT_SIGNING_KEY (hex, 32 bytes decoded)
	EncryptionKey string // AUDIT_ENCRYPTION_KEY (hex, 32 bytes decoded)
	KeyFile       string // AUDIT_KEY_FILE (optional JSON key file from the secret store)

	KafkaBrokers []string // KAFKA_BROKERS (comma separated, empty -> mirror disabled)
	KafkaTopic   string   // KAFKA_TOPIC

	S3Bucket string // S3_BUCKET (empty -> export archival disabled)
	S3Prefix string // S3_PREFIX

	AuthJWTSecret string // AUTH_JWT_SECRET (guards verify/export/report endpoints)

	ListenAddr string // LISTEN_ADDR (default :8080)

	AppendMaxRetries int           // APPEND_MAX_RETRIES (default 3)
	AppendBackoff    time.Duration // APPEND_BACKOFF (default 100ms)
}

// LoadFromEnv reads config values from environment variables and returns a Config pointer.
func LoadFromEnv() *Config {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ArchiveDir:    os.Getenv("ARCHIVE_DIR"),
		SigningKey:    os.Getenv("AUDIT_SIGNING_KEY"),
		EncryptionKey: os.Getenv("AUDIT_ENCRYPTION_KEY"),
		KeyFile:       os.Getenv("AUDIT_KEY_FILE"),
		KafkaTopic:    os.Getenv("KAFKA_TOPIC"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Prefix:      os.Getenv("S3_PREFIX"),
		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	// sensible defaults
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "./audit-archive"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	cfg.AppendMaxRetries = 3
	if v := os.Getenv("APPEND_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AppendMaxRetries = n
		}
	}
	cfg.AppendBackoff = 100 * time.Millisecond
	if v := os.Getenv("APPEND_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AppendBackoff = d
		}
	}

	return cfg
}
