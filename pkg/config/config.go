// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds service configuration.
type Config struct {
	LogLevel      string
	DatabaseURL   string // postgres DSN; empty selects sqlite
	SQLitePath    string
	PolicyBundle  string // path to the policy bundle file (json or yaml)
	SigningSecret string
	RedisAddr     string // empty keeps debounce in the ledger store
	OTLPEndpoint  string
	OTelEnabled   bool
	GlobalRPS     float64
	GlobalBurst   int
	ExportBucket  string // S3 bucket for evidence packs; empty keeps packs local
	ExportPrefix  string
	ExportRegion  string
	S3Endpoint    string // custom endpoint for MinIO/LocalStack
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "ordgate.db"
	}

	bundle := os.Getenv("POLICY_BUNDLE")
	if bundle == "" {
		bundle = "policy.yaml"
	}

	otlp := os.Getenv("OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Config{
		LogLevel:      logLevel,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    sqlitePath,
		PolicyBundle:  bundle,
		SigningSecret: os.Getenv("SIGNING_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		OTLPEndpoint:  otlp,
		OTelEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		GlobalRPS:     envFloat("GLOBAL_RPS", 0),
		GlobalBurst:   envInt("GLOBAL_BURST", 0),
		ExportBucket:  os.Getenv("EXPORT_BUCKET"),
		ExportPrefix:  os.Getenv("EXPORT_PREFIX"),
		ExportRegion:  os.Getenv("EXPORT_REGION"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
	}
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
