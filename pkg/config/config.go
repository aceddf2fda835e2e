// Package config loads runtime configuration: 12-factor environment
// variables for the core settings plus optional YAML deployment profiles
// for per-environment overrides.
package config

import (
	"os"
	"strconv"
)

// Config holds runtime configuration.
type Config struct {
	LogLevel string

	// Tracker source.
	TrackerPath  string
	TrackerSheet string

	// Storage backend: "memory", "sqlite", or "postgres".
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string

	// Training store: "memory", "sqlite", or "redis".
	TrainingBackend string
	RedisAddr       string

	// Ticket sink. Empty endpoint selects the in-memory sink.
	TicketEndpoint string
	TicketUser     string
	TicketPassword string
	TicketRate     float64
	TicketBurst    int

	// DryRun evaluates requests without applying side effects.
	DryRun bool

	// Evidence export.
	EvidenceBucket string
	EvidenceRegion string

	// Telemetry.
	OTLPEndpoint     string
	TelemetryEnabled bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel: envOr("LOG_LEVEL", "INFO"),

		TrackerPath:  envOr("TRACKER_PATH", "master_tracker.xlsx"),
		TrackerSheet: os.Getenv("TRACKER_SHEET"),

		StoreBackend: envOr("STORE_BACKEND", "sqlite"),
		SQLitePath:   envOr("SQLITE_PATH", "arbiter.db"),
		DatabaseURL:  envOr("DATABASE_URL", "postgres://arbiter@localhost:5432/arbiter?sslmode=disable"),

		TrainingBackend: envOr("TRAINING_BACKEND", "sqlite"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),

		TicketEndpoint: os.Getenv("TICKET_ENDPOINT"),
		TicketUser:     os.Getenv("TICKET_USER"),
		TicketPassword: os.Getenv("TICKET_PASSWORD"),
		TicketRate:     envFloat("TICKET_RATE_PER_SEC", 5),
		TicketBurst:    envInt("TICKET_BURST", 0),

		DryRun: os.Getenv("DRY_RUN") == "true",

		EvidenceBucket: os.Getenv("EVIDENCE_BUCKET"),
		EvidenceRegion: envOr("EVIDENCE_REGION", "us-east-1"),

		OTLPEndpoint:     envOr("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
