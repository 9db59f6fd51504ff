package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"timekeeper/backend/internal/model"
)

type Config struct {
	Port          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string

	// Goal arithmetic bounds, milliseconds.
	MaxGoalMilliseconds int64
	MinGoalMilliseconds int64

	// Liveness sweep cadence for open websocket channels.
	HeartbeatInterval time.Duration

	// Best-effort flush cadence for dirty in-memory timers.
	SnapshotInterval time.Duration
}

func Load() Config {
	return Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/timekeeper.db"),
		JWTSecret:           getEnv("JWT_SECRET", "change-this-secret"),
		TokenTTL:            time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins:         getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "./migrations"),
		MaxGoalMilliseconds: getEnvInt64("MAX_GOAL_MS", model.DefaultMaxGoalMilliseconds),
		MinGoalMilliseconds: getEnvInt64("MIN_GOAL_MS", model.DefaultMinGoalMilliseconds),
		HeartbeatInterval:   time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 60)) * time.Second,
		SnapshotInterval:    time.Duration(getEnvInt("SNAPSHOT_INTERVAL_SECONDS", 300)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
