package config

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	Port        string
	DBPath      string // empty = in-memory store
	IngestToken string // empty = ingest auth disabled
	DemoSeed    bool
	HTTPTimeout time.Duration
	LogLevel    slog.Level
}

func FromEnv() Config {
	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}
	return Config{
		Port:        envOr("PORT", "8080"),
		DBPath:      os.Getenv("DB_PATH"),
		IngestToken: os.Getenv("INGEST_TOKEN"),
		DemoSeed:    os.Getenv("DEMO_SEED") == "1" || os.Getenv("DEMO_SEED") == "true",
		HTTPTimeout: to,
		LogLevel:    lvl,
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
