package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/kpiboard/kpiboard/internal/config"
	"github.com/kpiboard/kpiboard/internal/dash"
	"github.com/kpiboard/kpiboard/internal/httpx"
	"github.com/kpiboard/kpiboard/internal/ingest"
	"github.com/kpiboard/kpiboard/internal/store"
)

func main() {
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	var st store.Store
	if cfg.DBPath != "" {
		sqlite, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			logger.Error("open store", slog.String("err", err.Error()))
			os.Exit(1)
		}
		st = sqlite
		logger.Info("sqlite store ready", slog.String("path", cfg.DBPath))
	} else {
		st = store.NewMemoryStore()
		logger.Info("using in-memory store")
	}
	defer st.Close()

	if cfg.DemoSeed {
		if err := store.Seed(context.Background(), st, time.Now().UTC()); err != nil {
			logger.Error("seed demo data", slog.String("err", err.Error()))
			os.Exit(1)
		}
		logger.Info("demo data seeded")
	}

	ds := dash.NewService(st)
	ing := ingest.NewHandler(st, cfg.IngestToken, logger)
	r := httpx.NewRouter(logger, ds, ing, st)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPTimeout,
		WriteTimeout:      cfg.HTTPTimeout,
	}

	logger.Info("starting server", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
