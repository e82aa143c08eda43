// Package main is the entry point for the eventsync API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/pkordes/eventsync/internal/config"
	"github.com/pkordes/eventsync/internal/handler"
	"github.com/pkordes/eventsync/internal/metrics"
	"github.com/pkordes/eventsync/internal/middleware"
	"github.com/pkordes/eventsync/internal/repo"
	"github.com/pkordes/eventsync/internal/service"
	"github.com/pkordes/eventsync/migrations"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := migrate(context.Background(), pool); err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	// --- Services ---------------------------------------------------------
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	records := repo.NewRecordRepo(pool)
	stores := service.Stores{
		Records:      records,
		Fields:       repo.NewFieldRepo(pool),
		Terms:        repo.NewTermRepo(pool),
		Translations: repo.NewTranslationRepo(pool),
	}

	dates := service.NewDateService(cfg.Location, cfg.DateFormat, cfg.TimeFormat, time.Now)
	locations := service.NewLocationSync(stores, m, logger)
	recurrences := service.NewRecurrenceEngine(stores, dates, locations, m, logger)
	translations := service.NewTranslationSync(stores, cfg.Languages, cfg.DefaultLanguage, m, logger)
	guard := service.NewFieldGuard(m, locations)
	pipeline := service.NewSavePipeline(stores, dates, locations, recurrences, translations, guard, m, logger)
	events := service.NewEventService(stores, dates)
	archive := service.NewArchiveService(
		service.NewArchivePlanner(dates, cfg.PageSize),
		service.NewGroupingEngine(records, dates),
		records,
		m,
	)

	// --- Scheduled resync -------------------------------------------------
	var scheduler *cron.Cron
	if cfg.ResyncCron != "" {
		scheduler = cron.New(cron.WithLocation(cfg.Location))
		_, err := scheduler.AddFunc(cfg.ResyncCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := locations.ResyncAll(ctx); err != nil {
				logger.Error("location resync failed", "error", err)
			}
		})
		if err != nil {
			slog.Error("invalid RESYNC_CRON", "spec", cfg.ResyncCron, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		slog.Info("location resync scheduled", "spec", cfg.ResyncCron)
	}

	// --- Router -----------------------------------------------------------
	// Middleware order: RequestID, RealIP, Logger, Recoverer, CORS, body limit.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	server := handler.NewServer(pipeline, events, archive, locations, logger)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", server.Routes())

	// --- HTTP Server ------------------------------------------------------
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	if scheduler != nil {
		// Stop returns a context that is done once a running resync finishes.
		<-scheduler.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// migrate applies every pending goose migration through a database/sql
// handle borrowed from the pool.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		slog.Info("migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	return nil
}
