// Package main is the Zimi server entry point — chi router, ZIM
// archive registry, search/download/state services wired together
// per the component list in SPEC_FULL.md §4.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zimi-go/zimi/internal/archivewatch"
	"github.com/zimi-go/zimi/internal/config"
	"github.com/zimi-go/zimi/internal/download"
	"github.com/zimi-go/zimi/internal/httpapi"
	"github.com/zimi-go/zimi/internal/metrics"
	"github.com/zimi-go/zimi/internal/ratelimit"
	"github.com/zimi-go/zimi/internal/reader"
	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/resolve"
	"github.com/zimi-go/zimi/internal/search"
	"github.com/zimi-go/zimi/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state.MigrateLegacy(cfg.ArchiveDir, cfg.DataDir, logger)
	store := state.New(cfg.DataDir, logger)

	if cfg.ManagePassword != "" && !store.HasPassword() {
		if err := store.SetPassword(cfg.ManagePassword); err != nil {
			logger.Error("set manage password", "error", err)
			os.Exit(1)
		}
	}

	reg := registry.New(cfg.ArchiveDir, cfg.DataDir, logger)
	if err := reg.Refresh(); err != nil {
		logger.Error("initial archive scan", "error", err)
		os.Exit(1)
	}
	reg.Prewarm()
	if err := store.SaveCache(reg.List()); err != nil {
		logger.Warn("save archive cache", "error", err)
	}

	engine := search.New(reg, logger)
	caches := search.NewCaches()
	defer caches.Close()
	rd := reader.New(reg)
	resolver := resolve.New(reg)
	resolver.Rebuild()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	mgr := download.New(cfg.ArchiveDir, reg, store, logger)
	mgr.CleanStaleTemp()
	sched := download.NewScheduler(mgr, reg, httpClient, logger)
	if cfg.AutoUpdate {
		cadence := download.CadenceWeekly
		switch cfg.AutoUpdateFreq {
		case config.FreqDaily:
			cadence = download.CadenceDaily
		case config.FreqMonthly:
			cadence = download.CadenceMonthly
		}
		sched.SetCadence(cadence)
	}
	go sched.Run(ctx)

	limiter := ratelimit.New(cfg.RateLimit)
	go gcLoop(ctx, limiter)

	go func() {
		err := archivewatch.Watch(ctx, cfg.ArchiveDir, logger, func() {
			if err := reg.Refresh(); err != nil {
				logger.Warn("archivewatch: refresh failed", "error", err)
				return
			}
			caches.Invalidate()
			resolver.Rebuild()
			if err := store.SaveCache(reg.List()); err != nil {
				logger.Warn("archivewatch: save archive cache failed", "error", err)
			}
		})
		if err != nil {
			logger.Warn("archivewatch: disabled", "error", err)
		}
	}()

	rec := metrics.New()

	handler := httpapi.NewRouter(httpapi.Deps{
		Registry:   reg,
		Engine:     engine,
		Caches:     caches,
		Reader:     rd,
		Resolver:   resolver,
		Manager:    mgr,
		Scheduler:  sched,
		Store:      store,
		Limiter:    limiter,
		Metrics:    rec,
		Log:        logger,
		HTTPClient: httpClient,
	})
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("zimi starting", "port", cfg.Port, "archive_dir", cfg.ArchiveDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("zimi stopped")
}

// gcLoop periodically drops idle rate-limit buckets so long-running
// processes don't accumulate one bucket per client IP forever.
func gcLoop(ctx context.Context, l *ratelimit.Limiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.GC()
		}
	}
}
