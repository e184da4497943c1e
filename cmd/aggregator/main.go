// cmd/aggregator/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"menuranker/internal/adapters"
	"menuranker/internal/adapters/menujson"
	"menuranker/internal/aggregator"
	"menuranker/internal/api"
	"menuranker/internal/common/config"
	"menuranker/internal/common/database"
	"menuranker/internal/common/logger"
	"menuranker/internal/normalizer"
	"menuranker/internal/scheduler"
	"menuranker/internal/scorecache"
	"menuranker/internal/scorer"
	"menuranker/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := logger.NewZapAdapter(zapLogger)

	log.Info("Starting menu aggregation service", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"sources":     len(cfg.Sources),
		"interval":    cfg.Refresh.Interval.String(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.WithError(err).Error("Failed to create redis client", nil)
		os.Exit(1)
	}
	defer db.Close()

	if err := retryWithBackoff(ctx, log, "redis", func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		return db.Ping(pingCtx)
	}); err != nil {
		log.WithError(err).Error("Redis unreachable, giving up", nil)
		os.Exit(1)
	}

	cache := scorecache.New(db, cfg.Scorer.CacheTTL, log)

	scoreClient, err := scorer.NewClient(cfg.Scorer, cfg.Ranking, cache, log)
	if err != nil {
		log.WithError(err).Error("Failed to build scorer client", nil)
		os.Exit(1)
	}

	st := store.New(db, cfg.Scorer.SnapshotTTL, log)
	if err := st.LoadPersisted(ctx); err != nil {
		// Cold start without a snapshot is fine; the first cycle fills it.
		log.WithError(err).Warn("Could not restore persisted snapshot", nil)
	}

	registry := adapters.NewRegistry()
	registry.Register(menujson.Capability, menujson.Factory(
		&http.Client{Timeout: cfg.Refresh.AdapterTimeout}, log))

	agg, err := aggregator.New(cfg.Refresh, cfg.Sources, registry, normalizer.New(log), scoreClient, st, log)
	if err != nil {
		log.WithError(err).Error("Failed to build aggregator", nil)
		os.Exit(1)
	}

	sched := scheduler.New(agg, cfg.Refresh, log)
	sched.Start(ctx)

	apiServer := api.NewServer(st, sched, cfg.Sources, db, log)
	httpServer := &http.Server{
		Addr:              cfg.API.ListenAddress,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{
			"address": cfg.API.ListenAddress,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed", nil)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("Shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown incomplete", nil)
	}

	// Let an in-flight cycle commit before exiting.
	sched.Stop()
	log.Info("Shutdown complete", nil)
}

// retryWithBackoff retries op with exponential backoff until it succeeds or
// the attempt budget runs out.
func retryWithBackoff(ctx context.Context, log logger.Logger, name string, op func() error) error {
	const maxAttempts = 5
	backoff := time.Second

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		log.WithError(err).Warn("Dependency not ready, retrying", map[string]interface{}{
			"dependency": name,
			"attempt":    attempt,
			"backoff":    backoff.String(),
		})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}
