package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"videojoin/internal/platform/config"
	"videojoin/internal/platform/logger"
	"videojoin/internal/platform/metrics"
	"videojoin/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	cfg := session.DefaultConfig()
	cfg.Engine.Realtime = config.GetEnvBool("REALTIME", cfg.Engine.Realtime)
	cfg.Engine.RateUp = config.GetEnvBool("RATE_UP", cfg.Engine.RateUp)
	cfg.Engine.BatchCap = config.GetEnvInt("BATCH_CAP", cfg.Engine.BatchCap)
	cfg.Engine.ReadyEvent = config.GetEnv("READY_EVENT", cfg.Engine.ReadyEvent)
	cfg.Engine.ReadyPollInterval = config.GetEnvDuration("READY_POLL_INTERVAL", cfg.Engine.ReadyPollInterval)
	cfg.Engine.ReadyPollLimit = config.GetEnvInt("READY_POLL_LIMIT", cfg.Engine.ReadyPollLimit)
	cfg.Engine.MIME = config.MediaFromEnv().MIME
	cfg.Host.SegmentDuration = config.GetEnvDuration("SEGMENT_DURATION", config.MediaFromEnv().RecorderPeriod)
	cfg.Host.DecodeDelay = config.GetEnvDuration("DECODE_DELAY", cfg.Host.DecodeDelay)
	cfg.PipelineDelay = config.GetEnvDuration("PIPELINE_DELAY", cfg.PipelineDelay)
	cfg.MaxSessions = config.GetEnvInt("MAX_SESSIONS", 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	repo := session.NewInMemoryRepository()
	// Sessions outlive the signal so Close can stop their backends.
	svc := session.NewService(context.Background(), repo, cfg, log, met)
	h := session.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(repo.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	log.Info("server starting",
		"port", port,
		"realtime", cfg.Engine.Realtime,
		"rate_up", cfg.Engine.RateUp,
		"batch_cap", cfg.Engine.BatchCap,
		"ready_event", cfg.Engine.ReadyEvent,
		"segment_duration", cfg.Host.SegmentDuration,
		"log_level", logLevel,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if cerr := svc.Close(shutdownCtx); err == nil {
			err = cerr
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
