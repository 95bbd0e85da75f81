// Command worker drains the certificate delivery queue and sends emails.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/corvusHold/certify/internal/config"
	"github.com/corvusHold/certify/internal/delivery"
	"github.com/corvusHold/certify/internal/logger"
	"github.com/corvusHold/certify/internal/metrics"
	srepo "github.com/corvusHold/certify/internal/settings/repository"
	ssvc "github.com/corvusHold/certify/internal/settings/service"
	"github.com/corvusHold/certify/internal/version"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.AppEnv)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	})); err != nil {
		log.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}
	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required for the standalone worker")
	}
	log.Info().Int("workers", cfg.DeliveryWorkers).Str("version", version.String()).Msg("starting delivery worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pg pool")
	}
	defer pgPool.Close()

	queue, err := delivery.OpenQueue(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open delivery queue")
	}
	defer queue.Close()

	settings := ssvc.New(srepo.New(pgPool))
	pool := delivery.NewPool(queue, settings, cfg, log)

	// Health and metrics for the orchestrator's probes.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		pctx, cancel := context.WithTimeout(c.Request().Context(), 500*time.Millisecond)
		defer cancel()
		dbStatus := "ok"
		if !metrics.Probe(pctx, "db", pgPool.Ping) {
			dbStatus = "down"
		}
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "db": dbStatus, "version": version.String()})
	})
	e.GET("/metrics", metrics.Handler())
	go func() {
		if err := e.Start(cfg.WorkerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("delivery pool stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("worker stopped")
}
