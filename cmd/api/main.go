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
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/corvusHold/certify/internal/apikeys"
	"github.com/corvusHold/certify/internal/bounces"
	"github.com/corvusHold/certify/internal/certificates"
	"github.com/corvusHold/certify/internal/config"
	"github.com/corvusHold/certify/internal/delivery"
	"github.com/corvusHold/certify/internal/logger"
	"github.com/corvusHold/certify/internal/metrics"
	"github.com/corvusHold/certify/internal/platform/ratelimit"
	"github.com/corvusHold/certify/internal/platform/validation"
	"github.com/corvusHold/certify/internal/render"
	"github.com/corvusHold/certify/internal/settings"
	"github.com/corvusHold/certify/internal/storage"
	"github.com/corvusHold/certify/internal/tokens"
	"github.com/corvusHold/certify/internal/version"
)

// @title           Certify API
// @version         1.0
// @description     Certificate generation and delivery.
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization

func main() {
	_ = godotenv.Load()
	if handleCLICommand(os.Args[1:]) {
		return
	}

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
	log.Info().Str("addr", cfg.AppAddr).Str("version", version.String()).Msg("starting api server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init Postgres
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid DATABASE_URL")
	}
	pgPool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pg pool")
	}
	defer pgPool.Close()

	// Init Redis/Valkey; the rate limiter degrades to per-process counters without it.
	var redisClient *redis.Client
	var rateStore ratelimit.Store
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer redisClient.Close()
		rateStore = ratelimit.NewRedisStore(redisClient)
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.SweepEvery(ctx, cfg.APIRateWindow)
		rateStore = mem
	}

	store, err := storage.Open(ctx, storage.Options{
		URL:             cfg.StorageURL,
		Region:          cfg.StorageRegion,
		URLTTL:          cfg.StorageURLTTL,
		CredentialsFile: cfg.StorageCredentialsFile,
	}, logger.Component(log, "storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open artifact store")
	}

	fetcher := render.NewHTTPFetcher(cfg.RenderHTTPTimeout)
	fonts, err := render.NewFontSource(fetcher, logger.Component(log, "fonts"))
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load fonts")
	}
	renderer := render.New(render.NewFetchLoader(fetcher), fonts, cfg.ValidationURL, logger.Component(log, "render"))

	queue, err := delivery.OpenQueue(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open delivery queue")
	}
	defer queue.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middlewares
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	e.Use(metrics.HTTPMiddleware())
	e.Use(corsMiddleware(cfg.CORSAllowedOrigins))

	// Validator
	e.Validator = validation.New()

	// Register domain routes via factories
	settingsSvc := settings.Register(e, pgPool, cfg, log)
	tokens.Register(e, pgPool, cfg, log)
	keys := apikeys.Register(e, pgPool, cfg, log)
	certificates.Register(e, pgPool, cfg, log, certificates.Deps{
		Renderer:  renderer,
		Store:     store,
		Queue:     queue,
		Settings:  settingsSvc,
		APIKeys:   keys,
		RateStore: rateStore,
	})
	bounces.Register(e, pgPool, cfg, log)

	// Without a broker the API process drains its own queue.
	if cfg.AMQPURL == "" {
		pool := delivery.NewPool(queue, settingsSvc, cfg, log)
		go func() {
			if err := pool.Run(ctx); err != nil {
				log.Error().Err(err).Msg("delivery pool stopped")
			}
		}()
	}

	// Health endpoint pings DB and Redis
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 500*time.Millisecond)
		defer cancel()

		dbStatus := "ok"
		if !metrics.Probe(ctx, "db", pgPool.Ping) {
			dbStatus = "down"
		}

		cacheStatus := "disabled"
		if redisClient != nil {
			cacheStatus = "ok"
			if !metrics.Probe(ctx, "redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }) {
				cacheStatus = "down"
			}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"time":    time.Now().UTC().Format(time.RFC3339),
			"version": version.String(),
			"db":      dbStatus,
			"cache":   cacheStatus,
		})
	})
	e.GET("/metrics", metrics.Handler())

	// Start server
	go func() {
		if err := e.Start(cfg.AppAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
