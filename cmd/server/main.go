// Command server runs one worker of the astronomy bot fleet. Any number of
// identical workers can run against the same database; the coordinator's
// distributed gates sort out which one registers the Telegram webhooks and
// which one runs the scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-astro-bot/internal/apod"
	"github.com/tbourn/go-astro-bot/internal/bot"
	"github.com/tbourn/go-astro-bot/internal/cache"
	"github.com/tbourn/go-astro-bot/internal/config"
	"github.com/tbourn/go-astro-bot/internal/coordinator"
	httpapi "github.com/tbourn/go-astro-bot/internal/http"
	"github.com/tbourn/go-astro-bot/internal/lock"
	"github.com/tbourn/go-astro-bot/internal/observability"
	"github.com/tbourn/go-astro-bot/internal/repo"
	"github.com/tbourn/go-astro-bot/internal/scheduler"
	"github.com/tbourn/go-astro-bot/internal/slot"
	"github.com/tbourn/go-astro-bot/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for local development; real deployments use the process
	// environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing setup failed")
		}
	}

	loc := cfg.Location()
	store := cache.New(db)
	locks := lock.NewCacheLock(store)
	registry := bot.NewRegistry(db)
	slots := slot.NewReconciler(db)
	apodClient := apod.New(cfg.APODEndpoint, cfg.NASAAPIKey)
	dispatcher := bot.NewDispatcher(db, store, slots, apodClient, loc)
	mailer := bot.NewMailer(db, store, slots, registry, loc)

	coord := coordinator.New(store, locks, registry, cfg.Webhook, cfg.PollInterval,
		func() (coordinator.Runner, error) {
			return scheduler.New(loc, mailer.Dispatch)
		})

	if err := coord.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("coordinator start failed")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:         db,
		Registry:   registry,
		Dispatcher: dispatcher,
		Notifier:   coord,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Release gates first so a surviving worker can take over the webhooks
	// and scheduler while this one drains.
	coord.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("bye")
}
