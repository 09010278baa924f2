package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/limaxs-dev/chat-server/internal/api"
	"github.com/limaxs-dev/chat-server/internal/api/middleware"
	"github.com/limaxs-dev/chat-server/internal/auth"
	"github.com/limaxs-dev/chat-server/internal/broker"
	"github.com/limaxs-dev/chat-server/internal/config"
	"github.com/limaxs-dev/chat-server/internal/crypto"
	"github.com/limaxs-dev/chat-server/internal/gateway"
	"github.com/limaxs-dev/chat-server/internal/handlers"
	"github.com/limaxs-dev/chat-server/internal/store"
)

const defaultDevRedisURL = "redis://localhost:6379/0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Token verification key
	publicKey, err := crypto.LoadPublicKey(cfg.JWTPublicKey, cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.JWTPublicKeyPath).Msg("failed to load token public key")
	}
	verifier := auth.NewVerifier(publicKey)

	// Message store and room directory
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Warn().Str("path", cfg.SQLitePath).Msg("DATABASE_URL not set, using SQLite")
	}
	defer db.Close()

	// Presence, call state and broker
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = defaultDevRedisURL
		logger.Warn().Str("url", redisURL).Msg("REDIS_URL not set, using local Redis")
	}
	redisStore, err := store.NewRedisStore(ctx, redisURL, cfg.PresenceTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	publisher := broker.NewRedisBroker(redisStore.Client(), logger, cfg.PublishTimeout)
	registry := gateway.NewRegistry()
	listener := broker.NewListener(redisStore.Client(), registry, logger)

	router := gateway.NewRouter(db, redisStore, publisher, cfg.CallBusyTTL, logger)
	gw := gateway.New(gateway.Config{
		Verifier: verifier,
		Presence: redisStore,
		Rooms:    db,
		Registry: registry,
		Router:   router,
		Options: gateway.Options{
			NodeID:         cfg.NodeID,
			SendQueueSize:  cfg.WebSocket.SendQueueSize,
			ReadLimitBytes: cfg.WebSocket.ReadLimitBytes,
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			PongWait:       cfg.WebSocket.PongWait,
			PingInterval:   cfg.WebSocket.PingInterval,
			FrameRate:      cfg.WebSocket.FrameRate,
			FrameBurst:     cfg.WebSocket.FrameBurst,
		},
	}, logger)

	// Create router
	mux := api.NewRouter(logger, api.Config{
		DataStore: db,
		Redis:     redisStore,
		Verifier:  verifier,
		Gateway:   gw,
		Handlers: handlers.Options{
			NodeID:      cfg.NodeID,
			Connections: registry,
			ICEServers:  cfg.WebRTCICEServers(),
		},
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.Run(gctx)
	})

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("node_id", cfg.NodeID).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		// Graceful shutdown with 30 second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http server forced to shutdown")
		}
		if err := gw.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Int("connections", registry.Count()).Msg("connections did not close in time")
		}
		if err := publisher.Wait(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("in-flight publishes abandoned")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}
