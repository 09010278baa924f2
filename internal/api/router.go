package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/limaxs-dev/chat-server/internal/api/middleware"
	"github.com/limaxs-dev/chat-server/internal/handlers"
	"github.com/limaxs-dev/chat-server/internal/store"
)

// Config wires the HTTP router.
type Config struct {
	DataStore      store.DataStore
	Redis          *store.RedisStore
	Verifier       middleware.TokenVerifier
	Gateway        http.Handler
	Handlers       handlers.Options
	AllowedOrigins []string
	RateLimit      middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if cfg.Redis != nil {
		rlCfg := cfg.RateLimit
		if rlCfg.Verifier == nil {
			rlCfg.Verifier = cfg.Verifier
		}
		limiter := middleware.NewRateLimiter(cfg.Redis.Client(), logger, rlCfg)
		r.Use(limiter.Middleware)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(cfg.DataStore, cfg.Redis, cfg.Handlers)
	auth := middleware.NewAuthMiddleware(cfg.Verifier)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (the socket authenticates with its token query parameter)
	r.Get("/health", h.Health)
	r.Handle("/ws", cfg.Gateway)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/presence/{userId}", h.Presence)
		r.Get("/api/front/config/webrtc", h.WebRTCConfig)
	})

	return r
}
