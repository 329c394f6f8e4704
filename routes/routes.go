package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Dosada05/track-bracket/handlers"
	"github.com/Dosada05/track-bracket/middleware"
)

type Options struct {
	AllowedOrigins []string
	// TrustProxyHeaders enables chi's RealIP. Leave it off unless a trusted
	// proxy overwrites X-Forwarded-For, or clients pick their own rate limit key.
	TrustProxyHeaders bool
	// VoteLimiter throttles vote and join requests per client IP; nil disables it.
	VoteLimiter *middleware.IPRateLimiter
	// Metrics serves the Prometheus scrape endpoint; nil leaves /metrics unrouted.
	Metrics        http.Handler
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

func SetupRoutes(
	router chi.Router,
	opts Options,
	gameHandler *handlers.GameHandler,
	catalogHandler *handlers.CatalogHandler,
) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	router.Use(chiMiddleware.RequestID)
	if opts.TrustProxyHeaders {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", gameHandler.HealthHandler)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(opts.RequestTimeout))

		r.Route("/game", func(r chi.Router) {
			// Опрос идёт каждые 2 секунды, поэтому GET-маршруты без лимита.
			r.Get("/", gameHandler.GetHandler)
			r.Get("/by_code", gameHandler.GetByCodeHandler)
			r.Get("/votes", gameHandler.VotesHandler)
			r.Get("/participants", gameHandler.ParticipantsHandler)

			r.Post("/create", gameHandler.CreateHandler)
			r.Post("/by_code", gameHandler.ActionHandler)

			r.Group(func(r chi.Router) {
				if opts.VoteLimiter != nil {
					r.Use(middleware.RateLimit(opts.VoteLimiter, opts.Logger))
				}
				r.Post("/join", gameHandler.JoinHandler)
				r.Post("/vote", gameHandler.VoteHandler)
			})
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/playlists", catalogHandler.ListPlaylistsHandler)
			r.Get("/playlists/{playlistID}/tracks", catalogHandler.ListTracksHandler)
		})
	})
}
