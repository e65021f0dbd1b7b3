package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/soulart-temple/backend/internal/config"
	"github.com/soulart-temple/backend/internal/guide"
	"github.com/soulart-temple/backend/internal/handlers"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/metrics"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/session"
	"github.com/soulart-temple/backend/internal/validator"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	DB           handlers.Pinger
	Sessions     *session.Manager
	Members      middleware.MemberLoader
	Entitlements handlers.Entitlements
	Guide        guide.Completer
	Stripe       *handlers.StripeHandler
	Auth         *handlers.AuthHandler
	Journal      *handlers.JournalHandler
	Validator    *validator.Validator
	Log          *logger.Logger
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	stop       chan struct{}
	log        *logger.Logger
}

// New constructs an HTTP server using the provided configuration and collaborators.
func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	v := deps.Validator
	if v == nil {
		v = validator.New()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.NewRequestTracker(log).Middleware())
	router.Use(chimw.Recoverer)
	router.Use(middleware.CORS(cfg.FrontendOrigins))

	router.Get("/healthz", handlers.Health(deps.DB))
	router.Handle("/metrics", metrics.Handler())

	// The provider calls the webhook without a visitor session.
	if deps.Stripe != nil {
		router.Post("/api/stripe/webhook", deps.Stripe.HandleWebhook())
	}

	limiter := middleware.NewRateLimiter(cfg.GuideRatePerSecond, cfg.GuideRateBurst)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Identity(deps.Sessions, deps.Members, log))

		r.Get("/demo/{token}", handlers.ActivateDemo(cfg.DemoAccessToken, deps.Sessions, log))

		r.Get("/api/entitlements", handlers.ListEntitlements(deps.Entitlements, log))
		r.Get("/api/entitlements/{feature}", handlers.GetEntitlement(deps.Entitlements, log))

		r.Get("/api/guide/usage", handlers.GuideUsage(deps.Entitlements, log))
		r.With(middleware.RateLimit(limiter)).Post("/api/guide/chat", handlers.GuideChat(deps.Entitlements, deps.Guide, v, log))

		r.Get("/api/decoder/usage", handlers.DecoderUsage(deps.Entitlements, log))
		r.Post("/api/decoder/track-use", handlers.DecoderTrackUse(deps.Entitlements, log))

		if deps.Auth != nil {
			deps.Auth.RegisterRoutes(r)
		}
		if deps.Journal != nil {
			deps.Journal.RegisterRoutes(r)
		}
		if deps.Stripe != nil {
			deps.Stripe.RegisterRoutes(r)
		}
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, limiter: limiter, stop: make(chan struct{}), log: log}
}

// Start begins serving HTTP traffic and the rate limiter janitor.
func (s *Server) Start() error {
	go s.limiter.Run(5*time.Minute, s.stop)
	s.log.Infof("[server] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
