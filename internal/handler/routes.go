package handler

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fuelsync/fuelsync/internal/middleware"
	"github.com/fuelsync/fuelsync/internal/service"
)

// RouterConfig wires the API router.
type RouterConfig struct {
	Logger    *slog.Logger
	Service   *service.Service
	Verifier  middleware.TokenVerifier
	RateLimit middleware.RateLimitConfig
	Security  middleware.SecurityConfig
	// RequestTimeout bounds API handlers when positive.
	RequestTimeout time.Duration
	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string
	// Store and Cache back /readyz; either may be nil.
	Store HealthChecker
	Cache HealthChecker
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := New(cfg.Service, logger)
	health := NewHealthHandler(cfg.Store, cfg.Cache)

	rl := cfg.RateLimit
	if rl.Logger == nil {
		rl.Logger = logger
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(cfg.Security))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
	}
	if cfg.Security.MaxRequestBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))
	}
	r.Use(middleware.RateLimitIP(rl))

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Method("GET", "/metrics", MetricsHandler(cfg.Gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(middleware.AuthConfig{Logger: logger, Verifier: cfg.Verifier}))
		r.Use(middleware.RateLimitOwner(rl))
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}

		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/rates/{date}", h.Rate)

		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", h.ListVehicles)
			r.Post("/", h.CreateVehicle)

			r.Route("/{vehicleID}", func(r chi.Router) {
				r.Get("/", h.GetVehicle)
				r.Patch("/", h.UpdateVehicle)
				r.Delete("/", h.DeleteVehicle)
				r.Get("/statistics", h.Statistics)
				r.Get("/charts", h.Charts)

				r.Route("/refills", func(r chi.Router) {
					r.Get("/", h.ListRefills)
					r.Post("/", h.CreateRefill)
					r.Get("/{refillID}", h.GetRefill)
					r.Put("/{refillID}", h.UpdateRefill)
					r.Delete("/{refillID}", h.DeleteRefill)
				})

				r.Route("/expenses", func(r chi.Router) {
					r.Get("/", h.ListExpenses)
					r.Post("/", h.CreateExpense)
					r.Get("/{expenseID}", h.GetExpense)
					r.Put("/{expenseID}", h.UpdateExpense)
					r.Delete("/{expenseID}", h.DeleteExpense)
				})
			})
		})
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
