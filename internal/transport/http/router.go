package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/patient-idv/internal/config"
	"github.com/patient-idv/internal/transport/http/handler"
	appmiddleware "github.com/patient-idv/internal/transport/http/middleware"
)

// NewRouter builds the application router. The returned limiter must be
// stopped on shutdown.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, *appmiddleware.RateLimiter) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", appmiddleware.TicketHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 1 request/second, burst of 5 per IP. Registration runs OCR and bcrypt.
	registerRL := appmiddleware.NewRateLimiter(rate.Limit(1), 5)

	healthH := handler.NewHealthHandler(deps.HealthChecks...)
	registrationH := handler.NewRegistrationHandler(deps.Registrations, cfg.MaxDocumentBytes)

	r.Get("/healthz", healthH.Live)
	r.Get("/readyz", healthH.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(registerRL.Limit, appmiddleware.EmailTicket(deps.Tickets)).
			Post("/registrations", registrationH.Register)
	})

	return r, registerRL
}
