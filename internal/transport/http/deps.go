package http

import (
	"net/http"

	"github.com/patient-idv/internal/application/registration"
	"github.com/patient-idv/internal/transport/http/handler"
	appmiddleware "github.com/patient-idv/internal/transport/http/middleware"
)

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Registrations registration.Service
	Tickets       appmiddleware.TicketVerifier
	HealthChecks  []handler.HealthCheck
	// Metrics serves the Prometheus exposition; nil disables /metrics.
	Metrics http.Handler
}
