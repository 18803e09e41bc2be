package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrBadRequest    = errors.New("bad request")
	ErrUnprocessable = errors.New("unprocessable")
	// ErrIntegrity marks client-asserted state that did not survive server recomputation.
	ErrIntegrity = errors.New("integrity violation")
	// ErrUnavailable marks a missing or failing dependency (engine, model, store).
	ErrUnavailable = errors.New("unavailable")
)
