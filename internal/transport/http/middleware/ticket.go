package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtinfra "github.com/patient-idv/internal/infrastructure/jwt"
	"github.com/patient-idv/internal/infrastructure/logger"
)

type contextKey string

const ticketKey contextKey = "email_ticket"

// TicketHeader carries the email verification ticket issued after OTP.
const TicketHeader = "X-Email-Verification"

// MsgVerifyEmail is returned when the ticket is missing, invalid or for another email.
const MsgVerifyEmail = "Please verify your email with OTP before registering."

// TicketVerifier validates email verification tickets.
type TicketVerifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// EmailTicket returns middleware that requires a valid email verification
// ticket and injects its claims into context.
func EmailTicket(verifier TicketVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get(TicketHeader), "Bearer "))
			if raw == "" {
				writeJSONError(w, http.StatusUnauthorized, MsgVerifyEmail)
				return
			}
			claims, err := verifier.Verify(raw)
			if err != nil {
				logger.Info("email ticket rejected", logger.LoggerOptions{Key: "error", Data: err.Error()})
				writeJSONError(w, http.StatusUnauthorized, MsgVerifyEmail)
				return
			}
			ctx := context.WithValue(r.Context(), ticketKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TicketFromContext extracts the verified ticket claims from the request context.
func TicketFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ticketKey).(*jwtinfra.Claims)
	return c, ok
}

// WithTicket returns ctx carrying claims. Used by handler tests.
func WithTicket(ctx context.Context, claims *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, ticketKey, claims)
}
