// Package identity composes the independent checks a registration must pass
// before an identity document is accepted.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/infrastructure/metrics"
)

// Claim is what the applicant asserts alongside the document.
type Claim struct {
	Email   string
	Receipt facematch.Receipt
}

// Gate accepts or rejects a document and claim. A nil error is an acceptance;
// rejections are returned as *Rejection.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, doc *domain.IDDocument, claim Claim) error
}

// Rejection carries the generic message shown to the applicant. Err holds the
// diagnostic cause and must never be sent to the client.
type Rejection struct {
	Gate    string
	Message string
	Err     error
}

func (r *Rejection) Error() string { return fmt.Sprintf("%s gate: %v", r.Gate, r.Err) }

func (r *Rejection) Unwrap() error { return r.Err }

// Alert describes a request that failed an integrity check.
type Alert struct {
	Gate       string    `json:"gate"`
	Email      string    `json:"email"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

// Alerter forwards integrity alerts to operators.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// All composes gates with logical AND. Gates run in order and the first rejection wins.
func All(m *metrics.Metrics, gates ...Gate) Gate {
	return &chain{gates: gates, metrics: m}
}

type chain struct {
	gates   []Gate
	metrics *metrics.Metrics
}

func (c *chain) Name() string { return "all" }

func (c *chain) Evaluate(ctx context.Context, doc *domain.IDDocument, claim Claim) error {
	for _, g := range c.gates {
		err := g.Evaluate(ctx, doc, claim)
		c.metrics.IncrementGate(g.Name(), outcome(err))
		if err != nil {
			return err
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accept"
	case errors.Is(err, domain.ErrUnavailable):
		return "error"
	case errors.Is(err, domain.ErrIntegrity):
		return "integrity"
	}
	return "reject"
}

// raise logs and forwards an integrity violation. Alert failures are logged only.
func raise(ctx context.Context, alerter Alerter, a Alert) {
	logger.Warning("identity integrity violation",
		logger.LoggerOptions{Key: "gate", Data: a.Gate},
		logger.LoggerOptions{Key: "reason", Data: a.Reason})
	if alerter == nil {
		return
	}
	if err := alerter.Alert(ctx, a); err != nil {
		logger.Error("integrity alert failed", logger.LoggerOptions{Key: "error", Data: err.Error()})
	}
}
