package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
)

const (
	MsgFaceThresholds  = "Face verification did not meet security thresholds. Please verify your face again."
	MsgFaceIncomplete  = "Please complete face verification before registering."
	MsgFaceUnavailable = "Unable to verify the ID photo right now. Please try again later."
	MsgFaceNeedsImage  = "Please upload an image of your ID so we can verify your face."
	MsgFaceDocument    = "Could not detect a face on the ID. Please upload a clearer ID with your face visible."
)

// ErrDocumentNotBound means the uploaded document face differs from the one the receipt was built on.
var ErrDocumentNotBound = errors.New("document face does not match receipt")

// DocumentFaceExtractor finds and embeds the face on an uploaded document.
type DocumentFaceExtractor interface {
	ExtractDocument(ctx context.Context, doc *domain.IDDocument) (facematch.Sample, error)
}

// FaceGate recomputes the face decision from the receipt. With an extractor it
// also checks that the receipt was built from the uploaded document.
type FaceGate struct {
	policy    facematch.Policy
	extractor DocumentFaceExtractor
	alerter   Alerter
	now       func() time.Time
}

// NewFaceGate builds the face gate. extractor and alerter may be nil.
func NewFaceGate(policy facematch.Policy, extractor DocumentFaceExtractor, alerter Alerter) *FaceGate {
	return &FaceGate{policy: policy, extractor: extractor, alerter: alerter, now: time.Now}
}

func (g *FaceGate) Name() string { return "face" }

func (g *FaceGate) Evaluate(ctx context.Context, doc *domain.IDDocument, claim Claim) error {
	d, err := g.policy.Verify(claim.Receipt)
	if err != nil {
		if errors.Is(err, facematch.ErrNotVerified) {
			return &Rejection{Gate: g.Name(), Message: MsgFaceIncomplete, Err: err}
		}
		logger.Diagnostic("face receipt rejected",
			logger.LoggerOptions{Key: "email", Data: claim.Email},
			logger.LoggerOptions{Key: "d1", Data: d.Live1Document},
			logger.LoggerOptions{Key: "d2", Data: d.Live2Document},
			logger.LoggerOptions{Key: "dlive", Data: d.Live1Live2},
			logger.LoggerOptions{Key: "error", Data: err.Error()})
		g.alert(ctx, claim, err)
		return &Rejection{Gate: g.Name(), Message: MsgFaceThresholds, Err: err}
	}
	if g.extractor == nil {
		return nil
	}
	return g.bind(ctx, doc, claim)
}

func (g *FaceGate) bind(ctx context.Context, doc *domain.IDDocument, claim Claim) error {
	if !doc.IsImage() {
		return &Rejection{Gate: g.Name(), Message: MsgFaceNeedsImage, Err: fmt.Errorf("document face binding: %w", domain.ErrUnprocessable)}
	}
	sample, err := g.extractor.ExtractDocument(ctx, doc)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			logger.Error("document face extractor unavailable", logger.LoggerOptions{Key: "error", Data: err.Error()})
			return &Rejection{Gate: g.Name(), Message: MsgFaceUnavailable, Err: err}
		}
		return &Rejection{Gate: g.Name(), Message: MsgFaceDocument, Err: err}
	}
	if err := g.policy.CheckSample(facematch.SlotDocument, sample); err != nil {
		return &Rejection{Gate: g.Name(), Message: MsgFaceDocument, Err: err}
	}
	distance := facematch.Distance(sample.Embedding, claim.Receipt.Document)
	if !(distance <= g.policy.CrossThreshold) {
		err := fmt.Errorf("%w: %w: distance %.4f", domain.ErrIntegrity, ErrDocumentNotBound, distance)
		g.alert(ctx, claim, err)
		return &Rejection{Gate: g.Name(), Message: MsgFaceThresholds, Err: err}
	}
	return nil
}

func (g *FaceGate) alert(ctx context.Context, claim Claim, err error) {
	if !errors.Is(err, domain.ErrIntegrity) {
		return
	}
	raise(ctx, g.alerter, Alert{Gate: g.Name(), Email: claim.Email, Reason: err.Error(), DetectedAt: g.now().UTC()})
}
