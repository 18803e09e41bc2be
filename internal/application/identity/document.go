package identity

import (
	"context"
	"errors"

	"github.com/patient-idv/internal/application/ocr"
	"github.com/patient-idv/internal/domain"
)

const (
	MsgOCRNeedsImage  = "Please upload an image of your ID so we can verify the ID number."
	MsgOCRUnreadable  = "Unable to read the ID image. Please upload a clearer photo."
	MsgOCRWrongType   = "Uploaded image does not look like a valid ID. Please upload the correct ID."
	MsgOCRNumberBlur  = "Unable to read the ID number clearly. Please upload a clearer ID photo."
	MsgOCRMismatch    = "The ID number does not match the uploaded ID or could not be read. Please upload a clearer photo of the correct ID."
	MsgOCRUnavailable = "Unable to read the ID image right now. Please try again later."
)

// NumberMatcher checks the declared number against the document.
type NumberMatcher interface {
	Match(ctx context.Context, doc *domain.IDDocument) (*ocr.Result, error)
}

// DocumentNumberGate requires the declared ID number to be readable on the document.
type DocumentNumberGate struct {
	matcher NumberMatcher
}

func NewDocumentNumberGate(matcher NumberMatcher) *DocumentNumberGate {
	return &DocumentNumberGate{matcher: matcher}
}

func (g *DocumentNumberGate) Name() string { return "ocr" }

func (g *DocumentNumberGate) Evaluate(ctx context.Context, doc *domain.IDDocument, _ Claim) error {
	_, err := g.matcher.Match(ctx, doc)
	if err == nil {
		return nil
	}
	return &Rejection{Gate: g.Name(), Message: ocrMessage(err), Err: err}
}

func ocrMessage(err error) string {
	switch {
	case errors.Is(err, ocr.ErrPDFNotSupported):
		return MsgOCRNeedsImage
	case errors.Is(err, ocr.ErrEngineUnavailable):
		return MsgOCRUnavailable
	case errors.Is(err, ocr.ErrMarkerMissing):
		return MsgOCRWrongType
	case errors.Is(err, ocr.ErrUnreadableNumber):
		return MsgOCRNumberBlur
	case errors.Is(err, ocr.ErrNumberMismatch):
		return MsgOCRMismatch
	}
	return MsgOCRUnreadable
}
