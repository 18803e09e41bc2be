package capture

import (
	"errors"

	"github.com/patient-idv/internal/application/facematch"
)

// User-facing hints.
const (
	MsgCameraUnavailable = "Unable to access the camera. Please allow camera access and try again."
	MsgModelLoad         = "Face detection could not start. Please reload and try again."
	MsgCaptureFailed     = "Unable to capture an image. Please try again."
	MsgTooDark           = "Lighting is too dark. Please move to a brighter area."
	MsgNoFace            = "No face detected. Please center your face and try again."
	MsgUnclear           = "Face not detected clearly. Please improve lighting and try again."
	MsgTooSmall          = "Face too small in the frame. Move closer and try again."
	MsgMultipleFaces     = "More than one face detected. Make sure only you are in the frame."
	MsgDocumentUnclear   = "ID face is too small or unclear. Please upload a clearer ID."
	MsgDocumentNoFace    = "No face found on the ID. Please upload a clear photo of your ID."
	MsgDocumentMulti     = "The ID shows more than one face. Please upload a photo of your ID only."
	MsgThresholds        = "Face verification did not meet security thresholds. Please try again."
	MsgMatched           = "Face verified."
)

func liveMessage(err error) string {
	switch {
	case errors.Is(err, facematch.ErrNoFace):
		return MsgNoFace
	case errors.Is(err, facematch.ErrFaceTooSmall):
		return MsgTooSmall
	case errors.Is(err, facematch.ErrMultipleFaces):
		return MsgMultipleFaces
	case errors.Is(err, facematch.ErrLowConfidence):
		return MsgUnclear
	case errors.Is(err, ErrFrame):
		return MsgCaptureFailed
	}
	// Detector errors are handled like an unclear detection.
	return MsgUnclear
}

func documentMessage(err error) string {
	switch {
	case errors.Is(err, facematch.ErrNoFace):
		return MsgDocumentNoFace
	case errors.Is(err, facematch.ErrMultipleFaces):
		return MsgDocumentMulti
	}
	return MsgDocumentUnclear
}
