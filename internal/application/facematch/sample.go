package facematch

import (
	"errors"
	"fmt"
	"time"
)

// Slot tags a sample within one verification attempt.
type Slot string

const (
	SlotLive1    Slot = "live1"
	SlotLive2    Slot = "live2"
	SlotDocument Slot = "document"
)

// IsLive reports whether the slot holds a camera capture.
func (s Slot) IsLive() bool { return s == SlotLive1 || s == SlotLive2 }

// DetectorPath identifies which detector resolved a face.
type DetectorPath string

const (
	// PathPrimary is the fast detector.
	PathPrimary DetectorPath = "primary"
	// PathFallback is the full detector used when the fast one is unavailable or finds nothing.
	PathFallback DetectorPath = "fallback"
)

// Sample is one detected face. Samples are never mutated after detection.
type Sample struct {
	Embedding  Embedding
	Confidence float64
	// AreaRatio is the bounding box area divided by the image area.
	AreaRatio float64
	// Faces is the number of faces the detector saw in the frame.
	Faces   int
	Path    DetectorPath
	Elapsed time.Duration
}

// Detection failures. Each one is recoverable by capturing again.
var (
	ErrNoFace        = errors.New("no face detected")
	ErrMultipleFaces = errors.New("multiple faces detected")
	ErrLowConfidence = errors.New("face detection confidence too low")
	ErrFaceTooSmall  = errors.New("face too small in frame")
	ErrMissingSample = errors.New("sample missing")
)

// QualityError is a quality gate rejection for one slot.
type QualityError struct {
	Slot Slot
	Err  error
}

func (e *QualityError) Error() string { return fmt.Sprintf("%s: %v", e.Slot, e.Err) }

func (e *QualityError) Unwrap() error { return e.Err }
