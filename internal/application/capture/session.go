// Package capture drives one face verification attempt on the capturing device:
// two live camera captures plus the face found on the uploaded ID.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/pkg/imaging"
)

// State of a capture session.
type State string

const (
	StateIdle           State = "idle"
	StateCameraStarting State = "camera_starting"
	StateCameraReady    State = "camera_ready"
	StateCapturing      State = "capturing"
	StateDetecting      State = "detecting"
	StateFirstCaptured  State = "first_captured"
	// StateAwaitingDocument holds two accepted live samples until the ID face is available.
	StateAwaitingDocument State = "awaiting_document"
	StateRejected         State = "rejected"
	StateMatched          State = "matched"
)

// Lighting and upload heuristics. They gate capturing and uploads but never decide a match.
const (
	MinFrameLuma     = 50.0
	LightingCrop     = 0.2
	MinDocumentSharp = 50.0
	MinDocumentLuma  = 40.0
)

var (
	ErrNotReady        = errors.New("capture not allowed in current state")
	ErrCaptureInFlight = errors.New("a capture is already in progress")
	// ErrTooDark blocks capture until a lighting check passes again.
	ErrTooDark = errors.New("frame too dark to capture")
	ErrFrame   = errors.New("camera frame unavailable")
)

// Camera produces still frames from a live video source.
type Camera interface {
	Start(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// Detector finds the single most prominent face in an image and embeds it.
type Detector interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, img image.Image) (facematch.Sample, error)
}

// Attempt is a snapshot of the samples collected so far.
type Attempt struct {
	Live1     *facematch.Sample
	Live2     *facematch.Sample
	Document  *facematch.Sample
	RequestID uint64
	Completed bool
}

// Complete reports whether all three samples are present.
func (a Attempt) Complete() bool {
	return a.Live1 != nil && a.Live2 != nil && a.Document != nil
}

// Outcome is delivered once per asynchronous capture or document detection.
type Outcome struct {
	Slot  facematch.Slot
	State State
	// Message is the user-facing hint; empty on a plain acceptance.
	Message string
	Err     error
	// Stale is set when the result was superseded and discarded.
	Stale   bool
	Receipt *facematch.Receipt
}

// Session owns exactly one verification attempt at a time. All methods are safe
// for concurrent use; detection results are applied only if their request id is current.
type Session struct {
	policy   facematch.Policy
	camera   Camera
	detector Detector

	mu         sync.Mutex
	state      State
	attempt    Attempt
	documentID uint64
	running    bool
	cancel     context.CancelFunc
	cancelDoc  context.CancelFunc
	message    string
	receipt    *facematch.Receipt
	tooDark    bool
}

// NewSession returns an idle session.
func NewSession(policy facematch.Policy, camera Camera, detector Detector) *Session {
	return &Session{policy: policy, camera: camera, detector: detector, state: StateIdle}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Message returns the last user-facing hint.
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Attempt returns a copy of the current attempt.
func (s *Session) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Receipt returns the receipt of a matched attempt.
func (s *Session) Receipt() (facematch.Receipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receipt == nil {
		return facematch.Receipt{}, false
	}
	return *s.receipt, true
}

// Open loads the detector and starts the camera. Failures leave the session idle and retryable.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.state = StateCameraStarting
	s.message = ""
	s.mu.Unlock()

	if err := s.detector.Load(ctx); err != nil {
		return s.openFailed(MsgModelLoad, err)
	}
	if err := s.camera.Start(ctx); err != nil {
		return s.openFailed(MsgCameraUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCameraStarting {
		// Cancelled while starting.
		_ = s.camera.Stop()
		return context.Canceled
	}
	s.running = true
	s.state = StateCameraReady
	return nil
}

func (s *Session) openFailed(msg string, err error) error {
	logger.Warning("capture open failed", logger.LoggerOptions{Key: "error", Data: err.Error()})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.message = msg
	return err
}

// CheckLighting samples the centre of the current frame and records the verdict.
// While the last verdict is dark, Capture fails with ErrTooDark.
func (s *Session) CheckLighting(ctx context.Context) (bool, string, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return false, "", ErrNotReady
	}
	frame, err := s.camera.Frame(ctx)
	if err != nil {
		return false, MsgCaptureFailed, err
	}
	dark := imaging.MeanLuma(frame, LightingCrop) < MinFrameLuma

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tooDark = dark
	if dark {
		s.message = MsgTooDark
		return false, MsgTooDark, nil
	}
	if s.message == MsgTooDark {
		s.message = ""
	}
	return true, "", nil
}

func (s *Session) captureAllowed() bool {
	switch s.state {
	case StateCameraReady, StateFirstCaptured, StateRejected, StateAwaitingDocument:
		return s.attempt.Live1 == nil || s.attempt.Live2 == nil
	}
	return false
}

// Capture grabs a frame and detects the face for the next live slot. The outcome
// is delivered on the returned channel, which receives exactly one value.
func (s *Session) Capture(ctx context.Context) (<-chan Outcome, error) {
	s.mu.Lock()
	if s.state == StateCapturing || s.state == StateDetecting {
		s.mu.Unlock()
		return nil, ErrCaptureInFlight
	}
	if !s.running || !s.captureAllowed() {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	if s.tooDark {
		s.message = MsgTooDark
		s.mu.Unlock()
		return nil, ErrTooDark
	}
	slot := facematch.SlotLive1
	if s.attempt.Live1 != nil {
		slot = facematch.SlotLive2
	}
	s.attempt.RequestID++
	id := s.attempt.RequestID
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateCapturing
	s.message = ""
	s.mu.Unlock()

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		defer cancel()
		out <- s.runCapture(ctx, id, slot)
	}()
	return out, nil
}

func (s *Session) runCapture(ctx context.Context, id uint64, slot facematch.Slot) Outcome {
	frame, err := s.camera.Frame(ctx)
	if err != nil {
		return s.applyLive(id, slot, facematch.Sample{}, fmt.Errorf("%w: %w", ErrFrame, err))
	}

	s.mu.Lock()
	if id != s.attempt.RequestID {
		s.mu.Unlock()
		return Outcome{Slot: slot, Stale: true}
	}
	s.state = StateDetecting
	s.mu.Unlock()

	sample, err := s.detector.Detect(ctx, frame)
	return s.applyLive(id, slot, sample, err)
}

func (s *Session) applyLive(id uint64, slot facematch.Slot, sample facematch.Sample, err error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.attempt.RequestID || s.state == StateIdle {
		logger.Debug("discarding stale capture", logger.LoggerOptions{Key: "request_id", Data: id})
		return Outcome{Slot: slot, State: s.state, Stale: true}
	}
	s.cancel = nil
	if err == nil {
		err = s.policy.CheckSample(slot, sample)
	}
	if err != nil {
		return s.reject(slot, liveMessage(err), err)
	}

	accepted := sample
	if slot == facematch.SlotLive1 {
		s.attempt.Live1 = &accepted
		s.state = StateFirstCaptured
		return s.outcome(slot, nil)
	}
	s.attempt.Live2 = &accepted
	return s.settle(slot)
}

// SetDocument detects the face on the uploaded ID. It may run at any point of the
// attempt; a newer upload or a cancel supersedes an older one.
func (s *Session) SetDocument(ctx context.Context, img image.Image) <-chan Outcome {
	out := make(chan Outcome, 1)
	s.mu.Lock()
	if s.state == StateMatched {
		out <- s.outcome(facematch.SlotDocument, ErrNotReady)
		s.mu.Unlock()
		close(out)
		return out
	}
	s.documentID++
	id := s.documentID
	if s.cancelDoc != nil {
		s.cancelDoc()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelDoc = cancel
	s.attempt.Document = nil
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer cancel()
		if imaging.LaplacianVariance(img) < MinDocumentSharp || imaging.MeanLuma(img, 1) < MinDocumentLuma {
			out <- s.applyDocument(id, facematch.Sample{}, errBlurryDocument)
			return
		}
		sample, err := s.detector.Detect(ctx, img)
		out <- s.applyDocument(id, sample, err)
	}()
	return out
}

var errBlurryDocument = errors.New("document image too blurry or dark")

func (s *Session) applyDocument(id uint64, sample facematch.Sample, err error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.documentID {
		return Outcome{Slot: facematch.SlotDocument, State: s.state, Stale: true}
	}
	s.cancelDoc = nil
	if err == nil {
		err = s.policy.CheckSample(facematch.SlotDocument, sample)
	}
	if err != nil {
		msg := documentMessage(err)
		s.message = msg
		return Outcome{Slot: facematch.SlotDocument, State: s.state, Message: msg, Err: err}
	}
	accepted := sample
	s.attempt.Document = &accepted
	if s.state == StateAwaitingDocument {
		return s.settle(facematch.SlotDocument)
	}
	return s.outcome(facematch.SlotDocument, nil)
}

// settle evaluates the attempt once all samples are present. Must hold s.mu.
func (s *Session) settle(slot facematch.Slot) Outcome {
	if !s.attempt.Complete() {
		s.state = StateAwaitingDocument
		return s.outcome(slot, nil)
	}
	a := s.attempt
	decision, err := s.policy.Evaluate(a.Live1, a.Live2, a.Document)
	if err != nil {
		return s.reject(slot, liveMessage(err), err)
	}
	if !decision.Match {
		logger.Debug("face thresholds not met", logger.LoggerOptions{Key: "failed", Data: decision.Failed})
		s.attempt.Live2 = nil
		s.state = StateRejected
		s.message = MsgThresholds
		return Outcome{Slot: slot, State: s.state, Message: s.message, Err: facematch.ErrThresholds}
	}
	r := facematch.NewReceipt(*a.Live1, *a.Live2, *a.Document, decision.Distances)
	s.receipt = &r
	s.attempt.Completed = true
	s.state = StateMatched
	s.message = MsgMatched
	return Outcome{Slot: slot, State: s.state, Message: s.message, Receipt: &r}
}

// reject keeps every earlier sample and loops back for a retry. Must hold s.mu.
func (s *Session) reject(slot facematch.Slot, msg string, err error) Outcome {
	var qe *facematch.QualityError
	if errors.As(err, &qe) && qe.Slot == facematch.SlotDocument {
		s.attempt.Document = nil
		msg = documentMessage(err)
	}
	s.state = StateRejected
	s.message = msg
	return Outcome{Slot: slot, State: s.state, Message: msg, Err: err}
}

func (s *Session) outcome(slot facematch.Slot, err error) Outcome {
	return Outcome{Slot: slot, State: s.state, Message: s.message, Err: err}
}

// Cancel stops the camera, invalidates in-flight detections and clears the attempt.
// The session returns to idle and can be opened again for a new attempt.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cancelDoc != nil {
		s.cancelDoc()
		s.cancelDoc = nil
	}
	next := s.attempt.RequestID + 1
	s.attempt = Attempt{RequestID: next}
	s.documentID++
	s.receipt = nil
	s.message = ""
	s.tooDark = false
	s.state = StateIdle
	running := s.running
	s.running = false
	s.mu.Unlock()

	if running {
		if err := s.camera.Stop(); err != nil {
			logger.Warning("camera stop failed", logger.LoggerOptions{Key: "error", Data: err.Error()})
		}
	}
}
