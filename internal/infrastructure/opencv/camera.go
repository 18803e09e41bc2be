//go:build gocv

package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/patient-idv/internal/domain"
)

var ErrCameraClosed = errors.New("camera not started")

// Webcam reads frames from a local capture device.
type Webcam struct {
	device int

	mu    sync.Mutex
	video *gocv.VideoCapture
	frame gocv.Mat
}

func NewWebcam(device int) *Webcam {
	return &Webcam{device: device}
}

func (w *Webcam) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.video != nil {
		return nil
	}
	video, err := gocv.OpenVideoCapture(w.device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w: %w", w.device, domain.ErrUnavailable, err)
	}
	w.video = video
	w.frame = gocv.NewMat()
	return nil
}

// Frame grabs the next frame.
func (w *Webcam) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.video == nil {
		return nil, ErrCameraClosed
	}
	if ok := w.video.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("read camera %d: %w", w.device, domain.ErrUnavailable)
	}
	return w.frame.ToImage()
}

func (w *Webcam) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.video == nil {
		return nil
	}
	_ = w.frame.Close()
	err := w.video.Close()
	w.video = nil
	return err
}
