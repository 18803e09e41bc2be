//go:build gocv

package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/config"
	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/pkg/imaging"
)

// Model input geometry.
var (
	detectorInput = image.Pt(300, 300)
	embedderInput = image.Pt(96, 96)
)

// ssdFloor keeps weak SSD boxes out of the candidate set; the quality gate
// applies the real confidence threshold.
const ssdFloor = 0.2

var ErrModelsNotLoaded = errors.New("face models not loaded")

// Pipeline detects faces with an SSD network, falls back to a Haar cascade and
// embeds the most prominent face with an OpenFace network. It implements both
// capture.Detector and identity.DocumentFaceExtractor.
type Pipeline struct {
	cfg config.FaceConfig

	mu       sync.Mutex
	loaded   bool
	detector gocv.Net
	cascade  gocv.CascadeClassifier
	embedder gocv.Net
	primary  bool
}

func New(cfg config.FaceConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Load reads the models. A missing SSD model degrades to the cascade; a
// missing cascade or embedder is an error.
func (p *Pipeline) Load(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}

	p.detector = gocv.ReadNet(p.cfg.DetectorModelPath, p.cfg.DetectorConfigPath)
	p.primary = !p.detector.Empty()
	if !p.primary {
		logger.Warning("ssd face detector unavailable, using cascade only",
			logger.LoggerOptions{Key: "model", Data: p.cfg.DetectorModelPath})
	}

	p.cascade = gocv.NewCascadeClassifier()
	if !p.cascade.Load(p.cfg.CascadePath) {
		_ = p.detector.Close()
		_ = p.cascade.Close()
		return fmt.Errorf("load cascade %s: %w", p.cfg.CascadePath, domain.ErrUnavailable)
	}

	p.embedder = gocv.ReadNet(p.cfg.EmbedderModelPath, "")
	if p.embedder.Empty() {
		_ = p.detector.Close()
		_ = p.cascade.Close()
		_ = p.embedder.Close()
		return fmt.Errorf("load embedder %s: %w", p.cfg.EmbedderModelPath, domain.ErrUnavailable)
	}
	p.loaded = true
	logger.Info("face models loaded", logger.LoggerOptions{Key: "ssd", Data: p.primary})
	return nil
}

// Detect finds the most prominent face in img and embeds it. A frame without
// a face yields a zero-face sample, not an error.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) (facematch.Sample, error) {
	if err := ctx.Err(); err != nil {
		return facematch.Sample{}, err
	}
	start := time.Now()

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return facematch.Sample{}, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	frame := image.Rect(0, 0, mat.Cols(), mat.Rows())

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return facematch.Sample{}, ErrModelsNotLoaded
	}

	path := facematch.PathPrimary
	var found []detection
	if p.primary {
		found = p.detectSSD(mat, frame)
	}
	if len(found) == 0 {
		path = facematch.PathFallback
		found = p.detectCascade(mat)
	}
	best, ok := prominent(found)
	if !ok {
		return facematch.Sample{Path: path, Elapsed: time.Since(start)}, nil
	}

	embedding, err := p.embed(mat, pad(best.Box, frame, 0.1))
	if err != nil {
		return facematch.Sample{}, err
	}
	return facematch.Sample{
		Embedding:  embedding,
		Confidence: best.Confidence,
		AreaRatio:  areaRatio(best.Box, frame),
		Faces:      len(found),
		Path:       path,
		Elapsed:    time.Since(start),
	}, nil
}

// ExtractDocument decodes an uploaded ID image and embeds its face.
func (p *Pipeline) ExtractDocument(ctx context.Context, doc *domain.IDDocument) (facematch.Sample, error) {
	if err := p.Load(ctx); err != nil {
		return facematch.Sample{}, err
	}
	img, err := imaging.Decode(doc.Bytes)
	if err != nil {
		return facematch.Sample{}, fmt.Errorf("decode document: %w", err)
	}
	return p.Detect(ctx, img)
}

func (p *Pipeline) detectSSD(mat gocv.Mat, frame image.Rectangle) []detection {
	blob := gocv.BlobFromImage(mat, 1.0, detectorInput, gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()
	p.detector.SetInput(blob, "")
	out := p.detector.Forward("")
	defer out.Close()

	values, err := out.DataPtrFloat32()
	if err != nil {
		logger.Warning("ssd output unreadable", logger.LoggerOptions{Key: "error", Data: err.Error()})
		return nil
	}
	return parseSSD(values, frame, ssdFloor)
}

func (p *Pipeline) detectCascade(mat gocv.Mat) []detection {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	equalized := gocv.NewMat()
	defer equalized.Close()
	gocv.EqualizeHist(gray, &equalized)
	return fromCascade(p.cascade.DetectMultiScale(equalized))
}

func (p *Pipeline) embed(mat gocv.Mat, box image.Rectangle) (facematch.Embedding, error) {
	face := mat.Region(box)
	defer face.Close()
	blob := gocv.BlobFromImage(face, 1.0/255, embedderInput, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	p.embedder.SetInput(blob, "")
	out := p.embedder.Forward("")
	defer out.Close()

	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read embedding: %w", err)
	}
	return facematch.FromFloat32(values), nil
}

// Close releases the models.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return
	}
	_ = p.detector.Close()
	_ = p.cascade.Close()
	_ = p.embedder.Close()
	p.loaded = false
}
