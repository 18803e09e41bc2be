package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/infrastructure/metrics"
	"github.com/patient-idv/internal/pkg/imaging"
	"github.com/patient-idv/internal/pkg/scratch"
)

// Pass describes one recognition run over an image.
type Pass struct {
	Name string
	// PSM is the tesseract page segmentation mode.
	PSM int
	// Digits restricts recognition to 0-9.
	Digits bool
	// TSV requests word boxes instead of plain text.
	TSV bool
}

var (
	PassText      = Pass{Name: "text", PSM: 6}
	PassLayout    = Pass{Name: "tsv", PSM: 6, TSV: true}
	PassDigitLine = Pass{Name: "digits_line", PSM: 7, Digits: true}
	PassDigitBlk  = Pass{Name: "digits_block", PSM: 6, Digits: true}
	PassDigitAny  = Pass{Name: "digits_sparse", PSM: 11, Digits: true}
	PassRegion    = Pass{Name: "roi", PSM: 7, Digits: true}
)

// Engine runs text recognition on an image file.
type Engine interface {
	Recognize(ctx context.Context, imagePath string, pass Pass) (string, error)
}

// Extractor checks that a declared ID number appears on an uploaded document.
type Extractor struct {
	engine  Engine
	metrics *metrics.Metrics
}

// NewExtractor returns an Extractor backed by engine. m may be nil.
func NewExtractor(engine Engine, m *metrics.Metrics) *Extractor {
	return &Extractor{engine: engine, metrics: m}
}

// Match recognizes doc and evaluates its declared number. All intermediate
// files live in a scratch dir removed before Match returns.
func (e *Extractor) Match(ctx context.Context, doc *domain.IDDocument) (*Result, error) {
	if !doc.IsImage() {
		return nil, ErrPDFNotSupported
	}
	dir, err := scratch.New("idv-ocr-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			logger.Warning("ocr scratch cleanup failed", logger.LoggerOptions{Key: "error", Data: cerr.Error()})
		}
	}()

	original, err := dir.Write("document"+extension(doc.MimeType), doc.Bytes)
	if err != nil {
		return nil, err
	}
	full, err := e.recognize(ctx, original, PassText)
	if err != nil {
		if errors.Is(err, ErrEngineUnavailable) {
			logger.Error("ocr engine unavailable", logger.LoggerOptions{Key: "error", Data: err.Error()})
		}
		return nil, err
	}
	if strings.TrimSpace(full) == "" {
		return nil, ErrUnreadableImage
	}
	if !HasMarker(doc.Type, full) {
		res := &Result{RecognizedText: full, NormalizedText: NormalizeText(full)}
		e.diagnose(doc, res, ErrMarkerMissing)
		return res, ErrMarkerMissing
	}

	digits, err := e.digitTexts(ctx, dir, doc)
	if err != nil {
		return nil, err
	}
	res, err := Evaluate(doc.Type, doc.Number, full, digits)
	if err != nil {
		e.diagnose(doc, res, err)
		return res, err
	}
	return res, nil
}

// digitTexts runs the digit-only passes. Individual pass failures are tolerated.
func (e *Extractor) digitTexts(ctx context.Context, dir *scratch.Dir, doc *domain.IDDocument) ([]string, error) {
	source := doc.Bytes
	if len(doc.Crop) > 0 {
		source = doc.Crop
	}
	img, err := imaging.Decode(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	scaled := imaging.ScaleToMinWidth(img, imaging.MinOCRWidth)

	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, imaging.PrepareForOCR(scaled)); err != nil {
		return nil, err
	}
	prepared, err := dir.Write("prepared.png", buf.Bytes())
	if err != nil {
		return nil, err
	}

	passes := []Pass{PassDigitLine, PassDigitBlk, PassDigitAny}
	texts := make([]string, len(passes)+1)
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		g.Go(func() error {
			texts[i] = e.tolerate(gctx, prepared, p)
			return nil
		})
	}
	g.Go(func() error {
		texts[len(passes)] = e.regionText(gctx, dir, scaled)
		return nil
	})
	_ = g.Wait()
	return texts, nil
}

// regionText crops the area under an "ID NO" label and reads it as one digit line.
func (e *Extractor) regionText(ctx context.Context, dir *scratch.Dir, scaled image.Image) string {
	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, scaled); err != nil {
		return ""
	}
	layoutPath, err := dir.Write("layout.png", buf.Bytes())
	if err != nil {
		return ""
	}
	tsv := e.tolerate(ctx, layoutPath, PassLayout)
	region, ok := NumberRegion(ParseTSV(tsv), scaled.Bounds())
	if !ok {
		return ""
	}
	buf.Reset()
	if err := imaging.EncodePNG(&buf, imaging.PrepareForOCR(imaging.Crop(scaled, region))); err != nil {
		return ""
	}
	roiPath, err := dir.Write("roi.png", buf.Bytes())
	if err != nil {
		return ""
	}
	return e.tolerate(ctx, roiPath, PassRegion)
}

func (e *Extractor) tolerate(ctx context.Context, path string, p Pass) string {
	text, err := e.recognize(ctx, path, p)
	if err != nil {
		logger.Warning("ocr pass failed",
			logger.LoggerOptions{Key: "pass", Data: p.Name},
			logger.LoggerOptions{Key: "error", Data: err.Error()})
		return ""
	}
	return text
}

func (e *Extractor) recognize(ctx context.Context, path string, p Pass) (string, error) {
	start := time.Now()
	text, err := e.engine.Recognize(ctx, path, p)
	e.metrics.ObserveOCR(p.Name, time.Since(start))
	return text, err
}

func (e *Extractor) diagnose(doc *domain.IDDocument, res *Result, cause error) {
	if res == nil {
		return
	}
	distance := -1
	if res.BestDistance != nil {
		distance = *res.BestDistance
	}
	logger.Diagnostic("ocr id number rejected",
		logger.LoggerOptions{Key: "reason", Data: cause.Error()},
		logger.LoggerOptions{Key: "id_type", Data: string(doc.Type)},
		logger.LoggerOptions{Key: "id_input", Data: doc.Number},
		logger.LoggerOptions{Key: "id_normalized", Data: NormalizeNumber(doc.Type, doc.Number)},
		logger.LoggerOptions{Key: "ocr_normalized", Data: res.NormalizedText},
		logger.LoggerOptions{Key: "ocr_digits", Data: res.Candidates},
		logger.LoggerOptions{Key: "ocr_digits_only", Data: res.Best},
		logger.LoggerOptions{Key: "ocr_best_distance", Data: distance},
		logger.LoggerOptions{Key: "ocr_raw", Data: res.RecognizedText},
		logger.LoggerOptions{Key: "stage", Data: res.Stage},
	)
}

func extension(mime string) string {
	switch mime {
	case domain.MimePNG:
		return ".png"
	case domain.MimeJPEG:
		return ".jpg"
	}
	return ""
}
