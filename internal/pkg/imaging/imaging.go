// Package imaging holds the pixel-level helpers shared by capture checks and OCR preprocessing.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoder
	"image/png"
	"io"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// OCR preprocessing parameters.
const (
	MinOCRWidth   = 1400
	ocrContrast   = -30 // GD contrast units, negative increases contrast
	ocrBrightness = 10
	ocrThreshold  = 155
)

var ErrInvalidDataURL = errors.New("invalid data url")

// Decode decodes a JPEG or PNG document image.
func Decode(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// CenterCrop returns the centered rectangle covering fraction of each dimension.
func CenterCrop(b image.Rectangle, fraction float64) image.Rectangle {
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	w := int(math.Max(1, math.Round(float64(b.Dx())*fraction)))
	h := int(math.Max(1, math.Round(float64(b.Dy())*fraction)))
	x := b.Min.X + (b.Dx()-w)/2
	y := b.Min.Y + (b.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// MeanLuma returns the average Rec.709 luma (0-255) of the central fraction of img.
func MeanLuma(img image.Image, fraction float64) float64 {
	r := CenterCrop(img.Bounds(), fraction).Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}
	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			sum += 0.2126*float64(cr>>8) + 0.7152*float64(cg>>8) + 0.0722*float64(cb>>8)
		}
	}
	return sum / float64(r.Dx()*r.Dy())
}

// Gray converts img to 8-bit grayscale.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return g
}

// LaplacianVariance estimates sharpness; low values mean a blurry image.
func LaplacianVariance(img image.Image) float64 {
	g := Gray(img)
	b := g.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}
	var sum, sq float64
	n := 0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			v := 4*float64(g.GrayAt(x, y).Y) -
				float64(g.GrayAt(x-1, y).Y) - float64(g.GrayAt(x+1, y).Y) -
				float64(g.GrayAt(x, y-1).Y) - float64(g.GrayAt(x, y+1).Y)
			sum += v
			sq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	return sq/float64(n) - mean*mean
}

// ScaleToMinWidth upscales img so it is at least minWidth wide, keeping aspect ratio.
func ScaleToMinWidth(img image.Image, minWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() >= minWidth || b.Dx() == 0 {
		return img
	}
	h := int(math.Round(float64(b.Dy()) * float64(minWidth) / float64(b.Dx())))
	dst := image.NewRGBA(image.Rect(0, 0, minWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// PrepareForOCR produces the binarized image used by digit recognition passes:
// upscale, grayscale, contrast and brightness adjustment, then a fixed threshold.
func PrepareForOCR(img image.Image) *image.Gray {
	g := Gray(ScaleToMinWidth(img, MinOCRWidth))
	k := (100.0 - ocrContrast) / 100.0
	k *= k
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		p := ((float64(v)/255.0-0.5)*k + 0.5) * 255.0
		p = clamp(p) + ocrBrightness
		if clamp(p) > ocrThreshold {
			out.Pix[i] = 255
		}
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}

// Crop copies r out of img.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// DecodeDataURL decodes a base64 "data:<mime>;base64,<payload>" string.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", ErrInvalidDataURL
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return b, strings.TrimSuffix(meta, ";base64"), nil
}
