// Package opencv detects and embeds faces with OpenCV DNN models. The model
// bindings build only with the gocv tag; detection post-processing is plain Go.
package opencv

import (
	"image"
	"sort"
)

// Haar cascades report no score. Fallback detections get this confidence.
const cascadeConfidence = 0.5

type detection struct {
	Box        image.Rectangle
	Confidence float64
}

// parseSSD decodes a flattened SSD output blob of 7-float rows
// (image, label, confidence, x1, y1, x2, y2) with coordinates relative to the
// frame. Rows below minConfidence or outside the frame are dropped.
func parseSSD(values []float32, frame image.Rectangle, minConfidence float64) []detection {
	w, h := float64(frame.Dx()), float64(frame.Dy())
	var out []detection
	for i := 0; i+7 <= len(values); i += 7 {
		conf := float64(values[i+2])
		if conf < minConfidence {
			continue
		}
		box := image.Rect(
			int(float64(values[i+3])*w), int(float64(values[i+4])*h),
			int(float64(values[i+5])*w), int(float64(values[i+6])*h),
		).Intersect(frame)
		if box.Empty() {
			continue
		}
		out = append(out, detection{Box: box, Confidence: conf})
	}
	return out
}

// fromCascade wraps Haar cascade boxes.
func fromCascade(boxes []image.Rectangle) []detection {
	out := make([]detection, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, detection{Box: b, Confidence: cascadeConfidence})
	}
	return out
}

// prominent returns the largest detection, ties broken by confidence.
func prominent(ds []detection) (detection, bool) {
	if len(ds) == 0 {
		return detection{}, false
	}
	sorted := append([]detection(nil), ds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := area(sorted[i].Box), area(sorted[j].Box)
		if ai != aj {
			return ai > aj
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted[0], true
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }

// areaRatio is the share of frame covered by box.
func areaRatio(box, frame image.Rectangle) float64 {
	fa := area(frame)
	if fa == 0 {
		return 0
	}
	return float64(area(box)) / float64(fa)
}

// pad grows box by fraction of its size on each side, clipped to frame.
func pad(box, frame image.Rectangle, fraction float64) image.Rectangle {
	dx := int(float64(box.Dx()) * fraction)
	dy := int(float64(box.Dy()) * fraction)
	return image.Rect(box.Min.X-dx, box.Min.Y-dy, box.Max.X+dx, box.Max.Y+dy).Intersect(frame)
}
