package facematch

import (
	"errors"
	"fmt"
)

// Policy holds the thresholds and quality gates of the face identity decision.
// Two live captures must agree with each other and each must match the document;
// this approximates liveness against a single held-up still but is not an anti-spoof system.
type Policy struct {
	// CrossThreshold bounds live-to-document distances.
	CrossThreshold float64
	// SelfThreshold bounds the live-to-live distance. Must be below CrossThreshold.
	SelfThreshold         float64
	MinConfidence         float64
	MinFallbackConfidence float64
	MinLiveArea           float64
	MinDocumentArea       float64
	// AllowMultiFaceDocument accepts documents showing more than one face, using the best one.
	AllowMultiFaceDocument bool
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		CrossThreshold:        0.58,
		SelfThreshold:         0.50,
		MinConfidence:         0.6,
		MinFallbackConfidence: 0.45,
		MinLiveArea:           0.08,
		MinDocumentArea:       0.05,
	}
}

// Validate rejects policies that would loosen the decision.
func (p Policy) Validate() error {
	if p.CrossThreshold <= 0 || p.SelfThreshold <= 0 {
		return errors.New("thresholds must be positive")
	}
	if p.SelfThreshold >= p.CrossThreshold {
		return fmt.Errorf("self threshold %.2f must be tighter than cross threshold %.2f", p.SelfThreshold, p.CrossThreshold)
	}
	return nil
}

func (p Policy) minConfidence(path DetectorPath) float64 {
	if path == PathFallback {
		return p.MinFallbackConfidence
	}
	return p.MinConfidence
}

func (p Policy) minArea(slot Slot) float64 {
	if slot == SlotDocument {
		return p.MinDocumentArea
	}
	return p.MinLiveArea
}

// CheckSample applies the quality gates for slot. Any failure returns a *QualityError.
func (p Policy) CheckSample(slot Slot, s Sample) error {
	reject := func(err error) error { return &QualityError{Slot: slot, Err: err} }
	switch {
	case s.Faces == 0:
		return reject(ErrNoFace)
	case slot == SlotDocument && s.Faces > 1 && !p.AllowMultiFaceDocument:
		return reject(ErrMultipleFaces)
	case s.Confidence < p.minConfidence(s.Path):
		return reject(ErrLowConfidence)
	case s.AreaRatio < p.minArea(slot):
		return reject(ErrFaceTooSmall)
	}
	if err := s.Embedding.Validate(); err != nil {
		return reject(err)
	}
	return nil
}

// Distances are the three pairwise distances of an attempt.
type Distances struct {
	Live1Document float64 `json:"d1"`
	Live2Document float64 `json:"d2"`
	Live1Live2    float64 `json:"dlive"`
}

// Measure computes the pairwise distances.
func Measure(live1, live2, document Embedding) Distances {
	return Distances{
		Live1Document: Distance(live1, document),
		Live2Document: Distance(live2, document),
		Live1Live2:    Distance(live1, live2),
	}
}

type rule struct {
	name  string
	holds func(p Policy, d Distances) bool
}

// acceptance is evaluated in order and fails fast. Comparisons are written so NaN fails.
var acceptance = []rule{
	{"live1_document", func(p Policy, d Distances) bool { return d.Live1Document <= p.CrossThreshold }},
	{"live2_document", func(p Policy, d Distances) bool { return d.Live2Document <= p.CrossThreshold }},
	{"live1_live2", func(p Policy, d Distances) bool { return d.Live1Live2 <= p.SelfThreshold }},
}

// Accepts reports whether d satisfies every threshold and names the first one that failed.
func (p Policy) Accepts(d Distances) (bool, string) {
	for _, r := range acceptance {
		if !r.holds(p, d) {
			return false, r.name
		}
	}
	return true, ""
}

// Decision is the outcome of evaluating three samples.
type Decision struct {
	Match     bool
	Distances Distances
	// Failed names the threshold that rejected the attempt. Diagnostic only.
	Failed string
}

// Evaluate runs the quality gates on all three samples and then the thresholds.
// Quality failures are returned as errors; threshold failures as a non-matching Decision.
func (p Policy) Evaluate(live1, live2, document *Sample) (Decision, error) {
	slots := []struct {
		slot   Slot
		sample *Sample
	}{{SlotLive1, live1}, {SlotLive2, live2}, {SlotDocument, document}}
	for _, s := range slots {
		if s.sample == nil {
			return Decision{}, &QualityError{Slot: s.slot, Err: ErrMissingSample}
		}
		if err := p.CheckSample(s.slot, *s.sample); err != nil {
			return Decision{}, err
		}
	}
	d := Measure(live1.Embedding, live2.Embedding, document.Embedding)
	ok, failed := p.Accepts(d)
	return Decision{Match: ok, Distances: d, Failed: failed}, nil
}
