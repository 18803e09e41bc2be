package facematch

import (
	"errors"
	"fmt"
	"math"
)

// Embedding is a face descriptor. Euclidean distance between two embeddings of the
// same model approximates how likely both faces belong to one person.
type Embedding []float64

// Bounds on embeddings accepted from clients.
const (
	MinDimensions = 64
	MaxDimensions = 1024
)

var (
	ErrEmbeddingMissing   = errors.New("embedding missing")
	ErrEmbeddingSize      = errors.New("embedding has unsupported dimensionality")
	ErrEmbeddingNotFinite = errors.New("embedding contains non-finite values")
)

// Distance returns the Euclidean distance between a and b.
// It is +Inf when either embedding is absent or their lengths differ.
func Distance(a, b Embedding) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Validate checks that e can take part in a decision.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return ErrEmbeddingMissing
	}
	if len(e) < MinDimensions || len(e) > MaxDimensions {
		return fmt.Errorf("%w: %d", ErrEmbeddingSize, len(e))
	}
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrEmbeddingNotFinite
		}
	}
	return nil
}

// FromFloat32 widens a detector descriptor.
func FromFloat32(v []float32) Embedding {
	e := make(Embedding, len(v))
	for i, f := range v {
		e[i] = float64(f)
	}
	return e
}
