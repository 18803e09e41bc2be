package facematch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dims = 128

// triangle builds live1, live2 and document embeddings whose pairwise
// distances are d1 (live1-document), d2 (live2-document) and dlive (live1-live2).
func triangle(t *testing.T, d1, d2, dlive float64) (Embedding, Embedding, Embedding) {
	t.Helper()
	x := (d2*d2 + d1*d1 - dlive*dlive) / (2 * d1)
	y2 := d2*d2 - x*x
	require.GreaterOrEqual(t, y2, 0.0, "distances do not form a triangle")

	base := make(Embedding, dims)
	for i := range base {
		base[i] = 0.1 + float64(i)/1000
	}
	doc := append(Embedding(nil), base...)
	live1 := append(Embedding(nil), base...)
	live2 := append(Embedding(nil), base...)
	live1[0] += d1
	live2[0] += x
	live2[1] += math.Sqrt(y2)
	return live1, live2, doc
}

func sampleOf(e Embedding, area float64) *Sample {
	return &Sample{Embedding: e, Confidence: 0.9, AreaRatio: area, Faces: 1, Path: PathPrimary}
}

func randomEmbedding(r *rand.Rand) Embedding {
	e := make(Embedding, dims)
	for i := range e {
		e[i] = r.Float64()*2 - 1
	}
	return e
}

func TestDistance_SymmetricAndZeroOnSelf(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a, b := randomEmbedding(r), randomEmbedding(r)
		assert.Equal(t, Distance(a, b), Distance(b, a))
		assert.Equal(t, 0.0, Distance(a, a))
	}
}

func TestDistance_KnownValue(t *testing.T) {
	a := Embedding{0, 0, 0}
	b := Embedding{3, 4, 0}
	assert.Equal(t, 5.0, Distance(a, b))
}

func TestDistance_AbsentOrMismatchedIsInfinite(t *testing.T) {
	assert.True(t, math.IsInf(Distance(nil, Embedding{1}), 1))
	assert.True(t, math.IsInf(Distance(Embedding{1}, Embedding{}), 1))
	assert.True(t, math.IsInf(Distance(Embedding{1, 2}, Embedding{1}), 1))
}

func TestEvaluate_AllUnderThresholds_Match(t *testing.T) {
	l1, l2, doc := triangle(t, 0.40, 0.45, 0.30)
	d, err := DefaultPolicy().Evaluate(sampleOf(l1, 0.2), sampleOf(l2, 0.2), sampleOf(doc, 0.1))
	require.NoError(t, err)
	assert.True(t, d.Match)
	assert.InDelta(t, 0.40, d.Distances.Live1Document, 1e-9)
	assert.InDelta(t, 0.45, d.Distances.Live2Document, 1e-9)
	assert.InDelta(t, 0.30, d.Distances.Live1Live2, 1e-9)
	assert.Empty(t, d.Failed)
}

func TestEvaluate_SelfConsistencyFailureDominates(t *testing.T) {
	l1, l2, doc := triangle(t, 0.40, 0.45, 0.55)
	d, err := DefaultPolicy().Evaluate(sampleOf(l1, 0.2), sampleOf(l2, 0.2), sampleOf(doc, 0.1))
	require.NoError(t, err)
	assert.False(t, d.Match)
	assert.Equal(t, "live1_live2", d.Failed)
}

func TestEvaluate_CrossFailure(t *testing.T) {
	l1, l2, doc := triangle(t, 0.62, 0.45, 0.30)
	d, err := DefaultPolicy().Evaluate(sampleOf(l1, 0.2), sampleOf(l2, 0.2), sampleOf(doc, 0.1))
	require.NoError(t, err)
	assert.False(t, d.Match)
	assert.Equal(t, "live1_document", d.Failed)
}

func TestEvaluate_MissingSample(t *testing.T) {
	l1, _, doc := triangle(t, 0.40, 0.45, 0.30)
	_, err := DefaultPolicy().Evaluate(sampleOf(l1, 0.2), nil, sampleOf(doc, 0.1))
	var qe *QualityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, SlotLive2, qe.Slot)
	assert.ErrorIs(t, err, ErrMissingSample)
}

func TestCheckSample_Gates(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	emb := randomEmbedding(r)
	p := DefaultPolicy()
	cases := []struct {
		name   string
		slot   Slot
		sample Sample
		want   error
	}{
		{"ok live", SlotLive1, Sample{Embedding: emb, Confidence: 0.8, AreaRatio: 0.1, Faces: 1}, nil},
		{"no face", SlotLive1, Sample{Faces: 0}, ErrNoFace},
		{"low confidence primary", SlotLive1, Sample{Embedding: emb, Confidence: 0.55, AreaRatio: 0.1, Faces: 1, Path: PathPrimary}, ErrLowConfidence},
		{"fallback accepts looser score", SlotLive1, Sample{Embedding: emb, Confidence: 0.55, AreaRatio: 0.1, Faces: 1, Path: PathFallback}, nil},
		{"fallback floor", SlotLive2, Sample{Embedding: emb, Confidence: 0.40, AreaRatio: 0.1, Faces: 1, Path: PathFallback}, ErrLowConfidence},
		{"live too small", SlotLive2, Sample{Embedding: emb, Confidence: 0.8, AreaRatio: 0.07, Faces: 1}, ErrFaceTooSmall},
		{"document smaller floor", SlotDocument, Sample{Embedding: emb, Confidence: 0.8, AreaRatio: 0.06, Faces: 1}, nil},
		{"document too small", SlotDocument, Sample{Embedding: emb, Confidence: 0.8, AreaRatio: 0.04, Faces: 1}, ErrFaceTooSmall},
		{"document multiple faces", SlotDocument, Sample{Embedding: emb, Confidence: 0.8, AreaRatio: 0.1, Faces: 2}, ErrMultipleFaces},
		{"undersized embedding", SlotLive1, Sample{Embedding: emb[:10], Confidence: 0.8, AreaRatio: 0.1, Faces: 1}, ErrEmbeddingSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.CheckSample(tc.slot, tc.sample)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCheckSample_MultiFaceDocumentAllowed(t *testing.T) {
	p := DefaultPolicy()
	p.AllowMultiFaceDocument = true
	s := Sample{Embedding: randomEmbedding(rand.New(rand.NewSource(2))), Confidence: 0.8, AreaRatio: 0.1, Faces: 3}
	assert.NoError(t, p.CheckSample(SlotDocument, s))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	p := DefaultPolicy()
	p.SelfThreshold = 0.6
	assert.Error(t, p.Validate())
	p.SelfThreshold = 0
	assert.Error(t, p.Validate())
}

func TestAccepts_NaNRejected(t *testing.T) {
	ok, failed := DefaultPolicy().Accepts(Distances{Live1Document: math.NaN(), Live2Document: 0.1, Live1Live2: 0.1})
	assert.False(t, ok)
	assert.Equal(t, "live1_document", failed)
}
