package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patient-idv/internal/application/facematch"
	"github.com/patient-idv/internal/application/ocr"
	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/metrics"
)

// --- mocks ---

type mockMatcher struct{ mock.Mock }

func (m *mockMatcher) Match(ctx context.Context, doc *domain.IDDocument) (*ocr.Result, error) {
	args := m.Called(ctx, doc)
	if r, _ := args.Get(0).(*ocr.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAlerter struct{ mock.Mock }

func (m *mockAlerter) Alert(ctx context.Context, a Alert) error {
	return m.Called(ctx, a).Error(0)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) ExtractDocument(ctx context.Context, doc *domain.IDDocument) (facematch.Sample, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(facematch.Sample), args.Error(1)
}

type staticGate struct {
	name  string
	err   error
	calls int
}

func (g *staticGate) Name() string { return g.name }

func (g *staticGate) Evaluate(context.Context, *domain.IDDocument, Claim) error {
	g.calls++
	return g.err
}

// --- helpers ---

func embedding(x float64) facematch.Embedding {
	e := make(facematch.Embedding, 128)
	e[0] = x
	return e
}

func receipt(l1, l2, doc float64) facematch.Receipt {
	return facematch.Receipt{Live1: embedding(l1), Live2: embedding(l2), Document: embedding(doc), Verified: true}
}

func imageDoc() *domain.IDDocument {
	return &domain.IDDocument{Type: domain.IDNational, Number: "123456789012", MimeType: domain.MimeJPEG, Bytes: []byte{0xff, 0xd8}}
}

func rejection(t *testing.T, err error) *Rejection {
	t.Helper()
	var r *Rejection
	require.ErrorAs(t, err, &r)
	return r
}

// --- composition ---

func TestAll_ShortCircuitsOnFirstRejection(t *testing.T) {
	first := &staticGate{name: "face", err: &Rejection{Gate: "face", Message: "no", Err: facematch.ErrThresholds}}
	second := &staticGate{name: "ocr"}
	m := metrics.New(prometheus.NewRegistry())

	err := All(m, first, second).Evaluate(context.Background(), imageDoc(), Claim{})
	assert.ErrorIs(t, err, facematch.ErrThresholds)
	assert.Equal(t, 0, second.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateOutcome.WithLabelValues("face", "reject")))
}

func TestAll_AcceptsWhenEveryGateAccepts(t *testing.T) {
	a, b := &staticGate{name: "face"}, &staticGate{name: "ocr"}
	require.NoError(t, All(nil, a, b).Evaluate(context.Background(), imageDoc(), Claim{}))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestAll_Empty(t *testing.T) {
	assert.NoError(t, All(nil).Evaluate(context.Background(), imageDoc(), Claim{}))
}

// --- face gate ---

func TestFaceGate_AcceptsConsistentReceipt(t *testing.T) {
	g := NewFaceGate(facematch.DefaultPolicy(), nil, nil)
	assert.NoError(t, g.Evaluate(context.Background(), imageDoc(), Claim{Receipt: receipt(0, 0.3, 0.4)}))
}

func TestFaceGate_ThresholdFailureAlerts(t *testing.T) {
	alerter := &mockAlerter{}
	alerter.On("Alert", mock.Anything, mock.MatchedBy(func(a Alert) bool {
		return a.Gate == "face" && a.Email == "pat@example.com"
	})).Return(nil)
	g := NewFaceGate(facematch.DefaultPolicy(), nil, alerter)

	err := g.Evaluate(context.Background(), imageDoc(), Claim{Email: "pat@example.com", Receipt: receipt(0, 0.55, 0.3)})
	r := rejection(t, err)
	assert.Equal(t, MsgFaceThresholds, r.Message)
	assert.NotContains(t, r.Message, "0.55")
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	alerter.AssertExpectations(t)
}

func TestFaceGate_UnverifiedReceiptIsNotAnIntegrityAlert(t *testing.T) {
	alerter := &mockAlerter{}
	g := NewFaceGate(facematch.DefaultPolicy(), nil, alerter)
	rc := receipt(0, 0.3, 0.4)
	rc.Verified = false

	err := g.Evaluate(context.Background(), imageDoc(), Claim{Receipt: rc})
	assert.Equal(t, MsgFaceIncomplete, rejection(t, err).Message)
	alerter.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything)
}

func TestFaceGate_EmptyReceiptIsIncomplete(t *testing.T) {
	alerter := &mockAlerter{}
	g := NewFaceGate(facematch.DefaultPolicy(), nil, alerter)

	err := g.Evaluate(context.Background(), imageDoc(), Claim{Receipt: facematch.Receipt{}})
	assert.Equal(t, MsgFaceIncomplete, rejection(t, err).Message)
	assert.NotErrorIs(t, err, domain.ErrIntegrity)
	alerter.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything)
}

func TestFaceGate_AlertFailureStillRejects(t *testing.T) {
	alerter := &mockAlerter{}
	alerter.On("Alert", mock.Anything, mock.Anything).Return(errors.New("sns down"))
	g := NewFaceGate(facematch.DefaultPolicy(), nil, alerter)

	err := g.Evaluate(context.Background(), imageDoc(), Claim{Receipt: facematch.Receipt{Verified: true}})
	assert.ErrorIs(t, err, facematch.ErrMalformedReceipt)
}

func TestFaceGate_DocumentBinding(t *testing.T) {
	bound := facematch.Sample{Embedding: embedding(0.45), Confidence: 0.9, AreaRatio: 0.1, Faces: 1, Path: facematch.PathPrimary}
	swapped := bound
	swapped.Embedding = embedding(2)

	tests := []struct {
		name    string
		sample  facematch.Sample
		err     error
		wantMsg string
		wantErr error
	}{
		{"matching document", bound, nil, "", nil},
		{"swapped document", swapped, nil, MsgFaceThresholds, ErrDocumentNotBound},
		{"no face found", facematch.Sample{}, nil, MsgFaceDocument, facematch.ErrNoFace},
		{"extractor unavailable", facematch.Sample{}, domain.ErrUnavailable, MsgFaceUnavailable, domain.ErrUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ex := &mockExtractor{}
			ex.On("ExtractDocument", mock.Anything, mock.Anything).Return(tc.sample, tc.err)
			g := NewFaceGate(facematch.DefaultPolicy(), ex, nil)

			err := g.Evaluate(context.Background(), imageDoc(), Claim{Receipt: receipt(0, 0.3, 0.4)})
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantMsg, rejection(t, err).Message)
		})
	}
}

func TestFaceGate_BindingNeedsImage(t *testing.T) {
	ex := &mockExtractor{}
	g := NewFaceGate(facematch.DefaultPolicy(), ex, nil)
	doc := imageDoc()
	doc.MimeType = domain.MimePDF

	err := g.Evaluate(context.Background(), doc, Claim{Receipt: receipt(0, 0.3, 0.4)})
	assert.Equal(t, MsgFaceNeedsImage, rejection(t, err).Message)
	ex.AssertNotCalled(t, "ExtractDocument", mock.Anything, mock.Anything)
}

// --- document number gate ---

func TestDocumentNumberGate_Messages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ocr.ErrPDFNotSupported, MsgOCRNeedsImage},
		{ocr.ErrEngineUnavailable, MsgOCRUnavailable},
		{ocr.ErrUnreadableImage, MsgOCRUnreadable},
		{ocr.ErrMarkerMissing, MsgOCRWrongType},
		{ocr.ErrUnreadableNumber, MsgOCRNumberBlur},
		{ocr.ErrNumberMismatch, MsgOCRMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			m := &mockMatcher{}
			m.On("Match", mock.Anything, mock.Anything).Return(&ocr.Result{RecognizedText: "SECRET OCR TEXT"}, tc.err)

			err := NewDocumentNumberGate(m).Evaluate(context.Background(), imageDoc(), Claim{})
			r := rejection(t, err)
			assert.Equal(t, tc.want, r.Message)
			assert.NotContains(t, r.Message, "SECRET")
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDocumentNumberGate_Accepts(t *testing.T) {
	m := &mockMatcher{}
	m.On("Match", mock.Anything, mock.Anything).Return(&ocr.Result{Stage: ocr.StageExact}, nil)
	assert.NoError(t, NewDocumentNumberGate(m).Evaluate(context.Background(), imageDoc(), Claim{}))
}
