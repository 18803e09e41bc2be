package facematch

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/patient-idv/internal/domain"
)

// Registration form fields carrying a receipt.
const (
	FieldVerified     = "face_verified"
	FieldLive1        = "face_live_1"
	FieldLive2        = "face_live_2"
	FieldDocument     = "face_id"
	FieldDistance1    = "face_dist_1"
	FieldDistance2    = "face_dist_2"
	FieldLiveDistance = "face_live_dist"
)

// DistanceTolerance bounds the disagreement allowed between client-reported and recomputed distances.
const DistanceTolerance = 1e-4

var (
	ErrMalformedReceipt = errors.New("malformed face verification receipt")
	ErrNotVerified      = errors.New("face verification not completed")
	ErrThresholds       = errors.New("face verification did not meet security thresholds")
)

// Receipt is produced by a matched capture session and re-checked by the server.
// The Verified flag and Distances are hints; Verify recomputes both.
type Receipt struct {
	Live1     Embedding  `json:"live1"`
	Live2     Embedding  `json:"live2"`
	Document  Embedding  `json:"id"`
	Distances *Distances `json:"distances,omitempty"`
	Verified  bool       `json:"verified"`
}

// NewReceipt packages an accepted decision.
func NewReceipt(live1, live2, document Sample, d Distances) Receipt {
	return Receipt{
		Live1:     live1.Embedding,
		Live2:     live2.Embedding,
		Document:  document.Embedding,
		Distances: &d,
		Verified:  true,
	}
}

// FormValues encodes the receipt as registration form fields.
func (r Receipt) FormValues() (url.Values, error) {
	v := url.Values{}
	if r.Verified {
		v.Set(FieldVerified, "1")
	} else {
		v.Set(FieldVerified, "0")
	}
	for field, e := range map[string]Embedding{FieldLive1: r.Live1, FieldLive2: r.Live2, FieldDocument: r.Document} {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", field, err)
		}
		v.Set(field, string(b))
	}
	if r.Distances != nil {
		v.Set(FieldDistance1, formatFloat(r.Distances.Live1Document))
		v.Set(FieldDistance2, formatFloat(r.Distances.Live2Document))
		v.Set(FieldLiveDistance, formatFloat(r.Distances.Live1Live2))
	}
	return v, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// ParseReceiptForm decodes receipt fields using get (typically r.FormValue).
// Missing embeddings decode as empty and are rejected by Verify.
func ParseReceiptForm(get func(string) string) (Receipt, error) {
	var r Receipt
	r.Verified = strings.TrimSpace(get(FieldVerified)) == "1"

	targets := []struct {
		field string
		dst   *Embedding
	}{{FieldLive1, &r.Live1}, {FieldLive2, &r.Live2}, {FieldDocument, &r.Document}}
	for _, t := range targets {
		raw := strings.TrimSpace(get(t.field))
		if raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), t.dst); err != nil {
			return Receipt{}, fmt.Errorf("%s: %w", t.field, ErrMalformedReceipt)
		}
	}

	raw := []string{get(FieldDistance1), get(FieldDistance2), get(FieldLiveDistance)}
	if raw[0] == "" && raw[1] == "" && raw[2] == "" {
		return r, nil
	}
	parsed := make([]float64, len(raw))
	for i, s := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Receipt{}, fmt.Errorf("reported distance: %w", ErrMalformedReceipt)
		}
		parsed[i] = f
	}
	r.Distances = &Distances{Live1Document: parsed[0], Live2Document: parsed[1], Live1Live2: parsed[2]}
	return r, nil
}

// WellFormed reports whether the receipt carries three usable embeddings of
// equal dimension. Failures wrap domain.ErrIntegrity.
func (r Receipt) WellFormed() error {
	embeddings := []struct {
		slot Slot
		e    Embedding
	}{{SlotLive1, r.Live1}, {SlotLive2, r.Live2}, {SlotDocument, r.Document}}
	for _, x := range embeddings {
		if err := x.e.Validate(); err != nil {
			return fmt.Errorf("%w: %w: %s: %w", domain.ErrIntegrity, ErrMalformedReceipt, x.slot, err)
		}
	}
	if len(r.Live1) != len(r.Live2) || len(r.Live1) != len(r.Document) {
		return fmt.Errorf("%w: %w: dimensions %d/%d/%d", domain.ErrIntegrity, ErrMalformedReceipt,
			len(r.Live1), len(r.Live2), len(r.Document))
	}
	return nil
}

// Verify recomputes the decision from the receipt's embeddings. The returned
// distances are the recomputed ones, for diagnostics. An unset verified flag
// is ErrNotVerified whatever the embeddings hold; every other failure wraps
// domain.ErrIntegrity.
func (p Policy) Verify(r Receipt) (Distances, error) {
	if !r.Verified {
		return Distances{}, ErrNotVerified
	}
	if err := r.WellFormed(); err != nil {
		return Distances{}, err
	}

	d := Measure(r.Live1, r.Live2, r.Document)
	if r.Distances != nil && !agrees(*r.Distances, d) {
		return d, fmt.Errorf("%w: %w: reported distances disagree", domain.ErrIntegrity, ErrThresholds)
	}
	if ok, failed := p.Accepts(d); !ok {
		return d, fmt.Errorf("%w: %w: %s", domain.ErrIntegrity, ErrThresholds, failed)
	}
	return d, nil
}

func agrees(reported, computed Distances) bool {
	within := func(a, b float64) bool { return math.Abs(a-b) <= DistanceTolerance }
	return within(reported.Live1Document, computed.Live1Document) &&
		within(reported.Live2Document, computed.Live2Document) &&
		within(reported.Live1Live2, computed.Live1Live2)
}

// Fingerprint identifies the receipt's embeddings, independent of its hints.
func (r Receipt) Fingerprint() string {
	h := sha256.New()
	for _, e := range []Embedding{r.Live1, r.Live2, r.Document} {
		for _, v := range e {
			_ = binary.Write(h, binary.LittleEndian, v)
		}
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}
