package ocr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/patient-idv/internal/domain"
)

// MaxDigitDistance is the largest Hamming distance accepted by the fuzzy stage.
const MaxDigitDistance = 2

// minReadableDigits is the shortest best candidate worth comparing.
const minReadableDigits = 6

var (
	// ErrEngineUnavailable means the recognition engine is missing or cannot start.
	ErrEngineUnavailable = fmt.Errorf("ocr engine unavailable: %w", domain.ErrUnavailable)
	ErrPDFNotSupported   = errors.New("document is not an image")
	ErrUnreadableImage   = errors.New("no text recognized in document")
	ErrMarkerMissing     = errors.New("document type marker not found")
	ErrUnreadableNumber  = errors.New("id number unreadable")
	ErrNumberMismatch    = errors.New("id number not found in document")
)

// Match stages.
const (
	StageExact     = "exact"
	StageCandidate = "candidate"
	StageFuzzy     = "fuzzy"
)

// Result is the ephemeral outcome of one document number check. It is never persisted.
type Result struct {
	RecognizedText string
	NormalizedText string
	RemappedText   string
	// Candidates lists raw candidates followed by remapped ones.
	Candidates []string
	// Best is the longest candidate from recognized text; RemappedBest the longest after confusion remapping.
	Best         string
	RemappedBest string
	BestDistance *int
	// Stage names the matching step that accepted the number.
	Stage string
}

// Evaluate matches a declared number against recognized text. full is the
// unrestricted recognition of the document; digitTexts are the outputs of
// digit-only passes (empty strings are ignored).
func Evaluate(t domain.IDType, declared, full string, digitTexts []string) (*Result, error) {
	res := &Result{
		RecognizedText: full,
		NormalizedText: NormalizeText(full),
	}
	if !HasMarker(t, full) {
		return res, ErrMarkerMissing
	}
	target := NormalizeNumber(t, declared)

	raw := newCandidates()
	for _, s := range append(append([]string(nil), digitTexts...), full) {
		raw.Extract(s)
	}
	res.Best = raw.Longest()

	res.Candidates = raw.List()
	if t.DigitsOnly() {
		res.RemappedText = RemapConfusions(full)
		remapped := newCandidates()
		remapped.Extract(res.RemappedText)
		res.RemappedBest = remapped.Longest()
		res.Candidates = append(res.Candidates, remapped.List()...)
	}

	if t.DigitsOnly() && max(len(res.Best), len(res.RemappedBest)) < minReadableDigits {
		return res, ErrUnreadableNumber
	}
	if target != "" && strings.Contains(res.NormalizedText, target) {
		res.Stage = StageExact
		return res, nil
	}
	if !t.DigitsOnly() {
		return res, ErrNumberMismatch
	}
	if raw.Contains(target) {
		res.Stage = StageCandidate
		return res, nil
	}
	for _, best := range []string{res.Best, res.RemappedBest} {
		d, ok := HammingWindow(best, target)
		if !ok {
			continue
		}
		if res.BestDistance == nil || d < *res.BestDistance {
			res.BestDistance = &d
		}
	}
	if res.BestDistance != nil && *res.BestDistance <= MaxDigitDistance {
		res.Stage = StageFuzzy
		return res, nil
	}
	return res, ErrNumberMismatch
}
