package ocr

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/patient-idv/internal/domain"
)

var (
	nonAlnum  = regexp.MustCompile(`[^A-Z0-9]`)
	nonDigit  = regexp.MustCompile(`\D`)
	digitRuns = regexp.MustCompile(`\d{8,20}`)
)

// confusions maps letters OCR commonly reads in place of digits.
var confusions = strings.NewReplacer(
	"O", "0", "Q", "0",
	"I", "1", "L", "1",
	"Z", "2",
	"S", "5",
	"B", "8",
	"G", "6",
)

// NormalizeText uppercases text and drops everything but A-Z and 0-9.
func NormalizeText(text string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(text), "")
}

// NormalizeNumber prepares a declared number for comparison with recognized text.
func NormalizeNumber(t domain.IDType, number string) string {
	v := strings.ToUpper(strings.TrimSpace(number))
	if t.DigitsOnly() {
		return nonDigit.ReplaceAllString(v, "")
	}
	return nonAlnum.ReplaceAllString(v, "")
}

// RemapConfusions rewrites digit-dominated tokens of text, replacing letters that
// are common misreads of digits. Tokens that are mostly letters are kept as they are.
func RemapConfusions(text string) string {
	tokens := strings.Fields(strings.ToUpper(text))
	for i, tok := range tokens {
		tok = NormalizeText(tok)
		digits := 0
		for _, r := range tok {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits > 0 && digits*2 >= len(tok) {
			tok = confusions.Replace(tok)
		}
		tokens[i] = tok
	}
	return strings.Join(tokens, " ")
}
