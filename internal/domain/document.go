package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// IDType is the declared kind of identity document.
type IDType string

const (
	IDPassport       IDType = "passport"
	IDDriversLicense IDType = "drivers"
	IDNational       IDType = "national"
	IDPhilHealth     IDType = "philhealth"
	IDSSS            IDType = "sss"
)

// Document MIME types accepted for upload.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimePDF  = "application/pdf"
)

var idTypes = []IDType{IDPassport, IDDriversLicense, IDNational, IDPhilHealth, IDSSS}

type idFormat struct {
	pattern *regexp.Regexp
	message string
}

var idFormats = map[IDType]idFormat{
	IDPassport:       {regexp.MustCompile(`^[A-Za-z0-9]{6,9}$`), "Passport should be 6-9 letters or numbers."},
	IDDriversLicense: {regexp.MustCompile(`^[A-Za-z0-9\-]{5,20}$`), "Driver's License should be 5-20 characters (letters, numbers, dashes)."},
	IDNational:       {regexp.MustCompile(`^\d{10,16}$`), "National ID should be 10 to 16 digits."},
	IDPhilHealth:     {regexp.MustCompile(`^\d{12,14}$`), "PhilHealth ID should be 12 to 14 digits."},
	IDSSS:            {regexp.MustCompile(`^\d{10,12}$`), "SSS ID should be 10 to 12 digits."},
}

var (
	nonDigits      = regexp.MustCompile(`\D`)
	whitespace     = regexp.MustCompile(`\s+`)
	nonAlnumOrDash = regexp.MustCompile(`[^A-Za-z0-9\-]`)
)

// ParseIDType maps a form value onto the closed set of document types.
func ParseIDType(s string) (IDType, error) {
	t := IDType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range idTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown id type %q: %w", s, ErrBadRequest)
}

// DigitsOnly reports whether numbers of this type consist of digits only.
func (t IDType) DigitsOnly() bool {
	return t == IDNational || t == IDPhilHealth || t == IDSSS
}

// Normalize canonicalizes a user-entered number for storage and comparison.
func (t IDType) Normalize(raw string) string {
	v := strings.TrimSpace(raw)
	switch {
	case t.DigitsOnly():
		return nonDigits.ReplaceAllString(v, "")
	case t == IDDriversLicense:
		return nonAlnumOrDash.ReplaceAllString(v, "")
	default:
		return whitespace.ReplaceAllString(v, "")
	}
}

// ValidateNumber checks a normalized number against the type's accepted format.
// FormatMessage holds the matching user-facing hint.
func (t IDType) ValidateNumber(normalized string) error {
	f, ok := idFormats[t]
	if !ok {
		return fmt.Errorf("unknown id type %q: %w", string(t), ErrBadRequest)
	}
	if !f.pattern.MatchString(normalized) {
		return fmt.Errorf("id number does not match %s format: %w", t, ErrBadRequest)
	}
	return nil
}

// FormatMessage returns the user-facing format hint for the type.
func (t IDType) FormatMessage() string {
	if f, ok := idFormats[t]; ok {
		return f.message
	}
	return "Invalid ID format."
}

// IDDocument is an uploaded identity file together with the declared claim.
// Number holds the normalized declared number.
type IDDocument struct {
	Type     IDType
	Number   string
	MimeType string
	Name     string
	Bytes    []byte
	// Crop is an optional client-supplied crop around the number, used for digit recognition.
	Crop []byte
}

// IsImage reports whether the document can be fed to image pipelines.
func (d *IDDocument) IsImage() bool {
	return d.MimeType == MimeJPEG || d.MimeType == MimePNG
}
