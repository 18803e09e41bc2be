package ocr

import (
	"strings"

	"github.com/patient-idv/internal/domain"
)

// markers are phrases printed on each document type.
var markers = map[domain.IDType][]string{
	domain.IDPassport:       {"PASSPORT"},
	domain.IDDriversLicense: {"DRIVER", "LICENSE", "LICENCE"},
	domain.IDNational:       {"PHILIPPINES", "PAMBANSANG", "REPUBLIKA"},
	domain.IDPhilHealth:     {"PHILHEALTH", "PHIL HEALTH"},
	domain.IDSSS:            {"SSS", "SOCIAL SECURITY"},
}

// HasMarker reports whether text contains a marker phrase of type t.
func HasMarker(t domain.IDType, text string) bool {
	m, ok := markers[t]
	if !ok {
		return true
	}
	upper := strings.ToUpper(text)
	for _, phrase := range m {
		if strings.Contains(upper, phrase) {
			return true
		}
	}
	return false
}
