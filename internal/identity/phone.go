// Package identity turns external phone identifiers into the canonical form
// leads are stored under and resolves them back to leads.
package identity

import (
	"strings"
	"unicode/utf8"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
)

// MaxPhoneLength bounds a normalized phone, leading '+' included.
const MaxPhoneLength = 20

// NormalizePhone keeps digits and a single leading '+', truncates the result
// to MaxPhoneLength and reports false when no digit survives.
// NormalizePhone(NormalizePhone(x)) == NormalizePhone(x) for every x.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	hasDigit := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			hasDigit = true
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
		if b.Len() == MaxPhoneLength {
			break
		}
	}
	if !hasDigit {
		return "", false
	}
	return b.String(), true
}

// Digits returns the digit-only form of a normalized phone.
func Digits(phone string) string {
	return model.DigitsOf(phone)
}

// Matches reports whether a stored digit-only phone matches an inbound one.
// Containment, not equality, so a stored national number does not match an
// inbound number with a country prefix, but a stored full number matches an
// inbound national one. Distinct leads sharing a suffix can collide.
func Matches(storedDigits, inboundDigits string) bool {
	return inboundDigits != "" && strings.Contains(storedDigits, inboundDigits)
}

// PlaceholderName names a lead created from an unknown sender.
func PlaceholderName(phone string) string {
	digits := Digits(phone)
	if n := utf8.RuneCountInString(digits); n > 4 {
		digits = digits[n-4:]
	}
	return "Lead " + digits
}
