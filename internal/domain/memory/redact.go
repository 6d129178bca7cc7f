package memory

import (
	"regexp"
	"strings"
)

// RedactionToken replaces any pattern that looks like personal data
const RedactionToken = "[redacted]"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Phone shapes with at least nine digits, e.g. +49 170 1234567, (555) 123-4567
	phonePattern = regexp.MustCompile(`\+?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{2,4}[\s.\-]?\d{2,6}`)

	// Long digit runs: card numbers, national IDs, bank accounts
	digitRunPattern = regexp.MustCompile(`\d{8,}`)

	alnumPattern = regexp.MustCompile(`[a-zA-Z0-9]`)
)

// Redact scrubs email addresses, phone numbers and long digit runs from a
// string before it is stored as long-term memory
func Redact(s string) string {
	s = emailPattern.ReplaceAllString(s, RedactionToken)
	s = digitRunPattern.ReplaceAllString(s, RedactionToken)
	s = phonePattern.ReplaceAllString(s, RedactionToken)
	return s
}

// Storable reports whether a redacted string still carries enough signal to
// keep. Half-redacted stubs are dropped rather than stored.
func Storable(redacted string) bool {
	stripped := strings.ReplaceAll(redacted, RedactionToken, "")
	return len(alnumPattern.FindAllString(stripped, 3)) >= 3
}
