// Package folio validates and normalizes quotation folio codes.
// A folio is the key a user brings to the intake form and becomes a remote
// folder name, so only validated folios may be used to build storage paths.
package folio

import (
	"regexp"
	"strings"
)

// folio format: 6 digits, hyphen, 6 uppercase alphanumerics, eg 251215-0FF480
var folioRegex = regexp.MustCompile(`^\d{6}-[A-Z0-9]{6}$`)

// dash variants users paste from documents or type on mobile keyboards,
// mapped to the canonical ascii hyphen before validation.
var dashReplacer = strings.NewReplacer(
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
)

// Normalize trims whitespace, uppercases, and maps dash variants to the
// canonical hyphen. It never rejects input; vetting is Validate's job.
func Normalize(raw string) string {
	return dashReplacer.Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsValid reports whether a (normalized) folio matches the strict format.
func IsValid(folio string) bool {
	return folioRegex.MatchString(folio)
}
