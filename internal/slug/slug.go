// Package slug turns titles into url-safe, hyphenated ASCII path segments.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength bounds a single normalized segment
const MaxLength = 128

// Normalize converts a title to a slug: diacritics folded, lowercase, every run of
// characters outside [a-z0-9] collapsed to one hyphen, hyphens trimmed, bounded length.
// "&" reads as "and". Returns "" when nothing url-safe remains.
func Normalize(title string) string {
	folded := fold(strings.ReplaceAll(title, "&", " and "))

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	s := b.String()
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	return s
}

// NormalizePath normalizes every "/"-separated segment of a path and drops empty ones.
// "root" and the empty path both normalize to "root".
func NormalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/ "), "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := Normalize(p); s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return "root"
	}
	return strings.Join(segments, "/")
}

// fold strips combining marks, so "Café" becomes "Cafe"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
